package store

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS emails (
	id TEXT PRIMARY KEY,
	message_id TEXT NOT NULL UNIQUE,
	mailbox_address TEXT NOT NULL,
	sender TEXT NOT NULL,
	sender_domain TEXT NOT NULL,
	recipient TEXT NOT NULL,
	subject TEXT NOT NULL,
	received_at TIMESTAMP NOT NULL,
	body_text TEXT NOT NULL,
	body_html TEXT NOT NULL,
	ai_category TEXT NOT NULL,
	confidence_score REAL NOT NULL,
	reasoning TEXT NOT NULL DEFAULT '[]',
	analyst_category TEXT NOT NULL DEFAULT '',
	review_status TEXT NOT NULL DEFAULT 'pending',
	reviewed_by TEXT NOT NULL DEFAULT '',
	reviewed_at TIMESTAMP,
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_emails_received_at ON emails(received_at);
CREATE INDEX IF NOT EXISTS idx_emails_review_status ON emails(review_status);
CREATE TABLE IF NOT EXISTS threat_indicators (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email_id TEXT NOT NULL REFERENCES emails(id),
	indicator_type TEXT NOT NULL,
	value TEXT NOT NULL,
	is_malicious BOOLEAN NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_indicators_email ON threat_indicators(email_id);
CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	timestamp TIMESTAMP NOT NULL,
	actor TEXT NOT NULL,
	action TEXT NOT NULL,
	email_id TEXT NOT NULL DEFAULT '',
	previous_category TEXT NOT NULL DEFAULT '',
	new_category TEXT NOT NULL DEFAULT '',
	detail TEXT NOT NULL DEFAULT ''
);
CREATE INDEX IF NOT EXISTS idx_audit_timestamp ON audit_log(timestamp);
CREATE INDEX IF NOT EXISTS idx_audit_email ON audit_log(email_id);
CREATE TABLE IF NOT EXISTS custom_rules (
	id TEXT PRIMARY KEY,
	rule_type TEXT NOT NULL,
	value TEXT NOT NULL,
	force_category TEXT NOT NULL,
	active BOOLEAN NOT NULL DEFAULT 1,
	created_by TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS mailbox_cursors (
	mailbox_address TEXT PRIMARY KEY,
	delta_token TEXT NOT NULL DEFAULT '',
	last_polled_at TIMESTAMP,
	last_error TEXT NOT NULL DEFAULT ''
);
CREATE TABLE IF NOT EXISTS settings (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	high_threshold REAL NOT NULL,
	low_threshold REAL NOT NULL,
	notify_high_malicious_spike BOOLEAN NOT NULL,
	notify_job_failure BOOLEAN NOT NULL,
	notify_daily_digest BOOLEAN NOT NULL,
	updated_at TIMESTAMP NOT NULL
)`

const mysqlSchema = `
CREATE TABLE IF NOT EXISTS emails (
	id VARCHAR(36) PRIMARY KEY,
	message_id VARCHAR(512) NOT NULL,
	mailbox_address VARCHAR(255) NOT NULL,
	sender VARCHAR(512) NOT NULL,
	sender_domain VARCHAR(255) NOT NULL,
	recipient VARCHAR(512) NOT NULL,
	subject TEXT NOT NULL,
	received_at DATETIME NOT NULL,
	body_text MEDIUMTEXT NOT NULL,
	body_html MEDIUMTEXT NOT NULL,
	ai_category VARCHAR(32) NOT NULL,
	confidence_score DOUBLE NOT NULL,
	reasoning TEXT NOT NULL,
	analyst_category VARCHAR(32) NOT NULL DEFAULT '',
	review_status VARCHAR(16) NOT NULL DEFAULT 'pending',
	reviewed_by VARCHAR(255) NOT NULL DEFAULT '',
	reviewed_at DATETIME NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL,
	UNIQUE KEY uq_emails_message_id (message_id(191)),
	KEY idx_emails_received_at (received_at),
	KEY idx_emails_review_status (review_status)
);
CREATE TABLE IF NOT EXISTS threat_indicators (
	id BIGINT PRIMARY KEY AUTO_INCREMENT,
	email_id VARCHAR(36) NOT NULL,
	indicator_type VARCHAR(16) NOT NULL,
	value TEXT NOT NULL,
	is_malicious TINYINT(1) NOT NULL DEFAULT 0,
	KEY idx_indicators_email (email_id)
);
CREATE TABLE IF NOT EXISTS audit_log (
	id VARCHAR(36) PRIMARY KEY,
	timestamp DATETIME NOT NULL,
	actor VARCHAR(255) NOT NULL,
	action VARCHAR(32) NOT NULL,
	email_id VARCHAR(36) NOT NULL DEFAULT '',
	previous_category VARCHAR(32) NOT NULL DEFAULT '',
	new_category VARCHAR(32) NOT NULL DEFAULT '',
	detail TEXT NOT NULL,
	KEY idx_audit_timestamp (timestamp),
	KEY idx_audit_email (email_id)
);
CREATE TABLE IF NOT EXISTS custom_rules (
	id VARCHAR(36) PRIMARY KEY,
	rule_type VARCHAR(16) NOT NULL,
	value VARCHAR(512) NOT NULL,
	force_category VARCHAR(32) NOT NULL,
	active TINYINT(1) NOT NULL DEFAULT 1,
	created_by VARCHAR(255) NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL
);
CREATE TABLE IF NOT EXISTS mailbox_cursors (
	mailbox_address VARCHAR(255) PRIMARY KEY,
	delta_token TEXT NOT NULL,
	last_polled_at DATETIME NULL,
	last_error TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS settings (
	id INT PRIMARY KEY,
	high_threshold DOUBLE NOT NULL,
	low_threshold DOUBLE NOT NULL,
	notify_high_malicious_spike TINYINT(1) NOT NULL,
	notify_job_failure TINYINT(1) NOT NULL,
	notify_daily_digest TINYINT(1) NOT NULL,
	updated_at DATETIME NOT NULL
)`
