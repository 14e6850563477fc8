package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/phishdefender/phishdefender/internal/core"
	"go.uber.org/zap"
)

type dialect string

const (
	dialectSQLite dialect = "sqlite"
	dialectMySQL  dialect = "mysql"
)

// SQLStore is the durable Store shared by the SQLite and MySQL
// backends. The two dialects differ only in schema bootstrap and the
// insert-if-absent form.
type SQLStore struct {
	db      *sqlx.DB
	dialect dialect
	logger  *zap.Logger
}

func newSQLStore(db *sqlx.DB, d dialect, logger *zap.Logger) (*SQLStore, error) {
	s := &SQLStore{db: db, dialect: d, logger: logger}
	if err := s.bootstrap(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLStore) bootstrap() error {
	schema := sqliteSchema
	if s.dialect == dialectMySQL {
		schema = mysqlSchema
	}
	for _, stmt := range strings.Split(schema, ";\n") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}

	defaults := core.DefaultSettings()
	_, err := s.db.Exec(s.ignoreInsert(`INSERT %s INTO settings
		(id, high_threshold, low_threshold, notify_high_malicious_spike, notify_job_failure, notify_daily_digest, updated_at)
		VALUES (1, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)`),
		defaults.HighThreshold, defaults.LowThreshold,
		defaults.NotifyHighMaliciousSpike, defaults.NotifyJobFailure, defaults.NotifyDailyDigest)
	return err
}

// ignoreInsert renders an INSERT that silently skips duplicate keys.
func (s *SQLStore) ignoreInsert(query string) string {
	if s.dialect == dialectMySQL {
		return fmt.Sprintf(query, "IGNORE")
	}
	return fmt.Sprintf(query, "OR IGNORE")
}

// Close closes the underlying database.
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// emailRow maps the emails table. Reasoning is stored as a JSON array.
type emailRow struct {
	core.Email
	ReasoningJSON string `db:"reasoning"`
}

func (r *emailRow) toEmail() (*core.Email, error) {
	email := r.Email
	if r.ReasoningJSON != "" {
		if err := json.Unmarshal([]byte(r.ReasoningJSON), &email.Reasoning); err != nil {
			return nil, fmt.Errorf("corrupt reasoning for email %s: %w", email.ID, err)
		}
	}
	return &email, nil
}

// UpsertEmail inserts the email and its indicators in one transaction,
// or returns the existing record unchanged when the id is taken.
func (s *SQLStore) UpsertEmail(ctx context.Context, email *core.Email, indicators []core.ThreatIndicator) (*core.Email, bool, error) {
	reasoning, err := json.Marshal(email.Reasoning)
	if err != nil {
		return nil, false, fmt.Errorf("failed to encode reasoning: %w", err)
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, false, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, s.ignoreInsert(`INSERT %s INTO emails
		(id, message_id, mailbox_address, sender, sender_domain, recipient, subject, received_at,
		 body_text, body_html, ai_category, confidence_score, reasoning,
		 analyst_category, review_status, reviewed_by, reviewed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		email.ID, email.MessageID, email.MailboxAddress, email.Sender, email.SenderDomain,
		email.Recipient, email.Subject, email.ReceivedAt,
		email.BodyText, email.BodyHTML, email.AICategory, email.ConfidenceScore, string(reasoning),
		email.AnalystCategory, email.ReviewStatus, email.ReviewedBy, email.ReviewedAt,
		email.CreatedAt, email.UpdatedAt)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert email: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, err
	}
	if affected == 0 {
		if err := tx.Commit(); err != nil {
			return nil, false, err
		}
		existing, err := s.GetEmail(ctx, email.ID)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	for _, ind := range indicators {
		_, err := tx.ExecContext(ctx, `INSERT INTO threat_indicators
			(email_id, indicator_type, value, is_malicious) VALUES (?, ?, ?, ?)`,
			email.ID, ind.Type, ind.Value, ind.IsMalicious)
		if err != nil {
			return nil, false, fmt.Errorf("failed to insert indicator: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	stored, err := s.GetEmail(ctx, email.ID)
	if err != nil {
		return nil, false, err
	}
	return stored, true, nil
}

// GetEmail returns one email with its indicators.
func (s *SQLStore) GetEmail(ctx context.Context, id string) (*core.Email, error) {
	var row emailRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM emails WHERE id = ?`, id)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFoundErrorf("email %s not found", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load email: %w", err)
	}

	email, err := row.toEmail()
	if err != nil {
		return nil, err
	}
	if err := s.db.SelectContext(ctx, &email.Indicators,
		`SELECT * FROM threat_indicators WHERE email_id = ? ORDER BY id`, id); err != nil {
		return nil, fmt.Errorf("failed to load indicators: %w", err)
	}
	return email, nil
}

// ListEmails returns one page of emails, newest received first, plus the
// total match count. The effective category filter prefers the analyst
// category over the machine one.
func (s *SQLStore) ListEmails(ctx context.Context, filter core.EmailFilter) ([]*core.Email, int, error) {
	where := []string{"1=1"}
	var args []any

	if filter.Category != "" {
		where = append(where, `(CASE WHEN analyst_category != '' THEN analyst_category ELSE ai_category END) = ?`)
		args = append(args, filter.Category)
	}
	if filter.Status != "" {
		where = append(where, "review_status = ?")
		args = append(args, filter.Status)
	}
	if filter.From != nil {
		where = append(where, "received_at >= ?")
		args = append(args, *filter.From)
	}
	if filter.To != nil {
		where = append(where, "received_at <= ?")
		args = append(args, *filter.To)
	}
	if filter.Search != "" {
		where = append(where, "(subject LIKE ? OR sender LIKE ? OR recipient LIKE ?)")
		like := "%" + filter.Search + "%"
		args = append(args, like, like, like)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM emails WHERE "+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count emails: %w", err)
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	args = append(args, size, (page-1)*size)

	var rows []emailRow
	if err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM emails WHERE "+clause+" ORDER BY received_at DESC LIMIT ? OFFSET ?",
		args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list emails: %w", err)
	}

	emails := make([]*core.Email, 0, len(rows))
	for i := range rows {
		email, err := rows[i].toEmail()
		if err != nil {
			return nil, 0, err
		}
		if err := s.db.SelectContext(ctx, &email.Indicators,
			`SELECT * FROM threat_indicators WHERE email_id = ? ORDER BY id`, email.ID); err != nil {
			return nil, 0, fmt.Errorf("failed to load indicators: %w", err)
		}
		emails = append(emails, email)
	}
	return emails, total, nil
}

// ListSimilarEmailIDs returns the ids of other emails from the same
// sender domain, newest received first.
func (s *SQLStore) ListSimilarEmailIDs(ctx context.Context, emailID, senderDomain string, limit int) ([]string, error) {
	var ids []string
	if err := s.db.SelectContext(ctx, &ids,
		`SELECT id FROM emails WHERE sender_domain = ? AND id != ? ORDER BY received_at DESC LIMIT ?`,
		senderDomain, emailID, limit); err != nil {
		return nil, fmt.Errorf("failed to list similar emails: %w", err)
	}
	return ids, nil
}

// UpdateReview persists the analyst-mutable fields only.
func (s *SQLStore) UpdateReview(ctx context.Context, email *core.Email) error {
	res, err := s.db.ExecContext(ctx, `UPDATE emails
		SET analyst_category = ?, review_status = ?, reviewed_by = ?, reviewed_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		email.AnalystCategory, email.ReviewStatus, email.ReviewedBy, email.ReviewedAt, email.ID)
	if err != nil {
		return fmt.Errorf("failed to update review: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.NotFoundErrorf("email %s not found", email.ID)
	}
	return nil
}

// AppendAudit appends one audit entry.
func (s *SQLStore) AppendAudit(ctx context.Context, entry *core.AuditEntry) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO audit_log
		(id, timestamp, actor, action, email_id, previous_category, new_category, detail)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp, entry.Actor, entry.Action,
		entry.EmailID, entry.PreviousCategory, entry.NewCategory, entry.Detail)
	if err != nil {
		return fmt.Errorf("failed to append audit entry: %w", err)
	}
	return nil
}

// ListAudit returns one page of the audit log, newest first.
func (s *SQLStore) ListAudit(ctx context.Context, filter core.AuditFilter) ([]*core.AuditEntry, int, error) {
	where := []string{"1=1"}
	var args []any

	if filter.Actor != "" {
		where = append(where, "actor = ?")
		args = append(args, filter.Actor)
	}
	if filter.Action != "" {
		where = append(where, "action = ?")
		args = append(args, filter.Action)
	}
	clause := strings.Join(where, " AND ")

	var total int
	if err := s.db.GetContext(ctx, &total,
		"SELECT COUNT(*) FROM audit_log WHERE "+clause, args...); err != nil {
		return nil, 0, fmt.Errorf("failed to count audit entries: %w", err)
	}

	page, size := normalizePage(filter.Page, filter.PageSize)
	args = append(args, size, (page-1)*size)

	var entries []*core.AuditEntry
	if err := s.db.SelectContext(ctx, &entries,
		"SELECT * FROM audit_log WHERE "+clause+" ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?",
		args...); err != nil {
		return nil, 0, fmt.Errorf("failed to list audit entries: %w", err)
	}
	return entries, total, nil
}

// ListEmailAudit returns one email's audit trail, oldest first.
func (s *SQLStore) ListEmailAudit(ctx context.Context, emailID string) ([]*core.AuditEntry, error) {
	var entries []*core.AuditEntry
	if err := s.db.SelectContext(ctx, &entries,
		`SELECT * FROM audit_log WHERE email_id = ? ORDER BY timestamp, id`, emailID); err != nil {
		return nil, fmt.Errorf("failed to list email audit trail: %w", err)
	}
	return entries, nil
}

// CreateRule stores a custom rule.
func (s *SQLStore) CreateRule(ctx context.Context, rule *core.CustomRule) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO custom_rules
		(id, rule_type, value, force_category, active, created_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rule.ID, rule.Type, rule.Value, rule.ForceCategory, rule.Active, rule.CreatedBy, rule.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create rule: %w", err)
	}
	return nil
}

// DeleteRule removes a custom rule.
func (s *SQLStore) DeleteRule(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM custom_rules WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete rule: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return core.NotFoundErrorf("rule %s not found", id)
	}
	return nil
}

// ListRules returns rules, oldest first.
func (s *SQLStore) ListRules(ctx context.Context, activeOnly bool) ([]*core.CustomRule, error) {
	query := `SELECT * FROM custom_rules`
	if activeOnly {
		query += ` WHERE active = ` + s.boolLiteral(true)
	}
	query += ` ORDER BY created_at, id`

	var rules []*core.CustomRule
	if err := s.db.SelectContext(ctx, &rules, query); err != nil {
		return nil, fmt.Errorf("failed to list rules: %w", err)
	}
	return rules, nil
}

func (s *SQLStore) boolLiteral(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

// GetCursor returns the cursor for a mailbox.
func (s *SQLStore) GetCursor(ctx context.Context, mailbox string) (*core.MailboxCursor, error) {
	var cursor core.MailboxCursor
	err := s.db.GetContext(ctx, &cursor,
		`SELECT * FROM mailbox_cursors WHERE mailbox_address = ?`, mailbox)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, core.NotFoundErrorf("no cursor for mailbox %s", mailbox)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load cursor: %w", err)
	}
	return &cursor, nil
}

// CommitCursor stores the cursor for its mailbox.
func (s *SQLStore) CommitCursor(ctx context.Context, cursor *core.MailboxCursor) error {
	_, err := s.db.ExecContext(ctx, s.ignoreInsert(`INSERT %s INTO mailbox_cursors
		(mailbox_address, delta_token, last_polled_at, last_error) VALUES (?, ?, ?, ?)`),
		cursor.MailboxAddress, cursor.DeltaToken, cursor.LastPolledAt, cursor.LastError)
	if err != nil {
		return fmt.Errorf("failed to insert cursor: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `UPDATE mailbox_cursors
		SET delta_token = ?, last_polled_at = ?, last_error = ? WHERE mailbox_address = ?`,
		cursor.DeltaToken, cursor.LastPolledAt, cursor.LastError, cursor.MailboxAddress)
	if err != nil {
		return fmt.Errorf("failed to update cursor: %w", err)
	}
	return nil
}

// ListCursors returns all mailbox cursors, sorted by address.
func (s *SQLStore) ListCursors(ctx context.Context) ([]*core.MailboxCursor, error) {
	var cursors []*core.MailboxCursor
	if err := s.db.SelectContext(ctx, &cursors,
		`SELECT * FROM mailbox_cursors ORDER BY mailbox_address`); err != nil {
		return nil, fmt.Errorf("failed to list cursors: %w", err)
	}
	return cursors, nil
}

// GetSettings returns the settings row.
func (s *SQLStore) GetSettings(ctx context.Context) (core.Settings, error) {
	var settings core.Settings
	err := s.db.GetContext(ctx, &settings, `SELECT high_threshold, low_threshold,
		notify_high_malicious_spike, notify_job_failure, notify_daily_digest, updated_at
		FROM settings WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return core.DefaultSettings(), nil
	}
	if err != nil {
		return core.Settings{}, fmt.Errorf("failed to load settings: %w", err)
	}
	return settings, nil
}

// SaveSettings replaces the settings row.
func (s *SQLStore) SaveSettings(ctx context.Context, settings core.Settings) error {
	_, err := s.db.ExecContext(ctx, `UPDATE settings
		SET high_threshold = ?, low_threshold = ?, notify_high_malicious_spike = ?,
		    notify_job_failure = ?, notify_daily_digest = ?, updated_at = ?
		WHERE id = 1`,
		settings.HighThreshold, settings.LowThreshold, settings.NotifyHighMaliciousSpike,
		settings.NotifyJobFailure, settings.NotifyDailyDigest, settings.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}
	return nil
}
