package core

import (
	"time"

	"github.com/google/uuid"
)

// Category is the threat classification assigned to an email.
type Category string

const (
	CategoryHighMalicious Category = "high_malicious"
	CategoryLowMalicious  Category = "low_malicious"
	CategorySafe          Category = "safe"
)

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryHighMalicious, CategoryLowMalicious, CategorySafe:
		return true
	}
	return false
}

// ReviewStatus is the analyst review state of an email.
type ReviewStatus string

const (
	ReviewPending    ReviewStatus = "pending"
	ReviewReviewed   ReviewStatus = "reviewed"
	ReviewOverridden ReviewStatus = "overridden"
)

// IndicatorType classifies a threat indicator value.
type IndicatorType string

const (
	IndicatorURL    IndicatorType = "url"
	IndicatorDomain IndicatorType = "domain"
	IndicatorIP     IndicatorType = "ip"
)

// AuditAction is the kind of state-changing action an audit entry records.
type AuditAction string

const (
	ActionReviewed   AuditAction = "reviewed"
	ActionOverride   AuditAction = "override"
	ActionBulkReview AuditAction = "bulk_review"
	ActionJobPause   AuditAction = "job_pause"
	ActionJobResume  AuditAction = "job_resume"
	ActionJobTrigger AuditAction = "job_trigger"
	ActionIngestion  AuditAction = "ingestion"
)

// RuleType is the matching strategy of a custom rule.
type RuleType string

const (
	RuleDomain  RuleType = "domain"
	RuleKeyword RuleType = "keyword"
)

// Valid reports whether t is a known rule type.
func (t RuleType) Valid() bool {
	return t == RuleDomain || t == RuleKeyword
}

// emailNamespace is the UUIDv5 namespace used to derive stable email ids
// from external message ids, so a retried ingestion always lands on the
// same primary key.
var emailNamespace = uuid.MustParse("9f3c1a52-7a0e-46d8-9d24-b1f54c9a7e11")

// EmailIDFor derives the stable internal id for an external message id.
func EmailIDFor(messageID string) string {
	return uuid.NewSHA1(emailNamespace, []byte(messageID)).String()
}

// Email is the core record created once per distinct external message id.
// AICategory and ConfidenceScore are immutable snapshots taken at
// ingestion time; analyst actions only touch the review fields.
type Email struct {
	ID             string    `db:"id" json:"id"`
	MessageID      string    `db:"message_id" json:"message_id"`
	MailboxAddress string    `db:"mailbox_address" json:"mailbox_address"`
	Sender         string    `db:"sender" json:"sender"`
	SenderDomain   string    `db:"sender_domain" json:"sender_domain"`
	Recipient      string    `db:"recipient" json:"recipient"`
	Subject        string    `db:"subject" json:"subject"`
	ReceivedAt     time.Time `db:"received_at" json:"received_at"`
	BodyText       string    `db:"body_text" json:"body_text"`
	BodyHTML       string    `db:"body_html" json:"body_html"`

	AICategory      Category `db:"ai_category" json:"ai_category"`
	ConfidenceScore float64  `db:"confidence_score" json:"confidence_score"`
	Reasoning       []string `db:"-" json:"reasoning"`

	AnalystCategory Category     `db:"analyst_category" json:"analyst_category,omitempty"`
	ReviewStatus    ReviewStatus `db:"review_status" json:"review_status"`
	ReviewedBy      string       `db:"reviewed_by" json:"reviewed_by,omitempty"`
	ReviewedAt      *time.Time   `db:"reviewed_at" json:"reviewed_at,omitempty"`

	Indicators      []ThreatIndicator `db:"-" json:"threat_indicators,omitempty"`
	SimilarEmailIDs []string          `db:"-" json:"similar_email_ids,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EffectiveCategory returns the analyst category when set, otherwise the
// machine-computed category.
func (e *Email) EffectiveCategory() Category {
	if e.AnalystCategory != "" {
		return e.AnalystCategory
	}
	return e.AICategory
}

// ThreatIndicator is a URL, domain or IP extracted from an email.
// IsMalicious reflects the email's effective category at creation time
// and is never recomputed.
type ThreatIndicator struct {
	ID          int64         `db:"id" json:"id"`
	EmailID     string        `db:"email_id" json:"email_id"`
	Type        IndicatorType `db:"indicator_type" json:"type"`
	Value       string        `db:"value" json:"value"`
	IsMalicious bool          `db:"is_malicious" json:"is_malicious"`
}

// AuditEntry is an append-only record of a state-changing action.
// Entries are never edited or deleted.
type AuditEntry struct {
	ID               string      `db:"id" json:"id"`
	Timestamp        time.Time   `db:"timestamp" json:"timestamp"`
	Actor            string      `db:"actor" json:"actor"`
	Action           AuditAction `db:"action" json:"action"`
	EmailID          string      `db:"email_id" json:"email_id,omitempty"`
	PreviousCategory Category    `db:"previous_category" json:"previous_category,omitempty"`
	NewCategory      Category    `db:"new_category" json:"new_category,omitempty"`
	Detail           string      `db:"detail" json:"detail,omitempty"`
}

// CustomRule forces a category when its value matches an incoming message.
type CustomRule struct {
	ID            string    `db:"id" json:"id"`
	Type          RuleType  `db:"rule_type" json:"type"`
	Value         string    `db:"value" json:"value"`
	ForceCategory Category  `db:"force_category" json:"force_category"`
	Active        bool      `db:"active" json:"active"`
	CreatedBy     string    `db:"created_by" json:"created_by,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"created_at"`
}

// MailboxCursor tracks the delta continuation token for one polled
// mailbox. The token advances only when a whole batch has persisted.
type MailboxCursor struct {
	MailboxAddress string     `db:"mailbox_address" json:"mailbox_address"`
	DeltaToken     string     `db:"delta_token" json:"delta_token,omitempty"`
	LastPolledAt   *time.Time `db:"last_polled_at" json:"last_polled_at,omitempty"`
	LastError      string     `db:"last_error" json:"last_error,omitempty"`
}

// Settings is the single mutable configuration row read at scoring time.
// Categories assigned under earlier thresholds are never recomputed.
type Settings struct {
	HighThreshold float64 `db:"high_threshold" json:"high_threshold"`
	LowThreshold  float64 `db:"low_threshold" json:"low_threshold"`

	NotifyHighMaliciousSpike bool `db:"notify_high_malicious_spike" json:"notify_high_malicious_spike"`
	NotifyJobFailure         bool `db:"notify_job_failure" json:"notify_job_failure"`
	NotifyDailyDigest        bool `db:"notify_daily_digest" json:"notify_daily_digest"`

	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// DefaultSettings seeds the settings row on first startup.
func DefaultSettings() Settings {
	return Settings{
		HighThreshold:            0.80,
		LowThreshold:             0.50,
		NotifyHighMaliciousSpike: true,
		NotifyJobFailure:         true,
		NotifyDailyDigest:        false,
	}
}

// RawMessage is a fetched message before normalization.
type RawMessage struct {
	MessageID  string
	Mailbox    string
	Sender     string
	Recipient  string
	Subject    string
	BodyHTML   string
	BodyText   string
	Headers    map[string][]string
	ReceivedAt time.Time
}

// Link is an anchor extracted from an HTML body: the target href plus
// the text the reader sees.
type Link struct {
	Href string
	Text string
}

// NormalizedMessage is the structured record the scoring engine consumes.
type NormalizedMessage struct {
	MessageID      string
	MailboxAddress string
	Sender         string
	SenderDomain   string
	Recipient      string
	Subject        string
	BodyText       string
	BodyHTML       string
	ReceivedAt     time.Time

	URLs    []string
	Domains []string
	IPs     []string
	Links   []Link
}

// Verdict is the outcome of classifying one normalized message.
type Verdict struct {
	RawScore  float64
	Category  Category
	Reasoning []string
}
