package core

import (
	"context"
	"time"
)

// MailSource fetches messages from a shared mailbox using delta queries.
type MailSource interface {
	// FetchDelta returns one batch of new messages and the continuation
	// token to store once the batch has fully persisted.
	FetchDelta(ctx context.Context, mailbox, deltaToken string) ([]*RawMessage, string, error)

	// MarkRead flags a message as read in the source mailbox.
	MarkRead(ctx context.Context, mailbox, messageID string) error
}

// Classifier assigns a category, confidence and reasoning to a
// normalized message.
type Classifier interface {
	Classify(ctx context.Context, msg *NormalizedMessage, rules []CustomRule, settings Settings) (Verdict, error)
}

// EmailFilter narrows an email listing.
type EmailFilter struct {
	Category Category
	Status   ReviewStatus
	Search   string
	From     *time.Time
	To       *time.Time
	Page     int
	PageSize int
}

// AuditFilter narrows an audit log listing.
type AuditFilter struct {
	Actor    string
	Action   AuditAction
	Page     int
	PageSize int
}

// EmailStore persists emails and their indicators, keyed by external
// message id.
type EmailStore interface {
	// UpsertEmail inserts the email and its indicators, or returns the
	// existing record unchanged when the message id is already known.
	// The second return value reports whether a new row was created.
	UpsertEmail(ctx context.Context, email *Email, indicators []ThreatIndicator) (*Email, bool, error)

	GetEmail(ctx context.Context, id string) (*Email, error)
	ListEmails(ctx context.Context, filter EmailFilter) ([]*Email, int, error)

	// UpdateReview persists the analyst-mutable fields only
	// (analyst_category, review_status, reviewed_by, reviewed_at).
	UpdateReview(ctx context.Context, email *Email) error

	// ListSimilarEmailIDs returns the ids of other emails from the same
	// sender domain, newest received first, capped at limit. The relation
	// is resolved on read and never stored on the email row.
	ListSimilarEmailIDs(ctx context.Context, emailID, senderDomain string, limit int) ([]string, error)
}

// AuditStore is the append-only audit log.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	ListAudit(ctx context.Context, filter AuditFilter) ([]*AuditEntry, int, error)
	ListEmailAudit(ctx context.Context, emailID string) ([]*AuditEntry, error)
}

// RuleStore persists analyst-defined custom rules.
type RuleStore interface {
	CreateRule(ctx context.Context, rule *CustomRule) error
	DeleteRule(ctx context.Context, id string) error
	ListRules(ctx context.Context, activeOnly bool) ([]*CustomRule, error)
}

// CursorStore persists per-mailbox delta cursors.
type CursorStore interface {
	GetCursor(ctx context.Context, mailbox string) (*MailboxCursor, error)
	CommitCursor(ctx context.Context, cursor *MailboxCursor) error
	ListCursors(ctx context.Context) ([]*MailboxCursor, error)
}

// SettingsStore persists the single settings row.
type SettingsStore interface {
	GetSettings(ctx context.Context) (Settings, error)
	SaveSettings(ctx context.Context, settings Settings) error
}

// Store is the durable store consumed by the service and the ingestion
// pipeline.
type Store interface {
	EmailStore
	AuditStore
	RuleStore
	CursorStore
	SettingsStore
}

// Clock abstracts time for testability.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production Clock.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time {
	return time.Now().UTC()
}
