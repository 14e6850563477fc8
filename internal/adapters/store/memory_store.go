package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/phishdefender/phishdefender/internal/core"
	"go.uber.org/zap"
)

// MemoryStore is an in-memory Store for tests and local development.
type MemoryStore struct {
	mu         sync.RWMutex
	emails     map[string]*core.Email
	indicators map[string][]core.ThreatIndicator
	audit      []*core.AuditEntry
	rules      map[string]*core.CustomRule
	cursors    map[string]*core.MailboxCursor
	settings   core.Settings
	logger     *zap.Logger
}

// NewMemoryStore creates a new in-memory store seeded with default settings
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		emails:     make(map[string]*core.Email),
		indicators: make(map[string][]core.ThreatIndicator),
		rules:      make(map[string]*core.CustomRule),
		cursors:    make(map[string]*core.MailboxCursor),
		settings:   core.DefaultSettings(),
		logger:     logger,
	}
}

// UpsertEmail inserts the email, or returns the stored record unchanged
// when the id is already known.
func (s *MemoryStore) UpsertEmail(_ context.Context, email *core.Email, indicators []core.ThreatIndicator) (*core.Email, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.emails[email.ID]; ok {
		return s.withIndicators(copyEmail(existing)), false, nil
	}

	stored := copyEmail(email)
	s.emails[email.ID] = stored
	for i := range indicators {
		indicators[i].ID = int64(len(s.indicators[email.ID]) + i + 1)
		indicators[i].EmailID = email.ID
	}
	s.indicators[email.ID] = append([]core.ThreatIndicator(nil), indicators...)

	return s.withIndicators(copyEmail(stored)), true, nil
}

// GetEmail returns one email with its indicators.
func (s *MemoryStore) GetEmail(_ context.Context, id string) (*core.Email, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	email, ok := s.emails[id]
	if !ok {
		return nil, core.NotFoundErrorf("email %s not found", id)
	}
	return s.withIndicators(copyEmail(email)), nil
}

// ListEmails returns one page of emails, newest received first.
func (s *MemoryStore) ListEmails(_ context.Context, filter core.EmailFilter) ([]*core.Email, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*core.Email
	for _, email := range s.emails {
		if !emailMatches(email, filter) {
			continue
		}
		matched = append(matched, email)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ReceivedAt.After(matched[j].ReceivedAt)
	})

	total := len(matched)
	page, size := normalizePage(filter.Page, filter.PageSize)
	start := (page - 1) * size
	if start >= total {
		return nil, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}

	out := make([]*core.Email, 0, end-start)
	for _, email := range matched[start:end] {
		out = append(out, s.withIndicators(copyEmail(email)))
	}
	return out, total, nil
}

// ListSimilarEmailIDs returns the ids of other emails from the same
// sender domain, newest received first.
func (s *MemoryStore) ListSimilarEmailIDs(_ context.Context, emailID, senderDomain string, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*core.Email
	for _, email := range s.emails {
		if email.ID == emailID || email.SenderDomain != senderDomain {
			continue
		}
		matched = append(matched, email)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].ReceivedAt.After(matched[j].ReceivedAt)
	})
	if limit > 0 && len(matched) > limit {
		matched = matched[:limit]
	}

	ids := make([]string, 0, len(matched))
	for _, email := range matched {
		ids = append(ids, email.ID)
	}
	return ids, nil
}

// UpdateReview persists the analyst-mutable fields.
func (s *MemoryStore) UpdateReview(_ context.Context, email *core.Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.emails[email.ID]
	if !ok {
		return core.NotFoundErrorf("email %s not found", email.ID)
	}
	stored.AnalystCategory = email.AnalystCategory
	stored.ReviewStatus = email.ReviewStatus
	stored.ReviewedBy = email.ReviewedBy
	stored.ReviewedAt = email.ReviewedAt
	stored.UpdatedAt = time.Now().UTC()
	return nil
}

// AppendAudit appends one audit entry.
func (s *MemoryStore) AppendAudit(_ context.Context, entry *core.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *entry
	s.audit = append(s.audit, &copied)
	return nil
}

// ListAudit returns one page of the audit log, newest first.
func (s *MemoryStore) ListAudit(_ context.Context, filter core.AuditFilter) ([]*core.AuditEntry, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var matched []*core.AuditEntry
	for _, entry := range s.audit {
		if filter.Actor != "" && entry.Actor != filter.Actor {
			continue
		}
		if filter.Action != "" && entry.Action != filter.Action {
			continue
		}
		matched = append(matched, entry)
	}
	sort.SliceStable(matched, func(i, j int) bool {
		return matched[i].Timestamp.After(matched[j].Timestamp)
	})

	total := len(matched)
	page, size := normalizePage(filter.Page, filter.PageSize)
	start := (page - 1) * size
	if start >= total {
		return nil, total, nil
	}
	end := start + size
	if end > total {
		end = total
	}

	out := make([]*core.AuditEntry, 0, end-start)
	for _, entry := range matched[start:end] {
		copied := *entry
		out = append(out, &copied)
	}
	return out, total, nil
}

// ListEmailAudit returns one email's audit trail, oldest first.
func (s *MemoryStore) ListEmailAudit(_ context.Context, emailID string) ([]*core.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.AuditEntry
	for _, entry := range s.audit {
		if entry.EmailID != emailID {
			continue
		}
		copied := *entry
		out = append(out, &copied)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp.Before(out[j].Timestamp)
	})
	return out, nil
}

// CreateRule stores a custom rule.
func (s *MemoryStore) CreateRule(_ context.Context, rule *core.CustomRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *rule
	s.rules[rule.ID] = &copied
	return nil
}

// DeleteRule removes a custom rule.
func (s *MemoryStore) DeleteRule(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return core.NotFoundErrorf("rule %s not found", id)
	}
	delete(s.rules, id)
	return nil
}

// ListRules returns rules, oldest first.
func (s *MemoryStore) ListRules(_ context.Context, activeOnly bool) ([]*core.CustomRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*core.CustomRule
	for _, rule := range s.rules {
		if activeOnly && !rule.Active {
			continue
		}
		copied := *rule
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

// GetCursor returns the cursor for a mailbox.
func (s *MemoryStore) GetCursor(_ context.Context, mailbox string) (*core.MailboxCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cursor, ok := s.cursors[mailbox]
	if !ok {
		return nil, core.NotFoundErrorf("no cursor for mailbox %s", mailbox)
	}
	copied := *cursor
	return &copied, nil
}

// CommitCursor stores the cursor for its mailbox.
func (s *MemoryStore) CommitCursor(_ context.Context, cursor *core.MailboxCursor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	copied := *cursor
	s.cursors[cursor.MailboxAddress] = &copied
	return nil
}

// ListCursors returns all mailbox cursors, sorted by address.
func (s *MemoryStore) ListCursors(_ context.Context) ([]*core.MailboxCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*core.MailboxCursor, 0, len(s.cursors))
	for _, cursor := range s.cursors {
		copied := *cursor
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].MailboxAddress < out[j].MailboxAddress
	})
	return out, nil
}

// GetSettings returns the settings row.
func (s *MemoryStore) GetSettings(_ context.Context) (core.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.settings, nil
}

// SaveSettings replaces the settings row.
func (s *MemoryStore) SaveSettings(_ context.Context, settings core.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = settings
	return nil
}

func (s *MemoryStore) withIndicators(email *core.Email) *core.Email {
	email.Indicators = append([]core.ThreatIndicator(nil), s.indicators[email.ID]...)
	return email
}

func copyEmail(email *core.Email) *core.Email {
	copied := *email
	copied.Reasoning = append([]string(nil), email.Reasoning...)
	copied.Indicators = nil
	copied.SimilarEmailIDs = nil
	return &copied
}

func emailMatches(email *core.Email, filter core.EmailFilter) bool {
	if filter.Category != "" && email.EffectiveCategory() != filter.Category {
		return false
	}
	if filter.Status != "" && email.ReviewStatus != filter.Status {
		return false
	}
	if filter.From != nil && email.ReceivedAt.Before(*filter.From) {
		return false
	}
	if filter.To != nil && email.ReceivedAt.After(*filter.To) {
		return false
	}
	if filter.Search != "" {
		needle := strings.ToLower(filter.Search)
		if !strings.Contains(strings.ToLower(email.Subject), needle) &&
			!strings.Contains(strings.ToLower(email.Sender), needle) &&
			!strings.Contains(strings.ToLower(email.Recipient), needle) {
			return false
		}
	}
	return true
}

func normalizePage(page, size int) (int, int) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = 50
	}
	if size > 200 {
		size = 200
	}
	return page, size
}
