package core

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// TriageService exposes the analyst-facing operations: the email queue,
// overrides and bulk review, the audit log, custom rules and settings.
// Successful state-changing actions append to the audit log; failed
// calls never do.
type TriageService struct {
	store  Store
	clock  Clock
	logger *zap.Logger
}

// NewTriageService creates a new triage service
func NewTriageService(store Store, clock Clock, logger *zap.Logger) *TriageService {
	return &TriageService{
		store:  store,
		clock:  clock,
		logger: logger,
	}
}

// ListEmails returns one page of the email queue.
func (s *TriageService) ListEmails(ctx context.Context, filter EmailFilter) ([]*Email, int, error) {
	return s.store.ListEmails(ctx, filter)
}

// similarEmailLimit caps the resolved similar-email cross-references.
const similarEmailLimit = 10

// GetEmail returns one email with its indicators and the ids of other
// emails from the same sender domain. The cross-reference is resolved
// here on demand; only ids are exposed, never the records themselves.
func (s *TriageService) GetEmail(ctx context.Context, id string) (*Email, error) {
	email, err := s.store.GetEmail(ctx, id)
	if err != nil {
		return nil, err
	}
	if email.SenderDomain != "" {
		similar, err := s.store.ListSimilarEmailIDs(ctx, email.ID, email.SenderDomain, similarEmailLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve similar emails: %w", err)
		}
		email.SimilarEmailIDs = similar
	}
	return email, nil
}

// GetEmailAudit returns the audit trail of one email, oldest first.
func (s *TriageService) GetEmailAudit(ctx context.Context, id string) ([]*AuditEntry, error) {
	if _, err := s.store.GetEmail(ctx, id); err != nil {
		return nil, err
	}
	return s.store.ListEmailAudit(ctx, id)
}

// Override reclassifies an email on behalf of an analyst. The review
// status becomes overridden when the new category differs from the
// prior effective category, reviewed otherwise. aiCategory and
// confidenceScore are never touched.
func (s *TriageService) Override(ctx context.Context, emailID, analyst string, newCategory Category, reason string) (*Email, error) {
	if reason == "" {
		return nil, ValidationErrorf("override reason must not be empty")
	}
	if analyst == "" {
		return nil, ValidationErrorf("analyst must not be empty")
	}
	if !newCategory.Valid() {
		return nil, ValidationErrorf("unknown category %q", newCategory)
	}

	email, err := s.store.GetEmail(ctx, emailID)
	if err != nil {
		return nil, err
	}

	previous := email.EffectiveCategory()
	now := s.clock.Now()

	email.AnalystCategory = newCategory
	email.ReviewedBy = analyst
	email.ReviewedAt = &now
	if newCategory != previous {
		email.ReviewStatus = ReviewOverridden
	} else {
		email.ReviewStatus = ReviewReviewed
	}

	if err := s.store.UpdateReview(ctx, email); err != nil {
		return nil, fmt.Errorf("failed to persist override: %w", err)
	}

	entry := &AuditEntry{
		ID:               uuid.NewString(),
		Timestamp:        now,
		Actor:            analyst,
		Action:           ActionOverride,
		EmailID:          email.ID,
		PreviousCategory: previous,
		NewCategory:      newCategory,
		Detail:           reason,
	}
	if err := s.store.AppendAudit(ctx, entry); err != nil {
		return nil, fmt.Errorf("failed to append audit entry: %w", err)
	}

	s.logger.Info("Email override applied",
		zap.String("email_id", email.ID),
		zap.String("analyst", analyst),
		zap.String("previous_category", string(previous)),
		zap.String("new_category", string(newCategory)))

	return email, nil
}

// BulkReview marks the pending emails among emailIDs as reviewed and
// returns the count of emails actually transitioned. Unknown ids and
// emails already reviewed or overridden are left untouched and not
// counted.
func (s *TriageService) BulkReview(ctx context.Context, emailIDs []string, analyst string) (int, error) {
	if analyst == "" {
		return 0, ValidationErrorf("analyst must not be empty")
	}

	reviewed := 0
	for _, id := range emailIDs {
		email, err := s.store.GetEmail(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return reviewed, err
		}
		if email.ReviewStatus != ReviewPending {
			continue
		}

		now := s.clock.Now()
		email.ReviewStatus = ReviewReviewed
		email.ReviewedBy = analyst
		email.ReviewedAt = &now

		if err := s.store.UpdateReview(ctx, email); err != nil {
			return reviewed, fmt.Errorf("failed to persist bulk review for %s: %w", id, err)
		}

		entry := &AuditEntry{
			ID:        uuid.NewString(),
			Timestamp: now,
			Actor:     analyst,
			Action:    ActionBulkReview,
			EmailID:   email.ID,
			Detail:    "Marked as reviewed (bulk action)",
		}
		if err := s.store.AppendAudit(ctx, entry); err != nil {
			return reviewed, fmt.Errorf("failed to append audit entry: %w", err)
		}
		reviewed++
	}

	s.logger.Info("Bulk review complete",
		zap.String("analyst", analyst),
		zap.Int("requested", len(emailIDs)),
		zap.Int("reviewed", reviewed))

	return reviewed, nil
}

// ListAudit returns one page of the audit log, newest first.
func (s *TriageService) ListAudit(ctx context.Context, filter AuditFilter) ([]*AuditEntry, int, error) {
	return s.store.ListAudit(ctx, filter)
}

// ListRules returns all custom rules, oldest first.
func (s *TriageService) ListRules(ctx context.Context) ([]*CustomRule, error) {
	return s.store.ListRules(ctx, false)
}

// CreateRule creates an active custom rule.
func (s *TriageService) CreateRule(ctx context.Context, ruleType RuleType, value string, forceCategory Category, createdBy string) (*CustomRule, error) {
	if !ruleType.Valid() {
		return nil, ValidationErrorf("unknown rule type %q", ruleType)
	}
	if value == "" {
		return nil, ValidationErrorf("rule value must not be empty")
	}
	if !forceCategory.Valid() {
		return nil, ValidationErrorf("unknown category %q", forceCategory)
	}

	rule := &CustomRule{
		ID:            uuid.NewString(),
		Type:          ruleType,
		Value:         value,
		ForceCategory: forceCategory,
		Active:        true,
		CreatedBy:     createdBy,
		CreatedAt:     s.clock.Now(),
	}
	if err := s.store.CreateRule(ctx, rule); err != nil {
		return nil, fmt.Errorf("failed to create rule: %w", err)
	}

	s.logger.Info("Custom rule created",
		zap.String("rule_id", rule.ID),
		zap.String("type", string(ruleType)),
		zap.String("force_category", string(forceCategory)))

	return rule, nil
}

// DeleteRule removes a custom rule.
func (s *TriageService) DeleteRule(ctx context.Context, id string) error {
	return s.store.DeleteRule(ctx, id)
}

// GetSettings returns the current settings row.
func (s *TriageService) GetSettings(ctx context.Context) (Settings, error) {
	return s.store.GetSettings(ctx)
}

// UpdateThresholds replaces the classification thresholds. Existing
// categories are immutable snapshots and are not recomputed.
func (s *TriageService) UpdateThresholds(ctx context.Context, high, low float64) (Settings, error) {
	if low < 0 || high > 1 {
		return Settings{}, ValidationErrorf("thresholds must be within [0,1]")
	}
	if low >= high {
		return Settings{}, ValidationErrorf("low threshold must be less than high threshold")
	}

	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return Settings{}, err
	}
	settings.HighThreshold = high
	settings.LowThreshold = low
	settings.UpdatedAt = s.clock.Now()

	if err := s.store.SaveSettings(ctx, settings); err != nil {
		return Settings{}, fmt.Errorf("failed to save settings: %w", err)
	}
	return settings, nil
}

// NotificationUpdate carries a partial update of the notification flags.
type NotificationUpdate struct {
	HighMaliciousSpike *bool
	JobFailure         *bool
	DailyDigest        *bool
}

// UpdateNotifications patches the notification flags.
func (s *TriageService) UpdateNotifications(ctx context.Context, update NotificationUpdate) (Settings, error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return Settings{}, err
	}
	if update.HighMaliciousSpike != nil {
		settings.NotifyHighMaliciousSpike = *update.HighMaliciousSpike
	}
	if update.JobFailure != nil {
		settings.NotifyJobFailure = *update.JobFailure
	}
	if update.DailyDigest != nil {
		settings.NotifyDailyDigest = *update.DailyDigest
	}
	settings.UpdatedAt = s.clock.Now()

	if err := s.store.SaveSettings(ctx, settings); err != nil {
		return Settings{}, fmt.Errorf("failed to save settings: %w", err)
	}
	return settings, nil
}

// ListMailboxes returns the polled mailboxes with their cursor state.
func (s *TriageService) ListMailboxes(ctx context.Context) ([]*MailboxCursor, error) {
	return s.store.ListCursors(ctx)
}
