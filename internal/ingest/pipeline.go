package ingest

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/phishdefender/phishdefender/internal/core"
	"github.com/phishdefender/phishdefender/internal/normalize"
	"go.uber.org/zap"
)

// BatchResult summarizes one pipeline run over a batch of raw messages.
type BatchResult struct {
	Created    int
	Duplicates int
	Failed     int
	CreatedIDs []string
}

// Pipeline turns raw fetched messages into persisted, classified emails.
// Processing is idempotent: a message id seen before leaves the stored
// record untouched.
type Pipeline struct {
	normalizer *normalize.Normalizer
	classifier core.Classifier
	store      core.Store
	clock      core.Clock
	logger     *zap.Logger
}

// NewPipeline creates a new ingestion pipeline
func NewPipeline(normalizer *normalize.Normalizer, classifier core.Classifier, store core.Store, clock core.Clock, logger *zap.Logger) *Pipeline {
	return &Pipeline{
		normalizer: normalizer,
		classifier: classifier,
		store:      store,
		clock:      clock,
		logger:     logger,
	}
}

// ProcessBatch ingests one batch of raw messages. Rules and settings are
// loaded once so every message in the batch is scored against the same
// snapshot. Classification failures skip the message; a store failure
// aborts the batch so the caller does not advance its cursor.
func (p *Pipeline) ProcessBatch(ctx context.Context, messages []*core.RawMessage) (*BatchResult, error) {
	result := &BatchResult{}
	if len(messages) == 0 {
		return result, nil
	}

	rulePtrs, err := p.store.ListRules(ctx, true)
	if err != nil {
		return result, fmt.Errorf("failed to load custom rules: %w", err)
	}
	rules := make([]core.CustomRule, len(rulePtrs))
	for i, r := range rulePtrs {
		rules[i] = *r
	}

	settings, err := p.store.GetSettings(ctx)
	if err != nil {
		return result, fmt.Errorf("failed to load settings: %w", err)
	}

	for _, msg := range messages {
		created, err := p.processMessage(ctx, msg, rules, settings)
		if err != nil {
			if core.IsRetryable(err) {
				return result, err
			}
			result.Failed++
			p.logger.Warn("Skipping message",
				zap.String("message_id", msg.MessageID),
				zap.Error(err))
			continue
		}
		if created == "" {
			result.Duplicates++
			continue
		}
		result.Created++
		result.CreatedIDs = append(result.CreatedIDs, created)
	}

	if result.Created > 0 {
		entry := &core.AuditEntry{
			ID:        uuid.NewString(),
			Timestamp: p.clock.Now(),
			Actor:     "system",
			Action:    core.ActionIngestion,
			Detail:    fmt.Sprintf("Ingested %d new emails (%d duplicates skipped)", result.Created, result.Duplicates),
		}
		if err := p.store.AppendAudit(ctx, entry); err != nil {
			return result, fmt.Errorf("failed to append ingestion audit entry: %w", err)
		}
	}

	p.logger.Info("Batch processed",
		zap.Int("created", result.Created),
		zap.Int("duplicates", result.Duplicates),
		zap.Int("failed", result.Failed))

	return result, nil
}

// ProcessMessage ingests a single message with a fresh rules and
// settings snapshot. Used by the push-ingestion gateway.
func (p *Pipeline) ProcessMessage(ctx context.Context, msg *core.RawMessage) (*core.Email, bool, error) {
	rulePtrs, err := p.store.ListRules(ctx, true)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load custom rules: %w", err)
	}
	rules := make([]core.CustomRule, len(rulePtrs))
	for i, r := range rulePtrs {
		rules[i] = *r
	}
	settings, err := p.store.GetSettings(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load settings: %w", err)
	}

	email, indicators, err := p.classify(ctx, msg, rules, settings)
	if err != nil {
		return nil, false, err
	}
	return p.store.UpsertEmail(ctx, email, indicators)
}

// processMessage returns the created email id, or "" for a duplicate.
func (p *Pipeline) processMessage(ctx context.Context, msg *core.RawMessage, rules []core.CustomRule, settings core.Settings) (string, error) {
	if msg.MessageID == "" {
		return "", core.ValidationErrorf("message has no message id")
	}

	email, indicators, err := p.classify(ctx, msg, rules, settings)
	if err != nil {
		return "", err
	}

	stored, created, err := p.store.UpsertEmail(ctx, email, indicators)
	if err != nil {
		return "", core.TransientErrorf("failed to persist email %s: %v", email.ID, err)
	}
	if !created {
		p.logger.Debug("Duplicate message skipped",
			zap.String("message_id", msg.MessageID),
			zap.String("email_id", stored.ID))
		return "", nil
	}
	return stored.ID, nil
}

func (p *Pipeline) classify(ctx context.Context, msg *core.RawMessage, rules []core.CustomRule, settings core.Settings) (*core.Email, []core.ThreatIndicator, error) {
	normalized := p.normalizer.Normalize(msg)

	verdict, err := p.classifier.Classify(ctx, normalized, rules, settings)
	if err != nil {
		return nil, nil, fmt.Errorf("classification failed for %s: %w", msg.MessageID, err)
	}

	now := p.clock.Now()
	email := &core.Email{
		ID:              core.EmailIDFor(msg.MessageID),
		MessageID:       msg.MessageID,
		MailboxAddress:  normalized.MailboxAddress,
		Sender:          normalized.Sender,
		SenderDomain:    normalized.SenderDomain,
		Recipient:       normalized.Recipient,
		Subject:         normalized.Subject,
		ReceivedAt:      normalized.ReceivedAt,
		BodyText:        normalized.BodyText,
		BodyHTML:        normalized.BodyHTML,
		AICategory:      verdict.Category,
		ConfidenceScore: verdict.RawScore,
		Reasoning:       verdict.Reasoning,
		ReviewStatus:    core.ReviewPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	return email, buildIndicators(email.ID, normalized, verdict.Category), nil
}

// buildIndicators turns the extracted URLs, domains and IPs into threat
// indicator rows. IsMalicious snapshots whether the email was classified
// as anything other than safe.
func buildIndicators(emailID string, msg *core.NormalizedMessage, category core.Category) []core.ThreatIndicator {
	malicious := category != core.CategorySafe

	var out []core.ThreatIndicator
	add := func(t core.IndicatorType, values []string) {
		for _, v := range values {
			out = append(out, core.ThreatIndicator{
				EmailID:     emailID,
				Type:        t,
				Value:       v,
				IsMalicious: malicious,
			})
		}
	}
	add(core.IndicatorURL, msg.URLs)
	add(core.IndicatorDomain, msg.Domains)
	add(core.IndicatorIP, msg.IPs)
	return out
}
