package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/phishdefender/phishdefender/internal/core"
	"go.uber.org/zap"
)

// Poller runs one delta-query ingestion cycle for a mailbox: fetch the
// batch after the stored cursor, run it through the pipeline, then
// commit the new continuation token. The token only advances after the
// whole batch has persisted, so a crash mid-batch replays messages and
// the upsert absorbs the duplicates.
type Poller struct {
	source       core.MailSource
	pipeline     *Pipeline
	store        core.Store
	clock        core.Clock
	cycleTimeout time.Duration
	logger       *zap.Logger
}

// NewPoller creates a new mailbox poller
func NewPoller(source core.MailSource, pipeline *Pipeline, store core.Store, clock core.Clock, cycleTimeout time.Duration, logger *zap.Logger) *Poller {
	return &Poller{
		source:       source,
		pipeline:     pipeline,
		store:        store,
		clock:        clock,
		cycleTimeout: cycleTimeout,
		logger:       logger,
	}
}

// Poll runs one ingestion cycle for the mailbox and returns the batch
// result. Fetch and pipeline failures are recorded on the cursor without
// advancing its token.
func (p *Poller) Poll(ctx context.Context, mailbox string) (*BatchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cycleTimeout)
	defer cancel()

	cursor, err := p.store.GetCursor(ctx, mailbox)
	if err != nil {
		if !errors.Is(err, core.ErrNotFound) {
			return nil, fmt.Errorf("failed to load cursor for %s: %w", mailbox, err)
		}
		cursor = &core.MailboxCursor{MailboxAddress: mailbox}
	}

	messages, nextToken, err := p.source.FetchDelta(ctx, mailbox, cursor.DeltaToken)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = core.TransientErrorf("delta fetch timed out for %s", mailbox)
		}
		p.recordFailure(ctx, cursor, err)
		return nil, err
	}

	result, err := p.pipeline.ProcessBatch(ctx, messages)
	if err != nil {
		p.recordFailure(ctx, cursor, err)
		return nil, err
	}

	// Mark-read is best effort once the batch has persisted
	for _, msg := range messages {
		if err := p.source.MarkRead(ctx, mailbox, msg.MessageID); err != nil {
			p.logger.Warn("Failed to mark message read",
				zap.String("mailbox", mailbox),
				zap.String("message_id", msg.MessageID),
				zap.Error(err))
		}
	}

	now := p.clock.Now()
	cursor.DeltaToken = nextToken
	cursor.LastPolledAt = &now
	cursor.LastError = ""
	if err := p.store.CommitCursor(ctx, cursor); err != nil {
		return result, fmt.Errorf("failed to commit cursor for %s: %w", mailbox, err)
	}

	p.logger.Info("Mailbox cycle complete",
		zap.String("mailbox", mailbox),
		zap.Int("fetched", len(messages)),
		zap.Int("created", result.Created),
		zap.Int("duplicates", result.Duplicates))

	return result, nil
}

// recordFailure stores the error on the cursor without touching the
// delta token, so the next cycle retries the same window.
func (p *Poller) recordFailure(ctx context.Context, cursor *core.MailboxCursor, cause error) {
	now := p.clock.Now()
	cursor.LastPolledAt = &now
	cursor.LastError = cause.Error()

	// The cycle context may already be dead
	commitCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := p.store.CommitCursor(commitCtx, cursor); err != nil {
		p.logger.Error("Failed to record cursor failure",
			zap.String("mailbox", cursor.MailboxAddress),
			zap.Error(err))
	}
}
