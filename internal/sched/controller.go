package sched

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/phishdefender/phishdefender/internal/core"
	"github.com/phishdefender/phishdefender/internal/ingest"
	"go.uber.org/zap"
)

// JobState is the scheduler's externally visible state.
type JobState string

const (
	StateIdle    JobState = "idle"
	StateRunning JobState = "running"
	StatePaused  JobState = "paused"
	StateError   JobState = "error"
)

// Status is a snapshot of the polling job.
type Status struct {
	State       JobState   `json:"state"`
	Paused      bool       `json:"paused"`
	Mailboxes   []string   `json:"mailboxes"`
	InFlight    []string   `json:"in_flight"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	LastError   string     `json:"last_error,omitempty"`
	LastCreated int        `json:"last_created"`
}

type commandKind int

const (
	cmdPause commandKind = iota
	cmdResume
	cmdTrigger
	cmdStatus
)

type command struct {
	kind  commandKind
	actor string
	reply chan commandReply
}

type commandReply struct {
	status   Status
	accepted bool
}

type cycleResult struct {
	mailbox string
	created int
	err     error
}

// Controller owns the periodic polling loop over the configured
// mailboxes. All mutable state lives in the run goroutine; pause,
// resume, trigger and status requests arrive over a command channel, so
// a cycle is never started for a mailbox that already has one in
// flight.
type Controller struct {
	poller    *ingest.Poller
	store     core.AuditStore
	clock     core.Clock
	mailboxes []string
	interval  time.Duration
	logger    *zap.Logger

	commands chan command
	done     chan struct{}
}

// NewController creates a new scheduler controller
func NewController(poller *ingest.Poller, store core.AuditStore, clock core.Clock, mailboxes []string, interval time.Duration, logger *zap.Logger) *Controller {
	return &Controller{
		poller:    poller,
		store:     store,
		clock:     clock,
		mailboxes: mailboxes,
		interval:  interval,
		logger:    logger,
		commands:  make(chan command, 16),
		done:      make(chan struct{}),
	}
}

// Run drives the polling loop until ctx is cancelled. It blocks, so
// callers start it in its own goroutine.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	paused := false
	running := make(map[string]bool)
	results := make(chan cycleResult, len(c.mailboxes)+1)

	var lastRunAt *time.Time
	lastError := ""
	lastCreated := 0

	startCycle := func(mailbox string) {
		running[mailbox] = true
		go func() {
			result, err := c.poller.Poll(ctx, mailbox)
			created := 0
			if result != nil {
				created = result.Created
			}
			results <- cycleResult{mailbox: mailbox, created: created, err: err}
		}()
	}

	startAll := func() {
		for _, mailbox := range c.mailboxes {
			if running[mailbox] {
				c.logger.Warn("Skipping mailbox, previous cycle still running",
					zap.String("mailbox", mailbox))
				continue
			}
			startCycle(mailbox)
		}
	}

	snapshot := func() Status {
		state := StateIdle
		switch {
		case len(running) > 0:
			state = StateRunning
		case paused:
			state = StatePaused
		case lastError != "":
			state = StateError
		}
		inFlight := make([]string, 0, len(running))
		for mailbox := range running {
			inFlight = append(inFlight, mailbox)
		}
		return Status{
			State:       state,
			Paused:      paused,
			Mailboxes:   c.mailboxes,
			InFlight:    inFlight,
			LastRunAt:   lastRunAt,
			LastError:   lastError,
			LastCreated: lastCreated,
		}
	}

	for {
		select {
		case <-ctx.Done():
			// Drain in-flight cycles before shutting down
			for len(running) > 0 {
				res := <-results
				delete(running, res.mailbox)
			}
			return

		case <-ticker.C:
			if paused {
				continue
			}
			startAll()

		case res := <-results:
			delete(running, res.mailbox)
			now := c.clock.Now()
			lastRunAt = &now
			if res.err != nil {
				lastError = res.err.Error()
				c.logger.Error("Mailbox cycle failed",
					zap.String("mailbox", res.mailbox),
					zap.Error(res.err))
			} else {
				lastError = ""
				lastCreated = res.created
			}

		case cmd := <-c.commands:
			switch cmd.kind {
			case cmdPause:
				accepted := !paused
				if accepted {
					paused = true
					c.audit(ctx, cmd.actor, core.ActionJobPause, "Polling paused")
				}
				cmd.reply <- commandReply{status: snapshot(), accepted: accepted}

			case cmdResume:
				accepted := paused
				if accepted {
					paused = false
					c.audit(ctx, cmd.actor, core.ActionJobResume, "Polling resumed")
				}
				cmd.reply <- commandReply{status: snapshot(), accepted: accepted}

			case cmdTrigger:
				// One manual cycle; a pause stays in effect afterwards.
				// Busy mailboxes are skipped by startAll, so the trigger
				// is refused only when every mailbox is in flight.
				accepted := len(running) < len(c.mailboxes)
				if accepted {
					c.audit(ctx, cmd.actor, core.ActionJobTrigger, "Manual polling cycle triggered")
					startAll()
				}
				cmd.reply <- commandReply{status: snapshot(), accepted: accepted}

			case cmdStatus:
				cmd.reply <- commandReply{status: snapshot(), accepted: true}
			}
		}
	}
}

// Pause suspends scheduled cycles. Returns false if already paused.
func (c *Controller) Pause(ctx context.Context, actor string) (Status, bool, error) {
	return c.send(ctx, command{kind: cmdPause, actor: actor})
}

// Resume re-enables scheduled cycles. Returns false if not paused.
func (c *Controller) Resume(ctx context.Context, actor string) (Status, bool, error) {
	return c.send(ctx, command{kind: cmdResume, actor: actor})
}

// Trigger starts one immediate cycle for every idle mailbox, whether or
// not the scheduler is paused. Mailboxes with a cycle already in flight
// are skipped; returns false when no mailbox could start.
func (c *Controller) Trigger(ctx context.Context, actor string) (Status, bool, error) {
	return c.send(ctx, command{kind: cmdTrigger, actor: actor})
}

// GetStatus returns a snapshot of the job state.
func (c *Controller) GetStatus(ctx context.Context) (Status, error) {
	status, _, err := c.send(ctx, command{kind: cmdStatus})
	return status, err
}

func (c *Controller) send(ctx context.Context, cmd command) (Status, bool, error) {
	cmd.reply = make(chan commandReply, 1)
	select {
	case c.commands <- cmd:
	case <-c.done:
		return Status{}, false, core.TransientErrorf("scheduler is not running")
	case <-ctx.Done():
		return Status{}, false, ctx.Err()
	}
	select {
	case reply := <-cmd.reply:
		return reply.status, reply.accepted, nil
	case <-c.done:
		return Status{}, false, core.TransientErrorf("scheduler is not running")
	case <-ctx.Done():
		return Status{}, false, ctx.Err()
	}
}

func (c *Controller) audit(ctx context.Context, actor string, action core.AuditAction, detail string) {
	if actor == "" {
		actor = "system"
	}
	entry := &core.AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: c.clock.Now(),
		Actor:     actor,
		Action:    action,
		Detail:    detail,
	}
	if err := c.store.AppendAudit(ctx, entry); err != nil {
		c.logger.Error("Failed to append scheduler audit entry", zap.Error(err))
	}
}
