package sched_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/phishdefender/phishdefender/internal/adapters/store"
	"github.com/phishdefender/phishdefender/internal/core"
	"github.com/phishdefender/phishdefender/internal/ingest"
	"github.com/phishdefender/phishdefender/internal/normalize"
	"github.com/phishdefender/phishdefender/internal/sched"
	"github.com/phishdefender/phishdefender/internal/scoring"
	"github.com/phishdefender/phishdefender/internal/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type slowSource struct {
	mu      sync.Mutex
	fetches int
	delay   time.Duration
	release chan struct{}
}

func (s *slowSource) FetchDelta(ctx context.Context, _, _ string) ([]*core.RawMessage, string, error) {
	s.mu.Lock()
	s.fetches++
	s.mu.Unlock()
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	} else if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return nil, "token", nil
}

func (s *slowSource) MarkRead(context.Context, string, string) error { return nil }

func (s *slowSource) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func newTestController(t *testing.T, source core.MailSource, mailboxes ...string) (*sched.Controller, core.Store) {
	t.Helper()
	logger := zap.NewNop()
	st := store.NewMemoryStore(logger)
	engine := scoring.NewEngine(nil, nil, logger)
	normalizer := normalize.New(utils.NewTextProcessor(logger), logger)
	clock := core.SystemClock{}
	pipeline := ingest.NewPipeline(normalizer, scoring.NewHeuristicClassifier(engine), st, clock, logger)
	poller := ingest.NewPoller(source, pipeline, st, clock, time.Minute, logger)
	if len(mailboxes) == 0 {
		mailboxes = []string{"phishing@corp.example"}
	}
	return sched.NewController(poller, st, clock, mailboxes, time.Hour, logger), st
}

func startController(t *testing.T, c *sched.Controller) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		c.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Error("controller did not stop")
		}
	})
	return cancel
}

func waitForIdle(t *testing.T, c *sched.Controller) sched.Status {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		status, err := c.GetStatus(context.Background())
		require.NoError(t, err)
		if len(status.InFlight) == 0 {
			return status
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatal("controller never went idle")
	return sched.Status{}
}

func TestPauseResumeAudited(t *testing.T) {
	controller, st := newTestController(t, &slowSource{})
	startController(t, controller)
	ctx := context.Background()

	status, accepted, err := controller.Pause(ctx, "analyst@corp.example")
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.True(t, status.Paused)

	// Pausing twice is refused and not audited again
	_, accepted, err = controller.Pause(ctx, "analyst@corp.example")
	require.NoError(t, err)
	assert.False(t, accepted)

	status, accepted, err = controller.Resume(ctx, "analyst@corp.example")
	require.NoError(t, err)
	assert.True(t, accepted)
	assert.False(t, status.Paused)

	entries, total, err := st.ListAudit(ctx, core.AuditFilter{Actor: "analyst@corp.example"})
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	actions := []core.AuditAction{entries[0].Action, entries[1].Action}
	assert.Contains(t, actions, core.ActionJobPause)
	assert.Contains(t, actions, core.ActionJobResume)
}

func TestTriggerRunsOneCycle(t *testing.T) {
	source := &slowSource{}
	controller, _ := newTestController(t, source)
	startController(t, controller)
	ctx := context.Background()

	_, accepted, err := controller.Trigger(ctx, "analyst@corp.example")
	require.NoError(t, err)
	assert.True(t, accepted)

	waitForIdle(t, controller)
	assert.Equal(t, 1, source.fetchCount())
}

func TestTriggerWhilePausedStaysPaused(t *testing.T) {
	source := &slowSource{}
	controller, _ := newTestController(t, source)
	startController(t, controller)
	ctx := context.Background()

	_, _, err := controller.Pause(ctx, "a")
	require.NoError(t, err)

	_, accepted, err := controller.Trigger(ctx, "a")
	require.NoError(t, err)
	assert.True(t, accepted, "manual trigger runs even while paused")

	status := waitForIdle(t, controller)
	assert.True(t, status.Paused)
	assert.Equal(t, 1, source.fetchCount())
}

func TestTriggerRefusedWhileCycleInFlight(t *testing.T) {
	source := &slowSource{release: make(chan struct{})}
	controller, st := newTestController(t, source)
	startController(t, controller)
	ctx := context.Background()

	_, accepted, err := controller.Trigger(ctx, "a")
	require.NoError(t, err)
	require.True(t, accepted)

	// Wait until the cycle is visibly in flight
	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err := controller.GetStatus(ctx)
		require.NoError(t, err)
		if len(status.InFlight) == 1 {
			break
		}
		require.True(t, time.Now().Before(deadline), "cycle never started")
		time.Sleep(5 * time.Millisecond)
	}

	_, accepted, err = controller.Trigger(ctx, "a")
	require.NoError(t, err)
	assert.False(t, accepted, "overlapping cycles for a mailbox are refused")

	close(source.release)
	waitForIdle(t, controller)
	assert.Equal(t, 1, source.fetchCount())

	// Only the accepted trigger is audited
	_, total, err := st.ListAudit(ctx, core.AuditFilter{Action: core.ActionJobTrigger})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

// mailboxSource blocks fetches for one mailbox until released and
// records which mailboxes were fetched.
type mailboxSource struct {
	mu      sync.Mutex
	fetched map[string]int
	block   string
	release chan struct{}
}

func (s *mailboxSource) FetchDelta(ctx context.Context, mailbox, _ string) ([]*core.RawMessage, string, error) {
	s.mu.Lock()
	if s.fetched == nil {
		s.fetched = make(map[string]int)
	}
	s.fetched[mailbox]++
	s.mu.Unlock()
	if mailbox == s.block {
		select {
		case <-s.release:
		case <-ctx.Done():
			return nil, "", ctx.Err()
		}
	}
	return nil, "token", nil
}

func (s *mailboxSource) MarkRead(context.Context, string, string) error { return nil }

func (s *mailboxSource) fetchCount(mailbox string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetched[mailbox]
}

func TestTriggerStartsIdleMailboxesWhileOneBusy(t *testing.T) {
	source := &mailboxSource{block: "abuse@corp.example", release: make(chan struct{})}
	controller, _ := newTestController(t, source,
		"abuse@corp.example", "phishing@corp.example")
	startController(t, controller)
	ctx := context.Background()

	_, accepted, err := controller.Trigger(ctx, "a")
	require.NoError(t, err)
	require.True(t, accepted)

	// Wait until the fast mailbox has finished and only the blocked one
	// remains in flight
	deadline := time.Now().Add(5 * time.Second)
	for {
		status, err := controller.GetStatus(ctx)
		require.NoError(t, err)
		if len(status.InFlight) == 1 && status.InFlight[0] == "abuse@corp.example" {
			break
		}
		require.True(t, time.Now().Before(deadline), "blocked mailbox never left in flight alone")
		time.Sleep(5 * time.Millisecond)
	}

	// A trigger during the long cycle still runs the idle mailbox
	_, accepted, err = controller.Trigger(ctx, "a")
	require.NoError(t, err)
	assert.True(t, accepted, "an idle mailbox can start while another is busy")

	deadline = time.Now().Add(5 * time.Second)
	for source.fetchCount("phishing@corp.example") < 2 {
		require.True(t, time.Now().Before(deadline), "idle mailbox never restarted")
		time.Sleep(5 * time.Millisecond)
	}

	close(source.release)
	waitForIdle(t, controller)
	assert.Equal(t, 1, source.fetchCount("abuse@corp.example"), "busy mailbox is not restarted")
	assert.Equal(t, 2, source.fetchCount("phishing@corp.example"))
}

func TestStatusReportsState(t *testing.T) {
	controller, _ := newTestController(t, &slowSource{})
	startController(t, controller)
	ctx := context.Background()

	status, err := controller.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, sched.StateIdle, status.State)
	assert.Equal(t, []string{"phishing@corp.example"}, status.Mailboxes)

	_, _, err = controller.Pause(ctx, "a")
	require.NoError(t, err)

	status, err = controller.GetStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, sched.StatePaused, status.State)
}
