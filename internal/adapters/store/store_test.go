package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/phishdefender/phishdefender/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// The memory and sqlite backends run the same behavioral suite.
func runStoreSuite(t *testing.T, open func(t *testing.T) core.Store) {
	t.Run("UpsertDeduplicates", func(t *testing.T) { testUpsertDeduplicates(t, open(t)) })
	t.Run("GetEmailNotFound", func(t *testing.T) { testGetEmailNotFound(t, open(t)) })
	t.Run("ListEmailsFilters", func(t *testing.T) { testListEmailsFilters(t, open(t)) })
	t.Run("SimilarEmails", func(t *testing.T) { testSimilarEmails(t, open(t)) })
	t.Run("UpdateReview", func(t *testing.T) { testUpdateReview(t, open(t)) })
	t.Run("AuditTrail", func(t *testing.T) { testAuditTrail(t, open(t)) })
	t.Run("Rules", func(t *testing.T) { testRules(t, open(t)) })
	t.Run("Cursors", func(t *testing.T) { testCursors(t, open(t)) })
	t.Run("Settings", func(t *testing.T) { testSettings(t, open(t)) })
}

func TestMemoryStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) core.Store {
		return NewMemoryStore(zap.NewNop())
	})
}

func TestSQLiteStore(t *testing.T) {
	runStoreSuite(t, func(t *testing.T) core.Store {
		path := filepath.Join(t.TempDir(), "test.db")
		st, err := NewSQLiteStore(path, zap.NewNop())
		require.NoError(t, err)
		t.Cleanup(func() { st.Close() })
		return st
	})
}

func sampleEmail(messageID string, category core.Category, receivedAt time.Time) *core.Email {
	now := time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)
	return &core.Email{
		ID:              core.EmailIDFor(messageID),
		MessageID:       messageID,
		MailboxAddress:  "phishing@corp.example",
		Sender:          "sender@evil.test",
		SenderDomain:    "evil.test",
		Recipient:       "phishing@corp.example",
		Subject:         "subject " + messageID,
		ReceivedAt:      receivedAt,
		BodyText:        "body",
		AICategory:      category,
		ConfidenceScore: 0.5,
		Reasoning:       []string{"reason one", "reason two"},
		ReviewStatus:    core.ReviewPending,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
}

func testUpsertDeduplicates(t *testing.T, st core.Store) {
	ctx := context.Background()
	received := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	email := sampleEmail("m1", core.CategoryHighMalicious, received)
	indicators := []core.ThreatIndicator{
		{Type: core.IndicatorURL, Value: "https://evil.test/login", IsMalicious: true},
		{Type: core.IndicatorDomain, Value: "evil.test", IsMalicious: true},
	}

	stored, created, err := st.UpsertEmail(ctx, email, indicators)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, email.ID, stored.ID)
	assert.Len(t, stored.Indicators, 2)
	assert.Equal(t, []string{"reason one", "reason two"}, stored.Reasoning)

	// Same id again: record and indicators unchanged
	replay := sampleEmail("m1", core.CategorySafe, received)
	replay.Subject = "different subject"
	stored, created, err = st.UpsertEmail(ctx, replay, nil)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, "subject m1", stored.Subject)
	assert.Equal(t, core.CategoryHighMalicious, stored.AICategory)
	assert.Len(t, stored.Indicators, 2)
}

func testGetEmailNotFound(t *testing.T, st core.Store) {
	_, err := st.GetEmail(context.Background(), "nope")
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func testListEmailsFilters(t *testing.T, st core.Store) {
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	for i, category := range []core.Category{
		core.CategoryHighMalicious, core.CategoryLowMalicious, core.CategorySafe,
	} {
		email := sampleEmail(string(rune('a'+i)), category, base.Add(time.Duration(i)*time.Hour))
		_, _, err := st.UpsertEmail(ctx, email, nil)
		require.NoError(t, err)
	}

	emails, total, err := st.ListEmails(ctx, core.EmailFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, emails, 3)
	// Newest received first
	assert.True(t, emails[0].ReceivedAt.After(emails[1].ReceivedAt))

	emails, total, err = st.ListEmails(ctx, core.EmailFilter{
		Category: core.CategoryHighMalicious, Page: 1, PageSize: 10,
	})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, emails, 1)
	assert.Equal(t, core.CategoryHighMalicious, emails[0].AICategory)

	// Pagination
	emails, total, err = st.ListEmails(ctx, core.EmailFilter{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Len(t, emails, 1)

	// Search on subject
	emails, _, err = st.ListEmails(ctx, core.EmailFilter{Search: "subject b", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, emails, 1)
}

func testSimilarEmails(t *testing.T, st core.Store) {
	ctx := context.Background()
	base := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)

	first := sampleEmail("s1", core.CategoryHighMalicious, base)
	second := sampleEmail("s2", core.CategoryHighMalicious, base.Add(time.Hour))
	other := sampleEmail("s3", core.CategorySafe, base.Add(2*time.Hour))
	other.Sender = "newsletter@benign.example"
	other.SenderDomain = "benign.example"
	for _, email := range []*core.Email{first, second, other} {
		_, _, err := st.UpsertEmail(ctx, email, nil)
		require.NoError(t, err)
	}

	ids, err := st.ListSimilarEmailIDs(ctx, first.ID, first.SenderDomain, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{second.ID}, ids, "same domain only, excluding the email itself")

	ids, err = st.ListSimilarEmailIDs(ctx, other.ID, other.SenderDomain, 10)
	require.NoError(t, err)
	assert.Empty(t, ids)

	// Newest received first, capped at limit
	third := sampleEmail("s4", core.CategoryHighMalicious, base.Add(3*time.Hour))
	_, _, err = st.UpsertEmail(ctx, third, nil)
	require.NoError(t, err)

	ids, err = st.ListSimilarEmailIDs(ctx, first.ID, first.SenderDomain, 1)
	require.NoError(t, err)
	assert.Equal(t, []string{third.ID}, ids)
}

func testUpdateReview(t *testing.T, st core.Store) {
	ctx := context.Background()
	email := sampleEmail("m2", core.CategoryLowMalicious, time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC))
	_, _, err := st.UpsertEmail(ctx, email, nil)
	require.NoError(t, err)

	reviewedAt := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	email.AnalystCategory = core.CategorySafe
	email.ReviewStatus = core.ReviewOverridden
	email.ReviewedBy = "analyst@corp.example"
	email.ReviewedAt = &reviewedAt
	require.NoError(t, st.UpdateReview(ctx, email))

	stored, err := st.GetEmail(ctx, email.ID)
	require.NoError(t, err)
	assert.Equal(t, core.CategorySafe, stored.AnalystCategory)
	assert.Equal(t, core.ReviewOverridden, stored.ReviewStatus)
	assert.Equal(t, "analyst@corp.example", stored.ReviewedBy)
	require.NotNil(t, stored.ReviewedAt)
	assert.True(t, stored.ReviewedAt.Equal(reviewedAt))

	// Effective-category filter follows the analyst override
	emails, _, err := st.ListEmails(ctx, core.EmailFilter{Category: core.CategorySafe, Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Len(t, emails, 1)

	missing := sampleEmail("ghost", core.CategorySafe, time.Now().UTC())
	assert.ErrorIs(t, st.UpdateReview(ctx, missing), core.ErrNotFound)
}

func testAuditTrail(t *testing.T, st core.Store) {
	ctx := context.Background()
	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	entries := []*core.AuditEntry{
		{ID: "e1", Timestamp: base, Actor: "alice", Action: core.ActionOverride, EmailID: "em1", Detail: "first"},
		{ID: "e2", Timestamp: base.Add(time.Minute), Actor: "bob", Action: core.ActionBulkReview, EmailID: "em1", Detail: "second"},
		{ID: "e3", Timestamp: base.Add(2 * time.Minute), Actor: "alice", Action: core.ActionJobPause, Detail: "third"},
	}
	for _, entry := range entries {
		require.NoError(t, st.AppendAudit(ctx, entry))
	}

	listed, total, err := st.ListAudit(ctx, core.AuditFilter{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, listed, 3)
	assert.Equal(t, "e3", listed[0].ID, "newest first")

	listed, total, err = st.ListAudit(ctx, core.AuditFilter{Actor: "alice", Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, total)

	listed, _, err = st.ListAudit(ctx, core.AuditFilter{Action: core.ActionBulkReview, Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, "e2", listed[0].ID)

	trail, err := st.ListEmailAudit(ctx, "em1")
	require.NoError(t, err)
	require.Len(t, trail, 2)
	assert.Equal(t, "e1", trail[0].ID, "oldest first")
}

func testRules(t *testing.T, st core.Store) {
	ctx := context.Background()
	base := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

	active := &core.CustomRule{
		ID: "r1", Type: core.RuleDomain, Value: "evil.test",
		ForceCategory: core.CategoryHighMalicious, Active: true, CreatedAt: base,
	}
	inactive := &core.CustomRule{
		ID: "r2", Type: core.RuleKeyword, Value: "lottery",
		ForceCategory: core.CategoryLowMalicious, Active: false, CreatedAt: base.Add(time.Minute),
	}
	require.NoError(t, st.CreateRule(ctx, active))
	require.NoError(t, st.CreateRule(ctx, inactive))

	all, err := st.ListRules(ctx, false)
	require.NoError(t, err)
	assert.Len(t, all, 2)
	assert.Equal(t, "r1", all[0].ID, "oldest first")

	activeOnly, err := st.ListRules(ctx, true)
	require.NoError(t, err)
	require.Len(t, activeOnly, 1)
	assert.Equal(t, "r1", activeOnly[0].ID)

	require.NoError(t, st.DeleteRule(ctx, "r1"))
	assert.ErrorIs(t, st.DeleteRule(ctx, "r1"), core.ErrNotFound)
}

func testCursors(t *testing.T, st core.Store) {
	ctx := context.Background()

	_, err := st.GetCursor(ctx, "phishing@corp.example")
	assert.ErrorIs(t, err, core.ErrNotFound)

	polled := time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	cursor := &core.MailboxCursor{
		MailboxAddress: "phishing@corp.example",
		DeltaToken:     "token-1",
		LastPolledAt:   &polled,
	}
	require.NoError(t, st.CommitCursor(ctx, cursor))

	cursor.DeltaToken = "token-2"
	cursor.LastError = "timeout"
	require.NoError(t, st.CommitCursor(ctx, cursor))

	stored, err := st.GetCursor(ctx, "phishing@corp.example")
	require.NoError(t, err)
	assert.Equal(t, "token-2", stored.DeltaToken)
	assert.Equal(t, "timeout", stored.LastError)

	require.NoError(t, st.CommitCursor(ctx, &core.MailboxCursor{MailboxAddress: "abuse@corp.example"}))
	cursors, err := st.ListCursors(ctx)
	require.NoError(t, err)
	require.Len(t, cursors, 2)
	assert.Equal(t, "abuse@corp.example", cursors[0].MailboxAddress)
}

func testSettings(t *testing.T, st core.Store) {
	ctx := context.Background()

	settings, err := st.GetSettings(ctx)
	require.NoError(t, err)
	defaults := core.DefaultSettings()
	assert.Equal(t, defaults.HighThreshold, settings.HighThreshold)
	assert.Equal(t, defaults.LowThreshold, settings.LowThreshold)

	settings.HighThreshold = 0.9
	settings.LowThreshold = 0.4
	settings.NotifyDailyDigest = true
	settings.UpdatedAt = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)
	require.NoError(t, st.SaveSettings(ctx, settings))

	stored, err := st.GetSettings(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0.9, stored.HighThreshold)
	assert.Equal(t, 0.4, stored.LowThreshold)
	assert.True(t, stored.NotifyDailyDigest)
}
