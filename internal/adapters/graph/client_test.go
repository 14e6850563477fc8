package graph

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phishdefender/phishdefender/internal/core"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func responseWithStatus(t *testing.T, status int, headers map[string]string) *http.Response {
	t.Helper()
	rec := httptest.NewRecorder()
	for k, v := range headers {
		rec.Header().Set(k, v)
	}
	rec.WriteHeader(status)
	return rec.Result()
}

func TestCheckStatusMapsTaxonomy(t *testing.T) {
	assert.NoError(t, checkStatus(responseWithStatus(t, http.StatusOK, nil)))

	err := checkStatus(responseWithStatus(t, http.StatusUnauthorized, nil))
	assert.ErrorIs(t, err, core.ErrAuth)

	err = checkStatus(responseWithStatus(t, http.StatusForbidden, nil))
	assert.ErrorIs(t, err, core.ErrAuth)

	err = checkStatus(responseWithStatus(t, http.StatusTooManyRequests, map[string]string{"Retry-After": "30"}))
	assert.ErrorIs(t, err, core.ErrRateLimited)
	assert.Contains(t, err.Error(), "30")

	err = checkStatus(responseWithStatus(t, http.StatusBadGateway, nil))
	assert.ErrorIs(t, err, core.ErrTransient)

	err = checkStatus(responseWithStatus(t, http.StatusNotFound, nil))
	assert.ErrorIs(t, err, core.ErrNotFound)
}

func TestToRawMessagePrefersInternetMessageID(t *testing.T) {
	received := time.Date(2026, 4, 2, 8, 0, 0, 0, time.UTC)
	gm := graphMessage{
		ID:               "graph-abc",
		InternetMsgID:    "<m1@evil.test>",
		Subject:          "hello",
		ReceivedDateTime: received,
		From:             &graphAddress{},
		Body:             &graphBody{ContentType: "html", Content: "<p>hi</p>"},
	}
	gm.From.EmailAddress.Address = "attacker@evil.test"

	msg := toRawMessage("phishing@corp.example", gm)
	require.NotNil(t, msg)
	assert.Equal(t, "<m1@evil.test>", msg.MessageID)
	assert.Equal(t, "attacker@evil.test", msg.Sender)
	assert.Equal(t, "phishing@corp.example", msg.Mailbox)
	assert.Equal(t, "<p>hi</p>", msg.BodyHTML)
	assert.Empty(t, msg.BodyText)
	assert.Equal(t, received, msg.ReceivedAt)
}

func TestToRawMessageFallsBackToGraphID(t *testing.T) {
	gm := graphMessage{
		ID:   "graph-abc",
		Body: &graphBody{ContentType: "text", Content: "plain body"},
	}
	msg := toRawMessage("phishing@corp.example", gm)
	require.NotNil(t, msg)
	assert.Equal(t, "graph-abc", msg.MessageID)
	assert.Equal(t, "plain body", msg.BodyText)

	assert.Nil(t, toRawMessage("phishing@corp.example", graphMessage{}))
}
