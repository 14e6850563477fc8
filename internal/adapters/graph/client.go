package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/phishdefender/phishdefender/internal/core"
	"go.uber.org/zap"
	"golang.org/x/oauth2/clientcredentials"
)

const tokenURLFormat = "https://login.microsoftonline.com/%s/oauth2/v2.0/token"

// Client fetches messages from shared mailboxes through the Microsoft
// Graph API using delta queries. The OAuth2 client-credentials flow
// handles token acquisition and refresh transparently.
type Client struct {
	httpClient *http.Client
	baseURL    string
	pageSize   int
	logger     *zap.Logger

	// Maps internet message ids to Graph resource ids for mark-read,
	// populated during delta fetches.
	mu       sync.Mutex
	graphIDs map[string]string
}

// NewClient creates a new Graph API client
func NewClient(tenantID, clientID, clientSecret, baseURL string, pageSize int, logger *zap.Logger) *Client {
	creds := &clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     fmt.Sprintf(tokenURLFormat, tenantID),
		Scopes:       []string{"https://graph.microsoft.com/.default"},
	}
	httpClient := creds.Client(context.Background())
	httpClient.Timeout = 60 * time.Second

	if pageSize <= 0 {
		pageSize = 50
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		pageSize:   pageSize,
		logger:     logger,
		graphIDs:   make(map[string]string),
	}
}

type deltaPage struct {
	Value     []graphMessage `json:"value"`
	NextLink  string         `json:"@odata.nextLink"`
	DeltaLink string         `json:"@odata.deltaLink"`
}

type graphMessage struct {
	ID               string        `json:"id"`
	InternetMsgID    string        `json:"internetMessageId"`
	Subject          string        `json:"subject"`
	ReceivedDateTime time.Time     `json:"receivedDateTime"`
	From             *graphAddress `json:"from"`
	Body             *graphBody    `json:"body"`
	IsRead           bool          `json:"isRead"`
}

type graphAddress struct {
	EmailAddress struct {
		Name    string `json:"name"`
		Address string `json:"address"`
	} `json:"emailAddress"`
}

type graphBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

// FetchDelta returns the messages that changed since the stored delta
// token, following continuation pages until the service hands back a
// delta link. An empty token starts a full enumeration of the inbox.
func (c *Client) FetchDelta(ctx context.Context, mailbox, deltaToken string) ([]*core.RawMessage, string, error) {
	next := deltaToken
	if next == "" {
		next = fmt.Sprintf("%s/users/%s/mailFolders/inbox/messages/delta?$top=%d&$select=%s",
			c.baseURL, url.PathEscape(mailbox), c.pageSize,
			"id,internetMessageId,subject,receivedDateTime,from,body,isRead")
	}

	var messages []*core.RawMessage
	for next != "" {
		page, err := c.fetchPage(ctx, next)
		if err != nil {
			return nil, "", err
		}
		for _, gm := range page.Value {
			msg := toRawMessage(mailbox, gm)
			if msg == nil {
				c.logger.Warn("Skipping message without id",
					zap.String("mailbox", mailbox),
					zap.String("graph_id", gm.ID))
				continue
			}
			c.rememberGraphID(msg.MessageID, gm.ID)
			messages = append(messages, msg)
		}
		if page.DeltaLink != "" {
			c.logger.Debug("Delta fetch complete",
				zap.String("mailbox", mailbox),
				zap.Int("messages", len(messages)))
			return messages, page.DeltaLink, nil
		}
		next = page.NextLink
	}
	return nil, "", core.TransientErrorf("delta response for %s had neither nextLink nor deltaLink", mailbox)
}

func (c *Client) fetchPage(ctx context.Context, pageURL string) (*deltaPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build delta request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, core.TransientErrorf("graph request timed out: %v", err)
		}
		return nil, core.TransientErrorf("graph request failed: %v", err)
	}
	defer resp.Body.Close()

	if err := checkStatus(resp); err != nil {
		return nil, err
	}

	var page deltaPage
	if err := json.NewDecoder(resp.Body).Decode(&page); err != nil {
		return nil, core.TransientErrorf("failed to decode delta page: %v", err)
	}
	return &page, nil
}

func (c *Client) rememberGraphID(messageID, graphID string) {
	c.mu.Lock()
	c.graphIDs[messageID] = graphID
	c.mu.Unlock()
}

// MarkRead flags a message as read in the source mailbox. messageID is
// the internet message id handed out by FetchDelta.
func (c *Client) MarkRead(ctx context.Context, mailbox, messageID string) error {
	c.mu.Lock()
	graphID, ok := c.graphIDs[messageID]
	if ok {
		delete(c.graphIDs, messageID)
	} else {
		graphID = messageID
	}
	c.mu.Unlock()

	patchURL := fmt.Sprintf("%s/users/%s/messages/%s",
		c.baseURL, url.PathEscape(mailbox), url.PathEscape(graphID))

	body, _ := json.Marshal(map[string]bool{"isRead": true})
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, patchURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build mark-read request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.TransientErrorf("mark-read request failed: %v", err)
	}
	defer resp.Body.Close()

	return checkStatus(resp)
}

// checkStatus maps Graph error responses onto the error taxonomy.
func checkStatus(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return core.AuthErrorf("graph rejected credentials (%d): %s", resp.StatusCode, detail)
	case resp.StatusCode == http.StatusTooManyRequests:
		return core.RateLimitedErrorf("graph throttled request (retry-after %s)", resp.Header.Get("Retry-After"))
	case resp.StatusCode == http.StatusNotFound:
		return core.NotFoundErrorf("graph resource not found: %s", detail)
	case resp.StatusCode >= 500:
		return core.TransientErrorf("graph server error (%d): %s", resp.StatusCode, detail)
	default:
		return fmt.Errorf("graph request failed (%d): %s", resp.StatusCode, detail)
	}
}

// toRawMessage converts a Graph message. The stable dedup key prefers
// the internet message id over the Graph resource id.
func toRawMessage(mailbox string, gm graphMessage) *core.RawMessage {
	messageID := gm.InternetMsgID
	if messageID == "" {
		messageID = gm.ID
	}
	if messageID == "" {
		return nil
	}

	sender := ""
	if gm.From != nil {
		sender = gm.From.EmailAddress.Address
	}

	msg := &core.RawMessage{
		MessageID:  messageID,
		Mailbox:    mailbox,
		Sender:     sender,
		Recipient:  mailbox,
		Subject:    gm.Subject,
		ReceivedAt: gm.ReceivedDateTime,
		Headers:    map[string][]string{"X-Graph-Id": {gm.ID}},
	}
	if gm.Body != nil {
		if strings.EqualFold(gm.Body.ContentType, "html") {
			msg.BodyHTML = gm.Body.Content
		} else {
			msg.BodyText = gm.Body.Content
		}
	}
	return msg
}
