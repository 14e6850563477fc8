package smtpgw

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"time"

	"github.com/emersion/go-smtp"
	"github.com/phishdefender/phishdefender/internal/core"
	"github.com/phishdefender/phishdefender/internal/ingest"
	"go.uber.org/zap"
)

// Gateway is an SMTP ingestion endpoint: an MTA can forward suspicious
// mail here and each delivered message runs through the same pipeline
// as polled mail.
type Gateway struct {
	pipeline   *ingest.Pipeline
	clock      core.Clock
	logger     *zap.Logger
	listenAddr string
	mailbox    string
	server     *smtp.Server
}

// NewGateway creates a new SMTP ingestion gateway
func NewGateway(pipeline *ingest.Pipeline, clock core.Clock, listenAddr, mailbox string, logger *zap.Logger) *Gateway {
	return &Gateway{
		pipeline:   pipeline,
		clock:      clock,
		logger:     logger,
		listenAddr: listenAddr,
		mailbox:    mailbox,
	}
}

// Start starts the SMTP server in a background goroutine.
func (g *Gateway) Start() error {
	g.server = smtp.NewServer(&smtpBackend{gateway: g})
	g.server.Addr = g.listenAddr
	g.server.Domain = "localhost"
	g.server.ReadTimeout = 30 * time.Second
	g.server.WriteTimeout = 30 * time.Second
	g.server.MaxMessageBytes = 30 * 1024 * 1024
	g.server.MaxRecipients = 50
	g.server.AllowInsecureAuth = true

	g.logger.Info("SMTP gateway starting", zap.String("address", g.listenAddr))

	go func() {
		if err := g.server.ListenAndServe(); err != nil {
			if err != smtp.ErrServerClosed {
				g.logger.Error("SMTP server error", zap.Error(err))
			}
		}
	}()
	return nil
}

// Stop stops the SMTP server.
func (g *Gateway) Stop() error {
	if g.server != nil {
		return g.server.Close()
	}
	return nil
}

// smtpBackend implements the go-smtp Backend interface
type smtpBackend struct {
	gateway *Gateway
}

// NewSession creates a new SMTP session
func (b *smtpBackend) NewSession(_ *smtp.Conn) (smtp.Session, error) {
	return &smtpSession{
		gateway:    b.gateway,
		recipients: make([]string, 0),
	}, nil
}

// smtpSession implements the go-smtp Session interface
type smtpSession struct {
	gateway    *Gateway
	sender     string
	recipients []string
}

// Reset resets the session state
func (s *smtpSession) Reset() {
	s.sender = ""
	s.recipients = make([]string, 0)
}

// AuthPlain handles PLAIN authentication (not needed for the gateway)
func (s *smtpSession) AuthPlain(_ []byte) error {
	return smtp.ErrAuthUnsupported
}

// Mail sets the sender address
func (s *smtpSession) Mail(from string, _ *smtp.MailOptions) error {
	s.sender = from
	return nil
}

// Rcpt adds a recipient
func (s *smtpSession) Rcpt(to string, _ *smtp.RcptOptions) error {
	s.recipients = append(s.recipients, to)
	return nil
}

// Data ingests the delivered message. Delivery is accepted even when
// the message turns out to be a duplicate.
func (s *smtpSession) Data(r io.Reader) error {
	rawData, err := io.ReadAll(r)
	if err != nil {
		s.gateway.logger.Error("Failed to read message data", zap.Error(err))
		return err
	}

	parsed, err := mail.ReadMessage(bytes.NewReader(rawData))
	if err != nil {
		s.gateway.logger.Error("Failed to parse email message", zap.Error(err))
		return fmt.Errorf("550 Malformed message")
	}

	msg := s.toRawMessage(parsed)
	if msg.MessageID == "" {
		return fmt.Errorf("550 Missing Message-ID header")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	email, created, err := s.gateway.pipeline.ProcessMessage(ctx, msg)
	if err != nil {
		s.gateway.logger.Error("Failed to ingest delivered message",
			zap.String("message_id", msg.MessageID),
			zap.Error(err))
		return fmt.Errorf("451 Temporary ingestion failure")
	}

	s.gateway.logger.Info("Ingested delivered message",
		zap.String("message_id", msg.MessageID),
		zap.String("email_id", email.ID),
		zap.Bool("created", created),
		zap.String("category", string(email.AICategory)))
	return nil
}

// Logout handles SMTP logout
func (s *smtpSession) Logout() error {
	return nil
}

func (s *smtpSession) toRawMessage(parsed *mail.Message) *core.RawMessage {
	msg := &core.RawMessage{
		Mailbox:    s.gateway.mailbox,
		Sender:     s.sender,
		ReceivedAt: s.gateway.clock.Now(),
		Headers:    map[string][]string(parsed.Header),
	}
	if len(s.recipients) > 0 {
		msg.Recipient = s.recipients[0]
	}
	if from := parsed.Header.Get("From"); from != "" {
		if addr, err := mail.ParseAddress(from); err == nil {
			msg.Sender = addr.Address
		}
	}
	msg.MessageID = strings.Trim(parsed.Header.Get("Message-ID"), "<> ")
	msg.Subject = decodeHeader(parsed.Header.Get("Subject"))

	if date := parsed.Header.Get("Date"); date != "" {
		if t, err := mail.ParseDate(date); err == nil {
			msg.ReceivedAt = t.UTC()
		}
	}

	text, html := extractBodies(parsed)
	msg.BodyText = text
	msg.BodyHTML = html
	return msg
}

// extractBodies returns the text/plain and text/html parts of a
// message. Non-multipart messages yield one or the other based on
// their content type.
func extractBodies(msg *mail.Message) (string, string) {
	contentType := msg.Header.Get("Content-Type")
	if contentType == "" {
		body, _ := io.ReadAll(msg.Body)
		return string(body), ""
	}

	mediaType, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		body, _ := io.ReadAll(msg.Body)
		return string(body), ""
	}

	switch {
	case strings.HasPrefix(mediaType, "multipart/"):
		return extractMultipart(msg.Body, params["boundary"])
	case mediaType == "text/html":
		body, _ := io.ReadAll(msg.Body)
		return "", string(body)
	default:
		body, _ := io.ReadAll(msg.Body)
		return string(body), ""
	}
}

func extractMultipart(body io.Reader, boundary string) (string, string) {
	if boundary == "" {
		return "", ""
	}
	var text, html string
	reader := multipart.NewReader(body, boundary)
	for {
		part, err := reader.NextPart()
		if err != nil {
			break
		}
		mediaType, params, err := mime.ParseMediaType(part.Header.Get("Content-Type"))
		if err != nil {
			continue
		}
		switch {
		case strings.HasPrefix(mediaType, "multipart/"):
			t, h := extractMultipart(part, params["boundary"])
			if text == "" {
				text = t
			}
			if html == "" {
				html = h
			}
		case mediaType == "text/plain" && text == "":
			content, _ := io.ReadAll(part)
			text = string(content)
		case mediaType == "text/html" && html == "":
			content, _ := io.ReadAll(part)
			html = string(content)
		}
	}
	return text, html
}

func decodeHeader(value string) string {
	decoder := mime.WordDecoder{}
	decoded, err := decoder.DecodeHeader(value)
	if err != nil {
		return value
	}
	return decoded
}
