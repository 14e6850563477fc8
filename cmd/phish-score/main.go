package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"
	"time"

	"github.com/phishdefender/phishdefender/internal/core"
	"github.com/phishdefender/phishdefender/internal/logging"
	"github.com/phishdefender/phishdefender/internal/normalize"
	"github.com/phishdefender/phishdefender/internal/scoring"
	"github.com/phishdefender/phishdefender/internal/utils"
	"go.uber.org/zap"
)

var (
	inputFile    = flag.String("file", "", "Input email file (use stdin if not specified)")
	knownDomains = flag.String("known-domains", "", "Comma-separated list of known sender domains")
	brands       = flag.String("brands", "paypal.com,amazon.com,microsoft.com,google.com,apple.com", "Comma-separated list of protected brand domains")
	highThresh   = flag.Float64("high", 0.80, "High malicious threshold")
	lowThresh    = flag.Float64("low", 0.50, "Low malicious threshold")
	jsonOutput   = flag.Bool("json", false, "Output verdict as JSON")
	verbose      = flag.Bool("verbose", false, "Enable verbose logging")
	jsonLog      = flag.Bool("json-log", false, "Output logs in JSON format")
)

func main() {
	flag.Parse()

	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	msg, err := readMessage(*inputFile)
	if err != nil {
		logger.Fatal("Failed to read email", zap.Error(err))
	}

	engine := scoring.NewEngine(splitList(*knownDomains), splitList(*brands), logger)
	normalizer := normalize.New(utils.NewTextProcessor(logger), logger)

	settings := core.DefaultSettings()
	settings.HighThreshold = *highThresh
	settings.LowThreshold = *lowThresh

	verdict := engine.Evaluate(normalizer.Normalize(msg), nil, settings)

	if *jsonOutput {
		out, err := json.MarshalIndent(map[string]any{
			"category":  verdict.Category,
			"score":     verdict.RawScore,
			"reasoning": verdict.Reasoning,
		}, "", "  ")
		if err != nil {
			logger.Fatal("Failed to encode verdict", zap.Error(err))
		}
		fmt.Println(string(out))
		return
	}

	fmt.Printf("Category: %s\n", verdict.Category)
	fmt.Printf("Score:    %.4f\n", verdict.RawScore)
	fmt.Println("Reasoning:")
	for _, reason := range verdict.Reasoning {
		fmt.Printf("  - %s\n", reason)
	}
}

// readMessage parses an RFC 5322 message from a file or stdin.
func readMessage(path string) (*core.RawMessage, error) {
	var reader io.Reader = os.Stdin
	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("failed to open input file: %w", err)
		}
		defer f.Close()
		reader = f
	}

	parsed, err := mail.ReadMessage(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse message: %w", err)
	}
	body, err := io.ReadAll(parsed.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body: %w", err)
	}

	sender := parsed.Header.Get("From")
	if addr, err := mail.ParseAddress(sender); err == nil {
		sender = addr.Address
	}

	msg := &core.RawMessage{
		MessageID:  strings.Trim(parsed.Header.Get("Message-ID"), "<> "),
		Sender:     sender,
		Recipient:  parsed.Header.Get("To"),
		Subject:    parsed.Header.Get("Subject"),
		ReceivedAt: time.Now().UTC(),
		Headers:    map[string][]string(parsed.Header),
	}

	contentType := parsed.Header.Get("Content-Type")
	if strings.Contains(strings.ToLower(contentType), "text/html") {
		msg.BodyHTML = string(body)
	} else {
		msg.BodyText = string(body)
	}
	return msg, nil
}

func splitList(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
