package classifier

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/phishdefender/phishdefender/internal/core"
	"github.com/phishdefender/phishdefender/internal/scoring"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const systemPrompt = `You are an email security analyst. Assess the message below for phishing.
Respond with a JSON object only:
{
  "category": "high_malicious" | "low_malicious" | "safe",
  "confidence": <float between 0 and 1>,
  "reasoning": [<short strings explaining the assessment>]
}`

// OpenAIClassifier asks a chat model for a verdict and falls back to
// the deterministic engine when the model is unavailable or returns
// something unusable. Custom rules still override the model's category.
type OpenAIClassifier struct {
	client      *openai.Client
	fallback    core.Classifier
	model       string
	maxTokens   int
	temperature float32
	maxBodySize int
	logger      *zap.Logger
}

// NewOpenAIClassifier creates a new OpenAI-assisted classifier
func NewOpenAIClassifier(apiKey, model string, maxTokens int, temperature float32, maxBodySize int, fallback core.Classifier, logger *zap.Logger) *OpenAIClassifier {
	if maxBodySize <= 0 {
		maxBodySize = 2000
	}
	return &OpenAIClassifier{
		client:      openai.NewClient(apiKey),
		fallback:    fallback,
		model:       model,
		maxTokens:   maxTokens,
		temperature: temperature,
		maxBodySize: maxBodySize,
		logger:      logger,
	}
}

type modelVerdict struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Reasoning  []string `json:"reasoning"`
}

// Classify asks the model for a verdict, then applies any matching
// custom rule on top. Any failure degrades to the fallback classifier.
func (c *OpenAIClassifier) Classify(ctx context.Context, msg *core.NormalizedMessage, rules []core.CustomRule, settings core.Settings) (core.Verdict, error) {
	verdict, err := c.ask(ctx, msg)
	if err != nil {
		c.logger.Warn("Model classification failed, using heuristic engine",
			zap.String("message_id", msg.MessageID),
			zap.Error(err))
		return c.fallback.Classify(ctx, msg, rules, settings)
	}

	if rule := scoring.ResolveOverride(msg, rules); rule != nil {
		verdict.Category = rule.ForceCategory
		verdict.Reasoning = append([]string{
			fmt.Sprintf("Force-classified by custom %s rule %q -> %s", rule.Type, rule.Value, rule.ForceCategory),
		}, verdict.Reasoning...)
	}
	return verdict, nil
}

func (c *OpenAIClassifier) ask(ctx context.Context, msg *core.NormalizedMessage) (core.Verdict, error) {
	body := msg.BodyText
	if len(body) > c.maxBodySize {
		body = body[:c.maxBodySize]
	}

	prompt := fmt.Sprintf("Sender: %s\nSender domain: %s\nSubject: %s\nExtracted URLs: %s\n\nBody:\n%s",
		msg.Sender, msg.SenderDomain, msg.Subject, strings.Join(msg.URLs, ", "), body)

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		MaxTokens:   c.maxTokens,
		Temperature: c.temperature,
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return core.Verdict{}, fmt.Errorf("chat completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return core.Verdict{}, fmt.Errorf("chat completion returned no choices")
	}

	var mv modelVerdict
	if err := json.Unmarshal([]byte(resp.Choices[0].Message.Content), &mv); err != nil {
		return core.Verdict{}, fmt.Errorf("failed to parse model response: %w", err)
	}

	category := core.Category(mv.Category)
	if !category.Valid() {
		return core.Verdict{}, fmt.Errorf("model returned unknown category %q", mv.Category)
	}
	confidence := mv.Confidence
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return core.Verdict{
		RawScore:  confidence,
		Category:  category,
		Reasoning: mv.Reasoning,
	}, nil
}
