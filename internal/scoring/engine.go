package scoring

import (
	"context"

	"github.com/phishdefender/phishdefender/internal/core"
	"go.uber.org/zap"
)

// Engine is the deterministic heuristic classifier: a fixed set of
// detectors whose weighted contributions are summed and clamped to
// [0,1]. Aggregation is commutative, so repeated evaluation of the same
// input always yields the same score, category and reasoning order.
type Engine struct {
	detectors []Detector
	logger    *zap.Logger
}

// NewEngine creates an engine with the standard detector set.
func NewEngine(knownDomains, protectedBrands []string, logger *zap.Logger) *Engine {
	return &Engine{
		detectors: []Detector{
			&keywordDetector{high: defaultHighKeywords, low: defaultLowKeywords},
			&domainSpoofDetector{brands: protectedBrands},
			&linkMismatchDetector{},
			&urgencyDetector{phrases: defaultUrgencyPhrases},
			&unknownDomainDetector{allow: NewAllowlist(knownDomains, logger)},
			&riskyLinkDetector{extensions: defaultRiskyExtensions},
			&ipLiteralDetector{},
		},
		logger: logger,
	}
}

// Score runs every detector and returns the clamped raw score plus the
// reasoning lines of the detectors that fired, in detector order.
func (e *Engine) Score(msg *core.NormalizedMessage) (float64, []string) {
	var raw float64
	var reasons []string

	for _, d := range e.detectors {
		signal := d.Detect(msg)
		if signal == nil {
			continue
		}
		raw += signal.Score
		reasons = append(reasons, signal.Reason)
		e.logger.Debug("Detector fired",
			zap.String("detector", d.Name()),
			zap.Float64("contribution", signal.Score),
			zap.String("message_id", msg.MessageID))
	}

	if raw > 1.0 {
		raw = 1.0
	}
	if raw < 0.0 {
		raw = 0.0
	}
	return raw, reasons
}

// Evaluate scores the message, maps the score onto a category using the
// thresholds in settings, and applies any matching custom rule. The raw
// score is kept as the confidence even when a rule forces the category.
func (e *Engine) Evaluate(msg *core.NormalizedMessage, rules []core.CustomRule, settings core.Settings) core.Verdict {
	raw, reasons := e.Score(msg)

	var category core.Category
	switch {
	case raw >= settings.HighThreshold:
		category = core.CategoryHighMalicious
	case raw >= settings.LowThreshold:
		category = core.CategoryLowMalicious
	default:
		category = core.CategorySafe
		if len(reasons) == 0 {
			reasons = append(reasons, "No significant threat indicators detected")
		}
	}

	if rule := ResolveOverride(msg, rules); rule != nil {
		category = rule.ForceCategory
		reasons = append([]string{ruleReason(rule)}, reasons...)
	}

	return core.Verdict{
		RawScore:  raw,
		Category:  category,
		Reasoning: reasons,
	}
}

// HeuristicClassifier adapts the engine to the Classifier port.
type HeuristicClassifier struct {
	engine *Engine
}

// NewHeuristicClassifier creates a classifier backed by the engine.
func NewHeuristicClassifier(engine *Engine) *HeuristicClassifier {
	return &HeuristicClassifier{engine: engine}
}

// Classify evaluates the message. It never fails.
func (h *HeuristicClassifier) Classify(_ context.Context, msg *core.NormalizedMessage, rules []core.CustomRule, settings core.Settings) (core.Verdict, error) {
	return h.engine.Evaluate(msg, rules, settings), nil
}
