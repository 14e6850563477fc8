package factory

import (
	"fmt"

	"github.com/phishdefender/phishdefender/internal/adapters/classifier"
	"github.com/phishdefender/phishdefender/internal/config"
	"github.com/phishdefender/phishdefender/internal/core"
	"github.com/phishdefender/phishdefender/internal/scoring"
	"go.uber.org/zap"
)

// NewEngine creates the heuristic scoring engine from configuration
func NewEngine(cfg *config.Config, logger *zap.Logger) *scoring.Engine {
	sc := cfg.GetScoring()
	return scoring.NewEngine(sc.KnownDomains, sc.ProtectedBrands, logger)
}

// NewClassifier creates a classifier based on configuration. The
// heuristic engine always backs the model-assisted provider as its
// fallback.
func NewClassifier(cfg *config.Config, engine *scoring.Engine, logger *zap.Logger) (core.Classifier, error) {
	heuristic := scoring.NewHeuristicClassifier(engine)

	provider := cfg.GetString("classifier.provider")
	switch provider {
	case "heuristic":
		return heuristic, nil
	case "openai":
		oc := cfg.GetOpenAI()
		if oc.APIKey == "" {
			return nil, fmt.Errorf("openai classifier requires an api key")
		}
		return classifier.NewOpenAIClassifier(
			oc.APIKey, oc.ModelName, oc.MaxTokens, oc.Temperature, oc.MaxBodySize,
			heuristic, logger), nil
	default:
		return nil, fmt.Errorf("unsupported classifier provider: %s", provider)
	}
}
