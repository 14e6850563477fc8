package di

import (
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/phishdefender/phishdefender/internal/adapters/httpapi"
	"github.com/phishdefender/phishdefender/internal/adapters/smtpgw"
	"github.com/phishdefender/phishdefender/internal/config"
	"github.com/phishdefender/phishdefender/internal/core"
	"github.com/phishdefender/phishdefender/internal/factory"
	"github.com/phishdefender/phishdefender/internal/ingest"
	"github.com/phishdefender/phishdefender/internal/logging"
	"github.com/phishdefender/phishdefender/internal/normalize"
	"github.com/phishdefender/phishdefender/internal/sched"
	"github.com/phishdefender/phishdefender/internal/scoring"
	"github.com/phishdefender/phishdefender/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register clock
	if err := container.Provide(func() core.Clock {
		return core.SystemClock{}
	}); err != nil {
		return nil, err
	}

	// Register text processor and normalizer
	if err := container.Provide(utils.NewTextProcessor); err != nil {
		return nil, err
	}
	if err := container.Provide(normalize.New); err != nil {
		return nil, err
	}

	// Register store, mail source and classifier
	if err := container.Provide(factory.NewStore); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewMailSource); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewEngine); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewClassifier); err != nil {
		return nil, err
	}

	// Register ingestion pipeline and poller
	if err := container.Provide(ingest.NewPipeline); err != nil {
		return nil, err
	}
	if err := container.Provide(func(source core.MailSource, pipeline *ingest.Pipeline, store core.Store, clock core.Clock, cfg *config.Config, logger *zap.Logger) (*ingest.Poller, error) {
		cycleTimeout, err := cfg.GetDuration("ingestion.cycle_timeout")
		if err != nil {
			return nil, err
		}
		return ingest.NewPoller(source, pipeline, store, clock, cycleTimeout, logger), nil
	}); err != nil {
		return nil, err
	}

	// Register scheduler controller
	if err := container.Provide(func(poller *ingest.Poller, store core.Store, clock core.Clock, cfg *config.Config, logger *zap.Logger) (*sched.Controller, error) {
		interval, err := cfg.GetDuration("ingestion.poll_interval")
		if err != nil {
			return nil, err
		}
		if interval <= 0 {
			interval = time.Minute
		}
		return sched.NewController(poller, store, clock, cfg.GetStringSlice("ingestion.mailboxes"), interval, logger), nil
	}); err != nil {
		return nil, err
	}

	// Register triage service
	if err := container.Provide(core.NewTriageService); err != nil {
		return nil, err
	}

	// Register HTTP API server
	if err := container.Provide(func(service *core.TriageService, controller *sched.Controller, cfg *config.Config, logger *zap.Logger) *httpapi.Server {
		return httpapi.NewServer(service, controller, cfg.GetString("server.listen_address"), logger)
	}); err != nil {
		return nil, err
	}

	// Register SMTP ingestion gateway
	if err := container.Provide(func(pipeline *ingest.Pipeline, clock core.Clock, cfg *config.Config, logger *zap.Logger) *smtpgw.Gateway {
		sc := cfg.GetSMTP()
		if !sc.Enabled {
			return nil
		}
		return smtpgw.NewGateway(pipeline, clock, sc.ListenAddress, sc.MailboxAddress, logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// EngineFromConfig builds the heuristic engine directly, for one-shot
// CLI use without the full container.
func EngineFromConfig(cfg *config.Config, logger *zap.Logger) *scoring.Engine {
	return factory.NewEngine(cfg, logger)
}
