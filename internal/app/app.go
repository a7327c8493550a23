// Package app wires configuration into a running sensor: credentials,
// the API client, one polling entity per configured matchup, and the
// status endpoint.
package app

import (
	"net/http"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/calewis/yahoo-matchup/external/yahoo"
	"github.com/calewis/yahoo-matchup/internal/config"
	"github.com/calewis/yahoo-matchup/internal/platform/cache"
	"github.com/calewis/yahoo-matchup/internal/platform/logging"
	"github.com/calewis/yahoo-matchup/internal/platform/resilience"
	"github.com/calewis/yahoo-matchup/internal/sensor"
	"github.com/calewis/yahoo-matchup/internal/statusapi"
)

type App struct {
	Config config.Config
	Logger *logging.Logger
	Poller *sensor.Poller
	Status *statusapi.Server

	entities []*sensor.Entity
}

func New(cfg config.Config, logger *logging.Logger) (*App, error) {
	httpClient := &http.Client{
		Timeout:   cfg.YahooTimeout,
		Transport: otelhttp.NewTransport(http.DefaultTransport),
	}

	creds, err := yahoo.NewCredentialManager(cfg.OAuthFile, httpClient, logger)
	if err != nil {
		return nil, err
	}

	var recorder yahoo.Recorder
	var payloads statusapi.PayloadSource
	if cfg.DebugMode {
		debug := sensor.NewDebugRecorder(cfg.DebugDumpDir, logger)
		recorder = debug
		payloads = debug.Payloads
	}

	client := yahoo.NewClient(yahoo.ClientConfig{
		HTTPClient:  httpClient,
		BaseURL:     cfg.YahooBaseURL,
		Credentials: creds,
		MaxAttempts: cfg.YahooMaxAttempts,
		Logger:      logger,
		Recorder:    recorder,
		CircuitBreaker: resilience.CircuitBreakerConfig{
			Enabled:          cfg.YahooCircuitEnabled,
			FailureThreshold: cfg.YahooCircuitFailureCount,
			OpenTimeout:      cfg.YahooCircuitOpenTimeout,
			HalfOpenMaxReq:   cfg.YahooCircuitHalfOpenMaxRq,
		},
	})

	// Shared across entities so leagues on the same game fetch their
	// settings and stat categories once.
	settingsCache := cache.NewStore()
	categoriesCache := cache.NewStore()

	entities := make([]*sensor.Entity, 0, len(cfg.Matchups))
	for _, m := range cfg.Matchups {
		entities = append(entities, sensor.NewEntity(sensor.EntityConfig{
			Matchup:           m,
			API:               client,
			SettingsCache:     settingsCache,
			StatCategoryCache: categoriesCache,
			MinUpdateInterval: cfg.MinUpdateInterval,
			Logger:            logger,
		}))
	}

	a := &App{
		Config:   cfg,
		Logger:   logger,
		entities: entities,
	}

	a.Poller, err = sensor.NewPoller(sensor.PollerConfig{
		Entities: entities,
		Interval: cfg.MinUpdateInterval,
		Workers:  len(entities),
		Logger:   logger,
	})
	if err != nil {
		return nil, err
	}

	if cfg.StatusEnabled {
		a.Status = statusapi.NewServer(cfg.StatusAddr, a.Snapshots, payloads, logger)
	}

	return a, nil
}

// Snapshots returns the current state of every entity.
func (a *App) Snapshots() []sensor.Snapshot {
	out := make([]sensor.Snapshot, 0, len(a.entities))
	for _, entity := range a.entities {
		out = append(out, entity.Current())
	}
	return out
}
