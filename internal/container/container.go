package container

import (
	"fmt"
	"net/http"

	"github.com/anime-shed/line-profile-studio/internal/backend"
	"github.com/anime-shed/line-profile-studio/internal/config"
	"github.com/anime-shed/line-profile-studio/internal/factory"
	"github.com/anime-shed/line-profile-studio/internal/logger"
	"github.com/anime-shed/line-profile-studio/internal/observer"
	"github.com/anime-shed/line-profile-studio/internal/repository"
	"github.com/anime-shed/line-profile-studio/internal/session"
	"github.com/anime-shed/line-profile-studio/internal/transport"
	"github.com/anime-shed/line-profile-studio/pkg/validation"
)

// Container holds all application dependencies
type Container struct {
	config     *config.Config
	client     *backend.HTTPClient
	assets     repository.AssetRepository
	publisher  *observer.EventPublisher
	metrics    *observer.MetricsObserver
	controller *session.Controller
	handler    http.Handler
}

// NewContainer creates a new dependency injection container
func NewContainer(cfg *config.Config) (*Container, error) {
	components := factory.NewComponentFactory(cfg)

	fetcher, err := components.StorageFactory.CreateStorage(factory.StorageType(cfg.AssetSource))
	if err != nil {
		return nil, fmt.Errorf("failed to create asset storage: %w", err)
	}

	mirror, err := components.MirrorFactory.CreateMirror(factory.MirrorType(cfg.MirrorMode))
	if err != nil {
		return nil, fmt.Errorf("failed to create mirror strategy: %w", err)
	}

	assets, err := repository.NewAssetRepository(fetcher, validation.NewURLValidator(), cfg.BackendURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create asset repository: %w", err)
	}

	client, err := backend.NewHTTPClient(cfg.BackendURL, cfg.RequestTimeout)
	if err != nil {
		return nil, fmt.Errorf("failed to create backend client: %w", err)
	}

	publisher := observer.NewEventPublisher()
	metrics := observer.NewMetricsObserver()
	publisher.Subscribe(observer.NewLoggingObserver(logger.Logger))
	publisher.Subscribe(metrics)

	controller := session.NewController(session.Options{
		Client:          client,
		Assets:          assets,
		Mirror:          mirror,
		Events:          publisher,
		AnalysisTimeout: cfg.AnalysisTimeout,
		DecodeWorkers:   cfg.DecodeWorkers,
	})

	c := &Container{
		config:     cfg,
		client:     client,
		assets:     assets,
		publisher:  publisher,
		metrics:    metrics,
		controller: controller,
	}
	c.handler = transport.NewHandler(controller, c, cfg)
	return c, nil
}

// GetMetrics merges session event counters with the background queue stats
func (c *Container) GetMetrics() map[string]interface{} {
	m := c.metrics.GetMetrics()
	m["workers"] = c.controller.Stats()
	return m
}

// Handler returns the HTTP handler
func (c *Container) Handler() http.Handler {
	return c.handler
}

// Config returns the configuration
func (c *Container) Config() *config.Config {
	return c.config
}

// Controller returns the session controller
func (c *Container) Controller() *session.Controller {
	return c.controller
}

// Close stops background work
func (c *Container) Close() {
	c.controller.Close()
}
