package main

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"go.uber.org/zap"

	"github.com/example/fileuploader/internal/config"
	"github.com/example/fileuploader/internal/handlers"
	"github.com/example/fileuploader/internal/metrics"
	"github.com/example/fileuploader/internal/middleware"
	"github.com/example/fileuploader/internal/models"
	"github.com/example/fileuploader/internal/policy"
	"github.com/example/fileuploader/internal/processors"
	"github.com/example/fileuploader/internal/storage"
	"github.com/example/fileuploader/internal/uploader"
)

// server wires configuration into the uploader and its HTTP surface.
type server struct {
	cfg      *config.Settings
	logger   *zap.Logger
	registry *policy.Registry
	metrics  *metrics.Metrics
	hub      *handlers.EventHub
	router   *mux.Router
}

func newServer(cfg *config.Settings, logger *zap.Logger) (*server, error) {
	registry, err := cfg.Registry()
	if err != nil {
		return nil, err
	}

	factory := storage.NewStorageFactory(logger)
	mirror, err := storage.NewMirrorFromConfig(factory, cfg.Mirror, logger)
	if err != nil {
		// A broken mirror must not stop uploads; the status route reports it.
		logger.Warn("mirror disabled", zap.String("provider", cfg.Mirror.Provider), zap.Error(err))
		mirror = nil
	}

	m := metrics.New()
	hub := handlers.NewEventHub(cfg.Server.AllowedOrigins, logger)
	hub.Run()

	opts := uploader.Options{
		Workers: cfg.Workers.Count,
		Logger:  logger,
		Fetcher: uploader.NewHTTPFetcher(nil, uploader.FetcherConfig{
			Timeout:    cfg.Fetch.Timeout,
			MaxBytes:   cfg.Fetch.MaxBytes,
			ScratchDir: cfg.Fetch.ScratchDir,
			UserAgent:  cfg.Fetch.UserAgent,
		}, logger),
		Factory: processors.NewFactory(
			processors.WithProber(processors.NewFFProbe(cfg.Probe.Binary)),
			processors.WithLogger(logger),
		),
		Committer: storage.NewCommitter(logger),
		Observers: []uploader.Observer{m, hub},
	}
	var mirrorStore handlers.MirrorStore
	if mirror != nil {
		opts.Mirror = mirror
		mirrorStore = mirror
	}
	up := uploader.New(registry, opts)

	s := &server{cfg: cfg, logger: logger, registry: registry, metrics: m, hub: hub, router: mux.NewRouter()}
	s.router.Use(middleware.Metrics(m))

	handlers.NewUploadHandler(up, cfg.Server.MaxMemory, cfg.Server.ScratchDir, logger).Register(s.router)
	handlers.NewMirrorHandler(mirrorStore, factory, cfg.Mirror.Provider, logger).Register(s.router)
	s.router.HandleFunc("/ws", hub.ServeWS)
	s.router.Handle("/metrics", m.Handler()).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.health).Methods(http.MethodGet)
	return s, nil
}

// Handler returns the router wrapped in the request middlewares.
func (s *server) Handler() http.Handler {
	return middleware.Chain(
		s.router,
		middleware.Logger(s.logger),
		middleware.Recover(s.logger),
		middleware.CORS(s.cfg.Server.AllowedOrigins),
	)
}

// Close stops the event hub.
func (s *server) Close() {
	s.hub.Shutdown()
}

func (s *server) health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(models.APIResponse{
		Success: true,
		Data: models.HealthStatus{
			Status:   "ok",
			Version:  version,
			Policies: s.registry.Fields(),
			Mirror:   s.cfg.Mirror.Provider,
			Clients:  s.hub.Clients(),
		},
	})
}
