package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/strefethen/freebox-hub-go/internal/api"
	"github.com/strefethen/freebox-hub-go/internal/audit"
	"github.com/strefethen/freebox-hub-go/internal/auth"
	"github.com/strefethen/freebox-hub-go/internal/cast"
	"github.com/strefethen/freebox-hub-go/internal/config"
	"github.com/strefethen/freebox-hub-go/internal/db"
	"github.com/strefethen/freebox-hub-go/internal/events"
	"github.com/strefethen/freebox-hub-go/internal/freebox"
	"github.com/strefethen/freebox-hub-go/internal/nsd"
	"github.com/strefethen/freebox-hub-go/internal/openapi"
	"github.com/strefethen/freebox-hub-go/internal/schedule"
)

// Options controls server wiring.
type Options struct {
	Logger zerolog.Logger
	// DisableNSD skips mDNS advertisement and browsing (tests, containers
	// without multicast).
	DisableNSD bool
	// DisableNATS skips the NATS sink even when NATS_URL is set.
	DisableNATS bool
	// FreeboxOptions are appended after the options derived from cfg.
	FreeboxOptions []freebox.Option
}

// NewHandler builds the HTTP handler and returns a shutdown function.
func NewHandler(cfg config.Config, options Options) (http.Handler, func(context.Context) error, error) {
	logger := options.Logger
	logger.Info().Str("path", cfg.SQLiteDBPath).Msg("using database")
	dbPair, err := db.Init(cfg.SQLiteDBPath)
	if err != nil {
		return nil, nil, err
	}

	router := chi.NewRouter()
	router.Use(middleware.StripSlashes)
	router.Use(api.RequestIDMiddleware)
	router.Use(api.LoggerMiddleware(logger))
	router.Use(api.RecovererMiddleware(logger))
	if len(cfg.CORSAllowedOrigins) > 0 {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSAllowedOrigins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", api.RequestIDHeader},
			ExposedHeaders:   []string{api.RequestIDHeader},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}
	issuer := auth.NewIssuer(cfg)
	router.Use(auth.Middleware(cfg, issuer))

	openapi.RegisterRoutes(router)

	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())

	pairingStore := auth.NewPairingStore(5 * time.Minute)
	go pairingStore.Run(shutdownCtx, time.Minute)
	auth.RegisterRoutes(router, pairingStore, issuer, logger)

	auditService := audit.NewService(dbPair, cfg.AuditRetentionDays, logger)
	audit.RegisterRoutes(router, auditService)
	auditService.StartPruneJob()

	bus := events.NewBus(logger)
	hub := events.NewHub(logger)
	router.Handle("/ws/events", hub)
	go hub.Run(shutdownCtx, bus)

	var nc *nats.Conn
	if cfg.NATSURL != "" && !options.DisableNATS {
		nc, err = events.ConnectNATS(cfg.NATSURL, logger)
		if err != nil {
			// The hub works without NATS; the sink is best effort.
			logger.Warn().Err(err).Str("url", cfg.NATSURL).Msg("NATS sink disabled")
		} else {
			sink := events.NewNATSSink(nc, cfg.NATSSubjectPrefix, logger)
			go sink.Run(shutdownCtx, bus)
		}
	}

	freeboxOpts := []freebox.Option{
		freebox.WithBaseURL(cfg.FreeboxURL),
		freebox.WithTimeout(time.Duration(cfg.FreeboxTimeoutMs) * time.Millisecond),
		freebox.WithReceiverName(cfg.FreeboxReceiverName),
		freebox.WithHTTPS(cfg.FreeboxUseHTTPS),
		freebox.WithLogger(logger),
	}
	freeboxOpts = append(freeboxOpts, options.FreeboxOptions...)
	castService := cast.NewService(freebox.NewClient(freeboxOpts...), freebox.AppInfo{
		AppID:      cfg.FreeboxAppID,
		AppName:    cfg.FreeboxAppName,
		AppVersion: cfg.FreeboxAppVersion,
		DeviceName: cfg.FreeboxDeviceName,
	}, auditService, bus, logger)
	cast.RegisterRoutes(router, castService)

	scheduleRepo := schedule.NewRepository(dbPair)
	var runner *schedule.Runner
	if cfg.SchedulesEnabled {
		runner = schedule.NewRunner(scheduleRepo, castService, auditService, bus, time.Local, logger)
		if err := runner.Start(); err != nil {
			logger.Error().Err(err).Msg("schedule runner failed to start")
			runner = nil
		}
	}
	schedule.RegisterRoutes(router, schedule.NewService(scheduleRepo, runner, auditService, logger))

	var nsdService *nsd.Service
	if cfg.NSDEnabled && !options.DisableNSD {
		nsdService = nsd.NewService(nsd.Config{
			ServiceName: cfg.NSDServiceName,
			ServiceType: cfg.NSDServiceType,
		}, &peerListener{recorder: auditService, publisher: bus, logger: logger}, logger)
		if err := nsdService.Start(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("service discovery disabled")
			nsdService = nil
		}
	}
	router.Method(http.MethodGet, "/v1/nsd/peers", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		peers := []nsd.Peer{}
		if nsdService != nil {
			peers = nsdService.Peers()
		}
		return api.WriteList(w, "/v1/nsd/peers", peers, false)
	}))

	registerHealthRoutes(router, dbPair, auditService)

	auditService.Record(context.Background(), audit.EventSystemStartup, audit.EventLevelInfo, "Hub started",
		audit.WithReceiver(cfg.FreeboxReceiverName))

	shutdown := func(_ context.Context) error {
		if runner != nil {
			runner.Stop()
		}
		if nsdService != nil {
			nsdService.Stop()
		}
		auditService.StopPruneJob()
		shutdownCancel()
		hub.Close()
		bus.Close()

		var errs []error
		if nc != nil {
			if err := nc.Drain(); err != nil {
				errs = append(errs, err)
			}
		}
		errs = append(errs, dbPair.Close())
		return errors.Join(errs...)
	}

	return router, shutdown, nil
}

func registerHealthRoutes(router chi.Router, dbPair *db.DBPair, auditService *audit.Service) {
	ready := func(ctx context.Context) map[string]any {
		checks := map[string]any{
			"database": "ok",
			"audit":    "ok",
		}
		if err := dbPair.Reader().PingContext(ctx); err != nil {
			checks["database"] = err.Error()
		}
		if !auditService.IsHealthy() {
			checks["audit"] = "degraded"
		}
		return checks
	}
	healthy := func(checks map[string]any) bool {
		for _, v := range checks {
			if v != "ok" {
				return false
			}
		}
		return true
	}

	router.Method(http.MethodGet, "/v1/health", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		checks := ready(r.Context())
		status, code := "healthy", http.StatusOK
		if !healthy(checks) {
			status, code = "unhealthy", http.StatusServiceUnavailable
		}
		return api.WriteJSON(w, code, map[string]any{
			"status":    status,
			"service":   "freebox-hub",
			"checks":    checks,
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	}))
	router.Method(http.MethodGet, "/v1/health/live", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	}))
	router.Method(http.MethodGet, "/v1/health/ready", api.Handler(func(w http.ResponseWriter, r *http.Request) error {
		checks := ready(r.Context())
		if !healthy(checks) {
			return api.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{"status": "not_ready", "checks": checks})
		}
		return api.WriteJSON(w, http.StatusOK, map[string]any{"status": "ready"})
	}))
}
