package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joloLG/joloRide/internal/auth"
	"github.com/joloLG/joloRide/internal/config"
	"github.com/joloLG/joloRide/internal/dispatch"
	"github.com/joloLG/joloRide/internal/feed"
	httpapi "github.com/joloLG/joloRide/internal/http"
	"github.com/joloLG/joloRide/internal/ingest"
	"github.com/joloLG/joloRide/internal/location"
	"github.com/joloLG/joloRide/internal/logging"
	"github.com/joloLG/joloRide/internal/models"
	"github.com/joloLG/joloRide/internal/orders"
	"github.com/joloLG/joloRide/internal/payments"
	"github.com/joloLG/joloRide/internal/storage"
	"github.com/joloLG/joloRide/internal/tracking"
	"github.com/joloLG/joloRide/migrations"
)

type orderProfileStore interface {
	storage.OrderStore
	storage.ProfileStore
}

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Default().Warn("dotenv load failed", "error", err)
	}
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		store   orderProfileStore
		locs    location.Store
		checks  []httpapi.Check
		closers []func() error
	)
	// set when locations live in Postgres, where cmd/consumer archives history
	var pgLocations bool

	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres open failed", "error", err)
			os.Exit(1)
		}
		closers = append(closers, pg.Close)
		checks = append(checks, httpapi.Check{Name: "postgres", Fn: pg.Ping})
		if cfg.RunMigrations {
			if err := migrate(ctx, pg, logger); err != nil {
				logger.Error("migration failed", "error", err)
				os.Exit(1)
			}
		}
		store, locs = pg, pg
		pgLocations = true
	} else {
		mem := storage.NewMemoryStore()
		if cfg.SeedProfilesFile != "" {
			n, err := seedProfiles(mem, cfg.SeedProfilesFile)
			if err != nil {
				logger.Error("seed profiles failed", "file", cfg.SeedProfilesFile, "error", err)
				os.Exit(1)
			}
			logger.Info("seeded profiles", "count", n)
		}
		logger.Warn("PG_DSN not set, orders and profiles are kept in memory")
		store, locs = mem, location.NewMemoryStore()
	}

	if cfg.RedisAddr != "" {
		rs := location.NewRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey, cfg.LocationHistoryTTL)
		closers = append(closers, rs.Close)
		checks = append(checks, httpapi.Check{Name: "redis", Fn: rs.Ping})
		locs = rs
		pgLocations = false
	}

	hub := feed.NewHub(logger)
	var publisher orders.Publisher = hub
	var locationLog httpapi.LocationLog
	if len(cfg.KafkaBrokers) > 0 {
		kp := feed.NewKafkaPublisher(cfg.KafkaBrokers, cfg.OrderEventsTopic)
		closers = append(closers, kp.Close)
		publisher = kp

		relay := feed.NewRelay(cfg.KafkaBrokers, cfg.OrderEventsTopic, cfg.OrderEventsGroup, hub, logger)
		go func() {
			if err := relay.Run(ctx); err != nil {
				logger.Error("order feed relay stopped", "error", err)
			}
		}()

		lp := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.LocationTopic)
		closers = append(closers, lp.Close)
		locationLog = lp
	}

	var settler payments.Settler
	if cfg.StripeAPIKey != "" {
		settler = payments.NewStripeSettler(cfg.StripeAPIKey)
	}

	engine := &orders.Engine{Orders: store, Profiles: store, Feed: publisher, Payments: settler, Logger: logger}
	board := &dispatch.Board{Engine: engine, Orders: store, Profiles: store, Hub: hub, PageSize: cfg.DispatchPageSize, Logger: logger}
	tracker := tracking.NewConsumer(store, locs, logger)
	tracker.Interval = cfg.TrackingInterval
	tracker.SpeedKmh = cfg.DeliverySpeedKmh
	tracker.MaxSampleAge = cfg.LocationMaxAge

	api := httpapi.NewServer(httpapi.Deps{
		Engine:      engine,
		Board:       board,
		Tracking:    tracker,
		Locations:   locs,
		Orders:      store,
		Profiles:    store,
		LocationLog: locationLog,
		Auth:        auth.New(cfg.JWTSecret, 0),
		Checks:      checks,

		HistoryArchived: pgLocations && locationLog != nil,
	}, logger)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("joloride api listening", "addr", cfg.HTTPAddr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server failed", "error", err)
		}
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", "error", err)
	}
	hub.Close()
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			logger.Warn("close failed", "error", err)
		}
	}
}

func migrate(ctx context.Context, pg *storage.PostgresStore, logger *slog.Logger) error {
	scripts, err := migrations.All()
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	for _, sc := range scripts {
		if err := pg.Migrate(ctx, sc.SQL); err != nil {
			return fmt.Errorf("%s: %w", sc.Name, err)
		}
		logger.Info("migration applied", "file", sc.Name)
	}
	return nil
}

// seedProfiles loads a JSON array of profiles into the in-memory store so a
// local run has riders and customers to work with.
func seedProfiles(m *storage.MemoryStore, path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var profiles []models.Profile
	if err := json.Unmarshal(b, &profiles); err != nil {
		return 0, err
	}
	for _, p := range profiles {
		if _, err := models.ParseRole(string(p.Role)); err != nil {
			return 0, err
		}
		m.PutProfile(p)
	}
	return len(profiles), nil
}
