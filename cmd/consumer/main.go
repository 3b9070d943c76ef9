package main

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/segmentio/kafka-go"

	"github.com/joloLG/joloRide/internal/config"
	"github.com/joloLG/joloRide/internal/logging"
	"github.com/joloLG/joloRide/internal/models"
	"github.com/joloLG/joloRide/internal/observability"
	"github.com/joloLG/joloRide/internal/storage"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		slog.Default().Warn("dotenv load failed", "error", err)
	}
	cfg, err := config.LoadConsumerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	pg, err := storage.NewPostgresStore(cfg.PGDSN)
	if err != nil {
		logger.Error("postgres open failed", "error", err)
		os.Exit(1)
	}

	// start metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); w.Write([]byte("ok")) })
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := pg.Ping(r.Context()); err != nil {
				http.Error(w, "postgres not ready", 503)
				return
			}
			w.WriteHeader(200)
			w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{Brokers: cfg.KafkaBrokers, Topic: cfg.LocationTopic, GroupID: cfg.Group, MinBytes: 10e3, MaxBytes: 10e6})
	defer func() {
		_ = r.Close()
		_ = pg.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.LocationTopic, "brokers", cfg.KafkaBrokers, "group", cfg.Group)
	a := &archiver{store: pg, attempts: cfg.RetryAttempts, delay: cfg.RetryDelay, logger: logger}
	a.run(ctx, r)
	logger.Info("shutting down consumer")
}

// Archiver is the subset of the location store the consumer writes to.
type Archiver interface {
	AppendHistory(ctx context.Context, s models.Sample) error
}

type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

type archiver struct {
	store    Archiver
	attempts int
	delay    time.Duration
	logger   *slog.Logger
}

func (a *archiver) run(ctx context.Context, r messageReader) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			a.logger.Warn("kafka read error", "error", err, "backoff", backoff)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second
		a.handle(ctx, m)
	}
}

func (a *archiver) handle(ctx context.Context, m kafka.Message) {
	var s models.Sample
	if err := json.Unmarshal(m.Value, &s); err != nil || s.RiderID == "" {
		observability.InvalidMessages.Inc()
		a.logger.Warn("invalid message", "offset", m.Offset, "error", err)
		return
	}
	// only samples taken while carrying an order form a trail
	if s.OrderID == "" {
		return
	}
	if err := archiveWithRetry(ctx, a.store, s, a.attempts, a.delay); err != nil {
		observability.ArchiveErrors.Inc()
		a.logger.Error("archive failed", "rider_id", s.RiderID, "order_id", s.OrderID, "error", err)
		return
	}
	observability.ArchivedSamples.Inc()
}

// archiveWithRetry appends s to the history with retry/backoff.
func archiveWithRetry(ctx context.Context, st Archiver, s models.Sample, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = st.AppendHistory(ctx, s); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		}
		delay *= 2
	}
	return err
}
