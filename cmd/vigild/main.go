package main

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"vigil/internal/biometric"
	bioStore "vigil/internal/biometric/store"
	"vigil/internal/fraud"
	fraudStore "vigil/internal/fraud/store"
	"vigil/internal/liveness"
	livenessStore "vigil/internal/liveness/store"
	"vigil/internal/platform/config"
	"vigil/internal/platform/logger"
	"vigil/internal/platform/metrics"
	"vigil/internal/platform/postgres"
	platformRedis "vigil/internal/platform/redis"
	"vigil/internal/spoof"
	spoofStore "vigil/internal/spoof/store"
	"vigil/internal/verify"
	"vigil/pkg/platform/audit"
	auditKafka "vigil/pkg/platform/audit/kafka"
	auditMemory "vigil/pkg/platform/audit/store/memory"
	auditPostgres "vigil/pkg/platform/audit/store/postgres"
	"vigil/pkg/platform/audit/worker"
)

// pipeline holds the wired trust services. The check-in transport mounts on
// top of these; this process runs the background loops and serves metrics.
type pipeline struct {
	spoof     *spoof.Detector
	biometric *biometric.Service
	fraud     *fraud.Service
	liveness  *liveness.Service
	verify    *verify.Service
}

func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("vigild exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	m := metrics.New(prometheus.DefaultRegisterer)

	pool, err := postgres.NewPool(ctx, cfg.Postgres)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	if pool != nil {
		defer pool.Close()
	}

	redisClient, err := platformRedis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if redisClient != nil {
		defer redisClient.Close()
	}

	g, ctx := errgroup.WithContext(ctx)

	publisher, closeAudit, err := buildAuditPipeline(ctx, g, cfg, log)
	if err != nil {
		return err
	}
	defer closeAudit()

	backend := biometric.NewHTTPBackend(cfg.Biometric.BackendURL, &http.Client{Timeout: cfg.Biometric.BackendTimeout})

	services, err := buildServices(cfg, log, m, publisher, backend, pool, redisClient)
	if err != nil {
		return err
	}

	checks := map[string]func(context.Context) error{
		"recognition_backend": backend.Health,
	}
	if pool != nil {
		checks["postgres"] = pool.Ping
	}
	if redisClient != nil {
		checks["redis"] = redisClient.Health
	}

	reaper := liveness.NewReaper(services.liveness, cfg.Liveness.ReaperInterval)
	g.Go(func() error {
		reaper.Run(ctx)
		return nil
	})
	g.Go(func() error {
		services.verify.RunCounterSweep(ctx, cfg.Verify.CounterTTL)
		return nil
	})

	metricsSrv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsHandler(checks)}
	g.Go(func() error {
		log.InfoContext(ctx, "serving metrics", "addr", cfg.MetricsAddr)
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return metricsSrv.Shutdown(shutdownCtx)
	})

	log.InfoContext(ctx, "vigild started",
		"postgres", pool != nil,
		"redis", redisClient != nil,
		"kafka", len(cfg.Kafka.Brokers) > 0,
		"recognition_backend", cfg.Biometric.BackendURL,
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

// buildAuditPipeline fronts the audit sinks with a channel worker per sink so
// services never block on audit delivery. The durable store is always wired;
// Kafka is added when brokers are configured.
func buildAuditPipeline(ctx context.Context, g *errgroup.Group, cfg config.Config, log *slog.Logger) (audit.Publisher, func(), error) {
	var store audit.Store = auditMemory.NewInMemoryStore()
	closers := make([]func(), 0, 2)

	if cfg.Postgres.URL != "" {
		db, err := sql.Open("postgres", cfg.Postgres.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("audit store: %w", err)
		}
		closers = append(closers, func() { db.Close() })
		store = auditPostgres.New(db)
	}

	inbox := make(chan audit.Event, 1024)
	g.Go(func() error {
		err := worker.NewWorker(store, inbox, log).Run(ctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	publishers := []audit.Publisher{worker.NewChannelPublisher(inbox)}

	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := auditKafka.New(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, nil, fmt.Errorf("kafka: %w", err)
		}
		closers = append(closers, producer.Close)

		kafkaInbox := make(chan audit.Event, 1024)
		g.Go(func() error {
			err := worker.NewWorker(publisherSink{producer}, kafkaInbox, log).Run(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
		publishers = append(publishers, worker.NewChannelPublisher(kafkaInbox))
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if len(publishers) == 1 {
		return publishers[0], closeAll, nil
	}
	return teePublisher(publishers), closeAll, nil
}

func buildServices(
	cfg config.Config,
	log *slog.Logger,
	m *metrics.Metrics,
	publisher audit.Publisher,
	backend biometric.RecognitionBackend,
	pool *pgxpool.Pool,
	redisClient *platformRedis.Client,
) (*pipeline, error) {
	var fraudLedger fraud.Store = fraudStore.NewInMemoryFraudStore()
	var outcomes liveness.OutcomeLog = livenessStore.NewInMemoryOutcomeLog()
	var enrollments biometric.EnrollmentStore = bioStore.NewInMemoryEnrollmentStore()
	var locations spoof.LocationStore = spoofStore.NewInMemoryLocationStore()

	if pool != nil {
		fraudLedger = fraudStore.NewPostgresFraudStore(pool)
		outcomes = livenessStore.NewPostgresOutcomeLog(pool)

		key, err := base64.StdEncoding.DecodeString(cfg.Biometric.DescriptorKey)
		if err != nil {
			return nil, fmt.Errorf("decode descriptor key: %w", err)
		}
		cipher, err := bioStore.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("descriptor cipher: %w", err)
		}
		enrollments, err = bioStore.NewPostgresEnrollmentStore(pool, cipher)
		if err != nil {
			return nil, fmt.Errorf("enrollment store: %w", err)
		}
	}
	if redisClient != nil {
		locations = spoofStore.NewRedisLocationStore(redisClient.Client)
	}

	fraudSvc, err := fraud.New(fraudLedger, cfg.FraudPolicy,
		fraud.WithLogger(log),
		fraud.WithAuditPublisher(publisher),
		fraud.WithMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("fraud service: %w", err)
	}

	detector, err := spoof.NewDetector(locations, cfg.Spoof,
		spoof.WithLogger(log),
		spoof.WithAuditPublisher(publisher),
		spoof.WithMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("spoof detector: %w", err)
	}

	bioSvc, err := biometric.New(backend, enrollments, cfg.Biometric,
		biometric.WithLogger(log),
		biometric.WithAuditPublisher(publisher),
		biometric.WithMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("biometric service: %w", err)
	}

	livenessSvc, err := liveness.New(fraudSvc, outcomes, cfg.Liveness,
		liveness.WithLogger(log),
		liveness.WithAuditPublisher(publisher),
		liveness.WithMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("liveness service: %w", err)
	}

	verifySvc, err := verify.New(bioSvc, fraudSvc, cfg.Verify,
		verify.WithLogger(log),
		verify.WithAuditPublisher(publisher),
		verify.WithMetrics(m),
	)
	if err != nil {
		return nil, fmt.Errorf("verify service: %w", err)
	}

	return &pipeline{
		spoof:     detector,
		biometric: bioSvc,
		fraud:     fraudSvc,
		liveness:  livenessSvc,
		verify:    verifySvc,
	}, nil
}

// metricsHandler serves the Prometheus endpoint and a health probe that
// consults every wired dependency before answering.
func metricsHandler(checks map[string]func(context.Context) error) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		for name, check := range checks {
			if err := check(ctx); err != nil {
				http.Error(w, name+": unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
	})
	return mux
}

// publisherSink lets a synchronous publisher sit behind the channel worker.
type publisherSink struct {
	publisher audit.Publisher
}

func (s publisherSink) Append(ctx context.Context, event audit.Event) error {
	return s.publisher.Emit(ctx, event)
}

// teePublisher fans one event out to every configured sink.
type teePublisher []audit.Publisher

func (t teePublisher) Emit(ctx context.Context, event audit.Event) error {
	var firstErr error
	for _, p := range t {
		if err := p.Emit(ctx, event); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
