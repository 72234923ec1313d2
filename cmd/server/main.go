package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"medssi/internal/exchange/analytics"
	"medssi/internal/exchange/domain/credential"
	"medssi/internal/exchange/handler"
	"medssi/internal/exchange/metrics"
	"medssi/internal/exchange/service"
	"medssi/internal/exchange/signer"
	"medssi/internal/exchange/store"
	"medssi/internal/exchange/workers/sweeper"
	"medssi/internal/platform/config"
	"medssi/internal/platform/health"
	"medssi/internal/platform/httpserver"
	"medssi/internal/platform/kafka/producer"
	"medssi/internal/platform/logger"
	"medssi/pkg/platform/audit/publisher"
	auditkafka "medssi/pkg/platform/audit/store/kafka"
	auditmemory "medssi/pkg/platform/audit/store/memory"
	"medssi/pkg/platform/middleware/auth"
	"medssi/pkg/platform/middleware/request"
	"medssi/pkg/platform/tracer"
	"medssi/pkg/secrets"
)

const auditBuffer = 1024

// main wires the engine, its HTTP surface and the background sweeper. Business
// logic lives in internal/exchange.
func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "medssi:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.FromEnv()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	log := logger.New(cfg.LogLevel)
	log.Info("initializing medssi",
		"addr", cfg.Addr,
		"environment", cfg.Environment,
		"sweep_interval", cfg.SweepInterval,
		"sweep_on_request", cfg.SweepOnRequest,
		"kafka_audit", cfg.KafkaBrokers != "",
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	deps, cleanup, err := buildDeps(cfg, log, reg)
	if err != nil {
		return err
	}
	defer cleanup()

	srv := httpserver.New(cfg.Addr, newRouter(routerDeps{
		handler: handler.New(deps.service, auth.Tokens{
			auth.AudienceIssuer:   cfg.IssuerToken,
			auth.AudienceVerifier: cfg.VerifierToken,
			auth.AudienceWallet:   cfg.WalletToken,
		}, log),
		health:   deps.health,
		registry: reg,
		metrics:  request.NewMetrics(reg),
		logger:   log,
	}))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpserver.Run(gctx, srv, log)
	})
	if cfg.SweepInterval > 0 {
		worker, err := sweeper.New(deps.service,
			sweeper.WithInterval(cfg.SweepInterval),
			sweeper.WithLogger(log),
		)
		if err != nil {
			return err
		}
		g.Go(func() error {
			if err := worker.Start(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("medssi stopped")
	return nil
}

type deps struct {
	service *service.Service
	health  *health.Handler
}

// buildDeps assembles the engine and its collaborators. The returned cleanup
// drains the audit pipeline and closes the Kafka client.
func buildDeps(cfg config.Server, log *slog.Logger, reg prometheus.Registerer) (deps, func(), error) {
	h := health.New(cfg.Environment)
	engineMetrics := metrics.New(reg)

	signingKey, err := secrets.DeriveKey(cfg.SigningKey, "medssi/credential-token")
	if err != nil {
		return deps{}, nil, fmt.Errorf("signing key: %w", err)
	}
	sign, err := signer.NewJWT(signingKey, "medssi-wallet")
	if err != nil {
		return deps{}, nil, fmt.Errorf("signer: %w", err)
	}

	pubOpts := []publisher.PublisherOption{
		publisher.WithAsyncBuffer(auditBuffer),
		publisher.WithPublisherLogger(log),
	}
	var prod *producer.Producer
	if cfg.KafkaBrokers != "" {
		prod, err = producer.New(producer.DefaultConfig(cfg.KafkaBrokers), log)
		if err != nil {
			return deps{}, nil, fmt.Errorf("kafka: %w", err)
		}
		sink := auditkafka.NewSink(prod, cfg.AuditTopic, auditkafka.WithLogger(log))
		pubOpts = append(pubOpts, publisher.WithSink(sink))
		h.RegisterCheck("audit_kafka", func(ctx context.Context) error {
			if !prod.Healthy(ctx) {
				return errors.New("brokers unreachable")
			}
			return sink.Check(ctx)
		})
	}
	auditor := publisher.NewPublisher(auditmemory.NewInMemoryStore(), pubOpts...)

	st := store.NewInMemory(store.WithLockWaitObserver(engineMetrics.ObserveLockWait))
	svc := service.New(st,
		service.WithSigner(sign),
		service.WithAnalytics(analytics.New()),
		service.WithAuditor(auditor),
		service.WithMetrics(engineMetrics),
		service.WithTracer(tracer.NewOTel()),
		service.WithLogger(log),
		service.WithRetention(credential.RetentionPolicy{
			Pickup:  cfg.RetentionPickup,
			Medical: cfg.RetentionMedical,
			Default: cfg.RetentionDefault,
		}),
		service.WithSessionTTL(cfg.SessionTTL),
		service.WithMaxOfferTTL(cfg.OfferMaxTTL),
		service.WithSweepOnAccess(cfg.SweepOnRequest),
	)

	cleanup := func() {
		auditor.Close()
		if prod != nil {
			if err := prod.Close(); err != nil {
				log.Warn("kafka producer close failed", "error", err)
			}
		}
	}
	return deps{service: svc, health: h}, cleanup, nil
}
