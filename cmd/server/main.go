package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	jwttoken "cityledger/internal/jwt_token"
	"cityledger/internal/ledger/memory"
	"cityledger/internal/ledger/ports"
	"cityledger/internal/ledger/postgres"
	"cityledger/internal/ledger/redisseq"
	participanthandler "cityledger/internal/participant/handler"
	participantservice "cityledger/internal/participant/service"
	"cityledger/internal/platform/config"
	"cityledger/internal/platform/httpserver"
	"cityledger/internal/platform/kafka"
	"cityledger/internal/platform/logger"
	"cityledger/internal/platform/metrics"
	"cityledger/internal/platform/redis"
	propositionhandler "cityledger/internal/proposition/handler"
	"cityledger/internal/proposition/query"
	propositionservice "cityledger/internal/proposition/service"
	httptransport "cityledger/internal/transport/http"
	"cityledger/pkg/platform/events"
	"cityledger/pkg/platform/events/relay"
	eventstore "cityledger/pkg/platform/events/store/memory"
)

// ledger is what the services need from a storage backend.
type ledger interface {
	ports.LedgerTx
	ports.PropositionReader
	ports.ParticipantStore
}

type infra struct {
	cfg      config.Server
	log      *slog.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
	ledger   ledger
	outbox   events.Outbox
	health   map[string]httptransport.HealthCheck
	closers  []func()
}

func main() {
	cfg, err := config.FromEnv()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	log := logger.New(cfg.LogFormat, cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server stopped", "error", err)
		os.Exit(1)
	}
	log.Info("server stopped")
}

func run(ctx context.Context, cfg config.Server, log *slog.Logger) error {
	in, err := buildInfra(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer in.close()

	lifecycle, err := cfg.Lifecycle()
	if err != nil {
		return err
	}

	propOpts := []propositionservice.Option{
		propositionservice.WithLogger(log),
		propositionservice.WithMetrics(in.metrics),
		propositionservice.WithLifecycle(lifecycle),
	}
	allocator, err := buildAllocator(ctx, in)
	if err != nil {
		return err
	}
	if allocator != nil {
		propOpts = append(propOpts, propositionservice.WithAllocator(allocator))
	}
	propositions := propositionservice.New(in.ledger, propOpts...)
	queries := query.New(in.ledger, query.WithLogger(log), query.WithLifecycle(lifecycle))
	participants := participantservice.New(in.ledger,
		participantservice.WithLogger(log),
		participantservice.WithMetrics(in.metrics),
	)

	tokens := jwttoken.NewJWTService(cfg.JWTSigningKey, cfg.JWTIssuer, cfg.JWTAudience)
	router := httptransport.NewRouter(httptransport.RouterConfig{
		Modules: []httptransport.Registrar{
			propositionhandler.New(propositions, queries, log, in.metrics, jwttoken.NewJWTServiceAdapter(tokens), cfg.RequestTimeout),
			participanthandler.New(participants, log, in.metrics, cfg.AdminToken),
		},
		Gatherer: in.registry,
		Health:   in.health,
	})

	publisher, err := buildPublisher(ctx, in)
	if err != nil {
		return err
	}
	outboxRelay := relay.New(in.outbox, publisher,
		relay.WithLogger(log),
		relay.WithMetrics(relay.NewMetrics(in.registry)),
		relay.WithInterval(cfg.Events.RelayInterval),
		relay.WithBatchSize(cfg.Events.BatchSize),
	)

	srv := httpserver.New(cfg.Addr, router)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting cityledger", "addr", cfg.Addr, "store", cfg.Store, "db_driver", cfg.DatabaseDriver)
		return httpserver.Run(gctx, srv)
	})
	g.Go(func() error {
		return outboxRelay.Run(gctx)
	})
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func buildInfra(ctx context.Context, cfg config.Server, log *slog.Logger) (*infra, error) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	in := &infra{
		cfg:      cfg,
		log:      log,
		registry: reg,
		metrics:  metrics.New(reg),
		health:   map[string]httptransport.HealthCheck{},
	}

	switch cfg.Store {
	case config.StorePostgres:
		db, err := sql.Open(cfg.DatabaseDriver, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("open database: %w", err)
		}
		in.closers = append(in.closers, func() { _ = db.Close() })
		if err := postgres.Migrate(ctx, db); err != nil {
			in.close()
			return nil, err
		}
		pg := postgres.New(db, postgres.WithTxTimeout(cfg.TxTimeout))
		in.ledger = pg
		in.outbox = pg.Outbox()
		in.health["postgres"] = db.PingContext
	default:
		outbox := eventstore.NewInMemoryStore()
		in.ledger = memory.New(memory.WithOutbox(outbox), memory.WithTxTimeout(cfg.TxTimeout))
		in.outbox = outbox
	}
	in.health["ledger"] = func(context.Context) error { return nil }
	return in, nil
}

// buildAllocator returns a Redis-backed allocator when Redis is configured,
// raising the shared counter past every identifier already in the ledger.
func buildAllocator(ctx context.Context, in *infra) (ports.Allocator, error) {
	client, err := redis.New(ctx, in.cfg.Redis)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, nil
	}
	in.closers = append(in.closers, func() { _ = client.Close() })
	in.health["redis"] = client.Health

	existing, err := in.ledger.ListPropositions(ctx, ports.PropositionFilter{})
	if err != nil {
		return nil, fmt.Errorf("scan propositions: %w", err)
	}
	var highest int64
	for _, p := range existing {
		if n, err := strconv.ParseInt(p.ID.String(), 10, 64); err == nil && n > highest {
			highest = n
		}
	}
	allocator := redisseq.New(client, client.SequenceKey())
	if _, err := allocator.EnsureAtLeast(ctx, highest); err != nil {
		return nil, err
	}
	return allocator, nil
}

func buildPublisher(ctx context.Context, in *infra) (events.Publisher, error) {
	ev := in.cfg.Events
	if len(ev.Brokers) == 0 {
		in.log.Info("no kafka brokers configured, events go to the log")
		return relay.NewLogPublisher(in.log), nil
	}
	producer, err := kafka.NewProducer(ev.Brokers, ev.Topic, kafka.WithLogger(in.log))
	if err != nil {
		return nil, err
	}
	in.closers = append(in.closers, producer.Close)
	if err := producer.EnsureTopic(ctx, ev.Partitions, ev.Replication); err != nil {
		return nil, err
	}
	in.health["kafka"] = producer.Ping
	return producer, nil
}

func (in *infra) close() {
	for i := len(in.closers) - 1; i >= 0; i-- {
		in.closers[i]()
	}
}
