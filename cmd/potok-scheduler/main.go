// Command potok-scheduler runs the scheduler core as a long-lived process:
// it periodically discovers due tasks, materializes their runs, dispatches
// batches to executors, ingests their responses, reclaims timed-out runs,
// and snapshots metrics — all as independent jobs under one Runner.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MatweyL/Potok/internal/batch"
	"github.com/MatweyL/Potok/internal/bounds"
	"github.com/MatweyL/Potok/internal/broker/amqp"
	"github.com/MatweyL/Potok/internal/broker/inmemory"
	"github.com/MatweyL/Potok/internal/config"
	"github.com/MatweyL/Potok/internal/dispatch"
	"github.com/MatweyL/Potok/internal/domain"
	"github.com/MatweyL/Potok/internal/ingest"
	"github.com/MatweyL/Potok/internal/logging"
	"github.com/MatweyL/Potok/internal/materialize"
	"github.com/MatweyL/Potok/internal/runner"
	"github.com/MatweyL/Potok/internal/schedule"
	"github.com/MatweyL/Potok/internal/store"
	"github.com/MatweyL/Potok/internal/store/postgres"
	"github.com/MatweyL/Potok/internal/telemetry"
	"github.com/MatweyL/Potok/internal/timeout"
)

func main() {
	var (
		configFile   = flag.String("config", "", "Configuration file path")
		dsn          = flag.String("dsn", "", "Postgres DSN (overrides config)")
		workers      = flag.Int("workers", 0, "Dispatcher worker count (overrides config)")
		batchKind    = flag.String("batch-provider", "", "Batch provider: constant, aimd, or pid (overrides config)")
		logLevel     = flag.String("log-level", "", "Log level: debug, info, warn, error (overrides config)")
		logFormat    = flag.String("log-format", "", "Log format: text or json (overrides config)")
		metricsAddr  = flag.String("metrics-addr", "", "Prometheus /metrics listen address (overrides config)")
		wsStatusAddr = flag.String("ws-status", "", "Websocket status-stream listen address, serving /ws/status (empty disables it)")
		inMemory     = flag.Bool("inmemory", false, "Use the in-process broker instead of a network listener (reference/demo mode)")
		brokerAddr   = flag.String("broker-addr", "", "TCP address to dial for the amqp-shaped broker adapter")
	)
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "potok-scheduler: %v\n", err)
		os.Exit(1)
	}

	if *dsn != "" {
		cfg.Store.DSN = *dsn
	}
	if *workers != 0 {
		cfg.Dispatch.Workers = *workers
	}
	if *batchKind != "" {
		cfg.Batch.Provider = *batchKind
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if *metricsAddr != "" {
		cfg.Telemetry.PrometheusAddr = *metricsAddr
	}

	level, err := logging.ParseLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "potok-scheduler: %v\n", err)
		os.Exit(1)
	}
	format := logging.TextFormat
	if cfg.Logging.Format == "json" {
		format = logging.JSONFormat
	}
	log := logging.New(logging.Config{
		Level:     level,
		Format:    format,
		Output:    os.Stderr,
		Component: "potok-scheduler",
		Sanitize:  cfg.Logging.Sanitize,
	})

	ctx, cancel := context.WithCancel(context.Background())
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Info("received shutdown signal", logging.Fields{"signal": sig.String()})
		cancel()
	}()

	if err := run(ctx, cfg, log, *inMemory, *brokerAddr); err != nil {
		log.Error("exiting with error", logging.Fields{"error": err.Error()})
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, log *logging.Logger, inMemoryBroker bool, brokerAddr string) error {
	db, err := postgres.Open(ctx, postgres.Config{
		DSN:            cfg.Store.DSN,
		MaxConns:       int32(cfg.Store.MaxConns),
		MigrationsPath: "file://" + cfg.Store.MigrationsPath,
	}, log)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	if err := db.MigrateToLatest(ctx); err != nil {
		return fmt.Errorf("apply migrations: %w", err)
	}

	runs := db.Runs()
	tasks := db.Tasks()
	payloads := db.Payloads()
	progress := db.Progress()

	producer, consumer, closeBroker, err := buildBroker(inMemoryBroker, brokerAddr)
	if err != nil {
		return fmt.Errorf("build broker: %w", err)
	}
	defer closeBroker()

	batchProvider, err := batch.Build(batch.Config{
		Kind:            batch.Kind(cfg.Batch.Provider),
		ConstantSize:    cfg.Batch.ConstantSize,
		AIMDDelta:       cfg.Batch.AIMDAdditive,
		AIMDBeta:        cfg.Batch.AIMDMultiplier,
		AIMDBase:        float64(cfg.Batch.AIMDInitial),
		AIMDMin:         float64(cfg.Batch.AIMDMinSize),
		AIMDMax:         float64(cfg.Batch.AIMDMaxSize),
		PIDTargetUtilization: cfg.Batch.PIDTargetUtilization,
		PIDTickInterval:      cfg.Batch.PIDTickInterval,
		PIDKp:                cfg.Batch.PIDKp,
		PIDKi:                cfg.Batch.PIDKi,
		PIDKd:                cfg.Batch.PIDKd,
		MetricsPeriod:   cfg.Timeout.PollInterval,
		QueueCapacity:   int64(cfg.Batch.AIMDMaxSize),
	}, runs)
	if err != nil {
		return fmt.Errorf("build batch provider: %w", err)
	}

	registry := schedule.NewRegistry(
		schedule.NewPeriodicProvider(time.Now().UnixNano()),
		schedule.NewSingleProvider(time.Now().UnixNano()+1),
	)
	boundsProvider := bounds.NewDefaultProvider(progress)
	materializer := materialize.New(db, tasks, registry, boundsProvider, log)
	lookup := materialize.StoreLookup{Tasks: tasks}

	dispatcher := dispatch.New(batchProvider, runs, payloads, producer, dispatch.Config{
		Workers:       cfg.Dispatch.Workers,
		RatePerSecond: cfg.Dispatch.RatePerSecond,
		Burst:         cfg.Dispatch.Burst,
	}, log)
	defer dispatcher.Close()

	ingestor := ingest.New(runs, progress, log)

	collector := telemetry.New(runs, cfg.Telemetry.SnapshotInterval, nil, "potok-scheduler", cfg.Telemetry.ReportPath)
	if cfg.Telemetry.PrometheusAddr != "" {
		startMetricsServer(cfg.Telemetry.PrometheusAddr, collector, log)
	}

	var wsStatus *telemetry.StatusBroadcaster
	if *wsStatusAddr != "" {
		wsStatus = telemetry.NewStatusBroadcaster(log)
		startWSStatusServer(*wsStatusAddr, wsStatus, log)
	}

	responses, err := consumer.Consume(ctx)
	if err != nil {
		return fmt.Errorf("start broker consumer: %w", err)
	}

	jobs := []runner.Job{
		{
			Name:   "materialize",
			Period: cfg.Timeout.PollInterval,
			Run: func(ctx context.Context) error {
				return tickMaterialize(ctx, tasks, materializer, lookup, log)
			},
		},
		{
			Name:   "dispatch",
			Period: cfg.Timeout.PollInterval,
			Run: func(ctx context.Context) error {
				_, err := dispatcher.Tick(ctx)
				return err
			},
		},
		{
			Name:           "ingest",
			Period:         24 * time.Hour, // Run starts once and blocks on its own loop; Period is a no-op safety net.
			BeforeFirstRun: 0,
			Run: func(ctx context.Context) error {
				ingestor.Run(ctx, responses)
				return nil
			},
		},
		{
			Name:   "telemetry",
			Period: cfg.Telemetry.SnapshotInterval,
			Run: func(ctx context.Context) error {
				snap, err := collector.Collect(ctx)
				if err != nil {
					return err
				}
				if wsStatus != nil {
					wsStatus.Broadcast(snap)
				}
				return nil
			},
		},
	}
	rules := timeout.Standard()
	rules[0].TTL = cfg.Timeout.QueuedTTL
	rules[1].TTL = cfg.Timeout.ExecutionTTL
	rules[2].TTL = cfg.Timeout.InterruptedTTL
	rules[3].TTL = cfg.Timeout.TempErrorTTL
	for _, rule := range rules {
		transitioner := timeout.New(runs, rule, log)
		jobs = append(jobs, runner.Job{
			Name:   "timeout." + rule.Name,
			Period: cfg.Timeout.PollInterval,
			Run: func(ctx context.Context) error {
				_, err := transitioner.Tick(ctx)
				return err
			},
		})
	}

	r := runner.New(log, jobs...)
	r.Start(ctx)

	if err := collector.Flush(); err != nil {
		log.Error("failed to flush telemetry report", logging.Fields{"error": err.Error()})
	}
	return nil
}

// tickMaterialize lists every task and hands it to materializer as a
// candidate; due-ness itself is fully delegated to registry.Due via lookup,
// which checks each task's own status/status_updated_at (spec.md §4.2).
func tickMaterialize(ctx context.Context, tasks store.TaskStore, materializer *materialize.Materializer, lookup schedule.TaskStatusLookup, log *logging.Logger) error {
	candidates, err := tasks.List(ctx, domain.Filter{}, domain.PaginationQuery{OrderBy: "created_at", Direction: domain.SortAscending})
	if err != nil {
		return fmt.Errorf("materialize tick: list tasks: %w", err)
	}
	if len(candidates) == 0 {
		return nil
	}

	created, err := materializer.Materialize(ctx, candidates, lookup)
	if err != nil {
		return fmt.Errorf("materialize tick: %w", err)
	}
	if created > 0 {
		log.Info("materialize tick complete", logging.Fields{"runs_created": created})
	}
	return nil
}

// buildBroker wires either the in-memory reference broker or the
// amqp-shaped TCP adapter, per spec §6's production/reference split.
func buildBroker(inMemory bool, addr string) (dispatch.Producer, interface {
	Consume(ctx context.Context) (<-chan domain.CommandResponse, error)
}, func(), error) {
	if inMemory {
		b := inmemory.New(256)
		return b, b, func() {}, nil
	}

	if addr == "" {
		return nil, nil, nil, fmt.Errorf("broker-addr is required unless -inmemory is set")
	}
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("dial broker at %s: %w", addr, err)
	}
	producer := amqp.NewProducer(conn)
	consumer := amqp.NewConsumer(conn)
	return producer, consumer, func() { conn.Close() }, nil
}

func startMetricsServer(addr string, collector *telemetry.Collector, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(collector.Registry(), promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("metrics server stopped", logging.Fields{"error": err.Error()})
		}
	}()
}

// startWSStatusServer serves the operator-facing telemetry stream at
// /ws/status: one websocket per connected operator, each fed every
// Snapshot the telemetry job collects (reference/demo observability,
// spec.md §6).
func startWSStatusServer(addr string, broadcaster *telemetry.StatusBroadcaster, log *logging.Logger) {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws/status", broadcaster.Handler)
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("ws-status server stopped", logging.Fields{"error": err.Error()})
		}
	}()
}
