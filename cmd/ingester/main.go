package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/automaxprocs/maxprocs"

	appingest "github.com/designare-evita/CSV-PRO/internal/app/ingestion"
	"github.com/designare-evita/CSV-PRO/internal/config/envloader"
	"github.com/designare-evita/CSV-PRO/internal/domain/ingestion"
	"github.com/designare-evita/CSV-PRO/internal/infra/cleanup"
	"github.com/designare-evita/CSV-PRO/internal/infra/locks"
	"github.com/designare-evita/CSV-PRO/internal/infra/materializer"
	"github.com/designare-evita/CSV-PRO/internal/infra/metrics"
	"github.com/designare-evita/CSV-PRO/internal/infra/progress"
	"github.com/designare-evita/CSV-PRO/internal/infra/source"
	memStore "github.com/designare-evita/CSV-PRO/internal/infra/storage/checkpoint/memory"
	pgStore "github.com/designare-evita/CSV-PRO/internal/infra/storage/checkpoint/postgres"
	sqliteStore "github.com/designare-evita/CSV-PRO/internal/infra/storage/checkpoint/sqlite"
	"github.com/designare-evita/CSV-PRO/pkg/common/logger"
	"github.com/designare-evita/CSV-PRO/pkg/common/otel"
)

const serviceType = "ingester"

func main() {
	_, _ = maxprocs.Set()

	hostname, err := os.Hostname()
	if err != nil {
		stdlog.Fatalf("failed to get hostname: %v", err)
	}

	logEvents := logger.Events{
		Error: func(ctx context.Context, r logger.Record) {
			errorAttrs := map[string]any{
				"error_message": r.Message,
				"error_time":    r.Time.UTC().Format(time.RFC3339),
				"trace_id":      otel.GetTraceID(ctx),
			}
			for k, v := range r.Attributes {
				errorAttrs[k] = v
			}

			errorAttrsJSON, err := json.Marshal(errorAttrs)
			if err != nil {
				fmt.Fprintf(os.Stderr, "failed to marshal error attributes: %v\n", err)
				return
			}
			fmt.Fprintf(os.Stderr, "Error event: %s, details: %s\n", r.Message, errorAttrsJSON)
		},
	}

	traceIDFn := func(ctx context.Context) string {
		return otel.GetTraceID(ctx)
	}

	svcName := fmt.Sprintf("INGESTER-%s", hostname)
	metadata := map[string]string{
		"service":  svcName,
		"hostname": hostname,
		"app":      serviceType,
	}

	log := logger.NewWithMetadata(os.Stdout, logger.LevelInfo, svcName, traceIDFn, logEvents, metadata)

	if err := run(log); err != nil {
		log.Error(context.Background(), "ingester failed", "error", err)
		os.Exit(1)
	}
}

func run(log *logger.Logger) error {
	var (
		sourceArg   = flag.String("source", "", "source path or URL (required)")
		outPath     = flag.String("out", "ingested.jsonl", "sink file the materialized records are appended to")
		keyColumn   = flag.String("key-column", "title", "column duplicates are detected on; empty disables detection")
		configPath  = flag.String("config", "", "optional YAML config file, overridden by CSVPRO_* env vars")
		storeKind   = flag.String("store", "sqlite", "checkpoint store: sqlite, postgres or memory")
		storePath   = flag.String("checkpoints", "checkpoints.db", "sqlite checkpoint database path")
		summaryOnly = flag.Bool("summary-json", false, "print the run summary as JSON on stdout")
	)
	flag.Parse()

	if *sourceArg == "" {
		flag.Usage()
		return fmt.Errorf("missing required -source")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tracer, telemetryTeardown, err := initTelemetry(ctx, log)
	if err != nil {
		return err
	}
	defer telemetryTeardown()

	cfg, err := envloader.NewEnvLoader(*configPath).Load(ctx)
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	checkpoints, storeTeardown, err := openCheckpointStore(ctx, *storeKind, *storePath, tracer)
	if err != nil {
		return err
	}
	defer storeTeardown()

	sink, err := materializer.OpenJSONLFile(*outPath, *keyColumn, *cfg, log)
	if err != nil {
		return err
	}
	defer sink.Close()

	mp, err := otel.NewMeterProvider(serviceType)
	if err != nil {
		return fmt.Errorf("creating meter provider: %w", err)
	}
	ingestMetrics, err := metrics.New(mp)
	if err != nil {
		return fmt.Errorf("creating metrics: %w", err)
	}

	opener := source.NewOpener(log, tracer)
	runner := appingest.NewIngestionRunner(
		*cfg,
		source.NewDecoderFactory(opener),
		sink,
		checkpoints,
		locks.NewMemoryLocker(),
		progress.NewReporter(log, 0),
		cleanup.NewCleaner(log),
		log,
		tracer,
		appingest.WithMetrics(ingestMetrics),
	)

	summary, err := runner.ExecuteRun(ctx, *sourceArg)
	if err != nil {
		return err
	}

	if *summaryOnly {
		out, err := json.MarshalIndent(summary, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding summary: %w", err)
		}
		fmt.Println(string(out))
	}

	if summary.Status == ingestion.StatusFailed {
		return fmt.Errorf("run failed: %s", summary.FailureReason)
	}
	return nil
}

// initTelemetry wires the OTLP exporter when an endpoint is configured and
// falls back to a no-op tracer otherwise, so the CLI works without a
// collector.
func initTelemetry(ctx context.Context, log *logger.Logger) (trace.Tracer, func(), error) {
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	if endpoint == "" {
		return noop.NewTracerProvider().Tracer(serviceType), func() {}, nil
	}

	prob := 1.0
	if raw := os.Getenv("OTEL_SAMPLING_RATIO"); raw != "" {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("parsing OTEL_SAMPLING_RATIO: %w", err)
		}
		prob = p
	}

	tp, teardown, err := otel.InitTelemetry(log, otel.Config{
		ServiceName:      serviceType,
		ExporterEndpoint: endpoint,
		Probability:      prob,
		ResourceAttributes: map[string]string{
			"library.language": "go",
		},
		InsecureExporter: os.Getenv("OTEL_EXPORTER_INSECURE") == "true",
	})
	if err != nil {
		return nil, nil, fmt.Errorf("initializing telemetry: %w", err)
	}
	return tp.Tracer(serviceType), func() { teardown(ctx) }, nil
}

func openCheckpointStore(ctx context.Context, kind, path string, tracer trace.Tracer) (ingestion.CheckpointRepository, func(), error) {
	switch kind {
	case "memory":
		return memStore.NewCheckpointStore(), func() {}, nil

	case "sqlite":
		store, err := sqliteStore.NewCheckpointStore(path, tracer)
		if err != nil {
			return nil, nil, err
		}
		return store, func() { _ = store.Close() }, nil

	case "postgres":
		dsn := os.Getenv("CSVPRO_POSTGRES_DSN")
		if dsn == "" {
			return nil, nil, fmt.Errorf("postgres store requires CSVPRO_POSTGRES_DSN")
		}
		pool, err := pgxpool.New(ctx, dsn)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting to postgres: %w", err)
		}
		if _, err := pool.Exec(ctx, pgStore.Schema); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("ensuring checkpoint schema: %w", err)
		}
		return pgStore.NewCheckpointStore(pool, tracer), pool.Close, nil

	default:
		return nil, nil, fmt.Errorf("unknown checkpoint store %q", kind)
	}
}
