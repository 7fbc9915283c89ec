package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/shopspring/decimal"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/assay/adapter"
	redisadapter "github.com/pithecene-io/assay/adapter/redis"
	"github.com/pithecene-io/assay/adapter/webhook"
	assayconfig "github.com/pithecene-io/assay/cli/config"
	"github.com/pithecene-io/assay/cli/render"
	"github.com/pithecene-io/assay/emit"
	"github.com/pithecene-io/assay/engine"
	"github.com/pithecene-io/assay/ingest"
	"github.com/pithecene-io/assay/iox"
	"github.com/pithecene-io/assay/log"
	"github.com/pithecene-io/assay/metrics"
	"github.com/pithecene-io/assay/sink"
	"github.com/pithecene-io/assay/types"
)

// Exit codes for assay run.
const (
	exitSuccess = 0
	// exitStreamFailure covers mid-stream aborts: invariant breaches,
	// transport failures, emit failures. Decisions already emitted are
	// retained.
	exitStreamFailure = 1
	// exitConfigError covers pre-run failures: scenario build,
	// input/storage setup. No output is produced. Adapter setup runs
	// after the stream drains; its failures are logged and do not
	// change the exit code.
	exitConfigError = 2
)

// RunCommand returns the run command, the only execution entrypoint.
func RunCommand() *cli.Command {
	return &cli.Command{
		Name:  "run",
		Usage: "Adjudicate a fund-load stream (the only execution entrypoint)",
		UsageText: `assay run [--config <scenario.yaml>] [--input <path>] [options]

Reads JSON-lines fund-load records from stdin (or --input), emits one
decision line per record on stdout in input order.

EXAMPLES:
  # Baseline limits from a scenario file, stream on stdin
  assay run --config scenario.yaml < loads.jsonl

  # Flags only, no scenario file
  assay run --daily-attempts 3 --daily-amount 5000.00 --weekly-amount 20000.00 < loads.jsonl

  # With a JSONL audit stream under ./data
  assay run --config scenario.yaml --audit --storage-backend fs --storage-path ./data < loads.jsonl

  # Audit to S3-compatible storage
  assay run --config scenario.yaml --audit --storage-backend s3 \
    --storage-path my-bucket/assay --storage-region us-east-1 < loads.jsonl

  # Notify a webhook when the run completes
  assay run --config scenario.yaml --adapter webhook \
    --adapter-url https://hooks.internal/assay < loads.jsonl`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to YAML scenario file (defaults for assay run flags)",
			},
			&cli.StringFlag{
				Name:  "input",
				Usage: "Input path, or - for stdin",
				Value: "-",
			},
			&cli.StringFlag{
				Name:  "run-id",
				Usage: "Run ID (default: derived from start time)",
			},
			&cli.StringFlag{
				Name:  "scenario",
				Usage: "Scenario name override",
			},
			// Limit flags
			&cli.Int64Flag{
				Name:  "daily-attempts",
				Usage: "Daily attempt limit per customer (omit for unlimited)",
			},
			&cli.StringFlag{
				Name:  "daily-amount",
				Usage: "Daily accepted amount limit per customer, e.g. 5000.00",
			},
			&cli.StringFlag{
				Name:  "weekly-amount",
				Usage: "Weekly accepted amount limit per customer, e.g. 20000.00",
			},
			&cli.StringFlag{
				Name:  "evaluation",
				Usage: "Rule evaluation mode: short_circuit or multi_reason",
			},
			// Feature flags
			&cli.BoolFlag{
				Name:  "prime-id",
				Usage: "Enable the is_prime_id feature tag",
			},
			&cli.StringFlag{
				Name:  "multiplier-factor",
				Usage: "Risk multiplier factor, e.g. 1.5",
			},
			&cli.StringFlag{
				Name:  "multiplier-tag",
				Usage: "Restrict the multiplier to a feature tag",
			},
			// Audit flags
			&cli.BoolFlag{
				Name:  "audit",
				Usage: "Emit the rich audit stream",
			},
			&cli.StringFlag{
				Name:  "audit-encoding",
				Usage: "Audit encoding: jsonl or frame",
			},
			&cli.IntFlag{
				Name:  "audit-flush-count",
				Usage: "Audit sink batch size",
			},
			// Storage flags
			&cli.StringFlag{
				Name:  "storage-backend",
				Usage: "Audit storage backend: fs (filesystem) or s3 (Amazon S3)",
			},
			&cli.StringFlag{
				Name:  "storage-path",
				Usage: "Storage path (fs: writable directory, s3: bucket/prefix)",
			},
			&cli.StringFlag{
				Name:  "storage-region",
				Usage: "AWS region for S3 backend (uses default credential chain if omitted)",
			},
			&cli.StringFlag{
				Name:  "storage-endpoint",
				Usage: "Custom S3 endpoint URL for S3-compatible providers (e.g. Cloudflare R2, MinIO)",
			},
			&cli.BoolFlag{
				Name:  "storage-s3-path-style",
				Usage: "Force path-style addressing for S3 (required by R2, MinIO)",
			},
			// Adapter flags (run-completion notification)
			&cli.StringFlag{
				Name:  "adapter",
				Usage: "Notification adapter type (webhook, redis)",
			},
			&cli.StringFlag{
				Name:  "adapter-url",
				Usage: "Adapter endpoint URL (required when --adapter is set)",
			},
			&cli.StringFlag{
				Name:  "adapter-channel",
				Usage: "Redis pub/sub channel override",
			},
			&cli.StringSliceFlag{
				Name:  "adapter-header",
				Usage: "Custom HTTP header as key=value (repeatable)",
			},
			&cli.DurationFlag{
				Name:  "adapter-timeout",
				Usage: "Adapter notification timeout",
				Value: webhook.DefaultTimeout,
			},
			&cli.IntFlag{
				Name:  "adapter-retries",
				Usage: "Adapter retry attempts",
				Value: webhook.DefaultRetries,
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress the run summary",
			},
			FormatFlag,
			NoColorFlag,
		},
		Action: runAction,
	}
}

// RunSummary is rendered to stderr after the stream drains.
type RunSummary struct {
	Scenario   string `json:"scenario"`
	RunID      string `json:"run_id"`
	Outcome    string `json:"outcome"`
	Records    int64  `json:"records"`
	Accepted   int64  `json:"accepted"`
	Declined   int64  `json:"declined"`
	Malformed  int64  `json:"malformed"`
	Replays    int64  `json:"replays"`
	Conflicts  int64  `json:"conflicts"`
	DurationMs int64  `json:"duration_ms"`
	AuditPath  string `json:"audit_path,omitempty"`
}

func runAction(c *cli.Context) error {
	start := time.Now()

	cfg, err := loadConfig(c)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), exitConfigError)
	}

	scenario, err := buildScenario(c, cfg)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), exitConfigError)
	}

	runID := c.String("run-id")
	if runID == "" {
		runID = "run-" + start.UTC().Format("20060102T150405Z")
	}

	logger := log.NewLogger(log.Context{Scenario: scenario.Name(), RunID: runID})
	collector := metrics.NewCollector(
		scenario.Name(),
		evaluationMode(c, cfg),
		storageBackend(c, cfg),
		runID,
	)

	input, err := openInput(c.String("input"))
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), exitConfigError)
	}
	defer iox.DiscardClose(input)

	ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Assemble the emitter chain: the minimal decision stream on
	// stdout, plus the optional audit stream.
	decisions := emit.NewDecisionWriter(os.Stdout)
	emitters := []engine.Emitter{decisions}

	audit, err := buildAudit(ctx, c, cfg, scenario.Name(), runID, start)
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), exitConfigError)
	}
	if audit != nil {
		emitters = append(emitters, audit.emitter)
	}

	driver, err := engine.NewDriver(engine.Config{
		Scenario: scenario,
		Emitter:  emit.Tee(emitters...),
		Logger:   logger,
	})
	if err != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", err), exitConfigError)
	}

	collector.IncRunStarted()
	report, runErr := driver.Run(ctx, ingest.NewReader(input))

	if err := decisions.Flush(); err != nil && runErr == nil {
		runErr = fmt.Errorf("flush decisions: %w", err)
	}
	if audit != nil {
		if err := audit.close(); err != nil {
			collector.IncAuditWriteFailure()
			logger.Error("audit sink close failed", map[string]any{"error": err.Error()})
			if runErr == nil {
				runErr = err
			}
		} else {
			collector.IncAuditWriteSuccess()
		}
	}

	if runErr != nil {
		collector.IncRunAborted()
	} else {
		collector.IncRunCompleted()
	}
	collector.AbsorbRunTotals(metrics.RunTotals{
		Records:          report.Stats.Records,
		Malformed:        report.Stats.Malformed,
		FirstOccurrences: report.Stats.FirstOccurrences,
		Replays:          report.Stats.Replays,
		Conflicts:        report.Stats.Conflicts,
		Accepted:         report.Stats.Accepted,
		Declined:         report.Stats.Declined,
		DeclinedByReason: report.Stats.DeclinedByReason,
	})

	summary := RunSummary{
		Scenario:   scenario.Name(),
		RunID:      runID,
		Outcome:    string(report.Outcome),
		Records:    report.Stats.Records,
		Accepted:   report.Stats.Accepted,
		Declined:   report.Stats.Declined,
		Malformed:  report.Stats.Malformed,
		Replays:    report.Stats.Replays,
		Conflicts:  report.Stats.Conflicts,
		DurationMs: time.Since(start).Milliseconds(),
	}
	if audit != nil {
		summary.AuditPath = audit.path
	}

	notifyAdapter(c, cfg, logger, collector, &summary, start)

	if !c.Bool("quiet") {
		if r, rerr := render.NewRenderer(c); rerr == nil {
			r.RenderTitle("Run summary")
			_ = r.Render(summary)
		}
	}

	if runErr != nil {
		return cli.Exit(fmt.Sprintf("Error: %v", runErr), exitStreamFailure)
	}
	return nil
}

// loadConfig loads the scenario file when --config is set.
func loadConfig(c *cli.Context) (*assayconfig.Config, error) {
	path := c.String("config")
	if path == "" {
		return &assayconfig.Config{}, nil
	}
	return assayconfig.Load(path)
}

// firstOf returns the flag value when set, otherwise the config
// value.
func firstOf(flagSet bool, flagVal, cfgVal string) string {
	if flagSet {
		return flagVal
	}
	return cfgVal
}

func evaluationMode(c *cli.Context, cfg *assayconfig.Config) string {
	mode := firstOf(c.IsSet("evaluation"), c.String("evaluation"), cfg.Evaluation)
	if mode == "" {
		mode = string(engine.EvalShortCircuit)
	}
	return mode
}

func storageBackend(c *cli.Context, cfg *assayconfig.Config) string {
	return firstOf(c.IsSet("storage-backend"), c.String("storage-backend"), cfg.Storage.Backend)
}

// buildScenario merges flags over config and validates via the
// engine. All monetary strings parse here; every failure is a
// configuration error surfaced before input is consumed.
func buildScenario(c *cli.Context, cfg *assayconfig.Config) (*engine.Scenario, error) {
	spec := engine.Spec{
		Name:       firstOf(c.IsSet("scenario"), c.String("scenario"), cfg.Scenario),
		Evaluation: engine.EvalMode(evaluationMode(c, cfg)),
		PrimeID:    cfg.Features.PrimeID || c.Bool("prime-id"),
	}
	if spec.Name == "" {
		spec.Name = "baseline"
	}

	if c.IsSet("daily-attempts") {
		v := c.Int64("daily-attempts")
		spec.Limits.DailyAttempts = &v
	} else if cfg.Limits.DailyAttempts != nil {
		spec.Limits.DailyAttempts = cfg.Limits.DailyAttempts
	}

	var err error
	if spec.Limits.DailyAmount, err = limitMoney(c, cfg.Limits.DailyAmount, "daily-amount"); err != nil {
		return nil, err
	}
	if spec.Limits.WeeklyAmount, err = limitMoney(c, cfg.Limits.WeeklyAmount, "weekly-amount"); err != nil {
		return nil, err
	}

	factor := c.String("multiplier-factor")
	tag := c.String("multiplier-tag")
	if factor == "" && cfg.Multiplier != nil {
		factor = cfg.Multiplier.Factor
		if tag == "" {
			tag = cfg.Multiplier.Tag
		}
	}
	if factor != "" {
		f, err := decimal.NewFromString(factor)
		if err != nil {
			return nil, fmt.Errorf("invalid multiplier factor %q: %w", factor, err)
		}
		spec.Multiplier = &engine.Multiplier{Factor: f, Tag: tag}
	}

	for _, g := range cfg.Gates {
		gate := engine.Gate{
			Name:           g.Name,
			Tag:            g.Tag,
			DailyAcceptCap: g.DailyAcceptCap,
		}
		if g.AmountCap != "" {
			amountCap, err := types.ParseMoney(g.AmountCap)
			if err != nil {
				return nil, fmt.Errorf("gate %q amount cap: %w", g.Name, err)
			}
			gate.AmountCap = &amountCap
		}
		spec.Gates = append(spec.Gates, gate)
	}

	return engine.NewScenario(spec)
}

// limitMoney resolves one monetary limit from flag or config.
func limitMoney(c *cli.Context, cfgVal, flag string) (*types.Money, error) {
	raw := firstOf(c.IsSet(flag), c.String(flag), cfgVal)
	if raw == "" {
		return nil, nil
	}
	m, err := types.ParseMoney(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s limit: %w", flag, err)
	}
	return &m, nil
}

// openInput opens the input stream; "-" selects stdin.
func openInput(path string) (*os.File, error) {
	if path == "-" || path == "" {
		return os.Stdin, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open input %s: %w", path, err)
	}
	return f, nil
}

// auditPipeline bundles the audit emitter with its teardown.
type auditPipeline struct {
	emitter engine.Emitter
	path    string
	close   func() error
}

// buildAudit assembles the optional audit stream from flags and
// config: nil when disabled.
func buildAudit(ctx context.Context, c *cli.Context, cfg *assayconfig.Config, scenario, runID string, start time.Time) (*auditPipeline, error) {
	enabled := cfg.Audit.Enabled || c.Bool("audit")
	if !enabled {
		return nil, nil
	}

	encoding := firstOf(c.IsSet("audit-encoding"), c.String("audit-encoding"), cfg.Audit.Encoding)
	if encoding == "" {
		encoding = "jsonl"
	}

	backend := storageBackend(c, cfg)
	if backend == "" {
		backend = "fs"
	}
	path := firstOf(c.IsSet("storage-path"), c.String("storage-path"), cfg.Storage.Path)
	if path == "" {
		return nil, fmt.Errorf("audit enabled but no --storage-path given")
	}

	partition := sink.Partition{
		Scenario: scenario,
		Day:      start.UTC().Format("2006-01-02"),
		RunID:    runID,
	}

	switch encoding {
	case "jsonl":
	case "frame":
		if backend != "fs" {
			return nil, fmt.Errorf("frame audit encoding requires the fs backend, got %q", backend)
		}
		return buildFrameAudit(path, partition)
	default:
		return nil, fmt.Errorf("unknown audit encoding %q (must be jsonl or frame)", encoding)
	}

	flushCount := c.Int("audit-flush-count")
	if flushCount == 0 {
		flushCount = cfg.Audit.FlushCount
	}

	switch backend {
	case "fs":
		fs, err := sink.NewFileSink(path, partition)
		if err != nil {
			return nil, err
		}
		emitter := emit.NewSinkEmitter(ctx, fs, flushCount)
		return &auditPipeline{
			emitter: emitter,
			path:    fs.Path(),
			close: func() error {
				if err := emitter.Close(); err != nil {
					_ = fs.Close()
					return err
				}
				return fs.Close()
			},
		}, nil
	case "s3":
		bucket, prefix := sink.ParseS3Path(path)
		s3sink, err := sink.NewS3Sink(ctx, sink.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       firstOf(c.IsSet("storage-region"), c.String("storage-region"), cfg.Storage.Region),
			Endpoint:     firstOf(c.IsSet("storage-endpoint"), c.String("storage-endpoint"), cfg.Storage.Endpoint),
			UsePathStyle: c.Bool("storage-s3-path-style") || cfg.Storage.S3PathStyle,
		}, partition)
		if err != nil {
			return nil, err
		}
		emitter := emit.NewSinkEmitter(ctx, s3sink, flushCount)
		return &auditPipeline{
			emitter: emitter,
			path:    "s3://" + bucket + "/" + s3sink.Key(),
			close: func() error {
				if err := emitter.Close(); err != nil {
					_ = s3sink.Close()
					return err
				}
				return s3sink.Close()
			},
		}, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q (must be fs or s3)", backend)
	}
}

// buildFrameAudit opens the binary frame stream under the fs layout.
func buildFrameAudit(root string, p sink.Partition) (*auditPipeline, error) {
	dir := fmt.Sprintf("%s/%s", root, p.Path())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create audit partition %s: %w", dir, err)
	}
	path := dir + "/audit.frames"
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create audit frame file %s: %w", path, err)
	}
	emitter := emit.NewFrameEmitter(f)
	return &auditPipeline{
		emitter: emitter,
		path:    path,
		close: func() error {
			if err := emitter.Flush(); err != nil {
				_ = f.Close()
				return err
			}
			return f.Close()
		},
	}, nil
}

// notifyAdapter publishes the run-completed event when an adapter is
// configured. Notification failures are logged, never fatal: the
// decision stream is already on stdout.
func notifyAdapter(c *cli.Context, cfg *assayconfig.Config, logger *log.Logger, collector *metrics.Collector, summary *RunSummary, start time.Time) {
	adapterType := firstOf(c.IsSet("adapter"), c.String("adapter"), cfg.Adapter.Type)
	if adapterType == "" {
		return
	}

	a, err := buildAdapter(c, cfg, adapterType)
	if err != nil {
		collector.IncPublishFailure()
		logger.Error("adapter setup failed", map[string]any{"error": err.Error()})
		return
	}
	defer iox.DiscardClose(a)

	event := &adapter.RunCompletedEvent{
		ContractVersion: types.Version,
		EventType:       "run_completed",
		RunID:           summary.RunID,
		Scenario:        summary.Scenario,
		Day:             start.UTC().Format("2006-01-02"),
		Outcome:         summary.Outcome,
		Timestamp:       time.Now().UTC().Format(time.RFC3339),
		Records:         summary.Records,
		Accepted:        summary.Accepted,
		Declined:        summary.Declined,
		Malformed:       summary.Malformed,
		Replays:         summary.Replays,
		Conflicts:       summary.Conflicts,
		DurationMs:      summary.DurationMs,
		AuditPath:       summary.AuditPath,
	}

	publishCtx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if err := a.Publish(publishCtx, event); err != nil {
		collector.IncPublishFailure()
		logger.Error("run notification failed", map[string]any{"error": err.Error()})
		return
	}
	collector.IncPublishSuccess()
}

// buildAdapter constructs the configured notification adapter.
func buildAdapter(c *cli.Context, cfg *assayconfig.Config, adapterType string) (adapter.Adapter, error) {
	url := firstOf(c.IsSet("adapter-url"), c.String("adapter-url"), cfg.Adapter.URL)
	retries := c.Int("adapter-retries")
	if !c.IsSet("adapter-retries") && cfg.Adapter.Retries != nil {
		retries = *cfg.Adapter.Retries
	}
	timeout := c.Duration("adapter-timeout")
	if !c.IsSet("adapter-timeout") && cfg.Adapter.Timeout.Duration > 0 {
		timeout = cfg.Adapter.Timeout.Duration
	}

	switch adapterType {
	case "webhook":
		headers := make(map[string]string, len(cfg.Adapter.Headers))
		for k, v := range cfg.Adapter.Headers {
			headers[k] = v
		}
		for _, h := range c.StringSlice("adapter-header") {
			k, v, ok := strings.Cut(h, "=")
			if !ok || k == "" {
				return nil, fmt.Errorf("invalid --adapter-header %q (expected key=value)", h)
			}
			headers[k] = v
		}
		return webhook.New(webhook.Config{
			URL:     url,
			Headers: headers,
			Timeout: timeout,
			Retries: retries,
		})
	case "redis":
		channel := firstOf(c.IsSet("adapter-channel"), c.String("adapter-channel"), cfg.Adapter.Channel)
		return redisadapter.New(redisadapter.Config{
			URL:     url,
			Channel: channel,
			Timeout: timeout,
			Retries: retries,
		})
	default:
		return nil, fmt.Errorf("unknown adapter type %q (must be webhook or redis)", adapterType)
	}
}
