package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"demoreel/internal/analysis"
	"demoreel/internal/config"
	"demoreel/internal/demo"
	"demoreel/internal/export"
	"demoreel/internal/logging"
	"demoreel/internal/persistence/indexdb"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "dtrace:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	fs := flag.NewFlagSet("dtrace", flag.ContinueOnError)
	var (
		configPath = fs.String("config", "", "path to demoreel.yaml (optional)")
		source     = fs.String("source", "", "only trace damage dealt by this Steam id (steam3, steam2 or steam64)")
		dbPath     = fs.String("db", "", "sqlite output db (default: output.db from config; \"-\" disables)")
		outDir     = fs.String("out", "", "directory for .jsonl.zst outputs (default: output.dir from config; \"-\" disables)")
		plotDir    = fs.String("plots", "", "directory for trace PNGs (optional)")
		keep       = fs.String("keep", "", "trace_keep override: auto, latest or all")
		debug      = fs.Bool("debug", false, "debug logging")
	)
	if err := fs.Parse(args); err != nil {
		return err
	}

	log, err := logging.New("dtrace", *debug)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if s := strings.TrimSpace(*source); s != "" {
		cfg.SourceIdentity = s
	}
	if k := strings.TrimSpace(*keep); k != "" {
		tk, err := analysis.ParseTraceKeep(k)
		if err != nil {
			return fmt.Errorf("-keep: %w", err)
		}
		cfg.TraceKeep = tk
	}
	cfg.Output.DB = override(cfg.Output.DB, *dbPath)
	cfg.Output.Dir = override(cfg.Output.Dir, *outDir)
	cfg.Output.PlotDir = override(cfg.Output.PlotDir, *plotDir)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}

	in, name, err := input(fs.Arg(0), stdin)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}
	defer in.Close()

	validator, err := cfg.Validator()
	if err != nil {
		return fmt.Errorf("compile schemas: %w", err)
	}
	rd, err := demo.Open(in, demo.WithValidator(validator))
	if err != nil {
		return fmt.Errorf("%s: read header: %w", name, err)
	}
	defer rd.Close()

	pcfg := cfg.Pipeline()
	pcfg.Logger = log
	res, err := analysis.Run(ctx, rd.Header(), rd, pcfg, nil)
	if err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	sink := export.Sink{Dir: cfg.Output.Dir, PlotDir: cfg.Output.PlotDir, Logger: log}
	if cfg.Output.DB != "" {
		db, err := indexdb.OpenSQLite(cfg.Output.DB)
		if err != nil {
			return fmt.Errorf("open db %s: %w", cfg.Output.DB, err)
		}
		defer db.Close()
		sink.DB = db
	}

	wctx, wcancel := context.WithTimeout(context.Background(), time.Minute)
	defer wcancel()
	runID, err := sink.Write(wctx, res, name)
	if err != nil {
		return fmt.Errorf("write outputs: %w", err)
	}
	sum := res.Summary()
	sum.RunID = runID
	log.Info("run finished", zap.String("input", name), zap.String("run", runID), zap.Int("traces", sum.Traces))
	_, err = fmt.Fprintf(stdout, "run=%s messages=%d roster=%d events=%d traces=%d last_tick=%d\n",
		orDash(sum.RunID), sum.Messages, sum.Roster, sum.Events, sum.Traces, sum.LastTick)
	return err
}

// override applies a flag value; "-" clears the setting.
func override(cur, flagVal string) string {
	switch v := strings.TrimSpace(flagVal); v {
	case "":
		return cur
	case "-":
		return ""
	default:
		return v
	}
}

func input(path string, stdin io.Reader) (io.ReadCloser, string, error) {
	if path == "" || path == "-" {
		return io.NopCloser(stdin), "stdin", nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
