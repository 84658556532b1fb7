package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"demoreel/internal/analysis"
	"demoreel/internal/config"
	"demoreel/internal/demo"
	"demoreel/internal/jsonpath"
	"demoreel/internal/logging"
	"demoreel/internal/protocol"
)

func main() {
	var (
		configPath = flag.String("config", "", "path to demoreel.yaml (optional)")
		tickFreq   = flag.Uint("tick_freq", 0, "emit every n-th tick (default: unspool.tick_freq from config)")
		raw        = flag.Bool("raw", false, "filter each message instead of the per-tick game state")
		debug      = flag.Bool("debug", false, "debug logging")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: unspool [flags] [jsonpath] < stream\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	log, err := logging.New("unspool", *debug)
	if err != nil {
		fmt.Fprintln(os.Stderr, "logger:", err)
		os.Exit(1)
	}
	defer log.Sync()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	expr := cfg.Unspool.Path
	if flag.NArg() > 0 {
		expr = flag.Arg(0)
	}
	path, err := jsonpath.ParseOptional(expr)
	if err != nil {
		log.Fatal("bad path", zap.String("path", expr), zap.Error(err))
	}
	freq := cfg.Unspool.TickFreq
	if *tickFreq > 0 {
		freq = uint32(*tickFreq)
	}

	validator, err := cfg.Validator()
	if err != nil {
		log.Fatal("compile schemas", zap.Error(err))
	}
	rd, err := demo.Open(os.Stdin, demo.WithValidator(validator))
	if err != nil {
		log.Fatal("read header", zap.Error(err))
	}
	defer rd.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	out := bufio.NewWriter(os.Stdout)
	enc := json.NewEncoder(out)
	emit := func(v any) error { return enc.Encode(v) }

	err = run(ctx, rd, path, freq, *raw, emit)
	if ferr := out.Flush(); err == nil {
		err = ferr
	}
	if err != nil {
		log.Fatal("unspool", zap.Error(err))
	}
}

// run writes the filtered header, then either per-tick states or, with raw,
// every filtered message.
func run(ctx context.Context, rd *demo.Reader, path *jsonpath.Path, freq uint32, raw bool, emit func(any) error) error {
	h := rd.Header()
	h.Type = protocol.TypeHeader
	if v, ok, err := jsonpath.Filter(path, h); err != nil {
		return err
	} else if ok {
		if err := emit(v); err != nil {
			return err
		}
	}
	if !raw {
		return analysis.Unspool(ctx, rd, path, freq, emit)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := rd.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		b, err := protocol.Encode(m)
		if err != nil {
			return err
		}
		doc, err := jsonpath.Decode(b)
		if err != nil {
			return err
		}
		if v, ok := jsonpath.Match(path, doc); ok {
			if err := emit(v); err != nil {
				return err
			}
		}
	}
}
