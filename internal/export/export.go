// Package export writes the output sets of a run to the configured sinks.
package export

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"demoreel/internal/analysis"
	"demoreel/internal/columnar"
	"demoreel/internal/model"
	"demoreel/internal/persistence/indexdb"
	jsonl "demoreel/internal/persistence/log"
	"demoreel/internal/render"
)

type NamedTable struct {
	Name  string
	Table *columnar.Table
}

// Tables packs every output set of res into columns, in a fixed order.
// Empty sets are skipped.
func Tables(res *analysis.Result) ([]NamedTable, error) {
	var out []NamedTable
	add := func(name string, recs []any) error {
		if len(recs) == 0 {
			return nil
		}
		t, err := columnar.Build(recs, columnar.Options{AllowNullFields: true})
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		out = append(out, NamedTable{Name: name, Table: t})
		return nil
	}
	var traceRows []model.WithTick[model.TraceRow]
	for _, t := range res.Traces {
		traceRows = append(traceRows, t.Rows()...)
	}
	steps := []struct {
		name string
		recs []any
	}{
		{indexdb.TableRoster, records(res.Roster)},
		{indexdb.TableStates, records(res.States)},
		{indexdb.TableEvents, records(res.Events)},
		{indexdb.TableBounds, records(res.Bounds)},
		{indexdb.TableKills, records(res.Kills)},
		{indexdb.TableTraces, records(traceRows)},
	}
	for _, s := range steps {
		if err := add(s.name, s.recs); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func records[T any](vs []T) []any {
	out := make([]any, len(vs))
	for i, v := range vs {
		out[i] = v
	}
	return out
}

// Sink writes results to any combination of a SQLite index, a directory of
// JSONL+zstd files and a directory of trace plots. Zero-valued sinks are skipped.
type Sink struct {
	DB      *indexdb.SQLiteIndex
	Dir     string
	PlotDir string
	Logger  *zap.Logger
}

// Write stores res and returns the run id (empty without a DB).
func (s Sink) Write(ctx context.Context, res *analysis.Result, source string) (string, error) {
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}
	var runID string
	if s.DB != nil {
		tables, err := Tables(res)
		if err != nil {
			return "", err
		}
		runID, err = s.DB.BeginRun(ctx, res.Header, source)
		if err != nil {
			return "", err
		}
		for _, t := range tables {
			if err := s.DB.WriteTable(ctx, runID, t.Name, t.Table); err != nil {
				return runID, err
			}
			log.Debug("table written", zap.String("run", runID), zap.String("table", t.Name), zap.Int("rows", t.Table.Rows))
		}
		if err := s.DB.FinishRun(ctx, runID, indexdb.Summary{
			Messages: res.Messages,
			LastTick: res.LastTick,
			Roster:   len(res.Roster),
			Events:   len(res.Events),
			Traces:   len(res.Traces),
		}); err != nil {
			return runID, err
		}
	}
	if s.Dir != "" {
		if err := writeFiles(s.Dir, res); err != nil {
			return runID, err
		}
	}
	if s.PlotDir != "" {
		n, err := WritePlots(s.PlotDir, res)
		if err != nil {
			return runID, err
		}
		log.Debug("plots written", zap.String("dir", s.PlotDir), zap.Int("count", n))
	}
	return runID, nil
}

func writeFiles(dir string, res *analysis.Result) error {
	steps := []func() (string, error){
		func() (string, error) { return jsonl.WriteAll(dir, indexdb.TableRoster, res.Roster) },
		func() (string, error) { return jsonl.WriteAll(dir, indexdb.TableStates, res.States) },
		func() (string, error) { return jsonl.WriteAll(dir, indexdb.TableEvents, res.Events) },
		func() (string, error) { return jsonl.WriteAll(dir, indexdb.TableBounds, res.Bounds) },
		func() (string, error) { return jsonl.WriteAll(dir, indexdb.TableKills, res.Kills) },
	}
	for _, step := range steps {
		if _, err := step(); err != nil {
			return err
		}
	}
	tl := jsonl.NewTraceLogger(dir)
	for _, t := range res.Traces {
		if err := tl.WriteTrace(t); err != nil {
			_ = tl.Close()
			return err
		}
	}
	return tl.Close()
}

// WritePlots renders one PNG per trace into dir, framed by the world bounds
// in effect at the trace's tick.
func WritePlots(dir string, res *analysis.Result) (int, error) {
	if len(res.Traces) == 0 {
		return 0, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return 0, err
	}
	for _, t := range res.Traces {
		path := filepath.Join(dir, fmt.Sprintf("trace-%05d.png", t.Seq))
		f, err := os.Create(path)
		if err != nil {
			return 0, err
		}
		err = render.TracePNG(f, render.PlotFromTrace(t, BoundsAt(res.Bounds, t.Tick)), render.Options{})
		if cerr := f.Close(); err == nil {
			err = cerr
		}
		if err != nil {
			return 0, fmt.Errorf("%s: %w", path, err)
		}
	}
	return len(res.Traces), nil
}

// BoundsAt returns the last bounds recorded at or before tick.
func BoundsAt(bounds []model.WithTick[model.WorldBounds], tick uint32) *model.WorldBounds {
	var out *model.WorldBounds
	for i := range bounds {
		if bounds[i].Tick > tick {
			break
		}
		out = &bounds[i].Inner
	}
	return out
}
