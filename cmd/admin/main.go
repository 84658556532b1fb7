package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	goccy "github.com/goccy/go-json"
	"github.com/rodaine/table"

	"demoreel/internal/persistence/indexdb"
	"demoreel/internal/render"
)

const usage = `usage: admin <command> [flags]

commands:
  runs                 list analysis runs, newest first
  roster  -run <id>    players identified in a run
  traces  -run <id>    damage traces of a run
  plot    -run <id> -seq <n> -out <file.png>
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "runs":
		err = runsCmd(os.Args[2:], os.Stdout)
	case "roster":
		err = rosterCmd(os.Args[2:], os.Stdout)
	case "traces":
		err = tracesCmd(os.Args[2:], os.Stdout)
	case "plot":
		err = plotCmd(os.Args[2:], os.Stdout)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, os.Args[1]+":", err)
		os.Exit(1)
	}
}

type common struct {
	db  *string
	run *string
}

func commonFlags(fs *flag.FlagSet, withRun bool) common {
	c := common{db: fs.String("db", "data/demoreel.db", "sqlite output db")}
	if withRun {
		c.run = fs.String("run", "", "run id or unique prefix (default: latest run)")
	}
	return c
}

func open(c common) (*indexdb.SQLiteIndex, error) {
	if _, err := os.Stat(*c.db); err != nil {
		return nil, err
	}
	return indexdb.OpenSQLite(*c.db)
}

// resolveRun expands a run id prefix; empty means the latest run.
func resolveRun(ctx context.Context, idx *indexdb.SQLiteIndex, id string) (indexdb.Run, error) {
	if id = strings.TrimSpace(id); id != "" {
		return idx.Run(ctx, id)
	}
	runs, err := idx.Runs(ctx)
	if err != nil {
		return indexdb.Run{}, err
	}
	if len(runs) == 0 {
		return indexdb.Run{}, indexdb.ErrRunNotFound
	}
	return runs[0], nil
}

func runsCmd(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("runs", flag.ExitOnError)
	c := commonFlags(fs, false)
	limit := fs.Int("limit", 20, "result limit")
	asJSON := fs.Bool("json", false, "print runs as JSON")
	_ = fs.Parse(args)

	idx, err := open(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	runs, err := idx.Runs(ctx)
	if err != nil {
		return err
	}
	if *limit > 0 && len(runs) > *limit {
		runs = runs[:*limit]
	}
	if *asJSON {
		js, err := goccy.MarshalIndent(runs, "", "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(w, string(js))
		return err
	}
	t := table.New("Run", "Source", "Map", "Messages", "Last Tick", "Roster", "Events", "Traces", "Started").WithWriter(w)
	for _, r := range runs {
		t.AddRow(shortID(r.ID), r.Source, r.Map, r.Messages, r.LastTick, r.Roster, r.Events, r.Traces, r.StartedAt)
	}
	t.Print()
	return nil
}

func rosterCmd(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("roster", flag.ExitOnError)
	c := commonFlags(fs, true)
	_ = fs.Parse(args)

	idx, err := open(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	run, err := resolveRun(ctx, idx, *c.run)
	if err != nil {
		return err
	}
	rows, err := idx.Rows(ctx, run.ID, indexdb.TableRoster, "user_id", "steam_id", "steam_id64", "name", "is_fake_player")
	if err != nil {
		return err
	}
	t := table.New("User", "Steam", "Steam64", "Name", "Bot").WithWriter(w)
	for _, r := range rows {
		t.AddRow(cell(r[0]), cell(r[1]), cell(r[2]), cell(r[3]), cell(r[4]))
	}
	t.Print()
	return nil
}

type traceRow struct {
	seq      int64
	first    int64
	last     int64
	states   int
	victim   int64
	attacker int64
}

func tracesCmd(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("traces", flag.ExitOnError)
	c := commonFlags(fs, true)
	_ = fs.Parse(args)

	idx, err := open(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	run, err := resolveRun(ctx, idx, *c.run)
	if err != nil {
		return err
	}
	rows, err := idx.Rows(ctx, run.ID, indexdb.TableTraces, "trace_seq", "tick", "user_id", "is_victim")
	if err != nil {
		return err
	}
	bySeq := map[int64]*traceRow{}
	for _, r := range rows {
		seq, tick := asInt(r[0]), asInt(r[1])
		tr := bySeq[seq]
		if tr == nil {
			tr = &traceRow{seq: seq, first: tick, last: tick, victim: -1, attacker: -1}
			bySeq[seq] = tr
		}
		tr.states++
		tr.first = min(tr.first, tick)
		tr.last = max(tr.last, tick)
		if asInt(r[3]) != 0 {
			tr.victim = asInt(r[2])
		} else {
			tr.attacker = asInt(r[2])
		}
	}
	out := make([]*traceRow, 0, len(bySeq))
	for _, tr := range bySeq {
		out = append(out, tr)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].seq < out[j].seq })

	t := table.New("Seq", "Attacker", "Victim", "States", "From Tick", "To Tick").WithWriter(w)
	for _, tr := range out {
		t.AddRow(tr.seq, orDash(tr.attacker), orDash(tr.victim), tr.states, tr.first, tr.last)
	}
	t.Print()
	return nil
}

func plotCmd(args []string, w io.Writer) error {
	fs := flag.NewFlagSet("plot", flag.ExitOnError)
	c := commonFlags(fs, true)
	seq := fs.Int("seq", 1, "trace sequence number")
	outPath := fs.String("out", "", "output png (default: trace-<seq>.png)")
	size := fs.Int("size", 800, "image width and height in pixels")
	_ = fs.Parse(args)

	idx, err := open(c)
	if err != nil {
		return err
	}
	defer idx.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	run, err := resolveRun(ctx, idx, *c.run)
	if err != nil {
		return err
	}
	pts, err := idx.TracePoints(ctx, run.ID, *seq)
	if err != nil {
		return err
	}
	if len(pts) == 0 {
		return fmt.Errorf("run %s has no trace %d", shortID(run.ID), *seq)
	}
	plot := plotFromPoints(fmt.Sprintf("%s trace %d", run.Map, *seq), pts)

	path := *outPath
	if path == "" {
		path = fmt.Sprintf("trace-%05d.png", *seq)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := render.TracePNG(f, plot, render.Options{Width: *size, Height: *size}); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	fmt.Fprintln(w, path)
	return nil
}

func plotFromPoints(title string, pts []indexdb.TracePoint) render.TracePlot {
	sorted := append([]indexdb.TracePoint(nil), pts...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Tick < sorted[j].Tick })
	p := render.TracePlot{Title: title}
	for _, tp := range sorted {
		pt := render.Point{Tick: tp.Tick, X: tp.X, Y: tp.Y}
		if tp.IsVictim {
			p.Victim = append(p.Victim, pt)
		} else {
			p.Attacker = append(p.Attacker, pt)
		}
	}
	return p
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func cell(v any) any {
	switch x := v.(type) {
	case nil:
		return "-"
	case []byte:
		return string(x)
	default:
		return x
	}
}

func asInt(v any) int64 {
	switch x := v.(type) {
	case int64:
		return x
	case float64:
		return int64(x)
	case bool:
		if x {
			return 1
		}
	}
	return 0
}

func orDash(v int64) any {
	if v < 0 {
		return "-"
	}
	return v
}
