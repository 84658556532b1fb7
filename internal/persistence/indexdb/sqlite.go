package indexdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"demoreel/internal/columnar"
	"demoreel/internal/protocol"
)

var (
	ErrUnknownTable = errors.New("unknown output table")
	ErrRunNotFound  = errors.New("run not found")
)

// Output tables, one row set per run.
const (
	TableRoster = "roster"
	TableStates = "states"
	TableEvents = "events"
	TableBounds = "bounds"
	TableKills  = "kills"
	TableTraces = "traces"
)

var outputTables = map[string]bool{
	TableRoster: true,
	TableStates: true,
	TableEvents: true,
	TableBounds: true,
	TableKills:  true,
	TableTraces: true,
}

// SQLiteIndex stores analysis runs. Output tables are created from the
// inferred schema of the first table written and widened as new fields show up.
type SQLiteIndex struct {
	db *sql.DB

	mu   sync.Mutex
	once sync.Once
}

type Run struct {
	ID         string
	Source     string
	Map        string
	Server     string
	DemoTicks  uint32
	StartedAt  string
	FinishedAt string
	Messages   int
	LastTick   uint32
	Roster     int
	Events     int
	Traces     int
}

// Summary is recorded when a run completes.
type Summary struct {
	Messages int
	LastTick uint32
	Roster   int
	Events   int
	Traces   int
}

func OpenSQLite(path string) (*SQLiteIndex, error) {
	if path == "" {
		return nil, fmt.Errorf("empty db path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := initPragmas(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &SQLiteIndex{db: db}, nil
}

func initPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA foreign_keys=ON;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA temp_store=MEMORY;",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			return err
		}
	}
	return nil
}

func initSchema(db *sql.DB) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS meta (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
		`INSERT OR REPLACE INTO meta(key,value) VALUES('schema_version','1');`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			source TEXT NOT NULL,
			map TEXT NOT NULL,
			server TEXT NOT NULL,
			demo_ticks INTEGER NOT NULL,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			messages INTEGER NOT NULL DEFAULT 0,
			last_tick INTEGER NOT NULL DEFAULT 0,
			roster INTEGER NOT NULL DEFAULT 0,
			events INTEGER NOT NULL DEFAULT 0,
			traces INTEGER NOT NULL DEFAULT 0
		);`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);`,
	}
	for _, s := range stmts {
		if _, err := db.Exec(s); err != nil {
			return err
		}
	}
	return nil
}

func (s *SQLiteIndex) Close() error {
	var err error
	s.once.Do(func() {
		err = s.db.Close()
	})
	return err
}

// BeginRun registers a new run and returns its id.
func (s *SQLiteIndex) BeginRun(ctx context.Context, h protocol.Header, source string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs(run_id,source,map,server,demo_ticks,started_at) VALUES(?,?,?,?,?,?)`,
		id, source, h.Map, h.Server, int64(h.Ticks), time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

func (s *SQLiteIndex) FinishRun(ctx context.Context, runID string, sum Summary) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET finished_at=?,messages=?,last_tick=?,roster=?,events=?,traces=? WHERE run_id=?`,
		time.Now().UTC().Format(time.RFC3339Nano), sum.Messages, int64(sum.LastTick), sum.Roster, sum.Events, sum.Traces, runID)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}

// WriteTable appends every row of t to the named output table, tagged with runID.
func (s *SQLiteIndex) WriteTable(ctx context.Context, runID, name string, t *columnar.Table) error {
	if !outputTables[name] {
		return fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	if t == nil || t.Rows == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if err := ensureTable(ctx, tx, name, t.Schema); err != nil {
		return fmt.Errorf("%s: %w", name, err)
	}

	cols := make([]string, 0, len(t.Columns)+1)
	marks := make([]string, 0, len(t.Columns)+1)
	cols = append(cols, "run_id")
	marks = append(marks, "?")
	for _, c := range t.Columns {
		cols = append(cols, quote(c.Name))
		marks = append(marks, "?")
	}
	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`INSERT INTO %s(%s) VALUES(%s)`,
		quote(name), strings.Join(cols, ","), strings.Join(marks, ",")))
	if err != nil {
		return err
	}
	defer stmt.Close()

	args := make([]any, len(cols))
	for i := 0; i < t.Rows; i++ {
		args[0] = runID
		for j, c := range t.Columns {
			args[j+1] = sqlValue(c.Value(i))
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			return fmt.Errorf("%s row %d: %w", name, i, err)
		}
	}
	return tx.Commit()
}

func ensureTable(ctx context.Context, tx *sql.Tx, name string, schema columnar.Schema) error {
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (run_id TEXT NOT NULL REFERENCES runs(run_id))`, quote(name))); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s ON %s(run_id)`, quote("idx_"+name+"_run"), quote(name))); err != nil {
		return err
	}
	have, err := columns(ctx, tx, name)
	if err != nil {
		return err
	}
	for _, f := range schema.Fields {
		if have[f.Name] {
			continue
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s`, quote(name), quote(f.Name), sqlType(f.Type))); err != nil {
			return err
		}
	}
	return nil
}

func columns(ctx context.Context, tx *sql.Tx, table string) (map[string]bool, error) {
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`PRAGMA table_info(%s)`, quote(table)))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var (
			cid     int
			name    string
			typ     string
			notNull int
			dflt    sql.NullString
			pk      int
		)
		if err := rows.Scan(&cid, &name, &typ, &notNull, &dflt, &pk); err != nil {
			return nil, err
		}
		out[name] = true
	}
	return out, rows.Err()
}

func sqlType(t columnar.Type) string {
	switch t {
	case columnar.Bool, columnar.Int:
		return "INTEGER"
	case columnar.Float:
		return "REAL"
	}
	return "TEXT"
}

func sqlValue(v any) any {
	if b, ok := v.(bool); ok {
		if b {
			return int64(1)
		}
		return int64(0)
	}
	return v
}

func quote(ident string) string {
	return `"` + strings.ReplaceAll(ident, `"`, `""`) + `"`
}

func scanRun(sc interface{ Scan(...any) error }) (Run, error) {
	var (
		r        Run
		ticks    int64
		lastTick int64
		finished sql.NullString
	)
	if err := sc.Scan(&r.ID, &r.Source, &r.Map, &r.Server, &ticks, &r.StartedAt, &finished,
		&r.Messages, &lastTick, &r.Roster, &r.Events, &r.Traces); err != nil {
		return Run{}, err
	}
	r.DemoTicks = uint32(ticks)
	r.LastTick = uint32(lastTick)
	r.FinishedAt = finished.String
	return r, nil
}

const runColumns = `run_id,source,map,server,demo_ticks,started_at,finished_at,messages,last_tick,roster,events,traces`

// Runs lists runs, newest first.
func (s *SQLiteIndex) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs ORDER BY started_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Run looks up one run by id. A unique id prefix is accepted.
func (s *SQLiteIndex) Run(ctx context.Context, id string) (Run, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+runColumns+` FROM runs WHERE run_id LIKE ? || '%' LIMIT 2`, id)
	if err != nil {
		return Run{}, err
	}
	defer rows.Close()
	var found []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return Run{}, err
		}
		found = append(found, r)
	}
	if err := rows.Err(); err != nil {
		return Run{}, err
	}
	if len(found) != 1 {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return found[0], nil
}

// Rows returns the named columns of one output table for runID, in insertion
// order. Missing columns read as nil.
func (s *SQLiteIndex) Rows(ctx context.Context, runID, table string, cols ...string) ([][]any, error) {
	if !outputTables[table] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTable, table)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	have, err := columns(ctx, tx, table)
	if err != nil {
		return nil, err
	}
	if len(have) == 0 {
		return nil, nil
	}
	sel := make([]string, len(cols))
	for i, c := range cols {
		if have[c] {
			sel[i] = quote(c)
		} else {
			sel[i] = "NULL"
		}
	}
	rows, err := tx.QueryContext(ctx, fmt.Sprintf(`SELECT %s FROM %s WHERE run_id=? ORDER BY rowid`,
		strings.Join(sel, ","), quote(table)), runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		out = append(out, vals)
	}
	return out, rows.Err()
}

// TracePoint is one stored trace state, reduced to what a plot needs.
type TracePoint struct {
	Tick     uint32
	UserID   int64
	IsVictim bool
	X, Y     float64
}

// TracePoints returns the states of trace seq in run runID.
func (s *SQLiteIndex) TracePoints(ctx context.Context, runID string, seq int) ([]TracePoint, error) {
	rows, err := s.Rows(ctx, runID, TableTraces, "trace_seq", "tick", "user_id", "is_victim", "position.x", "position.y")
	if err != nil {
		return nil, err
	}
	var out []TracePoint
	for _, r := range rows {
		if asInt(r[0]) != int64(seq) {
			continue
		}
		out = append(out, TracePoint{
			Tick:     uint32(asInt(r[1])),
			UserID:   asInt(r[2]),
			IsVictim: asInt(r[3]) != 0,
			X:        asFloat(r[4]),
			Y:        asFloat(r[5]),
		})
	}
	return out, nil
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

func asFloat(v any) float64 {
	switch x := v.(type) {
	case int64:
		return float64(x)
	case float64:
		return x
	}
	return 0
}
