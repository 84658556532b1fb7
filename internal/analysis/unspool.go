package analysis

import (
	"context"
	"errors"
	"io"

	"demoreel/internal/jsonpath"
)

// Unspool replays src through a world model and emits the filtered
// GameState once per tick, after all of that tick's messages are applied.
// Only every tickFreq-th distinct tick is emitted, starting with the first.
func Unspool(ctx context.Context, src Source, path *jsonpath.Path, tickFreq uint32, emit func(any) error) error {
	if tickFreq == 0 {
		tickFreq = 1
	}
	agg := NewAggregator()
	var (
		seq     uint32
		cur     uint32
		started bool
	)
	flush := func() error {
		if seq%tickFreq != 0 {
			return nil
		}
		v, ok, err := jsonpath.Filter(path, agg.State(cur))
		if err != nil || !ok {
			return err
		}
		return emit(v)
	}
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if started && m.Tick != cur {
			if err := flush(); err != nil {
				return err
			}
			seq++
		}
		cur, started = m.Tick, true
		agg.Apply(m)
	}
	if !started {
		return nil
	}
	return flush()
}
