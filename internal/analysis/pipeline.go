package analysis

import (
	"context"
	"errors"
	"io"
	"time"

	"go.uber.org/zap"

	"demoreel/internal/model"
	"demoreel/internal/protocol"
)

type Config struct {
	SourceIdentity string
	HistoryCap     int
	TraceKeep      TraceKeep
	SkipSelfDamage bool

	Logger   *zap.Logger
	Observer Observer
}

// Observer receives pipeline events, typically for metrics.
type Observer interface {
	MessageProcessed(kind protocol.Kind)
	TraceEmitted()
	CorrelationMissed(reason MissReason)
}

type nopObserver struct{}

func (nopObserver) MessageProcessed(protocol.Kind) {}
func (nopObserver) TraceEmitted()                  {}
func (nopObserver) CorrelationMissed(MissReason)   {}

// Source yields decoded messages; Next returns io.EOF at the end of the stream.
type Source interface {
	Next() (protocol.Message, error)
}

// Result holds the output sets of one run.
type Result struct {
	Header   protocol.Header                     `json:"header"`
	Roster   []model.PlayerIdentity              `json:"roster"`
	States   []model.WithTick[model.PlayerState] `json:"states"`
	Events   []model.WithTick[model.DamageEvent] `json:"events"`
	Bounds   []model.WithTick[model.WorldBounds] `json:"bounds"`
	Kills    []model.WithTick[model.Kill]        `json:"kills"`
	Traces   []model.DamageTrace                 `json:"traces"`
	Messages int                                 `json:"messages"`
	LastTick uint32                              `json:"last_tick"`
	Elapsed  time.Duration                       `json:"elapsed_ns"`
}

// Pipeline runs every analyser over one message stream. It is single-use and
// not safe for concurrent use; run independent pipelines for parallelism.
type Pipeline struct {
	header protocol.Header
	log    *zap.Logger
	obs    Observer

	roster     *Roster
	aggregator *Aggregator
	correlator *Correlator
	collector  *Collector

	messages int
	lastTick uint32
	started  time.Time
}

func New(header protocol.Header, cfg Config) *Pipeline {
	log := cfg.Logger
	if log == nil {
		log = zap.NewNop()
	}
	obs := cfg.Observer
	if obs == nil {
		obs = nopObserver{}
	}
	return &Pipeline{
		header:     header,
		log:        log,
		obs:        obs,
		roster:     NewRoster(),
		aggregator: NewAggregator(),
		correlator: NewCorrelator(CorrelatorConfig{
			SourceIdentity: cfg.SourceIdentity,
			HistoryCap:     cfg.HistoryCap,
			Logger:         log.Named("correlator"),
		}),
		collector: NewCollector(cfg.TraceKeep.Resolve(cfg.SourceIdentity), cfg.SkipSelfDamage),
		started:   time.Now(),
	}
}

// Aggregator exposes the world model, e.g. for per-tick snapshots.
func (p *Pipeline) Aggregator() *Aggregator { return p.aggregator }

// Process folds one message through roster, aggregator, delta, collector and
// correlator, in that order. It returns the trace this message produced, if
// any. The only error is an undecodable userinfo payload.
func (p *Pipeline) Process(m protocol.Message) (*model.DamageTrace, error) {
	p.messages++
	p.lastTick = m.Tick
	p.obs.MessageProcessed(m.Kind)

	if m.Kind == protocol.KindStringTable {
		e := m.StringTable
		if _, err := p.roster.ObserveStringTableEntry(e.Table, e.Index, e.Data); err != nil {
			return nil, err
		}
	}

	prev := p.aggregator.Players()
	change := p.aggregator.Apply(m)

	// Every message snapshots every identified player, changed or not.
	delta := ComputeDelta(prev, p.aggregator.Players())
	p.collector.AddStates(m.Tick, delta)
	if change.World {
		p.collector.AddBounds(m.Tick, p.aggregator.World())
	}
	p.correlator.Observe(m.Tick, delta)

	hurt, ok := m.Damage()
	if !ok {
		return nil, nil
	}
	ev := hurt.Damage()
	p.collector.AddEvent(m.Tick, ev)

	trace, miss := p.correlator.Correlate(m.Tick, ev, p.aggregator)
	if trace == nil {
		p.obs.CorrelationMissed(miss)
		return nil, nil
	}
	if !p.collector.AddTrace(*trace) {
		return nil, nil
	}
	p.obs.TraceEmitted()
	p.log.Debug("trace",
		zap.Int("seq", trace.Seq),
		zap.Uint32("tick", trace.Tick),
		zap.Uint16("attacker", ev.AttackerUserID),
		zap.Uint16("victim", ev.VictimUserID),
		zap.Int("states", len(trace.States)))
	return trace, nil
}

func (p *Pipeline) Result() *Result {
	return &Result{
		Header:   p.header,
		Roster:   p.roster.Players(),
		States:   p.collector.States(),
		Events:   p.collector.Events(),
		Bounds:   p.collector.Bounds(),
		Kills:    p.aggregator.Kills(),
		Traces:   p.collector.Traces(),
		Messages: p.messages,
		LastTick: p.lastTick,
		Elapsed:  time.Since(p.started),
	}
}

// Run pulls src to the end. onTrace, when non-nil, sees every trace as it is
// produced; its error aborts the run. ctx is checked between messages.
func Run(ctx context.Context, header protocol.Header, src Source, cfg Config, onTrace func(model.DamageTrace) error) (*Result, error) {
	p := New(header, cfg)
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		m, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		trace, err := p.Process(m)
		if err != nil {
			return nil, err
		}
		if trace != nil && onTrace != nil {
			if err := onTrace(*trace); err != nil {
				return nil, err
			}
		}
	}
	res := p.Result()
	p.log.Info("run complete",
		zap.Int("messages", res.Messages),
		zap.Int("roster", len(res.Roster)),
		zap.Int("events", len(res.Events)),
		zap.Int("traces", len(res.Traces)),
		zap.Duration("elapsed", res.Elapsed))
	return res, nil
}

// Summary counts the result's output sets.
func (r *Result) Summary() protocol.RunSummary {
	return protocol.RunSummary{
		Messages: r.Messages,
		LastTick: r.LastTick,
		Roster:   len(r.Roster),
		Events:   len(r.Events),
		Bounds:   len(r.Bounds),
		Traces:   len(r.Traces),
	}
}
