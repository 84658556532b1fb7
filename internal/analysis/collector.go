package analysis

import (
	"fmt"

	"demoreel/internal/model"
)

// TraceKeep selects which traces the collector retains.
type TraceKeep string

const (
	// TraceKeepAuto keeps the latest trace when a source identity is set and
	// every trace otherwise.
	TraceKeepAuto   TraceKeep = "auto"
	TraceKeepLatest TraceKeep = "latest"
	TraceKeepAll    TraceKeep = "all"
)

func ParseTraceKeep(s string) (TraceKeep, error) {
	switch k := TraceKeep(s); k {
	case "":
		return TraceKeepAuto, nil
	case TraceKeepAuto, TraceKeepLatest, TraceKeepAll:
		return k, nil
	default:
		return "", fmt.Errorf("unknown trace_keep %q", s)
	}
}

// Resolve turns auto into a concrete policy.
func (k TraceKeep) Resolve(sourceIdentity string) TraceKeep {
	if k != TraceKeepAuto && k != "" {
		return k
	}
	if sourceIdentity != "" {
		return TraceKeepLatest
	}
	return TraceKeepAll
}

// Collector accumulates the output sets of one run.
type Collector struct {
	keep     TraceKeep
	skipSelf bool

	states []model.WithTick[model.PlayerState]
	events []model.WithTick[model.DamageEvent]
	bounds []model.WithTick[model.WorldBounds]
	traces []model.DamageTrace

	lastBounds *model.WorldBounds
}

// NewCollector expects keep to be resolved (latest or all).
func NewCollector(keep TraceKeep, skipSelfDamage bool) *Collector {
	return &Collector{keep: keep, skipSelf: skipSelfDamage}
}

// AddStates records every identified player of the delta.
func (c *Collector) AddStates(tick uint32, d Delta) {
	for _, k := range d.Keys() {
		if !k.Known {
			continue
		}
		p, _ := d.Get(k)
		c.states = append(c.states, model.Stamp(tick, p))
	}
}

// AddBounds records w when it differs from the last recorded bounds.
func (c *Collector) AddBounds(tick uint32, w *model.WorldBounds) {
	if w == nil || (c.lastBounds != nil && *c.lastBounds == *w) {
		return
	}
	b := *w
	c.lastBounds = &b
	c.bounds = append(c.bounds, model.Stamp(tick, b))
}

func (c *Collector) AddEvent(tick uint32, ev model.DamageEvent) {
	c.events = append(c.events, model.Stamp(tick, ev))
}

// AddTrace stores t according to the keep policy and reports whether it was
// kept. Self-inflicted damage is dropped when skipSelfDamage is set.
func (c *Collector) AddTrace(t model.DamageTrace) bool {
	if c.skipSelf && t.Attacker.UserID != nil && t.Victim.UserID != nil && *t.Attacker.UserID == *t.Victim.UserID {
		return false
	}
	if c.keep == TraceKeepLatest {
		c.traces = append(c.traces[:0], t)
		return true
	}
	c.traces = append(c.traces, t)
	return true
}

func (c *Collector) States() []model.WithTick[model.PlayerState] { return c.states }

func (c *Collector) Events() []model.WithTick[model.DamageEvent] { return c.events }

func (c *Collector) Bounds() []model.WithTick[model.WorldBounds] { return c.bounds }

func (c *Collector) Traces() []model.DamageTrace { return c.traces }
