package analysis

import (
	"go.uber.org/zap"

	"demoreel/internal/model"
)

// MissReason explains why a damage event produced no trace. Misses are
// expected: identity resolution races with world-model population.
type MissReason string

const (
	MissNone               MissReason = ""
	MissAttackerUnresolved MissReason = "attacker_unresolved"
	MissVictimUnresolved   MissReason = "victim_unresolved"
	MissSameVictim         MissReason = "same_victim"
	MissStaleAttacker      MissReason = "stale_attacker"
	MissEmptyHistory       MissReason = "empty_history"
)

// WorldView is the part of the world model the correlator resolves against.
type WorldView interface {
	Players() []model.PlayerState
	Identity(userID uint16) (model.PlayerIdentity, bool)
}

// CorrelatorConfig configures a Correlator.
type CorrelatorConfig struct {
	// SourceIdentity restricts correlation to one attacker, by persistent id.
	SourceIdentity string
	// HistoryCap bounds each per-player ring (DefaultHistoryCap if <= 0,
	// clamped to MaxHistoryCap).
	HistoryCap int
	Logger     *zap.Logger
}

// Correlator turns damage events into traces of the attacker's and victim's
// recent states. One instance serves one stream and is not safe for
// concurrent use.
type Correlator struct {
	source string
	cap    int
	log    *zap.Logger

	histories map[uint16]*history

	pending  *model.PlayerState // last resolved attacker
	lastPair *[2]uint16         // attacker, victim of the last trace
	seq      int
}

// NewCorrelator returns a Correlator with empty histories.
func NewCorrelator(cfg CorrelatorConfig) *Correlator {
	c := &Correlator{
		source:    cfg.SourceIdentity,
		cap:       cfg.HistoryCap,
		log:       cfg.Logger,
		histories: make(map[uint16]*history),
	}
	if c.cap <= 0 {
		c.cap = DefaultHistoryCap
	}
	c.cap = min(c.cap, MaxHistoryCap)
	if c.log == nil {
		c.log = zap.NewNop()
	}
	return c
}

// Observe appends a snapshot for every identified player in the delta.
func (c *Correlator) Observe(tick uint32, d Delta) {
	for _, k := range d.Keys() {
		if !k.Known {
			continue
		}
		p, _ := d.Get(k)
		h := c.histories[k.UserID]
		if h == nil {
			h = newHistory(c.cap)
			c.histories[k.UserID] = h
		}
		h.push(model.Stamp(tick, p))
	}
}

// HistoryLen returns the number of retained snapshots for userID.
func (c *Correlator) HistoryLen(userID uint16) int {
	if h := c.histories[userID]; h != nil {
		return h.len()
	}
	return 0
}

// Pending returns the attacker carried over to the next event, if any.
func (c *Correlator) Pending() (model.PlayerState, bool) {
	if c.pending == nil {
		return model.PlayerState{}, false
	}
	return *c.pending, true
}

// Correlate resolves one damage event. It returns the trace when the event is
// a new damage instance, otherwise nil and the reason it was skipped.
func (c *Correlator) Correlate(tick uint32, ev model.DamageEvent, w WorldView) (*model.DamageTrace, MissReason) {
	players := w.Players()

	attacker, ok := c.resolveAttacker(ev, players, w)
	if !ok {
		c.log.Debug("attacker unresolved", zap.Uint32("tick", tick), zap.Uint16("attacker", ev.AttackerUserID))
		return nil, MissAttackerUnresolved
	}
	victim, ok := findUser(players, ev.VictimUserID)
	if !ok {
		c.log.Debug("victim unresolved", zap.Uint32("tick", tick), zap.Uint16("victim", ev.VictimUserID))
		return nil, MissVictimUnresolved
	}
	defer func() { c.pending = &attacker }()

	victimID := *victim.UserID
	switch {
	case c.lastPair != nil && c.lastPair[1] == victimID:
		return nil, MissSameVictim
	case attacker.UserID != nil && *attacker.UserID != ev.AttackerUserID:
		return nil, MissStaleAttacker
	case c.HistoryLen(victimID) == 0:
		return nil, MissEmptyHistory
	}

	victimStates := c.drain(victimID)
	var attackerStates []model.WithTick[model.PlayerState]
	var attackerID uint16
	if attacker.UserID != nil {
		attackerID = *attacker.UserID
		attackerStates = c.drain(attackerID)
	}

	c.seq++
	trace := &model.DamageTrace{
		Seq:      c.seq,
		Tick:     tick,
		Event:    ev,
		Attacker: attacker,
		Victim:   victim,
		States:   Interleave(victimStates, attackerStates),
	}
	if id, ok := w.Identity(victimID); ok {
		trace.VictimIdentity = &id
	}
	if attacker.UserID != nil {
		if id, ok := w.Identity(attackerID); ok {
			trace.AttackerIdentity = &id
		}
	}
	c.lastPair = &[2]uint16{attackerID, victimID}
	return trace, MissNone
}

func (c *Correlator) resolveAttacker(ev model.DamageEvent, players []model.PlayerState, w WorldView) (model.PlayerState, bool) {
	if c.source == "" {
		return findUser(players, ev.AttackerUserID)
	}
	if c.pending != nil {
		return *c.pending, true
	}
	for _, p := range players {
		if p.UserID == nil {
			continue
		}
		if id, ok := w.Identity(*p.UserID); ok && model.SamePersistentID(id.SteamID, c.source) {
			return p, true
		}
	}
	return model.PlayerState{}, false
}

// drain removes the ring for userID and returns its most recent entries,
// most recent first.
func (c *Correlator) drain(userID uint16) []model.WithTick[model.PlayerState] {
	h := c.histories[userID]
	if h == nil {
		return nil
	}
	delete(c.histories, userID)
	return h.recent(c.cap)
}

func findUser(players []model.PlayerState, userID uint16) (model.PlayerState, bool) {
	for _, p := range players {
		if p.HasUserID(userID) {
			return p, true
		}
	}
	return model.PlayerState{}, false
}
