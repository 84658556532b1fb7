package analysis

import (
	"reflect"
	"testing"

	"demoreel/internal/model"
)

// observe records one snapshot per player and tick in [from, to], with the
// position set to the tick.
func observe(c *Correlator, from, to uint32, players ...model.PlayerState) {
	for tick := from; tick <= to; tick++ {
		next := make([]model.PlayerState, len(players))
		for i, p := range players {
			p.Position.X = float32(tick)
			next[i] = p
		}
		c.Observe(tick, ComputeDelta(nil, next))
	}
}

func ticksAndUsers(states []model.WithTick[model.PlayerState]) ([]uint32, []uint16) {
	var ticks []uint32
	var users []uint16
	for _, s := range states {
		ticks = append(ticks, s.Tick)
		users = append(users, *s.Inner.UserID)
	}
	return ticks, users
}

func TestInterleave(t *testing.T) {
	cases := []struct {
		a, b, want []int
	}{
		{nil, nil, []int{}},
		{[]int{1, 2, 3}, nil, []int{1, 2, 3}},
		{nil, []int{4}, []int{4}},
		{[]int{1, 2, 3}, []int{7, 8}, []int{1, 7, 2, 8, 3}},
		{[]int{1}, []int{7, 8, 9}, []int{1, 7, 8, 9}},
	}
	for _, tc := range cases {
		if got := Interleave(tc.a, tc.b); !reflect.DeepEqual(got, tc.want) {
			t.Fatalf("Interleave(%v, %v) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestHistory_RingKeepsMostRecent(t *testing.T) {
	h := newHistory(3)
	for tick := uint32(1); tick <= 5; tick++ {
		h.push(model.Stamp(tick, model.PlayerState{}))
	}
	if h.len() != 3 {
		t.Fatalf("len %d", h.len())
	}
	var got []uint32
	for _, s := range h.recent(10) {
		got = append(got, s.Tick)
	}
	if !reflect.DeepEqual(got, []uint32{5, 4, 3}) {
		t.Fatalf("recent: %v", got)
	}
	if n := len(h.recent(2)); n != 2 {
		t.Fatalf("limit ignored: %d", n)
	}
}

func TestCorrelator_InterleavesVictimFirst(t *testing.T) {
	c := NewCorrelator(CorrelatorConfig{})
	attacker, victim := stateOf(1, 1, 0), stateOf(2, 2, 0)
	observe(c, 1, 3, victim, attacker)
	observe(c, 4, 5, victim)

	w := fakeWorld{players: []model.PlayerState{attacker, victim}}
	tr, miss := c.Correlate(5, model.DamageEvent{AttackerUserID: 1, VictimUserID: 2, Amount: 10}, w)
	if tr == nil {
		t.Fatalf("no trace: %s", miss)
	}
	ticks, users := ticksAndUsers(tr.States)
	if !reflect.DeepEqual(ticks, []uint32{5, 3, 4, 2, 3, 1, 2, 1}) {
		t.Fatalf("ticks: %v", ticks)
	}
	if !reflect.DeepEqual(users, []uint16{2, 1, 2, 1, 2, 1, 2, 2}) {
		t.Fatalf("users: %v", users)
	}
	if tr.Seq != 1 || tr.Tick != 5 || tr.Event.Amount != 10 {
		t.Fatalf("trace header: %+v", tr)
	}
	if c.HistoryLen(1) != 0 || c.HistoryLen(2) != 0 {
		t.Fatalf("histories should be drained")
	}
	if p, ok := c.Pending(); !ok || !p.HasUserID(1) {
		t.Fatalf("pending attacker: %+v %v", p, ok)
	}
}

func TestCorrelator_TruncatesToCap(t *testing.T) {
	c := NewCorrelator(CorrelatorConfig{HistoryCap: 4})
	attacker, victim := stateOf(1, 1, 0), stateOf(2, 2, 0)
	observe(c, 1, 10, victim, attacker)

	w := fakeWorld{players: []model.PlayerState{attacker, victim}}
	tr, _ := c.Correlate(10, model.DamageEvent{AttackerUserID: 1, VictimUserID: 2}, w)
	if tr == nil {
		t.Fatalf("no trace")
	}
	ticks, _ := ticksAndUsers(tr.States)
	if !reflect.DeepEqual(ticks, []uint32{10, 10, 9, 9, 8, 8, 7, 7}) {
		t.Fatalf("ticks: %v", ticks)
	}
}

func TestCorrelator_DefaultCap(t *testing.T) {
	c := NewCorrelator(CorrelatorConfig{})
	attacker, victim := stateOf(1, 1, 0), stateOf(2, 2, 0)
	observe(c, 1, 300, victim, attacker)

	tr, _ := c.Correlate(300, model.DamageEvent{AttackerUserID: 1, VictimUserID: 2}, fakeWorld{players: []model.PlayerState{attacker, victim}})
	if tr == nil || len(tr.States) != 2*DefaultHistoryCap {
		t.Fatalf("want %d states", 2*DefaultHistoryCap)
	}
}

func TestCorrelator_CapAboveMaxIsClamped(t *testing.T) {
	c := NewCorrelator(CorrelatorConfig{HistoryCap: 200})
	attacker, victim := stateOf(1, 1, 0), stateOf(2, 2, 0)
	observe(c, 1, 300, victim, attacker)
	if n := c.HistoryLen(2); n != MaxHistoryCap {
		t.Fatalf("ring holds %d", n)
	}

	tr, _ := c.Correlate(300, model.DamageEvent{AttackerUserID: 1, VictimUserID: 2}, fakeWorld{players: []model.PlayerState{attacker, victim}})
	if tr == nil {
		t.Fatalf("no trace")
	}
	if len(tr.States) > 2*MaxHistoryCap {
		t.Fatalf("trace has %d states", len(tr.States))
	}
	ticks, _ := ticksAndUsers(tr.States)
	if ticks[0] != 300 || ticks[len(ticks)-1] != 300-MaxHistoryCap+1 {
		t.Fatalf("tick range %d..%d", ticks[len(ticks)-1], ticks[0])
	}
}

func TestCorrelator_UnresolvedAttackerLeavesPending(t *testing.T) {
	c := NewCorrelator(CorrelatorConfig{})
	attacker, victim := stateOf(1, 1, 0), stateOf(2, 2, 0)
	observe(c, 1, 2, victim, attacker)
	w := fakeWorld{players: []model.PlayerState{attacker, victim}}

	tr, miss := c.Correlate(2, model.DamageEvent{AttackerUserID: 9, VictimUserID: 2}, w)
	if tr != nil || miss != MissAttackerUnresolved {
		t.Fatalf("got %v %q", tr, miss)
	}
	if _, ok := c.Pending(); ok {
		t.Fatalf("pending must stay unset")
	}
	if c.HistoryLen(2) != 2 {
		t.Fatalf("history must be untouched")
	}

	tr, miss = c.Correlate(2, model.DamageEvent{AttackerUserID: 1, VictimUserID: 9}, w)
	if tr != nil || miss != MissVictimUnresolved {
		t.Fatalf("got %v %q", tr, miss)
	}
	if _, ok := c.Pending(); ok {
		t.Fatalf("victim miss must not set pending")
	}
}

func TestCorrelator_SameVictimSuppressed(t *testing.T) {
	c := NewCorrelator(CorrelatorConfig{})
	attacker, victim := stateOf(1, 1, 0), stateOf(2, 2, 0)
	w := fakeWorld{players: []model.PlayerState{attacker, victim}}
	ev := model.DamageEvent{AttackerUserID: 1, VictimUserID: 2}

	observe(c, 1, 3, victim, attacker)
	if tr, _ := c.Correlate(3, ev, w); tr == nil {
		t.Fatalf("first event should trace")
	}
	observe(c, 4, 4, victim, attacker)
	tr, miss := c.Correlate(4, ev, w)
	if tr != nil || miss != MissSameVictim {
		t.Fatalf("second event: %v %q", tr, miss)
	}
	if c.HistoryLen(2) != 1 {
		t.Fatalf("suppressed event must not drain")
	}
}

func TestCorrelator_EmptyVictimHistory(t *testing.T) {
	c := NewCorrelator(CorrelatorConfig{})
	attacker, victim := stateOf(1, 1, 0), stateOf(2, 2, 0)
	observe(c, 1, 2, attacker)

	tr, miss := c.Correlate(2, model.DamageEvent{AttackerUserID: 1, VictimUserID: 2}, fakeWorld{players: []model.PlayerState{attacker, victim}})
	if tr != nil || miss != MissEmptyHistory {
		t.Fatalf("got %v %q", tr, miss)
	}
	if p, ok := c.Pending(); !ok || !p.HasUserID(1) {
		t.Fatalf("pending attacker must be recorded even without a trace")
	}
}

func TestCorrelator_SourceIdentity(t *testing.T) {
	const steam3, steam64 = "[U:1:82537314]", "76561198042803042"
	c := NewCorrelator(CorrelatorConfig{SourceIdentity: steam64})
	src, v1, other, v2 := stateOf(1, 1, 0), stateOf(2, 2, 0), stateOf(3, 3, 0), stateOf(4, 4, 0)
	w := fakeWorld{
		players:    []model.PlayerState{other, v1, v2},
		identities: map[uint16]model.PlayerIdentity{1: {UserID: 1, SteamID: steam3}, 3: {UserID: 3, SteamID: "[U:1:5]"}},
	}

	observe(c, 1, 2, src, v1, other, v2)
	// Source not in the world yet.
	if tr, miss := c.Correlate(2, model.DamageEvent{AttackerUserID: 1, VictimUserID: 2}, w); tr != nil || miss != MissAttackerUnresolved {
		t.Fatalf("got %v %q", tr, miss)
	}

	w.players = append(w.players, src)
	tr, miss := c.Correlate(2, model.DamageEvent{AttackerUserID: 1, VictimUserID: 2}, w)
	if tr == nil {
		t.Fatalf("source trace: %q", miss)
	}
	if tr.AttackerIdentity == nil || tr.AttackerIdentity.SteamID != steam3 {
		t.Fatalf("attacker identity: %+v", tr.AttackerIdentity)
	}

	// The pending source is the attacker now, so another player's event is stale.
	observe(c, 3, 3, src, v1, other, v2)
	if tr, miss := c.Correlate(3, model.DamageEvent{AttackerUserID: 3, VictimUserID: 4}, w); tr != nil || miss != MissStaleAttacker {
		t.Fatalf("got %v %q", tr, miss)
	}
	tr, miss = c.Correlate(3, model.DamageEvent{AttackerUserID: 1, VictimUserID: 4}, w)
	if tr == nil {
		t.Fatalf("new victim should trace: %q", miss)
	}
	if !tr.Attacker.HasUserID(1) || !tr.Victim.HasUserID(4) {
		t.Fatalf("trace pair: %+v %+v", tr.Attacker, tr.Victim)
	}
	if tr.Seq != 2 {
		t.Fatalf("seq %d", tr.Seq)
	}
}

func TestCorrelator_ObserveSkipsUnidentified(t *testing.T) {
	c := NewCorrelator(CorrelatorConfig{})
	c.Observe(1, ComputeDelta(nil, []model.PlayerState{{Entity: 1}, stateOf(2, 2, 0)}))
	if c.HistoryLen(0) != 0 || c.HistoryLen(2) != 1 {
		t.Fatalf("histories: 0=%d 2=%d", c.HistoryLen(0), c.HistoryLen(2))
	}
}
