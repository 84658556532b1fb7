package analysis

import (
	"demoreel/internal/model"
	"demoreel/internal/protocol"
)

// Change reports which parts of the world model an Apply replaced.
type Change struct {
	Players bool
	World   bool
}

// GameState is the serialisable view of the world model at one tick.
type GameState struct {
	Tick    uint32                       `json:"tick"`
	Players []model.PlayerState          `json:"players"`
	World   *model.WorldBounds           `json:"world"`
	Kills   []model.WithTick[model.Kill] `json:"kills"`
}

// Aggregator holds the canonical world model: players in order of first
// appearance, identities bound from the userinfo table, world bounds and the
// kill feed.
//
// The player list is copy-on-write: a slice returned by Players is never
// modified by later Apply calls, so callers can keep it as the "before" view.
type Aggregator struct {
	players []model.PlayerState
	index   map[uint32]int // entity -> position in players

	identities map[uint32]model.PlayerIdentity // entity -> identity
	byUser     map[uint16]model.PlayerIdentity

	world *model.WorldBounds
	kills []model.WithTick[model.Kill]
}

// NewAggregator returns an empty world model.
func NewAggregator() *Aggregator {
	return &Aggregator{
		index:      make(map[uint32]int),
		identities: make(map[uint32]model.PlayerIdentity),
		byUser:     make(map[uint16]model.PlayerIdentity),
	}
}

// Players returns the current player list. Do not modify the returned slice.
func (a *Aggregator) Players() []model.PlayerState { return a.players }

// World returns the latest world bounds, or nil before the first WORLD message.
func (a *Aggregator) World() *model.WorldBounds { return a.world }

func (a *Aggregator) Kills() []model.WithTick[model.Kill] { return a.kills }

// Identity returns the latest identity bound to userID.
func (a *Aggregator) Identity(userID uint16) (model.PlayerIdentity, bool) {
	id, ok := a.byUser[userID]
	return id, ok
}

// State snapshots the world model for tick.
func (a *Aggregator) State(tick uint32) GameState {
	return GameState{Tick: tick, Players: a.players, World: a.world, Kills: a.kills}
}

// Apply folds one message into the world model.
func (a *Aggregator) Apply(m protocol.Message) Change {
	switch m.Kind {
	case protocol.KindPlayer:
		a.applyPlayer(m.Player)
		return Change{Players: true}

	case protocol.KindPlayerRemove:
		return Change{Players: a.removePlayer(m.PlayerRemove.Entity)}

	case protocol.KindWorld:
		b := m.World.Bounds()
		a.world = &b
		return Change{World: true}

	case protocol.KindStringTable:
		return Change{Players: a.applyStringTable(m.StringTable)}

	case protocol.KindGameEvent:
		if d := m.GameEvent.PlayerDeath; d != nil && m.GameEvent.Event == protocol.EventPlayerDeath {
			a.kills = append(a.kills, model.Stamp(m.Tick, model.Kill{
				Attacker: d.Attacker,
				Assister: d.Assister,
				Victim:   d.UserID,
				Weapon:   d.Weapon,
			}))
		}
	}
	return Change{}
}

func (a *Aggregator) applyPlayer(u *protocol.PlayerMsg) {
	pos, exists := a.index[u.Entity]
	var p model.PlayerState
	if exists {
		p = a.players[pos]
	} else {
		p = model.PlayerState{Entity: u.Entity}
	}
	if p.UserID == nil {
		if id, ok := a.identities[u.Entity]; ok {
			uid := id.UserID
			p.UserID = &uid
		}
	}
	if u.Position != nil {
		p.Position = *u.Position
	}
	if u.Health != nil {
		p.Health = *u.Health
	}
	if u.MaxHealth != nil {
		p.MaxHealth = *u.MaxHealth
	}
	if u.Class != nil {
		p.Class = *u.Class
	}
	if u.Team != nil {
		p.Team = *u.Team
	}
	if u.ViewAngle != nil {
		p.ViewAngle = *u.ViewAngle
	}
	if u.PitchAngle != nil {
		p.PitchAngle = *u.PitchAngle
	}
	if u.State != nil {
		p.LifeState = *u.State
	}
	if u.Charge != nil {
		p.Charge = *u.Charge
	}
	if u.InPVS != nil {
		p.InPVS = *u.InPVS
	}
	if u.SimTime != nil {
		p.SimTime = *u.SimTime
	}

	if exists {
		a.replace(pos, p)
		return
	}
	next := make([]model.PlayerState, len(a.players), len(a.players)+1)
	copy(next, a.players)
	a.players = append(next, p)
	a.index[u.Entity] = len(a.players) - 1
}

func (a *Aggregator) replace(pos int, p model.PlayerState) {
	next := make([]model.PlayerState, len(a.players))
	copy(next, a.players)
	next[pos] = p
	a.players = next
}

func (a *Aggregator) removePlayer(entity uint32) bool {
	pos, ok := a.index[entity]
	if !ok {
		return false
	}
	next := make([]model.PlayerState, 0, len(a.players)-1)
	next = append(next, a.players[:pos]...)
	next = append(next, a.players[pos+1:]...)
	a.players = next
	delete(a.index, entity)
	for i := pos; i < len(a.players); i++ {
		a.index[a.players[i].Entity] = i
	}
	return true
}

// applyStringTable binds a userinfo identity to entity index+1. The identity
// may arrive before the entity's first update; applyPlayer picks it up then.
func (a *Aggregator) applyStringTable(e *protocol.StringTableMsg) bool {
	if e.Table != protocol.UserInfoTable {
		return false
	}
	id, err := protocol.ParsePlayerInfo(e.Data)
	if err != nil || id == nil {
		return false
	}
	entity := uint32(e.Index) + 1
	a.identities[entity] = *id
	a.byUser[id.UserID] = *id

	pos, ok := a.index[entity]
	if !ok {
		return false
	}
	p := a.players[pos]
	if p.HasUserID(id.UserID) {
		return false
	}
	uid := id.UserID
	p.UserID = &uid
	a.replace(pos, p)
	return true
}
