package analysis

import (
	"io"

	"demoreel/internal/model"
	"demoreel/internal/protocol"
)

type sliceSource struct {
	msgs []protocol.Message
	i    int
}

func (s *sliceSource) Next() (protocol.Message, error) {
	if s.i >= len(s.msgs) {
		return protocol.Message{}, io.EOF
	}
	m := s.msgs[s.i]
	s.i++
	return m, nil
}

func u16(v uint16) *uint16 { return &v }

// userinfo binds uid to entity index+1.
func userinfo(tick uint32, index, uid uint16, steam string) protocol.Message {
	return protocol.Message{
		Kind: protocol.KindStringTable,
		Tick: tick,
		StringTable: &protocol.StringTableMsg{
			Table: protocol.UserInfoTable,
			Index: index,
			Data:  protocol.EncodePlayerInfo(model.PlayerIdentity{UserID: uid, SteamID: steam, Name: steam}),
		},
	}
}

func move(tick, entity uint32, x float32) protocol.Message {
	return protocol.Message{
		Kind:   protocol.KindPlayer,
		Tick:   tick,
		Player: &protocol.PlayerMsg{Entity: entity, Position: &model.Vector{X: x}},
	}
}

func health(tick, entity uint32, hp uint16) protocol.Message {
	return protocol.Message{
		Kind:   protocol.KindPlayer,
		Tick:   tick,
		Player: &protocol.PlayerMsg{Entity: entity, Health: &hp},
	}
}

func hurt(tick uint32, attacker, victim, amount uint16) protocol.Message {
	return protocol.Message{
		Kind: protocol.KindGameEvent,
		Tick: tick,
		GameEvent: &protocol.GameEventMsg{
			Event:      protocol.EventPlayerHurt,
			PlayerHurt: &protocol.PlayerHurt{Attacker: attacker, UserID: victim, DamageAmount: amount},
		},
	}
}

func world(tick uint32, max float32) protocol.Message {
	return protocol.Message{
		Kind:  protocol.KindWorld,
		Tick:  tick,
		World: &protocol.WorldMsg{BoundaryMax: model.Vector{X: max, Y: max, Z: max}},
	}
}

// stateOf builds an identified player state.
func stateOf(entity uint32, uid uint16, x float32) model.PlayerState {
	return model.PlayerState{Entity: entity, UserID: u16(uid), Position: model.Vector{X: x}}
}

type fakeWorld struct {
	players    []model.PlayerState
	identities map[uint16]model.PlayerIdentity
}

func (w fakeWorld) Players() []model.PlayerState { return w.players }

func (w fakeWorld) Identity(uid uint16) (model.PlayerIdentity, bool) {
	id, ok := w.identities[uid]
	return id, ok
}
