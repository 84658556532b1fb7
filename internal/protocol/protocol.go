package protocol

import (
	"encoding/json"
	"fmt"
)

const Version = "1.0"

// Message types.
const (
	TypeHeader       = "HEADER"
	TypePlayer       = "PLAYER"
	TypePlayerRemove = "PLAYER_REMOVE"
	TypeWorld        = "WORLD"
	TypeStringTable  = "STRING_TABLE"
	TypeGameEvent    = "GAME_EVENT"

	// TypeEnd terminates a stream sent frame by frame (websocket transport).
	TypeEnd = "END"

	// Server to client.
	TypeTrace = "TRACE"
	TypeDone  = "DONE"
	TypeError = "ERROR"
)

// Game event names carried by GAME_EVENT.
const (
	EventPlayerHurt  = "player_hurt"
	EventPlayerDeath = "player_death"
)

// UserInfoTable is the string table that carries player identities.
const UserInfoTable = "userinfo"

// BaseMessage lets us route JSON lines by type.
type BaseMessage struct {
	Type string `json:"type"`
	Tick uint32 `json:"tick"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}

type Kind uint8

const (
	KindPlayer Kind = iota + 1
	KindPlayerRemove
	KindWorld
	KindStringTable
	KindGameEvent
)

func (k Kind) String() string {
	switch k {
	case KindPlayer:
		return "player"
	case KindPlayerRemove:
		return "player_remove"
	case KindWorld:
		return "world"
	case KindStringTable:
		return "string_table"
	case KindGameEvent:
		return "game_event"
	default:
		return "unknown"
	}
}

// Message is one decoded (message, tick) pair. Exactly one payload pointer,
// selected by Kind, is set.
type Message struct {
	Kind Kind
	Tick uint32

	Player       *PlayerMsg
	PlayerRemove *PlayerRemoveMsg
	World        *WorldMsg
	StringTable  *StringTableMsg
	GameEvent    *GameEventMsg
}

// Damage returns the player_hurt payload of a player_hurt event.
func (m Message) Damage() (*PlayerHurt, bool) {
	if m.Kind != KindGameEvent || m.GameEvent == nil || m.GameEvent.Event != EventPlayerHurt || m.GameEvent.PlayerHurt == nil {
		return nil, false
	}
	return m.GameEvent.PlayerHurt, true
}

// Decode parses one message line. The header line is not a message; use DecodeHeader.
func Decode(line []byte) (Message, error) {
	base, err := DecodeBase(line)
	if err != nil {
		return Message{}, err
	}
	m := Message{Tick: base.Tick}
	switch base.Type {
	case TypePlayer:
		m.Kind, m.Player = KindPlayer, new(PlayerMsg)
		err = json.Unmarshal(line, m.Player)
	case TypePlayerRemove:
		m.Kind, m.PlayerRemove = KindPlayerRemove, new(PlayerRemoveMsg)
		err = json.Unmarshal(line, m.PlayerRemove)
	case TypeWorld:
		m.Kind, m.World = KindWorld, new(WorldMsg)
		err = json.Unmarshal(line, m.World)
	case TypeStringTable:
		m.Kind, m.StringTable = KindStringTable, new(StringTableMsg)
		err = json.Unmarshal(line, m.StringTable)
	case TypeGameEvent:
		m.Kind, m.GameEvent = KindGameEvent, new(GameEventMsg)
		err = json.Unmarshal(line, m.GameEvent)
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownType, base.Type)
	}
	if err != nil {
		return Message{}, fmt.Errorf("%s: %w", base.Type, err)
	}
	return m, nil
}

func DecodeHeader(line []byte) (Header, error) {
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return h, err
	}
	if h.Type != TypeHeader {
		return h, fmt.Errorf("%w: want %s, got %q", ErrUnexpectedType, TypeHeader, h.Type)
	}
	return h, nil
}

// Encode renders a message back into its line form.
func Encode(m Message) ([]byte, error) {
	switch m.Kind {
	case KindPlayer:
		v := *m.Player
		v.Type, v.Tick = TypePlayer, m.Tick
		return json.Marshal(v)
	case KindPlayerRemove:
		v := *m.PlayerRemove
		v.Type, v.Tick = TypePlayerRemove, m.Tick
		return json.Marshal(v)
	case KindWorld:
		v := *m.World
		v.Type, v.Tick = TypeWorld, m.Tick
		return json.Marshal(v)
	case KindStringTable:
		v := *m.StringTable
		v.Type, v.Tick = TypeStringTable, m.Tick
		return json.Marshal(v)
	case KindGameEvent:
		v := *m.GameEvent
		v.Type, v.Tick = TypeGameEvent, m.Tick
		return json.Marshal(v)
	}
	return nil, fmt.Errorf("%w: kind %d", ErrUnknownType, m.Kind)
}
