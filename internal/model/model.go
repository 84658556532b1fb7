package model

import (
	"bytes"
	"encoding/json"
	"strconv"
)

type Vector struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
	Z float32 `json:"z"`
}

// PlayerIdentity is created from the first userinfo entry seen for a user id
// and never changes afterwards.
type PlayerIdentity struct {
	UserID          uint16    `json:"user_id"`
	SteamID         string    `json:"steam_id"`
	SteamID64       int64     `json:"steam_id64"` // 0 when SteamID is not a valid Steam id
	Name            string    `json:"name"`
	FriendsID       uint32    `json:"friends_id"`
	IsFakePlayer    bool      `json:"is_fake_player"`
	IsHLTV          bool      `json:"is_hl_tv"`
	IsReplay        bool      `json:"is_replay"`
	CustomFile      [4]uint32 `json:"custom_file"`
	FilesDownloaded uint32    `json:"files_downloaded"`
	MoreExtra       bool      `json:"more_extra"`
}

// PlayerState is the world model's latest view of one player entity.
// UserID is nil until a userinfo entry has been bound to the entity.
type PlayerState struct {
	Entity     uint32    `json:"entity"`
	UserID     *uint16   `json:"user_id"`
	Position   Vector    `json:"position"`
	Health     uint16    `json:"health"`
	MaxHealth  uint16    `json:"max_health"`
	Class      Class     `json:"class"`
	Team       Team      `json:"team"`
	ViewAngle  float32   `json:"view_angle"`
	PitchAngle float32   `json:"pitch_angle"`
	LifeState  LifeState `json:"state"`
	Charge     uint8     `json:"charge"`
	InPVS      bool      `json:"in_pvs"`
	SimTime    uint16    `json:"simtime"`
}

// Identified reports whether the state carries a user id.
func (p PlayerState) Identified() bool { return p.UserID != nil }

// HasUserID reports whether the state is bound to id.
func (p PlayerState) HasUserID(id uint16) bool { return p.UserID != nil && *p.UserID == id }

type WorldBounds struct {
	Min Vector `json:"boundary_min"`
	Max Vector `json:"boundary_max"`
}

type DamageEvent struct {
	AttackerUserID uint16 `json:"attacker"`
	VictimUserID   uint16 `json:"victim"`
	Amount         uint16 `json:"damage_amount"`
	Health         uint16 `json:"health"`
	Crit           bool   `json:"crit"`
	MiniCrit       bool   `json:"mini_crit"`
	WeaponID       uint16 `json:"weapon_id"`
	Custom         uint16 `json:"custom"`
}

type Kill struct {
	Attacker uint16 `json:"attacker"`
	Assister uint16 `json:"assister"`
	Victim   uint16 `json:"victim"`
	Weapon   string `json:"weapon"`
}

// WithTick stamps a value with the tick it was produced at.
// It serialises flat: the inner object's fields plus "tick".
type WithTick[T any] struct {
	Tick  uint32
	Inner T
}

func Stamp[T any](tick uint32, v T) WithTick[T] { return WithTick[T]{Tick: tick, Inner: v} }

func (w WithTick[T]) MarshalJSON() ([]byte, error) {
	inner, err := json.Marshal(w.Inner)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString(`{"tick":`)
	buf.WriteString(strconv.FormatUint(uint64(w.Tick), 10))
	inner = bytes.TrimSpace(inner)
	switch {
	case bytes.Equal(inner, []byte("{}")):
		buf.WriteByte('}')
	case len(inner) > 0 && inner[0] == '{':
		buf.WriteByte(',')
		buf.Write(inner[1:])
	default:
		buf.WriteString(`,"value":`)
		buf.Write(inner)
		buf.WriteByte('}')
	}
	return buf.Bytes(), nil
}

// DamageTrace is the interleaved victim/attacker history for one damage instance.
type DamageTrace struct {
	Seq              int                     `json:"seq"`
	Tick             uint32                  `json:"tick"`
	Event            DamageEvent             `json:"event"`
	Attacker         PlayerState             `json:"attacker"`
	Victim           PlayerState             `json:"victim"`
	AttackerIdentity *PlayerIdentity         `json:"attacker_identity"`
	VictimIdentity   *PlayerIdentity         `json:"victim_identity"`
	States           []WithTick[PlayerState] `json:"states"`
}

// TraceRow is one state of a trace in tabular form.
type TraceRow struct {
	TraceSeq int  `json:"trace_seq"`
	IsVictim bool `json:"is_victim"`
	PlayerState
}

// Rows flattens the trace for tabular sinks, one row per state.
func (t DamageTrace) Rows() []WithTick[TraceRow] {
	out := make([]WithTick[TraceRow], 0, len(t.States))
	for _, s := range t.States {
		out = append(out, Stamp(s.Tick, TraceRow{
			TraceSeq:    t.Seq,
			IsVictim:    s.Inner.HasUserID(t.Event.VictimUserID),
			PlayerState: s.Inner,
		}))
	}
	return out
}
