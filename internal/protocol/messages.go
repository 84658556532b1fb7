package protocol

import "demoreel/internal/model"

// HEADER: first line of every stream. Passed through as run metadata.
type Header struct {
	Type     string  `json:"type"`
	DemoType string  `json:"demo_type"`
	Version  uint32  `json:"version"`
	Protocol uint32  `json:"protocol"`
	Server   string  `json:"server"`
	Nick     string  `json:"nick"`
	Map      string  `json:"map"`
	Game     string  `json:"game"`
	Duration float32 `json:"duration"`
	Ticks    uint32  `json:"ticks"`
	Frames   uint32  `json:"frames"`
	Signon   uint32  `json:"signon"`
}

// PLAYER: partial entity update. Nil fields keep their previous value.
type PlayerMsg struct {
	Type       string           `json:"type"`
	Tick       uint32           `json:"tick"`
	Entity     uint32           `json:"entity"`
	Position   *model.Vector    `json:"position,omitempty"`
	Health     *uint16          `json:"health,omitempty"`
	MaxHealth  *uint16          `json:"max_health,omitempty"`
	Class      *model.Class     `json:"class,omitempty"`
	Team       *model.Team      `json:"team,omitempty"`
	ViewAngle  *float32         `json:"view_angle,omitempty"`
	PitchAngle *float32         `json:"pitch_angle,omitempty"`
	State      *model.LifeState `json:"state,omitempty"`
	Charge     *uint8           `json:"charge,omitempty"`
	InPVS      *bool            `json:"in_pvs,omitempty"`
	SimTime    *uint16          `json:"simtime,omitempty"`
}

type PlayerRemoveMsg struct {
	Type   string `json:"type"`
	Tick   uint32 `json:"tick"`
	Entity uint32 `json:"entity"`
}

type WorldMsg struct {
	Type        string       `json:"type"`
	Tick        uint32       `json:"tick"`
	BoundaryMin model.Vector `json:"boundary_min"`
	BoundaryMax model.Vector `json:"boundary_max"`
}

func (m WorldMsg) Bounds() model.WorldBounds {
	return model.WorldBounds{Min: m.BoundaryMin, Max: m.BoundaryMax}
}

type StringTableMsg struct {
	Type  string `json:"type"`
	Tick  uint32 `json:"tick"`
	Table string `json:"table"`
	Index uint16 `json:"index"`
	Text  string `json:"text,omitempty"`
	Data  []byte `json:"data,omitempty"` // base64 in JSON
}

type GameEventMsg struct {
	Type        string       `json:"type"`
	Tick        uint32       `json:"tick"`
	Event       string       `json:"event"`
	PlayerHurt  *PlayerHurt  `json:"player_hurt,omitempty"`
	PlayerDeath *PlayerDeath `json:"player_death,omitempty"`
}

type PlayerHurt struct {
	UserID       uint16 `json:"userid"`
	Attacker     uint16 `json:"attacker"`
	Health       uint16 `json:"health"`
	DamageAmount uint16 `json:"damage_amount"`
	Custom       uint16 `json:"custom"`
	Crit         bool   `json:"crit"`
	MiniCrit     bool   `json:"mini_crit"`
	WeaponID     uint16 `json:"weapon_id"`
}

func (e PlayerHurt) Damage() model.DamageEvent {
	return model.DamageEvent{
		AttackerUserID: e.Attacker,
		VictimUserID:   e.UserID,
		Amount:         e.DamageAmount,
		Health:         e.Health,
		Crit:           e.Crit,
		MiniCrit:       e.MiniCrit,
		WeaponID:       e.WeaponID,
		Custom:         e.Custom,
	}
}

type PlayerDeath struct {
	UserID   uint16 `json:"userid"`
	Attacker uint16 `json:"attacker"`
	Assister uint16 `json:"assister"`
	Weapon   string `json:"weapon"`
}

// RunSummary counts the outputs of one run.
type RunSummary struct {
	RunID    string `json:"run_id,omitempty"`
	Messages int    `json:"messages"`
	LastTick uint32 `json:"last_tick"`
	Roster   int    `json:"roster"`
	Events   int    `json:"events"`
	Bounds   int    `json:"bounds"`
	Traces   int    `json:"traces"`
}

// TRACE: one damage trace, pushed as soon as it is produced.
type TraceMsg struct {
	Type  string            `json:"type"`
	Trace model.DamageTrace `json:"trace"`
}

// DONE: the stream ended cleanly.
type DoneMsg struct {
	Type    string     `json:"type"`
	Summary RunSummary `json:"summary"`
}

// ERROR: the stream was rejected. The connection closes after it.
type ErrorMsg struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}
