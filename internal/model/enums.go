package model

import "fmt"

type Class uint8

const (
	ClassOther Class = iota
	ClassScout
	ClassSoldier
	ClassPyro
	ClassDemoman
	ClassHeavy
	ClassEngineer
	ClassMedic
	ClassSniper
	ClassSpy
)

var classNames = [...]string{
	ClassOther:    "other",
	ClassScout:    "scout",
	ClassSoldier:  "soldier",
	ClassPyro:     "pyro",
	ClassDemoman:  "demoman",
	ClassHeavy:    "heavy",
	ClassEngineer: "engineer",
	ClassMedic:    "medic",
	ClassSniper:   "sniper",
	ClassSpy:      "spy",
}

func (c Class) String() string {
	if int(c) < len(classNames) {
		return classNames[c]
	}
	return "other"
}

func (c Class) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Class) UnmarshalText(b []byte) error {
	for i, name := range classNames {
		if name == string(b) {
			*c = Class(i)
			return nil
		}
	}
	return fmt.Errorf("unknown class %q", b)
}

type Team uint8

const (
	TeamOther Team = iota
	TeamSpectator
	TeamRed
	TeamBlue
)

var teamNames = [...]string{
	TeamOther:     "other",
	TeamSpectator: "spectator",
	TeamRed:       "red",
	TeamBlue:      "blu",
}

func (t Team) String() string {
	if int(t) < len(teamNames) {
		return teamNames[t]
	}
	return "other"
}

func (t Team) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

func (t *Team) UnmarshalText(b []byte) error {
	for i, name := range teamNames {
		if name == string(b) {
			*t = Team(i)
			return nil
		}
	}
	return fmt.Errorf("unknown team %q", b)
}

// LifeState mirrors the engine's m_lifeState. "queue" is the respawnable state.
type LifeState uint8

const (
	LifeAlive LifeState = iota
	LifeDying
	LifeDeath
	LifeRespawnable
)

var lifeNames = [...]string{
	LifeAlive:       "alive",
	LifeDying:       "dying",
	LifeDeath:       "death",
	LifeRespawnable: "queue",
}

func (s LifeState) String() string {
	if int(s) < len(lifeNames) {
		return lifeNames[s]
	}
	return "alive"
}

func (s LifeState) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *LifeState) UnmarshalText(b []byte) error {
	for i, name := range lifeNames {
		if name == string(b) {
			*s = LifeState(i)
			return nil
		}
	}
	return fmt.Errorf("unknown life state %q", b)
}
