package analysis

import (
	"fmt"

	"demoreel/internal/model"
	"demoreel/internal/protocol"
)

// Roster collects one identity per user id in first-seen order.
type Roster struct {
	players []model.PlayerIdentity
	seen    map[uint16]struct{}
}

func NewRoster() *Roster {
	return &Roster{seen: make(map[uint16]struct{})}
}

// ObserveStringTableEntry reports whether the entry introduced a new user id.
// Entries from tables other than userinfo, and payloads without the
// player-info shape, are ignored. Undecodable payloads are returned as errors.
func (r *Roster) ObserveStringTableEntry(table string, index uint16, data []byte) (bool, error) {
	if table != protocol.UserInfoTable {
		return false, nil
	}
	id, err := protocol.ParsePlayerInfo(data)
	if err != nil {
		return false, fmt.Errorf("userinfo[%d]: %w", index, err)
	}
	if id == nil {
		return false, nil
	}
	if _, ok := r.seen[id.UserID]; ok {
		return false, nil
	}
	r.seen[id.UserID] = struct{}{}
	r.players = append(r.players, *id)
	return true, nil
}

func (r *Roster) Players() []model.PlayerIdentity { return r.players }

func (r *Roster) Len() int { return len(r.players) }
