package analysis

import "demoreel/internal/model"

// Key is the identity key used to deduplicate players. All players without
// a bound user id share the zero Key.
type Key struct {
	UserID uint16
	Known  bool
}

// KeyOf returns the merge key of p.
func KeyOf(p model.PlayerState) Key {
	if p.UserID == nil {
		return Key{}
	}
	return Key{UserID: *p.UserID, Known: true}
}

// Delta is the keyed merge of two consecutive player lists: every key present
// in either list, each mapped to its most current state.
type Delta struct {
	order   []Key
	players map[Key]model.PlayerState

	// Added lists keys present in next but not in prev.
	Added []Key
	// Removed lists keys present in prev but not in next.
	Removed []Key
}

// ComputeDelta merges next over prev. Keys are ordered as they first appear
// in next, followed by keys found only in prev. When a key occurs more than
// once in a list the first occurrence wins.
func ComputeDelta(prev, next []model.PlayerState) Delta {
	d := Delta{players: make(map[Key]model.PlayerState, len(next)+len(prev))}
	inPrev := make(map[Key]struct{}, len(prev))
	for _, p := range prev {
		inPrev[KeyOf(p)] = struct{}{}
	}
	for _, p := range next {
		k := KeyOf(p)
		if _, ok := d.players[k]; ok {
			continue
		}
		d.players[k] = p
		d.order = append(d.order, k)
		if _, ok := inPrev[k]; !ok {
			d.Added = append(d.Added, k)
		}
	}
	for _, p := range prev {
		k := KeyOf(p)
		if _, ok := d.players[k]; ok {
			continue
		}
		d.players[k] = p
		d.order = append(d.order, k)
		d.Removed = append(d.Removed, k)
	}
	return d
}

// Len returns the number of distinct keys.
func (d Delta) Len() int { return len(d.order) }

// Keys returns the keys in merge order.
func (d Delta) Keys() []Key { return d.order }

// Get returns the merged state for k.
func (d Delta) Get(k Key) (model.PlayerState, bool) {
	p, ok := d.players[k]
	return p, ok
}

// Players returns the merged states in key order.
func (d Delta) Players() []model.PlayerState {
	out := make([]model.PlayerState, 0, len(d.order))
	for _, k := range d.order {
		out = append(out, d.players[k])
	}
	return out
}
