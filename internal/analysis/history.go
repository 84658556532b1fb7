package analysis

import "demoreel/internal/model"

// MaxHistoryCap is the most snapshots per player that a trace can extract.
const MaxHistoryCap = 128

// DefaultHistoryCap is the ring size used when none is configured.
const DefaultHistoryCap = MaxHistoryCap

// history is a fixed-capacity ring of snapshots for one user id. Once full,
// each push overwrites the oldest entry.
type history struct {
	buf   []model.WithTick[model.PlayerState]
	start int
	n     int
}

func newHistory(capacity int) *history {
	return &history{buf: make([]model.WithTick[model.PlayerState], capacity)}
}

func (h *history) len() int { return h.n }

func (h *history) push(s model.WithTick[model.PlayerState]) {
	if h.n < len(h.buf) {
		h.buf[(h.start+h.n)%len(h.buf)] = s
		h.n++
		return
	}
	h.buf[h.start] = s
	h.start = (h.start + 1) % len(h.buf)
}

// recent returns up to limit entries, most recent first.
func (h *history) recent(limit int) []model.WithTick[model.PlayerState] {
	n := h.n
	if limit < n {
		n = limit
	}
	out := make([]model.WithTick[model.PlayerState], 0, n)
	for i := 0; i < n; i++ {
		out = append(out, h.buf[(h.start+h.n-1-i)%len(h.buf)])
	}
	return out
}

// Interleave merges two sequences element by element, a first, continuing
// with the remainder of the longer one.
func Interleave[T any](a, b []T) []T {
	out := make([]T, 0, len(a)+len(b))
	i := 0
	for ; i < len(a) && i < len(b); i++ {
		out = append(out, a[i], b[i])
	}
	out = append(out, a[i:]...)
	out = append(out, b[i:]...)
	return out
}
