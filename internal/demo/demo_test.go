package demo

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"

	"demoreel/internal/protocol"
)

func sampleStream(t *testing.T, compress bool) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := NewWriter(&buf, compress)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	if err := w.WriteHeader(protocol.Header{DemoType: "HL2DEMO", Map: "cp_process_final", Ticks: 3}); err != nil {
		t.Fatalf("WriteHeader: %v", err)
	}
	hp := uint16(125)
	msgs := []protocol.Message{
		{Kind: protocol.KindPlayer, Tick: 1, Player: &protocol.PlayerMsg{Entity: 1, Health: &hp}},
		{Kind: protocol.KindPlayer, Tick: 1, Player: &protocol.PlayerMsg{Entity: 2, Health: &hp}},
		{Kind: protocol.KindPlayerRemove, Tick: 3, PlayerRemove: &protocol.PlayerRemoveMsg{Entity: 2}},
	}
	for _, m := range msgs {
		if err := w.WriteMessage(m); err != nil {
			t.Fatalf("WriteMessage: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func readAll(t *testing.T, r *Reader) []protocol.Message {
	t.Helper()
	var out []protocol.Message
	for {
		m, err := r.Next()
		if err == io.EOF {
			return out
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		out = append(out, m)
	}
}

func TestReader_PlainAndZstd(t *testing.T) {
	for _, compress := range []bool{false, true} {
		raw := sampleStream(t, compress)
		if compress && !bytes.HasPrefix(raw, zstdMagic) {
			t.Fatalf("expected zstd frame")
		}
		r, err := Open(bytes.NewReader(raw))
		if err != nil {
			t.Fatalf("Open(compress=%v): %v", compress, err)
		}
		if r.Header().Map != "cp_process_final" {
			t.Fatalf("header: %+v", r.Header())
		}
		msgs := readAll(t, r)
		_ = r.Close()
		if len(msgs) != 3 {
			t.Fatalf("compress=%v: got %d messages", compress, len(msgs))
		}
		if msgs[2].Kind != protocol.KindPlayerRemove || msgs[2].Tick != 3 {
			t.Fatalf("unexpected last message: %+v", msgs[2])
		}
	}
}

func TestReader_SkipsBlankLines(t *testing.T) {
	in := "{\"type\":\"HEADER\",\"demo_type\":\"HL2DEMO\",\"map\":\"m\"}\n\n  \n{\"type\":\"PLAYER\",\"tick\":1,\"entity\":1}\n"
	r, err := Open(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if got := len(readAll(t, r)); got != 1 {
		t.Fatalf("got %d messages", got)
	}
}

func TestReader_TickOrder(t *testing.T) {
	in := `{"type":"HEADER","demo_type":"HL2DEMO","map":"m"}
{"type":"PLAYER","tick":5,"entity":1}
{"type":"PLAYER","tick":4,"entity":1}
`
	r, err := Open(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := r.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	_, err = r.Next()
	if !errors.Is(err, ErrTickOrder) || !errors.Is(err, ErrDecode) {
		t.Fatalf("expected tick order decode error, got %v", err)
	}
}

func TestReader_Errors(t *testing.T) {
	if _, err := Open(strings.NewReader("")); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("empty stream: got %v", err)
	}
	if _, err := Open(strings.NewReader(`{"type":"PLAYER","tick":1,"entity":1}`)); !errors.Is(err, protocol.ErrUnexpectedType) {
		t.Fatalf("missing header: got %v", err)
	}

	r, err := Open(strings.NewReader("{\"type\":\"HEADER\",\"demo_type\":\"HL2DEMO\",\"map\":\"m\"}\n{\"type\":\"BOGUS\",\"tick\":1}\n"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, protocol.ErrUnknownType) {
		t.Fatalf("expected unknown type, got %v", err)
	}
}

func TestReader_Validator(t *testing.T) {
	v, err := protocol.NewValidator()
	if err != nil {
		t.Fatalf("NewValidator: %v", err)
	}
	in := `{"type":"HEADER","demo_type":"HL2DEMO","map":"m"}
{"type":"PLAYER","tick":1,"entity":1,"health":-5}
`
	r, err := Open(strings.NewReader(in), WithValidator(v))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if _, err := r.Next(); !errors.Is(err, protocol.ErrSchema) {
		t.Fatalf("expected schema error, got %v", err)
	}
}

func TestLineDecoder_RequiresHeader(t *testing.T) {
	d := NewLineDecoder(nil)
	if _, err := d.Message([]byte(`{"type":"PLAYER","tick":1,"entity":1}`)); !errors.Is(err, ErrNoHeader) {
		t.Fatalf("expected ErrNoHeader, got %v", err)
	}
}
