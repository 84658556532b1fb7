package protocol

import (
	"errors"
	"testing"

	"demoreel/internal/model"
)

func TestDecode_Kinds(t *testing.T) {
	cases := []struct {
		line string
		kind Kind
		tick uint32
	}{
		{`{"type":"PLAYER","tick":4,"entity":3,"health":150}`, KindPlayer, 4},
		{`{"type":"PLAYER_REMOVE","tick":5,"entity":3}`, KindPlayerRemove, 5},
		{`{"type":"WORLD","tick":0,"boundary_min":{"x":0,"y":0,"z":0},"boundary_max":{"x":1,"y":1,"z":1}}`, KindWorld, 0},
		{`{"type":"STRING_TABLE","tick":1,"table":"userinfo","index":2}`, KindStringTable, 1},
		{`{"type":"GAME_EVENT","tick":7,"event":"player_hurt","player_hurt":{"userid":2,"attacker":1,"damage_amount":30}}`, KindGameEvent, 7},
	}
	for _, c := range cases {
		m, err := Decode([]byte(c.line))
		if err != nil {
			t.Fatalf("Decode %s: %v", c.line, err)
		}
		if m.Kind != c.kind || m.Tick != c.tick {
			t.Fatalf("Decode %s: got kind=%v tick=%d", c.line, m.Kind, m.Tick)
		}
	}
}

func TestDecode_PartialPlayer(t *testing.T) {
	m, err := Decode([]byte(`{"type":"PLAYER","tick":4,"entity":3,"class":"spy"}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	p := m.Player
	if p.Class == nil || *p.Class != model.ClassSpy {
		t.Fatalf("class not decoded: %+v", p)
	}
	if p.Health != nil || p.Position != nil {
		t.Fatalf("absent fields must stay nil: %+v", p)
	}
}

func TestDecode_Damage(t *testing.T) {
	m, err := Decode([]byte(`{"type":"GAME_EVENT","tick":7,"event":"player_hurt","player_hurt":{"userid":2,"attacker":1,"health":70,"damage_amount":30,"crit":true}}`))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	hurt, ok := m.Damage()
	if !ok {
		t.Fatalf("expected damage payload")
	}
	ev := hurt.Damage()
	if ev.AttackerUserID != 1 || ev.VictimUserID != 2 || ev.Amount != 30 || ev.Health != 70 || !ev.Crit {
		t.Fatalf("unexpected event: %+v", ev)
	}

	m, _ = Decode([]byte(`{"type":"GAME_EVENT","tick":7,"event":"player_death","player_death":{"userid":2,"attacker":1}}`))
	if _, ok := m.Damage(); ok {
		t.Fatalf("player_death is not damage")
	}

	m, _ = Decode([]byte(`{"type":"GAME_EVENT","tick":7,"event":"player_death","player_hurt":{"userid":2,"attacker":1,"damage_amount":30}}`))
	if _, ok := m.Damage(); ok {
		t.Fatalf("hurt payload on a player_death event is not damage")
	}
}

func TestDecode_UnknownType(t *testing.T) {
	if _, err := Decode([]byte(`{"type":"CHAT","tick":1}`)); !errors.Is(err, ErrUnknownType) {
		t.Fatalf("expected ErrUnknownType, got %v", err)
	}
	if _, err := Decode([]byte(`not json`)); err == nil {
		t.Fatalf("expected syntax error")
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	h := uint16(99)
	in := Message{Kind: KindPlayer, Tick: 12, Player: &PlayerMsg{Entity: 4, Health: &h}}
	b, err := Encode(in)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	out, err := Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if out.Kind != KindPlayer || out.Tick != 12 || out.Player.Entity != 4 || *out.Player.Health != 99 {
		t.Fatalf("round trip mismatch: %s", b)
	}
}

func TestDecodeHeader(t *testing.T) {
	h, err := DecodeHeader([]byte(`{"type":"HEADER","demo_type":"HL2DEMO","map":"koth_product","ticks":100}`))
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if h.Map != "koth_product" || h.Ticks != 100 {
		t.Fatalf("unexpected header: %+v", h)
	}
	if _, err := DecodeHeader([]byte(`{"type":"PLAYER","tick":1,"entity":1}`)); !errors.Is(err, ErrUnexpectedType) {
		t.Fatalf("expected ErrUnexpectedType, got %v", err)
	}
}

func TestParsePlayerInfo(t *testing.T) {
	id, err := ParsePlayerInfo([]byte(`{"name":"medic main","user_id":7,"steam_id":"[U:1:82537314]","friends_id":82537314}`))
	if err != nil {
		t.Fatalf("ParsePlayerInfo: %v", err)
	}
	if id == nil || id.UserID != 7 || id.Name != "medic main" || id.SteamID64 != 76561198042803042 {
		t.Fatalf("unexpected identity: %+v", id)
	}

	for _, ignored := range []string{``, `[]`, `{"name":"x"}`, `{"user_id":"seven"}`, `42`} {
		id, err := ParsePlayerInfo([]byte(ignored))
		if err != nil || id != nil {
			t.Fatalf("payload %q should be ignored, got %+v %v", ignored, id, err)
		}
	}

	if _, err := ParsePlayerInfo([]byte{0x01, 0x02, 0xff}); !errors.Is(err, ErrPlayerInfo) {
		t.Fatalf("expected ErrPlayerInfo, got %v", err)
	}
}

func TestEncodePlayerInfo_RoundTrip(t *testing.T) {
	in := model.PlayerIdentity{UserID: 3, Name: "scout", SteamID: "BOT", IsFakePlayer: true}
	out, err := ParsePlayerInfo(EncodePlayerInfo(in))
	if err != nil || out == nil {
		t.Fatalf("ParsePlayerInfo: %+v %v", out, err)
	}
	if out.UserID != 3 || out.Name != "scout" || !out.IsFakePlayer || out.SteamID64 != 0 {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}
