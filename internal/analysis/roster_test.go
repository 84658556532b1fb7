package analysis

import (
	"errors"
	"testing"

	"demoreel/internal/model"
	"demoreel/internal/protocol"
)

func TestRoster_UniqueFirstSeen(t *testing.T) {
	r := NewRoster()
	entries := []struct {
		uid  uint16
		name string
		want bool
	}{
		{3, "c", true},
		{1, "a", true},
		{3, "c-renamed", false},
		{2, "b", true},
		{1, "a", false},
	}
	for i, e := range entries {
		data := protocol.EncodePlayerInfo(model.PlayerIdentity{UserID: e.uid, Name: e.name})
		added, err := r.ObserveStringTableEntry(protocol.UserInfoTable, uint16(i), data)
		if err != nil {
			t.Fatalf("entry %d: %v", i, err)
		}
		if added != e.want {
			t.Fatalf("entry %d: added=%v want %v", i, added, e.want)
		}
	}
	var got []uint16
	for _, p := range r.Players() {
		got = append(got, p.UserID)
	}
	if len(got) != 3 || got[0] != 3 || got[1] != 1 || got[2] != 2 {
		t.Fatalf("roster order: %v", got)
	}
	if r.Players()[0].Name != "c" {
		t.Fatalf("identity must not change after first sight: %+v", r.Players()[0])
	}
}

func TestRoster_IgnoresAndErrors(t *testing.T) {
	r := NewRoster()
	if added, err := r.ObserveStringTableEntry("instancebaseline", 0, []byte("garbage")); added || err != nil {
		t.Fatalf("other table: %v %v", added, err)
	}
	if added, err := r.ObserveStringTableEntry(protocol.UserInfoTable, 0, []byte(`{"name":"x"}`)); added || err != nil {
		t.Fatalf("shape mismatch should be ignored: %v %v", added, err)
	}
	if added, err := r.ObserveStringTableEntry(protocol.UserInfoTable, 0, nil); added || err != nil {
		t.Fatalf("empty payload should be ignored: %v %v", added, err)
	}
	_, err := r.ObserveStringTableEntry(protocol.UserInfoTable, 4, []byte{0xff, 0x00, 0x01})
	if !errors.Is(err, protocol.ErrPlayerInfo) {
		t.Fatalf("expected ErrPlayerInfo, got %v", err)
	}
	if r.Len() != 0 {
		t.Fatalf("roster should be empty")
	}
}
