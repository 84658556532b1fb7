package model

import (
	"strings"

	"github.com/leighmacdonald/steamid/v4/steamid"
)

// SteamID64 parses any textual Steam id form ([U:1:x], STEAM_0:x:y, 64-bit).
// It returns 0 when s is not a valid Steam id.
func SteamID64(s string) int64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	sid := steamid.New(s)
	if !sid.Valid() {
		return 0
	}
	return sid.Int64()
}

// SamePersistentID compares two persistent ids. Steam ids are compared by
// their 64-bit value, anything else verbatim.
func SamePersistentID(a, b string) bool {
	if x, y := SteamID64(a), SteamID64(b); x != 0 && y != 0 {
		return x == y
	}
	return strings.TrimSpace(a) == strings.TrimSpace(b)
}
