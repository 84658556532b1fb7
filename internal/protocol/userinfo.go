package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"demoreel/internal/model"
)

type playerInfoPayload struct {
	Name            string    `json:"name"`
	UserID          *uint16   `json:"user_id"`
	SteamID         string    `json:"steam_id"`
	FriendsID       uint32    `json:"friends_id"`
	IsFakePlayer    bool      `json:"is_fake_player"`
	IsHLTV          bool      `json:"is_hltv"`
	IsReplay        bool      `json:"is_replay"`
	CustomFile      [4]uint32 `json:"custom_file"`
	FilesDownloaded uint32    `json:"files_downloaded"`
	MoreExtra       bool      `json:"more_extra"`
}

// ParsePlayerInfo decodes a userinfo string-table payload.
//
// A payload that is not a JSON document at all is an error. A document that
// does not have the player-info shape (including an empty payload, which is
// how the table clears a slot) yields (nil, nil).
func ParsePlayerInfo(data []byte) (*model.PlayerIdentity, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return nil, nil
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPlayerInfo, err)
	}
	if _, ok := generic.(map[string]any); !ok {
		return nil, nil
	}
	var p playerInfoPayload
	if err := json.Unmarshal(data, &p); err != nil {
		// Valid JSON with mismatched field types is not player info.
		return nil, nil
	}
	if p.UserID == nil {
		return nil, nil
	}
	return &model.PlayerIdentity{
		UserID:          *p.UserID,
		SteamID:         p.SteamID,
		SteamID64:       model.SteamID64(p.SteamID),
		Name:            p.Name,
		FriendsID:       p.FriendsID,
		IsFakePlayer:    p.IsFakePlayer,
		IsHLTV:          p.IsHLTV,
		IsReplay:        p.IsReplay,
		CustomFile:      p.CustomFile,
		FilesDownloaded: p.FilesDownloaded,
		MoreExtra:       p.MoreExtra,
	}, nil
}

// EncodePlayerInfo is the inverse of ParsePlayerInfo, for recording streams.
func EncodePlayerInfo(id model.PlayerIdentity) []byte {
	uid := id.UserID
	b, _ := json.Marshal(playerInfoPayload{
		Name:            id.Name,
		UserID:          &uid,
		SteamID:         id.SteamID,
		FriendsID:       id.FriendsID,
		IsFakePlayer:    id.IsFakePlayer,
		IsHLTV:          id.IsHLTV,
		IsReplay:        id.IsReplay,
		CustomFile:      id.CustomFile,
		FilesDownloaded: id.FilesDownloaded,
		MoreExtra:       id.MoreExtra,
	})
	return b
}
