// Package protocol is the wire schema between guests and the host: a tagged
// command union on the client channel and full room snapshots on the retained
// host channel. Unknown tags are rejected outright, never duck-typed.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"tombalago/internal/game"
)

var (
	ErrUnknownType = errors.New("unknown message type")
	ErrEmptyType   = errors.New("missing message type")
)

const (
	TypeJoinRequest  = "JOIN_REQUEST"
	TypePlayerLeave  = "PLAYER_LEAVE"
	TypeMarkUpdate   = "MARK_UPDATE"
	TypePlayerUpdate = "PLAYER_UPDATE"
	TypeBingoClaim   = "BINGO_CLAIM"
)

// head is peeked off every command frame before the concrete decode.
type head struct {
	Type string `json:"type"`
}

// EncodeCommand flattens the command fields next to its type tag, matching
// the `{type: "...", ...fields}` frame shape.
func EncodeCommand(cmd game.Command) ([]byte, error) {
	switch c := cmd.(type) {
	case game.JoinRequest:
		return json.Marshal(struct {
			Type string `json:"type"`
			game.JoinRequest
		}{TypeJoinRequest, c})
	case game.PlayerLeave:
		return json.Marshal(struct {
			Type string `json:"type"`
			game.PlayerLeave
		}{TypePlayerLeave, c})
	case game.MarkUpdate:
		return json.Marshal(struct {
			Type string `json:"type"`
			game.MarkUpdate
		}{TypeMarkUpdate, c})
	case game.PlayerUpdate:
		return json.Marshal(struct {
			Type string `json:"type"`
			game.PlayerUpdate
		}{TypePlayerUpdate, c})
	case game.BingoClaim:
		return json.Marshal(struct {
			Type string `json:"type"`
			game.BingoClaim
		}{TypeBingoClaim, c})
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, cmd)
	}
}

func DecodeCommand(data []byte) (game.Command, error) {
	var h head
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, fmt.Errorf("command head: %w", err)
	}
	switch h.Type {
	case TypeJoinRequest:
		var c game.JoinRequest
		return c, json.Unmarshal(data, &c)
	case TypePlayerLeave:
		var c game.PlayerLeave
		return c, json.Unmarshal(data, &c)
	case TypeMarkUpdate:
		var c game.MarkUpdate
		return c, json.Unmarshal(data, &c)
	case TypePlayerUpdate:
		var c game.PlayerUpdate
		return c, json.Unmarshal(data, &c)
	case TypeBingoClaim:
		var c game.BingoClaim
		return c, json.Unmarshal(data, &c)
	case "":
		return nil, ErrEmptyType
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, h.Type)
	}
}

// EncodeSnapshot serializes the full aggregate; marked-number sets travel as
// sorted arrays.
func EncodeSnapshot(room *game.Room) ([]byte, error) {
	return json.Marshal(room)
}

func DecodeSnapshot(data []byte) (*game.Room, error) {
	var room game.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	return &room, nil
}
