package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"tombalago/internal/game"
)

func TestCommand_RoundTripAllKinds(t *testing.T) {
	ready := true
	count := 2
	cases := []struct {
		name string
		cmd  game.Command
		typ  string
	}{
		{"join", game.JoinRequest{Participant: game.Participant{ID: "p1", Name: "ali", MarkedNumbers: game.NumberSet{}}}, TypeJoinRequest},
		{"leave", game.PlayerLeave{ParticipantID: "p1"}, TypePlayerLeave},
		{"mark", game.MarkUpdate{ParticipantID: "p1", MarkedNumbers: game.NewNumberSet(5, 12), OneAway: true}, TypeMarkUpdate},
		{"update", game.PlayerUpdate{ParticipantID: "p1", IsReady: &ready, SheetCount: &count}, TypePlayerUpdate},
		{"claim", game.BingoClaim{ParticipantID: "p1", MarkedNumbers: game.NewNumberSet(5, 12, 23)}, TypeBingoClaim},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := EncodeCommand(tc.cmd)
			require.NoError(t, err)

			var h map[string]any
			require.NoError(t, json.Unmarshal(data, &h))
			require.Equal(t, tc.typ, h["type"], "type tag sits flat beside the fields")

			back, err := DecodeCommand(data)
			require.NoError(t, err)
			require.Equal(t, tc.cmd, back)
		})
	}
}

func TestDecodeCommand_UnknownTypeRejected(t *testing.T) {
	_, err := DecodeCommand([]byte(`{"type":"TELEPORT","participantId":"p1"}`))
	require.ErrorIs(t, err, ErrUnknownType)

	_, err = DecodeCommand([]byte(`{"participantId":"p1"}`))
	require.ErrorIs(t, err, ErrEmptyType)

	_, err = DecodeCommand([]byte(`not json`))
	require.Error(t, err)
}

func TestSnapshot_RoundTripSetFidelity(t *testing.T) {
	n := 23
	room := &game.Room{
		Code:          "ABC123",
		Status:        game.StatusPlaying,
		CalledNumbers: []int{5, 12, 23},
		CurrentNumber: &n,
		Commentary:    "Number 23! 87 balls left in the bag.",
		BetPrice:      10000,
		Pot:           20000,
		Players: []*game.Participant{
			{
				ID:            "p1",
				Name:          "ali",
				Role:          game.RoleHost,
				MarkedNumbers: game.NewNumberSet(23, 5, 12),
				IsReady:       true,
				SheetCount:    1,
				PlayStatus:    game.PlayActive,
				Sheets:        []game.Sheet{{ID: "s1"}},
			},
		},
	}

	data, err := EncodeSnapshot(room)
	require.NoError(t, err)

	// Sets travel as sorted arrays.
	var wire struct {
		Players []struct {
			MarkedNumbers []int `json:"markedNumbers"`
		} `json:"players"`
	}
	require.NoError(t, json.Unmarshal(data, &wire))
	require.Equal(t, []int{5, 12, 23}, wire.Players[0].MarkedNumbers)

	back, err := DecodeSnapshot(data)
	require.NoError(t, err)
	require.Equal(t, room, back)
}

func TestTopicsFor(t *testing.T) {
	topics := TopicsFor("tombala", "ABC123")
	require.Equal(t, "tombala/ABC123/host", topics.Host)
	require.Equal(t, "tombala/ABC123/client", topics.Client)
	require.Equal(t, "tombala/ABC123/chat", topics.Chat)
}
