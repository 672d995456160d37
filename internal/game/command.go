package game

// Command is a guest-originated intent consumed only by the host. The host
// applies commands strictly in receipt order; anything malformed or invalid in
// the current room state is dropped, never fatal.
type Command interface {
	isCommand()
	Sender() string
}

type JoinRequest struct {
	Participant Participant `json:"participant"`
}

type PlayerLeave struct {
	ParticipantID string `json:"participantId"`
}

// MarkUpdate carries a guest's current marks. Guests send it only when their
// locally derived one-away flag flips, so the host's copy of the exact marks
// may lag; it is advisory, never proof for the win check.
type MarkUpdate struct {
	ParticipantID string    `json:"participantId"`
	MarkedNumbers NumberSet `json:"markedNumbers"`
	OneAway       bool      `json:"oneAway"`
}

// PlayerUpdate is the generic pre-readiness customization: nil pointer fields
// are left untouched. Sheet composition changes after ready are rejected.
type PlayerUpdate struct {
	ParticipantID string  `json:"participantId"`
	Name          *string `json:"name,omitempty"`
	IsReady       *bool   `json:"isReady,omitempty"`
	SheetCount    *int    `json:"sheetCount,omitempty"`
	Sheets        []Sheet `json:"sheets,omitempty"`
}

type BingoClaim struct {
	ParticipantID string    `json:"participantId"`
	MarkedNumbers NumberSet `json:"markedNumbers"`
}

func (JoinRequest) isCommand()  {}
func (PlayerLeave) isCommand()  {}
func (MarkUpdate) isCommand()   {}
func (PlayerUpdate) isCommand() {}
func (BingoClaim) isCommand()   {}

func (c JoinRequest) Sender() string  { return c.Participant.ID }
func (c PlayerLeave) Sender() string  { return c.ParticipantID }
func (c MarkUpdate) Sender() string   { return c.ParticipantID }
func (c PlayerUpdate) Sender() string { return c.ParticipantID }
func (c BingoClaim) Sender() string   { return c.ParticipantID }
