package game

import "errors"

var (
	ErrUnknownParticipant = errors.New("unknown participant")
	ErrDuplicateJoin      = errors.New("participant id already joined")
	ErrSheetsFrozen       = errors.New("sheets frozen after ready")
	ErrClaimRejected      = errors.New("claim failed host validation")
	ErrRoundOver          = errors.New("round already ended")
	ErrBadStatus          = errors.New("invalid in current room status")
)

type EventType string

const (
	EvtPlayerJoined   EventType = "PlayerJoined"
	EvtPlayerLeft     EventType = "PlayerLeft"
	EvtPlayerUpdated  EventType = "PlayerUpdated"
	EvtMarksUpdated   EventType = "MarksUpdated"
	EvtRoundStarted   EventType = "RoundStarted"
	EvtNumberDrawn    EventType = "NumberDrawn"
	EvtWinnerDeclared EventType = "WinnerDeclared"
	EvtRoomReset      EventType = "RoomReset"
)

type Event struct {
	Type          EventType
	ParticipantID string
	Number        int
}

// Apply mutates the canonical aggregate with one guest command. It must only
// ever be called from the host's serialized command loop. A non-nil error
// means the command was dropped and the room is unchanged; any returned event
// means the room changed and a fresh snapshot should go out.
func (r *Room) Apply(cmd Command) ([]Event, error) {
	switch c := cmd.(type) {
	case JoinRequest:
		return r.applyJoin(c)
	case PlayerLeave:
		if !r.removePlayer(c.ParticipantID) {
			return nil, ErrUnknownParticipant
		}
		return []Event{{Type: EvtPlayerLeft, ParticipantID: c.ParticipantID}}, nil
	case MarkUpdate:
		return r.applyMarkUpdate(c)
	case PlayerUpdate:
		return r.applyPlayerUpdate(c)
	case BingoClaim:
		return r.applyClaim(c)
	default:
		return nil, ErrBadStatus
	}
}

func (r *Room) applyJoin(c JoinRequest) ([]Event, error) {
	if c.Participant.ID == "" || r.Player(c.Participant.ID) != nil {
		return nil, ErrDuplicateJoin
	}
	p := c.Participant
	p.Role = RoleGuest
	if p.MarkedNumbers == nil {
		p.MarkedNumbers = NumberSet{}
	}
	if p.SheetCount < 1 {
		p.SheetCount = len(p.Sheets)
	}
	if p.PlayStatus == "" {
		p.PlayStatus = PlayActive
	}
	// Mid-round joiners watch; whatever the payload claimed is overruled.
	if r.Status == StatusPlaying {
		p.PlayStatus = PlaySpectator
		p.IsReady = false
	}
	r.Players = append(r.Players, &p)
	return []Event{{Type: EvtPlayerJoined, ParticipantID: p.ID}}, nil
}

func (r *Room) applyMarkUpdate(c MarkUpdate) ([]Event, error) {
	p := r.Player(c.ParticipantID)
	if p == nil {
		return nil, ErrUnknownParticipant
	}
	// Stored as advisory state only; the win check re-validates against
	// CalledNumbers and never trusts these marks as proof.
	p.MarkedNumbers = c.MarkedNumbers.Clone()
	return []Event{{Type: EvtMarksUpdated, ParticipantID: p.ID}}, nil
}

func (r *Room) applyPlayerUpdate(c PlayerUpdate) ([]Event, error) {
	p := r.Player(c.ParticipantID)
	if p == nil {
		return nil, ErrUnknownParticipant
	}
	if p.IsReady && (c.Sheets != nil || c.SheetCount != nil) {
		return nil, ErrSheetsFrozen
	}
	if c.Name != nil {
		p.Name = *c.Name
	}
	if c.Sheets != nil {
		p.Sheets = c.Sheets
	}
	if c.SheetCount != nil {
		p.SheetCount = *c.SheetCount
	}
	if c.IsReady != nil {
		p.IsReady = *c.IsReady
	}
	return []Event{{Type: EvtPlayerUpdated, ParticipantID: p.ID}}, nil
}

func (r *Room) applyClaim(c BingoClaim) ([]Event, error) {
	// First valid claim flips status; every later claim lands here and no-ops.
	if r.Status != StatusPlaying {
		return nil, ErrRoundOver
	}
	p := r.Player(c.ParticipantID)
	if p == nil {
		return nil, ErrUnknownParticipant
	}
	row, ok := r.winningRow(p)
	if !ok {
		return nil, ErrClaimRejected
	}

	r.Status = StatusEnded
	r.WinningNumbers = row
	p.Balance += r.Pot
	r.Pot = 0
	winner := *p
	winner.MarkedNumbers = p.MarkedNumbers.Clone()
	r.Winner = &winner
	return []Event{{Type: EvtWinnerDeclared, ParticipantID: p.ID}}, nil
}

// winningRow looks for a sheet row whose every number has been called by the
// host AND is in the host-tracked marks for the claimant. The claimant's own
// asserted set plays no part here.
func (r *Room) winningRow(p *Participant) ([]int, bool) {
	for _, sheet := range p.Sheets {
		for _, row := range sheet.Rows {
			nums := make([]int, 0, len(row))
			complete := true
			for _, n := range row {
				if n == 0 {
					continue
				}
				nums = append(nums, n)
				if !r.Called(n) || !p.MarkedNumbers.Has(n) {
					complete = false
					break
				}
			}
			if complete && len(nums) > 0 {
				return nums, true
			}
		}
	}
	return nil, false
}
