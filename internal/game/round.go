package game

import "math/rand"

// BeginWaiting opens a freshly created or reset room for betting.
func (r *Room) BeginWaiting() ([]Event, error) {
	if r.Status != StatusLobby && r.Status != StatusEnded {
		return nil, ErrBadStatus
	}
	r.Status = StatusWaiting
	return []Event{{Type: EvtRoomReset}}, nil
}

// StartRound moves waiting -> playing. Every active+ready participant is
// debited sheetCount*betPrice into the pot; actives that never readied are
// demoted to spectator instead of holding the round hostage.
func (r *Room) StartRound() ([]Event, error) {
	if r.Status != StatusWaiting {
		return nil, ErrBadStatus
	}
	pot := 0
	for _, p := range r.Players {
		if p.PlayStatus != PlayActive {
			continue
		}
		if !p.IsReady {
			p.PlayStatus = PlaySpectator
			continue
		}
		stake := p.SheetCount * r.BetPrice
		p.Balance -= stake
		pot += stake
	}
	r.Pot = pot
	r.Status = StatusPlaying
	r.CalledNumbers = r.CalledNumbers[:0]
	r.CurrentNumber = nil
	r.Winner = nil
	r.WinningNumbers = nil
	return []Event{{Type: EvtRoundStarted}}, nil
}

// Draw picks one number uniformly from {1..90} minus CalledNumbers. ok=false
// with a drained pool or outside playing.
func (r *Room) Draw(rng *rand.Rand) (Event, bool) {
	if r.Status != StatusPlaying || len(r.CalledNumbers) >= MaxNumber {
		return Event{}, false
	}
	pool := make([]int, 0, MaxNumber-len(r.CalledNumbers))
	for n := 1; n <= MaxNumber; n++ {
		if !r.Called(n) {
			pool = append(pool, n)
		}
	}
	n := pool[rng.Intn(len(pool))]
	r.CalledNumbers = append(r.CalledNumbers, n)
	r.CurrentNumber = &n
	return Event{Type: EvtNumberDrawn, Number: n}, true
}

// Reset returns an ended room to waiting for the next round. Marks, readiness
// and sheets reopen; balances persist.
func (r *Room) Reset() ([]Event, error) {
	if r.Status != StatusEnded {
		return nil, ErrBadStatus
	}
	r.Status = StatusWaiting
	r.CalledNumbers = r.CalledNumbers[:0]
	r.CurrentNumber = nil
	r.Winner = nil
	r.WinningNumbers = nil
	r.Commentary = ""
	r.Pot = 0
	for _, p := range r.Players {
		p.MarkedNumbers = NumberSet{}
		p.IsReady = false
		if p.PlayStatus == PlaySpectator {
			p.PlayStatus = PlayActive
		}
	}
	return []Event{{Type: EvtRoomReset}}, nil
}
