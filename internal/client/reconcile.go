// Package client is the follower side: it hydrates a local view from host
// snapshots while an optimistic overlay keeps the user's own marks from being
// rolled back by stale broadcasts.
package client

import "tombalago/internal/game"

// Engine merges incoming snapshots with the local overlay. Ownership rule:
// every other participant's fields are host-owned and adopted verbatim; the
// self entry's marked numbers are client-owned once the client has seen
// itself in any snapshot, and host-owned (hydration) before that.
type Engine struct {
	selfID    string
	confirmed bool
	marked    game.NumberSet
	view      *game.Room
}

func NewEngine(selfID string) *Engine {
	return &Engine{selfID: selfID, marked: game.NumberSet{}}
}

// Apply folds one snapshot into the view and returns the result. The engine
// takes ownership of snap. Applying the same snapshot twice is idempotent.
func (e *Engine) Apply(snap *game.Room) *game.Room {
	self := snap.Player(e.selfID)

	if self == nil && e.confirmed {
		// A confirmed self missing from a frame is indistinguishable from
		// transit staleness here, so the frame is dropped rather than
		// treating it as a kick.
		return e.view
	}

	if self != nil {
		if !e.confirmed {
			// First sighting: adopt the host's copy wholesale, which is
			// what makes reconnect/reload hydration work.
			e.confirmed = true
			e.marked = self.MarkedNumbers.Clone()
		} else {
			self.MarkedNumbers = e.marked.Clone()
		}
	}

	e.view = snap
	return e.view
}

// Confirmed reports whether any snapshot has contained the self entry yet.
func (e *Engine) Confirmed() bool { return e.confirmed }

func (e *Engine) View() *game.Room { return e.view }

// Marked exposes the overlay: the client's true marks, which may be ahead of
// what the host has stored.
func (e *Engine) Marked() game.NumberSet { return e.marked }

// ToggleMark flips n in the overlay and reports the recomputed one-away flag.
// The flag is recomputed on every toggle unconditionally; callers transmit a
// MarkUpdate only when its value changes.
func (e *Engine) ToggleMark(n int) bool {
	e.marked.Toggle(n)
	return e.OneAway()
}

func (e *Engine) selfSheets() []game.Sheet {
	if e.view == nil {
		return nil
	}
	if self := e.view.Player(e.selfID); self != nil {
		return self.Sheets
	}
	return nil
}

// OneAway reports whether some row is exactly one unmarked number from
// completion, the derived flag that throttles MarkUpdate traffic.
func (e *Engine) OneAway() bool {
	for _, sheet := range e.selfSheets() {
		for _, row := range sheet.Rows {
			if missing, total := rowGap(row, e.marked); total > 0 && missing == 1 {
				return true
			}
		}
	}
	return false
}

// HasLocalWin reports a fully marked row by the client's own reckoning; the
// host still re-validates any claim built on it.
func (e *Engine) HasLocalWin() bool {
	for _, sheet := range e.selfSheets() {
		for _, row := range sheet.Rows {
			if missing, total := rowGap(row, e.marked); total > 0 && missing == 0 {
				return true
			}
		}
	}
	return false
}

// rowGap counts a row's numbers and how many of them are unmarked.
func rowGap(row [9]int, marked game.NumberSet) (missing, total int) {
	for _, n := range row {
		if n == 0 {
			continue
		}
		total++
		if !marked.Has(n) {
			missing++
		}
	}
	return missing, total
}
