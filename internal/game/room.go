package game

// Tombala is played with balls numbered 1..90.
const MaxNumber = 90

type Status string

const (
	StatusLobby   Status = "lobby"
	StatusWaiting Status = "waiting"
	StatusPlaying Status = "playing"
	StatusEnded   Status = "ended"
)

type Role string

const (
	RoleHost  Role = "host"
	RoleGuest Role = "guest"
)

type PlayStatus string

const (
	PlayActive    PlayStatus = "active"
	PlaySpectator PlayStatus = "spectator"
)

// Sheet is a 3x9 tombala grid; zero cells are blank. A sheet is frozen once its
// owner toggles ready.
type Sheet struct {
	ID   string    `json:"id"`
	Rows [3][9]int `json:"rows"`
}

// Participant identity is the connection id, not a durable account. A reconnect
// under a new id is simply a new participant.
type Participant struct {
	ID            string     `json:"id"`
	Name          string     `json:"name"`
	Role          Role       `json:"role"`
	Sheets        []Sheet    `json:"sheets"`
	MarkedNumbers NumberSet  `json:"markedNumbers"`
	IsReady       bool       `json:"isReady"`
	Balance       int        `json:"balance"`
	SheetCount    int        `json:"sheetCount"`
	PlayStatus    PlayStatus `json:"playStatus"`
}

// Room is the canonical aggregate. Exactly one process (the host) ever mutates
// it; everyone else sees it only through snapshots. Its JSON form is the
// snapshot wire shape.
type Room struct {
	Code           string         `json:"code"`
	Status         Status         `json:"status"`
	CalledNumbers  []int          `json:"calledNumbers"`
	CurrentNumber  *int           `json:"currentNumber"`
	Winner         *Participant   `json:"winner"`
	WinningNumbers []int          `json:"winningNumbers"`
	Commentary     string         `json:"commentary"`
	BetPrice       int            `json:"betPrice"`
	Pot            int            `json:"pot"`
	Players        []*Participant `json:"players"`
}

func NewRoom(code string, betPrice int) *Room {
	return &Room{
		Code:          code,
		Status:        StatusLobby,
		CalledNumbers: []int{},
		BetPrice:      betPrice,
	}
}

func (r *Room) Player(id string) *Participant {
	for _, p := range r.Players {
		if p.ID == id {
			return p
		}
	}
	return nil
}

func (r *Room) removePlayer(id string) bool {
	for i, p := range r.Players {
		if p.ID == id {
			r.Players = append(r.Players[:i], r.Players[i+1:]...)
			return true
		}
	}
	return false
}

// Called reports whether n has been drawn this round.
func (r *Room) Called(n int) bool {
	for _, c := range r.CalledNumbers {
		if c == n {
			return true
		}
	}
	return false
}
