package game

import (
	"time"

	"versus/passage"
)

type RoomStatus string

const (
	StatusWaiting    RoomStatus = "waiting"
	StatusCountdown  RoomStatus = "countdown"
	StatusInProgress RoomStatus = "inProgress"
	StatusEnded      RoomStatus = "ended"
	StatusClosed     RoomStatus = "closed"
)

type RoomType string

const (
	TypePublic    RoomType = "public"
	TypePrivate   RoomType = "private"
	TypeQuickplay RoomType = "quickplay"
)

const (
	MinPlayers = 2
	MaxPlayers = 8

	quickplayMaxPlayers = 5
	chatHistoryLimit    = 50
	chatMessageMaxRunes = 200
)

var colors = []string{"#e6194b", "#3cb44b", "#4363d8", "#f58231", "#911eb4", "#42d4f4", "#f032e6", "#bfef45"}

type RoomSettings struct {
	MaxPlayers int            `json:"maxPlayers"`
	Private    bool           `json:"private"`
	Passage    passage.Config `json:"passage"`
	Type       RoomType       `json:"-"`
}

func QuickplaySettings() RoomSettings {
	return RoomSettings{MaxPlayers: quickplayMaxPlayers, Passage: passage.DefaultConfig(), Type: TypeQuickplay}
}

// Timing holds the per-room durations.
type Timing struct {
	CountdownSeconds   int
	CloseGrace         time.Duration
	PersistenceTimeout time.Duration
}

type RoomDescription struct {
	Code         string     `json:"code"`
	Status       RoomStatus `json:"status"`
	Type         RoomType   `json:"type"`
	PlayersCount int        `json:"playersCount"`
	MaxPlayers   int        `json:"maxPlayers"`
	AvgWpm       float64    `json:"avgWpm"`
}

type roomJoinRequest struct {
	code    string
	player  Player
	skill   float64
	errChan chan error
}

func newRoomJoinRequest(code string, player Player, skill float64) roomJoinRequest {
	return roomJoinRequest{code: code, player: player, skill: skill, errChan: make(chan error, 1)}
}

type dataSendTask struct {
	to   Player
	data []byte
}

type playerState struct {
	conn         Player
	userId       string
	username     string
	color        string
	skill        float64
	spectator    bool
	disconnected bool

	typingIndex    int
	errorLocked    bool
	incorrectIndex int
	lastBroadcast  int
	accuracy       Accuracy
	wpm            float64
	startedAt      time.Time
	finished       bool
	ordinal        int
}

// visibleIndex is what everyone else is allowed to see. It stays frozen at
// the first wrong keystroke until the player backspaces over it.
func (ps *playerState) visibleIndex() int {
	if ps.errorLocked {
		return ps.incorrectIndex
	}
	return ps.typingIndex
}

func (ps *playerState) resetProgress() {
	ps.typingIndex = 0
	ps.errorLocked = false
	ps.incorrectIndex = 0
	ps.lastBroadcast = 0
	ps.accuracy.Reset()
	ps.wpm = 0
	ps.startedAt = time.Time{}
	ps.finished = false
	ps.ordinal = 0
}

// racing reports whether the player takes part in the current match.
func (ps *playerState) racing() bool {
	return !ps.spectator && (!ps.disconnected || ps.finished)
}
