package domain

import "time"

// MatchResult is handed to the persistence collaborators once a match ends.
// Participants only holds finished, non-spectator players.
type MatchResult struct {
	Id           string
	RoomCode     string
	Passage      string
	StartedAt    time.Time
	EndedAt      time.Time
	Participants []Participation
}

type Participation struct {
	UserId   string
	Username string
	Wpm      float64
	Accuracy float64
	Ordinal  int
}
