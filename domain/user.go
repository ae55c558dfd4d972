package domain

type User struct {
	Id           string
	Username     string
	PasswordHash string
}

// UserStats is the aggregate a player accumulates across finished matches.
type UserStats struct {
	UserId        string
	MatchesPlayed int
	Wins          int
	AvgWpm        float64
	AvgAccuracy   float64
	BestWpm       float64
}
