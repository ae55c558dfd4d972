package game

import (
	"context"
	"time"

	"versus/domain"
	"versus/passage"
)

type WebsocketConnection interface {
	Close()
	Write(data []byte) error
	Read() ([]byte, error)
	Ping() error
}

type Player interface {
	Id() string
	Username() string
	Send(data []byte) error
	Ping() error
	SetRoom(r Room)
	CancelAndRelease()
}

type Room interface {
	Send(ctx context.Context, e ClientPacketEnvelope)
	RemoveMe(p Player)
	RequestJoin(jreq roomJoinRequest)
	PingPlayers()
	GameLoop()
	CloseAndRelease()
	Description() RoomDescription
	SetParentLobby(l Lobby)
}

// Lobby is the side of the registry that rooms talk to.
type Lobby interface {
	RequestUpdateDescription(desc RoomDescription)
	RemoveRoom(code string)
}

type PassageGenerator interface {
	Generate(ctx context.Context, cfg passage.Config) (string, error)
}

type MatchRecorder interface {
	RecordMatch(ctx context.Context, result domain.MatchResult) error
}

type SkillGetter interface {
	AverageWpm(ctx context.Context, userId string) (float64, error)
}

type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerCreator interface {
	Create(d time.Duration) Ticker
}

type UniqueIdGenerator interface {
	Generate() string
	Dispose(id string)
}

type LatencyRecorder interface {
	Record(d time.Duration)
}

type BatchSizer interface {
	Size() int
}
