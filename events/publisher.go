package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"versus/domain"
)

const SubjectMatchEnded = "matches.ended"

type ParticipantEvent struct {
	UserId   string  `json:"userId"`
	Username string  `json:"username"`
	Wpm      float64 `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
	Ordinal  int     `json:"ordinal"`
}

type MatchEndedEvent struct {
	MatchId      string             `json:"matchId"`
	RoomCode     string             `json:"roomCode"`
	StartedAt    time.Time          `json:"startedAt"`
	EndedAt      time.Time          `json:"endedAt"`
	Participants []ParticipantEvent `json:"participants"`
}

func newMatchEndedEvent(result domain.MatchResult) MatchEndedEvent {
	event := MatchEndedEvent{
		MatchId:      result.Id,
		RoomCode:     result.RoomCode,
		StartedAt:    result.StartedAt,
		EndedAt:      result.EndedAt,
		Participants: make([]ParticipantEvent, 0, len(result.Participants)),
	}
	for _, p := range result.Participants {
		event.Participants = append(event.Participants, ParticipantEvent(p))
	}
	return event
}

// Publisher announces finished matches on core NATS. Delivery is best effort:
// nobody listening is not an error.
type Publisher struct {
	conn *nats.Conn
}

func NewPublisher(url string) (*Publisher, error) {
	conn, err := nats.Connect(url,
		nats.Name("versus"),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("nats disconnected")
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats: %w", err)
	}
	return &Publisher{conn: conn}, nil
}

func (p *Publisher) RecordMatch(ctx context.Context, result domain.MatchResult) error {
	data, err := json.Marshal(newMatchEndedEvent(result))
	if err != nil {
		return fmt.Errorf("encoding match event: %w", err)
	}
	if err := p.conn.Publish(SubjectMatchEnded, data); err != nil {
		return fmt.Errorf("publishing match event: %w", err)
	}
	return p.conn.FlushWithContext(ctx)
}

// Close drains pending publishes before closing the connection.
func (p *Publisher) Close() {
	if err := p.conn.Drain(); err != nil {
		log.Warn().Err(err).Msg("nats drain failed")
	}
}
