package game

import (
	"sync"

	"github.com/rs/zerolog/log"
)

// Presence admits one live connection per identity across the process.
type Presence struct {
	mu      sync.RWMutex
	players map[string]Player
}

func NewPresence() *Presence {
	return &Presence{players: make(map[string]Player)}
}

func (p *Presence) Acquire(userId string, player Player) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, taken := p.players[userId]; taken {
		return ErrAlreadyConnected
	}
	p.players[userId] = player
	return nil
}

// Release is a no-op unless player still holds the identity.
func (p *Presence) Release(userId string, player Player) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if current, ok := p.players[userId]; ok && current == player {
		delete(p.players, userId)
	}
}

func (p *Presence) IsConnected(userId string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.players[userId]
	return ok
}

func (p *Presence) Count() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.players)
}

func (p *Presence) Broadcast(data []byte) {
	p.mu.RLock()
	targets := make([]Player, 0, len(p.players))
	for _, player := range p.players {
		targets = append(targets, player)
	}
	p.mu.RUnlock()

	for _, player := range targets {
		if err := player.Send(data); err != nil {
			log.Warn().Err(err).Str("user", player.Id()).Msg("broadcast dropped")
		}
	}
}
