package game

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

const sendBufferSize = 256

type player struct {
	id          string
	username    string
	chatLimiter *rate.Limiter
	inbox       chan []byte
	pingChan    chan struct{}
	ctx         context.Context
	cancelCtx   context.CancelFunc
	room        Room
	releaseOnce sync.Once
	onRelease   func()
	now         func() time.Time
}

func NewPlayer(id, username string) *player {
	ctx, cancel := context.WithCancel(context.Background())
	return &player{
		id:          id,
		username:    username,
		chatLimiter: rate.NewLimiter(2, 5),
		inbox:       make(chan []byte, sendBufferSize),
		pingChan:    make(chan struct{}, 1),
		ctx:         ctx,
		cancelCtx:   cancel,
		now:         time.Now,
	}
}

func (p *player) Id() string {
	return p.id
}

func (p *player) Username() string {
	return p.username
}

func (p *player) SetRoom(r Room) {
	p.room = r
}

// OnRelease registers a callback run once when the player is released.
func (p *player) OnRelease(fn func()) {
	p.onRelease = fn
}

func (p *player) Send(data []byte) error {
	select {
	case <-p.ctx.Done():
		return context.Canceled
	default:
	}
	select {
	case p.inbox <- data:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (p *player) Ping() error {
	select {
	case p.pingChan <- struct{}{}:
		return nil
	default:
		return ErrSendBufferFull
	}
}

func (p *player) CancelAndRelease() {
	p.releaseOnce.Do(func() {
		p.cancelCtx()
		if p.onRelease != nil {
			p.onRelease()
		}
	})
}

// ReadPump forwards packets to the room until the socket fails. Chat is
// rate limited here, keystrokes never are. Pings are answered directly.
func (p *player) ReadPump(socket WebsocketConnection) {
	defer func() {
		if p.room != nil {
			p.room.RemoveMe(p)
		}
		p.CancelAndRelease()
		socket.Close()
	}()

	for {
		data, err := socket.Read()
		if err != nil {
			return
		}

		packet, err := decodeClientPacket(data)
		if err != nil {
			log.Debug().Err(err).Str("user", p.id).Msg("dropping undecodable packet")
			continue
		}

		switch packet.Type {
		case PacketPing:
			var ping PingPayload
			if err := json.Unmarshal(packet.Data, &ping); err == nil {
				p.Send(MakePacketPong(ping.Ts))
			}
			continue
		case PacketChatSend:
			if !p.chatLimiter.Allow() {
				p.Send(MakePacketChatError(ErrRateLimited))
				continue
			}
		}

		p.room.Send(p.ctx, ClientPacketEnvelope{packet: packet, from: p, receivedAt: p.now()})
		if p.ctx.Err() != nil {
			return
		}
	}
}

// WritePump owns every write to the socket. Once the player is released it
// flushes what is already queued and closes the socket.
func (p *player) WritePump(socket WebsocketConnection) {
	defer socket.Close()

	for {
		select {
		case data := <-p.inbox:
			if err := socket.Write(data); err != nil {
				p.CancelAndRelease()
				return
			}
		case <-p.pingChan:
			if err := socket.Ping(); err != nil {
				p.CancelAndRelease()
				return
			}
		case <-p.ctx.Done():
			for {
				select {
				case data := <-p.inbox:
					if err := socket.Write(data); err != nil {
						return
					}
				default:
					return
				}
			}
		}
	}
}
