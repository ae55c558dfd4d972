package game

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	pingInterval      = 30 * time.Second
	reapInterval      = time.Minute
	quickPlayAttempts = 3
)

type RoomFactory func(code, hostId string, settings RoomSettings) Room

func NewRoomFactory(generator PassageGenerator, recorder MatchRecorder, tickerCreator TickerCreator, latency LatencyRecorder, batchSizer BatchSizer, timing Timing) RoomFactory {
	deps := roomDeps{
		generator:     generator,
		recorder:      recorder,
		tickerCreator: tickerCreator,
		latency:       latency,
		batchSizer:    batchSizer,
		timing:        timing,
	}
	return func(code, hostId string, settings RoomSettings) Room {
		return newRoom(code, hostId, settings, deps)
	}
}

type reservation struct {
	settings  RoomSettings
	expiresAt time.Time
}

type reserveRequest struct {
	settings RoomSettings
	reply    chan string
}

type statusReply struct {
	desc RoomDescription
	err  error
}

type statusRequest struct {
	code  string
	reply chan statusReply
}

type quickPlayRequest struct {
	jreq      roomJoinRequest
	online    int
	forceHost bool
}

type lobby struct {
	rooms        map[string]Room
	descriptions map[string]RoomDescription
	reservations map[string]reservation

	reserveReqs    chan reserveRequest
	joinReqs       chan roomJoinRequest
	quickPlayReqs  chan quickPlayRequest
	statusReqs     chan statusRequest
	pubGamesReq    chan chan []RoomDescription
	roomDescUpdate chan RoomDescription
	removeRoomChan chan string
	quit           chan struct{}
	stopped        chan struct{}
	stopOnce       sync.Once

	idGenerator    UniqueIdGenerator
	tickerCreator  TickerCreator
	roomFactory    RoomFactory
	reservationTTL time.Duration
	now            func() time.Time
}

func NewLobby(idgen UniqueIdGenerator, tickerCreator TickerCreator, factory RoomFactory, reservationTTL time.Duration) *lobby {
	return &lobby{
		rooms:          make(map[string]Room),
		descriptions:   make(map[string]RoomDescription),
		reservations:   make(map[string]reservation),
		reserveReqs:    make(chan reserveRequest, 64),
		joinReqs:       make(chan roomJoinRequest, 256),
		quickPlayReqs:  make(chan quickPlayRequest, 256),
		statusReqs:     make(chan statusRequest, 256),
		pubGamesReq:    make(chan chan []RoomDescription, 256),
		roomDescUpdate: make(chan RoomDescription, 256),
		removeRoomChan: make(chan string, 256),
		quit:           make(chan struct{}),
		stopped:        make(chan struct{}),
		idGenerator:    idgen,
		tickerCreator:  tickerCreator,
		roomFactory:    factory,
		reservationTTL: reservationTTL,
		now:            time.Now,
	}
}

// RequestUpdateDescription blocks until the lobby takes the update or stops.
// The lobby actor never waits on a room.
func (l *lobby) RequestUpdateDescription(desc RoomDescription) {
	select {
	case l.roomDescUpdate <- desc:
	case <-l.quit:
	}
}

func (l *lobby) RemoveRoom(code string) {
	select {
	case l.removeRoomChan <- code:
	case <-l.quit:
	}
}

// Reserve books a room code. The room itself is created by the first
// connection that claims the code, which becomes its host.
func (l *lobby) Reserve(ctx context.Context, settings RoomSettings) (string, error) {
	req := reserveRequest{settings: settings, reply: make(chan string, 1)}
	select {
	case l.reserveReqs <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-l.quit:
		return "", ErrLobbyStopped
	}
	select {
	case code := <-req.reply:
		return code, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-l.stopped:
		return "", ErrLobbyStopped
	}
}

// Join waits for the room's verdict once the request is delivered. Rooms
// always answer, so only delivery honours ctx.
func (l *lobby) Join(ctx context.Context, code string, p Player, skill float64) error {
	jreq := newRoomJoinRequest(code, p, skill)
	select {
	case l.joinReqs <- jreq:
	case <-ctx.Done():
		return ctx.Err()
	case <-l.quit:
		return ErrLobbyStopped
	}
	return l.await(jreq)
}

func (l *lobby) QuickPlay(ctx context.Context, p Player, skill float64, onlinePlayers int) error {
	var err error
	for attempt := range quickPlayAttempts {
		qreq := quickPlayRequest{
			jreq:      newRoomJoinRequest("", p, skill),
			online:    onlinePlayers,
			forceHost: attempt == quickPlayAttempts-1,
		}
		select {
		case l.quickPlayReqs <- qreq:
		case <-ctx.Done():
			return ctx.Err()
		case <-l.quit:
			return ErrLobbyStopped
		}

		err = l.await(qreq.jreq)
		if !errors.Is(err, ErrRoomFull) && !errors.Is(err, ErrRoomClosed) && !errors.Is(err, ErrRoomNotFound) {
			return err
		}
		log.Debug().Err(err).Str("user", p.Id()).Int("attempt", attempt).Msg("quick play retry")
	}
	return err
}

func (l *lobby) await(jreq roomJoinRequest) error {
	select {
	case err := <-jreq.errChan:
		return err
	case <-l.stopped:
		return ErrLobbyStopped
	}
}

func (l *lobby) Status(ctx context.Context, code string) (RoomDescription, error) {
	req := statusRequest{code: code, reply: make(chan statusReply, 1)}
	select {
	case l.statusReqs <- req:
	case <-ctx.Done():
		return RoomDescription{}, ctx.Err()
	case <-l.quit:
		return RoomDescription{}, ErrLobbyStopped
	}
	select {
	case resp := <-req.reply:
		return resp.desc, resp.err
	case <-ctx.Done():
		return RoomDescription{}, ctx.Err()
	case <-l.stopped:
		return RoomDescription{}, ErrLobbyStopped
	}
}

func (l *lobby) PublicRooms(ctx context.Context) []RoomDescription {
	respChan := make(chan []RoomDescription, 1)
	select {
	case l.pubGamesReq <- respChan:
		select {
		case resp := <-respChan:
			return resp
		case <-ctx.Done():
			return nil
		case <-l.stopped:
			return nil
		}
	case <-ctx.Done():
		return nil
	case <-l.quit:
		return nil
	}
}

// Stop closes every room and waits for the actor to exit.
func (l *lobby) Stop() {
	l.stopOnce.Do(func() {
		close(l.quit)
	})
	<-l.stopped
}

func (l *lobby) LobbyActor(started chan struct{}) {
	pingTicker := l.tickerCreator.Create(pingInterval)
	reapTicker := l.tickerCreator.Create(reapInterval)
	defer close(l.stopped)
	defer pingTicker.Stop()
	defer reapTicker.Stop()

	close(started)

	for {
		select {
		case <-l.quit:
			for code, r := range l.rooms {
				r.CloseAndRelease()
				l.idGenerator.Dispose(code)
			}
			return

		case <-pingTicker.C():
			for _, r := range l.rooms {
				r.PingPlayers()
			}

		case now := <-reapTicker.C():
			l.handleExpireReservations(now)

		case req := <-l.reserveReqs:
			l.handleReserve(req)

		case jreq := <-l.joinReqs:
			l.handleJoinReq(jreq)

		case qreq := <-l.quickPlayReqs:
			l.handleQuickPlay(qreq)

		case req := <-l.statusReqs:
			l.handleStatus(req)

		case code := <-l.removeRoomChan:
			l.handleRemoveRoom(code)

		case desc := <-l.roomDescUpdate:
			if _, ok := l.rooms[desc.Code]; ok {
				l.descriptions[desc.Code] = desc
			}

		case pubGamesReq := <-l.pubGamesReq:
			l.handleGetPublicRoomsDescription(pubGamesReq)
		}
	}
}

func (l *lobby) handleReserve(req reserveRequest) {
	code := l.idGenerator.Generate()
	settings := req.settings
	if settings.Type == "" {
		settings.Type = TypePublic
		if settings.Private {
			settings.Type = TypePrivate
		}
	}
	l.reservations[code] = reservation{settings: settings, expiresAt: l.now().Add(l.reservationTTL)}
	req.reply <- code
}

func (l *lobby) handleExpireReservations(now time.Time) {
	for code, res := range l.reservations {
		if now.After(res.expiresAt) {
			delete(l.reservations, code)
			l.idGenerator.Dispose(code)
			log.Debug().Str("room", code).Msg("reservation expired")
		}
	}
}

// createRoom registers the room before any join is forwarded, so a second
// claimer for the same code always finds it and joins as a guest.
func (l *lobby) createRoom(code, hostId string, settings RoomSettings) Room {
	r := l.roomFactory(code, hostId, settings)
	r.SetParentLobby(l)
	l.rooms[code] = r
	l.descriptions[code] = r.Description()
	go r.GameLoop()
	log.Info().Str("room", code).Str("host", hostId).Str("type", string(settings.Type)).Msg("room created")
	return r
}

func (l *lobby) handleJoinReq(jreq roomJoinRequest) {
	if r, ok := l.rooms[jreq.code]; ok {
		go r.RequestJoin(jreq)
		return
	}

	res, ok := l.reservations[jreq.code]
	if !ok || l.now().After(res.expiresAt) {
		jreq.errChan <- ErrRoomNotFound
		return
	}
	delete(l.reservations, jreq.code)
	r := l.createRoom(jreq.code, jreq.player.Id(), res.settings)
	go r.RequestJoin(jreq)
}

func (l *lobby) handleQuickPlay(qreq quickPlayRequest) {
	jreq := qreq.jreq
	if !qreq.forceHost {
		candidates := make([]RoomDescription, 0, len(l.descriptions))
		for _, desc := range l.descriptions {
			if desc.Type == TypeQuickplay {
				candidates = append(candidates, desc)
			}
		}
		if code, ok := FindBestMatch(candidates, jreq.skill, qreq.online); ok {
			jreq.code = code
			go l.rooms[code].RequestJoin(jreq)
			return
		}
	}

	jreq.code = l.idGenerator.Generate()
	r := l.createRoom(jreq.code, jreq.player.Id(), QuickplaySettings())
	go r.RequestJoin(jreq)
}

func (l *lobby) handleStatus(req statusRequest) {
	if desc, ok := l.descriptions[req.code]; ok {
		req.reply <- statusReply{desc: desc}
		return
	}
	if res, ok := l.reservations[req.code]; ok {
		req.reply <- statusReply{desc: RoomDescription{
			Code:       req.code,
			Status:     StatusWaiting,
			Type:       res.settings.Type,
			MaxPlayers: res.settings.MaxPlayers,
		}}
		return
	}
	req.reply <- statusReply{err: ErrRoomNotFound}
}

func (l *lobby) handleRemoveRoom(code string) {
	r, ok := l.rooms[code]
	if !ok {
		return
	}
	delete(l.rooms, code)
	delete(l.descriptions, code)
	r.CloseAndRelease()
	l.idGenerator.Dispose(code)
	log.Info().Str("room", code).Msg("room removed")
}

func (l *lobby) handleGetPublicRoomsDescription(req chan []RoomDescription) {
	x := make([]RoomDescription, 0, len(l.descriptions))
	for _, description := range l.descriptions {
		if description.Type == TypePublic && description.Status == StatusWaiting {
			x = append(x, description)
		}
	}
	req <- x
}
