package game

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"versus/passage"
)

type roomDeps struct {
	generator     PassageGenerator
	recorder      MatchRecorder
	tickerCreator TickerCreator
	latency       LatencyRecorder
	batchSizer    BatchSizer
	timing        Timing
}

type room struct {
	code          string
	roomType      RoomType
	status        RoomStatus
	hostId        string
	maxPlayers    int
	passage       []rune
	passageConfig passage.Config

	players map[string]*playerState
	order   []string
	chatLog []ChatMessage

	isMatchStarted     bool
	matchStartedAt     time.Time
	countdownRemaining int

	countdownTicker Ticker
	wpmTicker       Ticker
	closeTimer      Ticker

	roomDeps
	parentLobby Lobby
	now         func() time.Time

	inbox           chan ClientPacketEnvelope
	joinRequests    chan roomJoinRequest
	removalRequests chan Player
	pingRequests    chan struct{}
	done            chan struct{}
	closeOnce       sync.Once

	dataSendTasks []dataSendTask
}

func newRoom(code, hostId string, settings RoomSettings, deps roomDeps) *room {
	roomType := settings.Type
	if roomType == "" {
		roomType = TypePublic
		if settings.Private {
			roomType = TypePrivate
		}
	}
	return &room{
		code:            code,
		roomType:        roomType,
		status:          StatusWaiting,
		hostId:          hostId,
		maxPlayers:      settings.MaxPlayers,
		passageConfig:   settings.Passage,
		players:         make(map[string]*playerState),
		chatLog:         make([]ChatMessage, 0, chatHistoryLimit),
		roomDeps:        deps,
		now:             time.Now,
		inbox:           make(chan ClientPacketEnvelope, 1024),
		joinRequests:    make(chan roomJoinRequest, 64),
		removalRequests: make(chan Player, 64),
		pingRequests:    make(chan struct{}, 1),
		done:            make(chan struct{}),
		dataSendTasks:   make([]dataSendTask, 0),
	}
}

func (r *room) SetParentLobby(l Lobby) {
	r.parentLobby = l
}

func (r *room) Send(ctx context.Context, e ClientPacketEnvelope) {
	select {
	case r.inbox <- e:
	case <-ctx.Done():
	case <-r.done:
	}
}

func (r *room) RemoveMe(p Player) {
	select {
	case r.removalRequests <- p:
	case <-r.done:
	}
}

func (r *room) RequestJoin(jreq roomJoinRequest) {
	select {
	case <-r.done:
		jreq.errChan <- ErrRoomClosed
		return
	default:
	}
	select {
	case r.joinRequests <- jreq:
	case <-r.done:
		jreq.errChan <- ErrRoomClosed
	}
}

func (r *room) PingPlayers() {
	select {
	case r.pingRequests <- struct{}{}:
	default:
	}
}

func (r *room) CloseAndRelease() {
	r.closeOnce.Do(func() {
		close(r.done)
	})
}

func (r *room) GameLoop() {
	r.preparePassage()

	for {
		select {
		case <-r.done:
			r.release()
			return
		case jreq := <-r.joinRequests:
			r.handleJoinRequest(jreq)
		case e := <-r.inbox:
			r.latency.Record(r.now().Sub(e.receivedAt))
			r.handleEnvelope(e)
		case p := <-r.removalRequests:
			r.handleRemovePlayer(p)
		case <-r.pingRequests:
			r.handlePingPlayers()
		case now := <-tickerChan(r.countdownTicker):
			r.handleCountdownTick(now)
		case now := <-tickerChan(r.wpmTicker):
			r.handleWpmTick(now)
		case <-tickerChan(r.closeTimer):
			r.handleCloseTimer()
		}
		r.flushPendingDataSendTasks()
	}
}

func tickerChan(t Ticker) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C()
}

func stopTicker(t *Ticker) {
	if *t != nil {
		(*t).Stop()
		*t = nil
	}
}

func (r *room) stopTimers() {
	stopTicker(&r.countdownTicker)
	stopTicker(&r.wpmTicker)
	stopTicker(&r.closeTimer)
}

func (r *room) release() {
	r.stopTimers()
	r.status = StatusClosed
	for _, ps := range r.players {
		if ps.conn != nil {
			ps.conn.CancelAndRelease()
		}
	}
	for {
		select {
		case jreq := <-r.joinRequests:
			jreq.errChan <- ErrRoomClosed
		default:
			return
		}
	}
}

// Description is only safe to call before GameLoop starts. Afterwards the
// room pushes its description to the lobby itself.
func (r *room) Description() RoomDescription {
	desc := RoomDescription{
		Code:       r.code,
		Status:     r.status,
		Type:       r.roomType,
		MaxPlayers: r.maxPlayers,
	}
	var skillSum float64
	for _, ps := range r.players {
		if ps.disconnected {
			continue
		}
		desc.PlayersCount++
		skillSum += ps.skill
	}
	if desc.PlayersCount > 0 {
		desc.AvgWpm = skillSum / float64(desc.PlayersCount)
	}
	return desc
}

func (r *room) publishDescription() {
	if r.parentLobby != nil {
		r.parentLobby.RequestUpdateDescription(r.Description())
	}
}

func (r *room) preparePassage() {
	if len(r.passage) > 0 {
		return
	}
	if err := r.regeneratePassage(r.passageConfig); err != nil {
		log.Error().Err(err).Str("room", r.code).Msg("failed to generate passage")
	}
}

func (r *room) regeneratePassage(cfg passage.Config) error {
	ctx, cancel := context.WithTimeout(context.Background(), r.timing.PersistenceTimeout)
	defer cancel()

	text, err := r.generator.Generate(ctx, cfg)
	if err != nil {
		return err
	}
	r.passage = []rune(text)
	r.passageConfig = cfg
	return nil
}

func (r *room) addDataSendTask(to Player, data []byte) {
	if to == nil || data == nil {
		return
	}
	r.dataSendTasks = append(r.dataSendTasks, dataSendTask{to: to, data: data})
}

func (r *room) broadcast(data []byte) {
	for _, id := range r.order {
		if ps := r.players[id]; !ps.disconnected {
			r.addDataSendTask(ps.conn, data)
		}
	}
}

func (r *room) broadcastExcept(userId string, data []byte) {
	for _, id := range r.order {
		if ps := r.players[id]; id != userId && !ps.disconnected {
			r.addDataSendTask(ps.conn, data)
		}
	}
}

// A player whose send buffer is full is cut loose. It will be resynced by
// the join snapshot if it reconnects.
func (r *room) flushPendingDataSendTasks() {
	for _, task := range r.dataSendTasks {
		if err := task.to.Send(task.data); err != nil {
			log.Warn().Err(err).Str("room", r.code).Str("user", task.to.Id()).Msg("dropping slow player")
			task.to.CancelAndRelease()
		}
	}
	r.dataSendTasks = r.dataSendTasks[:0]
}

func (r *room) handlePingPlayers() {
	for _, ps := range r.players {
		if ps.conn == nil {
			continue
		}
		if err := ps.conn.Ping(); err != nil {
			log.Debug().Err(err).Str("room", r.code).Str("user", ps.userId).Msg("ping skipped")
		}
	}
}

func (r *room) connectedCount() int {
	count := 0
	for _, ps := range r.players {
		if !ps.disconnected {
			count++
		}
	}
	return count
}

func (r *room) nextColor() string {
	used := make(map[string]bool, len(r.players))
	for _, ps := range r.players {
		used[ps.color] = true
	}
	for _, c := range colors {
		if !used[c] {
			return c
		}
	}
	return colors[len(r.players)%len(colors)]
}

func (r *room) handleJoinRequest(jreq roomJoinRequest) {
	if r.status == StatusClosed {
		jreq.errChan <- ErrRoomClosed
		return
	}

	p := jreq.player
	id := p.Id()
	ps, known := r.players[id]

	// Admit, then check capacity and revert if it was exceeded.
	var previous playerState
	if known {
		previous = *ps
		ps.conn = p
		ps.disconnected = false
		ps.skill = jreq.skill
	} else {
		ps = &playerState{
			conn:      p,
			userId:    id,
			username:  p.Username(),
			color:     r.nextColor(),
			skill:     jreq.skill,
			spectator: r.status != StatusWaiting,
		}
		r.players[id] = ps
		r.order = append(r.order, id)
	}

	if r.connectedCount() > r.maxPlayers {
		if known {
			*ps = previous
		} else {
			delete(r.players, id)
			r.order = r.order[:len(r.order)-1]
		}
		jreq.errChan <- ErrRoomFull
		return
	}

	emptied := r.closeTimer != nil
	stopTicker(&r.closeTimer)

	if known && r.status == StatusInProgress && !ps.spectator && !ps.finished && ps.typingIndex == 0 {
		ps.spectator = true
	}

	// A room emptied by its host hands the role to whoever arrives first.
	if host, ok := r.players[r.hostId]; emptied && (!ok || host.disconnected) {
		r.hostId = id
		r.broadcastExcept(id, MakePacketNewHost(id))
		r.systemMessage(ps.username + " is now the host")
	}

	p.SetRoom(r)

	r.addDataSendTask(p, MakePacketJoinSuccess(r.snapshotFor(ps)))
	r.addDataSendTask(p, MakePacketChatHistory(r.chatLog))
	r.broadcastExcept(id, MakePacketLobbyUpdate(r.lobbyUpdate()))
	if known {
		r.systemMessage(ps.username + " reconnected")
	} else {
		r.systemMessage(ps.username + " joined")
	}
	r.publishDescription()

	log.Info().Str("room", r.code).Str("user", id).Bool("reconnect", known).Bool("spectator", ps.spectator).Msg("player joined")
	jreq.errChan <- nil
}

func (r *room) handleRemovePlayer(p Player) {
	p.CancelAndRelease()

	ps, ok := r.players[p.Id()]
	if !ok || ps.conn != p {
		return
	}

	ps.conn = nil
	ps.disconnected = true
	if r.status == StatusWaiting {
		r.removeRecord(ps.userId)
	}
	r.systemMessage(ps.username + " left")

	if ps.userId == r.hostId {
		r.reassignHost()
	}

	switch r.status {
	case StatusInProgress:
		r.checkMatchEnd(r.now())
	case StatusCountdown:
		if r.activeTypers() == 0 {
			r.abortCountdown()
		}
	}

	if r.connectedCount() == 0 {
		if r.closeTimer == nil {
			r.closeTimer = r.tickerCreator.Create(r.timing.CloseGrace)
		}
	} else {
		r.broadcast(MakePacketLobbyUpdate(r.lobbyUpdate()))
	}
	r.publishDescription()
	log.Info().Str("room", r.code).Str("user", ps.userId).Msg("player left")
}

func (r *room) removeRecord(userId string) {
	delete(r.players, userId)
	for i, id := range r.order {
		if id == userId {
			r.order = append(r.order[:i], r.order[i+1:]...)
			return
		}
	}
}

func (r *room) pruneDisconnected() {
	for _, id := range append([]string(nil), r.order...) {
		if r.players[id].disconnected {
			r.removeRecord(id)
		}
	}
}

// reassignHost picks the first connected member in join order. With nobody
// left the room is about to close and keeps its old host id.
func (r *room) reassignHost() {
	for _, id := range r.order {
		if ps := r.players[id]; !ps.disconnected && id != r.hostId {
			r.hostId = id
			r.broadcast(MakePacketNewHost(id))
			r.systemMessage(ps.username + " is now the host")
			return
		}
	}
}

func (r *room) handleCloseTimer() {
	stopTicker(&r.closeTimer)
	if r.connectedCount() > 0 {
		return
	}
	r.stopTimers()
	r.status = StatusClosed
	log.Info().Str("room", r.code).Msg("closing empty room")
	if r.parentLobby != nil {
		r.parentLobby.RemoveRoom(r.code)
	}
}

func (r *room) handleStartMatch(from Player) {
	if from.Id() != r.hostId {
		log.Warn().Str("room", r.code).Str("user", from.Id()).Str("reason", ErrNotHost.Error()).Msg("ignoring start")
		return
	}
	if r.status != StatusWaiting {
		r.addDataSendTask(from, MakePacketStartError(ErrMatchStarted))
		return
	}
	if len(r.passage) == 0 {
		if err := r.regeneratePassage(r.passageConfig); err != nil {
			log.Error().Err(err).Str("room", r.code).Msg("failed to generate passage on start")
			r.addDataSendTask(from, MakePacketStartError(err))
			return
		}
	}

	r.pruneDisconnected()
	for _, ps := range r.players {
		ps.resetProgress()
		ps.spectator = false
	}

	r.status = StatusCountdown
	r.isMatchStarted = false
	r.countdownRemaining = r.timing.CountdownSeconds
	r.countdownTicker = r.tickerCreator.Create(time.Second)
	r.wpmTicker = r.tickerCreator.Create(time.Second)

	r.broadcast(MakePacketCountdown(r.countdownRemaining))
	r.broadcast(MakePacketLobbyUpdate(r.lobbyUpdate()))
	r.publishDescription()
	log.Info().Str("room", r.code).Int("players", len(r.players)).Msg("match countdown started")
}

func (r *room) handleCountdownTick(now time.Time) {
	if r.status != StatusCountdown {
		return
	}
	r.countdownRemaining--
	if r.countdownRemaining > 0 {
		r.broadcast(MakePacketCountdown(r.countdownRemaining))
		return
	}

	stopTicker(&r.countdownTicker)
	r.status = StatusInProgress
	r.isMatchStarted = true
	r.matchStartedAt = now
	r.broadcast(MakePacketMatchStarted(string(r.passage)))
	r.publishDescription()
	r.checkMatchEnd(now)
}

func (r *room) abortCountdown() {
	stopTicker(&r.countdownTicker)
	stopTicker(&r.wpmTicker)
	r.status = StatusWaiting
	r.pruneDisconnected()
}

func (r *room) handleConfigChange(from Player, cfg passage.Config) {
	if from.Id() != r.hostId {
		log.Warn().Str("room", r.code).Str("user", from.Id()).Str("reason", ErrNotHost.Error()).Msg("ignoring config change")
		return
	}
	if r.status != StatusWaiting {
		r.addDataSendTask(from, MakePacketConfigError(ErrMatchStarted))
		return
	}
	if err := cfg.Validate(); err != nil {
		r.addDataSendTask(from, MakePacketConfigError(err))
		return
	}
	if err := r.regeneratePassage(cfg); err != nil {
		log.Error().Err(err).Str("room", r.code).Msg("failed to generate passage for new config")
		r.addDataSendTask(from, MakePacketConfigError(err))
		return
	}
	r.broadcast(MakePacketLobbyUpdate(r.lobbyUpdate()))
}

func (r *room) snapshotOf(ps *playerState) PlayerSnapshot {
	return PlayerSnapshot{
		UserId:       ps.userId,
		Username:     ps.username,
		Color:        ps.color,
		IsHost:       ps.userId == r.hostId,
		Spectator:    ps.spectator,
		Disconnected: ps.disconnected,
		TypingIndex:  ps.visibleIndex(),
		Finished:     ps.finished,
		Ordinal:      ps.ordinal,
		Wpm:          ps.wpm,
	}
}

func (r *room) roster() []PlayerSnapshot {
	roster := make([]PlayerSnapshot, 0, len(r.order))
	for _, id := range r.order {
		roster = append(roster, r.snapshotOf(r.players[id]))
	}
	return roster
}

func (r *room) lobbyUpdate() LobbyUpdate {
	return LobbyUpdate{
		Status:        r.status,
		HostId:        r.hostId,
		Passage:       string(r.passage),
		PassageConfig: r.passageConfig,
		Players:       r.roster(),
	}
}

func (r *room) snapshotFor(ps *playerState) RoomSnapshot {
	self := r.snapshotOf(ps)
	self.TypingIndex = ps.typingIndex

	snapshot := RoomSnapshot{
		Code:          r.code,
		Status:        r.status,
		Type:          r.roomType,
		Started:       r.isMatchStarted,
		HostId:        r.hostId,
		MaxPlayers:    r.maxPlayers,
		Passage:       string(r.passage),
		PassageConfig: r.passageConfig,
		Self:          self,
		Players:       make([]PlayerSnapshot, 0, len(r.order)),
	}
	if r.batchSizer != nil {
		snapshot.BufferSize = r.batchSizer.Size()
	}
	for _, id := range r.order {
		if id != ps.userId {
			snapshot.Players = append(snapshot.Players, r.snapshotOf(r.players[id]))
		}
	}
	return snapshot
}
