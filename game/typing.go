package game

import (
	"context"
	"encoding/json"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"versus/domain"
	"versus/passage"
)

type envelopeHandler func(r *room, e ClientPacketEnvelope)

func decodePayload[T any](r *room, e ClientPacketEnvelope) (T, bool) {
	var payload T
	if len(e.packet.Data) > 0 {
		if err := json.Unmarshal(e.packet.Data, &payload); err != nil {
			log.Warn().Err(err).Str("room", r.code).Str("type", e.packet.Type).Msg("malformed payload")
			return payload, false
		}
	}
	return payload, true
}

func typed[T any](handle func(r *room, from Player, payload T)) envelopeHandler {
	return func(r *room, e ClientPacketEnvelope) {
		if payload, ok := decodePayload[T](r, e); ok {
			handle(r, e.from, payload)
		}
	}
}

var envelopeHandlers = map[string]envelopeHandler{
	PacketStartMatch: func(r *room, e ClientPacketEnvelope) { r.handleStartMatch(e.from) },
	PacketKeyPress: typed(func(r *room, from Player, p KeyPressPayload) {
		r.handleKeys(from, p.Key)
	}),
	PacketKeyBatch: typed(func(r *room, from Player, p KeyBatchPayload) {
		r.handleKeys(from, p.Keys)
	}),
	PacketBackspace: typed(func(r *room, from Player, p BackspacePayload) {
		r.handleBackspace(from, p.Count)
	}),
	PacketConfigChange: func(r *room, e ClientPacketEnvelope) {
		cfg, ok := decodePayload[passage.Config](r, e)
		if !ok {
			r.addDataSendTask(e.from, MakePacketConfigError(passage.ErrInvalidConfig))
			return
		}
		r.handleConfigChange(e.from, cfg)
	},
	PacketChatSend: typed(func(r *room, from Player, p ChatSendPayload) {
		r.handleChatSend(from, p.Message)
	}),
}

func (r *room) handleEnvelope(e ClientPacketEnvelope) {
	handle, ok := envelopeHandlers[e.packet.Type]
	if !ok {
		log.Warn().Str("room", r.code).Str("type", e.packet.Type).Msg("unknown packet type")
		return
	}
	handle(r, e)
}

// typist returns the sender's state if it is allowed to type right now.
func (r *room) typist(from Player, event string) *playerState {
	ps, ok := r.players[from.Id()]
	reason := ""
	switch {
	case !ok || ps.conn != from:
		reason = "unknown-player"
	case r.status != StatusInProgress:
		reason = "match-not-in-progress"
	case ps.spectator:
		reason = "spectator"
	case ps.finished:
		reason = "already-finished"
	}
	if reason != "" {
		log.Warn().Str("room", r.code).Str("user", from.Id()).Str("event", event).Str("reason", reason).Msg("ignoring typing event")
		return nil
	}
	return ps
}

// handleKeys applies a run of keystrokes. A batch produces at most one
// progress broadcast, carrying the last visible index.
func (r *room) handleKeys(from Player, keys string) {
	ps := r.typist(from, "keys")
	if ps == nil || keys == "" {
		return
	}

	now := r.now()
	if ps.startedAt.IsZero() {
		ps.startedAt = now
	}

	for _, key := range keys {
		expected, inRange := r.expectedAt(ps.typingIndex)
		correct := inRange && key == expected
		ps.accuracy.Record(correct)

		if !ps.errorLocked {
			if correct && ps.typingIndex == len(r.passage)-1 {
				ps.typingIndex++
				r.finish(ps, now)
				return
			}
			if !correct {
				ps.errorLocked = true
				ps.incorrectIndex = ps.typingIndex
			}
		}
		ps.typingIndex++
	}

	if visible := ps.visibleIndex(); visible != ps.lastBroadcast {
		ps.lastBroadcast = visible
		r.broadcastExcept(ps.userId, MakePacketProgressUpdate(ps.userId, visible))
	}
}

func (r *room) expectedAt(i int) (rune, bool) {
	if i < 0 || i >= len(r.passage) {
		return 0, false
	}
	return r.passage[i], true
}

func (r *room) handleBackspace(from Player, count int) {
	ps := r.typist(from, "backspace")
	if ps == nil || count <= 0 {
		return
	}

	ps.typingIndex = max(0, ps.typingIndex-count)
	if ps.errorLocked && ps.typingIndex <= ps.incorrectIndex {
		ps.errorLocked = false
	}
	if ps.errorLocked {
		return
	}
	ps.lastBroadcast = ps.typingIndex
	r.broadcastExcept(ps.userId, MakePacketProgressUpdate(ps.userId, ps.typingIndex))
}

func (r *room) finish(ps *playerState, now time.Time) {
	ps.finished = true
	ps.lastBroadcast = ps.typingIndex
	ps.wpm = Wpm(ps.typingIndex, ps.startedAt, now)
	ps.ordinal = r.maxOrdinal() + 1

	log.Info().Str("room", r.code).Str("user", ps.userId).Int("ordinal", ps.ordinal).Float64("wpm", ps.wpm).Msg("player finished")

	r.broadcast(MakePacketLobbyUpdate(r.lobbyUpdate()))
	r.checkMatchEnd(now)
}

func (r *room) maxOrdinal() int {
	highest := 0
	for _, ps := range r.players {
		highest = max(highest, ps.ordinal)
	}
	return highest
}

func (r *room) activeTypers() int {
	count := 0
	for _, ps := range r.players {
		if ps.racing() && !ps.finished {
			count++
		}
	}
	return count
}

func (r *room) participants() int {
	count := 0
	for _, ps := range r.players {
		if ps.racing() {
			count++
		}
	}
	return count
}

func (r *room) handleWpmTick(now time.Time) {
	if r.status != StatusInProgress {
		return
	}
	wpm := make(map[string]float64)
	for id, ps := range r.players {
		if ps.spectator || ps.startedAt.IsZero() {
			continue
		}
		if !ps.finished {
			ps.wpm = Wpm(ps.visibleIndex(), ps.startedAt, now)
		}
		wpm[id] = ps.wpm
	}
	if len(wpm) > 0 {
		r.broadcast(MakePacketWpmUpdate(wpm))
	}
}

func (r *room) checkMatchEnd(now time.Time) {
	if r.status != StatusInProgress {
		return
	}
	participants := r.participants()
	if participants == 0 || r.activeTypers() == 0 || r.maxOrdinal() >= participants {
		r.endMatch(now)
	}
}

func (r *room) endMatch(now time.Time) {
	stopTicker(&r.countdownTicker)
	stopTicker(&r.wpmTicker)
	r.status = StatusEnded

	results := make([]PlayerResult, 0, len(r.order))
	record := domain.MatchResult{
		Id:        uuid.NewString(),
		RoomCode:  r.code,
		Passage:   string(r.passage),
		StartedAt: r.matchStartedAt,
		EndedAt:   now,
	}
	for _, id := range r.order {
		ps := r.players[id]
		if ps.spectator {
			continue
		}
		if !ps.finished {
			ps.wpm = Wpm(ps.visibleIndex(), ps.startedAt, now)
		}
		result := PlayerResult{
			UserId:   ps.userId,
			Username: ps.username,
			Wpm:      ps.wpm,
			Accuracy: ps.accuracy.Percent(),
			Ordinal:  ps.ordinal,
			Finished: ps.finished,
		}
		results = append(results, result)
		if ps.finished {
			record.Participants = append(record.Participants, domain.Participation{
				UserId:   ps.userId,
				Username: ps.username,
				Wpm:      result.Wpm,
				Accuracy: result.Accuracy,
				Ordinal:  ps.ordinal,
			})
		}
	}
	slices.SortStableFunc(results, func(a, b PlayerResult) int {
		switch {
		case a.Finished && b.Finished:
			return a.Ordinal - b.Ordinal
		case a.Finished:
			return -1
		case b.Finished:
			return 1
		}
		return 0
	})

	r.broadcast(MakePacketMatchEnded(results))
	r.systemMessage("match ended")
	log.Info().Str("room", r.code).Int("finished", len(record.Participants)).Msg("match ended")

	if len(record.Participants) > 0 && r.recorder != nil {
		go r.persist(record)
	}

	if err := r.regeneratePassage(r.passageConfig); err != nil {
		log.Error().Err(err).Str("room", r.code).Msg("failed to regenerate passage, keeping the old one")
	}

	r.pruneDisconnected()
	for _, ps := range r.players {
		ps.resetProgress()
		ps.spectator = false
	}
	r.isMatchStarted = false
	r.status = StatusWaiting
	r.broadcast(MakePacketLobbyUpdate(r.lobbyUpdate()))
	r.publishDescription()
}

// persist runs outside the room loop. Its failure never touches the
// results already sent to the players.
func (r *room) persist(result domain.MatchResult) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timing.PersistenceTimeout)
	defer cancel()

	if err := r.recorder.RecordMatch(ctx, result); err != nil {
		log.Error().Err(err).Str("room", result.RoomCode).Str("match", result.Id).Msg("failed to record match")
	}
}
