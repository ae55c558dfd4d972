package game

import (
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog/log"
)

func validateChatMessage(message string) (string, error) {
	message = strings.TrimSpace(message)
	switch {
	case message == "":
		return "", ErrEmptyMessage
	case utf8.RuneCountInString(message) > chatMessageMaxRunes:
		return "", ErrMessageTooLong
	}
	return message, nil
}

func (r *room) handleChatSend(from Player, message string) {
	ps, ok := r.players[from.Id()]
	if !ok || ps.conn != from {
		return
	}

	message, err := validateChatMessage(message)
	if err != nil {
		r.addDataSendTask(from, MakePacketChatError(err))
		return
	}

	r.appendChat(ChatMessage{Username: ps.username, UserId: ps.userId, Message: message})
	log.Debug().Str("room", r.code).Str("user", ps.userId).Msg("chat message")
}

func (r *room) systemMessage(message string) {
	r.appendChat(ChatMessage{Username: "system", Message: message, System: true})
}

func (r *room) appendChat(msg ChatMessage) {
	if len(r.chatLog) == chatHistoryLimit {
		copy(r.chatLog, r.chatLog[1:])
		r.chatLog = r.chatLog[:chatHistoryLimit-1]
	}
	r.chatLog = append(r.chatLog, msg)
	r.broadcast(MakePacketChatNew(msg))
}
