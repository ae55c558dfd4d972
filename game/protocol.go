package game

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"versus/passage"
)

// Client to server packet types.
const (
	PacketStartMatch   = "start-match"
	PacketKeyPress     = "key-press"
	PacketKeyBatch     = "key-batch"
	PacketBackspace    = "backspace"
	PacketConfigChange = "config-change"
	PacketChatSend     = "chat-send"
	PacketPing         = "ping"
)

// Server to client packet types.
const (
	PacketJoinResult     = "join-result"
	PacketProgressUpdate = "progress-update"
	PacketCountdown      = "countdown"
	PacketMatchStarted   = "match-started"
	PacketLobbyUpdate    = "lobby-update"
	PacketWpmUpdate      = "wpm-update"
	PacketMatchEnded     = "match-ended"
	PacketBufferSize     = "buffer-size"
	PacketNewHost        = "new-host"
	PacketChatNew        = "chat-new"
	PacketChatHistory    = "chat-history"
	PacketChatError      = "chat-error"
	PacketPong           = "pong"
	PacketConfigError    = "config-error"
	PacketStartError     = "start-error"
)

type ClientPacket struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

type ClientPacketEnvelope struct {
	packet     ClientPacket
	from       Player
	receivedAt time.Time
}

type serverPacket struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type KeyPressPayload struct {
	Key string `json:"key"`
}

type KeyBatchPayload struct {
	Keys string `json:"keys"`
}

type BackspacePayload struct {
	Count int `json:"count"`
}

type ChatSendPayload struct {
	Message string `json:"message"`
}

type PingPayload struct {
	Ts int64 `json:"ts"`
}

type PlayerSnapshot struct {
	UserId       string  `json:"userId"`
	Username     string  `json:"username"`
	Color        string  `json:"color"`
	IsHost       bool    `json:"isHost"`
	Spectator    bool    `json:"spectator"`
	Disconnected bool    `json:"disconnected"`
	TypingIndex  int     `json:"typingIndex"`
	Finished     bool    `json:"finished"`
	Ordinal      int     `json:"ordinal,omitempty"`
	Wpm          float64 `json:"wpm"`
}

type RoomSnapshot struct {
	Code          string           `json:"code"`
	Status        RoomStatus       `json:"status"`
	Type          RoomType         `json:"type"`
	Started       bool             `json:"started"`
	HostId        string           `json:"hostId"`
	MaxPlayers    int              `json:"maxPlayers"`
	Passage       string           `json:"passage"`
	PassageConfig passage.Config   `json:"passageConfig"`
	Self          PlayerSnapshot   `json:"self"`
	Players       []PlayerSnapshot `json:"players"`
	BufferSize    int              `json:"bufferSize"`
}

type LobbyUpdate struct {
	Status        RoomStatus       `json:"status"`
	HostId        string           `json:"hostId"`
	Passage       string           `json:"passage"`
	PassageConfig passage.Config   `json:"passageConfig"`
	Players       []PlayerSnapshot `json:"players"`
}

type PlayerResult struct {
	UserId   string  `json:"userId"`
	Username string  `json:"username"`
	Wpm      float64 `json:"wpm"`
	Accuracy float64 `json:"accuracy"`
	Ordinal  int     `json:"ordinal,omitempty"`
	Finished bool    `json:"finished"`
}

type ChatMessage struct {
	Username string `json:"username"`
	UserId   string `json:"userId,omitempty"`
	Message  string `json:"message"`
	System   bool   `json:"system"`
}

func decodeClientPacket(data []byte) (ClientPacket, error) {
	var packet ClientPacket
	err := json.Unmarshal(data, &packet)
	return packet, err
}

func encode(packetType string, data any) []byte {
	raw, err := json.Marshal(serverPacket{Type: packetType, Data: data})
	if err != nil {
		log.Error().Err(err).Str("type", packetType).Msg("failed to encode server packet")
		return nil
	}
	return raw
}

func MakePacketJoinSuccess(snapshot RoomSnapshot) []byte {
	return encode(PacketJoinResult, map[string]any{"success": true, "snapshot": snapshot})
}

func MakePacketJoinFailure(err error) []byte {
	return encode(PacketJoinResult, map[string]any{"success": false, "error": err.Error()})
}

func MakePacketProgressUpdate(userId string, typingIndex int) []byte {
	return encode(PacketProgressUpdate, map[string]any{"userId": userId, "typingIndex": typingIndex})
}

func MakePacketCountdown(seconds int) []byte {
	return encode(PacketCountdown, map[string]int{"seconds": seconds})
}

func MakePacketMatchStarted(text string) []byte {
	return encode(PacketMatchStarted, map[string]string{"passage": text})
}

func MakePacketLobbyUpdate(update LobbyUpdate) []byte {
	return encode(PacketLobbyUpdate, update)
}

func MakePacketWpmUpdate(wpm map[string]float64) []byte {
	return encode(PacketWpmUpdate, map[string]any{"wpm": wpm})
}

func MakePacketMatchEnded(results []PlayerResult) []byte {
	return encode(PacketMatchEnded, map[string]any{"results": results})
}

func MakePacketBufferSize(size int) []byte {
	return encode(PacketBufferSize, map[string]int{"size": size})
}

func MakePacketNewHost(userId string) []byte {
	return encode(PacketNewHost, map[string]string{"userId": userId})
}

func MakePacketChatNew(msg ChatMessage) []byte {
	return encode(PacketChatNew, msg)
}

func MakePacketChatHistory(history []ChatMessage) []byte {
	return encode(PacketChatHistory, map[string]any{"messages": history})
}

func MakePacketChatError(err error) []byte {
	return encode(PacketChatError, map[string]string{"reason": err.Error()})
}

func MakePacketPong(ts int64) []byte {
	return encode(PacketPong, PingPayload{Ts: ts})
}

func MakePacketConfigError(err error) []byte {
	return encode(PacketConfigError, map[string]string{"reason": err.Error()})
}

func MakePacketStartError(err error) []byte {
	return encode(PacketStartError, map[string]string{"reason": err.Error()})
}
