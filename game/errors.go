package game

import "errors"

var (
	ErrRoomNotFound     = errors.New("room-not-found")
	ErrRoomFull         = errors.New("room-full")
	ErrRoomClosed       = errors.New("room-closed")
	ErrAlreadyConnected = errors.New("already-connected-elsewhere")
	ErrNotHost          = errors.New("not-host")
	ErrMatchStarted     = errors.New("match-started")
	ErrInvalidSettings  = errors.New("invalid-room-settings")
	ErrLobbyStopped     = errors.New("lobby-stopped")
)

var (
	ErrSendBufferFull = errors.New("send-buffer-full")
	ErrRateLimited    = errors.New("rate-limited")
	ErrEmptyMessage   = errors.New("empty-message")
	ErrMessageTooLong = errors.New("message-too-long")
)
