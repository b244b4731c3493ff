package realtime

import "errors"

var (
	ErrNotConnected        = errors.New("not connected")
	ErrAlreadyConnected    = errors.New("already connected")
	ErrInvalidConfig       = errors.New("invalid config")
	ErrItemNotFound        = errors.New("item not found")
	ErrNotAssistantMessage = errors.New("item is not an assistant message")
	ErrNoAudioContent      = errors.New("item has no audio content")
)
