package events

import (
	"encoding/json"
	"fmt"
)

const (
	TypeError                            = "error"
	TypeSessionCreated                   = "session.created"
	TypeSessionUpdated                   = "session.updated"
	TypeConversationItemCreated          = "conversation.item.created"
	TypeConversationItemDeleted          = "conversation.item.deleted"
	TypeConversationItemTruncated        = "conversation.item.truncated"
	TypeInputAudioTranscriptionCompleted = "conversation.item.input_audio_transcription.completed"
	TypeInputAudioBufferCommitted        = "input_audio_buffer.committed"
	TypeInputAudioBufferCleared          = "input_audio_buffer.cleared"
	TypeSpeechStarted                    = "input_audio_buffer.speech_started"
	TypeSpeechStopped                    = "input_audio_buffer.speech_stopped"
	TypeResponseCreated                  = "response.created"
	TypeResponseDone                     = "response.done"
	TypeResponseOutputItemAdded          = "response.output_item.added"
	TypeResponseOutputItemDone           = "response.output_item.done"
	TypeResponseContentPartAdded         = "response.content_part.added"
	TypeResponseTextDelta                = "response.text.delta"
	TypeResponseAudioTranscriptDelta     = "response.audio_transcript.delta"
	TypeResponseAudioTranscriptDone      = "response.audio_transcript.done"
	TypeResponseAudioDelta               = "response.audio.delta"
	TypeResponseAudioDone                = "response.audio.done"
	TypeResponseFunctionCallArgsDelta    = "response.function_call_arguments.delta"
	TypeRateLimitsUpdated                = "rate_limits.updated"
)

// ServerEvent is implemented by every event the remote peer sends. The set
// is closed; kinds this package does not know decode to *UnknownEvent.
type ServerEvent interface {
	EventType() string
	isServerEvent()
}

type AudioFormat string

const (
	AudioFormatPCM16 AudioFormat = "pcm16"
)

type ErrorEvent struct {
	BaseEvent
	ErrorDetail ErrorDetail `json:"error"`
}

func (e *ErrorEvent) Error() string {
	return e.ErrorDetail.Error()
}

// ErrorDetail holds the details of the error.
type ErrorDetail struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Param   string `json:"param"`
	EventID string `json:"event_id"`
}

func (e *ErrorDetail) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

type SessionCreatedEvent struct {
	BaseEvent
	Session Session `json:"session"`
}

type SessionUpdatedEvent struct {
	BaseEvent
	Session Session `json:"session"`
}

type ConversationItemCreatedEvent struct {
	BaseEvent
	PreviousItemID string           `json:"previous_item_id,omitempty"`
	Item           ConversationItem `json:"item"`
}

type ConversationItemDeletedEvent struct {
	BaseEvent
	ItemID string `json:"item_id"`
}

type ConversationItemTruncatedEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int    `json:"audio_end_ms"`
}

type InputAudioTranscriptionCompletedEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

type InputAudioBufferCommittedEvent struct {
	BaseEvent
	PreviousItemID string `json:"previous_item_id,omitempty"`
	ItemID         string `json:"item_id"`
}

type InputAudioBufferClearedEvent struct {
	BaseEvent
}

type SpeechStartedEvent struct {
	BaseEvent
	AudioStartMs int    `json:"audio_start_ms"`
	ItemID       string `json:"item_id"`
}

type SpeechStoppedEvent struct {
	BaseEvent
	AudioEndMs int    `json:"audio_end_ms"`
	ItemID     string `json:"item_id"`
}

type ResponseCreatedEvent struct {
	BaseEvent
	Response Response `json:"response"`
}

type ResponseDoneEvent struct {
	BaseEvent
	Response Response `json:"response"`
}

type ResponseOutputItemAddedEvent struct {
	BaseEvent
	ResponseID  string           `json:"response_id"`
	OutputIndex int              `json:"output_index"`
	Item        ConversationItem `json:"item"`
}

// ResponseOutputItemDoneEvent carries the final item. Item is nil when the
// payload omitted it.
type ResponseOutputItemDoneEvent struct {
	BaseEvent
	ResponseID  string            `json:"response_id"`
	OutputIndex int               `json:"output_index"`
	Item        *ConversationItem `json:"item"`
}

type ResponseContentPartAddedEvent struct {
	BaseEvent
	ResponseID   string      `json:"response_id"`
	ItemID       string      `json:"item_id"`
	OutputIndex  int         `json:"output_index"`
	ContentIndex int         `json:"content_index"`
	Part         ContentPart `json:"part"`
}

type ResponseTextDeltaEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type ResponseAudioTranscriptDeltaEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type ResponseAudioTranscriptDoneEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Transcript   string `json:"transcript"`
}

// ResponseAudioDeltaEvent carries base64 PCM16 in Delta.
type ResponseAudioDeltaEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
	Delta        string `json:"delta"`
}

type ResponseAudioDoneEvent struct {
	BaseEvent
	ResponseID   string `json:"response_id"`
	ItemID       string `json:"item_id"`
	OutputIndex  int    `json:"output_index"`
	ContentIndex int    `json:"content_index"`
}

type ResponseFunctionCallArgumentsDeltaEvent struct {
	BaseEvent
	ResponseID  string `json:"response_id"`
	ItemID      string `json:"item_id"`
	OutputIndex int    `json:"output_index"`
	CallID      string `json:"call_id"`
	Delta       string `json:"delta"`
}

type RateLimitsUpdatedEvent struct {
	BaseEvent
	RateLimits []RateLimit `json:"rate_limits"`
}

type RateLimit struct {
	Name         string  `json:"name"`
	Limit        int     `json:"limit"`
	Remaining    int     `json:"remaining"`
	ResetSeconds float64 `json:"reset_seconds"`
}

// UnknownEvent preserves an event of a kind this package does not model.
type UnknownEvent struct {
	BaseEvent
	Raw json.RawMessage `json:"-"`
}

func (*ErrorEvent) isServerEvent()                              {}
func (*SessionCreatedEvent) isServerEvent()                     {}
func (*SessionUpdatedEvent) isServerEvent()                     {}
func (*ConversationItemCreatedEvent) isServerEvent()            {}
func (*ConversationItemDeletedEvent) isServerEvent()            {}
func (*ConversationItemTruncatedEvent) isServerEvent()          {}
func (*InputAudioTranscriptionCompletedEvent) isServerEvent()   {}
func (*InputAudioBufferCommittedEvent) isServerEvent()          {}
func (*InputAudioBufferClearedEvent) isServerEvent()            {}
func (*SpeechStartedEvent) isServerEvent()                      {}
func (*SpeechStoppedEvent) isServerEvent()                      {}
func (*ResponseCreatedEvent) isServerEvent()                    {}
func (*ResponseDoneEvent) isServerEvent()                       {}
func (*ResponseOutputItemAddedEvent) isServerEvent()            {}
func (*ResponseOutputItemDoneEvent) isServerEvent()             {}
func (*ResponseContentPartAddedEvent) isServerEvent()           {}
func (*ResponseTextDeltaEvent) isServerEvent()                  {}
func (*ResponseAudioTranscriptDeltaEvent) isServerEvent()       {}
func (*ResponseAudioTranscriptDoneEvent) isServerEvent()        {}
func (*ResponseAudioDeltaEvent) isServerEvent()                 {}
func (*ResponseAudioDoneEvent) isServerEvent()                  {}
func (*ResponseFunctionCallArgumentsDeltaEvent) isServerEvent() {}
func (*RateLimitsUpdatedEvent) isServerEvent()                  {}
func (*UnknownEvent) isServerEvent()                            {}

var serverEvents = map[string]func() ServerEvent{
	TypeError:                            func() ServerEvent { return &ErrorEvent{} },
	TypeSessionCreated:                   func() ServerEvent { return &SessionCreatedEvent{} },
	TypeSessionUpdated:                   func() ServerEvent { return &SessionUpdatedEvent{} },
	TypeConversationItemCreated:          func() ServerEvent { return &ConversationItemCreatedEvent{} },
	TypeConversationItemDeleted:          func() ServerEvent { return &ConversationItemDeletedEvent{} },
	TypeConversationItemTruncated:        func() ServerEvent { return &ConversationItemTruncatedEvent{} },
	TypeInputAudioTranscriptionCompleted: func() ServerEvent { return &InputAudioTranscriptionCompletedEvent{} },
	TypeInputAudioBufferCommitted:        func() ServerEvent { return &InputAudioBufferCommittedEvent{} },
	TypeInputAudioBufferCleared:          func() ServerEvent { return &InputAudioBufferClearedEvent{} },
	TypeSpeechStarted:                    func() ServerEvent { return &SpeechStartedEvent{} },
	TypeSpeechStopped:                    func() ServerEvent { return &SpeechStoppedEvent{} },
	TypeResponseCreated:                  func() ServerEvent { return &ResponseCreatedEvent{} },
	TypeResponseDone:                     func() ServerEvent { return &ResponseDoneEvent{} },
	TypeResponseOutputItemAdded:          func() ServerEvent { return &ResponseOutputItemAddedEvent{} },
	TypeResponseOutputItemDone:           func() ServerEvent { return &ResponseOutputItemDoneEvent{} },
	TypeResponseContentPartAdded:         func() ServerEvent { return &ResponseContentPartAddedEvent{} },
	TypeResponseTextDelta:                func() ServerEvent { return &ResponseTextDeltaEvent{} },
	TypeResponseAudioTranscriptDelta:     func() ServerEvent { return &ResponseAudioTranscriptDeltaEvent{} },
	TypeResponseAudioTranscriptDone:      func() ServerEvent { return &ResponseAudioTranscriptDoneEvent{} },
	TypeResponseAudioDelta:               func() ServerEvent { return &ResponseAudioDeltaEvent{} },
	TypeResponseAudioDone:                func() ServerEvent { return &ResponseAudioDoneEvent{} },
	TypeResponseFunctionCallArgsDelta:    func() ServerEvent { return &ResponseFunctionCallArgumentsDeltaEvent{} },
	TypeRateLimitsUpdated:                func() ServerEvent { return &RateLimitsUpdatedEvent{} },
}

// ParseServerEvent decodes one inbound message into its typed event.
func ParseServerEvent(data []byte) (ServerEvent, error) {
	var base BaseEvent
	if err := json.Unmarshal(data, &base); err != nil {
		return nil, fmt.Errorf("decode event envelope: %w", err)
	}
	if base.Type == "" {
		return nil, fmt.Errorf("event without type")
	}

	newEvent, ok := serverEvents[base.Type]
	if !ok {
		raw := make(json.RawMessage, len(data))
		copy(raw, data)
		return &UnknownEvent{BaseEvent: base, Raw: raw}, nil
	}

	evt := newEvent()
	if err := json.Unmarshal(data, evt); err != nil {
		return nil, fmt.Errorf("decode %s: %w", base.Type, err)
	}
	return evt, nil
}
