package events

import "github.com/codewandler/realtime-go/tool"

const (
	TypeSessionUpdate            = "session.update"
	TypeConversationItemCreate   = "conversation.item.create"
	TypeConversationItemDelete   = "conversation.item.delete"
	TypeConversationItemTruncate = "conversation.item.truncate"
	TypeInputAudioBufferAppend   = "input_audio_buffer.append"
	TypeInputAudioBufferCommit   = "input_audio_buffer.commit"
	TypeInputAudioBufferClear    = "input_audio_buffer.clear"
	TypeResponseCreate           = "response.create"
	TypeResponseCancel           = "response.cancel"
)

// ClientEvent is any command sent to the remote peer.
type ClientEvent interface {
	EventType() string
}

type SessionUpdateEvent struct {
	BaseEvent
	Session SessionConfig `json:"session"`
}

type ConversationItemCreateEvent struct {
	BaseEvent
	PreviousItemID string           `json:"previous_item_id,omitempty"`
	Item           ConversationItem `json:"item"`
}

type ConversationItemDeleteEvent struct {
	BaseEvent
	ItemID string `json:"item_id"`
}

type ConversationItemTruncateEvent struct {
	BaseEvent
	ItemID       string `json:"item_id"`
	ContentIndex int    `json:"content_index"`
	AudioEndMs   int    `json:"audio_end_ms"`
}

type InputAudioBufferAppendEvent struct {
	BaseEvent
	Audio string `json:"audio"`
}

type InputAudioBufferCommitEvent struct {
	BaseEvent
}

type InputAudioBufferClearEvent struct {
	BaseEvent
}

type ResponseCreateEvent struct {
	BaseEvent
	Response *ResponseCreatePayload `json:"response,omitempty"`
}

type ResponseCreatePayload struct {
	Modalities        []string    `json:"modalities,omitempty"`
	Instructions      string      `json:"instructions,omitempty"`
	Voice             string      `json:"voice,omitempty"`
	OutputAudioFormat AudioFormat `json:"output_audio_format,omitempty"`
	Tools             []tool.Tool `json:"tools,omitempty"`
	ToolChoice        tool.Choice `json:"tool_choice,omitempty"`
	Temperature       float64     `json:"temperature,omitempty"`
	MaxOutputTokens   MaxTokens   `json:"max_output_tokens,omitempty"`
}

type ResponseCancelEvent struct {
	BaseEvent
	ResponseID string `json:"response_id,omitempty"`
}
