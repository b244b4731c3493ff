package events

import "encoding/json"

type ItemType string

const (
	ItemTypeMessage            ItemType = "message"
	ItemTypeFunctionCall       ItemType = "function_call"
	ItemTypeFunctionCallOutput ItemType = "function_call_output"
)

type ItemStatus string

const (
	ItemStatusInProgress ItemStatus = "in_progress"
	ItemStatusCompleted  ItemStatus = "completed"
	ItemStatusIncomplete ItemStatus = "incomplete"
)

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

type ContentType string

const (
	ContentTypeText       ContentType = "text"
	ContentTypeInputText  ContentType = "input_text"
	ContentTypeAudio      ContentType = "audio"
	ContentTypeInputAudio ContentType = "input_audio"
)

// ContentPart is one entry of a message's content. Text parts carry Text,
// audio parts carry a Transcript and, on input, base64 Audio.
type ContentPart struct {
	Type       ContentType `json:"type"`
	Text       string      `json:"text,omitempty"`
	Transcript string      `json:"transcript,omitempty"`
	Audio      string      `json:"audio,omitempty"`
}

// ConversationItem is the inner “item” object.
type ConversationItem struct {
	ID        string        `json:"id,omitempty"`
	Object    string        `json:"object,omitempty"`
	Type      ItemType      `json:"type"`
	Status    ItemStatus    `json:"status,omitempty"`
	Role      string        `json:"role,omitempty"`
	Content   []ContentPart `json:"content,omitempty"`
	CallID    string        `json:"call_id,omitempty"`
	Name      string        `json:"name,omitempty"`
	Arguments string        `json:"arguments,omitempty"`
	Output    string        `json:"output,omitempty"`
}

type Response struct {
	ID            string             `json:"id"`
	Object        string             `json:"object,omitempty"`
	Status        string             `json:"status,omitempty"`
	StatusDetails json.RawMessage    `json:"status_details,omitempty"`
	Output        []ConversationItem `json:"output"`
	Metadata      map[string]any     `json:"metadata,omitempty"`
	Usage         *Usage             `json:"usage,omitempty"`
}

type Usage struct {
	TotalTokens  int `json:"total_tokens"`
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
