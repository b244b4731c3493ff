// Package tool describes locally registered functions the remote peer can call.
package tool

import (
	"context"
	"encoding/json"
)

type Choice string

const (
	ChoiceAuto     Choice = "auto"
	ChoiceNone     Choice = "none"
	ChoiceRequired Choice = "required"
)

const TypeFunction = "function"

// Tool is the definition announced to the remote peer. Parameters holds a
// JSON schema: a Parameters value, a reflected schema or raw JSON.
type Tool struct {
	Type        string `json:"type"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Parameters  any    `json:"parameters,omitempty"`
}

type Parameters struct {
	Type       string     `json:"type"`
	Properties Properties `json:"properties"`
	Required   []string   `json:"required"`
}

type Properties map[string]Property

type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
}

// ObjectParameters is shorthand for an object schema.
func ObjectParameters(props Properties, required ...string) Parameters {
	if props == nil {
		props = Properties{}
	}
	if required == nil {
		required = []string{}
	}
	return Parameters{Type: "object", Properties: props, Required: required}
}

// Handler runs a tool call. args is the raw JSON argument object sent by the
// remote peer. The result is JSON encoded before it is sent back.
type Handler func(ctx context.Context, args json.RawMessage) (any, error)

// Registration pairs a definition with its handler.
type Registration struct {
	Tool    Tool
	Handler Handler
}
