package events

import (
	"encoding/json"
	"fmt"
	"slices"
	"strconv"

	"github.com/codewandler/realtime-go/tool"
)

const (
	TurnDetectionServerVAD   = "server_vad"
	TurnDetectionSemanticVAD = "semantic_vad"
)

// Session is the session object reported by the remote peer.
type Session struct {
	ID        string `json:"id,omitempty"`
	Object    string `json:"object,omitempty"`
	Model     string `json:"model,omitempty"`
	ExpiresAt int64  `json:"expires_at,omitempty"`
	SessionConfig
}

// SessionConfig is the full session configuration sent with session.update.
// A nil TurnDetection is sent as null, which turns detection off.
type SessionConfig struct {
	Modalities              []string                 `json:"modalities,omitempty"`
	Instructions            string                   `json:"instructions"`
	Voice                   string                   `json:"voice,omitempty"`
	InputAudioFormat        AudioFormat              `json:"input_audio_format,omitempty"`
	OutputAudioFormat       AudioFormat              `json:"output_audio_format,omitempty"`
	InputAudioTranscription *InputAudioTranscription `json:"input_audio_transcription"`
	TurnDetection           *TurnDetection           `json:"turn_detection"`
	Tools                   []tool.Tool              `json:"tools"`
	ToolChoice              tool.Choice              `json:"tool_choice,omitempty"`
	Temperature             float64                  `json:"temperature,omitempty"`
	MaxResponseOutputTokens MaxTokens                `json:"max_response_output_tokens,omitempty"`
	Speed                   float64                  `json:"speed,omitempty"`
}

type InputAudioTranscription struct {
	Model string `json:"model"`
}

// TurnDetection holds the VAD configuration.
type TurnDetection struct {
	Type              string  `json:"type,omitempty"`
	Threshold         float64 `json:"threshold,omitempty"`
	PrefixPaddingMs   int     `json:"prefix_padding_ms,omitempty"`
	SilenceDurationMs int     `json:"silence_duration_ms,omitempty"`
	CreateResponse    bool    `json:"create_response,omitempty"`
	InterruptResponse bool    `json:"interrupt_response,omitempty"`
}

// MaxTokens is a token limit; MaxTokensInf is sent as "inf".
type MaxTokens int

const MaxTokensInf MaxTokens = -1

func (m MaxTokens) MarshalJSON() ([]byte, error) {
	if m == MaxTokensInf {
		return []byte(`"inf"`), nil
	}
	return []byte(strconv.Itoa(int(m))), nil
}

func (m *MaxTokens) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		if s != "inf" {
			return fmt.Errorf("invalid max tokens %q", s)
		}
		*m = MaxTokensInf
		return nil
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("invalid max tokens: %w", err)
	}
	*m = MaxTokens(n)
	return nil
}

// Clone returns a copy that shares no slices or pointers with c.
func (c SessionConfig) Clone() SessionConfig {
	out := c
	out.Modalities = slices.Clone(c.Modalities)
	out.Tools = slices.Clone(c.Tools)
	if c.InputAudioTranscription != nil {
		t := *c.InputAudioTranscription
		out.InputAudioTranscription = &t
	}
	if c.TurnDetection != nil {
		td := *c.TurnDetection
		out.TurnDetection = &td
	}
	return out
}

// DefaultSessionConfig returns the configuration a new client starts from.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		Modalities:              []string{"text", "audio"},
		Voice:                   "coral",
		InputAudioFormat:        AudioFormatPCM16,
		OutputAudioFormat:       AudioFormatPCM16,
		InputAudioTranscription: &InputAudioTranscription{Model: "whisper-1"},
		TurnDetection:           ServerVAD(0.5, 300, 200),
		Tools:                   []tool.Tool{},
		ToolChoice:              tool.ChoiceAuto,
		Temperature:             0.7,
		MaxResponseOutputTokens: 4096,
	}
}

// ServerVAD returns a server-driven voice activity detection policy.
func ServerVAD(threshold float64, prefixPaddingMs, silenceDurationMs int) *TurnDetection {
	return &TurnDetection{
		Type:              TurnDetectionServerVAD,
		Threshold:         threshold,
		PrefixPaddingMs:   prefixPaddingMs,
		SilenceDurationMs: silenceDurationMs,
		CreateResponse:    true,
		InterruptResponse: true,
	}
}

// SessionOption mutates a session configuration.
type SessionOption func(*SessionConfig)

func (c *SessionConfig) Apply(opts ...SessionOption) {
	for _, opt := range opts {
		opt(c)
	}
}

func WithModalities(modalities ...string) SessionOption {
	return func(c *SessionConfig) {
		c.Modalities = modalities
	}
}

func WithInstructions(instructions string) SessionOption {
	return func(c *SessionConfig) {
		c.Instructions = instructions
	}
}

func WithVoice(voice string) SessionOption {
	return func(c *SessionConfig) {
		c.Voice = voice
	}
}

func WithAudioFormats(input, output AudioFormat) SessionOption {
	return func(c *SessionConfig) {
		c.InputAudioFormat = input
		c.OutputAudioFormat = output
	}
}

// WithInputAudioTranscription enables transcription of user audio; an
// empty model disables it.
func WithInputAudioTranscription(model string) SessionOption {
	return func(c *SessionConfig) {
		if model == "" {
			c.InputAudioTranscription = nil
			return
		}
		c.InputAudioTranscription = &InputAudioTranscription{Model: model}
	}
}

// WithTurnDetection sets the turn detection policy; nil turns it off.
func WithTurnDetection(td *TurnDetection) SessionOption {
	return func(c *SessionConfig) {
		c.TurnDetection = td
	}
}

func WithTemperature(temperature float64) SessionOption {
	return func(c *SessionConfig) {
		c.Temperature = temperature
	}
}

func WithMaxTokens(maxTokens MaxTokens) SessionOption {
	return func(c *SessionConfig) {
		c.MaxResponseOutputTokens = maxTokens
	}
}

func WithSpeed(speed float64) SessionOption {
	return func(c *SessionConfig) {
		c.Speed = speed
	}
}

func WithToolChoice(choice tool.Choice) SessionOption {
	return func(c *SessionConfig) {
		c.ToolChoice = choice
	}
}
