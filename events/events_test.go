package events

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseServerEvent(t *testing.T) {
	evt, err := ParseServerEvent([]byte(`{"type":"response.text.delta","event_id":"e1","item_id":"item_1","content_index":2,"delta":" World"}`))
	require.NoError(t, err)

	delta, ok := evt.(*ResponseTextDeltaEvent)
	require.True(t, ok)
	assert.Equal(t, "e1", delta.EventID)
	assert.Equal(t, "item_1", delta.ItemID)
	assert.Equal(t, 2, delta.ContentIndex)
	assert.Equal(t, " World", delta.Delta)
	assert.Equal(t, TypeResponseTextDelta, delta.EventType())
}

func TestParseServerEvent_ItemCreated(t *testing.T) {
	evt, err := ParseServerEvent([]byte(`{
		"type":"conversation.item.created",
		"item":{"id":"item_1","type":"message","role":"user","content":[{"type":"input_text","text":"Hello"}]}
	}`))
	require.NoError(t, err)

	created := evt.(*ConversationItemCreatedEvent)
	assert.Equal(t, ItemTypeMessage, created.Item.Type)
	assert.Equal(t, RoleUser, created.Item.Role)
	require.Len(t, created.Item.Content, 1)
	assert.Equal(t, ContentTypeInputText, created.Item.Content[0].Type)
}

func TestParseServerEvent_OutputItemDoneWithoutItem(t *testing.T) {
	evt, err := ParseServerEvent([]byte(`{"type":"response.output_item.done","response_id":"r1"}`))
	require.NoError(t, err)
	assert.Nil(t, evt.(*ResponseOutputItemDoneEvent).Item)
}

func TestParseServerEvent_Error(t *testing.T) {
	evt, err := ParseServerEvent([]byte(`{"type":"error","error":{"code":"invalid_value","message":"bad voice"}}`))
	require.NoError(t, err)

	var e error = evt.(*ErrorEvent)
	assert.Equal(t, "invalid_value: bad voice", e.Error())
}

func TestParseServerEvent_Unknown(t *testing.T) {
	data := []byte(`{"type":"output_audio_buffer.started","response_id":"r1"}`)
	evt, err := ParseServerEvent(data)
	require.NoError(t, err)

	unknown, ok := evt.(*UnknownEvent)
	require.True(t, ok)
	assert.Equal(t, "output_audio_buffer.started", unknown.EventType())
	assert.JSONEq(t, string(data), string(unknown.Raw))
}

func TestParseServerEvent_Malformed(t *testing.T) {
	_, err := ParseServerEvent([]byte(`{"type":`))
	require.Error(t, err)

	_, err = ParseServerEvent([]byte(`{"event_id":"x"}`))
	require.Error(t, err)

	_, err = ParseServerEvent([]byte(`{"type":"response.text.delta","content_index":"zero"}`))
	require.Error(t, err)
}

func TestParseServerEvent_SessionMaxTokens(t *testing.T) {
	evt, err := ParseServerEvent([]byte(`{"type":"session.created","session":{"id":"sess_1","model":"m","voice":"alloy","max_response_output_tokens":"inf"}}`))
	require.NoError(t, err)

	s := evt.(*SessionCreatedEvent).Session
	assert.Equal(t, "sess_1", s.ID)
	assert.Equal(t, "alloy", s.Voice)
	assert.Equal(t, MaxTokensInf, s.MaxResponseOutputTokens)
}

func TestMaxTokens(t *testing.T) {
	data, err := json.Marshal(MaxTokensInf)
	require.NoError(t, err)
	assert.Equal(t, `"inf"`, string(data))

	data, err = json.Marshal(MaxTokens(2048))
	require.NoError(t, err)
	assert.Equal(t, `2048`, string(data))

	var m MaxTokens
	require.NoError(t, json.Unmarshal([]byte(`4096`), &m))
	assert.Equal(t, MaxTokens(4096), m)
	require.Error(t, json.Unmarshal([]byte(`"lots"`), &m))
}

func TestSessionConfig_TurnDetectionOff(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.Apply(WithTurnDetection(nil), WithInstructions("be brief"))

	data, err := json.Marshal(SessionUpdateEvent{BaseEvent: NewBaseEvent(TypeSessionUpdate), Session: cfg})
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	session := decoded["session"].(map[string]any)
	assert.Contains(t, session, "turn_detection")
	assert.Nil(t, session["turn_detection"])
	assert.Equal(t, "be brief", session["instructions"])
	assert.Equal(t, []any{}, session["tools"])
	assert.Equal(t, float64(4096), session["max_response_output_tokens"])
}

func TestSessionConfig_Clone(t *testing.T) {
	cfg := DefaultSessionConfig()
	clone := cfg.Clone()
	clone.Modalities[0] = "changed"
	clone.TurnDetection.Threshold = 0.9
	clone.InputAudioTranscription.Model = "other"

	assert.Equal(t, "text", cfg.Modalities[0])
	assert.Equal(t, 0.5, cfg.TurnDetection.Threshold)
	assert.Equal(t, "whisper-1", cfg.InputAudioTranscription.Model)
}

func TestSessionOptions(t *testing.T) {
	cfg := DefaultSessionConfig()
	cfg.Apply(
		WithVoice("alloy"),
		WithModalities("text"),
		WithTemperature(0.9),
		WithMaxTokens(100),
		WithInputAudioTranscription(""),
		WithAudioFormats("g711_ulaw", "g711_ulaw"),
		WithSpeed(1.2),
		WithToolChoice("none"),
	)
	assert.Equal(t, "alloy", cfg.Voice)
	assert.Equal(t, []string{"text"}, cfg.Modalities)
	assert.Equal(t, 0.9, cfg.Temperature)
	assert.Equal(t, MaxTokens(100), cfg.MaxResponseOutputTokens)
	assert.Nil(t, cfg.InputAudioTranscription)
	assert.Equal(t, AudioFormat("g711_ulaw"), cfg.InputAudioFormat)
	assert.Equal(t, 1.2, cfg.Speed)
	assert.EqualValues(t, "none", cfg.ToolChoice)
}

func TestNewBaseEvent(t *testing.T) {
	a := NewBaseEvent(TypeResponseCreate)
	b := NewBaseEvent(TypeResponseCreate)
	assert.True(t, strings.HasPrefix(a.EventID, "evt_"))
	assert.NotEqual(t, a.EventID, b.EventID)
	assert.Equal(t, TypeResponseCreate, a.EventType())
}
