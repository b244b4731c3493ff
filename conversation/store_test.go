package conversation

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codewandler/realtime-go/audio"
	"github.com/codewandler/realtime-go/events"
)

func created(item events.ConversationItem) *events.ConversationItemCreatedEvent {
	return &events.ConversationItemCreatedEvent{
		BaseEvent: events.BaseEvent{Type: events.TypeConversationItemCreated},
		Item:      item,
	}
}

func textDelta(itemID string, index int, delta string) *events.ResponseTextDeltaEvent {
	return &events.ResponseTextDeltaEvent{
		BaseEvent:    events.BaseEvent{Type: events.TypeResponseTextDelta},
		ItemID:       itemID,
		ContentIndex: index,
		Delta:        delta,
	}
}

func TestStore_ItemCreated(t *testing.T) {
	s := New()

	item, delta, err := s.ProcessEvent(created(events.ConversationItem{
		ID:      "item_1",
		Type:    events.ItemTypeMessage,
		Role:    events.RoleUser,
		Content: []events.ContentPart{{Type: events.ContentTypeInputText, Text: "Hello"}},
	}), nil)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Nil(t, delta)

	assert.Equal(t, "item_1", item.ID)
	assert.Equal(t, events.ItemStatusCompleted, item.Status)
	assert.Equal(t, "Hello", item.Formatted.Text)

	require.NotNil(t, s.Item("item_1"))
	items := s.Items()
	require.Len(t, items, 1)
	assert.Equal(t, "item_1", items[0].ID)
}

func TestStore_ItemCreatedStatus(t *testing.T) {
	s := New()

	call, _, err := s.ProcessEvent(created(events.ConversationItem{
		ID:        "call_item",
		Type:      events.ItemTypeFunctionCall,
		CallID:    "call_1",
		Name:      "get_weather",
		Arguments: `{"city":`,
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, events.ItemStatusInProgress, call.Status)
	require.NotNil(t, call.Formatted.Tool)
	assert.Equal(t, "get_weather", call.Formatted.Tool.Name)
	assert.Equal(t, "call_1", call.Formatted.Tool.CallID)

	assistant, _, err := s.ProcessEvent(created(events.ConversationItem{
		ID:   "msg_1",
		Type: events.ItemTypeMessage,
		Role: events.RoleAssistant,
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, events.ItemStatusInProgress, assistant.Status)

	out, _, err := s.ProcessEvent(created(events.ConversationItem{
		ID:     "out_1",
		Type:   events.ItemTypeFunctionCallOutput,
		CallID: "call_1",
		Output: `{"temp":21}`,
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, events.ItemStatusCompleted, out.Status)
	assert.Equal(t, `{"temp":21}`, out.Formatted.Output)
	assert.Equal(t, `{"temp":21}`, s.Item("call_item").Formatted.Tool.Output)
}

func TestStore_ItemCreatedTwice(t *testing.T) {
	s := New()
	ev := created(events.ConversationItem{ID: "item_1", Type: events.ItemTypeMessage, Role: events.RoleUser})

	_, _, err := s.ProcessEvent(ev, nil)
	require.NoError(t, err)
	item, _, err := s.ProcessEvent(ev, nil)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Len(t, s.Items(), 1)
}

func TestStore_ItemDeleted(t *testing.T) {
	s := New()
	_, _, err := s.ProcessEvent(created(events.ConversationItem{ID: "item_1", Type: events.ItemTypeMessage, Role: events.RoleUser}), nil)
	require.NoError(t, err)

	del := &events.ConversationItemDeletedEvent{
		BaseEvent: events.BaseEvent{Type: events.TypeConversationItemDeleted},
		ItemID:    "item_1",
	}
	item, delta, err := s.ProcessEvent(del, nil)
	require.NoError(t, err)
	require.NotNil(t, item)
	assert.Nil(t, delta)
	assert.Equal(t, "item_1", item.ID)
	assert.Nil(t, s.Item("item_1"))
	assert.Empty(t, s.Items())

	item, delta, err = s.ProcessEvent(del, nil)
	require.NoError(t, err)
	assert.Nil(t, item)
	assert.Nil(t, delta)
}

func TestStore_ItemDeletedDropsQueued(t *testing.T) {
	s := New()
	_, _, err := s.ProcessEvent(&events.SpeechStartedEvent{ItemID: "item_1", AudioStartMs: 10}, nil)
	require.NoError(t, err)
	_, _, err = s.ProcessEvent(&events.InputAudioTranscriptionCompletedEvent{ItemID: "item_1", Transcript: "hi"}, nil)
	require.NoError(t, err)

	_, _, err = s.ProcessEvent(&events.ConversationItemDeletedEvent{ItemID: "item_1"}, nil)
	require.NoError(t, err)

	_, ok := s.QueuedSpeech("item_1")
	assert.False(t, ok)
	_, ok = s.QueuedTranscript("item_1")
	assert.False(t, ok)
}

func TestStore_TextDeltas(t *testing.T) {
	s := New()
	_, _, err := s.ProcessEvent(created(events.ConversationItem{ID: "msg_1", Type: events.ItemTypeMessage, Role: events.RoleAssistant}), nil)
	require.NoError(t, err)

	parts := []string{"Hel", "lo", ", ", "world"}
	for _, d := range parts {
		item, delta, err := s.ProcessEvent(textDelta("msg_1", 0, d), nil)
		require.NoError(t, err)
		require.NotNil(t, item)
		assert.Equal(t, &Delta{Text: d}, delta)
	}

	item := s.Item("msg_1")
	assert.Equal(t, "Hello, world", item.Formatted.Text)
	require.Len(t, item.Content, 1)
	assert.Equal(t, "Hello, world", item.Content[0].Text)
}

func TestStore_TranscriptDeltaGrowsContent(t *testing.T) {
	s := New()
	_, _, err := s.ProcessEvent(created(events.ConversationItem{ID: "msg_1", Type: events.ItemTypeMessage, Role: events.RoleAssistant}), nil)
	require.NoError(t, err)

	item, delta, err := s.ProcessEvent(&events.ResponseAudioTranscriptDeltaEvent{
		BaseEvent:    events.BaseEvent{Type: events.TypeResponseAudioTranscriptDelta},
		ItemID:       "msg_1",
		ContentIndex: 1,
		Delta:        "Hello",
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, &Delta{Transcript: "Hello"}, delta)
	require.Len(t, item.Content, 2)
	assert.Equal(t, "Hello", item.Content[1].Transcript)
	assert.Equal(t, "Hello", item.Formatted.Transcript)
}

func TestStore_ContentIndexOutOfRange(t *testing.T) {
	s := New()
	_, _, err := s.ProcessEvent(created(events.ConversationItem{ID: "msg_1", Type: events.ItemTypeMessage, Role: events.RoleAssistant}), nil)
	require.NoError(t, err)

	for _, index := range []int{-1, MaxContentIndex, 1 << 20} {
		item, delta, err := s.ProcessEvent(textDelta("msg_1", index, "x"), nil)
		var desync *DesyncError
		require.ErrorAs(t, err, &desync)
		assert.Equal(t, "msg_1", desync.ItemID)
		assert.Equal(t, events.TypeResponseTextDelta, desync.Event)
		assert.Nil(t, item)
		assert.Nil(t, delta)
	}
	assert.Empty(t, s.Item("msg_1").Content)
}

func TestStore_UnknownTargetsTolerated(t *testing.T) {
	s := New()

	for _, ev := range []events.ServerEvent{
		textDelta("missing", 0, "x"),
		&events.ResponseFunctionCallArgumentsDeltaEvent{ItemID: "missing", Delta: "{"},
		&events.ResponseOutputItemAddedEvent{ResponseID: "missing", Item: events.ConversationItem{ID: "x"}},
		&events.ResponseDoneEvent{Response: events.Response{ID: "missing"}},
		&events.ConversationItemTruncatedEvent{ItemID: "missing"},
		&events.UnknownEvent{BaseEvent: events.BaseEvent{Type: "some.future.event"}},
		&events.RateLimitsUpdatedEvent{},
	} {
		item, delta, err := s.ProcessEvent(ev, nil)
		require.NoError(t, err, ev.EventType())
		assert.Nil(t, item)
		assert.Nil(t, delta)
	}
}

func TestStore_OutputItemDoneWithoutItem(t *testing.T) {
	s := New()
	_, _, err := s.ProcessEvent(&events.ResponseOutputItemDoneEvent{
		BaseEvent: events.BaseEvent{Type: events.TypeResponseOutputItemDone},
	}, nil)
	var desync *DesyncError
	require.ErrorAs(t, err, &desync)
}

func TestStore_FunctionCallArguments(t *testing.T) {
	s := New()
	_, _, err := s.ProcessEvent(created(events.ConversationItem{ID: "fc_1", Type: events.ItemTypeFunctionCall, CallID: "call_1", Name: "lookup"}), nil)
	require.NoError(t, err)

	for _, d := range []string{`{"q":`, `"go"}`} {
		_, delta, err := s.ProcessEvent(&events.ResponseFunctionCallArgumentsDeltaEvent{ItemID: "fc_1", Delta: d}, nil)
		require.NoError(t, err)
		assert.Equal(t, &Delta{Arguments: d}, delta)
	}

	item, _, err := s.ProcessEvent(&events.ResponseOutputItemDoneEvent{
		Item: &events.ConversationItem{ID: "fc_1", Status: events.ItemStatusCompleted},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, events.ItemStatusCompleted, item.Status)
	assert.Equal(t, `{"q":"go"}`, item.Arguments)
	assert.Equal(t, `{"q":"go"}`, item.Formatted.Tool.Arguments)
}

func TestStore_AudioDelta(t *testing.T) {
	s := New()
	_, _, err := s.ProcessEvent(created(events.ConversationItem{ID: "msg_1", Type: events.ItemTypeMessage, Role: events.RoleAssistant}), nil)
	require.NoError(t, err)

	for _, chunk := range [][]int16{{1, 2}, {3, -4}} {
		_, delta, err := s.ProcessEvent(&events.ResponseAudioDeltaEvent{ItemID: "msg_1", Delta: audio.EncodePCM16(chunk)}, nil)
		require.NoError(t, err)
		assert.Equal(t, chunk, delta.Audio)
	}
	assert.Equal(t, []int16{1, 2, 3, -4}, s.Item("msg_1").Formatted.Audio)

	_, _, err = s.ProcessEvent(&events.ResponseAudioDeltaEvent{ItemID: "msg_1", Delta: "!!not base64"}, nil)
	require.Error(t, err)
}

func TestStore_Truncated(t *testing.T) {
	s := New(WithSampleRate(1000))
	_, _, err := s.ProcessEvent(created(events.ConversationItem{ID: "msg_1", Type: events.ItemTypeMessage, Role: events.RoleAssistant}), nil)
	require.NoError(t, err)
	_, _, err = s.ProcessEvent(&events.ResponseAudioDeltaEvent{ItemID: "msg_1", Delta: audio.EncodePCM16(make([]int16, 10))}, nil)
	require.NoError(t, err)
	_, _, err = s.ProcessEvent(&events.ResponseAudioTranscriptDeltaEvent{ItemID: "msg_1", Delta: "spoken"}, nil)
	require.NoError(t, err)

	item, _, err := s.ProcessEvent(&events.ConversationItemTruncatedEvent{ItemID: "msg_1", AudioEndMs: 4}, nil)
	require.NoError(t, err)
	assert.Len(t, item.Formatted.Audio, 4)
	assert.Empty(t, item.Formatted.Transcript)
}

func TestStore_SpeechStartedStopped(t *testing.T) {
	s := New()

	_, _, err := s.ProcessEvent(&events.SpeechStartedEvent{ItemID: "i1", AudioStartMs: 1000}, nil)
	require.NoError(t, err)
	_, _, err = s.ProcessEvent(&events.SpeechStartedEvent{ItemID: "i1", AudioStartMs: 1500}, nil)
	require.NoError(t, err)

	seg, ok := s.QueuedSpeech("i1")
	require.True(t, ok)
	assert.Equal(t, 1000, seg.AudioStartMs)

	input := []int16{1, 2, 3, 4, 5, 6, 7, 8}
	item, delta, err := s.ProcessEvent(&events.SpeechStoppedEvent{ItemID: "i1", AudioEndMs: 2000}, input)
	require.NoError(t, err)
	assert.Nil(t, item)
	assert.Nil(t, delta)

	seg, ok = s.QueuedSpeech("i1")
	require.True(t, ok)
	assert.Equal(t, 2000, seg.AudioEndMs)
	assert.True(t, seg.Stopped)
	assert.NotNil(t, seg.Audio)
}

func TestStore_SpeechStoppedSlicesInput(t *testing.T) {
	s := New(WithSampleRate(4))

	_, _, err := s.ProcessEvent(&events.SpeechStartedEvent{ItemID: "i1", AudioStartMs: 1000}, nil)
	require.NoError(t, err)
	input := []int16{1, 2, 3, 4, 5, 6, 7, 8}
	_, _, err = s.ProcessEvent(&events.SpeechStoppedEvent{ItemID: "i1", AudioEndMs: 2000}, input)
	require.NoError(t, err)

	seg, ok := s.QueuedSpeech("i1")
	require.True(t, ok)
	assert.Equal(t, 2000, seg.AudioEndMs)
	assert.Equal(t, []int16{5, 6, 7, 8}, seg.Audio)

	item, _, err := s.ProcessEvent(created(events.ConversationItem{
		ID:      "i1",
		Type:    events.ItemTypeMessage,
		Role:    events.RoleUser,
		Content: []events.ContentPart{{Type: events.ContentTypeInputAudio}},
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, []int16{5, 6, 7, 8}, item.Formatted.Audio)

	_, ok = s.QueuedSpeech("i1")
	assert.False(t, ok)
}

func TestStore_QueuedTranscript(t *testing.T) {
	s := New()

	item, delta, err := s.ProcessEvent(&events.InputAudioTranscriptionCompletedEvent{
		BaseEvent:  events.BaseEvent{Type: events.TypeInputAudioTranscriptionCompleted},
		ItemID:     "i1",
		Transcript: "Hello there",
	}, nil)
	require.NoError(t, err)
	assert.Nil(t, item)
	assert.Nil(t, delta)

	queued, ok := s.QueuedTranscript("i1")
	require.True(t, ok)
	assert.Equal(t, "Hello there", queued)

	item, _, err = s.ProcessEvent(created(events.ConversationItem{
		ID:      "i1",
		Type:    events.ItemTypeMessage,
		Role:    events.RoleUser,
		Content: []events.ContentPart{{Type: events.ContentTypeInputAudio}},
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", item.Formatted.Transcript)
	assert.Equal(t, "Hello there", item.Content[0].Transcript)

	_, ok = s.QueuedTranscript("i1")
	assert.False(t, ok)
}

func TestStore_QueuedTranscriptOutOfRange(t *testing.T) {
	s := New(WithSampleRate(4))

	_, _, err := s.ProcessEvent(&events.SpeechStartedEvent{ItemID: "i1", AudioStartMs: 0}, nil)
	require.NoError(t, err)
	_, _, err = s.ProcessEvent(&events.SpeechStoppedEvent{ItemID: "i1", AudioEndMs: 1000}, []int16{1, 2, 3, 4})
	require.NoError(t, err)

	_, _, err = s.ProcessEvent(&events.InputAudioTranscriptionCompletedEvent{
		BaseEvent:    events.BaseEvent{Type: events.TypeInputAudioTranscriptionCompleted},
		ItemID:       "i1",
		ContentIndex: 500,
		Transcript:   "lost",
	}, nil)
	var desync *DesyncError
	require.ErrorAs(t, err, &desync)
	assert.Equal(t, "i1", desync.ItemID)
	_, ok := s.QueuedTranscript("i1")
	assert.False(t, ok)

	item, _, err := s.ProcessEvent(created(events.ConversationItem{
		ID:   "i1",
		Type: events.ItemTypeMessage,
		Role: events.RoleUser,
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, []int16{1, 2, 3, 4}, item.Formatted.Audio)
	require.NotNil(t, s.Item("i1"))
	assert.Len(t, s.Items(), 1)
}

func TestStore_TranscriptionForExistingItem(t *testing.T) {
	s := New()
	_, _, err := s.ProcessEvent(created(events.ConversationItem{
		ID:      "i1",
		Type:    events.ItemTypeMessage,
		Role:    events.RoleUser,
		Content: []events.ContentPart{{Type: events.ContentTypeInputAudio, Transcript: "Hello"}},
	}), nil)
	require.NoError(t, err)

	item, delta, err := s.ProcessEvent(&events.InputAudioTranscriptionCompletedEvent{ItemID: "i1", Transcript: " there"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "Hello there", item.Content[0].Transcript)
	assert.Equal(t, "Hello there", item.Formatted.Transcript)
	assert.Equal(t, &Delta{Transcript: " there"}, delta)
}

func TestStore_QueuedInputAudio(t *testing.T) {
	s := New()
	s.QueueInputAudio([]int16{9, 9, 9})

	item, _, err := s.ProcessEvent(created(events.ConversationItem{
		ID:   "u1",
		Type: events.ItemTypeMessage,
		Role: events.RoleUser,
	}), nil)
	require.NoError(t, err)
	assert.Equal(t, []int16{9, 9, 9}, item.Formatted.Audio)

	// consumed by the first user message
	item, _, err = s.ProcessEvent(created(events.ConversationItem{ID: "u2", Type: events.ItemTypeMessage, Role: events.RoleUser}), nil)
	require.NoError(t, err)
	assert.Empty(t, item.Formatted.Audio)
}

func TestStore_Responses(t *testing.T) {
	s := New()
	_, _, err := s.ProcessEvent(&events.ResponseCreatedEvent{Response: events.Response{ID: "resp_1", Status: "in_progress"}}, nil)
	require.NoError(t, err)
	_, _, err = s.ProcessEvent(&events.ResponseOutputItemAddedEvent{ResponseID: "resp_1", Item: events.ConversationItem{ID: "msg_1"}}, nil)
	require.NoError(t, err)
	_, _, err = s.ProcessEvent(&events.ResponseDoneEvent{Response: events.Response{
		ID:     "resp_1",
		Status: "completed",
		Output: []events.ConversationItem{{ID: "msg_1"}},
		Usage:  &events.Usage{TotalTokens: 12},
	}}, nil)
	require.NoError(t, err)

	r := s.Response("resp_1")
	require.NotNil(t, r)
	assert.Equal(t, "completed", r.Status)
	assert.Equal(t, []string{"msg_1"}, r.Output)
	assert.Equal(t, 12, r.Usage.TotalTokens)
	assert.Len(t, s.Responses(), 1)
	assert.Nil(t, s.Response("nope"))
}

func TestStore_DefensiveCopies(t *testing.T) {
	s := New()
	_, _, err := s.ProcessEvent(created(events.ConversationItem{
		ID:      "msg_1",
		Type:    events.ItemTypeMessage,
		Role:    events.RoleAssistant,
		Content: []events.ContentPart{{Type: events.ContentTypeText, Text: "a"}},
	}), nil)
	require.NoError(t, err)
	_, _, err = s.ProcessEvent(&events.ResponseAudioDeltaEvent{ItemID: "msg_1", Delta: audio.EncodePCM16([]int16{1, 2})}, nil)
	require.NoError(t, err)

	items := s.Items()
	items[0].Formatted.Text = "mutated"
	items[0].Content[0].Text = "mutated"
	items[0].Formatted.Audio[0] = 99

	got := s.Item("msg_1")
	assert.Equal(t, "a", got.Formatted.Text)
	assert.Equal(t, "a", got.Content[0].Text)
	assert.Equal(t, []int16{1, 2}, got.Formatted.Audio)
	assert.Len(t, s.Items(), 1)
}

func TestStore_Clear(t *testing.T) {
	s := New()
	_, _, err := s.ProcessEvent(created(events.ConversationItem{ID: "i1", Type: events.ItemTypeMessage, Role: events.RoleUser}), nil)
	require.NoError(t, err)
	_, _, err = s.ProcessEvent(&events.SpeechStartedEvent{ItemID: "i2"}, nil)
	require.NoError(t, err)
	_, _, err = s.ProcessEvent(&events.InputAudioTranscriptionCompletedEvent{ItemID: "i3", Transcript: "x"}, nil)
	require.NoError(t, err)
	_, _, err = s.ProcessEvent(&events.ResponseCreatedEvent{Response: events.Response{ID: "r1"}}, nil)
	require.NoError(t, err)
	s.QueueInputAudio([]int16{1})

	s.Clear()

	assert.Empty(t, s.Items())
	assert.Empty(t, s.Responses())
	_, ok := s.QueuedSpeech("i2")
	assert.False(t, ok)
	_, ok = s.QueuedTranscript("i3")
	assert.False(t, ok)

	item, _, err := s.ProcessEvent(created(events.ConversationItem{ID: "u1", Type: events.ItemTypeMessage, Role: events.RoleUser}), nil)
	require.NoError(t, err)
	assert.Empty(t, item.Formatted.Audio)
}
