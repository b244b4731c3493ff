// Package conversation reconstructs the conversation log from the ordered
// stream of realtime server events.
package conversation

import (
	"fmt"
	"slices"
	"sync"

	"github.com/codewandler/realtime-go/audio"
	"github.com/codewandler/realtime-go/events"
)

// MaxContentIndex bounds the content index a delta may address. Anything at
// or above it is treated as a desynchronized stream.
const MaxContentIndex = 128

type transcriptFragment struct {
	contentIndex int
	transcript   string
}

type Store struct {
	mu         sync.Mutex
	sampleRate int

	items          []*Item
	itemLookup     map[string]*Item
	responses      []*Response
	responseLookup map[string]*Response

	queuedSpeech      map[string]*SpeechSegment
	queuedTranscripts map[string][]transcriptFragment
	queuedInputAudio  []int16
}

type Option func(*Store)

// WithSampleRate sets the rate used to turn millisecond offsets into sample
// indices. Defaults to audio.SampleRate.
func WithSampleRate(rate int) Option {
	return func(s *Store) {
		if rate > 0 {
			s.sampleRate = rate
		}
	}
}

func New(opts ...Option) *Store {
	s := &Store{sampleRate: audio.SampleRate}
	for _, opt := range opts {
		opt(s)
	}
	s.reset()
	return s
}

func (s *Store) reset() {
	s.items = nil
	s.itemLookup = make(map[string]*Item)
	s.responses = nil
	s.responseLookup = make(map[string]*Response)
	s.queuedSpeech = make(map[string]*SpeechSegment)
	s.queuedTranscripts = make(map[string][]transcriptFragment)
	s.queuedInputAudio = nil
}

// Clear drops every item, response and queued fragment.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reset()
}

// QueueInputAudio stages the input audio that the next created user message
// takes as its audio.
func (s *Store) QueueInputAudio(samples []int16) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queuedInputAudio = slices.Clone(samples)
	if s.queuedInputAudio == nil {
		s.queuedInputAudio = []int16{}
	}
}

func (s *Store) Item(id string) *Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	if it, ok := s.itemLookup[id]; ok {
		return it.clone()
	}
	return nil
}

func (s *Store) Items() []*Item {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Item, len(s.items))
	for i, it := range s.items {
		out[i] = it.clone()
	}
	return out
}

func (s *Store) Response(id string) *Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.responseLookup[id]; ok {
		return r.clone()
	}
	return nil
}

func (s *Store) Responses() []*Response {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Response, len(s.responses))
	for i, r := range s.responses {
		out[i] = r.clone()
	}
	return out
}

func (s *Store) QueuedSpeech(itemID string) (SpeechSegment, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	seg, ok := s.queuedSpeech[itemID]
	if !ok {
		return SpeechSegment{}, false
	}
	out := *seg
	out.Audio = slices.Clone(seg.Audio)
	return out, true
}

func (s *Store) QueuedTranscript(itemID string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	frags, ok := s.queuedTranscripts[itemID]
	if !ok {
		return "", false
	}
	var out string
	for _, f := range frags {
		out += f.transcript
	}
	return out, true
}

// ProcessEvent applies one server event. It returns a copy of the affected
// item and the fragment the event added, or nils when the event does not
// touch an item. Unknown item or response ids are ignored. inputAudio is the
// rolling input buffer and is only read for speech_stopped.
func (s *Store) ProcessEvent(evt events.ServerEvent, inputAudio []int16) (*Item, *Delta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		item  *Item
		delta *Delta
		err   error
	)

	switch e := evt.(type) {
	case *events.ConversationItemCreatedEvent:
		item, err = s.itemCreated(e)
	case *events.ConversationItemDeletedEvent:
		item = s.itemDeleted(e)
	case *events.ConversationItemTruncatedEvent:
		item = s.itemTruncated(e)
	case *events.InputAudioTranscriptionCompletedEvent:
		item, delta, err = s.transcriptionCompleted(e)
	case *events.SpeechStartedEvent:
		s.speechStarted(e)
	case *events.SpeechStoppedEvent:
		s.speechStopped(e, inputAudio)
	case *events.ResponseCreatedEvent:
		s.responseCreated(e)
	case *events.ResponseDoneEvent:
		s.responseDone(e)
	case *events.ResponseOutputItemAddedEvent:
		s.outputItemAdded(e)
	case *events.ResponseOutputItemDoneEvent:
		item, err = s.outputItemDone(e)
	case *events.ResponseContentPartAddedEvent:
		item, err = s.contentPartAdded(e)
	case *events.ResponseTextDeltaEvent:
		item, delta, err = s.appendText(e.EventType(), e.ItemID, e.ContentIndex, e.Delta)
	case *events.ResponseAudioTranscriptDeltaEvent:
		item, delta, err = s.appendTranscript(e.EventType(), e.ItemID, e.ContentIndex, e.Delta)
	case *events.ResponseAudioDeltaEvent:
		item, delta, err = s.appendAudio(e)
	case *events.ResponseFunctionCallArgumentsDeltaEvent:
		item, delta = s.appendArguments(e)
	}

	if err != nil || item == nil {
		return nil, nil, err
	}
	return item.clone(), delta, nil
}

func (s *Store) itemCreated(e *events.ConversationItemCreatedEvent) (*Item, error) {
	src := e.Item
	if existing, ok := s.itemLookup[src.ID]; ok {
		return existing, nil
	}

	it := &Item{
		ID:        src.ID,
		Type:      src.Type,
		Role:      src.Role,
		Content:   slices.Clone(src.Content),
		CallID:    src.CallID,
		Name:      src.Name,
		Arguments: src.Arguments,
		Output:    src.Output,
	}

	for _, c := range it.Content {
		switch c.Type {
		case events.ContentTypeText, events.ContentTypeInputText:
			it.Formatted.Text += c.Text
		}
		it.Formatted.Transcript += c.Transcript
	}

	for _, f := range s.queuedTranscripts[it.ID] {
		part, err := ensurePart(it, f.contentIndex, e.EventType())
		if err != nil {
			return nil, err
		}
		part.Transcript += f.transcript
		it.Formatted.Transcript += f.transcript
	}

	// nothing below fails, queued state is consumed from here on
	delete(s.queuedTranscripts, it.ID)
	if seg, ok := s.queuedSpeech[it.ID]; ok {
		if seg.Audio != nil {
			it.Formatted.Audio = seg.Audio
		}
		delete(s.queuedSpeech, it.ID)
	}

	switch it.Type {
	case events.ItemTypeFunctionCall:
		it.Status = events.ItemStatusInProgress
		it.Formatted.Tool = &ToolCall{
			Type:      "function",
			Name:      it.Name,
			CallID:    it.CallID,
			Arguments: it.Arguments,
		}
	case events.ItemTypeFunctionCallOutput:
		it.Status = events.ItemStatusCompleted
		it.Formatted.Output = it.Output
		for _, call := range s.items {
			if call.Type == events.ItemTypeFunctionCall && call.CallID == it.CallID && call.Formatted.Tool != nil {
				call.Formatted.Tool.Output = it.Output
			}
		}
	default:
		// an assistant message without content is still being streamed
		if it.Role == events.RoleAssistant && len(it.Content) == 0 {
			it.Status = events.ItemStatusInProgress
		} else {
			it.Status = events.ItemStatusCompleted
		}
		if it.Role == events.RoleUser && s.queuedInputAudio != nil {
			it.Formatted.Audio = s.queuedInputAudio
			s.queuedInputAudio = nil
		}
	}

	s.items = append(s.items, it)
	s.itemLookup[it.ID] = it
	return it, nil
}

func (s *Store) itemDeleted(e *events.ConversationItemDeletedEvent) *Item {
	delete(s.queuedSpeech, e.ItemID)
	delete(s.queuedTranscripts, e.ItemID)

	it, ok := s.itemLookup[e.ItemID]
	if !ok {
		return nil
	}
	delete(s.itemLookup, e.ItemID)
	s.items = slices.DeleteFunc(s.items, func(x *Item) bool { return x.ID == e.ItemID })
	return it
}

func (s *Store) itemTruncated(e *events.ConversationItemTruncatedEvent) *Item {
	it, ok := s.itemLookup[e.ItemID]
	if !ok {
		return nil
	}
	end := audio.MsToIndex(e.AudioEndMs, s.sampleRate)
	if end < len(it.Formatted.Audio) {
		it.Formatted.Audio = slices.Clone(it.Formatted.Audio[:end])
	}
	it.Formatted.Transcript = ""
	return it
}

func (s *Store) transcriptionCompleted(e *events.InputAudioTranscriptionCompletedEvent) (*Item, *Delta, error) {
	if _, ok := s.itemLookup[e.ItemID]; !ok {
		if e.ContentIndex < 0 || e.ContentIndex >= MaxContentIndex {
			return nil, nil, &DesyncError{
				Event:  e.EventType(),
				ItemID: e.ItemID,
				Reason: fmt.Sprintf("content index %d out of range", e.ContentIndex),
			}
		}
		s.queuedTranscripts[e.ItemID] = append(s.queuedTranscripts[e.ItemID], transcriptFragment{
			contentIndex: e.ContentIndex,
			transcript:   e.Transcript,
		})
		return nil, nil, nil
	}
	return s.appendTranscript(e.EventType(), e.ItemID, e.ContentIndex, e.Transcript)
}

func (s *Store) speechStarted(e *events.SpeechStartedEvent) {
	if _, ok := s.queuedSpeech[e.ItemID]; ok {
		return
	}
	s.queuedSpeech[e.ItemID] = &SpeechSegment{AudioStartMs: e.AudioStartMs}
}

func (s *Store) speechStopped(e *events.SpeechStoppedEvent, inputAudio []int16) {
	seg, ok := s.queuedSpeech[e.ItemID]
	if !ok {
		seg = &SpeechSegment{AudioStartMs: e.AudioEndMs}
		s.queuedSpeech[e.ItemID] = seg
	}
	seg.AudioEndMs = e.AudioEndMs
	seg.Stopped = true
	if inputAudio != nil {
		seg.Audio = audio.Slice(inputAudio, seg.AudioStartMs, seg.AudioEndMs, s.sampleRate)
	}
}

func (s *Store) responseCreated(e *events.ResponseCreatedEvent) {
	if _, ok := s.responseLookup[e.Response.ID]; ok {
		return
	}
	r := &Response{
		ID:       e.Response.ID,
		Status:   e.Response.Status,
		Output:   []string{},
		Metadata: e.Response.Metadata,
	}
	for _, out := range e.Response.Output {
		r.Output = append(r.Output, out.ID)
	}
	s.responses = append(s.responses, r)
	s.responseLookup[r.ID] = r
}

func (s *Store) responseDone(e *events.ResponseDoneEvent) {
	r, ok := s.responseLookup[e.Response.ID]
	if !ok {
		return
	}
	r.Status = e.Response.Status
	r.Usage = e.Response.Usage
	for _, out := range e.Response.Output {
		if !slices.Contains(r.Output, out.ID) {
			r.Output = append(r.Output, out.ID)
		}
	}
}

func (s *Store) outputItemAdded(e *events.ResponseOutputItemAddedEvent) {
	r, ok := s.responseLookup[e.ResponseID]
	if !ok {
		return
	}
	if !slices.Contains(r.Output, e.Item.ID) {
		r.Output = append(r.Output, e.Item.ID)
	}
}

func (s *Store) outputItemDone(e *events.ResponseOutputItemDoneEvent) (*Item, error) {
	if e.Item == nil {
		return nil, &DesyncError{Event: e.EventType(), Reason: "missing item"}
	}
	it, ok := s.itemLookup[e.Item.ID]
	if !ok {
		return nil, nil
	}
	if e.Item.Status != "" {
		it.Status = e.Item.Status
	}
	return it, nil
}

func (s *Store) contentPartAdded(e *events.ResponseContentPartAddedEvent) (*Item, error) {
	it, ok := s.itemLookup[e.ItemID]
	if !ok {
		return nil, nil
	}
	part, err := ensurePart(it, e.ContentIndex, e.EventType())
	if err != nil {
		return nil, err
	}
	if part.Type == "" {
		part.Type = e.Part.Type
	}
	if part.Audio == "" {
		part.Audio = e.Part.Audio
	}
	part.Text += e.Part.Text
	part.Transcript += e.Part.Transcript
	it.Formatted.Text += e.Part.Text
	it.Formatted.Transcript += e.Part.Transcript
	return it, nil
}

func (s *Store) appendText(event, itemID string, index int, delta string) (*Item, *Delta, error) {
	it, ok := s.itemLookup[itemID]
	if !ok {
		return nil, nil, nil
	}
	part, err := ensurePart(it, index, event)
	if err != nil {
		return nil, nil, err
	}
	part.Text += delta
	it.Formatted.Text += delta
	return it, &Delta{Text: delta}, nil
}

func (s *Store) appendTranscript(event, itemID string, index int, delta string) (*Item, *Delta, error) {
	it, ok := s.itemLookup[itemID]
	if !ok {
		return nil, nil, nil
	}
	part, err := ensurePart(it, index, event)
	if err != nil {
		return nil, nil, err
	}
	part.Transcript += delta
	it.Formatted.Transcript += delta
	return it, &Delta{Transcript: delta}, nil
}

func (s *Store) appendAudio(e *events.ResponseAudioDeltaEvent) (*Item, *Delta, error) {
	it, ok := s.itemLookup[e.ItemID]
	if !ok {
		return nil, nil, nil
	}
	samples, err := audio.DecodePCM16(e.Delta)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: item %q: %w", e.EventType(), e.ItemID, err)
	}
	it.Formatted.Audio = append(it.Formatted.Audio, samples...)
	return it, &Delta{Audio: samples}, nil
}

func (s *Store) appendArguments(e *events.ResponseFunctionCallArgumentsDeltaEvent) (*Item, *Delta) {
	it, ok := s.itemLookup[e.ItemID]
	if !ok {
		return nil, nil
	}
	it.Arguments += e.Delta
	if it.Formatted.Tool != nil {
		it.Formatted.Tool.Arguments += e.Delta
	}
	return it, &Delta{Arguments: e.Delta}
}

// ensurePart returns the content part at index, growing the content with
// empty accumulators when the index is just past the end.
func ensurePart(it *Item, index int, event string) (*events.ContentPart, error) {
	if index < 0 || index >= MaxContentIndex {
		return nil, &DesyncError{
			Event:  event,
			ItemID: it.ID,
			Reason: fmt.Sprintf("content index %d out of range", index),
		}
	}
	for len(it.Content) <= index {
		it.Content = append(it.Content, events.ContentPart{})
	}
	return &it.Content[index], nil
}
