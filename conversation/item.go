package conversation

import (
	"fmt"
	"maps"
	"slices"

	"github.com/codewandler/realtime-go/events"
)

// Item is one conversation turn unit as reconstructed from server events.
// Values handed out by the Store are copies.
type Item struct {
	ID        string
	Type      events.ItemType
	Role      string
	Status    events.ItemStatus
	Content   []events.ContentPart
	CallID    string
	Name      string
	Arguments string
	Output    string
	Formatted Formatted
}

// Formatted aggregates the item's content: all text, all transcripts and all
// audio samples, appended as deltas arrive.
type Formatted struct {
	Text       string
	Transcript string
	Audio      []int16
	Tool       *ToolCall
	Output     string
}

type ToolCall struct {
	Type      string
	Name      string
	CallID    string
	Arguments string
	Output    string
}

// Delta is the fragment a single event added to an item. Exactly one field
// is set.
type Delta struct {
	Text       string
	Transcript string
	Arguments  string
	Audio      []int16
}

type Response struct {
	ID       string
	Status   string
	Output   []string
	Metadata map[string]any
	Usage    *events.Usage
}

// SpeechSegment is detected user speech waiting for its item to be created.
type SpeechSegment struct {
	AudioStartMs int
	AudioEndMs   int
	Stopped      bool
	Audio        []int16
}

// DesyncError reports an event that cannot be applied consistently to the
// current state, e.g. a content index far outside anything plausible.
type DesyncError struct {
	Event  string
	ItemID string
	Reason string
}

func (e *DesyncError) Error() string {
	if e.ItemID != "" {
		return fmt.Sprintf("%s: item %q: %s", e.Event, e.ItemID, e.Reason)
	}
	return fmt.Sprintf("%s: %s", e.Event, e.Reason)
}

func (it *Item) clone() *Item {
	out := *it
	out.Content = slices.Clone(it.Content)
	out.Formatted.Audio = slices.Clone(it.Formatted.Audio)
	if it.Formatted.Tool != nil {
		tc := *it.Formatted.Tool
		out.Formatted.Tool = &tc
	}
	return &out
}

func (r *Response) clone() *Response {
	out := *r
	out.Output = slices.Clone(r.Output)
	out.Metadata = maps.Clone(r.Metadata)
	if r.Usage != nil {
		u := *r.Usage
		out.Usage = &u
	}
	return &out
}
