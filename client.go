// Package realtime is a client for the OpenAI realtime protocol. It keeps a
// local copy of the conversation, runs registered tools when the model calls
// them and exposes everything that happens as named events.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/smallnest/ringbuffer"

	"github.com/codewandler/realtime-go/audio"
	"github.com/codewandler/realtime-go/conversation"
	"github.com/codewandler/realtime-go/eventbus"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/metrics"
	"github.com/codewandler/realtime-go/tool"
)

// Application events dispatched by the client, in addition to
// "server.<type>" and "client.<type>" for every wire event.
const (
	EventConversationUpdated = "conversation.updated"
	EventItemAppended        = "conversation.item.appended"
	EventItemCompleted       = "conversation.item.completed"
	EventInterrupted         = "conversation.interrupted"
	EventRealtime            = "realtime.event"
	EventError               = "error"
	EventClose               = "close"
)

const (
	SourceServer = "server"
	SourceClient = "client"
)

// ConversationUpdate is the payload of EventConversationUpdated.
type ConversationUpdate struct {
	Item  *conversation.Item
	Delta *conversation.Delta
}

// RealtimeEvent is the payload of EventRealtime.
type RealtimeEvent struct {
	Time   time.Time
	Source string
	Event  any
}

// CloseEvent is the payload of EventClose, dispatched when the remote side
// ends the connection.
type CloseEvent struct {
	Err error
}

type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateSessionEstablished
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateSessionEstablished:
		return "session_established"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

type Client struct {
	config       *clientConfig
	logger       *slog.Logger
	metrics      *metrics.Metrics
	dispatcher   *eventbus.Dispatcher
	conversation *conversation.Store
	tools        *tool.Registry
	output       *ringbuffer.RingBuffer

	mu             sync.Mutex
	state          State
	generation     uint64
	transport      Transport
	session        events.SessionConfig
	sessionCreated bool
	sessionReady   chan struct{}
	connDone       chan struct{}
	connCtx        context.Context
	connCancel     context.CancelFunc
	inputAudio     []int16
}

func New(opts ...ClientOption) (*Client, error) {
	config := &clientConfig{}
	withDefaults()(config)
	WithOptions(opts...)(config)

	dispatcher := config.dispatcher
	if dispatcher == nil {
		dispatcher = eventbus.New()
	}
	store := config.conversation
	if store == nil {
		store = conversation.New()
	}

	// one minute of agent audio
	outputSize := audio.ChunkSize(audio.SampleRate, 60*time.Second, 2, 1)

	c := &Client{
		config:       config,
		logger:       config.logger,
		metrics:      config.metrics,
		dispatcher:   dispatcher,
		conversation: store,
		tools:        tool.NewRegistry(),
		output:       ringbuffer.New(outputSize).SetBlocking(true),
	}
	c.session = c.defaultSession()

	for _, reg := range config.tools {
		if _, err := c.tools.Add(reg.Tool, reg.Handler); err != nil {
			return nil, err
		}
	}

	return c, nil
}

func (c *Client) defaultSession() events.SessionConfig {
	cfg := events.DefaultSessionConfig()
	cfg.Apply(c.config.session...)
	return cfg
}

func (c *Client) Conversation() *conversation.Store { return c.conversation }

func (c *Client) Dispatcher() *eventbus.Dispatcher { return c.dispatcher }

// On registers h for the named event and returns a function removing it.
func (c *Client) On(name string, h eventbus.Handler) (off func()) {
	return c.dispatcher.On(name, h)
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// IsConnected reports whether the transport is currently open.
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	return t != nil && t.IsOpen()
}

// Connect dials the remote peer and sends the current session configuration.
func (c *Client) Connect(ctx context.Context) error {
	if err := c.config.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return ErrAlreadyConnected
	}
	c.state = StateConnecting
	c.generation++
	gen := c.generation
	c.sessionCreated = false
	c.sessionReady = make(chan struct{})
	c.connDone = make(chan struct{})
	c.connCtx, c.connCancel = context.WithCancel(context.Background())
	c.mu.Unlock()

	headers := http.Header{}
	headers.Add("Authorization", fmt.Sprintf("Bearer %s", c.config.apiKey))
	headers.Add("OpenAI-Beta", "realtime=v1")

	t, err := c.config.dialer(ctx, DialConfig{
		URL:       c.config.endpoint(),
		Headers:   headers,
		Logger:    c.logger,
		OnMessage: func(data []byte) { c.handleMessage(gen, data) },
		OnClose:   func(err error) { c.handleClose(gen, err) },
	})
	if err != nil {
		c.mu.Lock()
		if c.generation == gen {
			c.resetConnectionLocked()
		}
		c.mu.Unlock()
		return fmt.Errorf("connect: %w", err)
	}

	c.mu.Lock()
	if c.generation != gen {
		// disconnected while dialing
		c.mu.Unlock()
		_ = t.Close(ctx)
		return ErrNotConnected
	}
	c.transport = t
	if c.state == StateConnecting {
		c.state = StateConnected
	}
	c.mu.Unlock()

	c.metrics.SetConnected(true)
	c.logger.Info("connected", slog.String("url", c.config.endpoint()))

	return c.UpdateSession()
}

// Disconnect closes the transport and clears the conversation. Tools and
// session configuration are kept for the next Connect.
func (c *Client) Disconnect(ctx context.Context) error {
	c.mu.Lock()
	t := c.transport
	wasConnected := c.state != StateDisconnected
	c.generation++
	c.resetConnectionLocked()
	c.mu.Unlock()

	c.clearConversation()
	if !wasConnected {
		return nil
	}
	c.metrics.SetConnected(false)
	c.logger.Info("disconnected")

	if t != nil {
		return t.Close(ctx)
	}
	return nil
}

func (c *Client) resetConnectionLocked() {
	c.state = StateDisconnected
	c.transport = nil
	c.sessionCreated = false
	c.inputAudio = nil
	if c.connCancel != nil {
		c.connCancel()
	}
	if c.connDone != nil {
		close(c.connDone)
		c.connDone = nil
	}
}

func (c *Client) clearConversation() {
	c.conversation.Clear()
	c.output.Reset()
}

// WaitForSessionCreated blocks until the remote peer confirmed the session.
func (c *Client) WaitForSessionCreated(ctx context.Context) error {
	c.mu.Lock()
	if c.state == StateDisconnected {
		c.mu.Unlock()
		return ErrNotConnected
	}
	ready, done := c.sessionReady, c.connDone
	c.mu.Unlock()

	select {
	case <-ready:
		return nil
	case <-done:
		return ErrNotConnected
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ResetConfig restores the initial session configuration and removes all
// tools. Nothing is sent.
func (c *Client) ResetConfig() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = c.defaultSession()
	c.tools.Reset()
	if c.sessionCreated {
		c.sessionReady = make(chan struct{})
	}
	c.sessionCreated = false
	if c.state == StateSessionEstablished {
		c.state = StateConnected
	}
}

// Session returns a copy of the current session configuration.
func (c *Client) Session() events.SessionConfig {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Clone()
}

func (c *Client) SystemPrompt() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Instructions
}

func (c *Client) MaxTokens() events.MaxTokens {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.MaxResponseOutputTokens
}

// TurnDetectionType returns the configured turn detection type, false when
// turn detection is off.
func (c *Client) TurnDetectionType() (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session.TurnDetection == nil {
		return "", false
	}
	return c.session.TurnDetection.Type, true
}

// UpdateSession merges opts into the session configuration and, when
// connected, sends the full configuration including all registered tools.
func (c *Client) UpdateSession(opts ...events.SessionOption) error {
	c.mu.Lock()
	c.session.Apply(opts...)
	cfg := c.session.Clone()
	c.mu.Unlock()

	cfg.Tools = append(cfg.Tools, c.tools.Tools()...)

	if !c.IsConnected() {
		return nil
	}
	return c.send(&events.SessionUpdateEvent{
		BaseEvent: events.NewBaseEvent(events.TypeSessionUpdate),
		Session:   cfg,
	})
}

func (c *Client) UpdateSystemPrompt(prompt string) error {
	return c.UpdateSession(events.WithInstructions(prompt))
}

func (c *Client) UpdateMaxTokens(maxTokens events.MaxTokens) error {
	return c.UpdateSession(events.WithMaxTokens(maxTokens))
}

func (c *Client) UpdateConfig(prompt string, maxTokens events.MaxTokens) error {
	return c.UpdateSession(events.WithInstructions(prompt), events.WithMaxTokens(maxTokens))
}

// AddTool registers a tool and announces it with a session update.
func (c *Client) AddTool(t tool.Tool, h tool.Handler) (tool.Registration, error) {
	reg, err := c.tools.Add(t, h)
	if err != nil {
		return tool.Registration{}, err
	}
	if err := c.UpdateSession(); err != nil {
		return reg, fmt.Errorf("announce tool %q: %w", t.Name, err)
	}
	return reg, nil
}

// RemoveTool unregisters a tool. The remote peer learns about it with the
// next session update.
func (c *Client) RemoveTool(name string) error {
	return c.tools.Remove(name)
}

func (c *Client) Tools() []tool.Tool {
	return c.tools.Tools()
}

// DeleteItem asks the remote peer to delete an item. The local copy is
// removed when the deletion event comes back.
func (c *Client) DeleteItem(itemID string) error {
	return c.send(&events.ConversationItemDeleteEvent{
		BaseEvent: events.NewBaseEvent(events.TypeConversationItemDelete),
		ItemID:    itemID,
	})
}

// SendUserMessage adds a user message and asks for a response. Audio parts
// carry base64 PCM16 in Audio.
func (c *Client) SendUserMessage(content ...events.ContentPart) error {
	if len(content) > 0 {
		err := c.send(&events.ConversationItemCreateEvent{
			BaseEvent: events.NewBaseEvent(events.TypeConversationItemCreate),
			Item: events.ConversationItem{
				Type:    events.ItemTypeMessage,
				Role:    events.RoleUser,
				Content: content,
			},
		})
		if err != nil {
			return err
		}
	}
	return c.CreateResponse()
}

// SendText is SendUserMessage with a single text part.
func (c *Client) SendText(text string) error {
	return c.SendUserMessage(events.ContentPart{Type: events.ContentTypeInputText, Text: text})
}

// AppendInputAudio streams user audio at the configured input sample rate.
func (c *Client) AppendInputAudio(samples []int16) error {
	if len(samples) == 0 {
		return nil
	}
	if c.config.sampleRate != audio.SampleRate {
		resampled, err := audio.Resample(samples, c.config.sampleRate, audio.SampleRate)
		if err != nil {
			return fmt.Errorf("resample input audio: %w", err)
		}
		samples = resampled
	}

	err := c.send(&events.InputAudioBufferAppendEvent{
		BaseEvent: events.NewBaseEvent(events.TypeInputAudioBufferAppend),
		Audio:     audio.EncodePCM16(samples),
	})
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.inputAudio = append(c.inputAudio, samples...)
	c.mu.Unlock()
	return nil
}

// CreateResponse asks the model to respond. Without turn detection the
// buffered input audio is committed first.
func (c *Client) CreateResponse() error {
	c.mu.Lock()
	manual := c.session.TurnDetection == nil
	buffered := c.inputAudio
	if manual && len(buffered) > 0 {
		c.inputAudio = nil
	}
	c.mu.Unlock()

	if manual && len(buffered) > 0 {
		err := c.send(&events.InputAudioBufferCommitEvent{
			BaseEvent: events.NewBaseEvent(events.TypeInputAudioBufferCommit),
		})
		if err != nil {
			return err
		}
		c.conversation.QueueInputAudio(buffered)
	}

	return c.send(&events.ResponseCreateEvent{
		BaseEvent: events.NewBaseEvent(events.TypeResponseCreate),
	})
}

// CancelResponse stops the current response. With an item id the assistant
// item is truncated to the sampleCount samples the caller already played.
func (c *Client) CancelResponse(itemID string, sampleCount int) (*conversation.Item, error) {
	if itemID == "" {
		return nil, c.send(&events.ResponseCancelEvent{
			BaseEvent: events.NewBaseEvent(events.TypeResponseCancel),
		})
	}

	item := c.conversation.Item(itemID)
	if item == nil {
		return nil, fmt.Errorf("%w: %q", ErrItemNotFound, itemID)
	}
	if item.Type != events.ItemTypeMessage || item.Role != events.RoleAssistant {
		return nil, fmt.Errorf("%w: %q", ErrNotAssistantMessage, itemID)
	}
	audioIndex := -1
	for i, part := range item.Content {
		if part.Type == events.ContentTypeAudio {
			audioIndex = i
			break
		}
	}
	if audioIndex < 0 {
		return nil, fmt.Errorf("%w: %q", ErrNoAudioContent, itemID)
	}

	if err := c.send(&events.ResponseCancelEvent{
		BaseEvent: events.NewBaseEvent(events.TypeResponseCancel),
	}); err != nil {
		return nil, err
	}
	err := c.send(&events.ConversationItemTruncateEvent{
		BaseEvent:    events.NewBaseEvent(events.TypeConversationItemTruncate),
		ItemID:       itemID,
		ContentIndex: audioIndex,
		AudioEndMs:   sampleCount * 1000 / audio.SampleRate,
	})
	if err != nil {
		return nil, err
	}
	return item, nil
}

// WaitForNextItem returns the next item appended to the conversation.
func (c *Client) WaitForNextItem(ctx context.Context) (*conversation.Item, error) {
	return eventbus.WaitFor[*conversation.Item](ctx, c.dispatcher, EventItemAppended)
}

// WaitForNextCompletedItem returns the next item that reached completed.
func (c *Client) WaitForNextCompletedItem(ctx context.Context) (*conversation.Item, error) {
	return eventbus.WaitFor[*conversation.Item](ctx, c.dispatcher, EventItemCompleted)
}

// AudioOutput returns the agent's PCM16 audio at the wire sample rate, in
// chunks of the configured latency. Reads block until audio arrives.
func (c *Client) AudioOutput() io.Reader {
	return audio.NewPCM16ChunkReader(c.output, audio.SampleRate, c.config.latency())
}

// Send marshals and sends a raw client event.
func (c *Client) Send(evt events.ClientEvent) error {
	return c.send(evt)
}

func (c *Client) send(evt events.ClientEvent) error {
	c.mu.Lock()
	t := c.transport
	c.mu.Unlock()
	if t == nil || !t.IsOpen() {
		return ErrNotConnected
	}

	data, err := json.Marshal(evt)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", evt.EventType(), err)
	}
	if err := t.Send(data); err != nil {
		return fmt.Errorf("send %s: %w", evt.EventType(), err)
	}

	c.metrics.ObserveEvent(metrics.DirectionOutbound, evt.EventType())
	c.dispatcher.Dispatch(EventRealtime, RealtimeEvent{Time: time.Now(), Source: SourceClient, Event: evt})
	c.dispatcher.Dispatch(SourceClient+"."+evt.EventType(), evt)
	return nil
}
