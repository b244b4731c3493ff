package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/codewandler/realtime-go/audio"
	"github.com/codewandler/realtime-go/conversation"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/metrics"
	"github.com/codewandler/realtime-go/tool"
)

// handleMessage applies one inbound message. It runs on the transport's read
// loop, so events are handled strictly in arrival order.
func (c *Client) handleMessage(gen uint64, data []byte) {
	c.mu.Lock()
	stale := gen != c.generation
	c.mu.Unlock()
	if stale {
		return
	}

	evt, err := events.ParseServerEvent(data)
	if err != nil {
		c.logger.Error("failed to parse event", slog.Any("err", err))
		return
	}

	c.metrics.ObserveEvent(metrics.DirectionInbound, evt.EventType())
	c.dispatcher.Dispatch(EventRealtime, RealtimeEvent{Time: time.Now(), Source: SourceServer, Event: evt})
	c.dispatcher.Dispatch(SourceServer+"."+evt.EventType(), evt)

	var inputAudio []int16

	switch e := evt.(type) {
	case *events.ErrorEvent:
		c.logger.Warn("server error",
			slog.String("type", e.ErrorDetail.Type),
			slog.String("code", e.ErrorDetail.Code),
			slog.String("message", e.ErrorDetail.Message),
		)
		c.dispatcher.Dispatch(EventError, error(e))
		return
	case *events.SessionCreatedEvent:
		c.markSessionCreated()
		return
	case *events.SpeechStartedEvent:
		c.output.Reset()
		c.dispatcher.Dispatch(EventInterrupted, e)
	case *events.SpeechStoppedEvent:
		c.mu.Lock()
		inputAudio = c.inputAudio
		c.mu.Unlock()
		if inputAudio == nil {
			inputAudio = []int16{}
		}
	}

	item, delta, err := c.conversation.ProcessEvent(evt, inputAudio)
	if err != nil {
		c.logger.Error("conversation out of sync", slog.String("type", evt.EventType()), slog.Any("err", err))
		c.dispatcher.Dispatch(EventError, err)
		return
	}
	if item == nil {
		return
	}

	switch evt.(type) {
	case *events.ConversationItemCreatedEvent:
		c.dispatcher.Dispatch(EventItemAppended, item)
		if item.Status == events.ItemStatusCompleted {
			c.dispatcher.Dispatch(EventItemCompleted, item)
		}
	case *events.ResponseOutputItemDoneEvent:
		if item.Status == events.ItemStatusCompleted {
			c.dispatcher.Dispatch(EventItemCompleted, item)
			if item.Type == events.ItemTypeFunctionCall && item.Formatted.Tool != nil {
				go c.callTool(*item.Formatted.Tool)
			}
		}
	case *events.ResponseAudioDeltaEvent:
		if delta != nil {
			c.writeOutput(delta.Audio)
		}
	}

	c.dispatcher.Dispatch(EventConversationUpdated, ConversationUpdate{Item: item, Delta: delta})
}

func (c *Client) markSessionCreated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sessionCreated || c.state == StateDisconnected {
		return
	}
	c.sessionCreated = true
	c.state = StateSessionEstablished
	close(c.sessionReady)
}

// handleClose runs when the transport ends on its own.
func (c *Client) handleClose(gen uint64, err error) {
	c.mu.Lock()
	if gen != c.generation || c.state == StateDisconnected {
		c.mu.Unlock()
		return
	}
	c.resetConnectionLocked()
	c.mu.Unlock()

	c.clearConversation()
	c.metrics.SetConnected(false)
	c.logger.Info("connection closed", slog.Any("err", err))
	c.dispatcher.Dispatch(EventClose, CloseEvent{Err: err})
}

// writeOutput drops whatever does not fit instead of blocking the read loop.
func (c *Client) writeOutput(samples []int16) {
	data := audio.PCM16ToBytes(samples)
	free := c.output.Free() &^ 1
	if free < len(data) {
		c.logger.Warn("audio output buffer full, dropping samples", slog.Int("dropped", len(data)-free))
		data = data[:free]
	}
	if len(data) == 0 {
		return
	}
	if _, err := c.output.Write(data); err != nil {
		c.logger.Error("failed to write to audio output buffer", slog.Any("err", err))
	}
}

// callTool runs a tool the model asked for and always answers with a
// function_call_output followed by response.create.
func (c *Client) callTool(call conversation.ToolCall) {
	c.mu.Lock()
	ctx := c.connCtx
	c.mu.Unlock()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, c.config.toolTimeout)
	defer cancel()

	start := time.Now()
	res, err := c.invokeTool(ctx, call)
	c.metrics.ObserveToolCall(call.Name, time.Since(start), err)
	c.logger.Debug("tool call",
		slog.String("name", call.Name),
		slog.String("call_id", call.CallID),
		slog.Any("res", res),
		slog.Any("err", err),
	)

	if err := c.send(&events.ConversationItemCreateEvent{
		BaseEvent: events.NewBaseEvent(events.TypeConversationItemCreate),
		Item: events.ConversationItem{
			Type:   events.ItemTypeFunctionCallOutput,
			CallID: call.CallID,
			Output: toolOutput(res, err),
		},
	}); err != nil {
		c.logger.Error("failed to send tool output", slog.String("name", call.Name), slog.Any("err", err))
		return
	}
	if err := c.CreateResponse(); err != nil {
		c.logger.Error("failed to create response after tool call", slog.Any("err", err))
	}
}

func (c *Client) invokeTool(ctx context.Context, call conversation.ToolCall) (res any, err error) {
	reg, ok := c.tools.Get(call.Name)
	if !ok {
		return nil, fmt.Errorf("tool %q: %w", call.Name, tool.ErrNotFound)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tool %q panicked: %v", call.Name, r)
		}
	}()
	return reg.Handler(ctx, json.RawMessage(call.Arguments))
}

func toolOutput(res any, err error) string {
	var v any
	switch {
	case err != nil:
		v = map[string]any{"error": err.Error()}
	case res == nil:
		v = map[string]any{"success": true}
	default:
		v = res
	}
	d, mErr := json.Marshal(v)
	if mErr != nil {
		d, _ = json.Marshal(map[string]any{"error": mErr.Error()})
	}
	return string(d)
}
