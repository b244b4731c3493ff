// Package gateway runs external tool providers as subprocesses and brokers
// tool calls to them over line-delimited JSON-RPC on stdin/stdout.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/codewandler/realtime-go/tool"
)

const defaultShutdownGrace = 3 * time.Second

var emptySchema = json.RawMessage(`{"type":"object","properties":{}}`)

// Tool is a tool announced by a provider.
type Tool struct {
	Provider    string          `json:"provider"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Parameters  json.RawMessage `json:"parameters"`
}

type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithShutdownGrace sets how long Shutdown waits after SIGTERM before it
// kills a provider's process group.
func WithShutdownGrace(d time.Duration) Option {
	return func(g *Gateway) {
		g.shutdownGrace = d
	}
}

type Gateway struct {
	logger        *slog.Logger
	shutdownGrace time.Duration
	ids           atomic.Int64

	mu        sync.Mutex
	started   bool
	providers map[string]*provider
	tools     map[string]Tool
	order     []string
}

func New(opts ...Option) *Gateway {
	g := &Gateway{
		logger:        slog.New(slog.DiscardHandler),
		shutdownGrace: defaultShutdownGrace,
		providers:     make(map[string]*provider),
		tools:         make(map[string]Tool),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Start launches every provider in cfg. Calling it again after a successful
// start does nothing. On failure the providers started so far keep running;
// call Shutdown to stop them.
func (g *Gateway) Start(ctx context.Context, cfg Config) error {
	g.mu.Lock()
	if g.started {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	for _, name := range slices.Sorted(maps.Keys(cfg.MCPServers)) {
		if err := g.StartProvider(ctx, name, cfg.MCPServers[name]); err != nil {
			return err
		}
	}

	g.mu.Lock()
	g.started = true
	g.mu.Unlock()
	return nil
}

// StartProvider launches one provider, performs the MCP handshake and adds
// its tools to the directory. A tool name already owned by another provider
// is skipped.
func (g *Gateway) StartProvider(ctx context.Context, name string, cfg ProviderConfig) error {
	g.mu.Lock()
	_, exists := g.providers[name]
	g.mu.Unlock()
	if exists {
		return fmt.Errorf("provider %q already started", name)
	}

	p, err := startProcess(name, cfg, g.logger)
	if err != nil {
		return err
	}

	defs, err := g.handshake(ctx, p)
	if err != nil {
		_ = p.stop(context.WithoutCancel(ctx), g.shutdownGrace)
		return err
	}

	if !g.register(name, p, defs) {
		// a concurrent start of the same name won
		_ = p.stop(context.WithoutCancel(ctx), g.shutdownGrace)
		return fmt.Errorf("provider %q already started", name)
	}

	g.logger.Info("provider started", slog.String("provider", name), slog.Int("tools", len(defs)))
	return nil
}

func (g *Gateway) register(name string, p *provider, defs []toolDefinition) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.providers[name]; exists {
		return false
	}
	g.providers[name] = p
	for _, def := range defs {
		if owner, ok := g.tools[def.Name]; ok {
			g.logger.Warn("duplicate tool, skipping",
				slog.String("tool", def.Name),
				slog.String("provider", name),
				slog.String("owner", owner.Provider))
			continue
		}
		params := def.InputSchema
		if len(params) == 0 || string(params) == "null" {
			params = emptySchema
		}
		g.tools[def.Name] = Tool{
			Provider:    name,
			Name:        def.Name,
			Description: def.Description,
			Parameters:  params,
		}
		g.order = append(g.order, def.Name)
	}
	return true
}

func (g *Gateway) handshake(ctx context.Context, p *provider) ([]toolDefinition, error) {
	resp, err := p.call(ctx, g.ids.Add(1), MethodInitialize, initializeParams{
		ProtocolVersion: ProtocolVersion,
		Capabilities:    map[string]any{},
		ClientInfo:      clientInfo{Name: "realtime-go", Version: "0.1.0"},
	})
	if err != nil {
		return nil, err
	}
	if resp.Error != nil {
		return nil, &ProviderError{Provider: p.name, Code: resp.Error.Code, Message: resp.Error.Message}
	}

	if err := p.notify(MethodInitialized, nil); err != nil {
		return nil, err
	}

	resp, err = p.call(ctx, g.ids.Add(1), MethodToolsList, nil)
	if err != nil {
		return nil, err
	}
	var list toolsListResult
	if err := p.decodeResult(resp, "", &list); err != nil {
		return nil, err
	}
	return list.Tools, nil
}

// ListTools returns the tool directory in discovery order.
func (g *Gateway) ListTools() []Tool {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]Tool, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.tools[name])
	}
	return out
}

// Providers returns the names of the running providers, sorted.
func (g *Gateway) Providers() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return slices.Sorted(maps.Keys(g.providers))
}

// CallTool runs a tool on its provider. Empty args are sent as an empty
// object. callID is only used for logging.
func (g *Gateway) CallTool(ctx context.Context, name string, args json.RawMessage, callID string) (*CallResult, error) {
	g.mu.Lock()
	t, ok := g.tools[name]
	var p *provider
	if ok {
		p = g.providers[t.Provider]
	}
	g.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("tool %q: %w", name, ErrToolNotFound)
	}
	if p == nil || !p.running() {
		return nil, fmt.Errorf("provider %q: %w", t.Provider, ErrProviderNotRunning)
	}

	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	log := g.logger.With(slog.String("tool", name), slog.String("call_id", callID))
	log.Debug("calling tool")

	resp, err := p.call(ctx, g.ids.Add(1), MethodToolsCall, toolsCallParams{Name: name, Arguments: args})
	if err != nil {
		log.Error("tool call failed", slog.Any("err", err))
		return nil, err
	}

	var res CallResult
	if err := p.decodeResult(resp, name, &res); err != nil {
		log.Error("tool call failed", slog.Any("err", err))
		return nil, err
	}
	if res.IsError {
		return nil, &ProviderError{Provider: p.name, Tool: name, Message: res.Text()}
	}
	return &res, nil
}

// Registrations adapts the tool directory for registration with a session
// client. Each handler forwards to CallTool.
func (g *Gateway) Registrations() []tool.Registration {
	tools := g.ListTools()
	regs := make([]tool.Registration, 0, len(tools))
	for _, t := range tools {
		name := t.Name
		regs = append(regs, tool.Registration{
			Tool: tool.Tool{
				Type:        tool.TypeFunction,
				Name:        name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
			Handler: func(ctx context.Context, args json.RawMessage) (any, error) {
				res, err := g.CallTool(ctx, name, args, "")
				if err != nil {
					return nil, err
				}
				return res.Value(), nil
			},
		})
	}
	return regs
}

// Shutdown stops every provider and clears the tool directory. Providers are
// stopped concurrently.
func (g *Gateway) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	providers := g.providers
	g.providers = make(map[string]*provider)
	g.tools = make(map[string]Tool)
	g.order = nil
	g.started = false
	g.mu.Unlock()

	if len(providers) == 0 {
		return nil
	}

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs []error
	)
	for _, p := range providers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := p.stop(ctx, g.shutdownGrace); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	g.logger.Info("gateway shut down", slog.Int("providers", len(providers)))
	return errors.Join(errs...)
}
