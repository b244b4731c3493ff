package realtime

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/codewandler/realtime-go/audio"
	"github.com/codewandler/realtime-go/conversation"
	"github.com/codewandler/realtime-go/eventbus"
	"github.com/codewandler/realtime-go/events"
	"github.com/codewandler/realtime-go/metrics"
	"github.com/codewandler/realtime-go/tool"
)

const (
	ApiKeyEnvVarNameShort = "OPENAI_KEY"
	ApiKeyEnvVarNameLong  = "OPENAI_API_KEY"

	DefaultModel = "gpt-4o-realtime-preview-2025-06-03"
)

type clientConfig struct {
	model        string
	apiKey       string
	url          string
	sampleRate   int
	latencyMS    int
	toolTimeout  time.Duration
	logger       *slog.Logger
	dialer       Dialer
	dispatcher   *eventbus.Dispatcher
	conversation *conversation.Store
	metrics      *metrics.Metrics
	session      []events.SessionOption
	tools        []tool.Registration
}

func (c *clientConfig) latency() time.Duration {
	return time.Duration(c.latencyMS) * time.Millisecond
}

func (c *clientConfig) endpoint() string {
	if c.url != "" {
		return c.url
	}
	return fmt.Sprintf("wss://api.openai.com/v1/realtime?model=%s", c.model)
}

func (c *clientConfig) validate() error {
	if c.apiKey == "" {
		return fmt.Errorf("%w: missing api key", ErrInvalidConfig)
	}
	if c.sampleRate <= 0 {
		return fmt.Errorf("%w: sample rate must be positive", ErrInvalidConfig)
	}
	return nil
}

type ClientOption func(*clientConfig)

// WithTools registers the given tools when the client is created.
func WithTools(tools ...tool.Registration) ClientOption {
	return func(config *clientConfig) {
		config.tools = append(config.tools, tools...)
	}
}

func WithVoice(voice string) ClientOption {
	return WithSession(events.WithVoice(voice))
}

func WithSpeed(speed float64) ClientOption {
	return WithSession(events.WithSpeed(speed))
}

func WithTemperature(temperature float64) ClientOption {
	return WithSession(events.WithTemperature(temperature))
}

func WithInstruction(instruction string) ClientOption {
	return WithSession(events.WithInstructions(instruction))
}

func WithMaxTokens(maxTokens events.MaxTokens) ClientOption {
	return WithSession(events.WithMaxTokens(maxTokens))
}

// WithSession applies session options on top of the default session
// configuration. The result is also what ResetConfig restores.
func WithSession(opts ...events.SessionOption) ClientOption {
	return func(config *clientConfig) {
		config.session = append(config.session, opts...)
	}
}

// WithInputSampleRate sets the rate of audio passed to AppendInputAudio. It
// is resampled to the wire rate before sending.
func WithInputSampleRate(sr int) ClientOption {
	return func(config *clientConfig) {
		config.sampleRate = sr
	}
}

func WithLogger(logger *slog.Logger) ClientOption {
	return func(o *clientConfig) {
		o.logger = logger
	}
}

func WithDefaultLogger() ClientOption {
	return WithLogger(slog.Default())
}

func WithModel(model string) ClientOption {
	return func(o *clientConfig) {
		o.model = model
	}
}

// WithURL overrides the endpoint derived from the model.
func WithURL(url string) ClientOption {
	return func(o *clientConfig) {
		o.url = url
	}
}

func WithKey(apiKey string) ClientOption {
	return func(o *clientConfig) {
		o.apiKey = apiKey
	}
}

func WithEnvKey(vars ...string) ClientOption {
	return func(o *clientConfig) {
		for _, envVarName := range vars {
			if k := os.Getenv(envVarName); k != "" {
				o.apiKey = k
				return
			}
		}
	}
}

func WithDialer(d Dialer) ClientOption {
	return func(o *clientConfig) {
		o.dialer = d
	}
}

// WithDispatcher makes the client dispatch on an externally owned
// dispatcher.
func WithDispatcher(d *eventbus.Dispatcher) ClientOption {
	return func(o *clientConfig) {
		o.dispatcher = d
	}
}

// WithConversation makes the client apply events to an externally owned
// store.
func WithConversation(s *conversation.Store) ClientOption {
	return func(o *clientConfig) {
		o.conversation = s
	}
}

func WithMetrics(m *metrics.Metrics) ClientOption {
	return func(o *clientConfig) {
		o.metrics = m
	}
}

// WithLatency sets the audio output chunk duration in milliseconds.
func WithLatency(latencyMS int) ClientOption {
	return func(o *clientConfig) {
		o.latencyMS = latencyMS
	}
}

// WithToolTimeout bounds a single tool handler invocation.
func WithToolTimeout(d time.Duration) ClientOption {
	return func(o *clientConfig) {
		o.toolTimeout = d
	}
}

func WithOptions(opts ...ClientOption) ClientOption {
	return func(o *clientConfig) {
		for _, opt := range opts {
			opt(o)
		}
	}
}

func withDefaults() ClientOption {
	return WithOptions(
		WithLogger(slog.New(slog.DiscardHandler)),
		WithInputSampleRate(audio.SampleRate),
		WithLatency(200),
		WithToolTimeout(30*time.Second),
		WithModel(DefaultModel),
		WithDialer(dialWebsocket),
		WithEnvKey(ApiKeyEnvVarNameShort, ApiKeyEnvVarNameLong),
	)
}
