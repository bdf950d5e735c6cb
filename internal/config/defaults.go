package config

// DefaultBindAddress is the default bind address (localhost only for security).
const DefaultBindAddress = "127.0.0.1"

// DefaultPort is the default port for the gateway's HTTP server.
const DefaultPort = 7860

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// DefaultDataDir is the default data directory (before tilde expansion).
const DefaultDataDir = "~/.routecodex"

// DefaultConfigFilename is the name of the config file.
const DefaultConfigFilename = "config.toml"

// DefaultProviderTimeout is the default provider timeout in seconds.
const DefaultProviderTimeout = 60

// DefaultReadTimeout is the default HTTP server read timeout in seconds.
const DefaultReadTimeout = 10

// DefaultWriteTimeout is the default HTTP server write timeout in seconds.
// Set high to accommodate LLM streaming responses.
const DefaultWriteTimeout = 300

// DefaultIdleTimeout is the default HTTP server idle timeout in seconds.
const DefaultIdleTimeout = 120

// DefaultMaxBodySize is the default maximum request body size in bytes (10 MB).
const DefaultMaxBodySize = 10 << 20

// DefaultMaxResponseSize is the default maximum upstream response size in bytes (100 MB).
const DefaultMaxResponseSize int64 = 100 << 20

// DefaultStreamTimeout is the default streaming connection timeout in seconds (10 min).
const DefaultStreamTimeout = 600

// DefaultHeartbeatMs is the default SSE heartbeat cadence in milliseconds.
const DefaultHeartbeatMs = 5000

// DefaultMaxConnsPerHost is the default max HTTP connections per provider host.
const DefaultMaxConnsPerHost = 64

// DefaultPipelineMaxWaitSec is the default hard pipeline timeout in seconds.
const DefaultPipelineMaxWaitSec = 300

// DefaultRetryMaxAttempts is the default maximum number of retry attempts per provider.
const DefaultRetryMaxAttempts = 3

// DefaultRetryBaseDelayMs is the default base delay for exponential backoff in milliseconds.
const DefaultRetryBaseDelayMs = 500

// DefaultRetryMaxDelayMs is the default maximum delay for exponential backoff in milliseconds.
const DefaultRetryMaxDelayMs = 30000

// DefaultCBFailureThreshold is the default number of consecutive failures before opening the circuit.
const DefaultCBFailureThreshold = 5

// DefaultCBResetTimeout is the default circuit breaker reset timeout in seconds.
const DefaultCBResetTimeout = 60

// DefaultCBHalfOpenMax is the default number of successful calls in half-open state to close the circuit.
const DefaultCBHalfOpenMax = 1

// DefaultTracingExporter is the default tracing exporter type.
const DefaultTracingExporter = "otlp-grpc"

// DefaultTracingEndpoint is the default OTLP collector endpoint.
const DefaultTracingEndpoint = "localhost:4317"

// DefaultTracingServiceName is the default service name for traces.
const DefaultTracingServiceName = "routecodex"

// DefaultTracingSampleRate is the default sampling rate (1.0 = 100%).
const DefaultTracingSampleRate = 1.0

// DefaultSnapshotMaxBodyBytes is the default per-record body capture cap.
const DefaultSnapshotMaxBodyBytes = 64 * 1024

// DefaultSnapshotRetentionDays is the default age, in days, at which the
// pruner deletes persisted snapshot rows.
const DefaultSnapshotRetentionDays = 14

// Default classification thresholds, in estimated tokens (spec §4.7).
const (
	DefaultThresholdShort       = 1000
	DefaultThresholdMedium      = 8000
	DefaultThresholdLong        = 32000
	DefaultThresholdLongContext = 24000
)

// ValidLogLevels lists the allowed log level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// ValidAuthTypes lists the allowed provider auth_type values.
var ValidAuthTypes = []string{"apikey", "oauth"}

// ValidProtocols lists the allowed provider wire-protocol values. Every
// backend other than Anthropic and the OpenAI Responses API speaks an
// OpenAI-Chat-shaped wire format; differences from the canonical shape
// (field renames, extra headers) are absorbed by the compatibility adapter
// table rather than by a distinct llmswitch codec.
var ValidProtocols = []string{"chat", "responses", "anthropic"}

// ValidSnapshotSinks lists the allowed snapshot.sink values.
var ValidSnapshotSinks = []string{"zerolog", "nop", "sqlite"}

// DefaultConfig returns a Config populated with all default values: the
// full catalog of backend families RouteCodex fronts, wired into a
// "default" route pool plus a couple of illustrative categories, and the
// ambient resilience/tracing/snapshot knobs every pipeline shares. Provider
// ids match the compatibility adapter table's keys so a provider's config
// entry and its adapter resolve to the same identity.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:        DefaultBindAddress,
			Port:               DefaultPort,
			LogLevel:           DefaultLogLevel,
			DataDir:            DefaultDataDir,
			TLSEnabled:         false,
			ReadTimeout:        DefaultReadTimeout,
			WriteTimeout:       DefaultWriteTimeout,
			IdleTimeout:        DefaultIdleTimeout,
			MaxBodySize:        DefaultMaxBodySize,
			MaxResponseSize:    DefaultMaxResponseSize,
			StreamTimeout:      DefaultStreamTimeout,
			HeartbeatMs:        DefaultHeartbeatMs,
			MaxConnsPerHost:    DefaultMaxConnsPerHost,
			PipelineMaxWaitSec: DefaultPipelineMaxWaitSec,
			AdminToken:         "",
		},
		Providers: map[string]ProviderConfig{
			"openai-chat": {
				Name:     "OpenAI",
				APIBase:  "https://api.openai.com",
				Path:     "/v1/chat/completions",
				Protocol: "chat",
				AuthType: "apikey",
				KeyRef:   "keyring://routecodex/openai-chat",
				Models:   []string{"gpt-4o", "gpt-4o-mini"},
				Enabled:  true,
				Priority: 1,
				Timeout:  DefaultProviderTimeout,
			},
			"openai-responses": {
				Name:         "OpenAI Responses",
				APIBase:      "https://api.openai.com",
				Path:         "/v1/responses",
				Protocol:     "responses",
				AuthType:     "apikey",
				KeyRef:       "keyring://routecodex/openai-responses",
				Models:       []string{"gpt-4o", "o1"},
				Enabled:      true,
				Priority:     2,
				Timeout:      DefaultProviderTimeout,
				AlwaysStream: true,
			},
			"anthropic": {
				Name:     "Anthropic",
				APIBase:  "https://api.anthropic.com",
				Path:     "/v1/messages",
				Protocol: "anthropic",
				AuthType: "apikey",
				KeyRef:   "keyring://routecodex/anthropic",
				Models:   []string{"claude-sonnet-4-5", "claude-haiku-4-5"},
				Enabled:  true,
				Priority: 3,
				Timeout:  DefaultProviderTimeout,
			},
			"qwen": {
				Name:     "Qwen",
				APIBase:  "https://dashscope.aliyuncs.com/compatible-mode",
				Path:     "/v1/chat/completions",
				Protocol: "chat",
				AuthType: "oauth",
				OAuth: &ProviderOAuthConfig{
					ClientID:      "routecodex-cli",
					Scope:         "openid profile",
					DeviceCodeURL: "https://dashscope.aliyuncs.com/oauth2/device/code",
					TokenURL:      "https://dashscope.aliyuncs.com/oauth2/token",
				},
				Models:   []string{"qwen-max", "qwen-plus"},
				Enabled:  true,
				Priority: 4,
				Timeout:  DefaultProviderTimeout,
			},
			"glm": {
				Name:     "GLM",
				APIBase:  "https://open.bigmodel.cn/api/paas",
				Path:     "/v4/chat/completions",
				Protocol: "chat",
				AuthType: "apikey",
				KeyRef:   "keyring://routecodex/glm",
				Models:   []string{"glm-4.5", "glm-4.5-air"},
				Enabled:  true,
				Priority: 5,
				Timeout:  DefaultProviderTimeout,
			},
			"iflow": {
				Name:     "iFlow",
				APIBase:  "https://apis.iflow.cn",
				Path:     "/v1/chat/completions",
				Protocol: "chat",
				AuthType: "oauth",
				OAuth: &ProviderOAuthConfig{
					ClientID:      "routecodex-cli",
					DeviceCodeURL: "https://apis.iflow.cn/oauth2/device/code",
					TokenURL:      "https://apis.iflow.cn/oauth2/token",
				},
				Models:   []string{"iflow-turbo"},
				Enabled:  true,
				Priority: 6,
				Timeout:  DefaultProviderTimeout,
			},
			"lmstudio": {
				Name:     "LM Studio",
				APIBase:  "http://127.0.0.1:1234",
				Path:     "/v1/chat/completions",
				Protocol: "chat",
				AuthType: "apikey",
				KeyRef:   "env:ROUTECODEX_LMSTUDIO_KEY",
				Models:   []string{"gpt-oss-20b-mlx"},
				Enabled:  true,
				Priority: 7,
				Timeout:  DefaultProviderTimeout,
			},
			"gemini": {
				Name:     "Gemini",
				APIBase:  "https://generativelanguage.googleapis.com",
				Path:     "/v1beta/openai/chat/completions",
				Protocol: "chat",
				AuthType: "oauth",
				OAuth: &ProviderOAuthConfig{
					ClientID:      "routecodex-cli",
					DeviceCodeURL: "https://oauth2.googleapis.com/device/code",
					TokenURL:      "https://oauth2.googleapis.com/token",
				},
				Models:   []string{"gemini-2.5-pro", "gemini-2.5-flash"},
				Enabled:  true,
				Priority: 8,
				Timeout:  DefaultProviderTimeout,
			},
			"deepseek": {
				Name:     "DeepSeek",
				APIBase:  "https://api.deepseek.com",
				Path:     "/chat/completions",
				Protocol: "chat",
				AuthType: "apikey",
				KeyRef:   "keyring://routecodex/deepseek",
				Models:   []string{"deepseek-chat", "deepseek-reasoner"},
				Enabled:  true,
				Priority: 9,
				Timeout:  DefaultProviderTimeout,
			},
		},
		Routing: RoutingConfig{
			Categories: map[string][]string{
				"longcontext": {"gemini.gemini-2.5-pro", "anthropic.claude-sonnet-4-5"},
				"thinking":    {"deepseek.deepseek-reasoner", "openai-responses.o1"},
			},
			Default: []string{"openai-chat.gpt-4o", "anthropic.claude-sonnet-4-5"},
			Thresholds: ThresholdsConfig{
				Short:       DefaultThresholdShort,
				Medium:      DefaultThresholdMedium,
				Long:        DefaultThresholdLong,
				LongContext: DefaultThresholdLongContext,
			},
			ModelPatterns: []ModelPatternConfig{
				{Pattern: `(?i)-reasoner$|^o1`, Category: "thinking"},
			},
		},
		Resilience: ResilienceConfig{
			RetryMaxAttempts:   DefaultRetryMaxAttempts,
			RetryBaseDelayMs:   DefaultRetryBaseDelayMs,
			RetryMaxDelayMs:    DefaultRetryMaxDelayMs,
			CBEnabled:          true,
			CBFailureThreshold: DefaultCBFailureThreshold,
			CBResetTimeoutSec:  DefaultCBResetTimeout,
			CBHalfOpenMax:      DefaultCBHalfOpenMax,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    DefaultTracingExporter,
			Endpoint:    DefaultTracingEndpoint,
			ServiceName: DefaultTracingServiceName,
			SampleRate:  DefaultTracingSampleRate,
			Insecure:    false,
		},
		Snapshot: SnapshotConfig{
			Enabled:       true,
			Sink:          "zerolog",
			MaxBodyBytes:  DefaultSnapshotMaxBodyBytes,
			RetentionDays: DefaultSnapshotRetentionDays,
		},
	}
}
