package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	BackendOllama    = "ollama"
	BackendAnthropic = "anthropic"
	BackendGrok      = "grok"
	BackendOpenAI    = "openai"
	BackendAgent     = "agent"
)

// Voice processing modes
const (
	VoiceMock    = "mock"
	VoiceWhisper = "whisper"
)

// Backends lists the backend names accepted by --backend and /switch.
var Backends = []string{BackendOllama, BackendAnthropic, BackendGrok, BackendOpenAI}

// Config holds application configuration
type Config struct {
	Backend   string `yaml:"backend"`
	Agent     string `yaml:"agent,omitempty"` // catalog agent used when Backend is "agent"
	SessionID string `yaml:"-"`
	Debug     bool   `yaml:"debug"`
	DataDir   string `yaml:"data_dir"` // database, logs and temp blobs live here

	Ollama    OllamaConfig    `yaml:"ollama"`
	Anthropic AnthropicConfig `yaml:"anthropic"`
	OpenAI    OpenAIConfig    `yaml:"openai"`
	Grok      OpenAIConfig    `yaml:"grok"`
	Voice     VoiceConfig     `yaml:"voice"`
	Cache     CacheConfig     `yaml:"cache"`
	MCP       MCPConfig       `yaml:"mcp"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
}

type OllamaConfig struct {
	URL   string `yaml:"url"`
	Model string `yaml:"model"` // "model:version", e.g. "llama3:latest"
}

type AnthropicConfig struct {
	URL       string `yaml:"url"`
	Model     string `yaml:"model"`
	MaxTokens int    `yaml:"max_tokens"`
	APIKeyEnv string `yaml:"api_key_env"`
	// MaxToolRounds bounds the tool_use / tool_result exchange per message.
	MaxToolRounds int `yaml:"max_tool_rounds"`
}

// OpenAIConfig covers any OpenAI-compatible chat completions endpoint.
type OpenAIConfig struct {
	URL       string `yaml:"url"`
	Model     string `yaml:"model"`
	APIKeyEnv string `yaml:"api_key_env"`
}

type VoiceConfig struct {
	Mode         string        `yaml:"mode"` // "mock" | "whisper"
	MockDelay    time.Duration `yaml:"mock_delay"`
	MockResponse string        `yaml:"mock_response"`
	WhisperURL   string        `yaml:"whisper_url"`
	WhisperModel string        `yaml:"whisper_model"`
	APIKeyEnv    string        `yaml:"api_key_env"`
	Language     string        `yaml:"language,omitempty"`
}

type CacheConfig struct {
	Enabled     bool          `yaml:"enabled"`
	ResponseTTL time.Duration `yaml:"response_ttl"`
	BlobTTL     time.Duration `yaml:"blob_ttl"`
	MaxBlobSize int64         `yaml:"max_blob_size"`
}

// MCPConfig holds MCP tool support settings. Servers registered in the
// catalog are connected in addition to the ones listed here.
type MCPConfig struct {
	Enabled       bool     `yaml:"enabled"`
	LocalServers  []string `yaml:"local_servers"`  // commands for stdio MCP servers
	RemoteServers []string `yaml:"remote_servers"` // http(s):// or ws(s):// URLs
}

// Defaults returns a config that works against a local Ollama.
func Defaults() Config {
	return Config{
		Backend: BackendOllama,
		DataDir: DefaultDataDir(),
		Ollama: OllamaConfig{
			URL:   "http://localhost:11434",
			Model: "llama3:latest",
		},
		Anthropic: AnthropicConfig{
			URL:           "https://api.anthropic.com/v1/messages",
			Model:         "claude-sonnet-4-20250514",
			MaxTokens:     1024,
			APIKeyEnv:     "ANTHROPIC_API_KEY",
			MaxToolRounds: 5,
		},
		OpenAI: OpenAIConfig{
			URL:       "https://api.openai.com/v1/chat/completions",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
		},
		Grok: OpenAIConfig{
			URL:       "https://api.x.ai/v1/chat/completions",
			Model:     "grok-2-latest",
			APIKeyEnv: "GROK_API_KEY",
		},
		Voice: VoiceConfig{
			Mode:         VoiceMock,
			MockDelay:    1500 * time.Millisecond,
			MockResponse: "I received your voice message. Voice processing is simulated in this build.",
			WhisperURL:   "https://api.groq.com/openai/v1",
			WhisperModel: "whisper-large-v3",
			APIKeyEnv:    "GROQ_API_KEY",
		},
		Cache: CacheConfig{
			Enabled:     false,
			ResponseTTL: 10 * time.Minute,
			BlobTTL:     24 * time.Hour,
			MaxBlobSize: 20 << 20,
		},
		RequestTimeout: 60 * time.Second,
	}
}

// DefaultDataDir is ~/.agentconsole, or ./.agentconsole without a home.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".agentconsole"
	}
	return filepath.Join(home, ".agentconsole")
}

// DefaultConfigPath is config.yaml inside the default data directory.
func DefaultConfigPath() string {
	return filepath.Join(DefaultDataDir(), "config.yaml")
}

// Load reads a YAML config on top of Defaults. A missing file is not an
// error when path is the default location.
func Load(path string) (Config, error) {
	cfg := Defaults()
	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && !explicit {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg as YAML, creating parent directories.
func Save(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// Validate checks that cfg can be used to start a console.
func Validate(cfg Config) error {
	switch cfg.Backend {
	case BackendOllama, BackendAnthropic, BackendGrok, BackendOpenAI:
	case BackendAgent:
		if cfg.Agent == "" {
			return fmt.Errorf("backend %q requires an agent name", BackendAgent)
		}
	default:
		return fmt.Errorf("unknown backend: %s", cfg.Backend)
	}

	if cfg.DataDir == "" {
		return fmt.Errorf("data_dir must not be empty")
	}

	switch cfg.Voice.Mode {
	case VoiceMock:
		if cfg.Voice.MockDelay < 0 {
			return fmt.Errorf("voice.mock_delay must not be negative")
		}
	case VoiceWhisper:
		if cfg.Voice.WhisperURL == "" {
			return fmt.Errorf("voice.whisper_url is required in whisper mode")
		}
	default:
		return fmt.Errorf("unknown voice mode: %s", cfg.Voice.Mode)
	}

	if cfg.Anthropic.MaxTokens <= 0 {
		return fmt.Errorf("anthropic.max_tokens must be positive")
	}
	if cfg.Anthropic.MaxToolRounds < 0 {
		return fmt.Errorf("anthropic.max_tool_rounds must not be negative")
	}
	if cfg.Cache.MaxBlobSize < 0 {
		return fmt.Errorf("cache.max_blob_size must not be negative")
	}
	if cfg.RequestTimeout < 0 {
		return fmt.Errorf("request_timeout must not be negative")
	}
	return nil
}

// DBPath is the SQLite database location.
func (c Config) DBPath() string {
	return filepath.Join(c.DataDir, "agentconsole.db")
}

// LogDir is where rotating log, trace and metric files are written.
func (c Config) LogDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// BlobDir holds temporary attachment blobs.
func (c Config) BlobDir() string {
	return filepath.Join(c.DataDir, "blobs")
}
