package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment variable read by Load and LoadServer.
const EnvPrefix = "AGENTVOICE"

// Transports accepted by Config.Transport.
const (
	TransportLiveKit   = "livekit"
	TransportWebsocket = "websocket"
)

// Config holds the client configuration.
type Config struct {
	Token        string        `mapstructure:"token"`
	UserID       string        `mapstructure:"user_id"`
	APIBase      string        `mapstructure:"api_base"`
	ManualAudio  bool          `mapstructure:"manual_audio"`
	Transport    string        `mapstructure:"transport"`
	AgentPrefix  string        `mapstructure:"agent_prefix"`
	AutoConnect  bool          `mapstructure:"auto_connect"`
	LogLevel     string        `mapstructure:"log_level"`
	LogFile      string        `mapstructure:"log_file"`
	Playback     string        `mapstructure:"playback"`
	Microphone   string        `mapstructure:"microphone"`
	PingInterval time.Duration `mapstructure:"ping_interval"`
}

// ServerConfig holds the development session server configuration.
type ServerConfig struct {
	Addr             string        `mapstructure:"addr"`
	AgentTokens      []string      `mapstructure:"agent_tokens"`
	RoomURL          string        `mapstructure:"room_url"`
	LiveKitAPIKey    string        `mapstructure:"livekit_api_key"`
	LiveKitAPISecret string        `mapstructure:"livekit_api_secret"`
	RoomPrefix       string        `mapstructure:"room_prefix"`
	TokenTTL         time.Duration `mapstructure:"token_ttl"`
	Mode             string        `mapstructure:"mode"`
	LogLevel         string        `mapstructure:"log_level"`
}

// Load reads the client configuration from a .env file (if present), an
// optional YAML file named by AGENTVOICE_CONFIG and AGENTVOICE_* environment
// variables. Environment variables take precedence.
func Load() (*Config, error) {
	v, err := newViper(map[string]any{
		"token":         "",
		"user_id":       "",
		"api_base":      "http://localhost:8080",
		"manual_audio":  false,
		"transport":     TransportLiveKit,
		"agent_prefix":  "agent-",
		"auto_connect":  false,
		"log_level":     "info",
		"log_file":      "agentvoice.log",
		"playback":      "",
		"microphone":    "",
		"ping_interval": "15s",
	})
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Token == "" {
		return nil, fmt.Errorf("%s_TOKEN environment variable is required", EnvPrefix)
	}
	switch cfg.Transport {
	case TransportLiveKit, TransportWebsocket:
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
	return &cfg, nil
}

// LoadServer reads the session server configuration the same way Load does.
func LoadServer() (*ServerConfig, error) {
	v, err := newViper(map[string]any{
		"addr":               ":8080",
		"agent_tokens":       []string{},
		"room_url":           "ws://localhost:7880",
		"livekit_api_key":    "devkey",
		"livekit_api_secret": "secret",
		"room_prefix":        "voice-",
		"token_ttl":          "1h",
		"mode":               "release",
		"log_level":          "info",
	})
	if err != nil {
		return nil, err
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if len(cfg.AgentTokens) == 0 {
		return nil, fmt.Errorf("%s_AGENT_TOKENS environment variable is required", EnvPrefix)
	}
	if cfg.TokenTTL <= 0 {
		return nil, fmt.Errorf("token_ttl must be positive, got %s", cfg.TokenTTL)
	}
	return &cfg, nil
}

func newViper(defaults map[string]any) (*viper.Viper, error) {
	// godotenv.Load does not overwrite existing env vars
	_ = godotenv.Load()

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path := os.Getenv(EnvPrefix + "_CONFIG"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}
	return v, nil
}
