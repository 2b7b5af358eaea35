package config

import (
	"os"
	"strconv"
	"time"

	"github.com/kdhillon/promptdeck/internal/prompt"
)

// Config holds all runtime configuration, loaded from environment variables.
type Config struct {
	// Generation service connection
	ServiceURL string // websocket endpoint of the generation service
	ServiceKey string // bearer token, empty disables auth

	// Server
	Port int

	// Playback
	TempoBPM    int           // starting tempo, clamped to [60,200]
	ChunkFormat string        // expected chunk payload format: pcm16, mp3
	StartBuffer time.Duration // audio buffered before playback starts
	LevelPeriod time.Duration // level meter emission period

	// Update coalescing
	UpdateInterval time.Duration // min interval between forwarded prompt/tempo updates

	// Reconnect behavior
	ReconnectBase  time.Duration // first retry delay
	ReconnectMax   time.Duration // retry delay cap
	ReconnectTries int           // attempts before giving up
	ReconnectGrace time.Duration // stable-connection time that resets the counter

	// Local output
	DeviceOutput bool // play through the default PortAudio device
}

// Load reads configuration from environment variables with sane defaults.
// Out-of-range tunables are clamped, not rejected.
func Load() Config {
	cfg := Config{
		ServiceURL: envStr("DECK_SERVICE_URL", "ws://localhost:9040/session"),
		ServiceKey: envStr("DECK_SERVICE_KEY", ""),

		Port: envInt("DECK_PORT", 8080),

		TempoBPM:    prompt.ClampTempo(envInt("DECK_TEMPO", 120)),
		ChunkFormat: envStr("DECK_CHUNK_FORMAT", "pcm16"),
		StartBuffer: envDur("DECK_START_BUFFER", 600*time.Millisecond),
		LevelPeriod: envDur("DECK_LEVEL_PERIOD", 50*time.Millisecond),

		UpdateInterval: envDur("DECK_UPDATE_INTERVAL", 30*time.Millisecond),

		ReconnectBase:  envDur("DECK_RECONNECT_BASE", 500*time.Millisecond),
		ReconnectMax:   envDur("DECK_RECONNECT_MAX", 10*time.Second),
		ReconnectTries: envInt("DECK_RECONNECT_TRIES", 5),
		ReconnectGrace: envDur("DECK_RECONNECT_GRACE", 5*time.Second),

		DeviceOutput: envBool("DECK_DEVICE_OUTPUT", false),
	}

	if cfg.StartBuffer < 0 {
		cfg.StartBuffer = 0
	}
	if cfg.UpdateInterval < 0 {
		cfg.UpdateInterval = 0
	}
	if cfg.ReconnectTries < 0 {
		cfg.ReconnectTries = 0
	}
	return cfg
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envDur(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
