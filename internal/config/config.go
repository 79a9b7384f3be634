// SPDX-License-Identifier: MIT

// Package config loads and validates parlord configuration from the
// environment. Precedence: ENV > defaults; there is no config file.
package config

import (
	"errors"
	"fmt"
	"time"
)

// Voices maps the public voice selector to the TTS provider's voice id.
// Matches the voices the bot binary understands.
var Voices = map[string]string{
	"female": "OYTbf65OHHFELVut7v2H", // Hope
	"male":   "pwMBn0SsmN1220Aorv15", // Matt
}

// Flows lists the conversation-flow variants the bot binary ships with.
var Flows = map[string]bool{
	"food-order":             true,
	"restaurant-reservation": true,
}

const (
	DefaultVoice = "female"
	DefaultFlow  = "food-order"
)

var (
	ErrMissingAPIKey = errors.New("config: PARLOR_DAILY_API_KEY is required")
	ErrInvalidValue  = errors.New("config: invalid value")
)

// AppConfig is the effective daemon configuration.
type AppConfig struct {
	// HTTP server
	ListenAddr   string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Room provider (Daily REST API)
	DailyAPIKey  string
	DailyAPIBase string
	RoomTTL      time.Duration

	// Worker processes
	BotPath         string
	StartupWindow   time.Duration // worker must survive this long to be considered healthy
	GraceTimeout    time.Duration // SIGTERM -> SIGKILL window per worker
	MaxSessions     int           // cap on concurrently registered rooms (0 = unlimited)
	ShutdownTimeout time.Duration // overall drain deadline on SIGTERM/SIGINT

	// HTTP surface policy
	RateLimitRPM int
	CORSEnabled  bool

	// Logging
	LogLevel string
}

// FromEnv assembles the configuration from PARLOR_* environment variables.
func FromEnv() AppConfig {
	return AppConfig{
		ListenAddr:   ParseString("PARLOR_LISTEN", ":7860"),
		ReadTimeout:  ParseDuration("PARLOR_READ_TIMEOUT", 15*time.Second),
		WriteTimeout: ParseDuration("PARLOR_WRITE_TIMEOUT", 30*time.Second),

		DailyAPIKey:  ParseString("PARLOR_DAILY_API_KEY", ""),
		DailyAPIBase: ParseString("PARLOR_DAILY_API_BASE", "https://api.daily.co/v1"),
		RoomTTL:      ParseDuration("PARLOR_ROOM_TTL", 5*time.Minute),

		BotPath:         ParseString("PARLOR_BOT_PATH", "parlor-bot"),
		StartupWindow:   ParseDuration("PARLOR_STARTUP_WINDOW", 2*time.Second),
		GraceTimeout:    ParseDuration("PARLOR_GRACE_TIMEOUT", 5*time.Second),
		MaxSessions:     ParseInt("PARLOR_MAX_SESSIONS", 0),
		ShutdownTimeout: ParseDuration("PARLOR_SHUTDOWN_TIMEOUT", 20*time.Second),

		RateLimitRPM: ParseInt("PARLOR_RATE_LIMIT_RPM", 120),
		CORSEnabled:  ParseBool("PARLOR_CORS_ENABLED", true),

		LogLevel: ParseString("PARLOR_LOG_LEVEL", "info"),
	}
}

// Validate rejects configurations that cannot run. Called once at startup
// before any remote call is made.
func (c AppConfig) Validate() error {
	if c.DailyAPIKey == "" {
		return ErrMissingAPIKey
	}
	if c.BotPath == "" {
		return fmt.Errorf("%w: PARLOR_BOT_PATH must not be empty", ErrInvalidValue)
	}
	if c.RoomTTL <= 0 {
		return fmt.Errorf("%w: PARLOR_ROOM_TTL must be positive", ErrInvalidValue)
	}
	if c.GraceTimeout <= 0 {
		return fmt.Errorf("%w: PARLOR_GRACE_TIMEOUT must be positive", ErrInvalidValue)
	}
	if c.StartupWindow < 0 {
		return fmt.Errorf("%w: PARLOR_STARTUP_WINDOW must not be negative", ErrInvalidValue)
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: PARLOR_SHUTDOWN_TIMEOUT must be positive", ErrInvalidValue)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("%w: PARLOR_MAX_SESSIONS must not be negative", ErrInvalidValue)
	}
	return nil
}

// ResolveVoice validates a requested voice selector and applies the default.
func ResolveVoice(voice string) (selector, voiceID string, err error) {
	if voice == "" {
		voice = DefaultVoice
	}
	id, ok := Voices[voice]
	if !ok {
		return "", "", fmt.Errorf("%w: unknown voice %q", ErrInvalidValue, voice)
	}
	return voice, id, nil
}

// ResolveFlow validates a requested flow variant and applies the default.
func ResolveFlow(flow string) (string, error) {
	if flow == "" {
		flow = DefaultFlow
	}
	if !Flows[flow] {
		return "", fmt.Errorf("%w: unknown flow %q", ErrInvalidValue, flow)
	}
	return flow, nil
}
