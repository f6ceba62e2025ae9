// Package config defines the relay's configuration surface and loads it
// through viper, registering flynn/json5 so config files can use the
// looser JSON5 grammar (trailing commas, comments) the teacher's own
// ClientConfig-style JSON loading assumes. None of these fields is
// interpreted by the core (internal/obfuscate, internal/session,
// internal/pipeline); they are read-only inputs to it, per spec.md §6.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"github.com/flynn/json5"
	"github.com/spf13/viper"

	"github.com/haruue-net/wgveil/internal/obfuscate"
	"github.com/haruue-net/wgveil/internal/wgerr"
)

// RelayConfig is the full configuration surface from spec.md §6: the
// pre-shared XOR key, dummy-length cap, timeouts, thread mode, endpoints,
// log level, and masking handler selection.
type RelayConfig struct {
	// Listen is the UDP endpoint the relay listens on (the client side).
	Listen string `json:"listen" mapstructure:"listen"`
	// Forward is the upstream WireGuard server endpoint (the server side).
	Forward string `json:"forward" mapstructure:"forward"`

	// XORKey is the pre-shared obfuscation key. Never logged in full;
	// see internal/obfuscate.KeyFingerprint for the diagnostics form.
	XORKey string `json:"xor_key" mapstructure:"xor_key"`

	// MaxDummyLengthData caps random padding added to Cookie/Data
	// packets; 0 disables data-packet padding entirely.
	MaxDummyLengthData int `json:"max_dummy_length_data" mapstructure:"max_dummy_length_data"`

	// IdleTimeoutSeconds is the peer entry idle eviction threshold.
	IdleTimeoutSeconds int `json:"idle_timeout_seconds" mapstructure:"idle_timeout_seconds"`
	// HandshakeTimeoutMillis is the Initiation→Response handshake window.
	HandshakeTimeoutMillis int `json:"handshake_timeout_millis" mapstructure:"handshake_timeout_millis"`

	// ThreadMode selects "auto", "single", or "dual"; "auto" mirrors the
	// original's core-count-based selection (SPEC_FULL.md §4 item 2).
	ThreadMode string `json:"thread_mode" mapstructure:"thread_mode"`

	// LogLevel is one of "debug", "info", "warn", "error".
	LogLevel string `json:"log_level" mapstructure:"log_level"`

	// MaskingHandler names the registered masking scheme to use, or ""
	// for no masking (direct obfuscated UDP). Concrete schemes are out of
	// scope for the core; see internal/masking.
	MaskingHandler string `json:"masking_handler" mapstructure:"masking_handler"`

	// ReusePort enables SO_REUSEPORT on the listen socket (Linux only).
	ReusePort bool `json:"reuse_port" mapstructure:"reuse_port"`
}

// IdleTimeout and HandshakeTimeout convert the config's integer fields to
// time.Duration for use by internal/session.
func (c *RelayConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutSeconds) * time.Second
}

func (c *RelayConfig) HandshakeTimeout() time.Duration {
	return time.Duration(c.HandshakeTimeoutMillis) * time.Millisecond
}

// Defaults matches the constants spec.md names but does not pin values
// (those are deployment-specific); these are sane starting points only.
func Defaults() *RelayConfig {
	return &RelayConfig{
		MaxDummyLengthData:     0,
		IdleTimeoutSeconds:     180,
		HandshakeTimeoutMillis: 5000,
		ThreadMode:             "auto",
		LogLevel:               "info",
	}
}

// Load reads a JSON5 configuration file at path into a RelayConfig,
// applying Defaults() first. The JSON5 document is decoded via
// flynn/json5 into a generic map and re-encoded before being fed to
// viper, since viper has no built-in JSON5 support. viper reads only that
// file; no environment variables or flags override its values.
func Load(path string) (*RelayConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	var generic map[string]any
	if err := json5.Unmarshal(raw, &generic); err != nil {
		return nil, fmt.Errorf("parse json5 config %s: %w", path, err)
	}

	reencoded, err := json5.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("re-encode config %s: %w", path, err)
	}

	v := viper.New()
	v.SetConfigType("json")
	if err := v.ReadConfig(bytes.NewReader(reencoded)); err != nil {
		return nil, fmt.Errorf("load config into viper: %w", err)
	}

	cfg := Defaults()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded configuration is self-consistent before the
// relay starts, returning wgerr.ErrInvalidConfig for the first problem
// found.
func (c *RelayConfig) Validate() error {
	if c.Listen == "" {
		return wgerr.ErrInvalidConfig{Field: "listen", Reason: "must not be empty"}
	}
	if c.Forward == "" {
		return wgerr.ErrInvalidConfig{Field: "forward", Reason: "must not be empty"}
	}
	if c.IdleTimeoutSeconds <= 0 {
		return wgerr.ErrInvalidConfig{Field: "idle_timeout_seconds", Reason: "must be positive"}
	}
	if c.HandshakeTimeoutMillis <= 0 {
		return wgerr.ErrInvalidConfig{Field: "handshake_timeout_millis", Reason: "must be positive"}
	}
	if c.MaxDummyLengthData < 0 || c.MaxDummyLengthData > obfuscate.MaxDummyLengthTotal {
		return wgerr.ErrInvalidConfig{Field: "max_dummy_length_data", Reason: "out of range"}
	}
	switch c.ThreadMode {
	case "auto", "single", "dual":
	default:
		return wgerr.ErrInvalidConfig{Field: "thread_mode", Reason: "must be auto, single, or dual"}
	}
	return nil
}

// ObfuscateParams builds the core codec's Params from the loaded config.
func (c *RelayConfig) ObfuscateParams() *obfuscate.Params {
	var key []byte
	if len(c.XORKey) > 0 {
		key = []byte(c.XORKey)
	}
	return &obfuscate.Params{
		Key:                key,
		MaxDummyLengthData: c.MaxDummyLengthData,
	}
}
