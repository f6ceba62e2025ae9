package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/haruue-net/wgveil/internal/wgerr"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "wgveild.json5")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write config fixture: %v", err)
	}
	return path
}

func TestLoad_JSON5WithCommentsAndTrailingCommas(t *testing.T) {
	path := writeConfig(t, `{
		// a loose, commented JSON5 document, matching the teacher's own
		// ClientConfig loading convention
		listen: "127.0.0.1:51000",
		forward: "127.0.0.1:51001",
		xor_key: "shared secret",
		thread_mode: "dual",
		idle_timeout_seconds: 60,
		handshake_timeout_millis: 3000,
	}`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Listen != "127.0.0.1:51000" || cfg.Forward != "127.0.0.1:51001" {
		t.Fatalf("unexpected endpoints: %+v", cfg)
	}
	if cfg.ThreadMode != "dual" {
		t.Fatalf("thread_mode = %q, want dual", cfg.ThreadMode)
	}
}

func TestLoad_DefaultsApplyWhenFieldsOmitted(t *testing.T) {
	path := writeConfig(t, `{ listen: "127.0.0.1:0", forward: "127.0.0.1:1" }`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defaults := Defaults()
	if cfg.IdleTimeoutSeconds != defaults.IdleTimeoutSeconds {
		t.Fatalf("idle_timeout_seconds = %d, want default %d", cfg.IdleTimeoutSeconds, defaults.IdleTimeoutSeconds)
	}
	if cfg.ThreadMode != "auto" {
		t.Fatalf("thread_mode = %q, want auto", cfg.ThreadMode)
	}
}

func TestLoad_RejectsMissingListen(t *testing.T) {
	path := writeConfig(t, `{ forward: "127.0.0.1:1" }`)

	_, err := Load(path)
	if err == nil {
		t.Fatalf("expected validation error for missing listen")
	}
	var invalid wgerr.ErrInvalidConfig
	if !errors.As(err, &invalid) {
		t.Fatalf("error = %v, want wgerr.ErrInvalidConfig", err)
	}
	if invalid.Field != "listen" {
		t.Fatalf("invalid field = %q, want listen", invalid.Field)
	}
}

func TestLoad_RejectsOutOfRangeDummyLength(t *testing.T) {
	path := writeConfig(t, `{
		listen: "127.0.0.1:0",
		forward: "127.0.0.1:1",
		max_dummy_length_data: 999999,
	}`)

	if _, err := Load(path); err == nil {
		t.Fatalf("expected validation error for out-of-range max_dummy_length_data")
	}
}

func TestObfuscateParams_EmptyKeyStaysNil(t *testing.T) {
	cfg := Defaults()
	cfg.Listen, cfg.Forward = "127.0.0.1:0", "127.0.0.1:1"
	params := cfg.ObfuscateParams()
	if params.Key != nil {
		t.Fatalf("expected nil key for an unset xor_key, got %q", params.Key)
	}
}
