package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultClientConfig(t *testing.T) {
	cfg := DefaultClientConfig()

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"reconnect base delay", cfg.ReconnectBaseDelay, 2 * time.Second},
		{"room poll interval", cfg.RoomPollInterval, 3 * time.Second},
		{"lounge poll interval", cfg.LoungePollInterval, 5 * time.Second},
		{"knock poll interval", cfg.KnockPollInterval, 3 * time.Second},
		{"friends poll interval", cfg.FriendsPollInterval, 10 * time.Second},
		{"cleanup interval", cfg.CleanupInterval, 60 * time.Second},
		{"short timeout", cfg.TimeoutShort, 8 * time.Second},
		{"medium timeout", cfg.TimeoutMedium, 10 * time.Second},
		{"long timeout", cfg.TimeoutLong, 15 * time.Second},
		{"typing timeout", cfg.TypingTimeout, 3 * time.Second},
		{"scroll idle delay", cfg.ScrollIdleDelay, time.Second},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %v, want %v", tt.got, tt.want)
			}
		})
	}

	if cfg.MaxReconnectAttempts != 5 {
		t.Errorf("MaxReconnectAttempts = %d, want 5", cfg.MaxReconnectAttempts)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("LOUNGE_API_BASE_URL", "http://example.test:9000")
	t.Setenv("LOUNGE_MAX_RECONNECT_ATTEMPTS", "3")
	t.Setenv("LOUNGE_ROOM_POLL_INTERVAL", "750ms")

	cfg, err := NewLoader("").Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}

	if cfg.APIBaseURL != "http://example.test:9000" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.MaxReconnectAttempts != 3 {
		t.Errorf("MaxReconnectAttempts = %d, want 3", cfg.MaxReconnectAttempts)
	}
	if cfg.RoomPollInterval != 750*time.Millisecond {
		t.Errorf("RoomPollInterval = %v, want 750ms", cfg.RoomPollInterval)
	}
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "client.json")
	body := `{"api_base_url":"http://file.test","max_reconnect_attempts":7}`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := NewLoader(path).Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.APIBaseURL != "http://file.test" {
		t.Errorf("APIBaseURL = %q", cfg.APIBaseURL)
	}
	if cfg.MaxReconnectAttempts != 7 {
		t.Errorf("MaxReconnectAttempts = %d, want 7", cfg.MaxReconnectAttempts)
	}
	// Untouched fields keep their defaults.
	if cfg.RoomPollInterval != 3*time.Second {
		t.Errorf("RoomPollInterval = %v, want default 3s", cfg.RoomPollInterval)
	}
}

func TestLoadMissingFileFallsBackToDefaults(t *testing.T) {
	cfg, err := NewLoader("/nonexistent/client.json").Load()
	if err != nil {
		t.Fatalf("Load() unexpected error: %v", err)
	}
	if cfg.ChannelAddr == "" {
		t.Error("expected default channel address")
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.APIBaseURL = ""
	if err := cfg.validate(); err == nil {
		t.Error("expected error for empty api_base_url")
	}

	cfg = DefaultClientConfig()
	cfg.ReconnectBaseDelay = 0
	if err := cfg.validate(); err == nil {
		t.Error("expected error for zero reconnect_base_delay")
	}
}

func TestChannelURL(t *testing.T) {
	cfg := DefaultClientConfig()
	cfg.ChannelAddr = "chat.test:3000"
	cfg.ChannelPath = ""
	if got, want := cfg.ChannelURL(), "ws://chat.test:3000/ws"; got != want {
		t.Errorf("ChannelURL() = %q, want %q", got, want)
	}
}
