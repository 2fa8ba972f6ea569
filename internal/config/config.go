package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	logging "github.com/ipfs/go-log/v2"
)

var log = logging.Logger("config")

// ClientConfig holds every knob the realtime subsystem depends on.
// All cadences, timeouts and endpoint addresses are externally
// configurable; nothing in the other packages hardcodes them.
type ClientConfig struct {
	// Endpoints
	APIBaseURL  string `json:"api_base_url"`
	ChannelAddr string `json:"channel_addr"` // host:port of the realtime channel
	ChannelPath string `json:"channel_path"`

	// Reconnection budget
	MaxReconnectAttempts int           `json:"max_reconnect_attempts"`
	ReconnectBaseDelay   time.Duration `json:"reconnect_base_delay"`

	// Poll cadences
	RoomPollInterval    time.Duration `json:"room_poll_interval"`
	LoungePollInterval  time.Duration `json:"lounge_poll_interval"`
	KnockPollInterval   time.Duration `json:"knock_poll_interval"`
	FriendsPollInterval time.Duration `json:"friends_poll_interval"`
	CleanupInterval     time.Duration `json:"cleanup_interval"`

	// Request timeout classes
	TimeoutShort  time.Duration `json:"timeout_short"`
	TimeoutMedium time.Duration `json:"timeout_medium"`
	TimeoutLong   time.Duration `json:"timeout_long"`

	// UI-side timers
	TypingTimeout   time.Duration `json:"typing_timeout"`
	ScrollIdleDelay time.Duration `json:"scroll_idle_delay"`

	// Input limits
	MaxMessageLength int `json:"max_message_length"`
	MaxNameLength    int `json:"max_name_length"`
}

// DefaultClientConfig returns the stock configuration.
func DefaultClientConfig() *ClientConfig {
	return &ClientConfig{
		APIBaseURL:  "http://localhost:8080",
		ChannelAddr: "localhost:3000",
		ChannelPath: "/ws",

		MaxReconnectAttempts: 5,
		ReconnectBaseDelay:   2 * time.Second,

		RoomPollInterval:    3 * time.Second,
		LoungePollInterval:  5 * time.Second,
		KnockPollInterval:   3 * time.Second,
		FriendsPollInterval: 10 * time.Second,
		CleanupInterval:     60 * time.Second,

		TimeoutShort:  8 * time.Second,
		TimeoutMedium: 10 * time.Second,
		TimeoutLong:   15 * time.Second,

		TypingTimeout:   3 * time.Second,
		ScrollIdleDelay: 1 * time.Second,

		MaxMessageLength: 1000,
		MaxNameLength:    50,
	}
}

// Loader handles loading configuration from file and environment.
type Loader struct {
	configPath string
	mutex      sync.Mutex
}

// NewLoader creates a configuration loader. An empty path skips the
// file stage and loads defaults plus environment overrides.
func NewLoader(configPath string) *Loader {
	return &Loader{configPath: configPath}
}

// Load builds the configuration: defaults, then the optional JSON
// file, then LOUNGE_* environment variables.
func (l *Loader) Load() (*ClientConfig, error) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	cfg := DefaultClientConfig()

	if l.configPath != "" {
		if err := l.loadFromFile(cfg); err != nil {
			// Continue with defaults; a missing file is not fatal.
			log.Warnf("config file %s not loaded: %v", l.configPath, err)
		}
	}

	l.loadFromEnv(cfg)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *ClientConfig) validate() error {
	if c.APIBaseURL == "" {
		return fmt.Errorf("api_base_url must not be empty")
	}
	if c.ChannelAddr == "" {
		return fmt.Errorf("channel_addr must not be empty")
	}
	if c.MaxReconnectAttempts < 0 {
		return fmt.Errorf("max_reconnect_attempts must not be negative")
	}
	if c.ReconnectBaseDelay <= 0 {
		return fmt.Errorf("reconnect_base_delay must be positive")
	}
	return nil
}

// ChannelURL returns the websocket URL of the realtime channel.
func (c *ClientConfig) ChannelURL() string {
	path := c.ChannelPath
	if path == "" {
		path = "/ws"
	}
	return "ws://" + c.ChannelAddr + path
}

func (l *Loader) loadFromFile(cfg *ClientConfig) error {
	data, err := os.ReadFile(l.configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	log.Infof("loaded configuration from %s", l.configPath)
	return nil
}

func (l *Loader) loadFromEnv(cfg *ClientConfig) {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setInt := func(key string, dst *int) {
		if v := os.Getenv(key); v != "" {
			if n, err := strconv.Atoi(v); err == nil {
				*dst = n
			}
		}
	}
	setDuration := func(key string, dst *time.Duration) {
		if v := os.Getenv(key); v != "" {
			if d, err := time.ParseDuration(v); err == nil {
				*dst = d
			}
		}
	}

	setString("LOUNGE_API_BASE_URL", &cfg.APIBaseURL)
	setString("LOUNGE_CHANNEL_ADDR", &cfg.ChannelAddr)
	setString("LOUNGE_CHANNEL_PATH", &cfg.ChannelPath)

	setInt("LOUNGE_MAX_RECONNECT_ATTEMPTS", &cfg.MaxReconnectAttempts)
	setDuration("LOUNGE_RECONNECT_BASE_DELAY", &cfg.ReconnectBaseDelay)

	setDuration("LOUNGE_ROOM_POLL_INTERVAL", &cfg.RoomPollInterval)
	setDuration("LOUNGE_LOUNGE_POLL_INTERVAL", &cfg.LoungePollInterval)
	setDuration("LOUNGE_KNOCK_POLL_INTERVAL", &cfg.KnockPollInterval)
	setDuration("LOUNGE_FRIENDS_POLL_INTERVAL", &cfg.FriendsPollInterval)
	setDuration("LOUNGE_CLEANUP_INTERVAL", &cfg.CleanupInterval)

	setDuration("LOUNGE_TIMEOUT_SHORT", &cfg.TimeoutShort)
	setDuration("LOUNGE_TIMEOUT_MEDIUM", &cfg.TimeoutMedium)
	setDuration("LOUNGE_TIMEOUT_LONG", &cfg.TimeoutLong)

	setDuration("LOUNGE_TYPING_TIMEOUT", &cfg.TypingTimeout)
	setDuration("LOUNGE_SCROLL_IDLE_DELAY", &cfg.ScrollIdleDelay)

	setInt("LOUNGE_MAX_MESSAGE_LENGTH", &cfg.MaxMessageLength)
	setInt("LOUNGE_MAX_NAME_LENGTH", &cfg.MaxNameLength)
}

// Watch reloads the configuration whenever the file changes and hands
// the result to callback. It returns a stop function.
func (l *Loader) Watch(callback func(*ClientConfig)) (func(), error) {
	if l.configPath == "" {
		return func() {}, nil
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create config watcher: %w", err)
	}
	if err := watcher.Add(l.configPath); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", l.configPath, err)
	}

	go func() {
		for {
			select {
			case ev, ok := <-watcher.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := l.Load()
				if err != nil {
					log.Errorf("config reload failed: %v", err)
					continue
				}
				log.Info("configuration file changed, reloading")
				callback(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.Warnf("config watcher error: %v", err)
			}
		}
	}()

	return func() { watcher.Close() }, nil
}
