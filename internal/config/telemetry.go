package config

import (
	"sync"
	"time"
)

// ClientMetrics counts what the realtime subsystem has been doing
// since page load. Read-mostly; every writer holds the mutex.
type ClientMetrics struct {
	PollsIssued      int64     `json:"polls_issued"`
	PollErrors       int64     `json:"poll_errors"`
	StaleDiscards    int64     `json:"stale_discards"`
	MessagesSent     int64     `json:"messages_sent"`
	MessagesReceived int64     `json:"messages_received"`
	Reconnects       int64     `json:"reconnects"`
	FallbackActive   bool      `json:"fallback_active"`
	StartTime        time.Time `json:"start_time"`

	mutex sync.Mutex
}

// NewClientMetrics creates metrics anchored at the current time.
func NewClientMetrics() *ClientMetrics {
	return &ClientMetrics{StartTime: time.Now()}
}

func (m *ClientMetrics) IncrementPolls() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.PollsIssued++
}

func (m *ClientMetrics) IncrementPollErrors() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.PollErrors++
}

func (m *ClientMetrics) IncrementStaleDiscards() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.StaleDiscards++
}

func (m *ClientMetrics) IncrementMessagesSent() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.MessagesSent++
}

func (m *ClientMetrics) IncrementMessagesReceived() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.MessagesReceived++
}

func (m *ClientMetrics) IncrementReconnects() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.Reconnects++
}

func (m *ClientMetrics) SetFallbackActive() {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.FallbackActive = true
}

// Snapshot returns a copy safe to hand to display code.
func (m *ClientMetrics) Snapshot() ClientMetrics {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	return ClientMetrics{
		PollsIssued:      m.PollsIssued,
		PollErrors:       m.PollErrors,
		StaleDiscards:    m.StaleDiscards,
		MessagesSent:     m.MessagesSent,
		MessagesReceived: m.MessagesReceived,
		Reconnects:       m.Reconnects,
		FallbackActive:   m.FallbackActive,
		StartTime:        m.StartTime,
	}
}

// ChannelHealth tracks liveness of the realtime channel connection.
type ChannelHealth struct {
	ConnectedAt  time.Time `json:"connected_at"`
	LastActivity time.Time `json:"last_activity"`
	LastPongTime time.Time `json:"last_pong_time"`
	PongsSeen    int64     `json:"pongs_seen"`

	mutex sync.Mutex
}

// NewChannelHealth creates a health tracker for a fresh connection.
func NewChannelHealth() *ChannelHealth {
	now := time.Now()
	return &ChannelHealth{ConnectedAt: now, LastActivity: now}
}

func (h *ChannelHealth) RecordActivity() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.LastActivity = time.Now()
}

func (h *ChannelHealth) RecordPong() {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.LastPongTime = time.Now()
	h.PongsSeen++
}

// Idle reports how long the connection has gone without activity.
func (h *ChannelHealth) Idle() time.Duration {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	return time.Since(h.LastActivity)
}
