package channel

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	logging "github.com/ipfs/go-log/v2"

	"github.com/kevinwklawrence/lounge-realtime/internal/chat"
	"github.com/kevinwklawrence/lounge-realtime/internal/config"
)

var log = logging.Logger("channel")

// ErrNotLive is returned by Send when the channel is not in the Live
// state. Callers use it to fall back to a one-shot request send.
var ErrNotLive = errors.New("realtime channel is not live")

const readDeadline = 60 * time.Second

// IdentityProvider supplies the session identity for authentication.
// It is re-invoked before the single auth retry so a refreshed
// identity can be picked up.
type IdentityProvider func() (sessionID string, self chat.User)

// Options configures a channel client.
type Options struct {
	URL         string
	MaxAttempts int
	BaseDelay   time.Duration
	Identity    IdentityProvider

	// OnState observes every state transition. Called from the
	// client's goroutines without internal locks held.
	OnState func(State)

	// OnEvent receives server-pushed events while Live.
	OnEvent func(chat.Envelope)

	Dialer  *websocket.Dialer
	Metrics *config.ClientMetrics
}

// Client maintains the persistent realtime channel: dial,
// authenticate, pump events, and retry with linear backoff until the
// budget is spent. Connect never surfaces an error to the caller;
// failures resolve into Retrying or PollingFallback.
type Client struct {
	opts Options

	mu          sync.Mutex
	state       State
	attempts    int
	roomID      int64
	conn        *websocket.Conn
	writeMu     sync.Mutex
	retryTimer  *time.Timer
	closed      bool
	authRetried bool
	health      *config.ChannelHealth
}

// NewClient creates a channel client in the Disconnected state.
func NewClient(opts Options) *Client {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.Metrics == nil {
		opts.Metrics = config.NewClientMetrics()
	}
	return &Client{opts: opts, state: StateDisconnected}
}

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Connect starts the channel for the given room context, or re-scopes
// an already running channel to it. It returns immediately; connection
// failures resolve through the state machine, never to the caller.
func (c *Client) Connect(roomID int64) {
	c.mu.Lock()
	if c.closed || c.state.Terminal() {
		c.mu.Unlock()
		return
	}
	if c.state == StateDisconnected {
		c.roomID = roomID
		c.setStateLocked(StateConnecting)
		c.mu.Unlock()
		go c.dial()
		return
	}
	if roomID == c.roomID {
		c.mu.Unlock()
		return
	}
	// Room switch mid-session. A pending dial or retry picks the new
	// room up on its own; an open connection re-authenticates now.
	c.roomID = roomID
	conn := c.conn
	c.mu.Unlock()

	if conn != nil {
		if err := c.authenticate(conn); err != nil {
			log.Debugf("re-auth for room %d failed: %v", roomID, err)
			conn.Close()
		}
	}
}

// Send emits a user action on the channel. It fails fast with
// ErrNotLive when the channel cannot carry it.
func (c *Client) Send(env chat.Envelope) error {
	c.mu.Lock()
	if c.state != StateLive || c.conn == nil {
		c.mu.Unlock()
		return ErrNotLive
	}
	conn := c.conn
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(env); err != nil {
		return err
	}
	if env.Type == chat.EventSendMessage {
		c.opts.Metrics.IncrementMessagesSent()
	}
	return nil
}

// Close shuts the channel down client-side and lands in Disconnected.
// No reconnect is scheduled.
func (c *Client) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.stopRetryTimerLocked()
	conn := c.conn
	c.conn = nil
	c.setStateLocked(StateDisconnected)
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
}

// dial performs one connection attempt.
func (c *Client) dial() {
	conn, _, err := c.opts.Dialer.Dial(c.opts.URL, nil)
	if err != nil {
		log.Debugf("channel dial failed: %v", err)
		c.retry()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.health = config.NewChannelHealth()
	c.authRetried = false
	c.setStateLocked(StateAuthenticating)
	c.mu.Unlock()

	if err := c.authenticate(conn); err != nil {
		log.Debugf("auth send failed: %v", err)
		conn.Close()
		c.retry()
		return
	}

	c.readLoop(conn)
}

// authenticate sends the identity frame for the current room context.
func (c *Client) authenticate(conn *websocket.Conn) error {
	sessionID, self := c.opts.Identity()
	env := chat.Envelope{
		Type:      chat.EventAuthenticate,
		SessionID: sessionID,
		UserID:    self.ID,
		RoomID:    c.room(),
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(env)
}

// room returns the current room context.
func (c *Client) room() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.roomID
}

// readLoop pumps frames from the server. The first frames settle
// authentication; afterwards every push event goes to OnEvent.
func (c *Client) readLoop(conn *websocket.Conn) {
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		if c.health != nil {
			c.health.RecordActivity()
		}
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(10*time.Second))
	})
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		if c.health != nil {
			c.health.RecordPong()
		}
		return nil
	})

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			c.mu.Lock()
			closed := c.closed
			c.conn = nil
			c.mu.Unlock()

			if closed {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) && c.health != nil {
				log.Debugf("channel read error after %v idle: %v", c.health.Idle(), err)
			}
			conn.Close()
			c.retry()
			return
		}

		conn.SetReadDeadline(time.Now().Add(readDeadline))
		if c.health != nil {
			c.health.RecordActivity()
		}

		var env chat.Envelope
		if err := json.Unmarshal(raw, &env); err != nil {
			// One malformed frame must not take the channel down.
			log.Warnf("discarding malformed channel frame: %v", err)
			continue
		}

		if !c.handleFrame(conn, env) {
			return
		}
	}
}

// handleFrame dispatches one decoded frame. It returns false when the
// read loop should stop.
func (c *Client) handleFrame(conn *websocket.Conn, env chat.Envelope) bool {
	switch env.Type {
	case chat.EventAuthSuccess:
		c.mu.Lock()
		c.attempts = 0
		c.setStateLocked(StateLive)
		c.mu.Unlock()
		log.Infof("channel live for room %d", c.room())
		c.emit(env)
		return true

	case chat.EventAuthError:
		c.mu.Lock()
		retried := c.authRetried
		c.authRetried = true
		c.mu.Unlock()

		if !retried {
			// Re-extract identity and retry authentication once.
			log.Debugf("auth rejected (%s), retrying once", env.Reason)
			if err := c.authenticate(conn); err == nil {
				return true
			}
		}
		c.mu.Lock()
		c.conn = nil
		c.mu.Unlock()
		conn.Close()
		c.retry()
		return false

	default:
		c.emit(env)
		return true
	}
}

func (c *Client) emit(env chat.Envelope) {
	if env.Type == chat.EventNewMessage {
		c.opts.Metrics.IncrementMessagesReceived()
	}
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(env)
	}
}

// retry runs the reconnection controller: linear backoff of
// BaseDelay × attempt for MaxAttempts attempts, then permanent
// demotion to polling.
func (c *Client) retry() {
	c.mu.Lock()
	if c.closed || c.state.Terminal() {
		c.mu.Unlock()
		return
	}

	if c.attempts >= c.opts.MaxAttempts {
		// Budget spent. The channel is never redialed this session.
		c.stopRetryTimerLocked()
		c.setStateLocked(StatePollingFallback)
		c.mu.Unlock()
		c.opts.Metrics.SetFallbackActive()
		log.Infof("retry budget exhausted after %d attempts, demoting to polling", c.opts.MaxAttempts)
		return
	}

	c.attempts++
	delay := backoffDelay(c.attempts, c.opts.BaseDelay)
	c.setStateLocked(StateRetrying)
	log.Debugf("scheduling reconnect attempt %d in %v", c.attempts, delay)
	c.retryTimer = time.AfterFunc(delay, func() {
		c.mu.Lock()
		if c.closed || c.state.Terminal() {
			c.mu.Unlock()
			return
		}
		c.setStateLocked(StateConnecting)
		c.mu.Unlock()
		c.opts.Metrics.IncrementReconnects()
		c.dial()
	})
	c.mu.Unlock()
}

// backoffDelay is the linear reconnect schedule: base × attempt.
func backoffDelay(attempt int, base time.Duration) time.Duration {
	return time.Duration(attempt) * base
}

func (c *Client) stopRetryTimerLocked() {
	if c.retryTimer != nil {
		c.retryTimer.Stop()
		c.retryTimer = nil
	}
}

// setStateLocked records the transition and notifies the observer.
// Caller holds c.mu; the observer is invoked asynchronously so it may
// call back into the client.
func (c *Client) setStateLocked(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.opts.OnState != nil {
		go c.opts.OnState(s)
	}
}
