package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/kevinwklawrence/lounge-realtime/internal/chat"
	"github.com/kevinwklawrence/lounge-realtime/internal/config"
)

var log = logging.Logger("api")

// DecodeError marks a malformed response payload. Callers degrade the
// affected panel to an empty state instead of propagating it.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("malformed response from %s: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// RejectedError carries an authoritative server rejection. The
// message is surfaced to the user verbatim and never retried.
type RejectedError struct {
	Endpoint string
	Message  string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("%s rejected: %s", e.Endpoint, e.Message)
}

// Client issues request/response calls against the persistence API.
// Every call is time-boxed with a per-endpoint timeout class; a
// timeout or network error is returned as-is so the poller can keep
// its last good snapshot.
type Client struct {
	baseURL   string
	sessionID string
	http      *http.Client

	timeoutShort  time.Duration
	timeoutMedium time.Duration
	timeoutLong   time.Duration
}

// NewClient creates an API client for one browser session.
func NewClient(cfg *config.ClientConfig, sessionID string) *Client {
	return &Client{
		baseURL:       cfg.APIBaseURL,
		sessionID:     sessionID,
		http:          &http.Client{},
		timeoutShort:  cfg.TimeoutShort,
		timeoutMedium: cfg.TimeoutMedium,
		timeoutLong:   cfg.TimeoutLong,
	}
}

// envelope is the common response frame of every endpoint.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (c *Client) get(ctx context.Context, timeout time.Duration, endpoint string, query url.Values, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	u := c.baseURL + endpoint
	if query == nil {
		query = url.Values{}
	}
	query.Set("session_id", c.sessionID)
	u += "?" + query.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", endpoint, err)
	}
	return c.do(req, endpoint, out)
}

func (c *Client) post(ctx context.Context, timeout time.Duration, endpoint string, body any, out any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to encode request for %s: %w", endpoint, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to build request for %s: %w", endpoint, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Session-ID", c.sessionID)
	return c.do(req, endpoint, out)
}

func (c *Client) do(req *http.Request, endpoint string, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request to %s failed: %w", endpoint, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("failed to read response from %s: %w", endpoint, err)
	}
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%s returned %s", endpoint, resp.Status)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		log.Warnf("malformed payload from %s: %v", endpoint, err)
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	if env.Status != "success" {
		return &RejectedError{Endpoint: endpoint, Message: env.Message}
	}
	if out == nil {
		return nil
	}
	if len(env.Data) == 0 {
		// Empty result, leave out at its zero value.
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return &DecodeError{Endpoint: endpoint, Err: err}
	}
	return nil
}

// FetchRoster returns the occupants of a room.
func (c *Client) FetchRoster(ctx context.Context, roomID int64) ([]chat.PresenceEntry, error) {
	var roster []chat.PresenceEntry
	q := url.Values{"room_id": {strconv.FormatInt(roomID, 10)}}
	if err := c.get(ctx, c.timeoutShort, "/api/rooms/users", q, &roster); err != nil {
		return nil, err
	}
	return roster, nil
}

// FetchRoomMessages returns the ordered message list of a room.
// The server is authoritative for ordering.
func (c *Client) FetchRoomMessages(ctx context.Context, roomID int64) ([]chat.Message, error) {
	var messages []chat.Message
	q := url.Values{"room_id": {strconv.FormatInt(roomID, 10)}}
	if err := c.get(ctx, c.timeoutShort, "/api/rooms/messages", q, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendRoomMessage posts a room message over plain HTTP. Used as the
// one-shot path when the realtime channel is not live.
func (c *Client) SendRoomMessage(ctx context.Context, roomID int64, body, replyTo string) error {
	payload := map[string]any{"room_id": roomID, "body": body}
	if replyTo != "" {
		payload["reply_to"] = replyTo
	}
	return c.post(ctx, c.timeoutMedium, "/api/rooms/send", payload, nil)
}

// FetchConversation returns the ordered history of a private or
// whisper conversation.
func (c *Client) FetchConversation(ctx context.Context, key chat.ConversationKey) ([]chat.Message, error) {
	var messages []chat.Message
	q := url.Values{
		"peer_id": {key.PeerID},
		"kind":    {string(key.Kind)},
	}
	if key.Kind == chat.ConversationWhisper {
		q.Set("room_id", strconv.FormatInt(key.RoomID, 10))
	}
	if err := c.get(ctx, c.timeoutMedium, "/api/messages/conversation", q, &messages); err != nil {
		return nil, err
	}
	return messages, nil
}

// SendPrivateMessage delivers a private or whisper message. The
// server echoes nothing; the caller must refetch the conversation.
func (c *Client) SendPrivateMessage(ctx context.Context, key chat.ConversationKey, body string) error {
	payload := map[string]any{
		"peer_id": key.PeerID,
		"kind":    string(key.Kind),
		"body":    body,
	}
	if key.Kind == chat.ConversationWhisper {
		payload["room_id"] = key.RoomID
	}
	return c.post(ctx, c.timeoutMedium, "/api/messages/send", payload, nil)
}

// FetchConversations returns the conversation list with
// server-computed unread counts.
func (c *Client) FetchConversations(ctx context.Context) ([]chat.ConversationSummary, error) {
	var list []chat.ConversationSummary
	if err := c.get(ctx, c.timeoutMedium, "/api/messages/list", nil, &list); err != nil {
		return nil, err
	}
	return list, nil
}

// MarkConversationRead resets the server-side unread counter for one
// conversation. The client never decrements counters speculatively.
func (c *Client) MarkConversationRead(ctx context.Context, key chat.ConversationKey) error {
	payload := map[string]any{"peer_id": key.PeerID, "kind": string(key.Kind)}
	if key.Kind == chat.ConversationWhisper {
		payload["room_id"] = key.RoomID
	}
	return c.post(ctx, c.timeoutMedium, "/api/messages/read", payload, nil)
}

// FetchKnocks returns pending admission requests for a hosted room.
func (c *Client) FetchKnocks(ctx context.Context, roomID int64) ([]chat.Knock, error) {
	var knocks []chat.Knock
	q := url.Values{"room_id": {strconv.FormatInt(roomID, 10)}}
	if err := c.get(ctx, c.timeoutShort, "/api/rooms/knocks", q, &knocks); err != nil {
		return nil, err
	}
	return knocks, nil
}

// Knock requests admission into a gated room.
func (c *Client) Knock(ctx context.Context, roomID int64) error {
	return c.post(ctx, c.timeoutMedium, "/api/rooms/knock", map[string]any{"room_id": roomID}, nil)
}

// FetchOnlineUsers returns the lounge-wide presence list.
func (c *Client) FetchOnlineUsers(ctx context.Context) ([]chat.PresenceEntry, error) {
	var online []chat.PresenceEntry
	if err := c.get(ctx, c.timeoutMedium, "/api/lounge/online", nil, &online); err != nil {
		return nil, err
	}
	return online, nil
}

// FetchRooms returns the lounge room list.
func (c *Client) FetchRooms(ctx context.Context) ([]chat.Room, error) {
	var rooms []chat.Room
	if err := c.get(ctx, c.timeoutLong, "/api/lounge/rooms", nil, &rooms); err != nil {
		return nil, err
	}
	return rooms, nil
}

// CheckRoomKey reports whether the session still holds a valid key
// for a password-protected room.
func (c *Client) CheckRoomKey(ctx context.Context, roomID int64) (bool, error) {
	var result struct {
		Valid bool `json:"valid"`
	}
	q := url.Values{"room_id": {strconv.FormatInt(roomID, 10)}}
	if err := c.get(ctx, c.timeoutShort, "/api/rooms/key", q, &result); err != nil {
		return false, err
	}
	return result.Valid, nil
}

// TriggerCleanup asks the server to purge inactive presence entries.
// The client re-polls afterwards; it does not purge locally.
func (c *Client) TriggerCleanup(ctx context.Context) error {
	return c.post(ctx, c.timeoutLong, "/api/lounge/cleanup", map[string]any{}, nil)
}

// FetchProfile returns display metadata for one user.
func (c *Client) FetchProfile(ctx context.Context, userID string) (*chat.User, error) {
	var user chat.User
	q := url.Values{"user_id": {userID}}
	if err := c.get(ctx, c.timeoutMedium, "/api/users/profile", q, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
