package session

import (
	"context"
	"fmt"
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/kevinwklawrence/lounge-realtime/internal/chat"
	"github.com/kevinwklawrence/lounge-realtime/internal/config"
)

var log = logging.Logger("session")

// Messenger is the slice of the persistence API the session manager
// drives directly. *api.Client satisfies it.
type Messenger interface {
	FetchConversation(ctx context.Context, key chat.ConversationKey) ([]chat.Message, error)
	SendPrivateMessage(ctx context.Context, key chat.ConversationKey, body string) error
	MarkConversationRead(ctx context.Context, key chat.ConversationKey) error
	FetchProfile(ctx context.Context, userID string) (*chat.User, error)
	SendRoomMessage(ctx context.Context, roomID int64, body, replyTo string) error
	Knock(ctx context.Context, roomID int64) error
}

// Sender is the push side of the active transport; failures tell the
// manager to fall back to one-shot request sends.
type Sender interface {
	Send(env chat.Envelope) error
}

// Notifier is the capability interface the rendering layer supplies.
// Every method is fire-and-forget display work; supply NopNotifier
// for anything headless.
type Notifier interface {
	RoomUpdated(snapshot RoomSnapshot)
	ConversationUpdated(snapshot ConversationSnapshot)
	ConversationListUpdated(list []chat.ConversationSummary)
	LoungeUpdated(rooms []chat.Room, online []chat.PresenceEntry)
	KnocksUpdated(knocks []chat.Knock)
	RoomKeyChecked(roomID int64, valid bool)
	PanelFailed(panel string, err error)
	Toast(text string)
}

// NopNotifier ignores all display callbacks.
type NopNotifier struct{}

func (NopNotifier) RoomUpdated(RoomSnapshot)                           {}
func (NopNotifier) ConversationUpdated(ConversationSnapshot)           {}
func (NopNotifier) ConversationListUpdated([]chat.ConversationSummary) {}
func (NopNotifier) LoungeUpdated([]chat.Room, []chat.PresenceEntry)    {}
func (NopNotifier) KnocksUpdated([]chat.Knock)                         {}
func (NopNotifier) RoomKeyChecked(int64, bool)                         {}
func (NopNotifier) PanelFailed(string, error)                          {}
func (NopNotifier) Toast(string)                                       {}

// RoomSnapshot is the displayable state of the current room after an
// update. AutoScroll tells the renderer whether it may follow the new
// bottom.
type RoomSnapshot struct {
	RoomID     int64
	Messages   []chat.Message
	Roster     []chat.PresenceEntry
	TypingFrom []string
	AutoScroll bool
}

// window is one open one-to-one conversation.
type window struct {
	key           chat.ConversationKey
	peer          chat.User
	messages      []chat.Message
	profileLoaded bool
}

// ConversationSnapshot is the displayable state of one conversation
// window.
type ConversationSnapshot struct {
	Key      chat.ConversationKey
	Peer     chat.User
	Messages []chat.Message
	Revealed bool
}

// Manager owns all realtime display state for one page load: the
// current room, the lounge panels, and the open conversation windows.
// It consumes the unified transport event stream, so nothing here
// depends on whether the channel or the poller produced an update.
// One instance per page load, torn down on navigation; there is no
// package-level state.
type Manager struct {
	cfg       *config.ClientConfig
	self      chat.Session
	messenger Messenger
	sender    Sender
	notifier  Notifier
	validator *chat.Validator
	typist    *typist

	mu           sync.Mutex
	roomID       int64
	messages     []chat.Message
	seen         map[string]struct{}
	roster       []chat.PresenceEntry
	typingRemote map[string]string
	view         *View
	windows      map[chat.ConversationKey]*window
	closed       bool
}

// NewManager builds a session manager. A nil notifier falls back to
// NopNotifier.
func NewManager(cfg *config.ClientConfig, self chat.Session, messenger Messenger, sender Sender, notifier Notifier) *Manager {
	if notifier == nil {
		notifier = NopNotifier{}
	}
	m := &Manager{
		cfg:          cfg,
		self:         self,
		messenger:    messenger,
		sender:       sender,
		notifier:     notifier,
		validator:    chat.NewValidator(cfg.MaxMessageLength, cfg.MaxNameLength),
		seen:         make(map[string]struct{}),
		typingRemote: make(map[string]string),
		windows:      make(map[chat.ConversationKey]*window),
		view:         NewView(cfg.ScrollIdleDelay),
	}
	m.typist = newTypist(cfg.TypingTimeout, m.emitTyping)
	return m
}

// emitTyping delivers the advisory typing signal. It rides the
// channel when live and is silently dropped otherwise; indicators
// never block sending.
func (m *Manager) emitTyping(typing bool) {
	t := typing
	if err := m.sender.Send(chat.Envelope{Type: chat.EventActivity, Activity: "typing", Typing: &t}); err != nil {
		log.Debugf("typing signal dropped: %v", err)
	}
}

// EnterRoom resets room-scoped state for a new room context.
func (m *Manager) EnterRoom(roomID int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.roomID = roomID
	m.messages = nil
	m.seen = make(map[string]struct{})
	m.roster = nil
	m.typingRemote = make(map[string]string)
	m.view.teardown()
	m.view = NewView(m.cfg.ScrollIdleDelay)
}

// LeaveRoom clears the room context.
func (m *Manager) LeaveRoom() {
	m.EnterRoom(0)
}

// View exposes the current room's scroll state for the renderer.
func (m *Manager) View() *View {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.view
}

// Keystroke records typing in the room message box.
func (m *Manager) Keystroke() { m.typist.keystroke() }

// Blur clears the typing state when the message box loses focus.
func (m *Manager) Blur() { m.typist.clear() }

// Typing reports the local typing state.
func (m *Manager) Typing() bool { return m.typist.typing() }

// SendRoomMessage validates and sends a room message: over the
// channel when live, otherwise as a one-shot request. Validation
// failures never issue a request.
func (m *Manager) SendRoomMessage(body, replyTo string) error {
	clean, err := m.validator.ValidateMessageBody(body)
	if err != nil {
		return err
	}

	m.mu.Lock()
	roomID := m.roomID
	m.mu.Unlock()
	if roomID == 0 {
		return fmt.Errorf("not in a room")
	}

	sendErr := m.sender.Send(chat.Envelope{
		Type:    chat.EventSendMessage,
		RoomID:  roomID,
		Body:    clean,
		ReplyTo: replyTo,
	})
	if sendErr != nil {
		log.Debugf("channel send unavailable (%v), using request send", sendErr)
		if err := m.messenger.SendRoomMessage(context.Background(), roomID, clean, replyTo); err != nil {
			return err
		}
	}
	m.typist.clear()
	return nil
}

// OpenConversation opens (or reveals) the window for a peer. Opening
// an already-open window is idempotent: no duplicate window and no
// second profile fetch. A new window starts with placeholder peer
// metadata; profile and history load asynchronously and the unread
// counter resets through the server-side mark-read on that fetch.
func (m *Manager) OpenConversation(peerID string, kind chat.ConversationKind) (chat.ConversationKey, error) {
	if err := m.validator.ValidateRecipient(peerID); err != nil {
		return chat.ConversationKey{}, err
	}

	var key chat.ConversationKey
	m.mu.Lock()
	if kind == chat.ConversationWhisper {
		if m.roomID == 0 {
			m.mu.Unlock()
			return chat.ConversationKey{}, fmt.Errorf("whispers require a room context")
		}
		key = chat.WhisperKey(peerID, m.roomID)
	} else {
		key = chat.PrivateKey(peerID)
	}

	if w, ok := m.windows[key]; ok {
		snapshot := w.snapshot(true)
		m.mu.Unlock()
		m.notifier.ConversationUpdated(snapshot)
		return key, nil
	}

	w := &window{
		key: key,
		// Provisional placeholder until the profile arrives.
		peer: chat.User{ID: peerID, Name: peerID, Color: "#999999"},
	}
	m.windows[key] = w
	snapshot := w.snapshot(false)
	m.mu.Unlock()

	m.notifier.ConversationUpdated(snapshot)
	go m.loadConversation(key)
	return key, nil
}

// loadConversation fills a freshly opened window: peer profile,
// message history, and the explicit mark-read that resets the
// server-side unread counter.
func (m *Manager) loadConversation(key chat.ConversationKey) {
	ctx := context.Background()

	if profile, err := m.messenger.FetchProfile(ctx, key.PeerID); err == nil && profile != nil {
		m.mu.Lock()
		if w, ok := m.windows[key]; ok {
			w.peer = *profile
			w.profileLoaded = true
		}
		m.mu.Unlock()
	} else if err != nil {
		log.Debugf("profile fetch for %s failed: %v", key.PeerID, err)
	}

	messages, err := m.messenger.FetchConversation(ctx, key)
	if err != nil {
		m.notifier.PanelFailed("conversation", err)
		return
	}

	if err := m.messenger.MarkConversationRead(ctx, key); err != nil {
		log.Debugf("mark-read for %s failed: %v", key.PeerID, err)
	}

	m.mu.Lock()
	w, ok := m.windows[key]
	if !ok {
		// Closed while loading.
		m.mu.Unlock()
		return
	}
	w.messages = messages
	snapshot := w.snapshot(false)
	m.mu.Unlock()

	m.notifier.ConversationUpdated(snapshot)
}

// SendPrivate validates and sends a private or whisper message, then
// refetches the conversation. The refetch, not an optimistic local
// append, is what confirms ordering: the server may coalesce,
// rate-limit, or reject.
func (m *Manager) SendPrivate(key chat.ConversationKey, body string) error {
	clean, err := m.validator.ValidateMessageBody(body)
	if err != nil {
		return err
	}

	ctx := context.Background()
	if err := m.messenger.SendPrivateMessage(ctx, key, clean); err != nil {
		return err
	}

	messages, err := m.messenger.FetchConversation(ctx, key)
	if err != nil {
		log.Debugf("post-send refetch failed: %v", err)
		return nil
	}

	m.mu.Lock()
	w, ok := m.windows[key]
	if !ok {
		m.mu.Unlock()
		return nil
	}
	w.messages = messages
	snapshot := w.snapshot(false)
	m.mu.Unlock()

	m.notifier.ConversationUpdated(snapshot)
	return nil
}

// CloseConversation drops the window's in-memory entry. Server-side
// history is untouched.
func (m *Manager) CloseConversation(key chat.ConversationKey) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.windows, key)
}

// OpenWindows returns the keys of all open conversation windows.
func (m *Manager) OpenWindows() []chat.ConversationKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]chat.ConversationKey, 0, len(m.windows))
	for key := range m.windows {
		keys = append(keys, key)
	}
	return keys
}

// Conversation returns the snapshot of one open window.
func (m *Manager) Conversation(key chat.ConversationKey) (ConversationSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	w, ok := m.windows[key]
	if !ok {
		return ConversationSnapshot{}, false
	}
	return w.snapshot(false), true
}

// KnockOn requests admission into a gated room.
func (m *Manager) KnockOn(roomID int64) error {
	return m.messenger.Knock(context.Background(), roomID)
}

// Shutdown tears the manager down on navigation.
func (m *Manager) Shutdown() {
	m.typist.clear()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	m.view.teardown()
	m.windows = make(map[chat.ConversationKey]*window)
}

func (w *window) snapshot(revealed bool) ConversationSnapshot {
	return ConversationSnapshot{
		Key:      w.key,
		Peer:     w.peer,
		Messages: append([]chat.Message(nil), w.messages...),
		Revealed: revealed,
	}
}
