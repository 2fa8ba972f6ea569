package session

import (
	"github.com/kevinwklawrence/lounge-realtime/internal/chat"
	"github.com/kevinwklawrence/lounge-realtime/internal/transport"
)

// HandleEvent consumes the unified transport stream. Handlers are
// idempotent against duplicate delivery: a pushed message already
// seen in a poll snapshot is dropped by id, a duplicate join leaves
// the roster unchanged, and a room_joined push after a poll already
// loaded the room just replaces the roster with the same content.
func (m *Manager) HandleEvent(ev transport.Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	// Room-scoped events for a room we are no longer in are stale.
	if roomScoped(ev.Type) && ev.RoomID != 0 && ev.RoomID != m.roomID {
		m.mu.Unlock()
		return
	}
	m.mu.Unlock()

	switch ev.Type {
	case transport.EventMessagesSnapshot:
		m.applyMessagesSnapshot(ev)
	case transport.EventNewMessage:
		m.applyPushedMessage(ev)
	case transport.EventRosterSnapshot, transport.EventRoomJoined:
		m.applyRoster(ev)
	case transport.EventUserJoined:
		m.applyUserJoined(ev)
	case transport.EventUserLeft:
		m.applyUserLeft(ev)
	case transport.EventUserTyping:
		m.applyRemoteTyping(ev)
	case transport.EventKnocks:
		m.notifier.KnocksUpdated(ev.Knocks)
	case transport.EventRoomList:
		m.notifier.LoungeUpdated(ev.Rooms, nil)
	case transport.EventOnlineUsers:
		m.notifier.LoungeUpdated(nil, ev.Roster)
	case transport.EventRoomKey:
		m.notifier.RoomKeyChecked(ev.RoomID, ev.KeyValid)
	case transport.EventConversationList:
		m.notifier.ConversationListUpdated(ev.Conversations)
	case transport.EventPanelError:
		m.notifier.PanelFailed(ev.Panel, ev.Err)
	case transport.EventChannelLive:
		m.notifier.Toast("realtime connection established")
	case transport.EventChannelDown:
		log.Debug("push transport down, updates continue over polling")
	}
}

// staleRoomLocked reports whether a room-scoped event belongs to a
// room other than the current one. The apply functions re-check this
// under the lock: a room switch may land between the dispatch check
// and the apply. Caller holds m.mu.
func (m *Manager) staleRoomLocked(ev transport.Event) bool {
	return m.closed || (ev.RoomID != 0 && ev.RoomID != m.roomID)
}

func roomScoped(t transport.EventType) bool {
	switch t {
	case transport.EventMessagesSnapshot, transport.EventRosterSnapshot,
		transport.EventNewMessage, transport.EventRoomJoined,
		transport.EventUserJoined, transport.EventUserLeft,
		transport.EventUserTyping, transport.EventKnocks:
		return true
	}
	return false
}

// applyMessagesSnapshot replaces the displayed list wholesale: the
// server is authoritative for ordering. The seen-id set reseeds from
// the snapshot so later pushes de-duplicate against it.
func (m *Manager) applyMessagesSnapshot(ev transport.Event) {
	m.mu.Lock()
	if m.staleRoomLocked(ev) {
		m.mu.Unlock()
		return
	}
	m.messages = ev.Messages
	m.seen = make(map[string]struct{}, len(ev.Messages))
	for _, msg := range ev.Messages {
		m.seen[msg.ID] = struct{}{}
	}
	snapshot := m.roomSnapshotLocked()
	m.mu.Unlock()

	m.notifier.RoomUpdated(snapshot)
}

// applyPushedMessage appends a channel-pushed message unless a poll
// snapshot already delivered the same id. Appending keeps server
// order because pushes arrive in broadcast order.
func (m *Manager) applyPushedMessage(ev transport.Event) {
	if ev.Message == nil {
		return
	}
	m.mu.Lock()
	if m.staleRoomLocked(ev) {
		m.mu.Unlock()
		return
	}
	if _, dup := m.seen[ev.Message.ID]; dup {
		m.mu.Unlock()
		return
	}
	m.seen[ev.Message.ID] = struct{}{}
	m.messages = append(m.messages, *ev.Message)
	// A message from a sender clears their typing indicator.
	delete(m.typingRemote, ev.Message.SenderID)
	snapshot := m.roomSnapshotLocked()
	m.mu.Unlock()

	m.notifier.RoomUpdated(snapshot)
}

func (m *Manager) applyRoster(ev transport.Event) {
	m.mu.Lock()
	if m.staleRoomLocked(ev) {
		m.mu.Unlock()
		return
	}
	m.roster = ev.Roster
	snapshot := m.roomSnapshotLocked()
	m.mu.Unlock()

	m.notifier.RoomUpdated(snapshot)
}

func (m *Manager) applyUserJoined(ev transport.Event) {
	if ev.User == nil {
		return
	}
	m.mu.Lock()
	if m.staleRoomLocked(ev) {
		m.mu.Unlock()
		return
	}
	for _, entry := range m.roster {
		if entry.User.ID == ev.User.ID {
			// Duplicate join push; roster already has them.
			m.mu.Unlock()
			return
		}
	}
	m.roster = append(m.roster, chat.PresenceEntry{User: *ev.User})
	snapshot := m.roomSnapshotLocked()
	m.mu.Unlock()

	m.notifier.RoomUpdated(snapshot)
}

func (m *Manager) applyUserLeft(ev transport.Event) {
	if ev.User == nil {
		return
	}
	m.mu.Lock()
	if m.staleRoomLocked(ev) {
		m.mu.Unlock()
		return
	}
	kept := m.roster[:0]
	for _, entry := range m.roster {
		if entry.User.ID != ev.User.ID {
			kept = append(kept, entry)
		}
	}
	m.roster = kept
	delete(m.typingRemote, ev.User.ID)
	snapshot := m.roomSnapshotLocked()
	m.mu.Unlock()

	m.notifier.RoomUpdated(snapshot)
}

func (m *Manager) applyRemoteTyping(ev transport.Event) {
	if ev.User == nil {
		return
	}
	m.mu.Lock()
	if m.staleRoomLocked(ev) {
		m.mu.Unlock()
		return
	}
	if ev.Typing {
		m.typingRemote[ev.User.ID] = ev.User.Name
	} else {
		delete(m.typingRemote, ev.User.ID)
	}
	snapshot := m.roomSnapshotLocked()
	m.mu.Unlock()

	m.notifier.RoomUpdated(snapshot)
}

// roomSnapshotLocked builds the displayable room state. Caller holds
// m.mu.
func (m *Manager) roomSnapshotLocked() RoomSnapshot {
	typing := make([]string, 0, len(m.typingRemote))
	for _, name := range m.typingRemote {
		typing = append(typing, name)
	}
	return RoomSnapshot{
		RoomID:     m.roomID,
		Messages:   append([]chat.Message(nil), m.messages...),
		Roster:     append([]chat.PresenceEntry(nil), m.roster...),
		TypingFrom: typing,
		AutoScroll: m.view.AutoScroll(),
	}
}

// Messages returns the displayed message list of the current room.
func (m *Manager) Messages() []chat.Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chat.Message(nil), m.messages...)
}

// Roster returns the displayed roster of the current room.
func (m *Manager) Roster() []chat.PresenceEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]chat.PresenceEntry(nil), m.roster...)
}

// TypingUsers returns the names of peers with a live typing
// indicator.
func (m *Manager) TypingUsers() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	typing := make([]string, 0, len(m.typingRemote))
	for _, name := range m.typingRemote {
		typing = append(typing, name)
	}
	return typing
}
