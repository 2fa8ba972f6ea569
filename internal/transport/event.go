package transport

import (
	"github.com/kevinwklawrence/lounge-realtime/internal/chat"
)

// EventType names one kind of update on the unified stream. Snapshot
// events come from the poller, push events from the channel; the
// consumer never needs to know which transport produced one.
type EventType string

const (
	// Poll snapshots (full replacement for the resource)
	EventRosterSnapshot   EventType = "roster_snapshot"
	EventMessagesSnapshot EventType = "messages_snapshot"
	EventConversationList EventType = "conversation_list"
	EventRoomList         EventType = "room_list"
	EventOnlineUsers      EventType = "online_users"
	EventKnocks           EventType = "knocks"
	EventRoomKey          EventType = "room_key"

	// Channel pushes (incremental)
	EventNewMessage EventType = "new_message"
	EventUserJoined EventType = "user_joined"
	EventUserLeft   EventType = "user_left"
	EventUserTyping EventType = "user_typing"
	EventRoomJoined EventType = "room_joined"

	// Transport lifecycle
	EventChannelLive EventType = "channel_live"
	EventChannelDown EventType = "channel_down"

	// A panel degraded: malformed payload or persistent fetch failure
	// with no prior snapshot. Scoped to one panel, never fatal.
	EventPanelError EventType = "panel_error"
)

// Event is the unified update envelope both transports deliver.
type Event struct {
	Type   EventType
	RoomID int64

	Message       *chat.Message
	Messages      []chat.Message
	Roster        []chat.PresenceEntry
	Rooms         []chat.Room
	Conversations []chat.ConversationSummary
	Knocks        []chat.Knock
	User          *chat.User

	Typing   bool
	KeyValid bool

	Panel string
	Err   error
}

// Sink receives the unified event stream. Display code implements it;
// anything that does not care supplies NopSink instead of being
// feature-detected at call time.
type Sink interface {
	HandleEvent(Event)
}

// NopSink discards every event.
type NopSink struct{}

func (NopSink) HandleEvent(Event) {}
