package chat

import (
	"time"
)

// User identifies an acting principal: a registered member or a guest.
type User struct {
	ID         string `json:"user_id"`
	Name       string `json:"name"`
	AvatarRef  string `json:"avatar,omitempty"`
	Color      string `json:"color,omitempty"`
	Hue        int    `json:"hue,omitempty"`
	Saturation int    `json:"saturation,omitempty"`
	IsGuest    bool   `json:"is_guest,omitempty"`
	IsHost     bool   `json:"is_host,omitempty"`
	IsMod      bool   `json:"is_moderator,omitempty"`
	IsAdmin    bool   `json:"is_admin,omitempty"`
}

// Session is the browser-session principal: the self user plus the
// opaque identifier the server issued at login or guest join.
type Session struct {
	SessionID string `json:"session_id"`
	Self      User   `json:"user"`
}

// Room is a bounded chat context. Occupant counts come from the
// server; the client only displays them and never enforces capacity.
type Room struct {
	ID          int64  `json:"room_id"`
	Name        string `json:"name"`
	Capacity    int    `json:"capacity"`
	Occupants   int    `json:"occupants"`
	HasPassword bool   `json:"has_password,omitempty"`
	InviteOnly  bool   `json:"invite_only,omitempty"`
	FriendsOnly bool   `json:"friends_only,omitempty"`
	MembersOnly bool   `json:"members_only,omitempty"`
	Ephemeral   bool   `json:"disappearing_messages,omitempty"`
	Permanent   bool   `json:"permanent,omitempty"`
}

// Message belongs to exactly one room or one conversation, never
// both. Display order is whatever the server returned; merge code
// must not reorder locally.
type Message struct {
	ID         string    `json:"id"`
	RoomID     int64     `json:"room_id,omitempty"`
	SenderID   string    `json:"sender_id"`
	SenderName string    `json:"sender_name"`
	AvatarRef  string    `json:"avatar,omitempty"`
	Color      string    `json:"color,omitempty"`
	Hue        int       `json:"hue,omitempty"`
	Saturation int       `json:"saturation,omitempty"`
	Body       string    `json:"body"`
	ReplyTo    string    `json:"reply_to,omitempty"`
	IsSystem   bool      `json:"is_system,omitempty"`
	IsAdmin    bool      `json:"is_admin,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// ConversationKind distinguishes cross-room private messages from
// room-scoped whispers.
type ConversationKind string

const (
	ConversationPrivate ConversationKind = "private"
	ConversationWhisper ConversationKind = "whisper"
)

// ConversationKey identifies one open one-to-one conversation.
// Whisper keys carry the room they are scoped to; a whisper and a
// private conversation with the same peer are distinct keys.
type ConversationKey struct {
	PeerID string
	Kind   ConversationKind
	RoomID int64 // zero for private conversations
}

// PrivateKey builds the key for a cross-room private conversation.
func PrivateKey(peerID string) ConversationKey {
	return ConversationKey{PeerID: peerID, Kind: ConversationPrivate}
}

// WhisperKey builds the key for a whisper scoped to a room.
func WhisperKey(peerID string, roomID int64) ConversationKey {
	return ConversationKey{PeerID: peerID, Kind: ConversationWhisper, RoomID: roomID}
}

// ConversationSummary is one row of the conversation list: peer
// metadata plus the server-computed unread count.
type ConversationSummary struct {
	PeerID      string    `json:"peer_id"`
	PeerName    string    `json:"peer_name"`
	LastPreview string    `json:"last_message"`
	Unread      int       `json:"unread_count"`
	LastAt      time.Time `json:"last_message_at"`
}

// PresenceEntry describes one occupant of a room or the lounge.
type PresenceEntry struct {
	User       User      `json:"user"`
	LastActive time.Time `json:"last_active"`
	Typing     bool      `json:"typing,omitempty"`
}

// Knock is a non-member's request to be admitted into a gated room.
type Knock struct {
	ID       string    `json:"id"`
	RoomID   int64     `json:"room_id"`
	UserID   string    `json:"user_id"`
	UserName string    `json:"user_name"`
	At       time.Time `json:"created_at"`
}
