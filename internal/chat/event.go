package chat

// Wire event types exchanged on the realtime channel. Client-emitted
// and server-pushed types share one namespace; the envelope's Type
// field decides how the rest of the payload is read.
const (
	// client -> server
	EventAuthenticate = "authenticate"
	EventSendMessage  = "send_message"
	EventActivity     = "activity"
	EventLeaveRoom    = "leave_room"

	// server -> client
	EventAuthSuccess = "auth_success"
	EventAuthError   = "auth_error"
	EventNewMessage  = "new_message"
	EventUserTyping  = "user_typing"
	EventUserJoined  = "user_joined"
	EventUserLeft    = "user_left"
	EventRoomJoined  = "room_joined"
)

// Envelope is the JSON frame carried on the realtime channel in both
// directions. Fields beyond Type are populated per event type.
type Envelope struct {
	Type      string   `json:"type"`
	SessionID string   `json:"session_id,omitempty"`
	UserID    string   `json:"user_id,omitempty"`
	RoomID    int64    `json:"room_id,omitempty"`
	Body      string   `json:"body,omitempty"`
	ReplyTo   string   `json:"reply_to,omitempty"`
	Activity  string   `json:"activity,omitempty"`
	Typing    *bool    `json:"typing,omitempty"`
	Reason    string   `json:"reason,omitempty"`
	Message   *Message `json:"message,omitempty"`
	User      *User    `json:"user,omitempty"`
	Roster    []User   `json:"roster,omitempty"`
}
