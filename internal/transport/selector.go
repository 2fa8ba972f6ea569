package transport

import (
	"sync"

	logging "github.com/ipfs/go-log/v2"

	"github.com/kevinwklawrence/lounge-realtime/internal/channel"
	"github.com/kevinwklawrence/lounge-realtime/internal/chat"
)

var log = logging.Logger("transport")

// Channel is the push transport as the selector sees it.
type Channel interface {
	Connect(roomID int64)
	Send(env chat.Envelope) error
	Close()
	State() channel.State
}

// Poller is the poll transport as the selector sees it. Starting and
// silencing must be idempotent; the selector may repeat either on
// duplicate state transitions.
type Poller interface {
	Start()
	Stop()
	EnterRoom(roomID int64)
	LeaveRoom()
	SilenceRoom()
	ResumeRoom()
}

// Selector decides which transport carries the session. It attempts
// the realtime channel, silences the room pollers while the channel
// is live, and activates polling permanently once the channel's
// retry budget is spent. Consumers read one unified stream through
// the Sink and never branch on the active transport.
type Selector struct {
	channel Channel
	poller  Poller
	sink    Sink

	mu       sync.Mutex
	roomID   int64
	fallback bool
}

// NewSelector wires a selector. The channel's OnState and OnEvent
// callbacks must be pointed at HandleChannelState and
// HandleChannelEvent by the caller.
func NewSelector(ch Channel, p Poller, sink Sink) *Selector {
	if sink == nil {
		sink = NopSink{}
	}
	return &Selector{channel: ch, poller: p, sink: sink}
}

// EnterRoom joins a room context: polling starts immediately so data
// appears, and the channel is attempted in parallel. If the channel
// goes live it silences the room pollers.
func (s *Selector) EnterRoom(roomID int64) {
	s.mu.Lock()
	s.roomID = roomID
	s.mu.Unlock()

	s.poller.EnterRoom(roomID)
	s.poller.Start()
	s.channel.Connect(roomID)
}

// LeaveRoom returns to the lounge. The leave is announced on the
// channel when it is live; polling reverts to lounge cadences.
func (s *Selector) LeaveRoom() {
	s.mu.Lock()
	s.roomID = 0
	s.mu.Unlock()

	if err := s.channel.Send(chat.Envelope{Type: chat.EventLeaveRoom}); err != nil {
		log.Debugf("leave_room not sent on channel: %v", err)
	}
	s.poller.LeaveRoom()
}

// Send emits a user action on the channel. The returned error (such
// as channel.ErrNotLive) tells the caller to fall back to a one-shot
// request send.
func (s *Selector) Send(env chat.Envelope) error {
	return s.channel.Send(env)
}

// Live reports whether the push transport currently carries the
// session.
func (s *Selector) Live() bool {
	return s.channel.State() == channel.StateLive
}

// Shutdown tears both transports down (page unload).
func (s *Selector) Shutdown() {
	s.channel.Close()
	s.poller.Stop()
}

// HandleChannelState reacts to channel state transitions.
func (s *Selector) HandleChannelState(st channel.State) {
	switch st {
	case channel.StateLive:
		// Push path is up: the room pollers are stopped if running.
		s.poller.SilenceRoom()
		s.sink.HandleEvent(Event{Type: EventChannelLive})

	case channel.StateRetrying:
		// Keep data flowing over polls while the channel retries.
		s.poller.ResumeRoom()
		s.sink.HandleEvent(Event{Type: EventChannelDown})

	case channel.StatePollingFallback:
		s.mu.Lock()
		already := s.fallback
		s.fallback = true
		s.mu.Unlock()
		if already {
			// Duplicate transition; intervals must not stack.
			return
		}
		log.Info("session demoted to polling fallback")
		s.poller.ResumeRoom()
		s.poller.Start()
		s.sink.HandleEvent(Event{Type: EventChannelDown})

	case channel.StateDisconnected:
		s.sink.HandleEvent(Event{Type: EventChannelDown})
	}
}

// HandleChannelEvent translates a pushed frame into the unified
// event stream.
func (s *Selector) HandleChannelEvent(env chat.Envelope) {
	s.mu.Lock()
	roomID := s.roomID
	s.mu.Unlock()
	if env.RoomID != 0 {
		roomID = env.RoomID
	}

	switch env.Type {
	case chat.EventNewMessage:
		if env.Message == nil {
			log.Warnf("new_message push without message payload")
			return
		}
		s.sink.HandleEvent(Event{Type: EventNewMessage, RoomID: roomID, Message: env.Message})

	case chat.EventUserJoined:
		if env.User == nil {
			return
		}
		s.sink.HandleEvent(Event{Type: EventUserJoined, RoomID: roomID, User: env.User})

	case chat.EventUserLeft:
		if env.User == nil {
			return
		}
		s.sink.HandleEvent(Event{Type: EventUserLeft, RoomID: roomID, User: env.User})

	case chat.EventUserTyping:
		typing := env.Typing == nil || *env.Typing
		s.sink.HandleEvent(Event{Type: EventUserTyping, RoomID: roomID, User: env.User, Typing: typing})

	case chat.EventRoomJoined:
		roster := make([]chat.PresenceEntry, 0, len(env.Roster))
		for _, u := range env.Roster {
			roster = append(roster, chat.PresenceEntry{User: u})
		}
		s.sink.HandleEvent(Event{Type: EventRoomJoined, RoomID: roomID, Roster: roster})

	case chat.EventAuthSuccess:
		// Already reflected by the Live state transition.

	default:
		log.Debugf("ignoring unhandled channel event %q", env.Type)
	}
}
