package transport

import (
	"sync"
	"testing"

	"github.com/kevinwklawrence/lounge-realtime/internal/channel"
	"github.com/kevinwklawrence/lounge-realtime/internal/chat"
)

type fakeChannel struct {
	mu       sync.Mutex
	state    channel.State
	connects []int64
	sent     []chat.Envelope
	sendErr  error
	closed   bool
}

func (c *fakeChannel) Connect(roomID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.connects = append(c.connects, roomID)
}

func (c *fakeChannel) Send(env chat.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sendErr != nil {
		return c.sendErr
	}
	c.sent = append(c.sent, env)
	return nil
}

func (c *fakeChannel) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeChannel) State() channel.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

type fakePoller struct {
	mu       sync.Mutex
	starts   int
	stops    int
	entered  []int64
	left     int
	silences int
	resumes  int
}

func (p *fakePoller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.starts++
}

func (p *fakePoller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stops++
}

func (p *fakePoller) EnterRoom(roomID int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entered = append(p.entered, roomID)
}

func (p *fakePoller) LeaveRoom() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.left++
}

func (p *fakePoller) SilenceRoom() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.silences++
}

func (p *fakePoller) ResumeRoom() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resumes++
}

type captureSink struct {
	mu     sync.Mutex
	events []Event
}

func (s *captureSink) HandleEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *captureSink) last() (Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) == 0 {
		return Event{}, false
	}
	return s.events[len(s.events)-1], true
}

func (s *captureSink) count(t EventType) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, ev := range s.events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func newTestSelector() (*Selector, *fakeChannel, *fakePoller, *captureSink) {
	ch := &fakeChannel{}
	p := &fakePoller{}
	sink := &captureSink{}
	return NewSelector(ch, p, sink), ch, p, sink
}

func TestEnterRoomStartsBothTransports(t *testing.T) {
	sel, ch, p, _ := newTestSelector()

	sel.EnterRoom(7)

	if len(p.entered) != 1 || p.entered[0] != 7 {
		t.Errorf("poller entered %v, want [7]", p.entered)
	}
	if p.starts != 1 {
		t.Errorf("poller starts = %d, want 1", p.starts)
	}
	if len(ch.connects) != 1 || ch.connects[0] != 7 {
		t.Errorf("channel connects = %v, want [7]", ch.connects)
	}
}

func TestChannelLiveSilencesRoomPolling(t *testing.T) {
	sel, _, p, sink := newTestSelector()
	sel.EnterRoom(7)

	sel.HandleChannelState(channel.StateLive)

	if p.silences != 1 {
		t.Errorf("silences = %d, want 1", p.silences)
	}
	if ev, ok := sink.last(); !ok || ev.Type != EventChannelLive {
		t.Errorf("last event = %v, want channel_live", ev)
	}
}

func TestRetryingResumesRoomPolling(t *testing.T) {
	sel, _, p, sink := newTestSelector()
	sel.EnterRoom(7)
	sel.HandleChannelState(channel.StateLive)

	sel.HandleChannelState(channel.StateRetrying)

	if p.resumes != 1 {
		t.Errorf("resumes = %d, want 1", p.resumes)
	}
	if sink.count(EventChannelDown) != 1 {
		t.Errorf("channel_down events = %d, want 1", sink.count(EventChannelDown))
	}
}

func TestDuplicateFallbackNeverStacksIntervals(t *testing.T) {
	sel, _, p, sink := newTestSelector()
	sel.EnterRoom(7)
	startsAfterEnter := p.starts

	sel.HandleChannelState(channel.StatePollingFallback)
	sel.HandleChannelState(channel.StatePollingFallback)
	sel.HandleChannelState(channel.StatePollingFallback)

	if got := p.starts - startsAfterEnter; got != 1 {
		t.Errorf("fallback started the poller %d times, want 1", got)
	}
	if p.resumes != 1 {
		t.Errorf("fallback resumed room polling %d times, want 1", p.resumes)
	}
	if sink.count(EventChannelDown) != 1 {
		t.Errorf("channel_down events = %d, want 1", sink.count(EventChannelDown))
	}
}

func TestLeaveRoomAnnouncesAndRevertsToLounge(t *testing.T) {
	sel, ch, p, _ := newTestSelector()
	sel.EnterRoom(7)

	sel.LeaveRoom()

	if len(ch.sent) != 1 || ch.sent[0].Type != chat.EventLeaveRoom {
		t.Errorf("sent = %v, want one leave_room", ch.sent)
	}
	if p.left != 1 {
		t.Errorf("poller LeaveRoom calls = %d, want 1", p.left)
	}
}

func TestLeaveRoomSurvivesDeadChannel(t *testing.T) {
	sel, ch, p, _ := newTestSelector()
	ch.sendErr = channel.ErrNotLive
	sel.EnterRoom(7)

	sel.LeaveRoom()

	if p.left != 1 {
		t.Errorf("poller LeaveRoom calls = %d, want 1", p.left)
	}
}

func TestSendDelegatesToChannel(t *testing.T) {
	sel, ch, _, _ := newTestSelector()

	if err := sel.Send(chat.Envelope{Type: chat.EventSendMessage, Body: "hi"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ch.sent) != 1 || ch.sent[0].Body != "hi" {
		t.Errorf("sent = %v", ch.sent)
	}

	ch.sendErr = channel.ErrNotLive
	if err := sel.Send(chat.Envelope{Type: chat.EventSendMessage}); err != channel.ErrNotLive {
		t.Errorf("error = %v, want ErrNotLive", err)
	}
}

func TestPushedMessageDefaultsToCurrentRoom(t *testing.T) {
	sel, _, _, sink := newTestSelector()
	sel.EnterRoom(7)

	sel.HandleChannelEvent(chat.Envelope{
		Type:    chat.EventNewMessage,
		Message: &chat.Message{ID: "m1", Body: "hi"},
	})

	ev, ok := sink.last()
	if !ok || ev.Type != EventNewMessage {
		t.Fatalf("last event = %v, want new_message", ev)
	}
	if ev.RoomID != 7 {
		t.Errorf("RoomID = %d, want the current room 7", ev.RoomID)
	}
	if ev.Message == nil || ev.Message.ID != "m1" {
		t.Errorf("message payload lost: %v", ev.Message)
	}
}

func TestPushedMessageKeepsExplicitRoomScope(t *testing.T) {
	sel, _, _, sink := newTestSelector()
	sel.EnterRoom(7)

	sel.HandleChannelEvent(chat.Envelope{
		Type:    chat.EventNewMessage,
		RoomID:  9,
		Message: &chat.Message{ID: "m1"},
	})

	if ev, _ := sink.last(); ev.RoomID != 9 {
		t.Errorf("RoomID = %d, want the frame's own 9", ev.RoomID)
	}
}

func TestMalformedPushIsDropped(t *testing.T) {
	sel, _, _, sink := newTestSelector()
	sel.EnterRoom(7)

	sel.HandleChannelEvent(chat.Envelope{Type: chat.EventNewMessage})

	if _, ok := sink.last(); ok {
		t.Error("new_message without a payload must be dropped")
	}
}

func TestTypingFrameTranslation(t *testing.T) {
	sel, _, _, sink := newTestSelector()
	sel.EnterRoom(7)

	// Absent flag means typing started.
	sel.HandleChannelEvent(chat.Envelope{
		Type: chat.EventUserTyping,
		User: &chat.User{ID: "u2"},
	})
	if ev, _ := sink.last(); !ev.Typing {
		t.Error("absent typing flag should read as true")
	}

	off := false
	sel.HandleChannelEvent(chat.Envelope{
		Type:   chat.EventUserTyping,
		User:   &chat.User{ID: "u2"},
		Typing: &off,
	})
	if ev, _ := sink.last(); ev.Typing {
		t.Error("explicit false typing flag lost in translation")
	}
}

func TestRoomJoinedCarriesRoster(t *testing.T) {
	sel, _, _, sink := newTestSelector()
	sel.EnterRoom(7)

	sel.HandleChannelEvent(chat.Envelope{
		Type: chat.EventRoomJoined,
		Roster: []chat.User{
			{ID: "u1", Name: "ann"},
			{ID: "u2", Name: "bob"},
		},
	})

	ev, ok := sink.last()
	if !ok || ev.Type != EventRoomJoined {
		t.Fatalf("last event = %v, want room_joined", ev)
	}
	if len(ev.Roster) != 2 || ev.Roster[0].User.ID != "u1" {
		t.Errorf("roster not carried: %v", ev.Roster)
	}
}

func TestShutdownTearsDownBothTransports(t *testing.T) {
	sel, ch, p, _ := newTestSelector()
	sel.EnterRoom(7)

	sel.Shutdown()

	if !ch.closed {
		t.Error("channel not closed")
	}
	if p.stops != 1 {
		t.Errorf("poller stops = %d, want 1", p.stops)
	}
}
