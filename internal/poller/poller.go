package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	logging "github.com/ipfs/go-log/v2"

	"github.com/kevinwklawrence/lounge-realtime/internal/api"
	"github.com/kevinwklawrence/lounge-realtime/internal/chat"
	"github.com/kevinwklawrence/lounge-realtime/internal/config"
	"github.com/kevinwklawrence/lounge-realtime/internal/transport"
)

var log = logging.Logger("poller")

// Fetcher is the slice of the persistence API the poller drives.
// *api.Client satisfies it; tests substitute fakes.
type Fetcher interface {
	FetchRoster(ctx context.Context, roomID int64) ([]chat.PresenceEntry, error)
	FetchRoomMessages(ctx context.Context, roomID int64) ([]chat.Message, error)
	FetchKnocks(ctx context.Context, roomID int64) ([]chat.Knock, error)
	FetchRooms(ctx context.Context) ([]chat.Room, error)
	FetchOnlineUsers(ctx context.Context) ([]chat.PresenceEntry, error)
	FetchConversations(ctx context.Context) ([]chat.ConversationSummary, error)
	CheckRoomKey(ctx context.Context, roomID int64) (bool, error)
	TriggerCleanup(ctx context.Context) error
}

// Resource names used for sequence gating and panel errors.
const (
	resRoster        = "roster"
	resMessages      = "messages"
	resKnocks        = "knocks"
	resRooms         = "rooms"
	resOnline        = "online"
	resConversations = "conversations"
)

// seqGate orders responses for one resource. Requests take a
// monotonically increasing sequence number at issue time; a response
// only applies if no higher-numbered response got there first, so a
// slow stale fetch can never overwrite a newer snapshot.
type seqGate struct {
	mu      sync.Mutex
	next    uint64
	applied uint64
}

func (g *seqGate) issue() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.next++
	return g.next
}

func (g *seqGate) tryApply(seq uint64) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if seq <= g.applied {
		return false
	}
	g.applied = seq
	return true
}

// Poller fetches room and lounge state on fixed cadences and feeds
// full-replacement snapshots into the sink. Errors keep the last good
// snapshot; the next tick retries. Start, Stop, SilenceRoom and
// ResumeRoom are idempotent so repeated transport transitions never
// stack intervals.
type Poller struct {
	cfg     *config.ClientConfig
	api     Fetcher
	sink    transport.Sink
	metrics *config.ClientMetrics

	mu           sync.Mutex
	running      bool
	stop         chan struct{}
	roomID       int64
	roomSilenced bool
	gates        map[string]*seqGate
	hasSnapshot  map[string]bool
	gatedRooms   []int64
}

// New creates a poller. A nil sink is replaced by NopSink.
func New(cfg *config.ClientConfig, fetcher Fetcher, sink transport.Sink, metrics *config.ClientMetrics) *Poller {
	if sink == nil {
		sink = transport.NopSink{}
	}
	if metrics == nil {
		metrics = config.NewClientMetrics()
	}
	return &Poller{
		cfg:         cfg,
		api:         fetcher,
		sink:        sink,
		metrics:     metrics,
		gates:       make(map[string]*seqGate),
		hasSnapshot: make(map[string]bool),
	}
}

// Start launches the interval loops. Calling it again while running
// is a no-op.
func (p *Poller) Start() {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	p.stop = make(chan struct{})
	stop := p.stop
	p.mu.Unlock()

	log.Debug("poller intervals starting")
	go p.loop(stop, p.cfg.RoomPollInterval, p.roomTick)
	go p.loop(stop, p.cfg.KnockPollInterval, p.knockTick)
	go p.loop(stop, p.cfg.LoungePollInterval, p.loungeTick)
	go p.loop(stop, p.cfg.FriendsPollInterval, p.friendsTick)
	go p.loop(stop, p.cfg.CleanupInterval, p.cleanupTick)
}

// Stop cancels every interval (page unload, session teardown).
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.running {
		return
	}
	p.running = false
	close(p.stop)
}

// EnterRoom points the room-scoped loops at a room and fetches its
// state immediately rather than waiting out the first interval.
func (p *Poller) EnterRoom(roomID int64) {
	p.mu.Lock()
	p.roomID = roomID
	p.roomSilenced = false
	p.mu.Unlock()

	go p.pollRoster(roomID)
	go p.pollMessages(roomID)
}

// LeaveRoom reverts to lounge-only polling.
func (p *Poller) LeaveRoom() {
	p.mu.Lock()
	p.roomID = 0
	p.mu.Unlock()
}

// SilenceRoom pauses the room-scoped loops while the realtime channel
// carries the room. Lounge, conversation and cleanup loops keep going.
func (p *Poller) SilenceRoom() {
	p.mu.Lock()
	p.roomSilenced = true
	p.mu.Unlock()
}

// ResumeRoom reactivates the room-scoped loops. An immediate fetch
// refreshes the panels only when they were actually silenced.
func (p *Poller) ResumeRoom() {
	p.mu.Lock()
	wasSilenced := p.roomSilenced
	p.roomSilenced = false
	roomID := p.roomID
	p.mu.Unlock()

	if wasSilenced && roomID != 0 {
		go p.pollRoster(roomID)
		go p.pollMessages(roomID)
	}
}

// RoomPollingActive reports whether the room-scoped intervals will
// fetch on their next tick.
func (p *Poller) RoomPollingActive() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running && p.roomID != 0 && !p.roomSilenced
}

func (p *Poller) loop(stop <-chan struct{}, interval time.Duration, tick func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			tick()
		}
	}
}

// currentRoom returns the active room id, or 0 when the room loops
// should stay quiet.
func (p *Poller) currentRoom() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.roomSilenced {
		return 0
	}
	return p.roomID
}

func (p *Poller) inLounge() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.roomID == 0
}

func (p *Poller) roomTick() {
	roomID := p.currentRoom()
	if roomID == 0 {
		return
	}
	// Independent fetches; a slow one never delays the other.
	go p.pollRoster(roomID)
	go p.pollMessages(roomID)
}

func (p *Poller) knockTick() {
	roomID := p.currentRoom()
	if roomID == 0 {
		return
	}
	go p.pollKnocks(roomID)
}

func (p *Poller) loungeTick() {
	if !p.inLounge() {
		return
	}
	go p.pollRooms()
	go p.pollOnline()
	go p.pollRoomKeys()
}

func (p *Poller) friendsTick() {
	go p.pollConversations()
}

// cleanupTick triggers the server-side inactivity purge, then
// re-polls presence so the display reflects it.
func (p *Poller) cleanupTick() {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.cfg.TimeoutLong)
		defer cancel()
		if err := p.api.TriggerCleanup(ctx); err != nil {
			log.Debugf("cleanup trigger failed: %v", err)
			return
		}
		if roomID := p.currentRoom(); roomID != 0 {
			p.pollRoster(roomID)
		} else if p.inLounge() {
			p.pollOnline()
		}
	}()
}

func (p *Poller) gate(name string) *seqGate {
	p.mu.Lock()
	defer p.mu.Unlock()
	g, ok := p.gates[name]
	if !ok {
		g = &seqGate{}
		p.gates[name] = g
	}
	return g
}

func (p *Poller) markSnapshot(name string) {
	p.mu.Lock()
	p.hasSnapshot[name] = true
	p.mu.Unlock()
}

func (p *Poller) snapshotKnown(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.hasSnapshot[name]
}

// apply delivers a winning response; stale responses are discarded.
func (p *Poller) apply(name string, seq uint64, ev transport.Event) {
	if !p.gate(name).tryApply(seq) {
		p.metrics.IncrementStaleDiscards()
		log.Debugf("discarding stale %s response (seq %d)", name, seq)
		return
	}
	p.markSnapshot(name)
	p.sink.HandleEvent(ev)
}

// degrade handles a failed fetch. Malformed payloads collapse the one
// panel to an empty state with an inline error; network errors and
// timeouts keep the last good snapshot and only surface when there is
// no prior data to show.
func (p *Poller) degrade(name string, seq uint64, empty transport.Event, err error) {
	p.metrics.IncrementPollErrors()

	var decodeErr *api.DecodeError
	if errors.As(err, &decodeErr) {
		log.Warnf("%s payload malformed, degrading panel: %v", name, err)
		if p.gate(name).tryApply(seq) {
			p.sink.HandleEvent(empty)
			p.sink.HandleEvent(transport.Event{Type: transport.EventPanelError, Panel: name, Err: err})
		}
		return
	}

	log.Debugf("%s fetch failed, keeping last snapshot: %v", name, err)
	if !p.snapshotKnown(name) {
		p.sink.HandleEvent(transport.Event{Type: transport.EventPanelError, Panel: name, Err: err})
	}
}

func (p *Poller) pollRoster(roomID int64) {
	seq := p.gate(resRoster).issue()
	p.metrics.IncrementPolls()
	roster, err := p.api.FetchRoster(context.Background(), roomID)
	if err != nil {
		p.degrade(resRoster, seq, transport.Event{Type: transport.EventRosterSnapshot, RoomID: roomID}, err)
		return
	}
	p.apply(resRoster, seq, transport.Event{Type: transport.EventRosterSnapshot, RoomID: roomID, Roster: roster})
}

func (p *Poller) pollMessages(roomID int64) {
	seq := p.gate(resMessages).issue()
	p.metrics.IncrementPolls()
	messages, err := p.api.FetchRoomMessages(context.Background(), roomID)
	if err != nil {
		p.degrade(resMessages, seq, transport.Event{Type: transport.EventMessagesSnapshot, RoomID: roomID}, err)
		return
	}
	p.apply(resMessages, seq, transport.Event{Type: transport.EventMessagesSnapshot, RoomID: roomID, Messages: messages})
}

func (p *Poller) pollKnocks(roomID int64) {
	seq := p.gate(resKnocks).issue()
	p.metrics.IncrementPolls()
	knocks, err := p.api.FetchKnocks(context.Background(), roomID)
	if err != nil {
		p.degrade(resKnocks, seq, transport.Event{Type: transport.EventKnocks, RoomID: roomID}, err)
		return
	}
	p.apply(resKnocks, seq, transport.Event{Type: transport.EventKnocks, RoomID: roomID, Knocks: knocks})
}

func (p *Poller) pollRooms() {
	seq := p.gate(resRooms).issue()
	p.metrics.IncrementPolls()
	rooms, err := p.api.FetchRooms(context.Background())
	if err != nil {
		p.degrade(resRooms, seq, transport.Event{Type: transport.EventRoomList}, err)
		return
	}

	gated := make([]int64, 0)
	for _, r := range rooms {
		if r.HasPassword {
			gated = append(gated, r.ID)
		}
	}
	p.mu.Lock()
	p.gatedRooms = gated
	p.mu.Unlock()

	p.apply(resRooms, seq, transport.Event{Type: transport.EventRoomList, Rooms: rooms})
}

func (p *Poller) pollOnline() {
	seq := p.gate(resOnline).issue()
	p.metrics.IncrementPolls()
	online, err := p.api.FetchOnlineUsers(context.Background())
	if err != nil {
		p.degrade(resOnline, seq, transport.Event{Type: transport.EventOnlineUsers}, err)
		return
	}
	p.apply(resOnline, seq, transport.Event{Type: transport.EventOnlineUsers, Roster: online})
}

// pollRoomKeys revalidates held keys for password-protected rooms
// seen in the last room list.
func (p *Poller) pollRoomKeys() {
	p.mu.Lock()
	gated := append([]int64(nil), p.gatedRooms...)
	p.mu.Unlock()

	for _, roomID := range gated {
		roomID := roomID
		go func() {
			valid, err := p.api.CheckRoomKey(context.Background(), roomID)
			if err != nil {
				log.Debugf("room key check failed for room %d: %v", roomID, err)
				return
			}
			p.sink.HandleEvent(transport.Event{Type: transport.EventRoomKey, RoomID: roomID, KeyValid: valid})
		}()
	}
}

func (p *Poller) pollConversations() {
	seq := p.gate(resConversations).issue()
	p.metrics.IncrementPolls()
	list, err := p.api.FetchConversations(context.Background())
	if err != nil {
		p.degrade(resConversations, seq, transport.Event{Type: transport.EventConversationList}, err)
		return
	}
	p.apply(resConversations, seq, transport.Event{Type: transport.EventConversationList, Conversations: list})
}
