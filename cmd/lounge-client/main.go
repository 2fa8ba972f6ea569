package main

import (
	"bufio"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	logging "github.com/ipfs/go-log/v2"

	"github.com/kevinwklawrence/lounge-realtime/internal/api"
	"github.com/kevinwklawrence/lounge-realtime/internal/channel"
	"github.com/kevinwklawrence/lounge-realtime/internal/chat"
	"github.com/kevinwklawrence/lounge-realtime/internal/config"
	"github.com/kevinwklawrence/lounge-realtime/internal/poller"
	"github.com/kevinwklawrence/lounge-realtime/internal/session"
	"github.com/kevinwklawrence/lounge-realtime/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to JSON config file")
	name := flag.String("name", "", "display name (guest session)")
	logLevel := flag.String("log-level", "error", "log level for subsystem loggers")
	flag.Parse()

	if lvl, err := logging.LevelFromString(*logLevel); err == nil {
		logging.SetAllLoggers(lvl)
	}

	loader := config.NewLoader(*configPath)
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	displayName := *name
	if displayName == "" {
		displayName = "guest-" + uuid.NewString()[:8]
	}
	sess := chat.Session{
		SessionID: uuid.NewString(),
		Self:      chat.User{ID: uuid.NewString(), Name: displayName, IsGuest: true},
	}

	metrics := config.NewClientMetrics()
	apiClient := api.NewClient(cfg, sess.SessionID)

	var sel *transport.Selector
	ch := channel.NewClient(channel.Options{
		URL:         cfg.ChannelURL(),
		MaxAttempts: cfg.MaxReconnectAttempts,
		BaseDelay:   cfg.ReconnectBaseDelay,
		Identity: func() (string, chat.User) {
			return sess.SessionID, sess.Self
		},
		OnState: func(st channel.State) {
			if sel != nil {
				sel.HandleChannelState(st)
			}
		},
		OnEvent: func(env chat.Envelope) {
			if sel != nil {
				sel.HandleChannelEvent(env)
			}
		},
		Metrics: metrics,
	})

	mgr := session.NewManager(cfg, sess, apiClient, ch, &consoleNotifier{})
	p := poller.New(cfg, apiClient, mgr, metrics)
	sel = transport.NewSelector(ch, p, mgr)

	stopWatch, err := loader.Watch(func(next *config.ClientConfig) {
		fmt.Printf("⚙️  configuration reloaded (api=%s channel=%s)\n", next.APIBaseURL, next.ChannelAddr)
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "config watch unavailable: %v\n", err)
	} else {
		defer stopWatch()
	}

	// Lounge polling starts right away; the channel joins on /join.
	p.Start()

	fmt.Printf("👋 connected as %s — /join <room>, /pm <user> <text>, /whisper <user> <text>, /knock <room>, /leave, /quit\n", displayName)

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if !strings.HasPrefix(line, "/") {
			mgr.Keystroke()
			if err := mgr.SendRoomMessage(line, ""); err != nil {
				fmt.Printf("❌ %v\n", err)
			}
			continue
		}
		if done := runCommand(line, mgr, sel); done {
			break
		}
	}

	sel.Shutdown()
	mgr.Shutdown()
	fmt.Println("🔌 session closed")
}

func runCommand(line string, mgr *session.Manager, sel *transport.Selector) bool {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true

	case "/join":
		if len(fields) < 2 {
			fmt.Println("usage: /join <room-id>")
			return false
		}
		roomID, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			fmt.Println("room id must be numeric")
			return false
		}
		mgr.EnterRoom(roomID)
		sel.EnterRoom(roomID)
		fmt.Printf("🚪 joined room %d\n", roomID)

	case "/leave":
		sel.LeaveRoom()
		mgr.LeaveRoom()
		fmt.Println("🚪 back in the lounge")

	case "/pm", "/whisper":
		if len(fields) < 3 {
			fmt.Printf("usage: %s <user> <text>\n", fields[0])
			return false
		}
		kind := chat.ConversationPrivate
		if fields[0] == "/whisper" {
			kind = chat.ConversationWhisper
		}
		key, err := mgr.OpenConversation(fields[1], kind)
		if err != nil {
			fmt.Printf("❌ %v\n", err)
			return false
		}
		if err := mgr.SendPrivate(key, strings.Join(fields[2:], " ")); err != nil {
			fmt.Printf("❌ %v\n", err)
		}

	case "/knock":
		if len(fields) < 2 {
			fmt.Println("usage: /knock <room-id>")
			return false
		}
		roomID, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			fmt.Println("room id must be numeric")
			return false
		}
		if err := mgr.KnockOn(roomID); err != nil {
			fmt.Printf("❌ %v\n", err)
		} else {
			fmt.Printf("🚪 knocked on room %d\n", roomID)
		}

	default:
		fmt.Printf("unknown command %s\n", fields[0])
	}
	return false
}

// consoleNotifier renders the unified update stream as plain lines.
type consoleNotifier struct{}

func (consoleNotifier) RoomUpdated(s session.RoomSnapshot) {
	if len(s.Messages) > 0 {
		last := s.Messages[len(s.Messages)-1]
		fmt.Printf("📨 [%s] %s\n", last.SenderName, last.Body)
	}
	if len(s.TypingFrom) > 0 {
		fmt.Printf("✏️  typing: %s\n", strings.Join(s.TypingFrom, ", "))
	}
}

func (consoleNotifier) ConversationUpdated(s session.ConversationSnapshot) {
	if len(s.Messages) > 0 {
		last := s.Messages[len(s.Messages)-1]
		fmt.Printf("💬 [%s → %s] %s\n", last.SenderID, s.Peer.Name, last.Body)
	}
}

func (consoleNotifier) ConversationListUpdated(list []chat.ConversationSummary) {
	for _, c := range list {
		if c.Unread > 0 {
			fmt.Printf("🔔 %s: %d unread\n", c.PeerName, c.Unread)
		}
	}
}

func (consoleNotifier) LoungeUpdated(rooms []chat.Room, online []chat.PresenceEntry) {
	if rooms != nil {
		fmt.Printf("🏠 %d rooms open\n", len(rooms))
	}
	if online != nil {
		fmt.Printf("🟢 %d online\n", len(online))
	}
}

func (consoleNotifier) KnocksUpdated(knocks []chat.Knock) {
	for _, k := range knocks {
		fmt.Printf("🚪 %s is knocking on room %d\n", k.UserName, k.RoomID)
	}
}

func (consoleNotifier) RoomKeyChecked(roomID int64, valid bool) {
	if !valid {
		fmt.Printf("🔑 key for room %d expired\n", roomID)
	}
}

func (consoleNotifier) PanelFailed(panel string, err error) {
	fmt.Printf("⚠️  %s unavailable: %v\n", panel, err)
}

func (consoleNotifier) Toast(text string) {
	fmt.Printf("ℹ️  %s\n", text)
}
