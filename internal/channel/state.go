package channel

// State is the per-connection lifecycle of the realtime channel.
//
//	Disconnected -> Connecting -> Authenticating -> Live
//	Connecting/Authenticating failure -> Retrying -> Connecting
//	retry budget exhausted -> PollingFallback (terminal)
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateAuthenticating
	StateLive
	StateRetrying
	StatePollingFallback
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateAuthenticating:
		return "authenticating"
	case StateLive:
		return "live"
	case StateRetrying:
		return "retrying"
	case StatePollingFallback:
		return "polling_fallback"
	default:
		return "unknown"
	}
}

// Terminal reports whether the channel will make no further attempts
// on its own.
func (s State) Terminal() bool {
	return s == StatePollingFallback
}
