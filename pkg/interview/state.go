package interview

// State is the session lifecycle phase.
type State int

const (
	StateSetup State = iota
	StateConnecting
	StateLive
	StateSubmitting
	StateEnded
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateLive:
		return "live"
	case StateSubmitting:
		return "submitting"
	case StateEnded:
		return "ended"
	default:
		return "setup"
	}
}

// stateTransitions encodes the lifecycle. Connecting falls back to
// setup when the session cannot be created, so the client can retry;
// submitting returns to live on failure. Ended is final.
var stateTransitions = map[State][]State{
	StateSetup:      {StateConnecting, StateEnded},
	StateConnecting: {StateLive, StateSetup, StateEnded},
	StateLive:       {StateSubmitting, StateEnded},
	StateSubmitting: {StateLive, StateEnded},
	StateEnded:      {},
}

// canTransition reports whether a lifecycle move is legal.
func canTransition(from, to State) bool {
	for _, next := range stateTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Mode says which interviewer path is active. At most one is ever
// live at a time.
type Mode int

const (
	ModeNone Mode = iota
	ModeRealtime
	ModeLocal
)

// String returns a human-readable mode name.
func (m Mode) String() string {
	switch m {
	case ModeRealtime:
		return "realtime"
	case ModeLocal:
		return "local"
	default:
		return "none"
	}
}
