// Package transport runs the realtime interview connection: WebRTC
// media plus a data channel for structured events, with a websocket
// signaling handshake.
package transport

// ConnectionHealth is the session's externally visible state.
type ConnectionHealth int

const (
	HealthDisconnected ConnectionHealth = iota
	HealthConnecting
	HealthConnected
	HealthReconnecting
	HealthFailed
)

// String returns a human-readable health name.
func (h ConnectionHealth) String() string {
	switch h {
	case HealthConnecting:
		return "connecting"
	case HealthConnected:
		return "connected"
	case HealthReconnecting:
		return "reconnecting"
	case HealthFailed:
		return "failed"
	default:
		return "disconnected"
	}
}

// allowedTransitions encodes the health state machine. Transitions
// move forward only; reconnecting back to connected is the single
// allowed reversal.
var allowedTransitions = map[ConnectionHealth][]ConnectionHealth{
	HealthDisconnected: {HealthConnecting},
	HealthConnecting:   {HealthConnected, HealthFailed, HealthDisconnected},
	HealthConnected:    {HealthReconnecting, HealthDisconnected},
	HealthReconnecting: {HealthConnected, HealthFailed, HealthDisconnected},
	HealthFailed:       {},
}

// CanTransition reports whether moving from one health state to
// another is legal.
func CanTransition(from, to ConnectionHealth) bool {
	if from == to {
		return false
	}
	for _, next := range allowedTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether the state can never change again.
func (h ConnectionHealth) Terminal() bool {
	return len(allowedTransitions[h]) == 0
}
