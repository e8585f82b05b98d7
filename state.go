package hubconn

// State is the public connection state.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
	StateReconnecting
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// StateChange describes one state transition.
type StateChange struct {
	Old State `json:"old"`
	New State `json:"new"`
}
