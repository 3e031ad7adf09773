package model

// SessionState is the lifecycle state of a protocol session.
type SessionState int

const (
	SessionDisconnected SessionState = iota
	SessionConnecting
	SessionConnected
	SessionSelectingFolder
	SessionReady
	SessionFailed
)

// String returns a lower-case label for the state.
func (s SessionState) String() string {
	switch s {
	case SessionDisconnected:
		return "disconnected"
	case SessionConnecting:
		return "connecting"
	case SessionConnected:
		return "connected"
	case SessionSelectingFolder:
		return "selecting folder"
	case SessionReady:
		return "ready"
	case SessionFailed:
		return "failed"
	default:
		return "unknown"
	}
}
