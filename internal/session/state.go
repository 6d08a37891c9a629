package session

// State is the lifecycle state of a Session.
type State uint8

const (
	StateIdle State = iota
	StateRequesting
	StateBound
	StateReleased
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "IDLE"
	case StateRequesting:
		return "REQUESTING"
	case StateBound:
		return "BOUND"
	case StateReleased:
		return "RELEASED"
	default:
		return "UNKNOWN"
	}
}

// Observer is told about transitions the session cannot resolve alone.
// Methods are called on driver goroutines, never while the session's
// lock is held, so they may call back into the session.
type Observer interface {
	// SearchTimedOut reports a search timeout; the session stays
	// Requesting.
	SearchTimedOut(s *Session)
	// Bound reports that access was granted and channels were bound.
	Bound(s *Session, deviceNumber int)
	// Released reports the move to Released. reason is nil for Stop.
	Released(s *Session, reason error)
}

type noopObserver struct{}

func (noopObserver) SearchTimedOut(*Session)  {}
func (noopObserver) Bound(*Session, int)      {}
func (noopObserver) Released(*Session, error) {}
