package connect

// Phase is the lifecycle state of a connection attempt.
type Phase string

const (
	// PhaseIdle means no attempt is in flight. A canceled attempt freezes here.
	PhaseIdle Phase = "idle"
	// PhaseRequesting means the connect call to the provider is in flight.
	PhaseRequesting Phase = "requesting"
	// PhaseAwaitingScan means a scan code was issued and both the push and
	// poll listeners are watching for the terminal status.
	PhaseAwaitingScan Phase = "awaiting_scan"
	// PhaseConnected is the terminal success state.
	PhaseConnected Phase = "connected"
	// PhaseFailed is the terminal failure state.
	PhaseFailed Phase = "failed"
)

// terminal reports whether no further transition can occur.
func (p Phase) terminal() bool {
	return p == PhaseConnected || p == PhaseFailed
}

// Source identifies which listener observed the terminal status first.
type Source string

const (
	// SourceDial means the connect call itself reported a connected status.
	SourceDial Source = "dial"
	// SourcePush means the change-notification feed won the race.
	SourcePush Source = "push"
	// SourcePoll means the status poll won the race.
	SourcePoll Source = "poll"
)
