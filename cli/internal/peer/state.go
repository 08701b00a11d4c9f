// Package peer negotiates and owns the direct connection to one remote
// participant.
package peer

// State is a connector's negotiation state.
type State int

const (
	StateNew State = iota
	StateHaveLocalOffer
	StateHaveRemoteOffer
	StateConnected
	StateDisconnected
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Event drives State transitions.
type Event int

const (
	EventLocalOffer Event = iota
	EventRemoteOffer
	EventLocalAnswer
	EventRemoteAnswer
	EventTransportConnected
	EventTransportDisconnected
	EventTransportFailed
	EventClose
)

func (e Event) String() string {
	switch e {
	case EventLocalOffer:
		return "local-offer"
	case EventRemoteOffer:
		return "remote-offer"
	case EventLocalAnswer:
		return "local-answer"
	case EventRemoteAnswer:
		return "remote-answer"
	case EventTransportConnected:
		return "transport-connected"
	case EventTransportDisconnected:
		return "transport-disconnected"
	case EventTransportFailed:
		return "transport-failed"
	case EventClose:
		return "close"
	}
	return "unknown"
}

type transition struct {
	from State
	on   Event
}

var transitions = map[transition]State{
	{StateNew, EventLocalOffer}:               StateHaveLocalOffer,
	{StateNew, EventRemoteOffer}:              StateHaveRemoteOffer,
	{StateHaveLocalOffer, EventRemoteAnswer}:  StateConnected,
	{StateHaveRemoteOffer, EventLocalAnswer}:  StateConnected,
	{StateConnected, EventTransportConnected}: StateConnected,

	{StateNew, EventTransportDisconnected}:             StateDisconnected,
	{StateHaveLocalOffer, EventTransportDisconnected}:  StateDisconnected,
	{StateHaveRemoteOffer, EventTransportDisconnected}: StateDisconnected,
	{StateConnected, EventTransportDisconnected}:       StateDisconnected,

	{StateNew, EventTransportFailed}:             StateDisconnected,
	{StateHaveLocalOffer, EventTransportFailed}:  StateDisconnected,
	{StateHaveRemoteOffer, EventTransportFailed}: StateDisconnected,
	{StateConnected, EventTransportFailed}:       StateDisconnected,

	{StateNew, EventClose}:             StateClosed,
	{StateHaveLocalOffer, EventClose}:  StateClosed,
	{StateHaveRemoteOffer, EventClose}: StateClosed,
	{StateConnected, EventClose}:       StateClosed,
	{StateDisconnected, EventClose}:    StateClosed,
}

// Next returns the state reached from s on e, and false when e is not
// legal in s.
func Next(s State, e Event) (State, bool) {
	next, ok := transitions[transition{s, e}]
	if !ok {
		return s, false
	}
	return next, true
}

// TransportState mirrors the underlying connection's own state.
type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportDisconnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportNew:
		return "new"
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	}
	return "unknown"
}
