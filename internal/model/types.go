package model

// Phase represents where the scan workflow is within the current cycle.
type Phase int

const (
	PhaseIdle       Phase = iota
	PhaseScanned          // a decoded text is held, no action taken yet
	PhaseSubmitting       // backend call in flight, actions blocked
	PhaseResolved         // last submission finished (recorded or rejected)
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseScanned:
		return "scanned"
	case PhaseSubmitting:
		return "submitting"
	case PhaseResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// MarshalJSON renders the phase as its name; snapshots go straight to
// websocket clients.
func (p Phase) MarshalJSON() ([]byte, error) {
	return []byte(`"` + p.String() + `"`), nil
}

// Action is the per-cycle record of which gate action has been recorded.
// Once set it blocks both actions until reset.
type Action int

const (
	ActionNone Action = iota
	ActionEntry
	ActionExit
)

func (a Action) String() string {
	switch a {
	case ActionEntry:
		return "entry"
	case ActionExit:
		return "exit"
	default:
		return "none"
	}
}

func (a Action) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// Snapshot is an immutable view of the workflow state. The machine replaces
// the whole value on every transition; holders of a Snapshot never see later
// mutations.
type Snapshot struct {
	Phase      Phase  `json:"phase"`
	CycleID    string `json:"cycle_id,omitempty"`
	ScanText   string `json:"scan_text,omitempty"`
	Encoded    string `json:"encoded,omitempty"`
	Action     Action `json:"action"`
	Status     string `json:"status,omitempty"`
	Generation uint64 `json:"generation"`
}

// Actionable reports whether an entry or exit submission may start.
func (s Snapshot) Actionable() bool {
	return s.ScanText != "" && s.Phase != PhaseSubmitting && s.Action == ActionNone
}

// Request represents a websocket command from the camera page or the
// operator terminal.
type Request struct {
	RequestID string            `json:"request_id"`
	Command   string            `json:"command"`
	Params    map[string]string `json:"params"`
}

// Response represents a websocket reply to a single Request.
type Response struct {
	Type      string `json:"type"`
	RequestID string `json:"request_id"`
	Code      int    `json:"code"` // 0 for success, non-zero for error
	Message   string `json:"message,omitempty"`
	Data      any    `json:"data,omitempty"`
}

// Event is a server-initiated push, currently only state snapshots.
type Event struct {
	Type  string `json:"type"`
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}
