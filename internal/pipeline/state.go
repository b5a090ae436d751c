package pipeline

// State is the position of a pipeline in its upload cycle.
type State int

const (
	Idle State = iota
	Uploading
	Decoding
	Success
	Failed
)

var stateNames = [...]string{
	Idle:      "idle",
	Uploading: "uploading",
	Decoding:  "decoding",
	Success:   "success",
	Failed:    "failed",
}

func (s State) String() string {
	if s < Idle || s > Failed {
		return "unknown"
	}
	return stateNames[s]
}

// MarshalText renders the state name in JSON payloads.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// InFlight reports whether a submission is running.
func (s State) InFlight() bool {
	return s == Uploading || s == Decoding
}

// AtRest reports whether a new file may be selected or submitted.
// Success and Failed end a cycle and behave like Idle.
func (s State) AtRest() bool {
	return !s.InFlight()
}
