package frame

import "fmt"

// State is the position of the Scheduler in its frame cycle.
type State int

const (
	StateIdle State = iota
	StateAcquiring
	StateSubmitting
	StatePresenting
	StateRecreating
	StateClosed
)

var stateNames = map[State]string{
	StateIdle:       "idle",
	StateAcquiring:  "acquiring",
	StateSubmitting: "submitting",
	StatePresenting: "presenting",
	StateRecreating: "recreating",
	StateClosed:     "closed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Stats counts scheduler activity since creation.
type Stats struct {
	FramesPresented uint64
	FramesSkipped   uint64
	Recreations     uint64
}
