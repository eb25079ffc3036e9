package indexer

import "time"

// State is the lifecycle state of a ChainIndexer.
type State string

const (
	StateStopped     State = "STOPPED"
	StateInitialized State = "INITIALIZED"
	StateRunning     State = "RUNNING"
)

// AllStates lists every lifecycle state.
var AllStates = []State{StateStopped, StateInitialized, StateRunning}

func (s State) String() string {
	return string(s)
}

// StateNames returns AllStates as strings.
func StateNames() []string {
	names := make([]string, len(AllStates))
	for i, s := range AllStates {
		names[i] = s.String()
	}
	return names
}

// Status is a point-in-time view of one chain indexer.
// @Description Lifecycle state and progress of one chain indexer
type Status struct {
	State         State      `json:"state" example:"RUNNING"`
	NextCursor    uint64     `json:"next_cursor" example:"19500001" description:"First height the next cycle will fetch"`
	LastCycleAt   *time.Time `json:"last_cycle_at,omitempty" description:"When the last successful cycle finished"`
	LastError     string     `json:"last_error,omitempty" description:"Error of the last failed cycle or initialization"`
	SkippedCycles uint64     `json:"skipped_cycles" description:"Ticks skipped because a cycle was still running"`
}
