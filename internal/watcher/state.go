package watcher

// State is a position in the poll loop's state machine.
type State int32

const (
	StateStarting State = iota
	StateWaitingBurst
	StateWaitingBlocking
	StateDraining
	StateReopening
	StateFatal
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateWaitingBurst:
		return "waiting-burst"
	case StateWaitingBlocking:
		return "waiting-blocking"
	case StateDraining:
		return "draining"
	case StateReopening:
		return "reopening"
	case StateFatal:
		return "fatal"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Stats is a snapshot of loop counters.
type Stats struct {
	State        State
	Records      uint64 // all records handed to the sink
	BurstRecords uint64 // records from the startup backlog
	Truncated    uint64
	Reopens      uint64 // reopen attempts, successful or not
	Flushes      uint64 // successful startup flushes
	FlushErrors  uint64
	Overruns     uint64
}
