package uid

// State classifies the outcome of a UID resolution or assignment.
//
// The order matters: when several sub-resolutions are combined the overall
// state is the maximum severity observed, so a permanently rejected write is
// never reported as merely retryable.
type State int

const (
	// StateOK means the operation completed and an id is available.
	StateOK State = iota
	// StateRetry means a transient condition (assignment in flight, CAS race,
	// attempts exhausted) and the caller should re-attempt later.
	StateRetry
	// StateRejected means policy, authorization or validation declined the
	// operation. Retrying will not help.
	StateRejected
	// StateError means an unexpected storage failure.
	StateError
)

func (s State) String() string {
	switch s {
	case StateOK:
		return "OK"
	case StateRetry:
		return "RETRY"
	case StateRejected:
		return "REJECTED"
	case StateError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// Combine returns the more severe of two states.
func Combine(a, b State) State {
	if b > a {
		return b
	}
	return a
}

// IdOrError is the result of an id resolution: either an id with StateOK, or
// a state describing why no id is available plus the error that caused it.
type IdOrError struct {
	Id    []byte
	State State
	Err   error
}

// OKId wraps a successfully resolved id.
func OKId(id []byte) IdOrError {
	return IdOrError{Id: id, State: StateOK}
}

// RetryId classifies err as transient.
func RetryId(err error) IdOrError {
	return IdOrError{State: StateRetry, Err: err}
}

// RejectedId classifies err as a policy rejection.
func RejectedId(err error) IdOrError {
	return IdOrError{State: StateRejected, Err: err}
}

// ErrorId classifies err as an unexpected failure.
func ErrorId(err error) IdOrError {
	return IdOrError{State: StateError, Err: err}
}

// WorstOf returns the result with the maximum severity among results. Ties go
// to the earliest result so error messages stay deterministic. An empty input
// yields an OK result with no id.
func WorstOf(results ...IdOrError) IdOrError {
	var worst IdOrError
	for i, r := range results {
		if i == 0 || r.State > worst.State {
			worst = r
		}
	}
	return worst
}
