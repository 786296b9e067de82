package filelease

// Outcome classifies a single acquisition attempt.
type Outcome string

const (
	// OutcomeCreated means no marker existed and a new one was written.
	OutcomeCreated Outcome = "created"
	// OutcomeReclaimed means an expired marker was overwritten.
	OutcomeReclaimed Outcome = "reclaimed"
	// OutcomeContended means another holder's lease is still valid or its
	// marker was being rewritten.
	OutcomeContended Outcome = "contended"
	// OutcomeFailed means the marker could not be read or written.
	OutcomeFailed Outcome = "failed"
)

// Acquired reports whether the outcome left the handle holding the lease.
func (o Outcome) Acquired() bool {
	return o == OutcomeCreated || o == OutcomeReclaimed
}

// Observer receives lease events. Implementations must be safe for
// concurrent use; renewal events arrive from a background goroutine.
type Observer interface {
	ObserveAcquire(outcome Outcome)
	ObserveExtend(renewal bool, err error)
	ObserveRelease(err error)
}

type nopObserver struct{}

func (nopObserver) ObserveAcquire(Outcome) {}
func (nopObserver) ObserveExtend(bool, error) {}
func (nopObserver) ObserveRelease(error) {}
