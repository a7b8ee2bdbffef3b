package article

import (
	"errors"
	"fmt"
	"time"
)

// Decision says what the engine should do with the stage returned by Next.
type Decision int

const (
	// DecisionNone means the pipeline is complete or blocked on a failed
	// prerequisite; there is nothing to run.
	DecisionNone Decision = iota
	// DecisionRun means the returned stage is eligible for execution.
	DecisionRun
	// DecisionBusy means another worker holds a fresh lease on a stage.
	DecisionBusy
)

// Next returns the earliest stage eligible for execution. It is a pure
// function of the snapshot plus the caller's clock and lease timeout, which
// is what makes ticking restart-safe: any worker looking at the same
// snapshot at the same time reaches the same conclusion.
//
// An in_progress stage whose lease has expired is treated as abandoned and
// returned as runnable; a fresh lease yields DecisionBusy. A failed stage
// blocks everything after it and yields DecisionNone.
func Next(a *Article, now time.Time, leaseTimeout time.Duration) (Stage, Decision) {
	for _, s := range Order {
		rec, ok := a.Stages[s]
		if !ok {
			return s, DecisionRun
		}
		switch rec.Status {
		case StatusDone, StatusSkipped:
			continue
		case StatusPending:
			return s, DecisionRun
		case StatusInProgress:
			if !rec.StartedAt.IsZero() && now.Sub(rec.StartedAt) >= leaseTimeout {
				return s, DecisionRun
			}
			return "", DecisionBusy
		case StatusFailed:
			return "", DecisionNone
		default:
			return "", DecisionNone
		}
	}
	return "", DecisionNone
}

// ErrCorrupt marks a stored snapshot that violates the pipeline invariants.
// Such a snapshot is never repaired by guessing; it is surfaced to the
// operator instead.
var ErrCorrupt = errors.New("article snapshot violates pipeline invariants")

// Validate checks the structural invariants of a snapshot: stage completion
// is monotonic in pipeline order, and a stage with zero attempts can only be
// pending or skipped.
func Validate(a *Article) error {
	if a.PMID == "" {
		return fmt.Errorf("%w: empty pmid", ErrCorrupt)
	}
	prevSatisfied := true
	for _, s := range Order {
		rec, ok := a.Stages[s]
		if !ok {
			prevSatisfied = false
			continue
		}
		if rec.Status == StatusDone && !prevSatisfied {
			return fmt.Errorf("%w: stage %s is done but an earlier stage is not done or skipped", ErrCorrupt, s)
		}
		if rec.Attempts == 0 && rec.Status != StatusPending && rec.Status != StatusSkipped {
			return fmt.Errorf("%w: stage %s has status %s with zero attempts", ErrCorrupt, s, rec.Status)
		}
		prevSatisfied = prevSatisfied && satisfied(rec.Status)
	}
	return nil
}
