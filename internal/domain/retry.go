package domain

import (
	"errors"
	"fmt"
)

// Every attempt failure is retried under the job's retry policy until the
// attempt budget is exhausted (is_last = attempt >= max_retries + 1,
// applied uniformly to exceptions, non-2xx responses, non-zero exits, and
// timeouts). PanicError and JobCancelled are the only two conditions exempt
// from that rule: a panic signals a programming error in the executor, and
// a cancellation is the executor explicitly asking to stop regardless of
// budget.

// PanicError records a recovered panic from an executor. A panicking
// attempt is never retried: it signals a programming error in the executor,
// not a transient condition.
type PanicError struct {
	Value any
	Stack string
}

func (e PanicError) Error() string { return fmt.Sprintf("panic: %v", e.Value) }

// IsPanic reports whether err wraps a recovered panic.
func IsPanic(err error) bool {
	var pe PanicError
	return errors.As(err, &pe)
}

// JobCancelled lets an executor abort a job permanently, independent of its
// retry budget (e.g. the target resource was deleted mid-flight).
type JobCancelled struct{ Reason string }

func (e JobCancelled) Error() string { return fmt.Sprintf("job cancelled: %s", e.Reason) }

// IsJobCancelled reports whether err requests permanent cancellation.
func IsJobCancelled(err error) bool {
	var jc JobCancelled
	return errors.As(err, &jc)
}
