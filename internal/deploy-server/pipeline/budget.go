package pipeline

import "time"

// Budget tracks one run's elapsed wall-clock time against a total
// allowance. Crossing total-margin is a warning; crossing total fails
// the run. Checks are cooperative, a stage already in flight is never
// interrupted.
type Budget struct {
	start  time.Time
	total  time.Duration
	margin time.Duration
}

func NewBudget(start time.Time, total, margin time.Duration) Budget {
	return Budget{start: start, total: total, margin: margin}
}

func (b Budget) Elapsed() time.Duration {
	return time.Since(b.start)
}

// SoftExceeded reports whether the warning threshold (total minus
// margin) has been crossed.
func (b Budget) SoftExceeded() bool {
	return b.Elapsed() > b.total-b.margin
}

// HardExceeded reports whether the full budget has been spent.
func (b Budget) HardExceeded() bool {
	return b.Elapsed() > b.total
}

func (b Budget) Total() time.Duration {
	return b.total
}
