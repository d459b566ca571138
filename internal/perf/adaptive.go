package perf

import "sync"

// StressTracker adds hysteresis to Monitor.IsUnderStress so the health log
// reports a state change only after the condition has held for several
// consecutive checks.
type StressTracker struct {
	holdCount    int
	recoverCount int

	// Control state
	isUnderStress bool
	stressCount   int
	recoveryCount int

	mutex sync.Mutex
}

// NewStressTracker enters stress after holdCount stressed samples in a row
// and leaves it after recoverCount calm samples in a row.
func NewStressTracker(holdCount, recoverCount int) *StressTracker {
	if holdCount < 1 {
		holdCount = 1
	}
	if recoverCount < 1 {
		recoverCount = 1
	}
	return &StressTracker{
		holdCount:    holdCount,
		recoverCount: recoverCount,
	}
}

// Observe records one sample and reports the resulting state and whether
// it just changed.
func (st *StressTracker) Observe(stressed bool) (underStress, changed bool) {
	st.mutex.Lock()
	defer st.mutex.Unlock()

	switch {
	case stressed && !st.isUnderStress:
		st.recoveryCount = 0
		st.stressCount++
		if st.stressCount >= st.holdCount {
			// System entered stress state
			st.isUnderStress = true
			st.stressCount = 0
			changed = true
		}
	case !stressed && st.isUnderStress:
		st.stressCount = 0
		st.recoveryCount++
		if st.recoveryCount >= st.recoverCount {
			// System recovered
			st.isUnderStress = false
			st.recoveryCount = 0
			changed = true
		}
	default:
		// Steady state resets the opposite counter
		st.stressCount = 0
		st.recoveryCount = 0
	}
	return st.isUnderStress, changed
}

// UnderStress returns the current debounced state.
func (st *StressTracker) UnderStress() bool {
	st.mutex.Lock()
	defer st.mutex.Unlock()
	return st.isUnderStress
}
