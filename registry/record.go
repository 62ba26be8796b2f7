package registry

import (
	"sync"
	"time"

	"github.com/soc-validation/boardfarm/common/types"
)

// BoardRecord wraps a Board with its per-board critical section. All health
// and usage mutations go through these methods; readers take short snapshots.
// Keeping the lock per-board (rather than one registry-wide lock) keeps
// matching throughput for one family independent of activity on the others.
type BoardRecord struct {
	mu    sync.Mutex
	board types.Board
}

func newBoardRecord(board types.Board) *BoardRecord {
	return &BoardRecord{board: board}
}

func (r *BoardRecord) ID() string {
	return r.board.BoardID
}

func (r *BoardRecord) Family() string {
	return r.board.HardwareFamily
}

// Snapshot returns a copy of the board's current state.
func (r *BoardRecord) Snapshot() types.Board {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.board
}

// HealthStatus returns the board's current health. The lease manager calls
// this on every match attempt; eligibility is never cached.
func (r *BoardRecord) HealthStatus() types.HealthStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	return r.board.HealthStatus
}

// LastUsed returns the time the board was last leased, or the zero time if it
// has never been used.
func (r *BoardRecord) LastUsed() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.board.LastUsed == nil {
		return time.Time{}
	}

	return *r.board.LastUsed
}

// Touch records that the board was just leased.
func (r *BoardRecord) Touch(at time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()

	used := at
	r.board.LastUsed = &used
}

// RecordFailure applies a failure outcome: both failure counters are
// incremented, and the board is quarantined once the same-day failure count
// reaches the threshold. The daily counter is reset first if the calendar day
// has rolled over since the last reset; when clearOnRollover is set, that
// reset also lifts an existing quarantine.
//
// Returns (quarantined just now, daily failure count after the update).
func (r *BoardRecord) RecordFailure(at time.Time, threshold int, clearOnRollover bool) (bool, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rolloverUnsafe(at, clearOnRollover)

	r.board.ConsecutiveFailures++
	r.board.DailyFailureCount++

	if r.board.HealthStatus == types.BoardHealthy && r.board.DailyFailureCount >= threshold {
		r.board.HealthStatus = types.BoardQuarantined
		return true, r.board.DailyFailureCount
	}

	return false, r.board.DailyFailureCount
}

// RecordSuccess applies a success outcome: the consecutive-failure counter is
// reset. The daily failure count is left alone; it tracks a calendar-day
// window independent of successes.
func (r *BoardRecord) RecordSuccess(at time.Time, clearOnRollover bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.rolloverUnsafe(at, clearOnRollover)

	r.board.ConsecutiveFailures = 0
}

// rolloverUnsafe resets the daily failure counter when the tracked day has
// changed. The mutex must be held.
func (r *BoardRecord) rolloverUnsafe(at time.Time, clearOnRollover bool) {
	lastYear, lastDay := r.board.LastFailureReset.Year(), r.board.LastFailureReset.YearDay()
	nowYear, nowDay := at.Year(), at.YearDay()

	if r.board.LastFailureReset.IsZero() || lastYear != nowYear || lastDay != nowDay {
		r.board.DailyFailureCount = 0
		r.board.LastFailureReset = at

		if clearOnRollover && r.board.HealthStatus == types.BoardQuarantined {
			r.board.HealthStatus = types.BoardHealthy
		}
	}
}

// SetHealth forcibly sets the board's health state, returning the previous
// state. Administrative override; this is the only way out of quarantine
// unless rollover-clearing is configured.
func (r *BoardRecord) SetHealth(status types.HealthStatus) types.HealthStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous := r.board.HealthStatus
	r.board.HealthStatus = status

	if status == types.BoardHealthy && previous == types.BoardQuarantined {
		r.board.DailyFailureCount = 0
		r.board.ConsecutiveFailures = 0
	}

	return previous
}
