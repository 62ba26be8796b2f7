// Package health maintains per-board failure counters and drives the
// Healthy/Quarantined transitions that gate matching eligibility.
package health

import (
	"time"

	"github.com/Scusemua/go-utils/config"
	"github.com/Scusemua/go-utils/logger"

	"github.com/soc-validation/boardfarm/common/types"
	"github.com/soc-validation/boardfarm/registry"
)

// HealthChangedCallback is invoked after a board's health state changes, with
// the board's ID, family, and new state. The lease manager uses it to trigger
// a fresh matching pass when a board becomes eligible again.
type HealthChangedCallback func(boardID string, family string, status types.HealthStatus)

// Tracker applies job outcomes to board health state.
//
// A failure increments both the consecutive and the same-day failure
// counters; reaching the same-day threshold quarantines the board. A success
// resets only the consecutive counter. The daily counter resets when the
// calendar day rolls over. Quarantine is sticky: only a manual SetHealth call
// clears it, unless ClearQuarantineOnDayRollover was configured.
type Tracker struct {
	log logger.Logger

	registry        registry.BoardRegistry
	threshold       int
	clearOnRollover bool
	onHealthChanged HealthChangedCallback
}

func NewTracker(reg registry.BoardRegistry, threshold int, clearOnRollover bool) *Tracker {
	t := &Tracker{
		registry:        reg,
		threshold:       threshold,
		clearOnRollover: clearOnRollover,
	}

	config.InitLogger(&t.log, t)

	return t
}

// SetHealthChangedCallback registers the callback invoked on health
// transitions. Must be called before the tracker is shared across goroutines.
func (t *Tracker) SetHealthChangedCallback(cb HealthChangedCallback) {
	t.onHealthChanged = cb
}

// RecordOutcome applies a job outcome to the board's counters, quarantining
// the board if the same-day failure threshold is reached. A transition to
// Quarantined takes effect immediately for future matching but does not
// revoke an already-active lease.
func (t *Tracker) RecordOutcome(boardID string, outcome types.Outcome) error {
	return t.RecordOutcomeAt(boardID, outcome, time.Now())
}

// RecordOutcomeAt is RecordOutcome with an explicit observation time, so the
// day-rollover behavior can be exercised deterministically.
func (t *Tracker) RecordOutcomeAt(boardID string, outcome types.Outcome, at time.Time) error {
	record, err := t.registry.GetBoard(boardID)
	if err != nil {
		return err
	}

	if outcome == types.OutcomeSuccess {
		record.RecordSuccess(at, t.clearOnRollover)
		t.log.Debug("Recorded success for board %s.", boardID)
		return nil
	}

	quarantined, dailyFailures := record.RecordFailure(at, t.threshold, t.clearOnRollover)
	t.log.Warn("Recorded failure #%d (today) for board %s.", dailyFailures, boardID)

	if quarantined {
		t.log.Error("Board %s quarantined after %d same-day failure(s).", boardID, dailyFailures)
		t.notify(record, types.BoardQuarantined)
	}

	return nil
}

// SetHealth forcibly sets a board's health state, regardless of its counters.
// Forcing a quarantined board back to Healthy restores matching eligibility
// immediately.
func (t *Tracker) SetHealth(boardID string, status types.HealthStatus) error {
	record, err := t.registry.GetBoard(boardID)
	if err != nil {
		return err
	}

	previous := record.SetHealth(status)
	if previous == status {
		return nil
	}

	t.log.Info("Board %s health manually set: %s -> %s.", boardID, previous, status)
	t.notify(record, status)

	return nil
}

func (t *Tracker) notify(record *registry.BoardRecord, status types.HealthStatus) {
	if t.onHealthChanged != nil {
		t.onHealthChanged(record.ID(), record.Family(), status)
	}
}
