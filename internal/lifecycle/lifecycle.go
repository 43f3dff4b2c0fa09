// Package lifecycle derives tournament status from configured timestamps.
//
// Status is a pure function of (tournament, now): it stores nothing, never
// errors, and is cheap enough to evaluate inline wherever status is needed.
// Malformed configuration (EndTime not after StartTime) degrades to
// Cancelled; validation warnings belong to whoever constructed the
// tournament, not here.
package lifecycle

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arenax/tournament-engine/internal/clock"
	"github.com/arenax/tournament-engine/internal/model"
)

var (
	decimalZero = decimal.Zero
	decimalOne  = decimal.NewFromInt(1)
)

const (
	// DefaultEnrollLead is how long before StartTime enrollment opens when
	// the tournament does not configure EnrollOpen.
	DefaultEnrollLead = 7 * 24 * time.Hour

	// DefaultSettlementWindow is the post-end grace period for final
	// valuation when the tournament does not configure one.
	DefaultSettlementWindow = 24 * time.Hour

	// TransitionTolerance is the window around a boundary inside which
	// AtTransitionPoint reports true.
	TransitionTolerance = 60 * time.Second

	// ReminderWindow is how far ahead of a boundary TransitionReminder
	// starts producing text.
	ReminderWindow = time.Hour
)

// EnrollOpen resolves the effective enrollment-open instant.
func EnrollOpen(t *model.Tournament) time.Time {
	if !t.EnrollOpen.IsZero() {
		return t.EnrollOpen
	}
	return t.StartTime.Add(-DefaultEnrollLead)
}

// SettleUntil resolves the effective end of the settlement window.
func SettleUntil(t *model.Tournament) time.Time {
	w := t.SettlementWindow
	if w <= 0 {
		w = DefaultSettlementWindow
	}
	return t.EndTime.Add(w)
}

// Status derives the lifecycle state at the given instant.
func Status(t *model.Tournament, now time.Time) model.TournamentStatus {
	if t == nil || t.Cancelled {
		return model.StatusCancelled
	}
	// Malformed schedule degrades to Cancelled rather than guessing.
	if !t.EndTime.After(t.StartTime) {
		return model.StatusCancelled
	}

	switch {
	case now.Before(EnrollOpen(t)):
		return model.StatusUpcoming
	case now.Before(t.StartTime):
		return model.StatusEnrolling
	case now.Before(t.EndTime):
		return model.StatusOngoing
	case now.Before(SettleUntil(t)):
		return model.StatusSettling
	default:
		return model.StatusEnded
	}
}

// NextBoundary returns the next transition instant for the current status.
// ok is false once the tournament is Ended or Cancelled (no boundary ahead).
func NextBoundary(t *model.Tournament, now time.Time) (boundary time.Time, ok bool) {
	switch Status(t, now) {
	case model.StatusUpcoming:
		return EnrollOpen(t), true
	case model.StatusEnrolling:
		return t.StartTime, true
	case model.StatusOngoing:
		return t.EndTime, true
	case model.StatusSettling:
		return SettleUntil(t), true
	default:
		return time.Time{}, false
	}
}

// TimeRemaining is the signed duration until the next boundary: time to
// start while Upcoming/Enrolling, time to end while Ongoing. Zero once no
// boundary remains.
func TimeRemaining(t *model.Tournament, now time.Time) time.Duration {
	boundary, ok := NextBoundary(t, now)
	if !ok {
		return 0
	}
	return boundary.Sub(now)
}

// PreciseTimeRemaining formats TimeRemaining for countdown display.
func PreciseTimeRemaining(t *model.Tournament, now time.Time) string {
	return clock.FormatDuration(TimeRemaining(t, now))
}

// AtTransitionPoint reports whether now is within TransitionTolerance of
// any lifecycle boundary, driving "about to change" indicators.
func AtTransitionPoint(t *model.Tournament, now time.Time) bool {
	if t.Cancelled || !t.EndTime.After(t.StartTime) {
		return false
	}
	boundaries := []time.Time{EnrollOpen(t), t.StartTime, t.EndTime, SettleUntil(t)}
	for _, b := range boundaries {
		d := b.Sub(now)
		if d < 0 {
			d = -d
		}
		if d <= TransitionTolerance {
			return true
		}
	}
	return false
}

// TransitionReminder returns a human-readable pre-transition notice, or ""
// when the next boundary is farther away than ReminderWindow.
func TransitionReminder(t *model.Tournament, now time.Time) string {
	boundary, ok := NextBoundary(t, now)
	if !ok {
		return ""
	}
	remaining := boundary.Sub(now)
	if remaining <= 0 || remaining > ReminderWindow {
		return ""
	}

	var event string
	switch Status(t, now) {
	case model.StatusUpcoming:
		event = "enrollment opens"
	case model.StatusEnrolling:
		event = "starts"
	case model.StatusOngoing:
		event = "ends"
	case model.StatusSettling:
		event = "settles"
	}
	return fmt.Sprintf("%s in %s", event, clock.FormatDuration(remaining))
}

// Validate reports configuration problems on a tournament. Callers run it
// at construction time; the status functions above still tolerate whatever
// slips through.
func Validate(t *model.Tournament) error {
	if t.Name == "" {
		return fmt.Errorf("lifecycle: tournament name is required")
	}
	if !t.EndTime.After(t.StartTime) {
		return fmt.Errorf("lifecycle: end time %s must be after start time %s",
			t.EndTime.Format(time.RFC3339), t.StartTime.Format(time.RFC3339))
	}
	if t.MaxParticipants <= 0 {
		return fmt.Errorf("lifecycle: max participants must be positive")
	}
	if t.EntryCapital.LessThanOrEqual(decimalZero) {
		return fmt.Errorf("lifecycle: entry capital must be positive")
	}
	if t.Rules.MaxPositionSize.IsNegative() || t.Rules.MaxPositionSize.GreaterThan(decimalOne) {
		return fmt.Errorf("lifecycle: max position size must be in (0,1]")
	}
	if !t.Rules.RiskLimits.MaxLeverage.IsZero() && t.Rules.RiskLimits.MaxLeverage.LessThan(decimalOne) {
		return fmt.Errorf("lifecycle: max leverage must be >= 1")
	}
	return nil
}
