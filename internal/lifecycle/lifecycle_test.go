package lifecycle_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/arenax/tournament-engine/internal/lifecycle"
	"github.com/arenax/tournament-engine/internal/model"
)

var (
	start = time.Date(2025, 7, 1, 9, 0, 0, 0, time.UTC)
	end   = time.Date(2025, 7, 8, 17, 0, 0, 0, time.UTC)
)

func baseTournament() *model.Tournament {
	return &model.Tournament{
		ID:              "t1",
		Name:            "July Open",
		StartTime:       start,
		EndTime:         end,
		MaxParticipants: 100,
		EntryCapital:    decimal.NewFromInt(1000000),
	}
}

// --- Status derivation ---

func TestStatus_AllPhases(t *testing.T) {
	tourney := baseTournament()
	cases := []struct {
		name string
		now  time.Time
		want model.TournamentStatus
	}{
		{"far before enrollment", start.Add(-30 * 24 * time.Hour), model.StatusUpcoming},
		{"just before enroll open", start.Add(-lifecycle.DefaultEnrollLead).Add(-time.Second), model.StatusUpcoming},
		{"enroll open instant", start.Add(-lifecycle.DefaultEnrollLead), model.StatusEnrolling},
		{"mid enrollment", start.Add(-24 * time.Hour), model.StatusEnrolling},
		{"start instant", start, model.StatusOngoing},
		{"mid tournament", start.Add(3 * 24 * time.Hour), model.StatusOngoing},
		{"just before end", end.Add(-time.Second), model.StatusOngoing},
		{"end instant", end, model.StatusSettling},
		{"mid settlement", end.Add(12 * time.Hour), model.StatusSettling},
		{"settlement over", end.Add(lifecycle.DefaultSettlementWindow), model.StatusEnded},
		{"long after", end.Add(365 * 24 * time.Hour), model.StatusEnded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := lifecycle.Status(tourney, tc.now); got != tc.want {
				t.Errorf("Status(%v) = %s, want %s", tc.now, got, tc.want)
			}
		})
	}
}

func TestStatus_IsPure(t *testing.T) {
	tourney := baseTournament()
	now := start.Add(time.Hour)
	first := lifecycle.Status(tourney, now)
	for i := 0; i < 10; i++ {
		if got := lifecycle.Status(tourney, now); got != first {
			t.Fatalf("Status changed between identical calls: %s then %s", first, got)
		}
	}
}

func TestStatus_ExplicitEnrollOpen(t *testing.T) {
	tourney := baseTournament()
	tourney.EnrollOpen = start.Add(-48 * time.Hour)

	if got := lifecycle.Status(tourney, start.Add(-72*time.Hour)); got != model.StatusUpcoming {
		t.Errorf("before explicit enroll open: got %s, want upcoming", got)
	}
	if got := lifecycle.Status(tourney, start.Add(-47*time.Hour)); got != model.StatusEnrolling {
		t.Errorf("after explicit enroll open: got %s, want enrolling", got)
	}
}

func TestStatus_ExplicitSettlementWindow(t *testing.T) {
	tourney := baseTournament()
	tourney.SettlementWindow = time.Hour

	if got := lifecycle.Status(tourney, end.Add(30*time.Minute)); got != model.StatusSettling {
		t.Errorf("inside custom window: got %s, want settling", got)
	}
	if got := lifecycle.Status(tourney, end.Add(time.Hour)); got != model.StatusEnded {
		t.Errorf("past custom window: got %s, want ended", got)
	}
}

func TestStatus_Cancelled(t *testing.T) {
	tourney := baseTournament()
	tourney.Cancelled = true
	if got := lifecycle.Status(tourney, start.Add(time.Hour)); got != model.StatusCancelled {
		t.Errorf("got %s, want cancelled", got)
	}
}

func TestStatus_MalformedScheduleDegradesToCancelled(t *testing.T) {
	tourney := baseTournament()
	tourney.EndTime = tourney.StartTime // zero-length
	if got := lifecycle.Status(tourney, start); got != model.StatusCancelled {
		t.Errorf("zero-length schedule: got %s, want cancelled", got)
	}

	tourney.EndTime = tourney.StartTime.Add(-time.Hour) // inverted
	if got := lifecycle.Status(tourney, start); got != model.StatusCancelled {
		t.Errorf("inverted schedule: got %s, want cancelled", got)
	}
}

func TestStatus_NilTournament(t *testing.T) {
	if got := lifecycle.Status(nil, start); got != model.StatusCancelled {
		t.Errorf("nil tournament: got %s, want cancelled", got)
	}
}

// --- Countdown ---

func TestTimeRemaining(t *testing.T) {
	tourney := baseTournament()

	now := start.Add(-2 * time.Hour) // enrolling, counts down to start
	if got := lifecycle.TimeRemaining(tourney, now); got != 2*time.Hour {
		t.Errorf("enrolling: remaining = %v, want 2h", got)
	}

	now = end.Add(-30 * time.Minute) // ongoing, counts down to end
	if got := lifecycle.TimeRemaining(tourney, now); got != 30*time.Minute {
		t.Errorf("ongoing: remaining = %v, want 30m", got)
	}

	now = end.Add(lifecycle.DefaultSettlementWindow + time.Hour)
	if got := lifecycle.TimeRemaining(tourney, now); got != 0 {
		t.Errorf("ended: remaining = %v, want 0", got)
	}
}

func TestPreciseTimeRemaining(t *testing.T) {
	tourney := baseTournament()
	now := end.Add(-26*time.Hour - 5*time.Minute)
	if got := lifecycle.PreciseTimeRemaining(tourney, now); got != "1d 2h 05m" {
		t.Errorf("got %q, want %q", got, "1d 2h 05m")
	}
}

func TestAtTransitionPoint(t *testing.T) {
	tourney := baseTournament()
	cases := []struct {
		name string
		now  time.Time
		want bool
	}{
		{"30s before start", start.Add(-30 * time.Second), true},
		{"30s after start", start.Add(30 * time.Second), true},
		{"exactly at end", end, true},
		{"near settle boundary", end.Add(lifecycle.DefaultSettlementWindow - 10*time.Second), true},
		{"mid tournament", start.Add(48 * time.Hour), false},
		{"5 minutes before end", end.Add(-5 * time.Minute), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := lifecycle.AtTransitionPoint(tourney, tc.now); got != tc.want {
				t.Errorf("AtTransitionPoint(%v) = %v, want %v", tc.now, got, tc.want)
			}
		})
	}
}

func TestAtTransitionPoint_CancelledNeverTransitions(t *testing.T) {
	tourney := baseTournament()
	tourney.Cancelled = true
	if lifecycle.AtTransitionPoint(tourney, start) {
		t.Error("cancelled tournament should report no transition points")
	}
}

func TestTransitionReminder(t *testing.T) {
	tourney := baseTournament()

	if got := lifecycle.TransitionReminder(tourney, start.Add(-30*time.Minute)); got != "starts in 30m 00s" {
		t.Errorf("enrolling reminder = %q", got)
	}
	if got := lifecycle.TransitionReminder(tourney, end.Add(-45*time.Minute)); got != "ends in 45m 00s" {
		t.Errorf("ongoing reminder = %q", got)
	}
	// Too far out: silent.
	if got := lifecycle.TransitionReminder(tourney, start.Add(-3*time.Hour)); got != "" {
		t.Errorf("expected no reminder 3h out, got %q", got)
	}
	// Ended: silent.
	if got := lifecycle.TransitionReminder(tourney, end.Add(48*time.Hour)); got != "" {
		t.Errorf("expected no reminder after end, got %q", got)
	}
}

// --- Validation ---

func TestValidate(t *testing.T) {
	valid := baseTournament()
	if err := lifecycle.Validate(valid); err != nil {
		t.Fatalf("valid tournament rejected: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*model.Tournament)
	}{
		{"missing name", func(m *model.Tournament) { m.Name = "" }},
		{"end before start", func(m *model.Tournament) { m.EndTime = m.StartTime.Add(-time.Hour) }},
		{"zero participants", func(m *model.Tournament) { m.MaxParticipants = 0 }},
		{"zero entry capital", func(m *model.Tournament) { m.EntryCapital = decimal.Zero }},
		{"position size above 1", func(m *model.Tournament) {
			m.Rules.MaxPositionSize = decimal.NewFromFloat(1.5)
		}},
		{"leverage below 1", func(m *model.Tournament) {
			m.Rules.RiskLimits.MaxLeverage = decimal.NewFromFloat(0.5)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			tourney := baseTournament()
			tc.mutate(tourney)
			if err := lifecycle.Validate(tourney); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}
