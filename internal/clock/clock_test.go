package clock

import (
	"testing"
	"time"
)

func TestFormatDuration(t *testing.T) {
	cases := []struct {
		in   time.Duration
		want string
	}{
		{0, "0s"},
		{45 * time.Second, "45s"},
		{90 * time.Second, "1m 30s"},
		{45*time.Minute + 30*time.Second, "45m 30s"},
		{time.Hour + 2*time.Minute, "1h 02m"},
		{26*time.Hour + 5*time.Minute, "1d 2h 05m"},
		{52*time.Hour + 4*time.Hour + 5*time.Minute, "2d 8h 05m"},
		{-time.Hour - 2*time.Minute, "-1h 02m"},
		{-30 * time.Second, "-30s"},
	}
	for _, tc := range cases {
		if got := FormatDuration(tc.in); got != tc.want {
			t.Errorf("FormatDuration(%v) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestMidnight(t *testing.T) {
	in := time.Date(2025, 3, 14, 15, 9, 26, 535, time.UTC)
	want := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	if got := Midnight(in); !got.Equal(want) {
		t.Errorf("Midnight = %v, want %v", got, want)
	}
}

func TestMidnight_NonUTCInput(t *testing.T) {
	loc := time.FixedZone("UTC+9", 9*3600)
	// 02:00 on the 15th in UTC+9 is still the 14th in UTC.
	in := time.Date(2025, 3, 15, 2, 0, 0, 0, loc)
	want := time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC)
	if got := Midnight(in); !got.Equal(want) {
		t.Errorf("Midnight = %v, want %v", got, want)
	}
}

func TestFake_SetAndAdvance(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	clk := NewFake(start)

	if !clk.Now().Equal(start) {
		t.Fatalf("Now = %v, want %v", clk.Now(), start)
	}

	clk.Advance(90 * time.Minute)
	if want := start.Add(90 * time.Minute); !clk.Now().Equal(want) {
		t.Errorf("after Advance: Now = %v, want %v", clk.Now(), want)
	}

	pinned := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clk.Set(pinned)
	if !clk.Now().Equal(pinned) {
		t.Errorf("after Set: Now = %v, want %v", clk.Now(), pinned)
	}
}
