// Package clock provides the canonical UTC time source for the engine and
// signed countdown formatting. Everything that needs "now" takes a Clock so
// tests can pin time.
package clock

import (
	"fmt"
	"strings"
	"sync"
	"time"
)

// Clock yields the current instant. Implementations must return UTC.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock.
type Real struct{}

func (Real) Now() time.Time { return time.Now().UTC() }

// Fake is a settable clock for tests.
type Fake struct {
	mu sync.Mutex
	t  time.Time
}

// NewFake creates a fake clock pinned at t.
func NewFake(t time.Time) *Fake {
	return &Fake{t: t.UTC()}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

// Set pins the clock at t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = t.UTC()
}

// Advance moves the clock forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.t = f.t.Add(d)
}

// Midnight truncates t to UTC midnight of its trading day.
func Midnight(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// FormatDuration renders a signed duration as a compact countdown string,
// e.g. "2d 4h 05m", "45m 30s", "-1h 02m". Sub-minute durations include
// seconds; anything longer drops them.
func FormatDuration(d time.Duration) string {
	var b strings.Builder
	if d < 0 {
		b.WriteByte('-')
		d = -d
	}

	days := d / (24 * time.Hour)
	d -= days * 24 * time.Hour
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	seconds := (d - minutes*time.Minute) / time.Second

	switch {
	case days > 0:
		fmt.Fprintf(&b, "%dd %dh %02dm", days, hours, minutes)
	case hours > 0:
		fmt.Fprintf(&b, "%dh %02dm", hours, minutes)
	case minutes > 0:
		fmt.Fprintf(&b, "%dm %02ds", minutes, seconds)
	default:
		fmt.Fprintf(&b, "%ds", seconds)
	}
	return b.String()
}
