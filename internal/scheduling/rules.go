// Package scheduling holds the office calendar policy: weekday eligibility, the same-day submission
// cutoff, the fixed break window, and the half-open interval test shared by every overlap check.
package scheduling

import (
	"fmt"
	"time"

	"github.com/noah-isme/office-appointment-api/pkg/clock"
	appErrors "github.com/noah-isme/office-appointment-api/pkg/errors"
)

// DateLayout is the wire format for calendar dates.
const DateLayout = "2006-01-02"

// ClockLayout is the wire format for times of day.
const ClockLayout = "15:04"

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect. Touching endpoints do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && aEnd.After(bStart)
}

// TimeOfDay is an offset from local midnight.
type TimeOfDay time.Duration

// ParseTimeOfDay parses "HH:MM" or "HH:MM:SS".
func ParseTimeOfDay(raw string) (TimeOfDay, error) {
	for _, layout := range []string{"15:04", "15:04:05"} {
		if t, err := time.Parse(layout, raw); err == nil {
			return TimeOfDay(time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute + time.Duration(t.Second())*time.Second), nil
		}
	}
	return 0, fmt.Errorf("invalid time of day %q", raw)
}

// On places the time of day on the given calendar date in loc.
func (d TimeOfDay) On(date time.Time, loc *time.Location) time.Time {
	y, m, day := date.In(loc).Date()
	return time.Date(y, m, day, 0, 0, 0, 0, loc).Add(time.Duration(d))
}

// String renders HH:MM.
func (d TimeOfDay) String() string {
	total := time.Duration(d)
	return fmt.Sprintf("%02d:%02d", int(total.Hours()), int(total.Minutes())%60)
}

// Config describes the office calendar policy.
type Config struct {
	Location   *time.Location
	Cutoff     TimeOfDay
	BreakStart TimeOfDay
	BreakEnd   TimeOfDay
}

// DefaultConfig is the standard policy: 14:00 cutoff and a 12:00-13:00 break.
func DefaultConfig(loc *time.Location) Config {
	if loc == nil {
		loc = time.Local
	}
	return Config{
		Location:   loc,
		Cutoff:     TimeOfDay(14 * time.Hour),
		BreakStart: TimeOfDay(12 * time.Hour),
		BreakEnd:   TimeOfDay(13 * time.Hour),
	}
}

// ConfigFromStrings builds a Config from configuration values, falling back to defaults for blanks.
func ConfigFromStrings(timezone, cutoff, breakStart, breakEnd string) (Config, error) {
	loc := time.Local
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return Config{}, fmt.Errorf("load timezone %q: %w", timezone, err)
		}
		loc = l
	}
	cfg := DefaultConfig(loc)
	for _, item := range []struct {
		raw  string
		dest *TimeOfDay
	}{{cutoff, &cfg.Cutoff}, {breakStart, &cfg.BreakStart}, {breakEnd, &cfg.BreakEnd}} {
		if item.raw == "" {
			continue
		}
		v, err := ParseTimeOfDay(item.raw)
		if err != nil {
			return Config{}, err
		}
		*item.dest = v
	}
	if cfg.BreakEnd <= cfg.BreakStart {
		return Config{}, fmt.Errorf("break window end %s must be after start %s", cfg.BreakEnd, cfg.BreakStart)
	}
	return cfg, nil
}

// Rules evaluates calendar predicates against an injected clock.
type Rules struct {
	cfg   Config
	clock clock.Clock
}

// NewRules constructs Rules. A nil clock uses the system clock.
func NewRules(cfg Config, c clock.Clock) *Rules {
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	if c == nil {
		c = clock.System()
	}
	return &Rules{cfg: cfg, clock: c}
}

// Location returns the office timezone.
func (r *Rules) Location() *time.Location { return r.cfg.Location }

// Now returns the current instant in the office timezone.
func (r *Rules) Now() time.Time { return r.clock.Now().In(r.cfg.Location) }

// Today returns the current calendar date.
func (r *Rules) Today() time.Time { return r.DateOf(r.clock.Now()) }

// DateOf truncates t to local midnight.
func (r *Rules) DateOf(t time.Time) time.Time {
	y, m, d := t.In(r.cfg.Location).Date()
	return time.Date(y, m, d, 0, 0, 0, 0, r.cfg.Location)
}

// SameDate reports whether a and b fall on the same local calendar date.
func (r *Rules) SameDate(a, b time.Time) bool {
	return r.DateOf(a).Equal(r.DateOf(b))
}

// ParseDate parses a YYYY-MM-DD date in the office timezone.
func (r *Rules) ParseDate(raw string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, raw, r.cfg.Location)
}

// ParseDateTime accepts either a time of day, combined with date, or a full RFC3339 timestamp.
func (r *Rules) ParseDateTime(date time.Time, raw string) (time.Time, error) {
	if tod, err := ParseTimeOfDay(raw); err == nil {
		return tod.On(date, r.cfg.Location), nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q", raw)
	}
	return t.In(r.cfg.Location), nil
}

// Project moves the time of day of t onto day.
func (r *Rules) Project(day, t time.Time) time.Time {
	local := t.In(r.cfg.Location)
	offset := local.Sub(r.DateOf(local))
	return r.DateOf(day).Add(offset)
}

// IsEligibleWeekday reports whether date is Monday through Friday.
func (r *Rules) IsEligibleWeekday(date time.Time) bool {
	switch date.In(r.cfg.Location).Weekday() {
	case time.Saturday, time.Sunday:
		return false
	default:
		return true
	}
}

// IsBeforeCutoff reports whether instant is strictly earlier than the cutoff on its own calendar day.
func (r *Rules) IsBeforeCutoff(instant time.Time) bool {
	return instant.Before(r.cfg.Cutoff.On(instant, r.cfg.Location))
}

// BreakWindow returns the break interval on the calendar date of day.
func (r *Rules) BreakWindow(day time.Time) (time.Time, time.Time) {
	return r.cfg.BreakStart.On(day, r.cfg.Location), r.cfg.BreakEnd.On(day, r.cfg.Location)
}

// OverlapsBreakWindow reports whether [start, end) intersects the break window on start's date.
func (r *Rules) OverlapsBreakWindow(start, end time.Time) bool {
	breakStart, breakEnd := r.BreakWindow(start)
	return Overlaps(start, end, breakStart, breakEnd)
}

// ValidateSubmissionDeadline rejects weekend dates always, and same-day requests made at or after the cutoff.
// Requests for future dates skip the cutoff.
func (r *Rules) ValidateSubmissionDeadline(appointmentDate, requestInstant time.Time) error {
	if !r.IsEligibleWeekday(appointmentDate) {
		return appErrors.Clone(appErrors.ErrDeadlineViolation, "appointments can only be booked Monday to Friday")
	}
	if r.DateOf(appointmentDate).Equal(r.Today()) && !r.IsBeforeCutoff(requestInstant.In(r.cfg.Location)) {
		return appErrors.Clone(appErrors.ErrDeadlineViolation,
			fmt.Sprintf("same-day appointments must be requested before %s", r.cfg.Cutoff))
	}
	return nil
}
