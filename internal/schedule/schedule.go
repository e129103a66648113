// Package schedule turns weekly recurring availability windows into concrete
// bookable slots for a calendar date. It is pure: no store, no clock, no
// logging — callers supply the date, the windows, and the busy intervals.
package schedule

import (
	"fmt"
	"time"
)

// Window is a recurring weekly availability window in local wall-clock
// minutes. The interval is half-open: [StartMinute, EndMinute).
type Window struct {
	Weekday     time.Weekday
	StartMinute int
	EndMinute   int
}

// ParseWindow builds a Window from a 0-6 weekday (0 = Sunday) and two
// "HH:MM" wall-clock strings. Start must be strictly before end.
func ParseWindow(weekday int, start, end string) (Window, error) {
	if weekday < 0 || weekday > 6 {
		return Window{}, fmt.Errorf("weekday out of range: %d", weekday)
	}
	s, err := ParseClock(start)
	if err != nil {
		return Window{}, fmt.Errorf("start time: %w", err)
	}
	e, err := ParseClock(end)
	if err != nil {
		return Window{}, fmt.Errorf("end time: %w", err)
	}
	if s >= e {
		return Window{}, fmt.Errorf("window start %s not before end %s", start, end)
	}
	return Window{Weekday: time.Weekday(weekday), StartMinute: s, EndMinute: e}, nil
}

// ParseClock parses a strict "HH:MM" string into minutes since midnight.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	var h, m int
	if _, err := fmt.Sscanf(s, "%02d:%02d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q (want HH:MM)", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return h*60 + m, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Interval is a half-open absolute time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports strict half-open overlap. Touching boundaries do not
// overlap, so back-to-back bookings are always allowed.
func (iv Interval) Overlaps(other Interval) bool {
	return iv.Start.Before(other.End) && iv.End.After(other.Start)
}

// Slot is a candidate bookable interval, carrying both the local wall-clock
// label and the absolute bounds.
type Slot struct {
	Label string // "HH:MM" in the date's location
	Start time.Time
	End   time.Time
}

// SlotsForDate expands the windows matching date's weekday into back-to-back
// slots of durationMin minutes and drops every slot that strictly overlaps a
// busy interval. Slot starts are exact multiples of the duration from each
// window start; a remainder shorter than the duration at the end of a window
// is never offered. Windows are processed in the order given and results
// concatenated without cross-window sorting. Instants are built with
// time.Date in date's location, so the wall-clock labels hold across DST.
func SlotsForDate(date time.Time, durationMin int, windows []Window, busy []Interval) []Slot {
	if durationMin <= 0 {
		return nil
	}
	year, month, day := date.Date()
	loc := date.Location()

	var out []Slot
	for _, w := range windows {
		if w.Weekday != date.Weekday() {
			continue
		}
		for t := w.StartMinute; t+durationMin <= w.EndMinute; t += durationMin {
			slot := Slot{
				Label: FormatClock(t),
				Start: time.Date(year, month, day, 0, t, 0, 0, loc),
				End:   time.Date(year, month, day, 0, t+durationMin, 0, 0, loc),
			}
			if !overlapsAny(Interval{Start: slot.Start, End: slot.End}, busy) {
				out = append(out, slot)
			}
		}
	}
	return out
}

func overlapsAny(iv Interval, busy []Interval) bool {
	for _, b := range busy {
		if iv.Overlaps(b) {
			return true
		}
	}
	return false
}
