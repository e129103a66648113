package schedule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// monday is a helper date: 2025-06-02 is a Monday.
func monday(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2025, 6, 2, 0, 0, 0, 0, time.UTC)
}

func mustWindow(t *testing.T, weekday int, start, end string) Window {
	t.Helper()
	w, err := ParseWindow(weekday, start, end)
	require.NoError(t, err)
	return w
}

func labels(slots []Slot) []string {
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.Label)
	}
	return out
}

func TestParseClock(t *testing.T) {
	tests := []struct {
		in      string
		minutes int
		wantErr bool
	}{
		{in: "09:00", minutes: 540},
		{in: "00:00", minutes: 0},
		{in: "23:59", minutes: 1439},
		{in: "24:00", wantErr: true},
		{in: "12:60", wantErr: true},
		{in: "9:00", wantErr: true},
		{in: "0900", wantErr: true},
		{in: "", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			m, err := ParseClock(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.minutes, m)
		})
	}
}

func TestParseWindowValidation(t *testing.T) {
	_, err := ParseWindow(7, "09:00", "10:00")
	require.Error(t, err)

	_, err = ParseWindow(1, "10:00", "09:00")
	require.Error(t, err)

	_, err = ParseWindow(1, "10:00", "10:00")
	require.Error(t, err, "zero-length window is invalid")

	w, err := ParseWindow(1, "09:00", "12:00")
	require.NoError(t, err)
	assert.Equal(t, time.Monday, w.Weekday)
	assert.Equal(t, 540, w.StartMinute)
	assert.Equal(t, 720, w.EndMinute)
}

func TestSlotsBackToBackExpansion(t *testing.T) {
	w := mustWindow(t, 1, "09:00", "12:00")
	slots := SlotsForDate(monday(t), 30, []Window{w}, nil)

	require.Len(t, slots, 6, "floor((720-540)/30) slots")
	assert.Equal(t, []string{"09:00", "09:30", "10:00", "10:30", "11:00", "11:30"}, labels(slots))

	for k, s := range slots {
		assert.Equal(t, monday(t).Add(time.Duration(540+30*k)*time.Minute), s.Start)
		assert.Equal(t, 30*time.Minute, s.End.Sub(s.Start))
	}
}

func TestSlotsRemainderNeverOffered(t *testing.T) {
	// 75 minutes of window, 30-minute slots: the trailing 15 minutes are lost.
	w := mustWindow(t, 1, "09:00", "10:15")
	slots := SlotsForDate(monday(t), 30, []Window{w}, nil)
	assert.Equal(t, []string{"09:00", "09:30"}, labels(slots))
}

func TestSlotsWindowShorterThanDuration(t *testing.T) {
	w := mustWindow(t, 1, "09:00", "09:30")
	slots := SlotsForDate(monday(t), 60, []Window{w}, nil)
	assert.Empty(t, slots)
}

func TestSlotsWeekdayFilter(t *testing.T) {
	tue := mustWindow(t, 2, "09:00", "12:00")
	slots := SlotsForDate(monday(t), 30, []Window{tue}, nil)
	assert.Empty(t, slots, "no windows for the requested weekday yields an empty list, not an error")
}

func TestSlotsBusyExclusionStrictHalfOpen(t *testing.T) {
	day := monday(t)
	w := mustWindow(t, 1, "09:00", "12:00")
	at := func(hhmm string) time.Time {
		m, err := ParseClock(hhmm)
		require.NoError(t, err)
		return day.Add(time.Duration(m) * time.Minute)
	}

	// Booking 10:00-10:30 removes exactly the 10:00 slot; 09:30 and 10:30
	// touch its boundaries and stay bookable.
	busy := []Interval{{Start: at("10:00"), End: at("10:30")}}
	slots := SlotsForDate(day, 30, []Window{w}, busy)
	assert.Equal(t, []string{"09:00", "09:30", "10:30", "11:00", "11:30"}, labels(slots))

	// A booking that straddles two slot boundaries knocks out both slots.
	busy = []Interval{{Start: at("10:15"), End: at("10:45")}}
	slots = SlotsForDate(day, 30, []Window{w}, busy)
	assert.Equal(t, []string{"09:00", "09:30", "11:00", "11:30"}, labels(slots))
}

func TestSlotsMultipleWindowsKeepInsertionOrder(t *testing.T) {
	// Afternoon window listed first stays first: no cross-window sorting.
	afternoon := mustWindow(t, 1, "14:00", "15:00")
	morning := mustWindow(t, 1, "09:00", "10:00")
	slots := SlotsForDate(monday(t), 30, []Window{afternoon, morning}, nil)
	assert.Equal(t, []string{"14:00", "14:30", "09:00", "09:30"}, labels(slots))
}

func TestSlotsZeroDuration(t *testing.T) {
	w := mustWindow(t, 1, "09:00", "12:00")
	assert.Empty(t, SlotsForDate(monday(t), 0, []Window{w}, nil))
	assert.Empty(t, SlotsForDate(monday(t), -15, []Window{w}, nil))
}

func TestIntervalOverlaps(t *testing.T) {
	base := monday(t)
	iv := func(startMin, endMin int) Interval {
		return Interval{
			Start: base.Add(time.Duration(startMin) * time.Minute),
			End:   base.Add(time.Duration(endMin) * time.Minute),
		}
	}

	tests := []struct {
		name string
		a, b Interval
		want bool
	}{
		{name: "identical", a: iv(0, 30), b: iv(0, 30), want: true},
		{name: "contained", a: iv(0, 60), b: iv(15, 30), want: true},
		{name: "partial", a: iv(0, 30), b: iv(15, 45), want: true},
		{name: "abutting after", a: iv(0, 30), b: iv(30, 60), want: false},
		{name: "abutting before", a: iv(30, 60), b: iv(0, 30), want: false},
		{name: "disjoint", a: iv(0, 30), b: iv(60, 90), want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.a.Overlaps(tt.b))
			assert.Equal(t, tt.want, tt.b.Overlaps(tt.a), "overlap is symmetric")
		})
	}
}

func TestSlotsRespectLocation(t *testing.T) {
	loc, err := time.LoadLocation("America/Chicago")
	require.NoError(t, err)

	day := time.Date(2025, 6, 2, 0, 0, 0, 0, loc) // Monday
	w := mustWindow(t, 1, "09:00", "10:00")
	slots := SlotsForDate(day, 30, []Window{w}, nil)

	require.Len(t, slots, 2)
	assert.Equal(t, "09:00", slots[0].Label)
	assert.Equal(t, 9, slots[0].Start.In(loc).Hour())
}
