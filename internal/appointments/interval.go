package appointments

import (
	"fmt"
	"time"
)

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04"

	// MaxDurationMinutes caps a single appointment at eight hours.
	MaxDurationMinutes = 480
)

// Slot is the half-open interval [Start, End) in minutes since midnight.
// End may pass 1440; appointments never wrap to the next date.
type Slot struct {
	Start int
	End   int
}

// NewSlot converts an HH:MM start and a duration into a Slot.
func NewSlot(hhmm string, duration int) (Slot, error) {
	start, err := minutesSinceMidnight(hhmm)
	if err != nil {
		return Slot{}, err
	}
	return Slot{Start: start, End: start + duration}, nil
}

// Overlaps reports whether the two slots share at least one minute.
// Touching slots (s.End == o.Start) do not overlap.
func (s Slot) Overlaps(o Slot) bool {
	return s.Start < o.End && s.End > o.Start
}

func minutesSinceMidnight(hhmm string) (int, error) {
	t, err := time.Parse(timeLayout, hhmm)
	if err != nil {
		return 0, fmt.Errorf("appointments: parse time %q: %w", hhmm, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}

func parseDate(value string) (time.Time, error) {
	return time.Parse(dateLayout, value)
}

// formatMinutes renders minutes since midnight as HH:MM.
func formatMinutes(m int) string {
	return fmt.Sprintf("%02d:%02d", m/60, m%60)
}
