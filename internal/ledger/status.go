package ledger

import (
	"fmt"
	"time"
)

// Cutoff is a daily time of day separating Present from Absent.
type Cutoff struct {
	Hour   int
	Minute int
	Second int
}

// DefaultCutoff is 09:00:00 local time.
var DefaultCutoff = Cutoff{Hour: 9}

// ParseCutoff reads an HH:MM:SS (or HH:MM) time of day.
func ParseCutoff(value string) (Cutoff, error) {
	for _, layout := range []string{timeLayout, "15:04"} {
		if t, err := time.Parse(layout, value); err == nil {
			return Cutoff{Hour: t.Hour(), Minute: t.Minute(), Second: t.Second()}, nil
		}
	}
	return Cutoff{}, fmt.Errorf("parse cutoff %q: expected HH:MM:SS", value)
}

// String renders the cutoff as HH:MM:SS.
func (c Cutoff) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

func (c Cutoff) seconds() int {
	return c.Hour*3600 + c.Minute*60 + c.Second
}

// StatusAt applies the cutoff to the wall-clock time of day of t. The lecture's own
// schedule plays no part.
func StatusAt(t time.Time, cutoff Cutoff) Status {
	elapsed := t.Hour()*3600 + t.Minute()*60 + t.Second()
	if elapsed < cutoff.seconds() {
		return StatusPresent
	}
	return StatusAbsent
}
