package ledger

import (
	"fmt"
	"strings"
	"time"
)

// Header is the fixed first row of every lecture sheet.
var Header = []string{"Name", "Date", "Time", "Status"}

const (
	dateLayout = "2006-01-02"
	timeLayout = "15:04:05"
)

// Status expresses whether an attendee arrived before the daily cutoff.
type Status uint8

const (
	// StatusPresent marks attendees recorded before the cutoff.
	StatusPresent Status = iota
	// StatusAbsent marks attendees recorded at or after the cutoff.
	StatusAbsent
)

func (s Status) String() string {
	switch s {
	case StatusPresent:
		return "Present"
	case StatusAbsent:
		return "Absent"
	default:
		return fmt.Sprintf("Status(%d)", s)
	}
}

// ParseStatus converts the sheet text back into a Status.
func ParseStatus(value string) (Status, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "present":
		return StatusPresent, nil
	case "absent":
		return StatusAbsent, nil
	default:
		return StatusPresent, fmt.Errorf("invalid status %q (expected Present|Absent)", value)
	}
}

// Record is a single attendance row within a lecture sheet.
type Record struct {
	Name   string
	At     time.Time
	Status Status
}

// NewRecord stamps name with the moment of detection and derives its status from cutoff.
func NewRecord(name string, at time.Time, cutoff Cutoff) Record {
	return Record{
		Name:   name,
		At:     at,
		Status: StatusAt(at, cutoff),
	}
}

// Date renders the record date as stored in the sheet.
func (r Record) Date() string {
	return r.At.Format(dateLayout)
}

// Time renders the record time of day as stored in the sheet.
func (r Record) Time() string {
	return r.At.Format(timeLayout)
}

func (r Record) cells() []any {
	return []any{r.Name, r.Date(), r.Time(), r.Status.String()}
}

func parseRecord(row []string, loc *time.Location) (Record, error) {
	if len(row) < len(Header) {
		return Record{}, fmt.Errorf("%w: want %d cells, got %d", ErrMalformedRow, len(Header), len(row))
	}

	at, err := time.ParseInLocation(dateLayout+" "+timeLayout, row[1]+" "+row[2], loc)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}

	status, err := ParseStatus(row[3])
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedRow, err)
	}

	return Record{Name: row[0], At: at, Status: status}, nil
}
