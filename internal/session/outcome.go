package session

import (
	"fmt"

	"github.com/faizmokh/hadir/internal/detect"
	"github.com/faizmokh/hadir/internal/ledger"
)

// Action is what the controller did with one detected face.
type Action uint8

const (
	// ActionRecorded means a ledger row was appended and the label marked.
	ActionRecorded Action = iota
	// ActionAlreadyMarked means the label was recognised but already had a row.
	ActionAlreadyMarked
	// ActionArchived means the face did not match and its crop was saved.
	ActionArchived
	// ActionFailed means the ledger or archive write for the face failed.
	ActionFailed
)

func (a Action) String() string {
	switch a {
	case ActionRecorded:
		return "recorded"
	case ActionAlreadyMarked:
		return "already marked"
	case ActionArchived:
		return "archived"
	case ActionFailed:
		return "failed"
	default:
		return fmt.Sprintf("Action(%d)", a)
	}
}

// Face is the handling of one detection.
type Face struct {
	Box      detect.Box
	Label    string
	Distance float64
	Action   Action
	// Status is set for ActionRecorded.
	Status ledger.Status
	// Path is set for ActionArchived.
	Path string
	Err  error
}

// Outcome reports one ingestion. Seq numbers every frame handed to Ingest or
// Process, starting at 1 for each session. When Sampled is false the frame was
// passed through and Faces are the detections of the last sampled frame.
type Outcome struct {
	Seq     int
	Sampled bool
	Faces   []Face
}

// Summary describes a finished (or running) session.
type Summary struct {
	ID       string
	Lecture  string
	Frames   int
	Sampled  int
	Recorded []string
	Archived []string
	Failures int
}
