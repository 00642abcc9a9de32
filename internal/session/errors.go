package session

import "errors"

// ErrNotIdle is returned by Start on a controller that has already been started.
var ErrNotIdle = errors.New("session already started")

// ErrNotRunning is returned when detections are fed to a controller that is not running.
var ErrNotRunning = errors.New("session not running")

// ErrEmptyRoster is returned by Start when no identities are enrolled.
var ErrEmptyRoster = errors.New("roster is empty")

// ErrInconsistentState indicates the ledger already held a row for a label the
// session believed unmarked.
var ErrInconsistentState = errors.New("marked set out of sync with ledger")

// ErrFrameRead wraps a failure of the frame source mid-session.
var ErrFrameRead = errors.New("frame source read failed")

// ErrDetect wraps a detector failure for a single sampled frame.
var ErrDetect = errors.New("face detection failed")
