// Package session drives detections through matching and into the attendance
// ledger or the unknown-face archive for one lecture.
package session

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/faizmokh/hadir/internal/detect"
	"github.com/faizmokh/hadir/internal/frames"
	"github.com/faizmokh/hadir/internal/ledger"
	"github.com/faizmokh/hadir/internal/match"
)

const defaultQueueSize = 4

// State is the lifecycle position of a Controller.
type State uint8

const (
	// StateIdle is a controller that has not been started.
	StateIdle State = iota
	// StateRunning accepts detections.
	StateRunning
	// StateStopped is terminal.
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("State(%d)", s)
	}
}

// Ledger is the attendance store a session writes to.
type Ledger interface {
	Open(ctx context.Context, lecture string) (ledger.Sheet, error)
	ExistingNames(ctx context.Context, sheet ledger.Sheet) (map[string]struct{}, error)
	Record(ctx context.Context, sheet ledger.Sheet, rec ledger.Record) error
	Flush() error
}

// Archiver stores crops of faces that matched nobody.
type Archiver interface {
	Save(frame image.Image, box detect.Box) (string, error)
}

// Options tune a Controller. Zero values fall back to defaults.
type Options struct {
	Threshold float64
	// Cadence N runs detection on ingestions 1, 1+N, 1+2N, ...
	Cadence   int
	Cutoff    ledger.Cutoff
	Now       func() time.Time
	QueueSize int
	// Observer is called after every ingestion, outside the controller lock.
	Observer func(Outcome)
}

// DefaultOptions returns the options used when none are configured.
func DefaultOptions() Options {
	return Options{
		Threshold: match.DefaultThreshold,
		Cadence:   1,
		Cutoff:    ledger.DefaultCutoff,
		Now:       time.Now,
		QueueSize: defaultQueueSize,
	}
}

func (o Options) withDefaults() Options {
	def := DefaultOptions()
	if o.Threshold <= 0 {
		o.Threshold = def.Threshold
	}
	if o.Cadence < 1 {
		o.Cadence = def.Cadence
	}
	if o.Cutoff == (ledger.Cutoff{}) {
		o.Cutoff = def.Cutoff
	}
	if o.Now == nil {
		o.Now = def.Now
	}
	if o.QueueSize < 1 {
		o.QueueSize = def.QueueSize
	}
	return o
}

// Controller owns the state of one attendance session. It is single use:
// Idle -> Running -> Stopped.
type Controller struct {
	ledger   Ledger
	archiver Archiver
	opts     Options
	logger   *slog.Logger
	id       string

	stopRequested atomic.Bool

	mu       sync.Mutex
	state    State
	sheet    ledger.Sheet
	roster   match.Roster
	marked   map[string]struct{}
	ingested int
	last     []Face
	summary  Summary
}

// NewController creates an idle controller writing to l and a.
func NewController(l Ledger, a Archiver, opts Options, logger *slog.Logger) *Controller {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	id := uuid.NewString()
	return &Controller{
		ledger:   l,
		archiver: a,
		opts:     opts.withDefaults(),
		logger:   logger.With("session", id),
		id:       id,
		summary:  Summary{ID: id},
	}
}

// ID returns the session identifier used in logs.
func (c *Controller) ID() string {
	return c.id
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start opens the lecture sheet and seeds the marked set from rows already in it.
// On error the controller stays idle.
func (c *Controller) Start(ctx context.Context, lecture string, roster match.Roster) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return ErrNotIdle
	}
	if len(roster) == 0 {
		return ErrEmptyRoster
	}
	if err := roster.Validate(); err != nil {
		return fmt.Errorf("invalid roster: %w", err)
	}

	sheet, err := c.ledger.Open(ctx, lecture)
	if err != nil {
		return fmt.Errorf("open lecture %q: %w", lecture, err)
	}
	existing, err := c.ledger.ExistingNames(ctx, sheet)
	if err != nil {
		return fmt.Errorf("read lecture %q: %w", lecture, err)
	}

	c.marked = make(map[string]struct{}, len(existing))
	for name := range existing {
		c.marked[name] = struct{}{}
	}
	c.roster = append(match.Roster(nil), roster...)
	c.sheet = sheet
	c.ingested = 0
	c.last = nil
	c.summary.Lecture = sheet.Name
	c.stopRequested.Store(false)
	c.state = StateRunning

	c.logger.Info("session started",
		"lecture", sheet.Name,
		"roster", len(roster),
		"already_marked", len(c.marked),
		"threshold", c.opts.Threshold,
		"cadence", c.opts.Cadence,
	)
	return nil
}

// Process handles the detections of one frame: known unmarked faces are recorded,
// known marked faces are skipped and unknown faces are archived. Write failures are
// reported on the Outcome and do not stop the session; only a duplicate row in the
// ledger is returned as an error. Each call counts as one sampled frame and takes
// the next sequence number.
func (c *Controller) Process(ctx context.Context, frame image.Image, detections []detect.Detection) (Outcome, error) {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return Outcome{}, ErrNotRunning
	}
	c.ingested++
	c.summary.Frames++
	c.summary.Sampled++
	out, err := c.processLocked(ctx, frame, detections)
	c.mu.Unlock()

	c.notify(out)
	return out, err
}

// Ingest applies the sampling cadence to frame. Sampled frames go through detector
// and the same matching as Process; the rest pass through and report the last
// sampled detections. Ingest and Process share one sequence.
func (c *Controller) Ingest(ctx context.Context, frame image.Image, detector detect.Detector) (Outcome, error) {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return Outcome{}, ErrNotRunning
	}
	c.ingested++
	seq := c.ingested
	c.summary.Frames++

	if (seq-1)%c.opts.Cadence != 0 {
		out := Outcome{Seq: seq, Faces: append([]Face(nil), c.last...)}
		c.mu.Unlock()
		c.notify(out)
		return out, nil
	}
	c.summary.Sampled++
	c.mu.Unlock()

	detections, err := detector.Detect(ctx, frame)
	if err != nil {
		c.mu.Lock()
		c.summary.Failures++
		c.mu.Unlock()
		return Outcome{Seq: seq, Sampled: true}, fmt.Errorf("%w: frame %d: %w", ErrDetect, seq, err)
	}

	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return Outcome{}, ErrNotRunning
	}
	out, err := c.processLocked(ctx, frame, detections)
	out.Seq = seq
	c.mu.Unlock()

	c.notify(out)
	return out, err
}

func (c *Controller) processLocked(ctx context.Context, frame image.Image, detections []detect.Detection) (Outcome, error) {
	out := Outcome{Seq: c.ingested, Sampled: true, Faces: make([]Face, 0, len(detections))}
	var fatal error

	for _, det := range detections {
		res := match.Match(det.Vector, c.roster, c.opts.Threshold)
		face := Face{Box: det.Box, Label: res.Label, Distance: res.Distance}

		switch {
		case !res.Known():
			path, err := c.archiver.Save(frame, det.Box)
			if err != nil {
				face.Action, face.Err = ActionFailed, err
				c.summary.Failures++
				c.logger.Warn("failed to archive unknown face", "distance", res.Distance, "error", err)
				break
			}
			face.Action, face.Path = ActionArchived, path
			c.summary.Archived = append(c.summary.Archived, path)
			c.logger.Info("archived unknown face", "path", path, "distance", res.Distance)

		case c.isMarked(res.Label):
			face.Action = ActionAlreadyMarked
			c.logger.Debug("already marked", "label", res.Label, "distance", res.Distance)

		default:
			rec := ledger.NewRecord(res.Label, c.opts.Now(), c.opts.Cutoff)
			err := c.ledger.Record(ctx, c.sheet, rec)
			if errors.Is(err, ledger.ErrDuplicateRecord) {
				face.Action, face.Err = ActionFailed, err
				c.marked[res.Label] = struct{}{}
				c.summary.Failures++
				c.logger.Error("ledger already holds a row for an unmarked label", "label", res.Label, "error", err)
				if fatal == nil {
					fatal = fmt.Errorf("%w: %w", ErrInconsistentState, err)
				}
				break
			}
			if err != nil {
				face.Action, face.Err = ActionFailed, err
				c.summary.Failures++
				c.logger.Warn("failed to record attendance", "label", res.Label, "error", err)
				break
			}
			c.marked[res.Label] = struct{}{}
			face.Action, face.Status = ActionRecorded, rec.Status
			c.summary.Recorded = append(c.summary.Recorded, res.Label)
			c.logger.Info("recorded attendance",
				"label", res.Label,
				"status", rec.Status.String(),
				"distance", res.Distance,
			)
		}

		out.Faces = append(out.Faces, face)
	}

	c.last = out.Faces
	return out, fatal
}

func (c *Controller) isMarked(label string) bool {
	_, ok := c.marked[label]
	return ok
}

func (c *Controller) notify(out Outcome) {
	if c.opts.Observer != nil {
		c.opts.Observer(out)
	}
}

// Run feeds frames from source through Ingest until the source is exhausted, a stop
// is requested or ctx is cancelled. A frame read failure or ledger inconsistency
// ends the session with an error. Stop always runs before Run returns.
func (c *Controller) Run(ctx context.Context, source frames.Source, detector detect.Detector) (Summary, error) {
	if c.State() != StateRunning {
		return c.Summary(), ErrNotRunning
	}

	runErr := c.pump(ctx, source, detector)
	stopErr := c.Stop()
	return c.Summary(), errors.Join(runErr, stopErr)
}

func (c *Controller) pump(ctx context.Context, source frames.Source, detector detect.Detector) error {
	g, gctx := errgroup.WithContext(ctx)
	gctx, cancel := context.WithCancel(gctx)
	defer cancel()

	queue := make(chan frames.Frame, c.opts.QueueSize)

	// A read error ends the stream but frames already queued are still ingested.
	var readErr error
	g.Go(func() error {
		defer close(queue)
		for {
			frame, err := source.Next(gctx)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				if gctx.Err() == nil {
					readErr = err
				}
				return nil
			}
			select {
			case queue <- frame:
			case <-gctx.Done():
				return nil
			}
		}
	})

	g.Go(func() error {
		defer cancel()
		for frame := range queue {
			if c.stopRequested.Load() || gctx.Err() != nil {
				c.logger.Debug("ingestion loop ending", "pending", len(queue))
				return nil
			}

			_, err := c.Ingest(gctx, frame.Image, detector)
			switch {
			case err == nil:
			case errors.Is(err, ErrDetect):
				if gctx.Err() != nil {
					return nil
				}
				c.logger.Warn("skipping frame", "frame", frame.Name, "error", err)
			default:
				return err
			}
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	if readErr != nil {
		return fmt.Errorf("%w: %w", ErrFrameRead, readErr)
	}
	return nil
}

// RequestStop asks a running Run loop to finish after the current ingestion.
func (c *Controller) RequestStop() {
	c.stopRequested.Store(true)
}

// Stop ends the session and flushes the ledger. Calling Stop again is a no-op.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	prev := c.state
	if prev == StateStopped {
		return nil
	}
	c.state = StateStopped
	c.stopRequested.Store(true)
	if prev == StateIdle {
		return nil
	}

	c.marked = nil
	c.roster = nil
	c.last = nil

	if err := c.ledger.Flush(); err != nil {
		c.logger.Error("final ledger flush failed", "error", err)
		return fmt.Errorf("flush ledger: %w", err)
	}
	c.logger.Info("session stopped",
		"frames", c.summary.Frames,
		"recorded", len(c.summary.Recorded),
		"archived", len(c.summary.Archived),
		"failures", c.summary.Failures,
	)
	return nil
}

// Marked returns the labels marked in this session, sorted.
func (c *Controller) Marked() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	labels := make([]string, 0, len(c.marked))
	for label := range c.marked {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	return labels
}

// Summary returns a snapshot of the session counters.
func (c *Controller) Summary() Summary {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := c.summary
	s.Recorded = append([]string(nil), c.summary.Recorded...)
	s.Archived = append([]string(nil), c.summary.Archived...)
	return s
}
