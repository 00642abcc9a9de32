package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/faizmokh/hadir/internal/archive"
	"github.com/faizmokh/hadir/internal/detect"
	"github.com/faizmokh/hadir/internal/frames"
	"github.com/faizmokh/hadir/internal/ledger"
	"github.com/faizmokh/hadir/internal/session"
	"github.com/faizmokh/hadir/internal/ui"
)

const watchLogFile = "hadir.log"

// sessionFlags are shared by start and watch; unset flags fall back to configuration.
type sessionFlags struct {
	frames       string
	rosterFile   string
	enrollDir    string
	embeddingURL string
	threshold    float64
	cadence      int
	cutoff       string
}

func (f *sessionFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.frames, "frames", "", "Directory of frames to replay (required)")
	cmd.Flags().StringVar(&f.rosterFile, "roster", "", "YAML roster of precomputed vectors (overrides --enroll-dir)")
	cmd.Flags().StringVar(&f.enrollDir, "enroll-dir", "", "Directory with one enrollment image per person")
	cmd.Flags().StringVar(&f.embeddingURL, "embedding-url", "", "Face embedding service URL")
	cmd.Flags().Float64Var(&f.threshold, "threshold", 0, "Maximum match distance (default from config)")
	cmd.Flags().IntVar(&f.cadence, "cadence", 0, "Run detection on every Nth frame (default from config)")
	cmd.Flags().StringVar(&f.cutoff, "cutoff", "", "Present/Absent cutoff as HH:MM:SS (default from config)")
	_ = cmd.MarkFlagRequired("frames")
}

// apply overlays explicitly set flags onto the loaded configuration.
func (f *sessionFlags) apply(cmd *cobra.Command, a *app) error {
	flags := cmd.Flags()
	if flags.Changed("roster") {
		a.cfg.Enroll.RosterFile = f.rosterFile
	}
	if flags.Changed("enroll-dir") {
		a.cfg.Enroll.Dir = f.enrollDir
		if !flags.Changed("roster") {
			a.cfg.Enroll.RosterFile = ""
		}
	}
	if flags.Changed("embedding-url") {
		a.cfg.Embedding.URL = f.embeddingURL
	}
	if flags.Changed("threshold") {
		a.cfg.Match.Threshold = f.threshold
	}
	if flags.Changed("cadence") {
		a.cfg.Session.Cadence = f.cadence
	}
	if flags.Changed("cutoff") {
		a.cfg.Session.Cutoff = f.cutoff
	}
	return a.cfg.Validate()
}

// sessionDeps is everything a started session needs to run.
type sessionDeps struct {
	controller *session.Controller
	source     frames.Source
	detector   detect.Detector
	store      *ledger.Store
}

// prepare performs every fatal session-start step: roster, frame source, ledger,
// then Start. On error nothing has been written.
func prepare(cmd *cobra.Command, a *app, f *sessionFlags, lecture string, observer func(session.Outcome)) (*sessionDeps, error) {
	if err := f.apply(cmd, a); err != nil {
		return nil, err
	}
	client := newDetectClient(a)

	roster, err := loadRoster(a.ctx, a, client, nil)
	if err != nil {
		return nil, err
	}

	source, err := frames.OpenDir(f.frames)
	if err != nil {
		return nil, fmt.Errorf("open frame source: %w", err)
	}

	store, err := openStore(a)
	if err != nil {
		return nil, err
	}

	arch := archive.New(a.manager.ArchiveDir(a.cfg.Storage.ArchiveDir))
	opts := session.Options{
		Threshold: a.cfg.Match.Threshold,
		Cadence:   a.cfg.Session.Cadence,
		Cutoff:    a.cfg.Cutoff(),
		Observer:  observer,
	}
	controller := session.NewController(store, arch, opts, a.logger)

	if err := controller.Start(a.ctx, lecture, roster); err != nil {
		store.Close()
		return nil, err
	}

	return &sessionDeps{
		controller: controller,
		source:     source,
		detector:   client,
		store:      store,
	}, nil
}

func newDetectClient(a *app) *detect.Client {
	return detect.NewClient(a.cfg.Embedding.URL, detect.WithScale(a.cfg.Embedding.Scale))
}

func openStore(a *app) (*ledger.Store, error) {
	path, err := a.manager.EnsureParent(a.manager.LedgerPath(a.cfg.Storage.LedgerFile))
	if err != nil {
		return nil, err
	}
	store, err := ledger.OpenStore(path)
	if err != nil {
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	return store, nil
}

// stopOnSignal requests a cooperative stop on SIGINT or SIGTERM until the returned
// function is called.
func stopOnSignal(stopper interface{ RequestStop() }) func() {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	done := make(chan struct{})

	go func() {
		select {
		case <-sigs:
			stopper.RequestStop()
		case <-done:
		}
	}()

	return func() {
		signal.Stop(sigs)
		close(done)
	}
}

func newStartCommand(a *app) *cobra.Command {
	var f sessionFlags

	cmd := &cobra.Command{
		Use:   "start <lecture>",
		Short: "Run a headless attendance session over a frame source.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lecture := strings.Join(args, " ")

			deps, err := prepare(cmd, a, &f, lecture, nil)
			if err != nil {
				return err
			}
			defer deps.store.Close()

			release := stopOnSignal(deps.controller)
			defer release()

			summary, runErr := deps.controller.Run(a.ctx, deps.source, deps.detector)
			printSummary(cmd.OutOrStdout(), summary)
			if runErr != nil {
				return fmt.Errorf("session ended with error: %w", runErr)
			}
			return deps.store.Close()
		},
	}
	f.register(cmd)

	return cmd
}

func newWatchCommand(a *app) *cobra.Command {
	var f sessionFlags

	cmd := &cobra.Command{
		Use:   "watch <lecture>",
		Short: "Run an attendance session with a live view; press q to stop.",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			lecture := strings.Join(args, " ")

			// The terminal belongs to the TUI, so logs go to a file under the data home.
			logFile, err := openWatchLog(a)
			if err != nil {
				return err
			}
			defer logFile.Close()
			a.logger = newLogger(logFile, a.cfg.Log.Level)

			var program *tea.Program
			observer := func(o session.Outcome) {
				if program != nil {
					ui.Observer(program)(o)
				}
			}

			deps, err := prepare(cmd, a, &f, lecture, observer)
			if err != nil {
				return err
			}
			defer deps.store.Close()

			release := stopOnSignal(deps.controller)
			defer release()

			model := ui.NewModel(a.ctx, deps.controller.Summary().Lecture, deps.controller,
				func(ctx context.Context) (session.Summary, error) {
					return deps.controller.Run(ctx, deps.source, deps.detector)
				})
			program = tea.NewProgram(model, tea.WithContext(a.ctx), tea.WithOutput(cmd.OutOrStdout()))

			final, err := program.Run()
			if err != nil {
				deps.controller.RequestStop()
				return fmt.Errorf("run TUI: %w", err)
			}

			summary, runErr := final.(ui.Model).Summary()
			printSummary(cmd.OutOrStdout(), summary)
			if runErr != nil {
				return fmt.Errorf("session ended with error: %w", runErr)
			}
			return deps.store.Close()
		},
	}
	f.register(cmd)

	return cmd
}

func openWatchLog(a *app) (*os.File, error) {
	path, err := a.manager.EnsureParent(a.manager.Resolve(watchLogFile))
	if err != nil {
		return nil, err
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return file, nil
}

func printSummary(w io.Writer, s session.Summary) {
	fmt.Fprintf(w, "Session %s for %s\n", s.ID, s.Lecture)
	fmt.Fprintf(w, "Frames: %d (%d sampled)\n", s.Frames, s.Sampled)
	fmt.Fprintf(w, "Recorded: %d", len(s.Recorded))
	if len(s.Recorded) > 0 {
		fmt.Fprintf(w, " (%s)", strings.Join(s.Recorded, ", "))
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Archived unknown faces: %d\n", len(s.Archived))
	if s.Failures > 0 {
		fmt.Fprintf(w, "Failures: %d\n", s.Failures)
	}
}
