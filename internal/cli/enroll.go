package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/faizmokh/hadir/internal/detect"
	"github.com/faizmokh/hadir/internal/enroll"
	"github.com/faizmokh/hadir/internal/match"
)

// loadRoster reads the configured roster file, or encodes the enrollment directory
// through the encoding cache when no roster file is set.
func loadRoster(ctx context.Context, a *app, encoder detect.Encoder, progress func(done, total int)) (match.Roster, error) {
	if a.cfg.Enroll.RosterFile != "" {
		src := &enroll.FileSource{Path: a.manager.Resolve(a.cfg.Enroll.RosterFile)}
		return src.Load(ctx)
	}

	src := &enroll.DirSource{
		Dir:      a.manager.Resolve(a.cfg.Enroll.Dir),
		Encoder:  encoder,
		Progress: progress,
	}

	cache, err := openCache(a)
	if err != nil {
		a.logger.Warn("encoding cache unavailable, encoding every image", "error", err)
	} else {
		defer cache.Close()
		src.Cache = cache
	}

	roster, err := src.Load(ctx)
	if err != nil {
		return nil, err
	}
	a.logger.Info("roster loaded", "dir", src.Dir, "identities", len(roster))
	return roster, nil
}

func openCache(a *app) (*enroll.Cache, error) {
	path, err := a.manager.EnsureParent(a.manager.CachePath(a.cfg.Storage.CacheFile))
	if err != nil {
		return nil, err
	}
	return enroll.OpenCache(path)
}

func newEnrollCommand(a *app) *cobra.Command {
	var (
		dirFlag      string
		urlFlag      string
		outFlag      string
		progressFlag bool
	)

	cmd := &cobra.Command{
		Use:   "enroll",
		Short: "Encode the enrollment directory and warm the encoding cache.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if dirFlag != "" {
				a.cfg.Enroll.Dir = dirFlag
			}
			if urlFlag != "" {
				a.cfg.Embedding.URL = urlFlag
			}
			// enroll always reads images; a configured roster file is an output here.
			a.cfg.Enroll.RosterFile = ""

			var bar *progressbar.ProgressBar
			var progress func(done, total int)
			if progressFlag {
				progress = func(done, total int) {
					if bar == nil {
						bar = progressbar.NewOptions(total,
							progressbar.OptionSetWriter(cmd.ErrOrStderr()),
							progressbar.OptionSetDescription("Encoding faces"),
							progressbar.OptionShowCount(),
							progressbar.OptionSetItsString("images"),
							progressbar.OptionShowElapsedTimeOnFinish(),
							progressbar.OptionFullWidth(),
						)
					}
					_ = bar.Set(done)
				}
			}

			roster, err := loadRoster(a.ctx, a, newDetectClient(a), progress)
			if bar != nil {
				_ = bar.Finish()
				fmt.Fprintln(cmd.ErrOrStderr())
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Enrolled %d identities: %s\n", len(roster), strings.Join(roster.Labels(), ", "))

			if outFlag != "" {
				path := a.manager.Resolve(outFlag)
				if _, err := a.manager.EnsureParent(path); err != nil {
					return err
				}
				if err := enroll.WriteFile(path, roster); err != nil {
					return fmt.Errorf("write roster: %w", err)
				}
				fmt.Fprintf(out, "Wrote roster to %s\n", path)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dirFlag, "enroll-dir", "", "Directory with one enrollment image per person")
	cmd.Flags().StringVar(&urlFlag, "embedding-url", "", "Face embedding service URL")
	cmd.Flags().StringVar(&outFlag, "out", "", "Also write the roster as YAML to this path")
	cmd.Flags().BoolVar(&progressFlag, "progress", true, "Show a progress bar")

	return cmd
}
