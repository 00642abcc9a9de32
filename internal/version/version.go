// Package version reports build metadata set via -ldflags, falling back to the
// VCS stamp the Go toolchain embeds.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

// These variables are populated at build time via -ldflags.
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// Info returns a human-friendly version string that surfaces build metadata.
func Info() string {
	commit, date := Commit, Date
	if commit == "none" {
		commit, date = vcsStamp(date)
	}
	return fmt.Sprintf("%s (commit %s, built %s, %s)", Version, commit, date, runtime.Version())
}

func vcsStamp(date string) (string, string) {
	commit := "none"
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return commit, date
	}
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			commit = s.Value
			if len(commit) > 12 {
				commit = commit[:12]
			}
		case "vcs.time":
			if date == "unknown" {
				date = s.Value
			}
		}
	}
	return commit, date
}
