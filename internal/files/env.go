package files

import (
	"os"
	"path/filepath"
	"strings"
)

const (
	// HomeEnv names the variable that pins the data directory.
	HomeEnv = "HADIR_HOME"
	// DefaultDirName is the data directory under the user's home when nothing else is set.
	DefaultDirName = ".hadir"
	// xdgDirName is the data directory under XDG_DATA_HOME.
	xdgDirName = "hadir"
)

// ResolveBasePath picks the directory holding the ledger, archive and encoding cache:
// $HADIR_HOME if set, else $XDG_DATA_HOME/hadir, else ~/.hadir.
func ResolveBasePath() (string, error) {
	if override := strings.TrimSpace(os.Getenv(HomeEnv)); override != "" {
		return expandHome(override)
	}
	if xdg := strings.TrimSpace(os.Getenv("XDG_DATA_HOME")); xdg != "" && filepath.IsAbs(xdg) {
		return filepath.Join(xdg, xdgDirName), nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, DefaultDirName), nil
}

// expandHome replaces a leading "~" or "~/" with the current user's home directory.
func expandHome(input string) (string, error) {
	if input != "~" && !strings.HasPrefix(input, "~/") {
		return input, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, strings.TrimPrefix(input, "~")), nil
}
