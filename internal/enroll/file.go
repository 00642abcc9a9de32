package enroll

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/faizmokh/hadir/internal/match"
)

// FileSource reads a roster of precomputed vectors from a YAML file:
//
//	entries:
//	  - label: alice
//	    vector: [0.12, -0.03, ...]
type FileSource struct {
	Path string
}

type rosterFile struct {
	Entries []rosterEntry `yaml:"entries"`
}

type rosterEntry struct {
	Label  string    `yaml:"label"`
	Vector []float32 `yaml:"vector"`
}

// Load parses the file, keeping entry order.
func (s *FileSource) Load(ctx context.Context) (match.Roster, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		return nil, &EnrollmentError{Path: s.Path, Err: err}
	}

	var file rosterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, &EnrollmentError{Path: s.Path, Err: fmt.Errorf("parse roster: %w", err)}
	}
	if len(file.Entries) == 0 {
		return nil, &EnrollmentError{Path: s.Path, Err: ErrEmptyRoster}
	}

	roster := make(match.Roster, 0, len(file.Entries))
	for _, e := range file.Entries {
		roster = append(roster, match.Entry{Label: e.Label, Vector: e.Vector})
	}
	if err := roster.Validate(); err != nil {
		return nil, &EnrollmentError{Path: s.Path, Err: err}
	}
	return roster, nil
}

// WriteFile saves roster in the format FileSource reads.
func WriteFile(path string, roster match.Roster) error {
	file := rosterFile{Entries: make([]rosterEntry, 0, len(roster))}
	for _, e := range roster {
		file.Entries = append(file.Entries, rosterEntry{Label: e.Label, Vector: e.Vector})
	}
	data, err := yaml.Marshal(&file)
	if err != nil {
		return fmt.Errorf("marshal roster: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
