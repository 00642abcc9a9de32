package enroll

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/faizmokh/hadir/internal/detect"
	"github.com/faizmokh/hadir/internal/frames"
	"github.com/faizmokh/hadir/internal/match"
)

// DirSource enrolls one identity per image file in Dir, labelled by file name.
type DirSource struct {
	Dir     string
	Encoder detect.Encoder
	// Cache is optional.
	Cache *Cache
	// Progress, when set, is called after each image with the count done so far.
	Progress func(done, total int)
}

// Load encodes every image in Dir in lexical order. The first failure aborts enrollment.
func (s *DirSource) Load(ctx context.Context) (match.Roster, error) {
	if s.Encoder == nil {
		return nil, &EnrollmentError{Path: s.Dir, Err: errors.New("no encoder configured")}
	}

	paths, err := s.images()
	if err != nil {
		return nil, err
	}

	roster := make(match.Roster, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for i, path := range paths {
		label := LabelFromFile(path)
		if label == "" {
			return nil, &EnrollmentError{Path: path, Err: match.ErrEmptyLabel}
		}
		if prev, ok := seen[label]; ok {
			return nil, &EnrollmentError{Label: label, Path: path, Err: fmt.Errorf("%w: also derived from %s", match.ErrDuplicateLabel, filepath.Base(prev))}
		}
		seen[label] = path

		vector, err := s.encode(ctx, label, path)
		if err != nil {
			return nil, &EnrollmentError{Label: label, Path: path, Err: err}
		}
		roster = append(roster, match.Entry{Label: label, Vector: vector})

		if s.Progress != nil {
			s.Progress(i+1, len(paths))
		}
	}

	if err := roster.Validate(); err != nil {
		return nil, &EnrollmentError{Path: s.Dir, Err: err}
	}
	return roster, nil
}

func (s *DirSource) images() ([]string, error) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		return nil, &EnrollmentError{Path: s.Dir, Err: err}
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !frames.IsImage(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(s.Dir, entry.Name()))
	}
	if len(paths) == 0 {
		return nil, &EnrollmentError{Path: s.Dir, Err: ErrNoImages}
	}
	sort.Strings(paths)
	return paths, nil
}

func (s *DirSource) encode(ctx context.Context, label, path string) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	digest := hex.EncodeToString(sum[:])

	if s.Cache != nil {
		vector, ok, err := s.Cache.Get(ctx, digest)
		if err != nil {
			return nil, err
		}
		if ok {
			return vector, nil
		}
	}

	vector, err := s.Encoder.Encode(ctx, data)
	if err != nil {
		return nil, err
	}
	if len(vector) == 0 {
		return nil, detect.ErrNoFace
	}

	if s.Cache != nil {
		if err := s.Cache.Put(ctx, digest, label, vector); err != nil {
			return nil, err
		}
	}
	return vector, nil
}
