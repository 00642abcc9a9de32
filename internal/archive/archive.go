// Package archive keeps crops of faces that matched nobody on the roster for later review.
package archive

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/image/draw"

	"github.com/faizmokh/hadir/internal/detect"
)

const (
	dirPermissions  = 0o755
	filePermissions = 0o644

	defaultQuality = 90
	maxSuffix      = 1000
)

// ErrArchiveWrite is returned when a crop cannot be written to the archive directory.
var ErrArchiveWrite = errors.New("archive write failed")

// Archiver writes one JPEG per unmatched detection. Saves are independent and safe
// to run concurrently.
type Archiver struct {
	dir     string
	now     func() time.Time
	quality int
}

// Option customizes an Archiver.
type Option func(*Archiver)

// WithClock overrides the clock used for file names.
func WithClock(now func() time.Time) Option {
	return func(a *Archiver) { a.now = now }
}

// WithQuality sets the JPEG quality (1-100).
func WithQuality(quality int) Option {
	return func(a *Archiver) {
		if quality >= 1 && quality <= 100 {
			a.quality = quality
		}
	}
}

// New returns an Archiver writing into dir. The directory is created on first save.
func New(dir string, opts ...Option) *Archiver {
	a := &Archiver{dir: dir, now: time.Now, quality: defaultQuality}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Dir returns the archive directory.
func (a *Archiver) Dir() string {
	return a.dir
}

// Save crops frame to box and writes it as unknown_YYYYMMDD_HHMMSS.jpg. Saves landing
// in the same second get a _2, _3, ... suffix instead of overwriting.
func (a *Archiver) Save(frame image.Image, box detect.Box) (string, error) {
	if frame == nil {
		return "", fmt.Errorf("%w: nil frame", ErrArchiveWrite)
	}

	clipped := box.Clip(frame.Bounds())
	if clipped.Empty() {
		return "", fmt.Errorf("%w: box %+v outside frame %v", ErrArchiveWrite, box, frame.Bounds())
	}

	src := clipped.Rect()
	crop := image.NewRGBA(image.Rect(0, 0, src.Dx(), src.Dy()))
	draw.Draw(crop, crop.Bounds(), frame, src.Min, draw.Src)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, crop, &jpeg.Options{Quality: a.quality}); err != nil {
		return "", fmt.Errorf("%w: encode crop: %w", ErrArchiveWrite, err)
	}

	if err := os.MkdirAll(a.dir, dirPermissions); err != nil {
		return "", fmt.Errorf("%w: create directory: %w", ErrArchiveWrite, err)
	}

	file, path, err := a.create()
	if err != nil {
		return "", err
	}

	if _, err := file.Write(buf.Bytes()); err != nil {
		file.Close()
		os.Remove(path)
		return "", fmt.Errorf("%w: write %s: %w", ErrArchiveWrite, path, err)
	}
	if err := file.Close(); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("%w: close %s: %w", ErrArchiveWrite, path, err)
	}
	return path, nil
}

func (a *Archiver) create() (*os.File, string, error) {
	stem := "unknown_" + a.now().Format("20060102_150405")

	for n := 1; n <= maxSuffix; n++ {
		name := stem + ".jpg"
		if n > 1 {
			name = fmt.Sprintf("%s_%d.jpg", stem, n)
		}
		path := filepath.Join(a.dir, name)

		file, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, filePermissions)
		if err == nil {
			return file, path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return nil, "", fmt.Errorf("%w: create %s: %w", ErrArchiveWrite, path, err)
		}
	}
	return nil, "", fmt.Errorf("%w: more than %d crops named %s", ErrArchiveWrite, maxSuffix, stem)
}
