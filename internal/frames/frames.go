// Package frames supplies the images a session runs detection over.
package frames

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	_ "golang.org/x/image/bmp"
)

// ErrNoFrames is returned when a frame directory holds no readable image files.
var ErrNoFrames = errors.New("no frames found")

// Frame is one image yielded by a Source.
type Frame struct {
	Index int
	Name  string
	Image image.Image
}

// Source yields frames on demand. Next returns io.EOF at end of stream; any other
// error is a read failure.
type Source interface {
	Next(ctx context.Context) (Frame, error)
}

var imageExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
	".gif":  true,
	".bmp":  true,
}

// IsImage reports whether name has an image extension this package can decode.
func IsImage(name string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(name))]
}

// DirSource replays still images from a directory in lexical file-name order.
type DirSource struct {
	paths []string
	next  int
}

// OpenDir lists the images in dir. A missing or unreadable directory, or one with no
// images, is an error.
func OpenDir(dir string) (*DirSource, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("open frame source: %w", err)
	}

	var paths []string
	for _, entry := range entries {
		if entry.IsDir() || !IsImage(entry.Name()) {
			continue
		}
		paths = append(paths, filepath.Join(dir, entry.Name()))
	}
	if len(paths) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoFrames, dir)
	}
	sort.Strings(paths)

	return &DirSource{paths: paths}, nil
}

// Len returns the number of frames the source will yield in total.
func (s *DirSource) Len() int {
	return len(s.paths)
}

// Next decodes the next image. A file that cannot be read or decoded is a read failure.
func (s *DirSource) Next(ctx context.Context) (Frame, error) {
	if err := ctx.Err(); err != nil {
		return Frame{}, err
	}
	if s.next >= len(s.paths) {
		return Frame{}, io.EOF
	}

	path := s.paths[s.next]
	s.next++

	img, err := Decode(path)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Index: s.next, Name: filepath.Base(path), Image: img}, nil
}

// Decode reads and decodes the image at path.
func Decode(path string) (image.Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read frame %s: %w", path, err)
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image %s: %w", path, err)
	}
	return img, nil
}
