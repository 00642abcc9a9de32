// Package detect turns frames into face detections carrying comparable feature vectors.
package detect

import (
	"context"
	"errors"
	"image"
)

// ErrNoFace is returned by Encode when an enrollment image contains no detectable face.
var ErrNoFace = errors.New("no face found")

// Detection is one face found in a frame.
type Detection struct {
	Box    Box
	Vector []float32
	Score  float64
}

// Detector finds faces in a frame and encodes each one.
type Detector interface {
	Detect(ctx context.Context, frame image.Image) ([]Detection, error)
}

// Encoder turns an enrollment image into a single feature vector.
type Encoder interface {
	Encode(ctx context.Context, imageData []byte) ([]float32, error)
}

// DetectorFunc adapts a function to the Detector interface.
type DetectorFunc func(ctx context.Context, frame image.Image) ([]Detection, error)

// Detect calls f.
func (f DetectorFunc) Detect(ctx context.Context, frame image.Image) ([]Detection, error) {
	return f(ctx, frame)
}
