package detect

import (
	"image"
	"math"
)

// Box is a face bounding box in source-frame pixels, in the (top, right, bottom, left)
// order used by common face detectors.
type Box struct {
	Top    int
	Right  int
	Bottom int
	Left   int
}

// BoxFromCorners converts an [x1, y1, x2, y2] corner box to a Box, rounding outward.
func BoxFromCorners(bbox []float64) (Box, bool) {
	if len(bbox) != 4 {
		return Box{}, false
	}
	return Box{
		Left:   int(math.Floor(bbox[0])),
		Top:    int(math.Floor(bbox[1])),
		Right:  int(math.Ceil(bbox[2])),
		Bottom: int(math.Ceil(bbox[3])),
	}, true
}

// Rect returns the box as an image.Rectangle.
func (b Box) Rect() image.Rectangle {
	return image.Rect(b.Left, b.Top, b.Right, b.Bottom)
}

// Scale multiplies every coordinate by factor.
func (b Box) Scale(factor float64) Box {
	return Box{
		Top:    int(math.Floor(float64(b.Top) * factor)),
		Right:  int(math.Ceil(float64(b.Right) * factor)),
		Bottom: int(math.Ceil(float64(b.Bottom) * factor)),
		Left:   int(math.Floor(float64(b.Left) * factor)),
	}
}

// Clip restricts the box to bounds. The result may be empty.
func (b Box) Clip(bounds image.Rectangle) Box {
	r := b.Rect().Intersect(bounds)
	return Box{Top: r.Min.Y, Right: r.Max.X, Bottom: r.Max.Y, Left: r.Min.X}
}

// Empty reports whether the box covers no pixels.
func (b Box) Empty() bool {
	return b.Rect().Empty()
}
