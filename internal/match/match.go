// Package match resolves a face feature vector to an enrolled identity.
package match

import (
	"errors"
	"fmt"
	"math"
)

// Unknown is the label reported when no roster entry is close enough.
const Unknown = "unknown"

// DefaultThreshold is the default maximum Euclidean distance for a positive match.
// Lower values = stricter matching.
const DefaultThreshold = 0.6

// Entry is one enrolled identity.
type Entry struct {
	Label  string
	Vector []float32
}

// Roster is the ordered set of identities for a session. Order matters: on equal
// distances the earlier entry wins.
type Roster []Entry

// Result is the outcome of matching a single vector.
type Result struct {
	Label    string
	Distance float64
}

// Known reports whether the result names an enrolled identity.
func (r Result) Known() bool {
	return r.Label != Unknown
}

var (
	// ErrEmptyLabel is returned by Validate for an entry without a label.
	ErrEmptyLabel = errors.New("roster entry has empty label")
	// ErrDuplicateLabel is returned by Validate when two entries share a label.
	ErrDuplicateLabel = errors.New("duplicate roster label")
	// ErrReservedLabel is returned by Validate when an entry uses the Unknown label.
	ErrReservedLabel = errors.New("roster label is reserved")
	// ErrEmptyVector is returned by Validate for an entry without a vector.
	ErrEmptyVector = errors.New("roster entry has empty vector")
)

// Validate checks that labels are present and unique and that every entry carries a vector.
func (r Roster) Validate() error {
	seen := make(map[string]struct{}, len(r))
	for i, e := range r {
		switch {
		case e.Label == "":
			return fmt.Errorf("entry %d: %w", i, ErrEmptyLabel)
		case e.Label == Unknown:
			return fmt.Errorf("entry %d: %w: %q", i, ErrReservedLabel, e.Label)
		case len(e.Vector) == 0:
			return fmt.Errorf("entry %q: %w", e.Label, ErrEmptyVector)
		}
		if _, ok := seen[e.Label]; ok {
			return fmt.Errorf("%w: %q", ErrDuplicateLabel, e.Label)
		}
		seen[e.Label] = struct{}{}
	}
	return nil
}

// Labels returns the roster labels in roster order.
func (r Roster) Labels() []string {
	labels := make([]string, len(r))
	for i, e := range r {
		labels[i] = e.Label
	}
	return labels
}

// Distance computes the Euclidean distance between two vectors.
// Vectors of different or zero length are infinitely far apart.
func Distance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return math.Inf(1)
	}

	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// Match finds the closest roster entry to vector. The entry's label is returned only
// when its distance is strictly below threshold; otherwise the label is Unknown and
// Distance still carries the best distance found.
func Match(vector []float32, roster Roster, threshold float64) Result {
	best := Result{Label: Unknown, Distance: math.Inf(1)}
	bestIdx := -1

	for i, e := range roster {
		d := Distance(vector, e.Vector)
		// Strict comparison keeps the first entry on ties.
		if d < best.Distance {
			best.Distance = d
			bestIdx = i
		}
	}

	if bestIdx >= 0 && best.Distance < threshold {
		best.Label = roster[bestIdx].Label
	}
	return best
}
