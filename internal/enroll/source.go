// Package enroll builds the session roster from enrollment material.
package enroll

import (
	"context"

	"github.com/faizmokh/hadir/internal/match"
)

// Source produces the roster for a session. Any failure is an *EnrollmentError.
type Source interface {
	Load(ctx context.Context) (match.Roster, error)
}
