package clock

import (
	"time"

	"github.com/google/uuid"
)

// Clock supplies the current time. Components take a Clock instead of calling
// time.Now so tests can pin the wall clock.
type Clock interface {
	Now() time.Time
}

// System is the real wall clock, always in UTC.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Fixed is a Clock frozen at a single instant, for tests.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }

// NewID returns a new opaque identifier.
func NewID() string {
	return uuid.New().String()
}
