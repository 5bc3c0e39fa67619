package service

import (
	"sync"
	"time"
)

// TimeLayout is the text form of created_at and updated_at.
const TimeLayout = "2006-01-02T15:04:05.000000"

// Clock supplies wall time to the stamper.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// stamper hands out strictly increasing timestamps at write time, so two
// writes never share one even when the clock does not advance.
//
// Thread-safety: safe for concurrent use.
type stamper struct {
	mu    sync.Mutex
	clock Clock
	last  time.Time
}

func newStamper(c Clock) *stamper {
	if c == nil {
		c = systemClock{}
	}
	return &stamper{clock: c}
}

// Stamp returns the next timestamp in TimeLayout.
func (s *stamper) Stamp() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.clock.Now().UTC().Truncate(time.Microsecond)
	if !now.After(s.last) {
		now = s.last.Add(time.Microsecond)
	}
	s.last = now
	return now.Format(TimeLayout)
}
