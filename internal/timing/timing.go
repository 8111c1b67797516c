package timing

import (
	"fmt"
	"sync"
	"time"
)

// Stopwatch measures the wall-clock time of a run and of its named phases.
type Stopwatch struct {
	mu     sync.Mutex
	start  time.Time
	now    func() time.Time
	phases map[string]time.Duration
}

func NewStopwatch() *Stopwatch {
	return newStopwatch(time.Now)
}

func newStopwatch(now func() time.Time) *Stopwatch {
	return &Stopwatch{start: now(), now: now, phases: make(map[string]time.Duration)}
}

// Elapsed returns the time since the stopwatch was created.
func (s *Stopwatch) Elapsed() time.Duration {
	return s.now().Sub(s.start)
}

// Track adds the duration since started to the named phase. Use it as
// defer sw.Track("extract", time.Now()).
func (s *Stopwatch) Track(phase string, started time.Time) {
	d := s.now().Sub(started)
	s.mu.Lock()
	s.phases[phase] += d
	s.mu.Unlock()
}

// Phase returns the accumulated time of a phase.
func (s *Stopwatch) Phase(phase string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phases[phase]
}

// FormatDuration renders d as HH:MM:SS. Negative durations render as zero.
func FormatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d.Round(time.Second) / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}
