package logging

import (
	"math"
	"strings"
)

// ProgressSampler thins progress logging to one line per percent step, plus
// one whenever the phase changes. It is not safe for concurrent use.
type ProgressSampler struct {
	step  float64
	phase string
	next  float64
}

// NewProgressSampler returns a sampler emitting every step percent (5 when
// step is not positive).
func NewProgressSampler(step float64) *ProgressSampler {
	if step <= 0 {
		step = 5
	}
	return &ProgressSampler{step: step}
}

// ShouldLog reports whether percent in phase deserves a log line. A negative
// percent is unknown progress: only a phase change emits.
func (s *ProgressSampler) ShouldLog(percent float64, phase string) bool {
	if s == nil {
		return true
	}
	changed := false
	if phase = strings.TrimSpace(phase); phase != "" && phase != s.phase {
		s.phase = phase
		s.next = 0
		changed = true
	}
	if percent < 0 || percent < s.next {
		return changed
	}
	percent = min(percent, 100)
	s.next = (math.Floor(percent/s.step) + 1) * s.step
	return true
}

// Reset forgets the phase and threshold.
func (s *ProgressSampler) Reset() {
	if s != nil {
		s.phase = ""
		s.next = 0
	}
}
