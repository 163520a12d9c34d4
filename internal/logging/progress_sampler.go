package logging

import (
	"strings"
	"time"
)

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when phases change, fraction buckets advance, or enough wall time passes.
type ProgressSampler struct {
	bucketSize  float64
	minInterval time.Duration
	lastPhase   string
	lastBucket  int
	lastEmit    time.Time
	now         func() time.Time
}

// NewProgressSampler constructs a sampler that emits when the completed
// fraction crosses bucket boundaries (default 0.05) or when the phase
// changes. A zero minInterval disables the time-based floor.
func NewProgressSampler(bucketSize float64, minInterval time.Duration) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 0.05
	}
	return &ProgressSampler{
		bucketSize:  bucketSize,
		minInterval: minInterval,
		lastBucket:  -1,
		now:         time.Now,
	}
}

// ShouldEmit reports whether a progress event at the given fraction (0..1,
// negative for "unknown") should be published. Phase is trimmed before
// comparison.
func (s *ProgressSampler) ShouldEmit(fraction float64, phase string) bool {
	if s == nil {
		return true
	}
	phase = strings.TrimSpace(phase)
	emit := false
	if phase != "" && phase != s.lastPhase {
		s.lastPhase = phase
		s.lastBucket = -1
		emit = true
	}
	if fraction >= 0 {
		bucket := int(fraction / s.bucketSize)
		if fraction >= 1 {
			bucket = int(1 / s.bucketSize)
		}
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	if !emit && s.minInterval > 0 && s.now().Sub(s.lastEmit) >= s.minInterval {
		emit = true
	}
	if emit {
		s.lastEmit = s.now()
	}
	return emit
}

// Reset clears the sampler state, e.g. when a new job starts.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastPhase = ""
	s.lastBucket = -1
	s.lastEmit = time.Time{}
}
