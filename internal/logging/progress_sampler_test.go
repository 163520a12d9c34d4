package logging

import (
	"testing"
	"time"
)

func TestProgressSamplerEmitsOnPhaseChange(t *testing.T) {
	s := NewProgressSampler(0.05, 0)
	if !s.ShouldEmit(0.01, "downloading") {
		t.Fatal("expected first event to emit")
	}
	if s.ShouldEmit(0.012, "downloading") {
		t.Fatal("expected same-bucket event suppressed")
	}
	if !s.ShouldEmit(0.012, "finishing") {
		t.Fatal("expected phase change to emit")
	}
}

func TestProgressSamplerEmitsOnBucketAdvance(t *testing.T) {
	s := NewProgressSampler(0.05, 0)
	s.ShouldEmit(0.01, "downloading")
	if s.ShouldEmit(0.04, "downloading") {
		t.Fatal("expected sub-bucket advance suppressed")
	}
	if !s.ShouldEmit(0.06, "downloading") {
		t.Fatal("expected bucket crossing to emit")
	}
	if !s.ShouldEmit(1, "downloading") {
		t.Fatal("expected completion to emit")
	}
}

func TestProgressSamplerTimeFloor(t *testing.T) {
	s := NewProgressSampler(0.5, 100*time.Millisecond)
	current := time.Unix(1000, 0)
	s.now = func() time.Time { return current }

	s.ShouldEmit(0.01, "downloading")
	if s.ShouldEmit(0.02, "downloading") {
		t.Fatal("expected suppression inside min interval")
	}
	current = current.Add(150 * time.Millisecond)
	if !s.ShouldEmit(0.02, "downloading") {
		t.Fatal("expected emit after min interval elapsed")
	}
}

func TestProgressSamplerReset(t *testing.T) {
	s := NewProgressSampler(0.05, 0)
	s.ShouldEmit(0.9, "transcribing")
	s.Reset()
	if !s.ShouldEmit(0.01, "transcribing") {
		t.Fatal("expected emit after reset")
	}
}

func TestNilSamplerAlwaysEmits(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldEmit(0.5, "x") {
		t.Fatal("nil sampler must not suppress")
	}
}
