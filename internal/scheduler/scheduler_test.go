package scheduler

import (
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestNextBucketAligned(t *testing.T) {
	s := New(Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())

	now := time.Date(2025, 1, 15, 10, 42, 17, 0, time.UTC)
	next := s.nextBucket(now)
	want := time.Date(2025, 1, 15, 11, 0, 0, 0, time.UTC)
	if !next.Equal(want) {
		t.Fatalf("nextBucket = %s, want %s", next, want)
	}
}

func TestNextBucketUnaligned(t *testing.T) {
	s := New(Options{Interval: time.Hour}, zerolog.Nop())

	now := time.Date(2025, 1, 15, 10, 42, 17, 0, time.UTC)
	next := s.nextBucket(now)
	if !next.Equal(now.Add(time.Hour)) {
		t.Fatalf("unaligned nextBucket = %s", next)
	}
}

func TestEvaluationBucket(t *testing.T) {
	s := New(Options{Interval: time.Hour, AlignToStart: true}, zerolog.Nop())

	at := time.Date(2025, 1, 15, 11, 0, 0, 500, time.UTC)
	bucket := s.evaluationBucket(at)
	if bucket.Minute() != 0 || bucket.Nanosecond() != 0 {
		t.Fatalf("evaluationBucket = %s", bucket)
	}
}

func TestNewPanicsOnZeroInterval(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("zero interval must panic")
		}
	}()
	New(Options{}, zerolog.Nop())
}
