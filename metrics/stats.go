package metrics

import (
	"fmt"
	"math"
	"time"
)

// LatencyStats tracks the mean and variance of a stream of latencies using Welford's online algorithm.
// The zero value is ready to use.
type LatencyStats struct {
	mean  float64 // milliseconds
	m2    float64
	count uint64
	min   time.Duration
	max   time.Duration
}

// Add adds a latency to the estimate.
func (s *LatencyStats) Add(latency time.Duration) {
	if s.count == 0 || latency < s.min {
		s.min = latency
	}
	if s.count == 0 || latency > s.max {
		s.max = latency
	}
	val := float64(latency) / float64(time.Millisecond)
	s.count++
	delta := val - s.mean
	s.mean += delta / float64(s.count)
	s.m2 += delta * (val - s.mean)
}

// Count returns the number of latencies added.
func (s *LatencyStats) Count() uint64 {
	return s.count
}

// Mean returns the mean latency.
func (s *LatencyStats) Mean() time.Duration {
	return millis(s.mean)
}

// Variance returns the sample variance in square milliseconds, or NaN if fewer than two latencies were added.
func (s *LatencyStats) Variance() float64 {
	if s.count < 2 {
		return math.NaN()
	}
	return s.m2 / float64(s.count-1)
}

// Stddev returns the sample standard deviation, or 0 if fewer than two latencies were added.
func (s *LatencyStats) Stddev() time.Duration {
	if s.count < 2 {
		return 0
	}
	return millis(math.Sqrt(s.Variance()))
}

// Min returns the smallest latency added.
func (s *LatencyStats) Min() time.Duration {
	return s.min
}

// Max returns the largest latency added.
func (s *LatencyStats) Max() time.Duration {
	return s.max
}

// Reset clears the estimate.
func (s *LatencyStats) Reset() {
	*s = LatencyStats{}
}

func (s *LatencyStats) String() string {
	return fmt.Sprintf("n=%d mean=%v stddev=%v min=%v max=%v", s.count, s.Mean(), s.Stddev(), s.min, s.max)
}

func millis(ms float64) time.Duration {
	return time.Duration(ms * float64(time.Millisecond))
}
