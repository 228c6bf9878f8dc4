package conn

import (
	"sync"
	"time"
)

const qualityWindow = 10

// QualitySnapshot is a point-in-time copy of the liveness statistics.
type QualitySnapshot struct {
	RTTs      []time.Duration
	Average   time.Duration
	Successes int
	Failures  int
	LastRTT   time.Duration
	LastError error
}

// SuccessRate returns the lifetime success ratio in [0,1].
func (q QualitySnapshot) SuccessRate() float64 {
	total := q.Successes + q.Failures
	if total == 0 {
		return 0
	}
	return float64(q.Successes) / float64(total)
}

// Quality tracks the last few round-trip times and lifetime counters. It is
// for display only; no control decision reads it.
type Quality struct {
	mu        sync.Mutex
	rtts      []time.Duration
	successes int
	failures  int
	lastErr   error
}

// RecordSuccess adds a round-trip time to the window.
func (q *Quality) RecordSuccess(rtt time.Duration) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.rtts = append(q.rtts, rtt)
	if len(q.rtts) > qualityWindow {
		q.rtts = append([]time.Duration(nil), q.rtts[len(q.rtts)-qualityWindow:]...)
	}
	q.successes++
	q.lastErr = nil
}

// RecordFailure counts a failed attempt.
func (q *Quality) RecordFailure(err error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failures++
	q.lastErr = err
}

// Snapshot returns a copy of the statistics.
func (q *Quality) Snapshot() QualitySnapshot {
	q.mu.Lock()
	defer q.mu.Unlock()

	snap := QualitySnapshot{
		RTTs:      append([]time.Duration(nil), q.rtts...),
		Successes: q.successes,
		Failures:  q.failures,
		LastError: q.lastErr,
	}
	if n := len(q.rtts); n > 0 {
		var sum time.Duration
		for _, r := range q.rtts {
			sum += r
		}
		snap.Average = sum / time.Duration(n)
		snap.LastRTT = q.rtts[n-1]
	}
	return snap
}
