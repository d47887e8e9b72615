package metrics

import (
	"sync/atomic"
	"time"
)

// MetricID indexes a counter slot.
type MetricID uint16

// BucketCount is the number of latency buckets, the last one unbounded.
const BucketCount = 8

const cacheLineSize = 64

// BucketUpperBounds are the inclusive upper bounds of the first
// BucketCount-1 buckets.
var BucketUpperBounds = [BucketCount - 1]time.Duration{
	5 * time.Millisecond,
	10 * time.Millisecond,
	25 * time.Millisecond,
	50 * time.Millisecond,
	100 * time.Millisecond,
	250 * time.Millisecond,
	500 * time.Millisecond,
}

type paddedCounter struct {
	value uint64
	_     [cacheLineSize - 8]byte
}

type histogram struct {
	buckets [BucketCount]uint64
}

// Snapshot is a point-in-time copy of every counter and histogram.
type Snapshot struct {
	Counters   map[MetricID]uint64
	Histograms map[MetricID][]uint64
}

// Registry holds a fixed number of counters and the histograms listed at
// construction.
type Registry struct {
	enabled    bool
	latency    bool
	counters   []paddedCounter
	histograms map[MetricID]*histogram
}

// New allocates size counters. timed lists the ids that also keep a latency
// histogram when latency is true.
func New(size int, enabled, latency bool, timed ...MetricID) *Registry {
	if size < 0 {
		size = 0
	}
	r := &Registry{
		enabled:    enabled,
		latency:    enabled && latency,
		counters:   make([]paddedCounter, size),
		histograms: make(map[MetricID]*histogram, len(timed)),
	}
	for _, id := range timed {
		if int(id) < size {
			r.histograms[id] = &histogram{}
		}
	}
	return r
}

func (r *Registry) Enabled() bool {
	return r != nil && r.enabled
}

func (r *Registry) LatencyEnabled() bool {
	return r != nil && r.latency
}

func (r *Registry) Inc(id MetricID) {
	if r == nil || !r.enabled || int(id) >= len(r.counters) {
		return
	}
	atomic.AddUint64(&r.counters[id].value, 1)
}

// Observe records d for id. Ids without a histogram are ignored.
func (r *Registry) Observe(id MetricID, d time.Duration) {
	if r == nil || !r.latency {
		return
	}
	h, ok := r.histograms[id]
	if !ok {
		return
	}
	atomic.AddUint64(&h.buckets[BucketIndex(d)], 1)
}

func (r *Registry) Value(id MetricID) uint64 {
	if r == nil || int(id) >= len(r.counters) {
		return 0
	}
	return atomic.LoadUint64(&r.counters[id].value)
}

func (r *Registry) Snapshot() Snapshot {
	if r == nil || !r.enabled {
		return Snapshot{
			Counters:   map[MetricID]uint64{},
			Histograms: map[MetricID][]uint64{},
		}
	}

	s := Snapshot{
		Counters:   make(map[MetricID]uint64, len(r.counters)),
		Histograms: make(map[MetricID][]uint64, len(r.histograms)),
	}
	for i := range r.counters {
		s.Counters[MetricID(i)] = atomic.LoadUint64(&r.counters[i].value)
	}
	if r.latency {
		for id, h := range r.histograms {
			buckets := make([]uint64, BucketCount)
			for i := range buckets {
				buckets[i] = atomic.LoadUint64(&h.buckets[i])
			}
			s.Histograms[id] = buckets
		}
	}
	return s
}

// BucketIndex maps a duration to its histogram bucket.
func BucketIndex(d time.Duration) int {
	for i, bound := range BucketUpperBounds {
		if d <= bound {
			return i
		}
	}
	return BucketCount - 1
}
