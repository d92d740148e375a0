package monitor

import (
	"sync"
	"time"
)

const windowSeconds = 5

// ThroughputMonitor implements a sliding window (5s) for deterministic
// items/sec calculation.
type ThroughputMonitor struct {
	buckets    [windowSeconds]int
	currentPos int
	lastTick   time.Time
	mu         sync.Mutex
}

func NewThroughputMonitor() *ThroughputMonitor {
	return &ThroughputMonitor{
		lastTick: time.Now(),
	}
}

// Record increments the count for the current second bucket.
func (m *ThroughputMonitor) Record(count int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	// Check if we need to advance the window
	elapsed := int(now.Sub(m.lastTick).Seconds())
	if elapsed >= 1 {
		if elapsed >= windowSeconds {
			for i := range m.buckets {
				m.buckets[i] = 0
			}
			m.currentPos = 0
		} else {
			// Advance and clear intermediate buckets
			for i := 0; i < elapsed; i++ {
				m.currentPos = (m.currentPos + 1) % windowSeconds
				m.buckets[m.currentPos] = 0
			}
		}
		m.lastTick = now
	}
	m.buckets[m.currentPos] += count
}

// Rate returns the average items/sec over the window.
func (m *ThroughputMonitor) Rate() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Handle potential long periods of inactivity
	if time.Since(m.lastTick) > windowSeconds*time.Second {
		return 0.0
	}

	sum := 0
	for _, b := range m.buckets {
		sum += b
	}
	return float64(sum) / windowSeconds
}
