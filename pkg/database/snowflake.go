package database

import (
	"sync"
	"time"
)

// journalEpoch is 2024-01-01T00:00:00Z in milliseconds
const journalEpoch int64 = 1704067200000

const (
	sequenceBits = 12
	sequenceMask = (1 << sequenceBits) - 1
)

// IDGenerator hands out time-ordered 64-bit route IDs:
// milliseconds since journalEpoch in the high bits, a 12-bit sequence in the low bits.
type IDGenerator struct {
	mu       sync.Mutex
	epoch    int64
	lastMs   int64
	sequence int64
	now      func() time.Time
}

// NewIDGenerator creates a generator counting from journalEpoch
func NewIDGenerator() *IDGenerator {
	return &IDGenerator{epoch: journalEpoch, now: time.Now}
}

// Next returns an ID strictly greater than every ID it returned before
func (g *IDGenerator) Next() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	ms := g.now().UnixMilli() - g.epoch
	if ms < g.lastMs {
		// clock went backwards
		ms = g.lastMs
	}

	if ms == g.lastMs {
		g.sequence = (g.sequence + 1) & sequenceMask
		if g.sequence == 0 {
			ms++
		}
	} else {
		g.sequence = 0
	}
	g.lastMs = ms

	return ms<<sequenceBits | g.sequence
}

// IDTime extracts the creation time encoded in an ID
func IDTime(id int64) time.Time {
	return time.UnixMilli((id >> sequenceBits) + journalEpoch)
}
