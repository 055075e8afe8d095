package state

import (
	"math/big"
	"sort"

	fpmath "TierOracle/internal/math"
)

// PricePoint is one committed sample in the historical ring.
type PricePoint struct {
	Price     int64 // fixed-point, PriceConfig scale
	Conf      uint64
	Timestamp int64 // unix seconds
}

// HistoricalChunk is one fixed-capacity segment of the logical ring. Chunks
// exist only because a single storage object has a capacity ceiling; callers
// of HistoricalStore never see chunk boundaries.
//
// Ring invariant per chunk: 0 <= Count <= capacity, Head is the next write
// slot, Tail is the oldest live sample.
type HistoricalChunk struct {
	ChunkID           uint16
	Head              uint16
	Tail              uint16
	Count             uint16
	CreationTimestamp int64
	Points            [ChunkCapacity]PricePoint

	// Next links the forward chain; nil on the last chunk. Excluded from
	// snapshots, which serialize the chunk slice and relink on restore.
	Next *HistoricalChunk `json:"-"`
}

func (c *HistoricalChunk) Full() bool { return c.Count == ChunkCapacity }

// Push writes one sample, overwriting the oldest slot when full.
func (c *HistoricalChunk) Push(p PricePoint) {
	c.Points[c.Head] = p
	c.Head = (c.Head + 1) % ChunkCapacity
	if c.Count < ChunkCapacity {
		c.Count++
	} else {
		c.Tail = (c.Tail + 1) % ChunkCapacity
	}
}

// Latest returns the most recently pushed sample.
func (c *HistoricalChunk) Latest() (PricePoint, bool) {
	if c.Count == 0 {
		return PricePoint{}, false
	}
	idx := (int(c.Head) + ChunkCapacity - 1) % ChunkCapacity
	return c.Points[idx], true
}

// Ordered appends the chunk's live samples, oldest first, to dst.
func (c *HistoricalChunk) Ordered(dst []PricePoint) []PricePoint {
	idx := int(c.Tail)
	for i := 0; i < int(c.Count); i++ {
		dst = append(dst, c.Points[idx])
		idx = (idx + 1) % ChunkCapacity
	}
	return dst
}

// HistoricalStore presents the chunk chain as one circular buffer. All
// chunks are allocated and linked at initialization and never reallocated;
// Append manages rollover internally.
type HistoricalStore struct {
	chunks      []*HistoricalChunk
	activeIndex int
}

// NewHistoricalStore pre-allocates n chunks linked into a forward chain.
// The last chunk has no successor.
func NewHistoricalStore(n int, now int64) *HistoricalStore {
	if n <= 0 {
		n = NumHistoricalChunks
	}
	chunks := make([]*HistoricalChunk, n)
	for i := range chunks {
		chunks[i] = &HistoricalChunk{
			ChunkID:           uint16(i),
			CreationTimestamp: now,
		}
	}
	for i := 0; i < n-1; i++ {
		chunks[i].Next = chunks[i+1]
	}
	return &HistoricalStore{chunks: chunks}
}

// Append writes one sample to the logical ring. A full active chunk rolls
// the write into the next chunk of the chain (wrapping to the first chunk
// past the chain end); once every chunk has filled, the rolled-into chunk
// overwrites its oldest sample, so the store as a whole drops oldest data
// first.
func (hs *HistoricalStore) Append(p PricePoint) {
	active := hs.chunks[hs.activeIndex]
	if active.Full() {
		hs.activeIndex = (hs.activeIndex + 1) % len(hs.chunks)
		active = hs.chunks[hs.activeIndex]
	}
	active.Push(p)
}

// ActiveChunkIndex is the ordinal of the currently-writable chunk, persisted
// on OracleState for recovery.
func (hs *HistoricalStore) ActiveChunkIndex() uint16 { return uint16(hs.activeIndex) }

// SetActiveChunkIndex restores the write cursor, e.g. from a snapshot.
func (hs *HistoricalStore) SetActiveChunkIndex(i uint16) {
	if int(i) < len(hs.chunks) {
		hs.activeIndex = int(i)
	}
}

// Chunks exposes the chain for snapshots and tests.
func (hs *HistoricalStore) Chunks() []*HistoricalChunk { return hs.chunks }

// Latest returns the most recent sample across the ring.
func (hs *HistoricalStore) Latest() (PricePoint, bool) {
	return hs.chunks[hs.activeIndex].Latest()
}

// TotalCount is the number of live samples across all chunks.
func (hs *HistoricalStore) TotalCount() int {
	total := 0
	for _, c := range hs.chunks {
		total += int(c.Count)
	}
	return total
}

// TimeWeightedAverage computes the time-weighted mean over samples ordered
// oldest first: each price is weighted by the interval it was in effect, the
// last sample by now minus its timestamp. A single sample yields its own
// price; an empty slice yields no result.
func TimeWeightedAverage(points []PricePoint, now int64) (int64, bool) {
	if len(points) == 0 {
		return 0, false
	}
	if len(points) == 1 {
		return points[0].Price, true
	}

	// price * dt products overflow int64 for large windows, so the
	// accumulation runs through int128 intermediates.
	weightedSum := new(big.Int)
	var totalTime int64
	for i := 0; i < len(points); i++ {
		var dt int64
		if i < len(points)-1 {
			dt = points[i+1].Timestamp - points[i].Timestamp
		} else {
			dt = now - points[i].Timestamp
		}
		if dt <= 0 {
			continue
		}
		term := new(big.Int).Mul(big.NewInt(points[i].Price), big.NewInt(dt))
		weightedSum.Add(weightedSum, term)
		totalTime += dt
	}
	if totalTime == 0 {
		return points[len(points)-1].Price, true
	}
	return fpmath.DivideInt128(weightedSum, totalTime, fpmath.RoundHalfEven), true
}

// PointsInWindow collects samples with cutoff <= timestamp <= now, in
// chronological order. Chunk-chain traversal alone is chronological only
// until the ring wraps: a partially overwritten chunk interleaves old and
// new samples at its boundary, so the output is sorted by timestamp before
// returning. TimeWeightedAverage depends on that ordering.
func (hs *HistoricalStore) PointsInWindow(cutoff, now int64) []PricePoint {
	n := len(hs.chunks)
	collected := make([]PricePoint, 0, n*ChunkCapacity)
	for i := 1; i <= n; i++ {
		chunk := hs.chunks[(hs.activeIndex+i)%n]
		collected = chunk.Ordered(collected)
	}

	out := collected[:0]
	for _, p := range collected {
		if p.Timestamp >= cutoff && p.Timestamp <= now {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Timestamp < out[j].Timestamp
	})
	return out
}
