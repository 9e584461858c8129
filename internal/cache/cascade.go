package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/mvp-joe/project-atlas/internal/chunker"
)

// KV is the slice of the shared tier the cascade uses. A nil *SharedCache
// satisfies it with misses and no-ops.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, bool)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration)
	FlushPattern(ctx context.Context, pattern string) int
}

// Cascade fronts the chunk tiers with automatic promotion: L1 first, then
// L2 keyed by content hash, promoting L2 hits into L1. A both-miss tells
// the caller to go to the database.
type Cascade struct {
	l1 *ChunkCache
	l2 KV

	l2Hits   atomic.Int64
	l2Misses atomic.Int64
}

// NewCascade wires the two tiers. l2 may be nil for single-process setups.
func NewCascade(l1 *ChunkCache, l2 *SharedCache) *Cascade {
	return &Cascade{l1: l1, l2: l2}
}

// GetChunks looks up the chunk list for a file at its current content.
func (c *Cascade) GetChunks(ctx context.Context, path, source string) ([]chunker.Chunk, bool) {
	if chunks, ok := c.l1.Get(path, source); ok {
		return chunks, true
	}

	payload, ok := c.l2.Get(ctx, ChunksKey(path, HashContent(source)))
	if !ok {
		c.l2Misses.Add(1)
		return nil, false
	}
	var chunks []chunker.Chunk
	if err := json.Unmarshal(payload, &chunks); err != nil {
		c.l2Misses.Add(1)
		return nil, false
	}
	c.l2Hits.Add(1)

	c.l1.Put(path, source, chunks) // promote
	return chunks, true
}

// PutChunks writes through to both tiers.
func (c *Cascade) PutChunks(ctx context.Context, path, source string, chunks []chunker.Chunk) {
	c.l1.Put(path, source, chunks)

	payload, err := json.Marshal(chunks)
	if err != nil {
		return
	}
	c.l2.Set(ctx, ChunksKey(path, HashContent(source)), payload, ChunksTTL)
}

// Invalidate drops one file from L1 and every cached content state of it
// from L2.
func (c *Cascade) Invalidate(ctx context.Context, path string) {
	c.l1.Invalidate(path)
	c.l2.FlushPattern(ctx, ChunksPattern(path))
}

// InvalidateRepository flushes L1 entirely and all chunk keys from L2.
func (c *Cascade) InvalidateRepository(ctx context.Context) {
	c.l1.Clear()
	c.l2.FlushPattern(ctx, "chunks:*")
}

// CombinedHitRate reports the effective hit rate across tiers: the L1 rate
// plus the L2 rate applied to the L1 miss share.
func (c *Cascade) CombinedHitRate() float64 {
	l1Rate := c.l1.Stats().HitRate

	var l2Rate float64
	hits, misses := c.l2Hits.Load(), c.l2Misses.Load()
	if lookups := hits + misses; lookups > 0 {
		l2Rate = float64(hits) / float64(lookups)
	}
	return l1Rate + (1-l1Rate)*l2Rate
}

// L1Stats exposes the in-process tier's counters.
func (c *Cascade) L1Stats() Stats {
	return c.l1.Stats()
}
