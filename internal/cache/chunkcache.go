// Package cache provides the chunk caching tiers: an in-process LRU
// validated by content hash, a shared TTL-bounded key/value store, and a
// cascade that coordinates promotion and invalidation between them.
package cache

import (
	"sync"

	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/mvp-joe/project-atlas/internal/chunker"
)

// DefaultMaxBytes caps the in-process chunk cache footprint at 100 MB.
const DefaultMaxBytes = 100 << 20

// lruEntryCap bounds entry count; the byte cap is the operative limit.
const lruEntryCap = 1 << 20

type chunkEntry struct {
	sourceHash string
	chunks     []chunker.Chunk
	size       int64
}

// ChunkCache is the in-process LRU keyed by file path. Entries carry the
// MD5 of the source they were chunked from; a lookup with different source
// invalidates the entry and misses. Safe for concurrent use.
type ChunkCache struct {
	mu       sync.Mutex
	lru      *simplelru.LRU[string, *chunkEntry]
	maxBytes int64
	curBytes int64

	hits      int64
	misses    int64
	evictions int64
}

// Stats is a point-in-time snapshot of cache counters.
type Stats struct {
	Hits      int64   `json:"hits"`
	Misses    int64   `json:"misses"`
	Evictions int64   `json:"evictions"`
	Entries   int     `json:"entries"`
	SizeBytes int64   `json:"size_bytes"`
	MaxBytes  int64   `json:"max_bytes"`
	HitRate   float64 `json:"hit_rate"`
}

// NewChunkCache creates a chunk cache bounded by maxBytes; non-positive
// means DefaultMaxBytes.
func NewChunkCache(maxBytes int64) *ChunkCache {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	c := &ChunkCache{maxBytes: maxBytes}
	// onEvict fires under c.mu for every removal path
	c.lru, _ = simplelru.NewLRU[string, *chunkEntry](lruEntryCap, func(_ string, e *chunkEntry) {
		c.curBytes -= e.size
	})
	return c
}

// Get returns the cached chunks for path iff the stored content hash
// matches MD5(source). A stale entry is removed and reported as a miss.
func (c *ChunkCache) Get(path, source string) ([]chunker.Chunk, bool) {
	sum := HashContent(source)

	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.lru.Get(path)
	if !ok {
		c.misses++
		return nil, false
	}
	if entry.sourceHash != sum {
		c.lru.Remove(path)
		c.misses++
		return nil, false
	}
	c.hits++
	return entry.chunks, true
}

// Put stores the chunk list for path, then ejects least-recently-used
// entries until the byte footprint is back under the cap. The entry just
// written survives even when it alone exceeds the cap.
func (c *ChunkCache) Put(path, source string, chunks []chunker.Chunk) {
	entry := &chunkEntry{
		sourceHash: HashContent(source),
		chunks:     chunks,
		size:       chunksFootprint(chunks),
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.lru.Remove(path) // release the old entry's footprint
	c.lru.Add(path, entry)
	c.curBytes += entry.size

	for c.curBytes > c.maxBytes && c.lru.Len() > 1 {
		c.lru.RemoveOldest()
		c.evictions++
	}
}

// Invalidate removes one path. Explicit removal does not count as an
// eviction.
func (c *ChunkCache) Invalidate(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Remove(path)
}

// Clear drops every entry. Counters survive so hit rates stay observable
// across repository re-indexes.
func (c *ChunkCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lru.Purge()
}

// Stats snapshots the counters.
func (c *ChunkCache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Stats{
		Hits:      c.hits,
		Misses:    c.misses,
		Evictions: c.evictions,
		Entries:   c.lru.Len(),
		SizeBytes: c.curBytes,
		MaxBytes:  c.maxBytes,
	}
	if lookups := c.hits + c.misses; lookups > 0 {
		s.HitRate = float64(c.hits) / float64(lookups)
	}
	return s
}

// chunksFootprint approximates the resident size of a chunk list. Source
// text dominates; the fixed term covers struct and slice overhead.
func chunksFootprint(chunks []chunker.Chunk) int64 {
	var size int64
	for i := range chunks {
		c := &chunks[i]
		size += int64(len(c.SourceCode) + len(c.Name) + len(c.NamePath) +
			len(c.Kind) + len(c.FilePath) + len(c.Language))
		size += 256
	}
	return size
}
