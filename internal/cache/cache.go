// Package cache keeps synthesised chunk audio so repeated text is not sent to
// the model again.
package cache

import (
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/book-expert/kani-tts-service/internal/core"
	"github.com/book-expert/kani-tts-service/internal/tts/audio"
	lru "github.com/hashicorp/golang-lru/v2"
)

const keySeparator = "\x1f"

// Stats is a snapshot of cache usage.
type Stats struct {
	Hits   uint64
	Misses uint64
	Len    int
}

// ChunkCache is an LRU of chunk clips. A cache created with a size <= 0 is
// disabled: lookups miss and additions are dropped.
type ChunkCache struct {
	entries *lru.Cache[string, *audio.Clip]
	hits    atomic.Uint64
	misses  atomic.Uint64
}

// New creates a cache holding at most size clips.
func New(size int) (*ChunkCache, error) {
	if size <= 0 {
		return &ChunkCache{}, nil
	}

	entries, err := lru.New[string, *audio.Clip](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create chunk cache: %w", err)
	}

	return &ChunkCache{entries: entries}, nil
}

// Enabled reports whether the cache stores anything.
func (c *ChunkCache) Enabled() bool {
	return c != nil && c.entries != nil
}

// Get returns the cached clip for key.
func (c *ChunkCache) Get(key string) (*audio.Clip, bool) {
	if !c.Enabled() {
		return nil, false
	}

	clip, found := c.entries.Get(key)
	if found {
		c.hits.Add(1)
	} else {
		c.misses.Add(1)
	}

	return clip, found
}

// Add stores clip under key. Empty clips are not cached.
func (c *ChunkCache) Add(key string, clip *audio.Clip) {
	if !c.Enabled() || clip.Empty() {
		return
	}

	c.entries.Add(key, clip)
}

// Stats returns the current counters.
func (c *ChunkCache) Stats() Stats {
	if !c.Enabled() {
		return Stats{}
	}

	return Stats{Hits: c.hits.Load(), Misses: c.misses.Load(), Len: c.entries.Len()}
}

// Key identifies a chunk by the exact text sent to the model and the
// sampling parameters.
func Key(text string, params core.SynthesisParams) string {
	return strings.Join([]string{
		params.SpeakerID,
		strconv.FormatFloat(params.Temperature, 'g', -1, 64),
		strconv.FormatFloat(params.TopP, 'g', -1, 64),
		strconv.FormatFloat(params.RepetitionPenalty, 'g', -1, 64),
		strconv.Itoa(params.MaxNewTokens),
		text,
	}, keySeparator)
}
