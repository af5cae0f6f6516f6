package generate

import (
	"strconv"
	"time"

	"github.com/jellydator/ttlcache/v3"
	"github.com/zeebo/xxh3"

	"github.com/vcomplete/vcomplete/runner"
)

// cacheKey identifies a (prompt, options) pair.
type cacheKey = xxh3.Uint128

// cacheEntry keeps the prompt next to the text so a hash collision is a miss,
// not a wrong answer.
type cacheEntry struct {
	prompt string
	text   string
}

// ResponseCache is a TTL cache of cleaned completions. The editor client
// re-sends the same text-before-cursor after every typing pause, so repeats
// are common.
type ResponseCache struct {
	cache *ttlcache.Cache[cacheKey, cacheEntry]
}

// NewResponseCache creates a cache holding at most capacity entries for ttl each.
func NewResponseCache(ttl time.Duration, capacity int) *ResponseCache {
	opts := []ttlcache.Option[cacheKey, cacheEntry]{
		ttlcache.WithTTL[cacheKey, cacheEntry](ttl),
		ttlcache.WithDisableTouchOnHit[cacheKey, cacheEntry](),
	}
	if capacity > 0 {
		opts = append(opts, ttlcache.WithCapacity[cacheKey, cacheEntry](uint64(capacity)))
	}
	c := ttlcache.New[cacheKey, cacheEntry](opts...)
	go c.Start()
	return &ResponseCache{cache: c}
}

// Close stops the cache expiration loop.
func (rc *ResponseCache) Close() {
	rc.cache.Stop()
}

// Get returns the cached text for prompt and opts.
func (rc *ResponseCache) Get(prompt string, opts runner.Options) (string, bool) {
	item := rc.cache.Get(makeCacheKey(prompt, opts))
	if item == nil {
		return "", false
	}
	entry := item.Value()
	if entry.prompt != prompt {
		return "", false
	}
	return entry.text, true
}

// Set stores text for prompt and opts.
func (rc *ResponseCache) Set(prompt string, opts runner.Options, text string) {
	rc.cache.Set(makeCacheKey(prompt, opts), cacheEntry{prompt: prompt, text: text}, ttlcache.DefaultTTL)
}

// Len returns the number of live entries.
func (rc *ResponseCache) Len() int {
	return rc.cache.Len()
}

// Metrics returns hit and miss counts.
func (rc *ResponseCache) Metrics() (hits, misses uint64) {
	m := rc.cache.Metrics()
	return m.Hits, m.Misses
}

func makeCacheKey(prompt string, opts runner.Options) cacheKey {
	h := xxh3.New()
	h.WriteString(strconv.Itoa(opts.MaxNewTokens))
	h.WriteString("\x00")
	h.WriteString(strconv.FormatFloat(opts.Temperature, 'g', -1, 64))
	h.WriteString("\x00")
	for _, s := range opts.Stop {
		h.WriteString(s)
		h.WriteString("\x01")
	}
	h.WriteString("\x00")
	h.WriteString(prompt)
	return h.Sum128()
}
