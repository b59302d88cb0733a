package generate

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/jellydator/ttlcache/v3"
)

const (
	suggestionCacheCapacity = 256
	sessionIdleTTL          = 30 * time.Minute
)

// SuggestionCache remembers non-empty suggestions per prompt for a short time,
// so re-invoking completion on an unchanged window does not hit the server again.
// A nil *SuggestionCache is valid and never hits.
type SuggestionCache struct {
	cache *ttlcache.Cache[string, string]
}

// NewSuggestionCache creates a cache whose entries expire ttl after they are stored.
func NewSuggestionCache(ttl time.Duration) *SuggestionCache {
	c := ttlcache.New[string, string](
		ttlcache.WithTTL[string, string](ttl),
		ttlcache.WithCapacity[string, string](suggestionCacheCapacity),
		ttlcache.WithDisableTouchOnHit[string, string](),
	)
	go c.Start()
	return &SuggestionCache{cache: c}
}

// Get returns the cached suggestion for prompt.
func (sc *SuggestionCache) Get(prompt string) (string, bool) {
	if sc == nil {
		return "", false
	}
	item := sc.cache.Get(promptKey(prompt))
	if item == nil {
		return "", false
	}
	return item.Value(), true
}

// Set stores a suggestion for prompt.
func (sc *SuggestionCache) Set(prompt, suggestion string) {
	if sc == nil {
		return
	}
	sc.cache.Set(promptKey(prompt), suggestion, ttlcache.DefaultTTL)
}

// Len returns the number of cached suggestions.
func (sc *SuggestionCache) Len() int {
	if sc == nil {
		return 0
	}
	return sc.cache.Len()
}

// Close stops the cache expiration loop.
func (sc *SuggestionCache) Close() {
	if sc == nil {
		return
	}
	sc.cache.Stop()
}

func promptKey(prompt string) string {
	sum := sha256.Sum256([]byte(prompt))
	return hex.EncodeToString(sum[:])
}

// sessionGates holds one debounce gate per editor session. Gates of sessions
// idle for sessionIdleTTL are evicted and their pending timers stopped.
type sessionGates struct {
	delay time.Duration
	cache *ttlcache.Cache[string, *Gate]
}

func newSessionGates(delay time.Duration) *sessionGates {
	c := ttlcache.New[string, *Gate](
		ttlcache.WithTTL[string, *Gate](sessionIdleTTL),
	)
	c.OnEviction(func(_ context.Context, _ ttlcache.EvictionReason, item *ttlcache.Item[string, *Gate]) {
		item.Value().Stop()
	})
	go c.Start()
	return &sessionGates{delay: delay, cache: c}
}

// get returns the gate for session, creating it on first use.
func (s *sessionGates) get(session string) *Gate {
	item, _ := s.cache.GetOrSet(session, NewGate(s.delay))
	return item.Value()
}

func (s *sessionGates) len() int {
	return s.cache.Len()
}

// close stops every pending timer and the expiration loop.
func (s *sessionGates) close() {
	s.cache.Stop()
	s.cache.DeleteAll()
}
