package cache

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/memohai/chatgate/internal/bots"
)

// Loader fetches a bot configuration from the backing store.
type Loader func(ctx context.Context, botID string) (bots.BotConfig, error)

// InvalidateResult reports how many entries one channel cache dropped.
type InvalidateResult struct {
	Channel string `json:"channel"`
	BotID   string `json:"botId,omitempty"`
	Cleared int    `json:"cleared"`
}

// Settings keeps one bot-configuration cache per channel kind.
type Settings struct {
	mu         sync.RWMutex
	caches     map[string]*TTL[bots.BotConfig]
	overrides  map[string]time.Duration
	defaultTTL time.Duration
	now        func() time.Time
	group      singleflight.Group

	// generations count invalidations per kind and per bot key. A load only
	// stores its result when neither moved while it ran.
	genMu       sync.Mutex
	generations map[string]uint64
}

// NewSettings creates the coordinator. overrides sets a lifetime per kind.
func NewSettings(defaultTTL time.Duration, overrides map[string]time.Duration) *Settings {
	normalized := make(map[string]time.Duration, len(overrides))
	for kind, ttl := range overrides {
		normalized[normalizeKind(kind)] = ttl
	}
	return &Settings{
		caches:      make(map[string]*TTL[bots.BotConfig]),
		overrides:   normalized,
		defaultTTL:  defaultTTL,
		now:         time.Now,
		generations: make(map[string]uint64),
	}
}

// TTLFor returns the entry lifetime used for kind.
func (s *Settings) TTLFor(kind string) time.Duration {
	if ttl, ok := s.overrides[normalizeKind(kind)]; ok {
		return ttl
	}
	return s.defaultTTL
}

// SetClock replaces the time source of every current and future channel cache.
func (s *Settings) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if now == nil {
		now = time.Now
	}
	s.now = now
	for _, c := range s.caches {
		c.SetClock(now)
	}
}

// Register creates empty caches so that InvalidateAll reports them.
func (s *Settings) Register(kinds ...string) {
	for _, kind := range kinds {
		s.cacheFor(kind)
	}
}

func (s *Settings) cacheFor(kind string) *TTL[bots.BotConfig] {
	kind = normalizeKind(kind)
	s.mu.RLock()
	c, ok := s.caches[kind]
	s.mu.RUnlock()
	if ok {
		return c
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.caches[kind]; ok {
		return c
	}
	ttl := s.defaultTTL
	if override, ok := s.overrides[kind]; ok {
		ttl = override
	}
	c = NewTTL[bots.BotConfig](ttl)
	c.SetClock(s.now)
	s.caches[kind] = c
	return c
}

func (s *Settings) Get(kind, botID string) (bots.BotConfig, bool) {
	return s.cacheFor(kind).Get(botID)
}

func (s *Settings) Put(kind string, cfg bots.BotConfig) {
	s.cacheFor(kind).Put(cfg.BotID, cfg)
}

// Load returns the cached configuration or fetches it with loader.
// Concurrent misses for the same bot share one fetch. Failed fetches are
// not cached.
func (s *Settings) Load(ctx context.Context, kind, botID string, loader Loader) (bots.BotConfig, error) {
	if cfg, ok := s.Get(kind, botID); ok {
		return cfg, nil
	}
	kind = normalizeKind(kind)
	key := botKey(kind, botID)
	v, err, _ := s.group.Do(key, func() (any, error) {
		kindGen, botGen := s.generation(kind, key)
		cfg, err := loader(ctx, botID)
		if err != nil {
			return bots.BotConfig{}, err
		}
		if k, b := s.generation(kind, key); k == kindGen && b == botGen {
			s.Put(kind, cfg)
		}
		return cfg, nil
	})
	if err != nil {
		return bots.BotConfig{}, err
	}
	return v.(bots.BotConfig), nil
}

// Invalidate drops one bot, or the whole kind when botID is empty.
func (s *Settings) Invalidate(kind, botID string) int {
	kind = normalizeKind(kind)
	c := s.cacheFor(kind)
	if strings.TrimSpace(botID) == "" {
		s.bump(kind)
		return c.Clear()
	}
	key := botKey(kind, botID)
	s.bump(key)
	s.group.Forget(key)
	if c.Delete(botID) {
		return 1
	}
	return 0
}

// InvalidateAll drops botID (or everything) from every channel cache.
func (s *Settings) InvalidateAll(botID string) []InvalidateResult {
	kinds := s.Kinds()
	results := make([]InvalidateResult, 0, len(kinds))
	for _, kind := range kinds {
		results = append(results, InvalidateResult{
			Channel: kind,
			BotID:   botID,
			Cleared: s.Invalidate(kind, botID),
		})
	}
	return results
}

// Kinds lists the channel kinds in name order.
func (s *Settings) Kinds() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	kinds := make([]string, 0, len(s.caches))
	for kind := range s.caches {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)
	return kinds
}

func (s *Settings) Sweep() int {
	s.mu.RLock()
	caches := make([]*TTL[bots.BotConfig], 0, len(s.caches))
	for _, c := range s.caches {
		caches = append(caches, c)
	}
	s.mu.RUnlock()
	removed := 0
	for _, c := range caches {
		removed += c.Sweep()
	}
	return removed
}

func (s *Settings) generation(kind, key string) (uint64, uint64) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	return s.generations[kind], s.generations[key]
}

func (s *Settings) bump(key string) {
	s.genMu.Lock()
	defer s.genMu.Unlock()
	s.generations[key]++
}

func botKey(kind, botID string) string {
	return kind + "\x00" + botID
}

func normalizeKind(kind string) string {
	return strings.ToLower(strings.TrimSpace(kind))
}
