package bots

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// ErrBotNotFound is returned when no configuration exists for a bot id.
var ErrBotNotFound = errors.New("bot not found")

// Store reads bot configurations written by the configuration service.
type Store interface {
	Get(ctx context.Context, botID string) (BotConfig, error)
	List(ctx context.Context) ([]BotConfig, error)
}

// Writer persists bot configurations. Only seeding and tests use it.
type Writer interface {
	Upsert(ctx context.Context, cfg BotConfig) error
}

// MemoryStore keeps bot configurations in process memory.
type MemoryStore struct {
	mu   sync.RWMutex
	bots map[string]BotConfig
}

// NewMemoryStore creates a store holding the given bots.
func NewMemoryStore(items ...BotConfig) *MemoryStore {
	s := &MemoryStore{bots: make(map[string]BotConfig, len(items))}
	for _, item := range items {
		s.bots[item.BotID] = item
	}
	return s
}

func (s *MemoryStore) Get(_ context.Context, botID string) (BotConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg, ok := s.bots[botID]
	if !ok {
		return BotConfig{}, fmt.Errorf("%w: %s", ErrBotNotFound, botID)
	}
	return cfg, nil
}

// List returns bots ordered by id.
func (s *MemoryStore) List(_ context.Context) ([]BotConfig, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	items := make([]BotConfig, 0, len(s.bots))
	for _, item := range s.bots {
		items = append(items, item)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].BotID < items[j].BotID
	})
	return items, nil
}

func (s *MemoryStore) Upsert(_ context.Context, cfg BotConfig) error {
	if strings.TrimSpace(cfg.BotID) == "" {
		return fmt.Errorf("bot id is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.bots[cfg.BotID] = cfg
	return nil
}

func (s *MemoryStore) Delete(_ context.Context, botID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.bots, botID)
}

// LoadSeedFile reads bot documents from a YAML file holding a list under
// the "bots" key. Keys use the same camelCase names as the JSON documents.
func LoadSeedFile(path string) ([]BotConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read seed file: %w", err)
	}
	return ParseSeed(raw)
}

// ParseSeed decodes YAML seed content into bot configurations.
func ParseSeed(raw []byte) ([]BotConfig, error) {
	var doc struct {
		Bots []map[string]any `yaml:"bots"`
	}
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode seed yaml: %w", err)
	}
	items := make([]BotConfig, 0, len(doc.Bots))
	for i, entry := range doc.Bots {
		// Re-encode through JSON so the seed shares the document field names.
		payload, err := json.Marshal(entry)
		if err != nil {
			return nil, fmt.Errorf("seed bot %d: %w", i, err)
		}
		var cfg BotConfig
		if err := json.Unmarshal(payload, &cfg); err != nil {
			return nil, fmt.Errorf("seed bot %d: %w", i, err)
		}
		if strings.TrimSpace(cfg.BotID) == "" {
			return nil, fmt.Errorf("seed bot %d: botId is required", i)
		}
		items = append(items, cfg)
	}
	return items, nil
}
