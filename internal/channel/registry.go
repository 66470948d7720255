package channel

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/memohai/chatgate/internal/bots"
)

// Registry holds all registered channel adapters and exposes their optional
// capabilities. It must be created via NewRegistry and passed explicitly to
// components that need it.
type Registry struct {
	mu       sync.RWMutex
	adapters map[ChannelType]Adapter
}

// NewRegistry creates a Registry holding the given adapters.
func NewRegistry(adapters ...Adapter) (*Registry, error) {
	r := &Registry{
		adapters: map[ChannelType]Adapter{},
	}
	for _, adapter := range adapters {
		if err := r.Register(adapter); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds an adapter to the registry.
func (r *Registry) Register(adapter Adapter) error {
	if adapter == nil {
		return fmt.Errorf("adapter is nil")
	}
	ct := normalizeChannelType(adapter.Type().String())
	if ct == "" {
		return fmt.Errorf("channel type is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[ct]; exists {
		return fmt.Errorf("channel type already registered: %s", ct)
	}
	r.adapters[ct] = adapter
	return nil
}

// MustRegister calls Register and panics on error.
func (r *Registry) MustRegister(adapter Adapter) {
	if err := r.Register(adapter); err != nil {
		panic(err)
	}
}

// Get returns the adapter for the given channel type.
func (r *Registry) Get(channelType ChannelType) (Adapter, bool) {
	ct := normalizeChannelType(channelType.String())
	r.mu.RLock()
	defer r.mu.RUnlock()
	adapter, ok := r.adapters[ct]
	return adapter, ok
}

// List returns all registered adapters ordered by type.
func (r *Registry) List() []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	items := make([]Adapter, 0, len(r.adapters))
	for _, a := range r.adapters {
		items = append(items, a)
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].Type() < items[j].Type()
	})
	return items
}

// Types returns all registered channel types in order.
func (r *Registry) Types() []ChannelType {
	adapters := r.List()
	items := make([]ChannelType, 0, len(adapters))
	for _, a := range adapters {
		items = append(items, a.Type())
	}
	return items
}

// ParseChannelType validates and normalizes a raw string into a registered ChannelType.
func (r *Registry) ParseChannelType(raw string) (ChannelType, error) {
	ct := normalizeChannelType(raw)
	if ct == "" {
		return "", fmt.Errorf("unsupported channel type: %s", raw)
	}
	if _, ok := r.Get(ct); !ok {
		return "", fmt.Errorf("unsupported channel type: %s", raw)
	}
	return ct, nil
}

// GetDescriptor returns the descriptor for the given channel type.
func (r *Registry) GetDescriptor(channelType ChannelType) (Descriptor, bool) {
	adapter, ok := r.Get(channelType)
	if !ok {
		return Descriptor{}, false
	}
	return adapter.Descriptor(), true
}

// --- Capability accessors ---

func (r *Registry) GetNormalizer(channelType ChannelType) (Normalizer, bool) {
	return capability[Normalizer](r, channelType)
}

func (r *Registry) GetVerifier(channelType ChannelType) (Verifier, bool) {
	return capability[Verifier](r, channelType)
}

func (r *Registry) GetBinder(channelType ChannelType) (Binder, bool) {
	return capability[Binder](r, channelType)
}

func (r *Registry) GetSender(channelType ChannelType) (Sender, bool) {
	return capability[Sender](r, channelType)
}

func (r *Registry) GetHandshaker(channelType ChannelType) (Handshaker, bool) {
	return capability[Handshaker](r, channelType)
}

func (r *Registry) GetInterceptor(channelType ChannelType) (Interceptor, bool) {
	return capability[Interceptor](r, channelType)
}

func capability[T any](r *Registry, channelType ChannelType) (T, bool) {
	var zero T
	adapter, ok := r.Get(channelType)
	if !ok {
		return zero, false
	}
	c, ok := adapter.(T)
	return c, ok
}

// --- Dispatch helpers with channel defaults ---

// BindingStatus reports the binding of bot. Adapters without a Binder
// accept every bot.
func (r *Registry) BindingStatus(channelType ChannelType, bot bots.BotConfig) BindingStatus {
	if binder, ok := r.GetBinder(channelType); ok {
		return binder.BindingStatus(bot)
	}
	return BindingStatus{Bound: true, Enabled: true, Configured: true}
}

// Apology returns the channel's apology text for kind.
func (r *Registry) Apology(channelType ChannelType, kind ApologyKind) string {
	if a, ok := capability[Apologizer](r, channelType); ok {
		if text := strings.TrimSpace(a.Apology(kind)); text != "" {
			return text
		}
	}
	return DefaultApology(kind)
}

// IsGreeting reports whether msg should be answered with the welcome text.
func (r *Registry) IsGreeting(msg InboundMessage) bool {
	if msg.Greeting {
		return true
	}
	tokens := DefaultGreetings
	if g, ok := capability[Greeter](r, msg.Channel); ok {
		if custom := g.Greetings(); len(custom) > 0 {
			tokens = custom
		}
	}
	return MatchGreeting(msg.Text, tokens)
}

// Welcome returns the channel's welcome text for bot.
func (r *Registry) Welcome(channelType ChannelType, bot bots.BotConfig) string {
	if g, ok := capability[Greeter](r, channelType); ok {
		if text := strings.TrimSpace(g.Welcome(bot)); text != "" {
			return text
		}
	}
	return bot.Welcome()
}

// Ack renders the webhook response body for accepted messages.
func (r *Registry) Ack(channelType ChannelType, messages []InboundMessage, queued bool) any {
	if a, ok := capability[Acknowledger](r, channelType); ok {
		return a.Ack(messages, queued)
	}
	return map[string]any{"ok": true}
}

func normalizeChannelType(raw string) ChannelType {
	normalized := strings.TrimSpace(strings.ToLower(raw))
	if normalized == "" {
		return ""
	}
	return ChannelType(normalized)
}
