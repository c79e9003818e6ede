package registry

import (
	"sort"
	"sync"

	"hermes/pkg/errors"
)

// Category groups bots by strategy family
type Category string

const (
	CategoryTrend        Category = "trend"
	CategoryArbitrage    Category = "arbitrage"
	CategoryMarketMaking Category = "market-making"
	CategoryScalping     Category = "scalping"
)

// Bot is static strategy metadata: identity for event sources and the
// exchanges/symbols it is allowed to touch
type Bot struct {
	ID        string
	Name      string
	Category  Category
	Exchanges []string
	Symbols   []string
	Enabled   bool
}

// Registry is a concurrency-safe lookup table of registered bots
type Registry struct {
	mu   sync.RWMutex
	bots map[string]Bot
}

// New creates an empty registry
func New() *Registry {
	return &Registry{bots: make(map[string]Bot)}
}

// Register adds a bot. Registering an existing id fails.
func (r *Registry) Register(bot Bot) error {
	if bot.ID == "" {
		return errors.Wrap(errors.ErrInvalidInput, "bot id is required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bots[bot.ID]; ok {
		return errors.Wrapf(errors.ErrAlreadyExists, "bot %s", bot.ID)
	}
	r.bots[bot.ID] = bot
	return nil
}

// Deregister removes a bot
func (r *Registry) Deregister(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bots[id]; !ok {
		return errors.Wrapf(errors.ErrNotFound, "bot %s", id)
	}
	delete(r.bots, id)
	return nil
}

// Get returns a bot by id
func (r *Registry) Get(id string) (Bot, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	bot, ok := r.bots[id]
	if !ok {
		return Bot{}, errors.Wrapf(errors.ErrNotFound, "bot %s", id)
	}
	return bot, nil
}

// SetEnabled flips the enabled flag
func (r *Registry) SetEnabled(id string, enabled bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	bot, ok := r.bots[id]
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "bot %s", id)
	}
	bot.Enabled = enabled
	r.bots[id] = bot
	return nil
}

// List returns all bots sorted by id
func (r *Registry) List() []Bot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Bot, 0, len(r.bots))
	for _, bot := range r.bots {
		out = append(out, bot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListByCategory returns enabled bots of one category, sorted by id
func (r *Registry) ListByCategory(c Category) []Bot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Bot
	for _, bot := range r.bots {
		if bot.Category == c && bot.Enabled {
			out = append(out, bot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
