package prefs

import (
	"context"
	"sync"
)

// Preferences reads through the persisted store to the registration domain.
// A persisted top-level key shadows the registered one entirely; nested
// dictionaries are not merged across the two layers.
type Preferences struct {
	store Store

	mu         sync.RWMutex
	registered Dict
}

func New(store Store) *Preferences {
	return &Preferences{store: store, registered: Dict{}}
}

func (p *Preferences) Store() Store { return p.store }

func (p *Preferences) Get(ctx context.Context, key string) (any, bool, error) {
	v, ok, err := p.store.Get(ctx, key)
	if err != nil || ok {
		return v, ok, err
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	rv, ok := p.registered[key]
	return CloneValue(rv), ok, nil
}

func (p *Preferences) Set(ctx context.Context, key string, value any) error {
	return p.store.Set(ctx, key, value)
}

func (p *Preferences) Remove(ctx context.Context, key string) error {
	return p.store.Remove(ctx, key)
}

// RegisterDefaults merges d into the registration domain; d wins over values
// registered earlier. Nothing is persisted.
func (p *Preferences) RegisterDefaults(d Dict) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.registered = DeepMerge(d, p.registered)
}

// Registered returns a copy of the registration domain.
func (p *Preferences) Registered() Dict {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.registered.Clone()
}

// Effective returns the persisted values over the registration domain.
func (p *Preferences) Effective(ctx context.Context) (Dict, error) {
	persisted, err := p.store.Load(ctx)
	if err != nil {
		return nil, err
	}
	p.mu.RLock()
	out := p.registered.Clone()
	p.mu.RUnlock()
	for k, v := range persisted {
		out[k] = v
	}
	return out, nil
}
