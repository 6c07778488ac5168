package plugin

import (
	"context"
	"fmt"
	"sync"

	"Bt1QDJ/logger"
	"Bt1QDJ/model"
)

// Registry holds plugins in registration order. Order is behavior: the
// first plugin whose Validate accepts a URL wins, and custom plugins are
// always consulted before extractors.
type Registry struct {
	mu      sync.RWMutex
	plugins []Plugin
	byName  map[string]Plugin
	env     Env
}

func NewRegistry(env Env) *Registry {
	return &Registry{byName: make(map[string]Plugin), env: env}
}

// Register initializes p and adds it. Names must be unique.
func (r *Registry) Register(ctx context.Context, p Plugin) error {
	if p == nil {
		return fmt.Errorf("%w: nil plugin", model.ErrNoPlugin)
	}
	name := p.Name()
	if name == "" {
		return fmt.Errorf("%w: plugin with empty name", model.ErrNoPlugin)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.byName[name]; dup {
		return fmt.Errorf("plugin %q already registered", name)
	}
	if err := p.Init(ctx, &r.env); err != nil {
		return fmt.Errorf("init plugin %q: %w", name, err)
	}
	r.plugins = append(r.plugins, p)
	r.byName[name] = p
	logger.Info("注册插件",
		logger.String("name", name),
		logger.String("type", string(p.Type())))
	return nil
}

// Get looks a plugin up by name.
func (r *Registry) Get(name string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.byName[name]
	return p, ok
}

// Names lists registered plugins in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, len(r.plugins))
	for i, p := range r.plugins {
		names[i] = p.Name()
	}
	return names
}

// ForURL picks the plugin that will handle url: custom plugins first, then
// extractors, each in registration order.
func (r *Registry) ForURL(url string) (Plugin, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, p := range r.plugins {
		if cp, ok := p.(CustomPlugin); ok && cp.Validate(url) {
			return p, true
		}
	}
	for _, p := range r.plugins {
		if ep, ok := p.(ExtractorPlugin); ok && ep.Validate(url) {
			return p, true
		}
	}
	return nil, false
}

// Searcher returns the first extractor that supports free-text search.
func (r *Registry) Searcher() (Searcher, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.plugins {
		if s, ok := p.(Searcher); ok {
			return s, true
		}
	}
	return nil, false
}

// RelatedFinderFor returns the finder responsible for song, preferring the
// plugin that produced it.
func (r *Registry) RelatedFinderFor(song *model.Song) (RelatedFinder, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if song != nil && song.Plugin != "" {
		if p, ok := r.byName[song.Plugin]; ok {
			if f, ok := p.(RelatedFinder); ok {
				return f, true
			}
		}
	}
	for _, p := range r.plugins {
		if f, ok := p.(RelatedFinder); ok {
			return f, true
		}
	}
	return nil, false
}

// StreamerFor returns the streamer for song following the same preference
// as RelatedFinderFor.
func (r *Registry) StreamerFor(song *model.Song) (Streamer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if song != nil && song.Plugin != "" {
		if p, ok := r.byName[song.Plugin]; ok {
			if s, ok := p.(Streamer); ok {
				return s, true
			}
		}
	}
	for _, p := range r.plugins {
		if s, ok := p.(Streamer); ok {
			return s, true
		}
	}
	return nil, false
}
