package filter

import (
	"fmt"
	"sort"
	"sync"

	"Bt1QDJ/model"
)

// builtin maps preset names to ffmpeg -af expressions. The set and the
// expressions are contract: frontends hardcode these names.
var builtin = map[string]string{
	"3d":        "apulsator=hz=0.125",
	"bassboost": "bass=g=10",
	"echo":      "aecho=0.8:0.9:1000:0.3",
	"flanger":   "flanger",
	"gate":      "agate",
	"haas":      "haas",
	"karaoke":   "stereotools=mlev=0.1",
	"nightcore": "asetrate=48000*1.25,aresample=48000,bass=g=5",
	"reverse":   "areverse",
	"surround":  "surround",
	"mcompand":  "mcompand",
	"phaser":    "aphaser",
	"tremolo":   "tremolo",
	"vaporwave": "asetrate=48000*0.8,aresample=48000,atempo=1.1",
	"earwax":    "earwax",
}

// Default returns a copy of the built-in presets.
func Default() map[string]string {
	out := make(map[string]string, len(builtin))
	for k, v := range builtin {
		out[k] = v
	}
	return out
}

// Resolver turns filter inputs (preset names or inline definitions) into
// resolved filters. Presets come in three layers, later shadowing earlier:
// built-ins, engine options, then the hot-reloaded preset file.
type Resolver struct {
	mu     sync.RWMutex
	custom map[string]string // 来自引擎配置
	file   map[string]string // 来自热加载的预设文件
}

// NewResolver creates a resolver with the given engine-level custom presets.
func NewResolver(custom map[string]string) *Resolver {
	r := &Resolver{custom: map[string]string{}}
	for k, v := range custom {
		r.custom[k] = v
	}
	return r
}

// lookup follows the shadowing order; callers hold at least a read lock.
func (r *Resolver) lookup(name string) (string, bool) {
	if v, ok := r.file[name]; ok {
		return v, true
	}
	if v, ok := r.custom[name]; ok {
		return v, true
	}
	v, ok := builtin[name]
	return v, ok
}

// Resolve accepts a preset name (string) or an inline model.Filter. Inline
// filters need a non-empty Value; an inline with only a Name falls back to
// the preset table.
func (r *Resolver) Resolve(v any) (model.Filter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	switch t := v.(type) {
	case string:
		if expr, ok := r.lookup(t); ok {
			return model.Filter{Name: t, Value: expr}, nil
		}
		return model.Filter{}, fmt.Errorf("%w: unknown preset %q", model.ErrInvalidFilter, t)
	case model.Filter:
		if t.Value != "" {
			if t.Name == "" {
				t.Name = t.Value
			}
			return t, nil
		}
		if expr, ok := r.lookup(t.Name); ok {
			return model.Filter{Name: t.Name, Value: expr}, nil
		}
		return model.Filter{}, fmt.Errorf("%w: %q has no value and is not a preset", model.ErrInvalidFilter, t.Name)
	}
	return model.Filter{}, fmt.Errorf("%w: unsupported input %T", model.ErrInvalidFilter, v)
}

// ResolveAll resolves inputs in order. One bad input fails the whole call so
// a queue never ends up with half the requested chain.
func (r *Resolver) ResolveAll(inputs ...any) (model.FilterList, error) {
	list := make(model.FilterList, 0, len(inputs))
	for _, in := range inputs {
		f, err := r.Resolve(in)
		if err != nil {
			return nil, err
		}
		list = append(list, f)
	}
	return list, nil
}

// Has reports whether name resolves to a preset in any layer.
func (r *Resolver) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.lookup(name)
	return ok
}

// Names lists every available preset name, sorted.
func (r *Resolver) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set := make(map[string]struct{}, len(builtin)+len(r.custom)+len(r.file))
	for k := range builtin {
		set[k] = struct{}{}
	}
	for k := range r.custom {
		set[k] = struct{}{}
	}
	for k := range r.file {
		set[k] = struct{}{}
	}
	names := make([]string, 0, len(set))
	for k := range set {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// setFileLayer replaces the hot-reload layer atomically.
func (r *Resolver) setFileLayer(m map[string]string) {
	r.mu.Lock()
	r.file = m
	r.mu.Unlock()
}
