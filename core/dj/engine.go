// Package dj wires plugins, queues, voice sessions, filters and the search
// flow into one playback engine. The engine is transport-agnostic: frontends
// drive it through the HTTP/websocket server or embed it directly and react
// to the events it emits on its bus.
package dj

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"Bt1QDJ/core/event"
	"Bt1QDJ/core/filter"
	"Bt1QDJ/core/plugin"
	"Bt1QDJ/core/queue"
	"Bt1QDJ/core/search"
	"Bt1QDJ/core/voice"
	"Bt1QDJ/logger"
	"Bt1QDJ/model"
)

// closeTimeout bounds the final queue persist on shutdown.
const closeTimeout = 5 * time.Second

// ErrStoreDisabled is returned by operations that need a persistent store
// the node was started without.
var ErrStoreDisabled = errors.New("persistent store not configured")

// ErrPlaylistNotFound is returned when a named saved playlist does not exist
// in the guild. Stores may return it directly or signal a miss with nil, nil.
var ErrPlaylistNotFound = errors.New("saved playlist not found")

// SettingsStore loads per-guild overrides. The repository package implements
// it over MySQL; a nil store means every guild runs on the engine options.
type SettingsStore interface {
	GetSettings(ctx context.Context, guildID snowflake.ID) (*model.GuildSettings, error)
	SaveSettings(ctx context.Context, s *model.GuildSettings) error
}

// PlaylistStore persists named custom playlists per guild.
type PlaylistStore interface {
	SavePlaylist(ctx context.Context, p *model.SavedPlaylist) error
	GetPlaylist(ctx context.Context, guildID snowflake.ID, name string) (*model.SavedPlaylist, error)
	ListPlaylists(ctx context.Context, guildID snowflake.ID) ([]*model.SavedPlaylist, error)
	DeletePlaylist(ctx context.Context, guildID snowflake.ID, name string) error
}

// Config assembles an Engine. Every field but Options is optional: the zero
// Config yields a memory-only node with default options and its own bus.
type Config struct {
	Options model.Options
	// Bus lets several components share one event stream; New creates a
	// private bus when nil.
	Bus *event.Bus
	// QueueStore mirrors queue snapshots, usually cache.QueueCache.
	QueueStore queue.Store
	// Cooldowns throttles interactive searches, usually cache.SearchCooldowns.
	Cooldowns search.Cooldowner
	Settings  SettingsStore
	Playlists PlaylistStore
}

// Engine is the playback node. One Engine serves every guild; all exported
// methods are safe for concurrent use.
type Engine struct {
	opts     model.Options
	bus      *event.Bus
	ownBus   bool
	plugins  *plugin.Registry
	queues   *queue.Manager
	voices   *voice.Manager
	filters  *filter.Resolver
	searches *search.Manager

	settings  SettingsStore
	playlists PlaylistStore

	// mu guards the two maps below. Guild locks serialize composite
	// operations (enqueue+start, skip, finish handling) per guild; they are
	// never held while calling into plugins.
	mu         sync.Mutex
	locks      map[snowflake.ID]*sync.Mutex
	lastPlayed map[snowflake.ID]string

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New builds the engine, applies option defaults exactly once and starts the
// voice event bridge. With DirectLink enabled (the default) the returned
// engine can already play direct media URLs; other sources arrive through
// RegisterPlugin.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	opts := cfg.Options
	if err := opts.ApplyDefaults(); err != nil {
		return nil, fmt.Errorf("engine options: %w", err)
	}

	bus := cfg.Bus
	ownBus := false
	if bus == nil {
		bus = event.NewBus(event.DefaultBufferSize)
		ownBus = true
	}

	e := &Engine{
		opts:       opts,
		bus:        bus,
		ownBus:     ownBus,
		queues:     queue.NewManager(bus, cfg.QueueStore, *opts.SavePreviousSongs),
		voices:     voice.NewManager(),
		filters:    filter.NewResolver(opts.CustomFilters),
		searches:   search.NewManager(bus, cfg.Cooldowns, opts.SearchCooldown, search.DefaultAnswerTimeout),
		settings:   cfg.Settings,
		playlists:  cfg.Playlists,
		locks:      make(map[snowflake.ID]*sync.Mutex),
		lastPlayed: make(map[snowflake.ID]string),
		done:       make(chan struct{}),
	}
	e.plugins = plugin.NewRegistry(plugin.Env{Options: &e.opts, Enqueue: e})

	if *opts.DirectLink {
		if err := e.plugins.Register(ctx, plugin.NewDirectLink()); err != nil {
			return nil, fmt.Errorf("register direct-link plugin: %w", err)
		}
	}

	e.wg.Add(1)
	go e.watchVoice()

	logger.Info("DJ 引擎就绪",
		logger.String("streamType", opts.StreamType.String()),
		logger.Int("searchSongs", opts.SearchSongs),
		logger.Bool("directLink", *opts.DirectLink))
	return e, nil
}

// Close stops the voice bridge, tears down sessions and flushes every queue
// snapshot. The bus is closed only when the engine created it.
func (e *Engine) Close() {
	e.closeOnce.Do(func() {
		close(e.done)
		e.voices.Close()
		e.wg.Wait()
		e.searches.Close()
		e.queues.Close()

		ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
		defer cancel()
		for _, q := range e.queues.All() {
			e.queues.Persist(ctx, q)
		}
		if e.ownBus {
			e.bus.Close()
		}
		logger.Info("DJ 引擎停止")
	})
}

// Bus exposes the event stream frontends subscribe to.
func (e *Engine) Bus() *event.Bus { return e.bus }

// Options returns the defaulted option set. Treat it as read-only.
func (e *Engine) Options() model.Options { return e.opts }

// Filters exposes the preset resolver, shared with the config file watcher.
func (e *Engine) Filters() *filter.Resolver { return e.filters }

// RegisterPlugin adds a source integration. Registration order decides URL
// dispatch order.
func (e *Engine) RegisterPlugin(ctx context.Context, p plugin.Plugin) error {
	return e.plugins.Register(ctx, p)
}

// PluginNames lists registered plugins in dispatch order.
func (e *Engine) PluginNames() []string { return e.plugins.Names() }

// Restore rehydrates queues from the snapshot store at boot. Restored queues
// come back paused until a frontend resumes them.
func (e *Engine) Restore(ctx context.Context) (int, error) {
	return e.queues.Restore(ctx)
}

// lockGuild serializes composite playback operations for one guild. The
// returned func releases the lock.
func (e *Engine) lockGuild(guildID snowflake.ID) func() {
	e.mu.Lock()
	l, ok := e.locks[guildID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[guildID] = l
	}
	e.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// settingsFor fetches guild overrides, swallowing store errors: playback
// must not depend on MySQL health.
func (e *Engine) settingsFor(ctx context.Context, guildID snowflake.ID) *model.GuildSettings {
	if e.settings == nil {
		return nil
	}
	s, err := e.settings.GetSettings(ctx, guildID)
	if err != nil {
		logger.Warn("读取服务器设置失败",
			logger.String("guildID", guildID.String()),
			logger.ErrorField(err))
		return nil
	}
	return s
}

// applyGuildSettings merges stored overrides into a freshly created queue.
func (e *Engine) applyGuildSettings(ctx context.Context, q *queue.Queue) {
	s := e.settingsFor(ctx, q.ResolveGuildID())
	if s == nil {
		return
	}
	if s.Volume.Valid {
		q.SetVolume(int(s.Volume.Int64))
	}
	if names := s.FilterNames(); len(names) > 0 {
		inputs := make([]any, len(names))
		for i, n := range names {
			inputs[i] = n
		}
		list, err := e.filters.ResolveAll(inputs...)
		if err != nil {
			logger.Warn("服务器默认滤镜无效",
				logger.String("guildID", q.ResolveGuildID().String()),
				logger.ErrorField(err))
			return
		}
		q.SetFilters(list)
	}
}

// nsfwAllowed reports whether age-restricted songs may play in this guild:
// the engine option or a stored per-guild override enables them.
func (e *Engine) nsfwAllowed(ctx context.Context, guildID snowflake.ID) bool {
	if *e.opts.NSFW {
		return true
	}
	s := e.settingsFor(ctx, guildID)
	return s != nil && s.NSFW.Valid && s.NSFW.Bool
}

// searchSongsFor applies the per-guild override to the SearchSongs option.
func (e *Engine) searchSongsFor(ctx context.Context, guildID snowflake.ID) int {
	n := e.opts.SearchSongs
	if s := e.settingsFor(ctx, guildID); s != nil && s.SearchSongs.Valid {
		n = int(s.SearchSongs.Int64)
	}
	if n > model.MaxSearchSongs {
		n = model.MaxSearchSongs
	}
	return n
}

// emptyCooldownFor applies the per-guild override to the EmptyCooldown option.
func (e *Engine) emptyCooldownFor(ctx context.Context, guildID snowflake.ID) time.Duration {
	if s := e.settingsFor(ctx, guildID); s != nil && s.EmptyCooldown.Valid {
		return time.Duration(s.EmptyCooldown.Int64) * time.Second
	}
	return e.opts.EmptyCooldown
}

// GuildSettings returns the stored overrides for a guild. Guilds without a
// stored row, and nodes running without a settings store, get a zero value:
// reads always succeed, only writes need the store.
func (e *Engine) GuildSettings(ctx context.Context, guild any) (*model.GuildSettings, error) {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return nil, err
	}
	if e.settings == nil {
		return &model.GuildSettings{GuildID: uint64(guildID)}, nil
	}
	s, err := e.settings.GetSettings(ctx, guildID)
	if err != nil {
		return nil, fmt.Errorf("load settings for guild %s: %w", guildID, err)
	}
	if s == nil {
		s = &model.GuildSettings{GuildID: uint64(guildID)}
	}
	return s, nil
}

// UpdateGuildSettings persists overrides. They apply to queues created from
// now on; live queues keep their current state.
func (e *Engine) UpdateGuildSettings(ctx context.Context, s *model.GuildSettings) error {
	if e.settings == nil {
		return fmt.Errorf("guild settings: %w", ErrStoreDisabled)
	}
	if s == nil || s.GuildID == 0 {
		return fmt.Errorf("%w: settings without a guild id", model.ErrCannotResolveGuildID)
	}
	if err := e.settings.SaveSettings(ctx, s); err != nil {
		return fmt.Errorf("save settings for guild %d: %w", s.GuildID, err)
	}
	logger.Info("更新服务器设置", logger.Uint64("guildID", s.GuildID))
	return nil
}
