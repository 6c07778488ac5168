package dj

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"Bt1QDJ/core/plugin"
	"Bt1QDJ/logger"
	"Bt1QDJ/model"
)

// CreateCustomPlaylist builds a playlist out of caller-supplied inputs: URLs
// resolved through the extractor plugins, or *model.Song values taken as-is.
// Inputs that fail to resolve are dropped with a log; resolution order is
// preserved even with Parallel (the default).
func (e *Engine) CreateCustomPlaylist(ctx context.Context, inputs []any, opts model.CustomPlaylistOptions) (*model.Playlist, error) {
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: no playlist inputs", model.ErrInvalidPlaylist)
	}

	resolve := func(i int, in any) *model.Song {
		switch v := in.(type) {
		case *model.Song:
			return v
		case model.Song:
			return &v
		case string:
			s, err := e.resolveSongURL(ctx, v, model.ResolveOptions{Member: opts.Member, Metadata: opts.Metadata})
			if err != nil {
				logger.Warn("自定义列表条目解析失败",
					logger.Int("index", i),
					logger.String("input", v),
					logger.ErrorField(err))
				return nil
			}
			return s
		default:
			logger.Warn("自定义列表条目类型不支持", logger.Int("index", i))
			return nil
		}
	}

	songs := make([]*model.Song, len(inputs))
	parallel := opts.Parallel == nil || *opts.Parallel
	if parallel {
		var wg sync.WaitGroup
		for i, in := range inputs {
			wg.Add(1)
			go func(i int, in any) {
				defer wg.Done()
				songs[i] = resolve(i, in)
			}(i, in)
		}
		wg.Wait()
	} else {
		for i, in := range inputs {
			songs[i] = resolve(i, in)
		}
	}

	kept := songs[:0]
	for _, s := range songs {
		if s != nil {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		return nil, fmt.Errorf("%w: no input resolved to a song", model.ErrInvalidPlaylist)
	}

	info := model.PlaylistInfo{
		Source:    opts.Source,
		Name:      opts.Name,
		URL:       opts.URL,
		Thumbnail: opts.Thumbnail,
		Songs:     kept,
	}
	if info.Source == "" {
		info.Source = "custom"
	}
	return model.NewPlaylist(info, opts.Member, opts.Metadata)
}

// resolveSongURL resolves one URL into a single song. Playlist URLs are
// rejected here: a playlist inside a custom playlist would silently flatten.
func (e *Engine) resolveSongURL(ctx context.Context, rawURL string, opts model.ResolveOptions) (*model.Song, error) {
	rawURL = strings.TrimSpace(rawURL)
	if !isURL(rawURL) {
		return nil, fmt.Errorf("%w: %q is not a url", model.ErrInvalidSongInfo, rawURL)
	}
	p, ok := e.plugins.ForURL(rawURL)
	if !ok {
		return nil, fmt.Errorf("%w: no plugin accepts %q", model.ErrNoPlugin, rawURL)
	}
	ep, ok := p.(plugin.ExtractorPlugin)
	if !ok {
		return nil, fmt.Errorf("%w: %q needs plugin %q which cannot resolve songs", model.ErrNoPlugin, rawURL, p.Name())
	}
	res, err := ep.Resolve(ctx, rawURL, opts)
	if err != nil {
		return nil, err
	}
	if res == nil || res.Song == nil {
		return nil, fmt.Errorf("%w: %q did not resolve to a single song", model.ErrInvalidSongInfo, rawURL)
	}
	if res.Song.Plugin == "" {
		res.Song.Plugin = ep.Name()
	}
	return res.Song, nil
}

// PlayCustomPlaylist builds a playlist from inputs and queues it in one call.
func (e *Engine) PlayCustomPlaylist(ctx context.Context, guild any, inputs []any, opts model.CustomPlaylistOptions, play model.PlayHandlerOptions) error {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return err
	}
	pl, err := e.CreateCustomPlaylist(ctx, inputs, opts)
	if err != nil {
		return err
	}
	return e.PlayList(ctx, guildID, pl, model.PlayOptions{
		PlayHandlerOptions: play,
		Member:             opts.Member,
		Metadata:           opts.Metadata,
	})
}

// SaveCustomPlaylist stores a playlist under a guild-scoped name so it can be
// replayed later. An existing playlist with the same name is replaced.
func (e *Engine) SaveCustomPlaylist(ctx context.Context, guild any, name string, pl *model.Playlist) error {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return err
	}
	if e.playlists == nil {
		return fmt.Errorf("saved playlists: %w", ErrStoreDisabled)
	}
	if pl == nil || len(pl.Songs) == 0 {
		return fmt.Errorf("%w: nothing to save", model.ErrInvalidPlaylist)
	}
	if name = strings.TrimSpace(name); name == "" {
		name = pl.Name
	}
	if name == "" {
		return fmt.Errorf("%w: playlist needs a name", model.ErrInvalidPlaylist)
	}

	saved := &model.SavedPlaylist{
		GuildID:   uint64(guildID),
		Name:      name,
		Source:    pl.Source,
		URL:       pl.URL,
		Thumbnail: pl.Thumbnail,
		Songs:     pl.Songs,
	}
	if pl.Member != nil {
		saved.CreatedBy = uint64(pl.Member.ID)
	}
	if err := e.playlists.SavePlaylist(ctx, saved); err != nil {
		return fmt.Errorf("save playlist %q for guild %s: %w", name, guildID, err)
	}
	logger.Info("保存自定义歌单",
		logger.String("guildID", guildID.String()),
		logger.String("name", name),
		logger.Int("songs", len(pl.Songs)))
	return nil
}

// PlaySavedPlaylist loads a stored playlist by name and queues it.
func (e *Engine) PlaySavedPlaylist(ctx context.Context, guild any, name string, opts model.PlayOptions) error {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return err
	}
	if e.playlists == nil {
		return fmt.Errorf("saved playlists: %w", ErrStoreDisabled)
	}
	saved, err := e.playlists.GetPlaylist(ctx, guildID, name)
	if err != nil {
		return fmt.Errorf("load playlist %q for guild %s: %w", name, guildID, err)
	}
	if saved == nil {
		return fmt.Errorf("%w: %q in guild %s", ErrPlaylistNotFound, name, guildID)
	}
	pl, err := saved.Playlist(opts.Member, opts.Metadata)
	if err != nil {
		return err
	}
	return e.PlayList(ctx, guildID, pl, opts)
}

// ListSavedPlaylists returns every stored playlist of a guild.
func (e *Engine) ListSavedPlaylists(ctx context.Context, guild any) ([]*model.SavedPlaylist, error) {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return nil, err
	}
	if e.playlists == nil {
		return nil, fmt.Errorf("saved playlists: %w", ErrStoreDisabled)
	}
	return e.playlists.ListPlaylists(ctx, guildID)
}

// DeleteSavedPlaylist removes a stored playlist by name.
func (e *Engine) DeleteSavedPlaylist(ctx context.Context, guild any, name string) error {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return err
	}
	if e.playlists == nil {
		return fmt.Errorf("saved playlists: %w", ErrStoreDisabled)
	}
	if err := e.playlists.DeletePlaylist(ctx, guildID, name); err != nil {
		return fmt.Errorf("delete playlist %q for guild %s: %w", name, guildID, err)
	}
	logger.Info("删除自定义歌单",
		logger.String("guildID", guildID.String()),
		logger.String("name", name))
	return nil
}
