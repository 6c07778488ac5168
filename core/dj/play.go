package dj

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/disgoorg/snowflake/v2"

	"Bt1QDJ/core/event"
	"Bt1QDJ/core/plugin"
	"Bt1QDJ/core/queue"
	"Bt1QDJ/core/voice"
	"Bt1QDJ/logger"
	"Bt1QDJ/model"
)

// Play resolves input and queues the result. A URL is dispatched to the
// first plugin that accepts it; anything else is treated as a free-text
// query. With SearchSongs > 1 and a requesting member, free text opens an
// interactive search flow instead of playing the first hit.
func (e *Engine) Play(ctx context.Context, guild any, input string, opts model.PlayOptions) error {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return err
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return fmt.Errorf("%w: empty play input", model.ErrNoResult)
	}

	if isURL(input) {
		return e.playURL(ctx, guildID, input, opts)
	}
	return e.playQuery(ctx, guildID, input, opts)
}

func (e *Engine) playURL(ctx context.Context, guildID snowflake.ID, rawURL string, opts model.PlayOptions) error {
	p, ok := e.plugins.ForURL(rawURL)
	if !ok {
		return fmt.Errorf("%w: no plugin accepts %q", model.ErrNoPlugin, rawURL)
	}

	switch src := p.(type) {
	case plugin.CustomPlugin:
		return src.Play(ctx, guildID, rawURL, opts)
	case plugin.ExtractorPlugin:
		res, err := src.Resolve(ctx, rawURL, opts.ResolveOptions())
		if err != nil {
			return fmt.Errorf("resolve %q: %w", rawURL, err)
		}
		switch {
		case res == nil:
			return fmt.Errorf("%w: %q", model.ErrNoResult, rawURL)
		case res.Song != nil:
			if res.Song.Plugin == "" {
				res.Song.Plugin = src.Name()
			}
			return e.PlaySong(ctx, guildID, res.Song, opts)
		case res.Playlist != nil:
			for _, s := range res.Playlist.Songs {
				if s.Plugin == "" {
					s.Plugin = src.Name()
				}
			}
			return e.PlayList(ctx, guildID, res.Playlist, opts)
		default:
			return fmt.Errorf("%w: %q", model.ErrNoResult, rawURL)
		}
	}
	return fmt.Errorf("%w: plugin %q handles no play input", model.ErrNoPlugin, p.Name())
}

// playQuery turns free text into a song via the first searching plugin.
func (e *Engine) playQuery(ctx context.Context, guildID snowflake.ID, query string, opts model.PlayOptions) error {
	searcher, ok := e.plugins.Searcher()
	if !ok {
		return fmt.Errorf("%w: no plugin can search %q", model.ErrNoPlugin, query)
	}

	limit := e.searchSongsFor(ctx, guildID)
	interactive := limit > 1 && opts.Member != nil
	if !interactive {
		limit = 1
	}

	results, err := searcher.Search(ctx, query, model.SearchResultVideo, limit)
	if err != nil {
		return fmt.Errorf("search %q: %w", query, err)
	}
	if len(results) == 0 {
		e.searches.NoResult(guildID, opts.Member, query)
		return fmt.Errorf("%w: %q", model.ErrNoResult, query)
	}
	if !interactive {
		return e.playURL(ctx, guildID, results[0].URL, opts)
	}

	_, err = e.searches.Begin(ctx, guildID, opts.Member, query, results, opts)
	return err
}

// PlaySong queues one song, creating the guild queue when needed. It is the
// enqueue entry point plugins get; Play funnels here for single tracks.
func (e *Engine) PlaySong(ctx context.Context, guildID snowflake.ID, song *model.Song, opts model.PlayOptions) error {
	if song == nil {
		return fmt.Errorf("%w: nil song", model.ErrInvalidSongInfo)
	}
	if song.AgeRestricted && !e.nsfwAllowed(ctx, guildID) {
		return fmt.Errorf("%w: %q", model.ErrNonNSFW, song.Name)
	}
	if song.Member == nil {
		song.Member = opts.Member
	}
	if song.Metadata == nil {
		song.Metadata = opts.Metadata
	}

	defer e.lockGuild(guildID)()

	q, created, err := e.queues.GetOrCreate(ctx, guildID)
	if err != nil {
		return err
	}
	if created {
		e.applyGuildSettings(ctx, q)
	}
	q.SetChannels(0, opts.TextChannelID)

	wasEmpty := q.Len() == 0
	position := opts.Position
	if opts.Skip && position <= 0 {
		position = 1
	}
	q.Add([]*model.Song{song}, position)

	if !created || *e.opts.EmitAddSongWhenCreatingQueue {
		e.bus.Emit(event.AddSong, guildID, event.AddSongData{Queue: q.Snapshot(), Song: song})
	}

	switch {
	case created || wasEmpty:
		return e.startPlaying(ctx, q, true)
	case opts.Skip:
		_, err := e.skipCurrent(ctx, q)
		return err
	}
	e.queues.Persist(ctx, q)
	return nil
}

// PlayList queues a playlist as one unit. Age-restricted songs are dropped
// in guilds that disallow them; a playlist with nothing left errors.
func (e *Engine) PlayList(ctx context.Context, guildID snowflake.ID, pl *model.Playlist, opts model.PlayOptions) error {
	if pl == nil || len(pl.Songs) == 0 {
		return fmt.Errorf("%w: empty playlist", model.ErrInvalidPlaylist)
	}
	if !e.nsfwAllowed(ctx, guildID) {
		kept := pl.Songs[:0:0]
		for _, s := range pl.Songs {
			if !s.AgeRestricted {
				kept = append(kept, s)
			}
		}
		if len(kept) == 0 {
			return fmt.Errorf("%w: playlist %q has only age-restricted songs", model.ErrNonNSFW, pl.Name)
		}
		if len(kept) < len(pl.Songs) {
			logger.Info("过滤列表中的年龄限制歌曲",
				logger.String("guildID", guildID.String()),
				logger.Int("dropped", len(pl.Songs)-len(kept)))
			pl.Songs = kept
		}
	}

	defer e.lockGuild(guildID)()

	q, created, err := e.queues.GetOrCreate(ctx, guildID)
	if err != nil {
		return err
	}
	if created {
		e.applyGuildSettings(ctx, q)
	}
	q.SetChannels(0, opts.TextChannelID)

	wasEmpty := q.Len() == 0
	position := opts.Position
	if opts.Skip && position <= 0 {
		position = 1
	}
	q.Add(pl.Songs, position)

	if !created || *e.opts.EmitAddListWhenCreatingQueue {
		e.bus.Emit(event.AddList, guildID, event.AddListData{Queue: q.Snapshot(), Playlist: pl})
	}

	switch {
	case created || wasEmpty:
		return e.startPlaying(ctx, q, true)
	case opts.Skip:
		_, err := e.skipCurrent(ctx, q)
		return err
	}
	e.queues.Persist(ctx, q)
	return nil
}

// startPlaying pushes the queue head onto the voice session. announce
// controls the playSong event: seek/filter restarts keep quiet. Callers hold
// the guild lock.
func (e *Engine) startPlaying(ctx context.Context, q *queue.Queue, announce bool) error {
	song := q.Current()
	if song == nil {
		return fmt.Errorf("%w: queue %s is drained", model.ErrNoSong, q.ResolveGuildID())
	}
	guildID := q.ResolveGuildID()

	// Stream links of most sources expire; refresh right before playback.
	if s, ok := e.plugins.StreamerFor(song); ok {
		streamURL, err := s.StreamURL(ctx, song)
		if err != nil {
			e.emitQueueError(q, fmt.Errorf("stream url for %q: %w", song.Name, err))
			return e.advance(ctx, q, true, song)
		}
		song.StreamURL = streamURL
	}
	if song.StreamURL == "" {
		e.emitQueueError(q, fmt.Errorf("%w: song %q has no stream url", model.ErrInvalidSongInfo, song.Name))
		return e.advance(ctx, q, true, song)
	}

	sess, err := e.sessionFor(guildID, q)
	if err != nil {
		return err
	}
	params := voice.PlayParams{
		StreamType: e.opts.StreamType,
		Volume:     q.Volume(),
		FilterArgs: q.Filters().Values(),
		Seek:       q.BeginTime(),
	}
	if err := sess.Play(ctx, song, params); err != nil {
		return fmt.Errorf("start playback in guild %s: %w", guildID, err)
	}
	q.SetPlaying(true)
	q.Resume()

	if announce {
		e.emitPlaySong(q, song)
	}
	e.queues.Persist(ctx, q)
	return nil
}

// emitPlaySong emits playSong unless EmitNewSongOnly suppresses a repeat of
// the song that played last in this guild.
func (e *Engine) emitPlaySong(q *queue.Queue, song *model.Song) {
	guildID := q.ResolveGuildID()

	e.mu.Lock()
	last := e.lastPlayed[guildID]
	e.lastPlayed[guildID] = song.ID
	e.mu.Unlock()

	if *e.opts.EmitNewSongOnly && song.ID != "" && song.ID == last {
		return
	}
	e.bus.Emit(event.PlaySong, guildID, event.PlaySongData{Queue: q.Snapshot(), Song: song})
}

// sessionFor returns the guild's voice session, creating a headless one on
// the queue's channel when no frontend has joined yet.
func (e *Engine) sessionFor(guildID snowflake.ID, q *queue.Queue) (*voice.Session, error) {
	if s, ok := e.voices.Get(guildID); ok {
		return s, nil
	}
	return e.voices.Join(guildID, q.VoiceChannelID(), voice.NopConnection{})
}

// emitQueueError reports a swallowed playback error on the bus.
func (e *Engine) emitQueueError(q *queue.Queue, err error) {
	logger.Warn("播放错误",
		logger.String("guildID", q.ResolveGuildID().String()),
		logger.ErrorField(err))
	e.bus.Emit(event.Error, q.ResolveGuildID(), event.ErrorData{
		Err:           err,
		Message:       err.Error(),
		TextChannelID: q.TextChannelID(),
		Queue:         q.Snapshot(),
	})
}

// isURL reports whether input parses as an absolute http(s) URL.
func isURL(input string) bool {
	if !strings.HasPrefix(input, "http://") && !strings.HasPrefix(input, "https://") {
		return false
	}
	u, err := url.Parse(input)
	return err == nil && u.Host != ""
}
