package dj

import (
	"context"
	"errors"
	"fmt"

	"github.com/disgoorg/snowflake/v2"

	"Bt1QDJ/core/event"
	"Bt1QDJ/core/queue"
	"Bt1QDJ/core/voice"
	"Bt1QDJ/logger"
	"Bt1QDJ/model"
)

// GetQueue snapshots the guild queue for display or the wire.
func (e *Engine) GetQueue(guild any) (*model.QueueSnapshot, error) {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return nil, err
	}
	q, err := e.queues.Get(guildID)
	if err != nil {
		return nil, err
	}
	return q.Snapshot(), nil
}

// AllQueues snapshots every live queue, order unspecified.
func (e *Engine) AllQueues() []*model.QueueSnapshot {
	queues := e.queues.All()
	out := make([]*model.QueueSnapshot, 0, len(queues))
	for _, q := range queues {
		out = append(out, q.Snapshot())
	}
	return out
}

// Join binds the node to a voice channel. A nil conn registers a headless
// session driven over the API. When the node already sits in another channel
// and JoinNewVoiceChannel is off, it stays put.
func (e *Engine) Join(guild any, channelID snowflake.ID, conn voice.Connection) error {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return err
	}
	if s, ok := e.voices.Get(guildID); ok && s.ChannelID() != channelID && !*e.opts.JoinNewVoiceChannel {
		logger.Info("拒绝切换语音频道",
			logger.String("guildID", guildID.String()),
			logger.String("channelID", channelID.String()))
		return nil
	}
	if _, err := e.voices.Join(guildID, channelID, conn); err != nil {
		return err
	}
	if q, qerr := e.queues.Get(guildID); qerr == nil {
		q.SetChannels(channelID, 0)
	}
	return nil
}

// Leave closes the guild's voice session. The queue survives; Stop is the
// call that destroys it.
func (e *Engine) Leave(guild any) error {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return err
	}
	return e.voices.Leave(guildID)
}

// DispatchVoice feeds a frontend-reported voice event (finish, error,
// disconnect) into the engine. The HTTP server exposes it to remote players.
func (e *Engine) DispatchVoice(ev voice.Event) {
	e.voices.Dispatch(ev)
}

// Skip ends the playing song and returns what plays next. It needs a next
// song or autoplay; otherwise the queue would just fall silent, which is
// Stop's job.
func (e *Engine) Skip(ctx context.Context, guild any) (*model.Song, error) {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return nil, err
	}
	q, err := e.queues.Get(guildID)
	if err != nil {
		return nil, err
	}

	defer e.lockGuild(guildID)()
	if q.Len() <= 1 && !q.Autoplay() {
		return nil, fmt.Errorf("%w: nothing up next in guild %s", model.ErrNoSong, guildID)
	}
	return e.skipCurrent(ctx, q)
}

// skipCurrent ends the current song: finishSong, stream stop, advance with
// song-repeat suppressed. Callers hold the guild lock.
func (e *Engine) skipCurrent(ctx context.Context, q *queue.Queue) (*model.Song, error) {
	guildID := q.ResolveGuildID()
	cur := q.Current()
	if cur == nil {
		return nil, fmt.Errorf("%w: queue %s is drained", model.ErrNoSong, guildID)
	}
	e.bus.Emit(event.FinishSong, guildID, event.FinishSongData{Queue: q.Snapshot(), Song: cur})
	e.stopStream(guildID)
	if err := e.advance(ctx, q, true, cur); err != nil {
		return nil, err
	}
	return q.Current(), nil
}

// stopStream halts transmission without touching queue state. Connections
// never report engine-initiated stops back as finish.
func (e *Engine) stopStream(guildID snowflake.ID) {
	s, ok := e.voices.Get(guildID)
	if !ok {
		return
	}
	if err := s.Stop(); err != nil && !errors.Is(err, model.ErrNoVoiceSession) {
		logger.Warn("停止语音流失败",
			logger.String("guildID", guildID.String()),
			logger.ErrorField(err))
	}
}

// Previous rewinds to the most recently played song and returns it. The
// interrupted song stays queued right behind it.
func (e *Engine) Previous(ctx context.Context, guild any) (*model.Song, error) {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return nil, err
	}
	q, err := e.queues.Get(guildID)
	if err != nil {
		return nil, err
	}

	defer e.lockGuild(guildID)()
	cur := q.Current()
	prev, err := q.Previous()
	if err != nil {
		return nil, err
	}
	if cur != nil {
		e.bus.Emit(event.FinishSong, guildID, event.FinishSongData{Queue: q.Snapshot(), Song: cur})
	}
	e.stopStream(guildID)
	q.SetBeginTime(0)
	if err := e.startPlaying(ctx, q, true); err != nil {
		return nil, err
	}
	return prev, nil
}

// Jump moves playback to a relative queue position and returns the target:
// n >= 1 skips ahead that many pending songs, n <= -1 rewinds into the play
// history. n == 0 is the playing song and out of range.
func (e *Engine) Jump(ctx context.Context, guild any, n int) (*model.Song, error) {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return nil, err
	}
	q, err := e.queues.Get(guildID)
	if err != nil {
		return nil, err
	}

	defer e.lockGuild(guildID)()
	cur := q.Current()
	target, err := q.Jump(n)
	if err != nil {
		return nil, err
	}
	if cur != nil {
		e.bus.Emit(event.FinishSong, guildID, event.FinishSongData{Queue: q.Snapshot(), Song: cur})
	}
	e.stopStream(guildID)

	if n > 0 {
		// target sits at index 1; advancing starts it
		if err := e.advance(ctx, q, true, cur); err != nil {
			return nil, err
		}
		return target, nil
	}
	// rewind already placed the target at the head
	q.SetBeginTime(0)
	if err := e.startPlaying(ctx, q, true); err != nil {
		return nil, err
	}
	return target, nil
}

// Stop ends playback and destroys the queue; deleteQueue is its last event.
func (e *Engine) Stop(ctx context.Context, guild any) error {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return err
	}
	q, err := e.queues.Get(guildID)
	if err != nil {
		return err
	}

	defer e.lockGuild(guildID)()
	q.Stop()
	e.stopStream(guildID)
	if *e.opts.LeaveOnStop {
		if err := e.voices.Leave(guildID); err != nil && !errors.Is(err, model.ErrNoVoiceSession) {
			logger.Warn("离开语音频道失败",
				logger.String("guildID", guildID.String()),
				logger.ErrorField(err))
		}
	}
	if err := e.queues.Delete(ctx, guildID); err != nil {
		return err
	}
	e.forgetGuild(guildID)
	return nil
}

// Pause suspends playback. Pausing a paused queue is a no-op.
func (e *Engine) Pause(ctx context.Context, guild any) error {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return err
	}
	q, err := e.queues.Get(guildID)
	if err != nil {
		return err
	}

	defer e.lockGuild(guildID)()
	if !q.Pause() {
		return nil
	}
	if s, ok := e.voices.Get(guildID); ok {
		if err := s.Pause(); err != nil && !errors.Is(err, model.ErrNoVoiceSession) {
			logger.Warn("暂停语音流失败",
				logger.String("guildID", guildID.String()),
				logger.ErrorField(err))
		}
	}
	e.queues.Persist(ctx, q)
	return nil
}

// Resume continues playback. A queue that has a current song but no running
// stream (typically one restored from a snapshot) is started from its
// recorded position instead.
func (e *Engine) Resume(ctx context.Context, guild any) error {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return err
	}
	q, err := e.queues.Get(guildID)
	if err != nil {
		return err
	}

	defer e.lockGuild(guildID)()
	changed := q.Resume()
	if !q.Playing() && q.Current() != nil {
		return e.startPlaying(ctx, q, true)
	}
	if !changed {
		return nil
	}
	if s, ok := e.voices.Get(guildID); ok {
		if err := s.Resume(); err != nil && !errors.Is(err, model.ErrNoVoiceSession) {
			logger.Warn("恢复语音流失败",
				logger.String("guildID", guildID.String()),
				logger.ErrorField(err))
		}
	}
	e.queues.Persist(ctx, q)
	return nil
}

// SetVolume clamps percent to 0..200 and returns the applied value.
func (e *Engine) SetVolume(ctx context.Context, guild any, percent int) (int, error) {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return 0, err
	}
	q, err := e.queues.Get(guildID)
	if err != nil {
		return 0, err
	}

	defer e.lockGuild(guildID)()
	applied := q.SetVolume(percent)
	if s, ok := e.voices.Get(guildID); ok {
		if err := s.SetVolume(applied); err != nil && !errors.Is(err, model.ErrNoVoiceSession) {
			logger.Warn("设置音量失败",
				logger.String("guildID", guildID.String()),
				logger.ErrorField(err))
		}
	}
	e.queues.Persist(ctx, q)
	return applied, nil
}

// Seek restarts the current song at an offset in seconds. It emits no
// events: the same song keeps playing as far as listeners are concerned.
func (e *Engine) Seek(ctx context.Context, guild any, seconds float64) error {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return err
	}
	if seconds < 0 {
		return fmt.Errorf("%w: seek to %.2fs", model.ErrInvalidOption, seconds)
	}
	q, err := e.queues.Get(guildID)
	if err != nil {
		return err
	}

	defer e.lockGuild(guildID)()
	if q.Current() == nil {
		return fmt.Errorf("%w: nothing playing in guild %s", model.ErrNoSong, guildID)
	}
	q.SetBeginTime(seconds)
	return e.startPlaying(ctx, q, false)
}

// Shuffle randomizes the pending songs, keeping the playing one in place.
func (e *Engine) Shuffle(ctx context.Context, guild any) (*model.QueueSnapshot, error) {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return nil, err
	}
	q, err := e.queues.Get(guildID)
	if err != nil {
		return nil, err
	}

	defer e.lockGuild(guildID)()
	q.Shuffle()
	e.queues.Persist(ctx, q)
	return q.Snapshot(), nil
}

// Remove drops the pending song at a 1-based position and returns it.
func (e *Engine) Remove(ctx context.Context, guild any, position int) (*model.Song, error) {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return nil, err
	}
	q, err := e.queues.Get(guildID)
	if err != nil {
		return nil, err
	}

	defer e.lockGuild(guildID)()
	s, err := q.Remove(position)
	if err != nil {
		return nil, err
	}
	e.queues.Persist(ctx, q)
	return s, nil
}

// SetRepeatMode sets the repeat behavior for the guild queue.
func (e *Engine) SetRepeatMode(ctx context.Context, guild any, mode model.RepeatMode) error {
	if !mode.Valid() {
		return fmt.Errorf("%w: repeat mode %d", model.ErrInvalidOption, int(mode))
	}
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return err
	}
	q, err := e.queues.Get(guildID)
	if err != nil {
		return err
	}

	defer e.lockGuild(guildID)()
	q.SetRepeatMode(mode)
	e.queues.Persist(ctx, q)
	return nil
}

// CycleRepeatMode steps disabled -> song -> queue -> disabled and returns
// the new mode.
func (e *Engine) CycleRepeatMode(ctx context.Context, guild any) (model.RepeatMode, error) {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return model.RepeatModeDisabled, err
	}
	q, err := e.queues.Get(guildID)
	if err != nil {
		return model.RepeatModeDisabled, err
	}

	defer e.lockGuild(guildID)()
	var next model.RepeatMode
	switch q.RepeatMode() {
	case model.RepeatModeDisabled:
		next = model.RepeatModeSong
	case model.RepeatModeSong:
		next = model.RepeatModeQueue
	default:
		next = model.RepeatModeDisabled
	}
	q.SetRepeatMode(next)
	e.queues.Persist(ctx, q)
	return next, nil
}

// ToggleAutoplay flips autoplay and returns the new state.
func (e *Engine) ToggleAutoplay(ctx context.Context, guild any) (bool, error) {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return false, err
	}
	q, err := e.queues.Get(guildID)
	if err != nil {
		return false, err
	}

	defer e.lockGuild(guildID)()
	on := q.ToggleAutoplay()
	e.queues.Persist(ctx, q)
	return on, nil
}

// ApplyFilters replaces the queue's filter chain with the given preset names
// or inline Filter values, then restarts the stream so the change is audible.
func (e *Engine) ApplyFilters(ctx context.Context, guild any, inputs ...any) (model.FilterList, error) {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return nil, err
	}
	q, err := e.queues.Get(guildID)
	if err != nil {
		return nil, err
	}
	list, err := e.filters.ResolveAll(inputs...)
	if err != nil {
		return nil, err
	}

	defer e.lockGuild(guildID)()
	q.SetFilters(list)
	if err := e.restartStream(ctx, q); err != nil {
		return nil, err
	}
	e.queues.Persist(ctx, q)
	return q.Filters(), nil
}

// AddFilter applies one more filter on top of the current chain.
func (e *Engine) AddFilter(ctx context.Context, guild any, input any) (model.FilterList, error) {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return nil, err
	}
	q, err := e.queues.Get(guildID)
	if err != nil {
		return nil, err
	}
	f, err := e.filters.Resolve(input)
	if err != nil {
		return nil, err
	}

	defer e.lockGuild(guildID)()
	q.AddFilter(f)
	if err := e.restartStream(ctx, q); err != nil {
		return nil, err
	}
	e.queues.Persist(ctx, q)
	return q.Filters(), nil
}

// RemoveFilter drops the named filter from the chain.
func (e *Engine) RemoveFilter(ctx context.Context, guild any, name string) (model.FilterList, error) {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return nil, err
	}
	q, err := e.queues.Get(guildID)
	if err != nil {
		return nil, err
	}

	defer e.lockGuild(guildID)()
	if !q.RemoveFilter(name) {
		return nil, fmt.Errorf("%w: %q is not applied", model.ErrInvalidFilter, name)
	}
	if err := e.restartStream(ctx, q); err != nil {
		return nil, err
	}
	e.queues.Persist(ctx, q)
	return q.Filters(), nil
}

// restartStream re-pushes the current song so new filter or volume state
// takes effect. Queues with nothing live to restart skip it quietly.
func (e *Engine) restartStream(ctx context.Context, q *queue.Queue) error {
	if q.Current() == nil || !q.Playing() {
		return nil
	}
	return e.startPlaying(ctx, q, false)
}

// VoiceStateUpdate records the listener count reported by the frontend for
// the node's channel. Zero listeners arm the empty-channel cooldown when
// LeaveOnEmpty is set; anyone coming back disarms it.
func (e *Engine) VoiceStateUpdate(ctx context.Context, guild any, listeners int) error {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return err
	}
	s, ok := e.voices.Get(guildID)
	if !ok {
		return model.ErrNoVoiceSession
	}

	if n := s.SetListeners(listeners); n > 0 {
		e.queues.CancelEmpty(guildID)
		return nil
	}
	if !*e.opts.LeaveOnEmpty || !e.queues.Has(guildID) {
		return nil
	}
	e.queues.ScheduleEmpty(guildID, e.emptyCooldownFor(ctx, guildID), func() {
		e.onEmptyExpired(guildID)
	})
	return nil
}

// onEmptyExpired runs when the empty-channel cooldown elapses: verify the
// channel is still empty, then announce, leave and drop the queue.
func (e *Engine) onEmptyExpired(guildID snowflake.ID) {
	defer e.lockGuild(guildID)()

	if s, ok := e.voices.Get(guildID); ok && s.Listeners() > 0 {
		return // someone came back between expiry and now
	}
	q, err := e.queues.Get(guildID)
	if err != nil {
		return
	}
	e.bus.Emit(event.Empty, guildID, event.QueueData{Queue: q.Snapshot()})
	e.stopStream(guildID)
	if err := e.voices.Leave(guildID); err != nil && !errors.Is(err, model.ErrNoVoiceSession) {
		logger.Warn("离开语音频道失败",
			logger.String("guildID", guildID.String()),
			logger.ErrorField(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), closeTimeout)
	defer cancel()
	if err := e.queues.Delete(ctx, guildID); err != nil {
		logger.Warn("销毁队列失败",
			logger.String("guildID", guildID.String()),
			logger.ErrorField(err))
	}
	e.forgetGuild(guildID)
}

// Search queries the first searching plugin directly, outside any
// interactive flow.
func (e *Engine) Search(ctx context.Context, query string, typ model.SearchResultType, limit int) ([]model.SearchResult, error) {
	searcher, ok := e.plugins.Searcher()
	if !ok {
		return nil, fmt.Errorf("%w: no plugin can search", model.ErrNoPlugin)
	}
	if typ == "" {
		typ = model.SearchResultVideo
	}
	if limit <= 0 {
		limit = 1
	}
	if limit > model.MaxSearchSongs {
		limit = model.MaxSearchSongs
	}
	results, err := searcher.Search(ctx, query, typ, limit)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	if len(results) == 0 {
		return nil, fmt.Errorf("%w: %q", model.ErrNoResult, query)
	}
	return results, nil
}

// AnswerSearch feeds a user's reply into their pending search flow and, on a
// valid pick, plays it with the options the original request carried.
func (e *Engine) AnswerSearch(ctx context.Context, guild any, userID snowflake.ID, answer string) (*model.SearchResult, error) {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return nil, err
	}
	sess, chosen, err := e.searches.Answer(guildID, userID, answer)
	if err != nil {
		return nil, err
	}
	if err := e.playURL(ctx, guildID, chosen.URL, sess.Opts); err != nil {
		return nil, err
	}
	return chosen, nil
}

// CancelSearch ends the user's pending search flow, if any.
func (e *Engine) CancelSearch(guild any, userID snowflake.ID) error {
	guildID, err := model.ResolveGuildID(guild)
	if err != nil {
		return err
	}
	return e.searches.Cancel(guildID, userID)
}
