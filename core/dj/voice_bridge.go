package dj

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"Bt1QDJ/core/event"
	"Bt1QDJ/core/queue"
	"Bt1QDJ/core/voice"
	"Bt1QDJ/logger"
	"Bt1QDJ/model"
)

// voiceEventTimeout bounds the work one voice event may trigger: stream url
// refresh, related-song lookup, snapshot writes.
const voiceEventTimeout = 30 * time.Second

// watchVoice is the voice bridge: it turns connection lifecycle reports into
// queue progress. One goroutine per engine, started by New.
func (e *Engine) watchVoice() {
	defer e.wg.Done()
	for {
		select {
		case <-e.done:
			return
		case <-e.voices.Done():
			return
		case ev := <-e.voices.Events():
			e.handleVoiceEvent(ev)
		}
	}
}

func (e *Engine) handleVoiceEvent(ev voice.Event) {
	ctx, cancel := context.WithTimeout(context.Background(), voiceEventTimeout)
	defer cancel()

	switch ev.Type {
	case voice.EventFinish:
		e.onSongFinish(ctx, ev.GuildID)
	case voice.EventError:
		e.onStreamError(ctx, ev)
	case voice.EventDisconnect:
		e.onDisconnect(ctx, ev.GuildID)
	default:
		logger.Warn("未知语音事件",
			logger.String("type", string(ev.Type)),
			logger.String("guildID", ev.GuildID.String()))
	}
}

// onSongFinish advances the queue after a song played to its natural end.
func (e *Engine) onSongFinish(ctx context.Context, guildID snowflake.ID) {
	defer e.lockGuild(guildID)()

	q, err := e.queues.Get(guildID)
	if err != nil {
		return // queue already destroyed, stale report
	}
	cur := q.Current()
	if cur == nil || q.Stopped() {
		return
	}
	e.bus.Emit(event.FinishSong, guildID, event.FinishSongData{Queue: q.Snapshot(), Song: cur})
	if err := e.advance(ctx, q, false, cur); err != nil {
		e.emitQueueError(q, err)
	}
}

// onStreamError reports the failure and drops the broken song. No finishSong
// fires: the song never finished.
func (e *Engine) onStreamError(ctx context.Context, ev voice.Event) {
	defer e.lockGuild(ev.GuildID)()

	cause := ev.Err
	if cause == nil {
		cause = errors.New("unspecified stream failure")
	}
	q, err := e.queues.Get(ev.GuildID)
	if err != nil {
		e.bus.EmitError(ev.GuildID, 0, cause)
		return
	}
	e.emitQueueError(q, cause)

	cur := q.Current()
	if cur == nil || q.Stopped() {
		return
	}
	if err := e.advance(ctx, q, true, cur); err != nil {
		e.emitQueueError(q, err)
	}
}

// onDisconnect tears the guild down: the voice channel is gone, so the queue
// dies with it. disconnect fires before the queue's final deleteQueue.
func (e *Engine) onDisconnect(ctx context.Context, guildID snowflake.ID) {
	defer e.lockGuild(guildID)()

	if err := e.voices.Leave(guildID); err != nil && !errors.Is(err, model.ErrNoVoiceSession) {
		logger.Warn("关闭语音会话失败",
			logger.String("guildID", guildID.String()),
			logger.ErrorField(err))
	}
	q, err := e.queues.Get(guildID)
	if err != nil {
		return
	}
	e.bus.Emit(event.Disconnect, guildID, event.QueueData{Queue: q.Snapshot()})
	if err := e.queues.Delete(ctx, guildID); err != nil {
		logger.Warn("销毁队列失败",
			logger.String("guildID", guildID.String()),
			logger.ErrorField(err))
	}
	e.forgetGuild(guildID)
}

// advance moves q past the current song and starts whatever comes next: the
// next queued song, an autoplay pick, or the end-of-queue path. finished
// seeds the related-song lookup. Callers hold the guild lock.
//
// skip suppresses RepeatModeSong so a skipped song never replays; the
// RepeatModeQueue rotation is kept.
func (e *Engine) advance(ctx context.Context, q *queue.Queue, skip bool, finished *model.Song) error {
	guildID := q.ResolveGuildID()

	if next := q.Advance(skip); next != nil {
		q.SetBeginTime(0)
		return e.startPlaying(ctx, q, true)
	}

	q.SetPlaying(false)
	q.SetBeginTime(0)

	if q.Autoplay() && finished != nil {
		switch err := e.playRelated(ctx, q, finished); {
		case err == nil:
			return nil
		case errors.Is(err, model.ErrNoRelated):
			e.bus.Emit(event.NoRelated, guildID, event.QueueData{Queue: q.Snapshot()})
		default:
			e.emitQueueError(q, err)
		}
	} else {
		e.bus.Emit(event.Finish, guildID, event.QueueData{Queue: q.Snapshot()})
	}

	e.queues.Persist(ctx, q)
	if *e.opts.LeaveOnFinish {
		if err := e.voices.Leave(guildID); err != nil && !errors.Is(err, model.ErrNoVoiceSession) {
			logger.Warn("离开语音频道失败",
				logger.String("guildID", guildID.String()),
				logger.ErrorField(err))
		}
	}
	return nil
}

// playRelated queues the first unplayed related song and starts it. The
// finished song seeds the lookup; history entries and the seed itself never
// repeat.
func (e *Engine) playRelated(ctx context.Context, q *queue.Queue, seed *model.Song) error {
	guildID := q.ResolveGuildID()

	finder, ok := e.plugins.RelatedFinderFor(seed)
	if !ok {
		return fmt.Errorf("%w: no plugin finds related songs", model.ErrNoRelated)
	}
	related, err := finder.Related(ctx, seed)
	if err != nil {
		return fmt.Errorf("related songs for %q: %w", seed.Name, err)
	}

	played := map[string]bool{seed.ID: true}
	for _, s := range q.PreviousSongs() {
		played[s.ID] = true
	}

	for i := range related {
		r := &related[i]
		if r.ID == "" || played[r.ID] {
			continue
		}
		song := r.Song()
		if song.AgeRestricted && !e.nsfwAllowed(ctx, guildID) {
			continue
		}
		song.Member = seed.Member
		song.Metadata = seed.Metadata
		q.Add([]*model.Song{song}, 0)
		e.bus.Emit(event.AddSong, guildID, event.AddSongData{Queue: q.Snapshot(), Song: song})
		return e.startPlaying(ctx, q, true)
	}
	return fmt.Errorf("%w: nothing unplayed related to %q", model.ErrNoRelated, seed.Name)
}

// forgetGuild drops per-guild bookkeeping after its queue is destroyed.
func (e *Engine) forgetGuild(guildID snowflake.ID) {
	e.mu.Lock()
	delete(e.lastPlayed, guildID)
	e.mu.Unlock()
}
