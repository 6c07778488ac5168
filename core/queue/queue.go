// Package queue implements per-guild song queues and their lifecycle.
// Invariant everywhere: songs[0] is the playing song, additions land behind
// it, and every mutation happens under the queue lock.
package queue

import (
	"math/rand"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"Bt1QDJ/model"
)

// Queue is one guild's playback state.
type Queue struct {
	guildID snowflake.ID

	mu             sync.RWMutex
	songs          []*model.Song
	previous       []*model.Song
	playing        bool
	paused         bool
	stopped        bool
	volume         int
	repeatMode     model.RepeatMode
	autoplay       bool
	filters        model.FilterList
	beginTime      float64
	textChannelID  snowflake.ID
	voiceChannelID snowflake.ID
	createdAt      time.Time
	savePrevious   bool
}

func newQueue(guildID snowflake.ID, savePrevious bool) *Queue {
	return &Queue{
		guildID:      guildID,
		volume:       model.DefaultVolume,
		createdAt:    time.Now(),
		savePrevious: savePrevious,
	}
}

func (q *Queue) ResolveGuildID() snowflake.ID {
	if q == nil {
		return 0
	}
	return q.guildID
}

// Add inserts songs at a 1-based position; position <= 0 or past the tail
// appends. Position 0 (the playing slot) is not addressable.
func (q *Queue) Add(songs []*model.Song, position int) {
	if len(songs) == 0 {
		return
	}
	q.mu.Lock()
	defer q.mu.Unlock()

	if position <= 0 || position >= len(q.songs) {
		q.songs = append(q.songs, songs...)
		return
	}
	rest := append([]*model.Song{}, q.songs[position:]...)
	q.songs = append(q.songs[:position], songs...)
	q.songs = append(q.songs, rest...)
}

// Current returns the playing song, nil when the queue is drained.
func (q *Queue) Current() *model.Song {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if len(q.songs) == 0 {
		return nil
	}
	return q.songs[0]
}

// Songs returns a copy of the pending list including the current song.
func (q *Queue) Songs() []*model.Song {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]*model.Song{}, q.songs...)
}

// PreviousSongs returns a copy of the played history, oldest first.
func (q *Queue) PreviousSongs() []*model.Song {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return append([]*model.Song{}, q.previous...)
}

func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.songs)
}

// Advance moves the queue past the current song and returns what plays next
// (nil when the queue ran out).
//
// Natural end (skip=false): RepeatModeSong replays the current song,
// RepeatModeQueue rotates it to the tail, RepeatModeDisabled drops it into
// the history. skip=true overrides RepeatModeSong (a skipped song never
// replays) but keeps the RepeatModeQueue rotation.
func (q *Queue) Advance(skip bool) *model.Song {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.songs) == 0 {
		return nil
	}
	cur := q.songs[0]

	switch {
	case q.repeatMode == model.RepeatModeSong && !skip:
		return cur
	case q.repeatMode == model.RepeatModeQueue:
		q.songs = append(q.songs[1:], cur)
	default:
		q.songs = q.songs[1:]
		q.pushPreviousLocked(cur)
	}

	if len(q.songs) == 0 {
		return nil
	}
	return q.songs[0]
}

func (q *Queue) pushPreviousLocked(s *model.Song) {
	if !q.savePrevious {
		return
	}
	q.previous = append(q.previous, s)
}

// Previous pulls the most recent history entry back to the front. The
// current song stays in the queue right behind it.
func (q *Queue) Previous() (*model.Song, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.savePrevious || len(q.previous) == 0 {
		return nil, model.ErrNoPrevious
	}
	last := q.previous[len(q.previous)-1]
	q.previous = q.previous[:len(q.previous)-1]
	q.songs = append([]*model.Song{last}, q.songs...)
	return last, nil
}

// Jump prepares playback of the song at a relative position and returns it.
// n >= 1 targets the pending list: everything between the current song and
// the target moves to history. The target ends up at index 1 so a following
// skip starts it. n <= -1 rewinds that many history entries; the target ends
// up at index 0. n == 0 is the current song and out of range.
func (q *Queue) Jump(n int) (*model.Song, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	switch {
	case n == 0:
		return nil, model.ErrOutOfRange
	case n > 0:
		if n >= len(q.songs) {
			return nil, model.ErrOutOfRange
		}
		for _, s := range q.songs[1:n] {
			q.pushPreviousLocked(s)
		}
		q.songs = append(q.songs[:1], q.songs[n:]...)
		return q.songs[1], nil
	default:
		back := -n
		if !q.savePrevious || back > len(q.previous) {
			return nil, model.ErrOutOfRange
		}
		cut := len(q.previous) - back
		moved := append([]*model.Song{}, q.previous[cut:]...)
		q.previous = q.previous[:cut]
		q.songs = append(moved, q.songs...)
		return q.songs[0], nil
	}
}

// Remove deletes the pending song at a 1-based position. The playing slot
// cannot be removed; use a skip for that.
func (q *Queue) Remove(position int) (*model.Song, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if position < 1 || position >= len(q.songs) {
		return nil, model.ErrOutOfRange
	}
	s := q.songs[position]
	q.songs = append(q.songs[:position], q.songs[position+1:]...)
	return s, nil
}

// Shuffle randomizes the pending songs, leaving the current one in place.
func (q *Queue) Shuffle() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.songs) < 3 {
		return
	}
	rest := q.songs[1:]
	rand.Shuffle(len(rest), func(i, j int) {
		rest[i], rest[j] = rest[j], rest[i]
	})
}

// Stop clears the pending list and marks the queue stopped. History is kept
// so Previous still works after a stop.
func (q *Queue) Stop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.songs = nil
	q.playing = false
	q.paused = false
	q.stopped = true
	q.beginTime = 0
}

// Stopped reports whether Stop ended this queue.
func (q *Queue) Stopped() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.stopped
}

// SetPlaying flips the active-playback flag; it resets the stopped state
// when playback starts again.
func (q *Queue) SetPlaying(v bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.playing = v
	if v {
		q.stopped = false
	}
}

func (q *Queue) Playing() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.playing
}

// Pause marks playback paused; returns false if it already was.
func (q *Queue) Pause() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.paused {
		return false
	}
	q.paused = true
	return true
}

// Resume clears the paused flag; returns false if it was not paused.
func (q *Queue) Resume() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.paused {
		return false
	}
	q.paused = false
	return true
}

func (q *Queue) Paused() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.paused
}

// SetVolume clamps to 0..200 percent and returns the applied value.
func (q *Queue) SetVolume(percent int) int {
	q.mu.Lock()
	defer q.mu.Unlock()
	if percent < 0 {
		percent = 0
	}
	if percent > 200 {
		percent = 200
	}
	q.volume = percent
	return percent
}

func (q *Queue) Volume() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.volume
}

func (q *Queue) SetRepeatMode(m model.RepeatMode) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.repeatMode = m
}

func (q *Queue) RepeatMode() model.RepeatMode {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.repeatMode
}

// ToggleAutoplay flips autoplay and returns the new state.
func (q *Queue) ToggleAutoplay() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.autoplay = !q.autoplay
	return q.autoplay
}

func (q *Queue) Autoplay() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.autoplay
}

// SetFilters replaces the filter chain.
func (q *Queue) SetFilters(list model.FilterList) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.filters = list.Clone()
}

// AddFilter appends f, replacing an entry with the same name in place.
func (q *Queue) AddFilter(f model.Filter) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.filters {
		if q.filters[i].Name == f.Name {
			q.filters[i] = f
			return
		}
	}
	q.filters = append(q.filters, f)
}

// RemoveFilter drops the named filter; false when it was not applied.
func (q *Queue) RemoveFilter(name string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i := range q.filters {
		if q.filters[i].Name == name {
			q.filters = append(q.filters[:i], q.filters[i+1:]...)
			return true
		}
	}
	return false
}

func (q *Queue) Filters() model.FilterList {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.filters.Clone()
}

// SetChannels records where playback and its chatter happen. Zero values
// leave the current binding untouched.
func (q *Queue) SetChannels(voiceChannelID, textChannelID snowflake.ID) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if voiceChannelID != 0 {
		q.voiceChannelID = voiceChannelID
	}
	if textChannelID != 0 {
		q.textChannelID = textChannelID
	}
}

func (q *Queue) TextChannelID() snowflake.ID {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.textChannelID
}

func (q *Queue) VoiceChannelID() snowflake.ID {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.voiceChannelID
}

// SetBeginTime records the playback offset for the current song, used for
// seek-restarts and progress displays.
func (q *Queue) SetBeginTime(seconds float64) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if seconds < 0 {
		seconds = 0
	}
	q.beginTime = seconds
}

func (q *Queue) BeginTime() float64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.beginTime
}

// Duration is the remaining length in seconds, current song included.
func (q *Queue) Duration() float64 {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var total float64
	for _, s := range q.songs {
		total += s.Duration
	}
	return total
}

// Snapshot copies the queue state for events, the cache and the wire. Song
// pointers are shared: treat snapshot contents as read-only.
func (q *Queue) Snapshot() *model.QueueSnapshot {
	q.mu.RLock()
	defer q.mu.RUnlock()

	return &model.QueueSnapshot{
		GuildID:        q.guildID,
		VoiceChannelID: q.voiceChannelID,
		TextChannelID:  q.textChannelID,
		Songs:          append([]*model.Song{}, q.songs...),
		PreviousSongs:  append([]*model.Song{}, q.previous...),
		Playing:        q.playing,
		Paused:         q.paused,
		Volume:         q.volume,
		RepeatMode:     q.repeatMode,
		Autoplay:       q.autoplay,
		Filters:        q.filters.Clone(),
		BeginTime:      q.beginTime,
		CreatedAt:      q.createdAt,
	}
}

// restore rehydrates queue state from a snapshot; only used at boot before
// the queue is visible to anyone else.
func (q *Queue) restore(snap *model.QueueSnapshot) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.songs = append([]*model.Song{}, snap.Songs...)
	q.previous = append([]*model.Song{}, snap.PreviousSongs...)
	q.volume = snap.Volume
	q.repeatMode = snap.RepeatMode
	q.autoplay = snap.Autoplay
	q.filters = snap.Filters.Clone()
	q.voiceChannelID = snap.VoiceChannelID
	q.textChannelID = snap.TextChannelID
	q.beginTime = snap.BeginTime
	if !snap.CreatedAt.IsZero() {
		q.createdAt = snap.CreatedAt
	}
	// 重启后恢复的队列一律处于暂停态，等前端恢复播放
	q.playing = false
	q.paused = true
}
