package model

import (
	"fmt"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// Engine defaults. All defaulting happens in Options.ApplyDefaults; nothing
// else in the codebase invents fallback values for these knobs.
const (
	DefaultEmptyCooldown  = 60 * time.Second
	DefaultSearchCooldown = 60 * time.Second
	DefaultVolume         = 50

	// MaxSearchSongs caps how many interactive search choices are offered.
	MaxSearchSongs = 20
)

// Options configures an engine instance. Boolean knobs whose default is true
// are pointers so that an explicit false survives defaulting; leave a field
// nil to take the documented default.
type Options struct {
	// LeaveOnEmpty schedules leaving the voice channel once it has no
	// listeners left, after EmptyCooldown. Default true.
	LeaveOnEmpty *bool
	// LeaveOnFinish leaves the voice channel when the queue runs out.
	// Default false.
	LeaveOnFinish *bool
	// LeaveOnStop leaves the voice channel when playback is stopped
	// explicitly. Default true.
	LeaveOnStop *bool
	// EmptyCooldown is how long an empty channel is tolerated before
	// LeaveOnEmpty kicks in. Zero selects the 60s default.
	EmptyCooldown time.Duration
	// SavePreviousSongs keeps finished songs so Previous can rewind.
	// Default true.
	SavePreviousSongs *bool
	// SearchSongs above 1 turns free-text play input into an interactive
	// search offering that many choices. 0 (default) and 1 pick the first
	// result directly.
	SearchSongs int
	// SearchCooldown throttles interactive searches per user. Zero selects
	// the 60s default.
	SearchCooldown time.Duration
	// YouTubeCookie and YouTubeIdentityToken are passed to extractor plugins
	// that talk to YouTube on the node's behalf.
	YouTubeCookie        string
	YouTubeIdentityToken string
	// CustomFilters are merged over the built-in ffmpeg presets; a custom
	// entry shadows a built-in of the same name.
	CustomFilters map[string]string
	// NSFW allows age-restricted songs regardless of channel flags.
	// Default false.
	NSFW *bool
	// EmitNewSongOnly suppresses the play event on RepeatModeSong loops and
	// on Previous/Jump back to the same song. Default false.
	EmitNewSongOnly *bool
	// EmitAddSongWhenCreatingQueue also emits the add-song event for the song
	// that creates a queue. Default true.
	EmitAddSongWhenCreatingQueue *bool
	// EmitAddListWhenCreatingQueue also emits the add-list event for the
	// playlist that creates a queue. Default true.
	EmitAddListWhenCreatingQueue *bool
	// JoinNewVoiceChannel moves the node when a play request comes from a
	// different voice channel. Default true.
	JoinNewVoiceChannel *bool
	// StreamType selects the voice payload. Default StreamTypeOpus.
	StreamType StreamType
	// DirectLink registers the built-in extractor for direct media URLs.
	// Default true.
	DirectLink *bool
}

// ApplyDefaults fills every nil/zero knob with its documented default and
// validates ranges. The engine calls it exactly once at construction.
func (o *Options) ApplyDefaults() error {
	o.LeaveOnEmpty = defaultBool(o.LeaveOnEmpty, true)
	o.LeaveOnFinish = defaultBool(o.LeaveOnFinish, false)
	o.LeaveOnStop = defaultBool(o.LeaveOnStop, true)
	o.SavePreviousSongs = defaultBool(o.SavePreviousSongs, true)
	o.NSFW = defaultBool(o.NSFW, false)
	o.EmitNewSongOnly = defaultBool(o.EmitNewSongOnly, false)
	o.EmitAddSongWhenCreatingQueue = defaultBool(o.EmitAddSongWhenCreatingQueue, true)
	o.EmitAddListWhenCreatingQueue = defaultBool(o.EmitAddListWhenCreatingQueue, true)
	o.JoinNewVoiceChannel = defaultBool(o.JoinNewVoiceChannel, true)
	o.DirectLink = defaultBool(o.DirectLink, true)

	if o.EmptyCooldown < 0 {
		return fmt.Errorf("%w: EmptyCooldown %v", ErrInvalidOption, o.EmptyCooldown)
	}
	if o.EmptyCooldown == 0 {
		o.EmptyCooldown = DefaultEmptyCooldown
	}
	if o.SearchCooldown < 0 {
		return fmt.Errorf("%w: SearchCooldown %v", ErrInvalidOption, o.SearchCooldown)
	}
	if o.SearchCooldown == 0 {
		o.SearchCooldown = DefaultSearchCooldown
	}
	if o.SearchSongs < 0 {
		return fmt.Errorf("%w: SearchSongs %d", ErrInvalidOption, o.SearchSongs)
	}
	if o.SearchSongs > MaxSearchSongs {
		o.SearchSongs = MaxSearchSongs
	}
	if o.StreamType != StreamTypeOpus && o.StreamType != StreamTypeRaw {
		return fmt.Errorf("%w: StreamType %d", ErrInvalidOption, int(o.StreamType))
	}
	if o.CustomFilters == nil {
		o.CustomFilters = map[string]string{}
	}
	return nil
}

// Bool is a literal helper for the pointer knobs: Options{NSFW: model.Bool(true)}.
func Bool(v bool) *bool { return &v }

func defaultBool(v *bool, def bool) *bool {
	if v != nil {
		return v
	}
	return &def
}

// ResolveOptions parameterizes a single resolve call.
type ResolveOptions struct {
	// Member is attached to the produced song/playlist as the requester.
	Member *Member
	// Metadata is an opaque caller value carried through to events.
	Metadata any
}

// ResolvePlaylistOptions parameterizes resolving a list of inputs into one
// playlist.
type ResolvePlaylistOptions struct {
	ResolveOptions
	// Source labels the produced playlist when the inputs carry none.
	Source string
	// Name overrides the playlist display name.
	Name string
}

// PlayHandlerOptions control where a resolved song lands in the queue.
type PlayHandlerOptions struct {
	// Skip jumps to the newly added song immediately after adding it.
	Skip bool
	// Position inserts at a 1-based queue position; values <= 0 append.
	Position int
	// TextChannelID is where user-facing messages for this request go.
	TextChannelID snowflake.ID
}

// PlayOptions is the full per-call bag for Engine.Play.
type PlayOptions struct {
	PlayHandlerOptions
	Member   *Member
	Metadata any
}

// ResolveOptions narrows a play bag to what resolve calls need.
func (o PlayOptions) ResolveOptions() ResolveOptions {
	return ResolveOptions{Member: o.Member, Metadata: o.Metadata}
}

// CustomPlaylistOptions parameterizes building a playlist out of arbitrary
// caller-supplied inputs.
type CustomPlaylistOptions struct {
	Member *Member
	// Name, Source, URL and Thumbnail set the playlist display fields.
	Name      string
	Source    string
	URL       string
	Thumbnail string
	// Parallel resolves the inputs concurrently. Default true.
	Parallel *bool
	Metadata any
}
