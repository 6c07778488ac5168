package model

import "fmt"

// RepeatMode controls what the queue does when the playing song ends.
// The numeric values are part of the wire contract and must not change.
type RepeatMode int

const (
	// RepeatModeDisabled advances to the next song and drops the finished one
	// (unless previous-song tracking keeps it).
	RepeatModeDisabled RepeatMode = iota
	// RepeatModeSong replays the current song.
	RepeatModeSong
	// RepeatModeQueue moves the finished song to the tail of the queue.
	RepeatModeQueue
)

func (m RepeatMode) String() string {
	switch m {
	case RepeatModeDisabled:
		return "disabled"
	case RepeatModeSong:
		return "song"
	case RepeatModeQueue:
		return "queue"
	default:
		return fmt.Sprintf("RepeatMode(%d)", int(m))
	}
}

// Valid reports whether m is one of the three defined modes.
func (m RepeatMode) Valid() bool {
	return m >= RepeatModeDisabled && m <= RepeatModeQueue
}

// ParseRepeatMode maps the wire names ("disabled", "song", "queue") back to a
// mode. 数字字符串 ("0".."2") 也接受，方便 API 调用方.
func ParseRepeatMode(s string) (RepeatMode, error) {
	switch s {
	case "disabled", "off", "0":
		return RepeatModeDisabled, nil
	case "song", "1":
		return RepeatModeSong, nil
	case "queue", "all", "2":
		return RepeatModeQueue, nil
	}
	return RepeatModeDisabled, fmt.Errorf("%w: unknown repeat mode %q", ErrInvalidOption, s)
}

// StreamType selects the payload produced for voice transmission.
type StreamType int

const (
	// StreamTypeOpus sends pre-encoded opus packets.
	StreamTypeOpus StreamType = iota
	// StreamTypeRaw sends raw PCM and lets the voice layer encode.
	StreamTypeRaw
)

func (t StreamType) String() string {
	switch t {
	case StreamTypeOpus:
		return "opus"
	case StreamTypeRaw:
		return "raw"
	default:
		return fmt.Sprintf("StreamType(%d)", int(t))
	}
}

// ParseStreamType maps "opus"/"raw" to a stream type.
func ParseStreamType(s string) (StreamType, error) {
	switch s {
	case "opus", "0", "":
		return StreamTypeOpus, nil
	case "raw", "1":
		return StreamTypeRaw, nil
	}
	return StreamTypeOpus, fmt.Errorf("%w: unknown stream type %q", ErrInvalidOption, s)
}

// PluginType tags how a plugin participates in resolving input.
type PluginType string

const (
	// PluginTypeCustom plugins own both URL validation and playback
	// preparation for their sources.
	PluginTypeCustom PluginType = "custom"
	// PluginTypeExtractor plugins turn a URL they accept into song or
	// playlist metadata and hand playback back to the engine.
	PluginTypeExtractor PluginType = "extractor"
)

// SearchResultType distinguishes what a search hit points at.
type SearchResultType string

const (
	SearchResultVideo    SearchResultType = "video"
	SearchResultPlaylist SearchResultType = "playlist"
)

// SearchResult is one hit returned by Engine.Search. Video hits carry
// duration/view data; playlist hits carry Length instead.
type SearchResult struct {
	Type              SearchResultType `json:"type"`
	ID                string           `json:"id"`
	Name              string           `json:"name"`
	URL               string           `json:"url"`
	Thumbnail         string           `json:"thumbnail,omitempty"`
	Uploader          Uploader         `json:"uploader"`
	Duration          float64          `json:"duration,omitempty"`
	FormattedDuration string           `json:"formattedDuration,omitempty"`
	IsLive            bool             `json:"isLive,omitempty"`
	Views             int64            `json:"views,omitempty"`
	Length            int              `json:"length,omitempty"`
}
