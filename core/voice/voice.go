// Package voice tracks one playback session per guild. The node itself never
// touches UDP: frontends plug in a Connection that does the actual
// transmission and feed lifecycle events back through the Manager.
package voice

import (
	"context"

	"github.com/disgoorg/snowflake/v2"

	"Bt1QDJ/model"
)

// EventType is the voice-side event family, distinct from engine events.
type EventType string

const (
	// EventDisconnect means the session lost its channel (kicked, moved,
	// network). The engine destroys the guild queue in response.
	EventDisconnect EventType = "disconnect"
	// EventError means the current song failed mid-stream. The engine
	// reports it and advances.
	EventError EventType = "error"
	// EventFinish means the current song played to its end.
	EventFinish EventType = "finish"
)

// Event is one voice lifecycle notification.
type Event struct {
	Type    EventType
	GuildID snowflake.ID
	Err     error // only for EventError
}

// PlayParams is everything a Connection needs to start one song.
type PlayParams struct {
	StreamType model.StreamType
	Volume     int
	// FilterArgs is the joined ffmpeg -af chain, empty when no filters.
	FilterArgs string
	// Seek starts playback at an offset in seconds.
	Seek float64
}

// Connection is the transport a frontend supplies per guild. Implementations
// must be safe for concurrent use; the engine may call Stop while Play is
// still running. A Stop must not come back as EventFinish: the engine
// already drove the queue forward itself, and only a song reaching its
// natural end is a finish.
type Connection interface {
	Play(ctx context.Context, song *model.Song, params PlayParams) error
	Pause() error
	Resume() error
	Stop() error
	SetVolume(percent int) error
	Close() error
}

// NopConnection accepts every command and transmits nothing. Headless nodes
// use it when playback happens in an external process that reports back over
// the API.
type NopConnection struct{}

func (NopConnection) Play(context.Context, *model.Song, PlayParams) error { return nil }
func (NopConnection) Pause() error                                        { return nil }
func (NopConnection) Resume() error                                       { return nil }
func (NopConnection) Stop() error                                         { return nil }
func (NopConnection) SetVolume(int) error                                 { return nil }
func (NopConnection) Close() error                                        { return nil }
