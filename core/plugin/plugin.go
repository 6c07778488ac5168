// Package plugin defines the source integration surface. Extractor plugins
// turn URLs into song metadata and let the engine queue and play; custom
// plugins take over the whole play flow for their sources.
package plugin

import (
	"context"

	"github.com/disgoorg/snowflake/v2"

	"Bt1QDJ/model"
)

// Plugin is the common contract of every source integration.
type Plugin interface {
	Name() string
	Type() model.PluginType
	// Init runs once at registration, before any other call.
	Init(ctx context.Context, env *Env) error
}

// Enqueuer is the slice of the engine handed to plugins: enough to add
// resolved content, nothing more.
type Enqueuer interface {
	PlaySong(ctx context.Context, guildID snowflake.ID, song *model.Song, opts model.PlayOptions) error
	PlayList(ctx context.Context, guildID snowflake.ID, playlist *model.Playlist, opts model.PlayOptions) error
}

// Env is what plugins get at Init time. Options is the engine's defaulted
// option set; plugins read credentials like YouTubeCookie from it.
type Env struct {
	Options *model.Options
	Enqueue Enqueuer
}

// ExtractorPlugin resolves URLs it validates into songs or playlists.
type ExtractorPlugin interface {
	Plugin
	Validate(url string) bool
	Resolve(ctx context.Context, url string, opts model.ResolveOptions) (*Result, error)
}

// CustomPlugin owns the full play flow for URLs it validates, typically by
// resolving internally and calling Env.Enqueue.
type CustomPlugin interface {
	Plugin
	Validate(url string) bool
	Play(ctx context.Context, guildID snowflake.ID, url string, opts model.PlayOptions) error
}

// Result is the outcome of one Resolve call: exactly one of Song or
// Playlist is set.
type Result struct {
	Song     *model.Song
	Playlist *model.Playlist
}

// Optional extractor capabilities. The engine type-asserts for these instead
// of forcing every source to stub them out.

// Searcher handles free-text queries.
type Searcher interface {
	Search(ctx context.Context, query string, typ model.SearchResultType, limit int) ([]model.SearchResult, error)
}

// RelatedFinder powers autoplay.
type RelatedFinder interface {
	Related(ctx context.Context, song *model.Song) ([]model.RelatedSong, error)
}

// Streamer refreshes or derives the playable stream URL right before
// playback, for sources whose links expire.
type Streamer interface {
	StreamURL(ctx context.Context, song *model.Song) (string, error)
}
