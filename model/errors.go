package model

import "errors"

// Sentinel errors shared across the engine. Callers match them with
// errors.Is; wrapped messages carry the offending input.
var (
	// ErrNoQueue is returned when an operation targets a guild without an
	// active queue.
	ErrNoQueue = errors.New("no queue for this guild")

	// ErrQueueExists is returned when creating a queue for a guild that
	// already has one.
	ErrQueueExists = errors.New("queue already exists for this guild")

	// ErrNoSong is returned when the queue has no song to operate on.
	ErrNoSong = errors.New("no song in queue")

	// ErrNoPrevious is returned by Previous when there is no played song to
	// go back to, or previous-song tracking is disabled.
	ErrNoPrevious = errors.New("no previous song")

	// ErrOutOfRange is returned when a jump/insert position does not exist.
	ErrOutOfRange = errors.New("position out of range")

	// ErrNoPlugin is returned when no registered extractor accepts an input URL.
	ErrNoPlugin = errors.New("no plugin can handle this input")

	// ErrNoResult is returned when a search yields nothing.
	ErrNoResult = errors.New("no search result")

	// ErrNoRelated is returned when autoplay finds no related song to continue with.
	ErrNoRelated = errors.New("no related song found")

	// ErrNonNSFW is returned when an age-restricted song is requested from a
	// context that does not allow it.
	ErrNonNSFW = errors.New("age-restricted content in a non-NSFW context")

	// ErrInvalidSongInfo is returned when extractor metadata cannot be
	// normalized into a playable song (missing identifier or URL).
	ErrInvalidSongInfo = errors.New("invalid song info")

	// ErrInvalidPlaylist is returned when playlist metadata carries no songs.
	ErrInvalidPlaylist = errors.New("playlist has no songs")

	// ErrInvalidFilter is returned when a filter name is unknown or an inline
	// filter carries no expression.
	ErrInvalidFilter = errors.New("invalid filter")

	// ErrCannotResolveGuildID is returned when a value cannot be resolved to
	// a guild identifier.
	ErrCannotResolveGuildID = errors.New("cannot resolve guild id")

	// ErrInvalidOption is returned by Options.ApplyDefaults for out-of-range values.
	ErrInvalidOption = errors.New("invalid option value")

	// ErrNoVoiceSession is returned when an operation needs a voice session
	// that was never registered.
	ErrNoVoiceSession = errors.New("no voice session for this guild")

	// ErrSearchCooldown is returned when a user starts an interactive search
	// while a previous one is still cooling down.
	ErrSearchCooldown = errors.New("search is cooling down")

	// ErrNoSearchSession is returned when an answer or cancel arrives for a
	// user with no interactive search in flight.
	ErrNoSearchSession = errors.New("no active search session")

	// ErrInvalidAnswer is returned when an interactive search answer does not
	// name one of the offered results.
	ErrInvalidAnswer = errors.New("invalid search answer")
)
