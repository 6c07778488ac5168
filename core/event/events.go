package event

import (
	"time"

	"github.com/disgoorg/snowflake/v2"

	"Bt1QDJ/model"
)

// Type names an engine event. The string values are wire contract: frontends
// and the websocket gateway match on them verbatim.
type Type string

const (
	// Error is emitted for any failure the engine swallows instead of
	// returning: playback errors, autoplay failures, plugin crashes.
	Error Type = "error"
	// AddList is emitted after a playlist lands in a queue.
	AddList Type = "addList"
	// AddSong is emitted after a single song lands in a queue.
	AddSong Type = "addSong"
	// PlaySong is emitted when a song starts playing.
	PlaySong Type = "playSong"
	// FinishSong is emitted when the playing song ends for any reason.
	FinishSong Type = "finishSong"
	// Empty is emitted when the voice channel has no listeners left and the
	// empty cooldown fired.
	Empty Type = "empty"
	// Finish is emitted when the queue runs out of songs.
	Finish Type = "finish"
	// InitQueue is emitted right after a queue is created, before any
	// add/play event for it.
	InitQueue Type = "initQueue"
	// NoRelated is emitted when autoplay cannot find a related song.
	NoRelated Type = "noRelated"
	// Disconnect is emitted when the voice session for a queue closes.
	Disconnect Type = "disconnect"
	// DeleteQueue is emitted after a queue is destroyed. It is the last
	// event a queue produces.
	DeleteQueue Type = "deleteQueue"

	// SearchResult is emitted when an interactive search offers choices.
	SearchResult Type = "searchResult"
	// SearchDone is emitted when the user picked a valid choice.
	SearchDone Type = "searchDone"
	// SearchCancel is emitted when the user cancelled the search.
	SearchCancel Type = "searchCancel"
	// SearchNoResult is emitted when the query matched nothing.
	SearchNoResult Type = "searchNoResult"
	// SearchInvalidAnswer is emitted when the answer named no offered choice.
	SearchInvalidAnswer Type = "searchInvalidAnswer"
)

// Event is the envelope every subscriber receives. Data holds one of the
// *Data payload structs below, keyed by Type.
type Event struct {
	Type      Type         `json:"type"`
	GuildID   snowflake.ID `json:"guildId,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
	Data      any          `json:"data,omitempty"`
}

// ErrorData carries a swallowed error. Message duplicates Err for
// serialization; Err itself never crosses the wire.
type ErrorData struct {
	Err           error                `json:"-"`
	Message       string               `json:"message"`
	TextChannelID snowflake.ID         `json:"textChannelId,omitempty"`
	Queue         *model.QueueSnapshot `json:"queue,omitempty"`
}

// QueueData is the payload for events that only concern queue state:
// initQueue, deleteQueue, empty, finish, disconnect, noRelated.
type QueueData struct {
	Queue *model.QueueSnapshot `json:"queue"`
}

// AddSongData is the payload for addSong.
type AddSongData struct {
	Queue *model.QueueSnapshot `json:"queue"`
	Song  *model.Song          `json:"song"`
}

// AddListData is the payload for addList.
type AddListData struct {
	Queue    *model.QueueSnapshot `json:"queue"`
	Playlist *model.Playlist      `json:"playlist"`
}

// PlaySongData is the payload for playSong.
type PlaySongData struct {
	Queue *model.QueueSnapshot `json:"queue"`
	Song  *model.Song          `json:"song"`
}

// FinishSongData is the payload for finishSong.
type FinishSongData struct {
	Queue *model.QueueSnapshot `json:"queue"`
	Song  *model.Song          `json:"song"`
}

// SearchData is the payload for every search* event. Results is only set on
// searchResult, Answer only on searchDone/searchInvalidAnswer.
type SearchData struct {
	FlowID  string               `json:"flowId"`
	Query   string               `json:"query"`
	Member  *model.Member        `json:"member,omitempty"`
	Results []model.SearchResult `json:"results,omitempty"`
	Answer  string               `json:"answer,omitempty"`
}
