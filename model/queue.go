package model

import (
	"time"

	"github.com/disgoorg/snowflake/v2"
)

// QueueSnapshot is a point-in-time copy of a guild queue. Events, the wire
// gateway and the cache all carry snapshots instead of live queue state, so
// consumers can read them without locking.
//
// Songs[0] is the playing song whenever Songs is non-empty.
type QueueSnapshot struct {
	GuildID        snowflake.ID `json:"guildId"`
	VoiceChannelID snowflake.ID `json:"voiceChannelId,omitempty"`
	TextChannelID  snowflake.ID `json:"textChannelId,omitempty"`
	Songs          []*Song      `json:"songs"`
	PreviousSongs  []*Song      `json:"previousSongs,omitempty"`
	Playing        bool         `json:"playing"`
	Paused         bool         `json:"paused"`
	Volume         int          `json:"volume"`
	RepeatMode     RepeatMode   `json:"repeatMode"`
	Autoplay       bool         `json:"autoplay"`
	Filters        FilterList   `json:"filters,omitempty"`
	BeginTime      float64      `json:"beginTime"`
	CreatedAt      time.Time    `json:"createdAt"`
}

func (s *QueueSnapshot) ResolveGuildID() snowflake.ID {
	if s == nil {
		return 0
	}
	return s.GuildID
}

// Current returns the playing song, nil when the queue is drained.
func (s *QueueSnapshot) Current() *Song {
	if s == nil || len(s.Songs) == 0 {
		return nil
	}
	return s.Songs[0]
}

// Duration is the remaining queue length in seconds.
func (s *QueueSnapshot) Duration() float64 {
	if s == nil {
		return 0
	}
	var total float64
	for _, song := range s.Songs {
		total += song.Duration
	}
	return total
}
