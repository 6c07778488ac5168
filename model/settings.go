package model

import (
	"database/sql"
	"strings"
	"time"
)

// GuildSettings are per-guild persistent overrides applied when a queue is
// created. Null columns mean "no override, use the engine option".
type GuildSettings struct {
	GuildID        uint64
	Volume         sql.NullInt64
	SearchSongs    sql.NullInt64
	EmptyCooldown  sql.NullInt64 // seconds
	NSFW           sql.NullBool
	DefaultFilters string // comma-separated preset names enabled on new queues
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// FilterNames splits DefaultFilters, dropping empties.
func (s *GuildSettings) FilterNames() []string {
	if s == nil || s.DefaultFilters == "" {
		return nil
	}
	var names []string
	for _, n := range strings.Split(s.DefaultFilters, ",") {
		if n = strings.TrimSpace(n); n != "" {
			names = append(names, n)
		}
	}
	return names
}
