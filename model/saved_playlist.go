package model

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// SongList 以 JSON 列的形式持久化一组歌曲快照
type SongList []*Song

// Value 实现 driver.Valuer 接口
func (l SongList) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	return json.Marshal(l)
}

// Scan 实现 sql.Scanner 接口
func (l *SongList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("failed to scan SongList: value is not []byte")
	}
	return json.Unmarshal(bytes, l)
}

// SavedPlaylist is a named custom playlist stored per guild, replayable with
// PlayCustomPlaylist. Songs are stored as a denormalized JSON snapshot so a
// saved list survives upstream metadata changes.
type SavedPlaylist struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	GuildID   uint64    `gorm:"index:idx_guild_name,priority:1;not null" json:"guildId"`
	Name      string    `gorm:"index:idx_guild_name,priority:2;size:100;not null" json:"name"`
	Source    string    `gorm:"size:32;default:custom" json:"source"`
	URL       string    `gorm:"size:512" json:"url,omitempty"`
	Thumbnail string    `gorm:"size:512" json:"thumbnail,omitempty"`
	Songs     SongList  `gorm:"type:json" json:"songs"`
	CreatedBy uint64    `gorm:"index" json:"createdBy"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// TableName 指定表名
func (SavedPlaylist) TableName() string {
	return "saved_playlists"
}

// Playlist converts the stored snapshot back into a queueable playlist.
func (p *SavedPlaylist) Playlist(member *Member, metadata any) (*Playlist, error) {
	info := PlaylistInfo{
		Source:    p.Source,
		ID:        "",
		Name:      p.Name,
		URL:       p.URL,
		Thumbnail: p.Thumbnail,
		Songs:     p.Songs,
	}
	return NewPlaylist(info, member, metadata)
}
