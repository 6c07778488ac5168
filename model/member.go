package model

import "github.com/disgoorg/snowflake/v2"

// Member identifies the guild member a song or playlist was requested by.
// Frontends fill it from their own SDK objects; the engine only reads it.
type Member struct {
	ID          snowflake.ID `json:"id"`
	GuildID     snowflake.ID `json:"guildId"`
	Username    string       `json:"username"`
	DisplayName string       `json:"displayName,omitempty"`
	AvatarURL   string       `json:"avatarUrl,omitempty"`
}

// Uploader is the channel/account a song was published under.
type Uploader struct {
	Name string `json:"name,omitempty"`
	URL  string `json:"url,omitempty"`
}
