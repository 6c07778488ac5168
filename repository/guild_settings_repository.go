package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/disgoorg/snowflake/v2"

	"Bt1QDJ/model"
)

// GuildSettingsRepository defines the data operations for per-guild engine
// overrides. A nil, nil return means the guild has no stored row.
type GuildSettingsRepository interface {
	GetSettings(ctx context.Context, guildID snowflake.ID) (*model.GuildSettings, error)
	SaveSettings(ctx context.Context, s *model.GuildSettings) error
	DeleteSettings(ctx context.Context, guildID snowflake.ID) error
}

// mysqlGuildSettingsRepository implements GuildSettingsRepository for MySQL.
type mysqlGuildSettingsRepository struct {
	db *sql.DB
}

// NewMySQLGuildSettingsRepository creates a new mysqlGuildSettingsRepository.
func NewMySQLGuildSettingsRepository(db *sql.DB) GuildSettingsRepository {
	return &mysqlGuildSettingsRepository{db: db}
}

// GetSettings retrieves the stored overrides for a guild.
func (r *mysqlGuildSettingsRepository) GetSettings(ctx context.Context, guildID snowflake.ID) (*model.GuildSettings, error) {
	query := `
		SELECT guild_id, volume, search_songs, empty_cooldown, nsfw, default_filters, created_at, updated_at
		FROM guild_settings
		WHERE guild_id = ?
	`
	s := &model.GuildSettings{}
	var filters sql.NullString
	err := r.db.QueryRowContext(ctx, query, uint64(guildID)).Scan(
		&s.GuildID,
		&s.Volume,
		&s.SearchSongs,
		&s.EmptyCooldown,
		&s.NSFW,
		&filters,
		&s.CreatedAt,
		&s.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil // no overrides stored
		}
		return nil, fmt.Errorf("failed to scan guild settings for %s: %w", guildID, err)
	}
	s.DefaultFilters = filters.String
	return s, nil
}

// SaveSettings inserts or updates a guild's overrides in one statement.
func (r *mysqlGuildSettingsRepository) SaveSettings(ctx context.Context, s *model.GuildSettings) error {
	query := `
		INSERT INTO guild_settings (guild_id, volume, search_songs, empty_cooldown, nsfw, default_filters)
		VALUES (?, ?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			volume = VALUES(volume),
			search_songs = VALUES(search_songs),
			empty_cooldown = VALUES(empty_cooldown),
			nsfw = VALUES(nsfw),
			default_filters = VALUES(default_filters)
	`
	_, err := r.db.ExecContext(ctx, query,
		s.GuildID,
		s.Volume,
		s.SearchSongs,
		s.EmptyCooldown,
		s.NSFW,
		s.DefaultFilters,
	)
	if err != nil {
		return fmt.Errorf("failed to save guild settings for %d: %w", s.GuildID, err)
	}
	return nil
}

// DeleteSettings drops a guild's stored overrides, reverting it to the
// engine options.
func (r *mysqlGuildSettingsRepository) DeleteSettings(ctx context.Context, guildID snowflake.ID) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM guild_settings WHERE guild_id = ?", uint64(guildID))
	if err != nil {
		return fmt.Errorf("failed to delete guild settings for %s: %w", guildID, err)
	}
	return nil
}
