package repository

import (
	"context"
	"errors"

	"github.com/disgoorg/snowflake/v2"
	"gorm.io/gorm"

	"Bt1QDJ/model"
)

// SavedPlaylistRepository 歌单数据访问接口
type SavedPlaylistRepository interface {
	SavePlaylist(ctx context.Context, sp *model.SavedPlaylist) error
	GetPlaylist(ctx context.Context, guildID snowflake.ID, name string) (*model.SavedPlaylist, error)
	ListPlaylists(ctx context.Context, guildID snowflake.ID) ([]*model.SavedPlaylist, error)
	DeletePlaylist(ctx context.Context, guildID snowflake.ID, name string) error
}

// gormSavedPlaylistRepository GORM 实现
type gormSavedPlaylistRepository struct {
	db *gorm.DB
}

// NewGormSavedPlaylistRepository 创建 GORM 歌单仓库
func NewGormSavedPlaylistRepository(db *gorm.DB) SavedPlaylistRepository {
	return &gormSavedPlaylistRepository{db: db}
}

// SavePlaylist 保存歌单，同名覆盖
func (r *gormSavedPlaylistRepository) SavePlaylist(ctx context.Context, sp *model.SavedPlaylist) error {
	var existing model.SavedPlaylist
	err := r.db.WithContext(ctx).
		Where("guild_id = ? AND name = ?", sp.GuildID, sp.Name).
		First(&existing).Error
	switch {
	case err == nil:
		sp.ID = existing.ID
		sp.CreatedAt = existing.CreatedAt
		return r.db.WithContext(ctx).Save(sp).Error
	case errors.Is(err, gorm.ErrRecordNotFound):
		return r.db.WithContext(ctx).Create(sp).Error
	default:
		return err
	}
}

// GetPlaylist 按名称获取歌单，不存在时返回 nil, nil
func (r *gormSavedPlaylistRepository) GetPlaylist(ctx context.Context, guildID snowflake.ID, name string) (*model.SavedPlaylist, error) {
	var sp model.SavedPlaylist
	err := r.db.WithContext(ctx).
		Where("guild_id = ? AND name = ?", uint64(guildID), name).
		First(&sp).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &sp, nil
}

// ListPlaylists 列出服务器的全部歌单，新的在前
func (r *gormSavedPlaylistRepository) ListPlaylists(ctx context.Context, guildID snowflake.ID) ([]*model.SavedPlaylist, error) {
	var out []*model.SavedPlaylist
	err := r.db.WithContext(ctx).
		Where("guild_id = ?", uint64(guildID)).
		Order("updated_at DESC").
		Find(&out).Error
	return out, err
}

// DeletePlaylist 删除歌单
func (r *gormSavedPlaylistRepository) DeletePlaylist(ctx context.Context, guildID snowflake.ID, name string) error {
	return r.db.WithContext(ctx).
		Where("guild_id = ? AND name = ?", uint64(guildID), name).
		Delete(&model.SavedPlaylist{}).Error
}
