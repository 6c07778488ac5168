package server

import (
	"database/sql"
	"net/http"

	"Bt1QDJ/logger"
	"Bt1QDJ/model"
)

// settingsView 对外的设置表示，null 表示沿用节点默认值
type settingsView struct {
	GuildID        string  `json:"guildId"`
	Volume         *int    `json:"volume"`
	SearchSongs    *int    `json:"searchSongs"`
	EmptyCooldown  *int    `json:"emptyCooldown"`
	NSFW           *bool   `json:"nsfw"`
	DefaultFilters *string `json:"defaultFilters"`
}

func settingsToView(guildID string, s *model.GuildSettings) settingsView {
	v := settingsView{GuildID: guildID}
	if s == nil {
		return v
	}
	if s.Volume.Valid {
		n := int(s.Volume.Int64)
		v.Volume = &n
	}
	if s.SearchSongs.Valid {
		n := int(s.SearchSongs.Int64)
		v.SearchSongs = &n
	}
	if s.EmptyCooldown.Valid {
		n := int(s.EmptyCooldown.Int64)
		v.EmptyCooldown = &n
	}
	if s.NSFW.Valid {
		b := s.NSFW.Bool
		v.NSFW = &b
	}
	if s.DefaultFilters != "" {
		f := s.DefaultFilters
		v.DefaultFilters = &f
	}
	return v
}

// GetSettingsHandler 读取服务器级覆盖项
func (h *APIHandler) GetSettingsHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	settings, err := h.engine.GuildSettings(r.Context(), guildID)
	if err != nil {
		logger.Error("[Settings] 读取设置失败",
			logger.String("guildID", guildID.String()),
			logger.ErrorField(err))
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, settingsToView(guildID.String(), settings))
}

// UpdateSettingsHandler 写入覆盖项。缺省字段表示清除该项覆盖。
func (h *APIHandler) UpdateSettingsHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req settingsView
	if !decodeBody(w, r, &req) {
		return
	}

	settings := &model.GuildSettings{GuildID: uint64(guildID)}
	if req.Volume != nil {
		settings.Volume = sql.NullInt64{Int64: int64(*req.Volume), Valid: true}
	}
	if req.SearchSongs != nil {
		settings.SearchSongs = sql.NullInt64{Int64: int64(*req.SearchSongs), Valid: true}
	}
	if req.EmptyCooldown != nil {
		settings.EmptyCooldown = sql.NullInt64{Int64: int64(*req.EmptyCooldown), Valid: true}
	}
	if req.NSFW != nil {
		settings.NSFW = sql.NullBool{Bool: *req.NSFW, Valid: true}
	}
	if req.DefaultFilters != nil {
		settings.DefaultFilters = *req.DefaultFilters
	}

	if err := h.engine.UpdateGuildSettings(r.Context(), settings); err != nil {
		logger.Error("[Settings] 保存设置失败",
			logger.String("guildID", guildID.String()),
			logger.ErrorField(err))
		respondError(w, err)
		return
	}

	logger.Info("[Settings] 设置已更新", logger.String("guildID", guildID.String()))
	respondJSON(w, http.StatusOK, settingsToView(guildID.String(), settings))
}

// DeleteSettingsHandler 清空覆盖项，回落到节点默认值
func (h *APIHandler) DeleteSettingsHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	if h.settingsRepo == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "settings store disabled"})
		return
	}

	if err := h.settingsRepo.DeleteSettings(r.Context(), guildID); err != nil {
		logger.Error("[Settings] 删除设置失败",
			logger.String("guildID", guildID.String()),
			logger.ErrorField(err))
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}
