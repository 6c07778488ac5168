package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"Bt1QDJ/logger"
	"Bt1QDJ/model"
	"Bt1QDJ/storage"
)

const archiveURLExpiry = 24 * time.Hour

// ListPlaylistsHandler 本服务器收藏的歌单
func (h *APIHandler) ListPlaylistsHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	playlists, err := h.engine.ListSavedPlaylists(r.Context(), guildID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"playlists": playlists})
}

// savePlaylistRequest 收藏歌单。inputs 给定时重新解析，否则收藏当前队列。
type savePlaylistRequest struct {
	Name      string         `json:"name"`
	Inputs    []string       `json:"inputs,omitempty"`
	Source    string         `json:"source,omitempty"`
	URL       string         `json:"url,omitempty"`
	Thumbnail string         `json:"thumbnail,omitempty"`
	Parallel  *bool          `json:"parallel,omitempty"`
	Member    *memberPayload `json:"member,omitempty"`
}

// SavePlaylistHandler 收藏歌单到数据库
func (h *APIHandler) SavePlaylistHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req savePlaylistRequest
	if !decodeBody(w, r, &req) {
		return
	}

	var pl *model.Playlist
	if len(req.Inputs) > 0 {
		inputs := make([]any, len(req.Inputs))
		for i, in := range req.Inputs {
			inputs[i] = in
		}
		pl, err = h.engine.CreateCustomPlaylist(r.Context(), inputs, model.CustomPlaylistOptions{
			Member:    req.Member.member(guildID),
			Name:      req.Name,
			Source:    req.Source,
			URL:       req.URL,
			Thumbnail: req.Thumbnail,
			Parallel:  req.Parallel,
		})
		if err != nil {
			respondError(w, err)
			return
		}
	} else {
		// 没给输入就收藏当前队列
		snap, err := h.engine.GetQueue(guildID)
		if err != nil {
			respondError(w, err)
			return
		}
		songs := make([]*model.Song, 0, len(snap.Songs))
		songs = append(songs, snap.Songs...)
		if len(songs) == 0 {
			respondError(w, model.ErrInvalidPlaylist)
			return
		}
		pl = &model.Playlist{
			Source:    "queue",
			Name:      req.Name,
			Songs:     songs,
			Member:    req.Member.member(guildID),
			Thumbnail: req.Thumbnail,
		}
	}

	if err := h.engine.SaveCustomPlaylist(r.Context(), guildID, req.Name, pl); err != nil {
		logger.Error("[Playlist] 收藏歌单失败",
			logger.String("guildID", guildID.String()),
			logger.String("name", req.Name),
			logger.ErrorField(err))
		respondError(w, err)
		return
	}

	logger.Info("[Playlist] 歌单已收藏",
		logger.String("guildID", guildID.String()),
		logger.String("name", req.Name),
		logger.Int("songs", len(pl.Songs)))
	respondJSON(w, http.StatusCreated, map[string]any{
		"name":  pl.Name,
		"songs": len(pl.Songs),
	})
}

// PlaySavedPlaylistHandler 把收藏的歌单整组入队
func (h *APIHandler) PlaySavedPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	name := mux.Vars(r)["name"]

	var req playRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.engine.PlaySavedPlaylist(r.Context(), guildID, name, req.options(guildID)); err != nil {
		respondError(w, err)
		return
	}

	snap, err := h.engine.GetQueue(guildID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// DeleteSavedPlaylistHandler 删除收藏
func (h *APIHandler) DeleteSavedPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	name := mux.Vars(r)["name"]

	if err := h.engine.DeleteSavedPlaylist(r.Context(), guildID, name); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// archivesEnabled MinIO 归档是否可用
func (h *APIHandler) archivesEnabled() bool {
	return storage.Enabled()
}

// ExportPlaylistHandler 把歌单存到对象存储并返回临时下载链接
func (h *APIHandler) ExportPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	if !h.archivesEnabled() {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "archive storage disabled"})
		return
	}

	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	name := mux.Vars(r)["name"]

	if h.playlistRepo == nil {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "playlist store disabled"})
		return
	}
	saved, err := h.playlistRepo.GetPlaylist(r.Context(), guildID, name)
	if err != nil {
		respondError(w, err)
		return
	}
	if saved == nil {
		respondJSON(w, http.StatusNotFound, map[string]string{"error": "playlist not found"})
		return
	}

	data, err := json.Marshal(saved)
	if err != nil {
		respondError(w, err)
		return
	}

	object := storage.ArchiveName(uint64(guildID), name)
	if err := storage.UploadArchive(r.Context(), object, data); err != nil {
		logger.Error("[Playlist] 归档上传失败",
			logger.String("object", object),
			logger.ErrorField(err))
		respondError(w, err)
		return
	}

	url, err := storage.PresignArchiveURL(r.Context(), object, archiveURLExpiry)
	if err != nil {
		respondError(w, err)
		return
	}

	logger.Info("[Playlist] 歌单已归档",
		logger.String("guildID", guildID.String()),
		logger.String("object", object))
	respondJSON(w, http.StatusOK, map[string]any{
		"object":    object,
		"url":       url,
		"expiresIn": int(archiveURLExpiry.Seconds()),
	})
}

// importPlaylistRequest 从对象存储拉回歌单
type importPlaylistRequest struct {
	Object string `json:"object"`
	Name   string `json:"name,omitempty"` // 覆盖归档里的名字
}

// ImportPlaylistHandler 下载归档并收藏到当前服务器
func (h *APIHandler) ImportPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	if !h.archivesEnabled() {
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "archive storage disabled"})
		return
	}

	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req importPlaylistRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Object == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "object is required"})
		return
	}

	data, err := storage.DownloadArchive(r.Context(), req.Object)
	if err != nil {
		logger.Error("[Playlist] 归档下载失败",
			logger.String("object", req.Object),
			logger.ErrorField(err))
		respondError(w, err)
		return
	}

	var saved model.SavedPlaylist
	if err := json.Unmarshal(data, &saved); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "archive is not a playlist"})
		return
	}

	pl, err := saved.Playlist(nil, nil)
	if err != nil {
		respondError(w, err)
		return
	}

	name := req.Name
	if name == "" {
		name = saved.Name
	}
	if err := h.engine.SaveCustomPlaylist(r.Context(), guildID, name, pl); err != nil {
		respondError(w, err)
		return
	}

	logger.Info("[Playlist] 歌单已导入",
		logger.String("guildID", guildID.String()),
		logger.String("name", name),
		logger.Int("songs", len(pl.Songs)))
	respondJSON(w, http.StatusCreated, map[string]any{
		"name":  name,
		"songs": len(pl.Songs),
	})
}
