package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"Bt1QDJ/logger"
	"Bt1QDJ/model"
	"Bt1QDJ/storage"
)

// QueueHandler 当前队列快照
func (h *APIHandler) QueueHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
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

// SkipHandler 跳到下一首
func (h *APIHandler) SkipHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	song, err := h.engine.Skip(r.Context(), guildID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, song)
}

// PreviousHandler 回到上一首
func (h *APIHandler) PreviousHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	song, err := h.engine.Previous(r.Context(), guildID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, song)
}

// JumpHandler 跳转到指定偏移，负数表示回放历史
func (h *APIHandler) JumpHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		Position int `json:"position"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	song, err := h.engine.Jump(r.Context(), guildID, req.Position)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, song)
}

// StopHandler 停止播放并销毁队列。archive=true 时先把最终快照归档到
// 对象存储，销毁后还能取回
func (h *APIHandler) StopHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var object string
	if r.URL.Query().Get("archive") == "true" {
		if !h.archivesEnabled() {
			respondJSON(w, http.StatusServiceUnavailable, map[string]string{"error": "archive storage disabled"})
			return
		}
		snap, err := h.engine.GetQueue(guildID)
		if err != nil {
			respondError(w, err)
			return
		}
		data, err := json.Marshal(snap)
		if err != nil {
			respondError(w, err)
			return
		}
		object = storage.ArchiveName(uint64(guildID), "takeout-"+time.Now().UTC().Format("20060102-150405"))
		if err := storage.UploadArchive(r.Context(), object, data); err != nil {
			logger.Error("[Queue] 队列快照归档失败",
				logger.String("object", object),
				logger.ErrorField(err))
			respondError(w, err)
			return
		}
		logger.Info("[Queue] 队列快照已归档",
			logger.String("guildID", guildID.String()),
			logger.String("object", object))
	}

	if err := h.engine.Stop(r.Context(), guildID); err != nil {
		respondError(w, err)
		return
	}
	if object != "" {
		respondJSON(w, http.StatusOK, map[string]string{"archived": object})
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// PauseHandler 暂停
func (h *APIHandler) PauseHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.engine.Pause(r.Context(), guildID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// ResumeHandler 恢复
func (h *APIHandler) ResumeHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.engine.Resume(r.Context(), guildID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// ShuffleHandler 打乱待播列表
func (h *APIHandler) ShuffleHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	snap, err := h.engine.Shuffle(r.Context(), guildID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// RemoveSongHandler 按位置移除待播歌曲
func (h *APIHandler) RemoveSongHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	position, err := strconv.Atoi(mux.Vars(r)["position"])
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid position"})
		return
	}
	song, err := h.engine.Remove(r.Context(), guildID, position)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, song)
}

// SeekHandler 定位到当前歌曲的指定秒数
func (h *APIHandler) SeekHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		Seconds float64 `json:"seconds"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.engine.Seek(r.Context(), guildID, req.Seconds); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// VolumeHandler 设置音量百分比，超界会被钳制
func (h *APIHandler) VolumeHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		Volume int `json:"volume"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	applied, err := h.engine.SetVolume(r.Context(), guildID, req.Volume)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"volume": applied})
}

// RepeatHandler 设置循环模式：0 关闭 / 1 单曲 / 2 队列
func (h *APIHandler) RepeatHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		Mode int `json:"mode"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	mode := model.RepeatMode(req.Mode)
	if err := h.engine.SetRepeatMode(r.Context(), guildID, mode); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"mode": int(mode),
		"name": mode.String(),
	})
}

// CycleRepeatHandler 在 关闭→单曲→队列 之间轮转
func (h *APIHandler) CycleRepeatHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	mode, err := h.engine.CycleRepeatMode(r.Context(), guildID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"mode": int(mode),
		"name": mode.String(),
	})
}

// AutoplayHandler 切换自动续播
func (h *APIHandler) AutoplayHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	enabled, err := h.engine.ToggleAutoplay(r.Context(), guildID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"autoplay": enabled})
}

// QueueFiltersHandler 当前生效的滤镜
func (h *APIHandler) QueueFiltersHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	snap, err := h.engine.GetQueue(guildID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"filters": snap.Filters})
}

// SetFiltersHandler 整组替换滤镜，空列表表示全部清除
func (h *APIHandler) SetFiltersHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		Filters []string `json:"filters"`
	}
	if !decodeBody(w, r, &req) {
		return
	}

	inputs := make([]any, len(req.Filters))
	for i, f := range req.Filters {
		inputs[i] = f
	}
	applied, err := h.engine.ApplyFilters(r.Context(), guildID, inputs...)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"filters": applied})
}

// AddFilterHandler 追加一个滤镜，值形式 name=expr 覆盖预设
func (h *APIHandler) AddFilterHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req struct {
		Filter string `json:"filter"`
		Value  string `json:"value,omitempty"`
	}
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Filter == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "filter is required"})
		return
	}

	var input any = req.Filter
	if req.Value != "" {
		input = model.Filter{Name: req.Filter, Value: req.Value}
	}

	applied, err := h.engine.AddFilter(r.Context(), guildID, input)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"filters": applied})
}

// RemoveFilterHandler 按名字移除滤镜
func (h *APIHandler) RemoveFilterHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	name := mux.Vars(r)["name"]
	applied, err := h.engine.RemoveFilter(r.Context(), guildID, name)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"filters": applied})
}
