package server

import (
	"net/http"
	"strconv"

	"github.com/disgoorg/snowflake/v2"

	"Bt1QDJ/logger"
	"Bt1QDJ/model"
)

// playRequest 播放请求体。input 可以是 URL 也可以是搜索词。
type playRequest struct {
	Input         string         `json:"input"`
	Member        *memberPayload `json:"member,omitempty"`
	TextChannelID string         `json:"textChannelId,omitempty"`
	Skip          bool           `json:"skip,omitempty"`
	Position      int            `json:"position,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

func (p *playRequest) options(guildID snowflake.ID) model.PlayOptions {
	opts := model.PlayOptions{
		PlayHandlerOptions: model.PlayHandlerOptions{
			Skip:     p.Skip,
			Position: p.Position,
		},
		Member: p.Member.member(guildID),
	}
	if p.TextChannelID != "" {
		if ch, err := snowflake.Parse(p.TextChannelID); err == nil {
			opts.TextChannelID = ch
		}
	}
	if len(p.Metadata) > 0 {
		opts.Metadata = p.Metadata
	}
	return opts
}

// PlayHandler 解析输入并入队。自由文本根据服务器设置走首选或交互搜索。
func (h *APIHandler) PlayHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req playRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Input == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "input is required"})
		return
	}

	if err := h.engine.Play(r.Context(), guildID, req.Input, req.options(guildID)); err != nil {
		logger.Warn("[Play] 播放请求失败",
			logger.String("guildID", guildID.String()),
			logger.ErrorField(err))
		respondError(w, err)
		return
	}

	snap, err := h.engine.GetQueue(guildID)
	if err != nil {
		// 交互搜索挂起时队列可能还不存在
		respondJSON(w, http.StatusAccepted, map[string]string{"status": "pending"})
		return
	}
	respondJSON(w, http.StatusOK, snap)
}

// SearchHandler 无状态搜索，不触发播放
func (h *APIHandler) SearchHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	if query == "" {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "query is required"})
		return
	}

	typ := model.SearchResultVideo
	if t := r.URL.Query().Get("type"); t != "" {
		typ = model.SearchResultType(t)
	}
	limit := 10
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil {
			limit = n
		}
	}

	results, err := h.engine.Search(r.Context(), query, typ, limit)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"results": results})
}

// answerRequest 交互搜索的回答
type answerRequest struct {
	UserID string `json:"userId"`
	Answer string `json:"answer"`
}

// AnswerSearchHandler 回应挂起的交互搜索。answer 为序号，其他内容视为取消。
func (h *APIHandler) AnswerSearchHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req answerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	userID, err := snowflake.Parse(req.UserID)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid userId"})
		return
	}

	picked, err := h.engine.AnswerSearch(r.Context(), guildID, userID, req.Answer)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, picked)
}

// CancelSearchHandler 丢弃挂起的交互搜索
func (h *APIHandler) CancelSearchHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req answerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	userID, err := snowflake.Parse(req.UserID)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid userId"})
		return
	}

	if err := h.engine.CancelSearch(guildID, userID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// customPlaylistRequest 把一组输入组装成歌单
type customPlaylistRequest struct {
	Inputs    []string       `json:"inputs"`
	Name      string         `json:"name,omitempty"`
	Source    string         `json:"source,omitempty"`
	URL       string         `json:"url,omitempty"`
	Thumbnail string         `json:"thumbnail,omitempty"`
	Parallel  *bool          `json:"parallel,omitempty"`
	Member    *memberPayload `json:"member,omitempty"`

	// 仅 play 端点使用
	Skip          bool   `json:"skip,omitempty"`
	Position      int    `json:"position,omitempty"`
	TextChannelID string `json:"textChannelId,omitempty"`
}

func (p *customPlaylistRequest) options(guildID snowflake.ID) model.CustomPlaylistOptions {
	return model.CustomPlaylistOptions{
		Member:    p.Member.member(guildID),
		Name:      p.Name,
		Source:    p.Source,
		URL:       p.URL,
		Thumbnail: p.Thumbnail,
		Parallel:  p.Parallel,
	}
}

func (p *customPlaylistRequest) inputsAny() []any {
	inputs := make([]any, len(p.Inputs))
	for i, in := range p.Inputs {
		inputs[i] = in
	}
	return inputs
}

// CreateCustomPlaylistHandler 只组装歌单不入队，结果返回给调用方
func (h *APIHandler) CreateCustomPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	var req customPlaylistRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Inputs) == 0 {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "inputs is required"})
		return
	}

	pl, err := h.engine.CreateCustomPlaylist(r.Context(), req.inputsAny(), req.options(0))
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pl)
}

// PlayCustomPlaylistHandler 组装歌单并立即入队
func (h *APIHandler) PlayCustomPlaylistHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req customPlaylistRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Inputs) == 0 {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "inputs is required"})
		return
	}

	play := model.PlayHandlerOptions{Skip: req.Skip, Position: req.Position}
	if req.TextChannelID != "" {
		if ch, err := snowflake.Parse(req.TextChannelID); err == nil {
			play.TextChannelID = ch
		}
	}

	if err := h.engine.PlayCustomPlaylist(r.Context(), guildID, req.inputsAny(), req.options(guildID), play); err != nil {
		logger.Warn("[Play] 自定义歌单入队失败",
			logger.String("guildID", guildID.String()),
			logger.ErrorField(err))
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
