package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/mux"

	"Bt1QDJ/config"
	"Bt1QDJ/core/dj"
	"Bt1QDJ/logger"
	"Bt1QDJ/model"
	"Bt1QDJ/repository"
)

// APIHandler 处理所有API请求
type APIHandler struct {
	engine       *dj.Engine
	settingsRepo repository.GuildSettingsRepository
	playlistRepo repository.SavedPlaylistRepository
	hub          *EventHub
	cfg          *config.Config
	passwordHash string // 节点口令的 bcrypt 哈希，空表示未启用鉴权
}

// NewAPIHandler 创建新的API处理器
func NewAPIHandler(
	engine *dj.Engine,
	settingsRepo repository.GuildSettingsRepository,
	playlistRepo repository.SavedPlaylistRepository,
	hub *EventHub,
	cfg *config.Config,
	passwordHash string,
) *APIHandler {
	return &APIHandler{
		engine:       engine,
		settingsRepo: settingsRepo,
		playlistRepo: playlistRepo,
		hub:          hub,
		cfg:          cfg,
		passwordHash: passwordHash,
	}
}

// respondJSON 统一 JSON 输出
func respondJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("写入响应失败", logger.ErrorField(err))
	}
}

// respondError 把引擎错误映射为 HTTP 状态码
func respondError(w http.ResponseWriter, err error) {
	respondJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

// statusFor classifies engine sentinels into HTTP statuses. Unknown errors
// are 500s.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNoQueue),
		errors.Is(err, model.ErrNoVoiceSession),
		errors.Is(err, model.ErrNoResult),
		errors.Is(err, model.ErrNoSearchSession),
		errors.Is(err, dj.ErrPlaylistNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrNoSong),
		errors.Is(err, model.ErrNoPrevious),
		errors.Is(err, model.ErrNoRelated),
		errors.Is(err, model.ErrOutOfRange),
		errors.Is(err, model.ErrInvalidOption),
		errors.Is(err, model.ErrInvalidFilter),
		errors.Is(err, model.ErrInvalidAnswer),
		errors.Is(err, model.ErrInvalidPlaylist),
		errors.Is(err, model.ErrInvalidSongInfo),
		errors.Is(err, model.ErrCannotResolveGuildID),
		errors.Is(err, model.ErrQueueExists):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNonNSFW):
		return http.StatusForbidden
	case errors.Is(err, model.ErrSearchCooldown):
		return http.StatusTooManyRequests
	case errors.Is(err, model.ErrNoPlugin):
		return http.StatusUnprocessableEntity
	case errors.Is(err, dj.ErrStoreDisabled):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// guildFromRequest 解析路径中的 {guildID}
func guildFromRequest(r *http.Request) (snowflake.ID, error) {
	raw := mux.Vars(r)["guildID"]
	id, err := snowflake.Parse(raw)
	if err != nil {
		return 0, model.ErrCannotResolveGuildID
	}
	return id, nil
}

// bearerToken 提取 Authorization: Bearer 头，没有则返回空串
func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	parts := strings.Split(authHeader, " ")
	if len(parts) != 2 || parts[0] != "Bearer" {
		return ""
	}
	return parts[1]
}

// decodeBody 解析 JSON 请求体
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

// memberPayload 请求中携带的成员信息
type memberPayload struct {
	ID          string `json:"id"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// member 转换为引擎的成员模型，空 ID 返回 nil
func (p *memberPayload) member(guildID snowflake.ID) *model.Member {
	if p == nil || p.ID == "" {
		return nil
	}
	id, err := snowflake.Parse(p.ID)
	if err != nil {
		return nil
	}
	return &model.Member{
		ID:          id,
		GuildID:     guildID,
		Username:    p.Username,
		DisplayName: p.DisplayName,
		AvatarURL:   p.AvatarURL,
	}
}

// StatusHandler 节点状态：版本、插件、在线队列数、网关连接数
func (h *APIHandler) StatusHandler(w http.ResponseWriter, r *http.Request) {
	queues := h.engine.AllQueues()
	respondJSON(w, http.StatusOK, map[string]any{
		"plugins":        h.engine.PluginNames(),
		"queues":         len(queues),
		"gatewayClients": h.hub.ClientCount(),
		"archives":       h.archivesEnabled(),
	})
}

// GuildsHandler 所有在线队列的快照
func (h *APIHandler) GuildsHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.engine.AllQueues())
}

// FiltersCatalogHandler 可用滤镜预设名
func (h *APIHandler) FiltersCatalogHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"filters": h.engine.Filters().Names()})
}
