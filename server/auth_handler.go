package server

import (
	"encoding/json"
	"net/http"

	"Bt1QDJ/core/auth"
	"Bt1QDJ/logger"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	Client   string `json:"client"` // 调用方标识，例如机器人名字
	Password string `json:"password"`
}

// LoginHandler exchanges the node password for a JWT. Bot frontends call it
// once at startup and present the token on every later request.
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if h.passwordHash == "" {
		http.Error(w, "Node authentication is disabled", http.StatusNotFound)
		return
	}

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.Error("[Login] 解析请求体失败", logger.ErrorField(err))
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if req.Client == "" || req.Password == "" {
		http.Error(w, "Client and password are required", http.StatusBadRequest)
		return
	}

	// 验证节点口令
	if !auth.VerifyPassword(req.Password, h.passwordHash) {
		logger.Warn("[Login] 口令验证失败", logger.String("client", req.Client))
		http.Error(w, "Invalid password", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateToken(req.Client)
	if err != nil {
		logger.Error("[Login] 生成Token失败", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	logger.Info("[Login] 登录成功", logger.String("client", req.Client))

	respondJSON(w, http.StatusOK, map[string]string{
		"token":  token,
		"client": req.Client,
	})
}

// AuthMiddleware is a middleware function that checks for a valid JWT token.
// Nodes started without a password run open and the check is skipped.
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.passwordHash == "" {
			next.ServeHTTP(w, r)
			return
		}

		token := bearerToken(r)
		if token == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		claims, err := auth.ParseToken(token)
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		// 记录调用方，便于排查是哪个机器人发来的请求
		r.Header.Set("X-DJ-Client", claims.Client)

		next.ServeHTTP(w, r)
	}
}
