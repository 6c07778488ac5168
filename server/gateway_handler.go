package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"

	"Bt1QDJ/core/auth"
	"Bt1QDJ/core/voice"
	"Bt1QDJ/logger"
	"Bt1QDJ/model"
)

const (
	gatewayWriteWait  = 10 * time.Second
	gatewayPongWait   = 60 * time.Second
	gatewayPingPeriod = 30 * time.Second
	gatewayReadLimit  = 4096
)

var gatewayUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// voicePayload 上行语音回报的数据体
type voicePayload struct {
	Type  string `json:"type"`
	Error string `json:"error,omitempty"`
}

// listenersPayload 上行听众人数的数据体
type listenersPayload struct {
	Count int `json:"count"`
}

// GatewayHandler 升级到 WebSocket 并接入事件网关。
// 浏览器无法通过 header 传 token，从查询参数取；guild 为空订阅全部。
func (h *APIHandler) GatewayHandler(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		// 同样接受标准 Bearer 头，方便非浏览器客户端
		token = bearerToken(r)
	}
	claims, err := h.authorizeGateway(token)
	if err != nil {
		http.Error(w, "Invalid token", http.StatusUnauthorized)
		return
	}

	var guildID snowflake.ID
	if raw := r.URL.Query().Get("guild"); raw != "" {
		guildID, err = snowflake.Parse(raw)
		if err != nil {
			http.Error(w, "Invalid guild id", http.StatusBadRequest)
			return
		}
	}

	conn, err := gatewayUpgrader.Upgrade(w, r, nil)
	if err != nil {
		logger.Warn("网关升级失败", logger.ErrorField(err))
		return
	}

	client := &Client{
		hub:     h.hub,
		conn:    conn,
		send:    make(chan []byte, 64),
		guildID: guildID,
		name:    claims.Client,
	}
	h.hub.Register(client)

	go client.writePump()
	go client.readPump(h)
}

// authorizeGateway 校验网关 token。未配置口令的节点跳过鉴权。
func (h *APIHandler) authorizeGateway(token string) (*auth.Claims, error) {
	if h.cfg.NodePassword == "" {
		return &auth.Claims{Client: "anonymous"}, nil
	}
	if token == "" {
		return nil, errors.New("missing token")
	}
	return auth.ParseToken(token)
}

// readPump 消费上行消息：心跳、语音回报、听众人数
func (c *Client) readPump(h *APIHandler) {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(gatewayReadLimit)
	c.conn.SetReadDeadline(time.Now().Add(gatewayPongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(gatewayPongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Warn("网关读取错误",
					logger.String("client", c.name),
					logger.ErrorField(err))
			}
			return
		}

		var msg GatewayMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn("网关消息格式错误",
				logger.String("client", c.name),
				logger.ErrorField(err))
			continue
		}
		c.handleInbound(h, &msg)
	}
}

// handleInbound 处理一条上行消息
func (c *Client) handleInbound(h *APIHandler, msg *GatewayMessage) {
	switch msg.Type {
	case msgPing:
		pong := &GatewayMessage{Type: msgPong, Timestamp: time.Now().UnixMilli()}
		if data, err := json.Marshal(pong); err == nil {
			select {
			case c.send <- data:
			default:
			}
		}

	case msgVoice:
		guildID, ok := c.inboundGuild(msg)
		if !ok {
			return
		}
		var p voicePayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			logger.Warn("语音回报数据无效", logger.ErrorField(err))
			return
		}
		ev := voice.Event{Type: voice.EventType(p.Type), GuildID: guildID}
		if p.Error != "" {
			ev.Err = errors.New(p.Error)
		}
		h.engine.DispatchVoice(ev)

	case msgListeners:
		guildID, ok := c.inboundGuild(msg)
		if !ok {
			return
		}
		var p listenersPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			logger.Warn("听众人数数据无效", logger.ErrorField(err))
			return
		}
		if err := h.engine.VoiceStateUpdate(context.Background(), guildID, p.Count); err != nil &&
			!errors.Is(err, model.ErrNoVoiceSession) {
			logger.Warn("处理听众人数失败",
				logger.String("guildID", guildID.String()),
				logger.ErrorField(err))
		}

	default:
		logger.Warn("未知网关消息类型",
			logger.String("client", c.name),
			logger.String("type", msg.Type))
	}
}

// inboundGuild 上行消息的目标服务器：消息自带的优先，否则用订阅的
func (c *Client) inboundGuild(msg *GatewayMessage) (snowflake.ID, bool) {
	if msg.GuildID != "" {
		id, err := snowflake.Parse(msg.GuildID)
		if err != nil {
			logger.Warn("上行消息 guildId 无效",
				logger.String("client", c.name),
				logger.String("guildId", msg.GuildID))
			return 0, false
		}
		return id, true
	}
	if c.guildID != 0 {
		return c.guildID, true
	}
	logger.Warn("上行消息缺少 guildId", logger.String("client", c.name))
	return 0, false
}

// writePump 下行写循环，定期 ping 保活
func (c *Client) writePump() {
	ticker := time.NewTicker(gatewayPingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(gatewayWriteWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			// 合并发送队列中积压的消息
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(gatewayWriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
