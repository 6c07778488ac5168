package server

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/gorilla/websocket"

	"Bt1QDJ/core/event"
	"Bt1QDJ/logger"
)

// GatewayMessage WebSocket 消息结构，双向共用：服务端推送引擎事件，
// 客户端上行心跳与语音回报
type GatewayMessage struct {
	Type      string          `json:"type"`
	GuildID   string          `json:"guildId,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// 上行消息类型。下行类型直接使用引擎事件名。
const (
	msgPing      = "ping"
	msgPong      = "pong"
	msgVoice     = "voice"     // 语音播放器回报 finish/error/disconnect
	msgListeners = "listeners" // 语音频道人数变动
)

// Client 一个已鉴权的网关连接。GuildID 为 0 时订阅全部服务器。
type Client struct {
	hub     *EventHub
	conn    *websocket.Conn
	send    chan []byte
	guildID snowflake.ID
	name    string // JWT 中的 client 名
}

// EventHub 把引擎事件广播给所有网关连接
type EventHub struct {
	// guild -> 客户端集合，0 键保存全局订阅者
	guilds map[snowflake.ID]map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan *broadcastMessage

	mu   sync.RWMutex
	done chan struct{}
	once sync.Once
}

type broadcastMessage struct {
	guildID snowflake.ID
	payload []byte
}

// NewEventHub 创建事件网关中心
func NewEventHub() *EventHub {
	return &EventHub{
		guilds:     make(map[snowflake.ID]map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan *broadcastMessage, 256),
		done:       make(chan struct{}),
	}
}

// Run 启动 Hub 主循环
func (h *EventHub) Run() {
	for {
		select {
		case client := <-h.register:
			h.registerClient(client)

		case client := <-h.unregister:
			h.unregisterClient(client)

		case msg := <-h.broadcast:
			h.broadcastEvent(msg)

		case <-h.done:
			h.cleanup()
			return
		}
	}
}

// Stop 停止 Hub
func (h *EventHub) Stop() {
	h.once.Do(func() { close(h.done) })
}

// Register 注册客户端
func (h *EventHub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
	}
}

// Unregister 注销客户端
func (h *EventHub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// BroadcastEvent 把一条引擎事件编码后排入广播队列。队列满时丢弃并告警，
// 绝不阻塞引擎的事件派发。
func (h *EventHub) BroadcastEvent(ev event.Event) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		logger.Warn("事件编码失败",
			logger.String("type", string(ev.Type)),
			logger.ErrorField(err))
		return
	}
	msg := &GatewayMessage{
		Type:      string(ev.Type),
		GuildID:   ev.GuildID.String(),
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		logger.Warn("网关消息编码失败", logger.ErrorField(err))
		return
	}

	select {
	case h.broadcast <- &broadcastMessage{guildID: ev.GuildID, payload: payload}:
	case <-h.done:
	default:
		logger.Warn("网关广播缓冲已满，丢弃事件",
			logger.String("type", string(ev.Type)),
			logger.String("guildID", ev.GuildID.String()))
	}
}

// BroadcastCommand 向某个服务器的订阅者推送播放指令。远程播放进程通过
// 网关接收指令，在本地执行后再把 finish/error 报回来。
func (h *EventHub) BroadcastCommand(guildID snowflake.ID, typ string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode command payload: %w", err)
	}
	msg := &GatewayMessage{
		Type:      typ,
		GuildID:   guildID.String(),
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode command: %w", err)
	}

	select {
	case h.broadcast <- &broadcastMessage{guildID: guildID, payload: raw}:
		return nil
	case <-h.done:
		return fmt.Errorf("event hub stopped")
	default:
		logger.Warn("网关广播缓冲已满，丢弃指令",
			logger.String("type", typ),
			logger.String("guildID", guildID.String()))
		return fmt.Errorf("broadcast buffer full")
	}
}

func (h *EventHub) registerClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.guilds[client.guildID] == nil {
		h.guilds[client.guildID] = make(map[*Client]bool)
	}
	h.guilds[client.guildID][client] = true

	logger.Info("网关客户端接入",
		logger.String("client", client.name),
		logger.String("guildID", client.guildID.String()))
}

func (h *EventHub) unregisterClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.removeClient(client)
}

// removeClient 移除客户端，调用方持有锁
func (h *EventHub) removeClient(client *Client) {
	clients, ok := h.guilds[client.guildID]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.guilds, client.guildID)
	}

	logger.Info("网关客户端断开",
		logger.String("client", client.name),
		logger.String("guildID", client.guildID.String()))
}

// broadcastEvent 发给该服务器的订阅者和全局订阅者
func (h *EventHub) broadcastEvent(msg *broadcastMessage) {
	h.mu.RLock()
	targets := make([]*Client, 0, len(h.guilds[msg.guildID])+len(h.guilds[0]))
	for client := range h.guilds[msg.guildID] {
		targets = append(targets, client)
	}
	if msg.guildID != 0 {
		for client := range h.guilds[0] {
			targets = append(targets, client)
		}
	}
	h.mu.RUnlock()

	for _, client := range targets {
		select {
		case client.send <- msg.payload:
		default:
			// 发送缓冲区满，踢掉慢客户端。直接移除而不是走
			// unregister 通道，那个通道由当前循环自己消费。
			h.mu.Lock()
			h.removeClient(client)
			h.mu.Unlock()
		}
	}
}

func (h *EventHub) cleanup() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, clients := range h.guilds {
		for client := range clients {
			close(client.send)
		}
	}
	h.guilds = make(map[snowflake.ID]map[*Client]bool)
}

// ClientCount 当前连接数
func (h *EventHub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	n := 0
	for _, clients := range h.guilds {
		n += len(clients)
	}
	return n
}
