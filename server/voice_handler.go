package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/disgoorg/snowflake/v2"

	"Bt1QDJ/core/voice"
	"Bt1QDJ/logger"
	"Bt1QDJ/model"
)

// 下行指令类型，远程播放进程在网关上消费
const (
	cmdPlay   = "command:play"
	cmdPause  = "command:pause"
	cmdResume = "command:resume"
	cmdStop   = "command:stop"
	cmdVolume = "command:volume"
	cmdClose  = "command:close"
)

// playCommand 播放指令的数据体
type playCommand struct {
	Song       *model.Song `json:"song"`
	StreamType int         `json:"streamType"`
	Volume     int         `json:"volume"`
	FilterArgs string      `json:"filterArgs,omitempty"`
	Seek       float64     `json:"seek,omitempty"`
}

// gatewayConnection 把播放指令转发给订阅该服务器的网关客户端。
// 真正的推流发生在远程播放进程里，它执行完再把 finish/error 报回来。
type gatewayConnection struct {
	hub     *EventHub
	guildID snowflake.ID
}

func newGatewayConnection(hub *EventHub, guildID snowflake.ID) *gatewayConnection {
	return &gatewayConnection{hub: hub, guildID: guildID}
}

func (c *gatewayConnection) Play(_ context.Context, song *model.Song, params voice.PlayParams) error {
	return c.hub.BroadcastCommand(c.guildID, cmdPlay, playCommand{
		Song:       song,
		StreamType: int(params.StreamType),
		Volume:     params.Volume,
		FilterArgs: params.FilterArgs,
		Seek:       params.Seek,
	})
}

func (c *gatewayConnection) Pause() error {
	return c.hub.BroadcastCommand(c.guildID, cmdPause, nil)
}

func (c *gatewayConnection) Resume() error {
	return c.hub.BroadcastCommand(c.guildID, cmdResume, nil)
}

func (c *gatewayConnection) Stop() error {
	return c.hub.BroadcastCommand(c.guildID, cmdStop, nil)
}

func (c *gatewayConnection) SetVolume(percent int) error {
	return c.hub.BroadcastCommand(c.guildID, cmdVolume, map[string]int{"volume": percent})
}

func (c *gatewayConnection) Close() error {
	return c.hub.BroadcastCommand(c.guildID, cmdClose, nil)
}

// joinRequest 接管一个语音频道
type joinRequest struct {
	ChannelID string `json:"channelId"`
	// Headless 节点不下发指令，播放完全由外部进程自理
	Headless bool `json:"headless,omitempty"`
}

// JoinVoiceHandler 为服务器建立播放会话。之后的播放指令通过网关下发。
func (h *APIHandler) JoinVoiceHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req joinRequest
	if !decodeBody(w, r, &req) {
		return
	}
	channelID, err := snowflake.Parse(req.ChannelID)
	if err != nil {
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid channelId"})
		return
	}

	var conn voice.Connection = newGatewayConnection(h.hub, guildID)
	if req.Headless {
		conn = voice.NopConnection{}
	}

	if err := h.engine.Join(guildID, channelID, conn); err != nil {
		respondError(w, err)
		return
	}

	logger.Info("[Voice] 会话已建立",
		logger.String("guildID", guildID.String()),
		logger.String("channelID", channelID.String()),
		logger.Bool("headless", req.Headless))
	respondJSON(w, http.StatusOK, map[string]string{
		"guildId":   guildID.String(),
		"channelId": channelID.String(),
	})
}

// LeaveVoiceHandler 断开语音会话，队列随之销毁
func (h *APIHandler) LeaveVoiceHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}
	if err := h.engine.Leave(guildID); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}

// voiceEventRequest 远程播放进程的回报，HTTP 版本；网关上行是同一语义
type voiceEventRequest struct {
	Type  string `json:"type"` // finish / error / disconnect
	Error string `json:"error,omitempty"`
}

// VoiceEventHandler 接收播放生命周期回报并驱动队列
func (h *APIHandler) VoiceEventHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req voiceEventRequest
	if !decodeBody(w, r, &req) {
		return
	}

	ev := voice.Event{Type: voice.EventType(req.Type), GuildID: guildID}
	switch ev.Type {
	case voice.EventFinish, voice.EventDisconnect:
	case voice.EventError:
		if req.Error != "" {
			ev.Err = errors.New(req.Error)
		}
	default:
		respondJSON(w, http.StatusBadRequest, map[string]string{"error": "unknown event type"})
		return
	}

	h.engine.DispatchVoice(ev)
	respondJSON(w, http.StatusAccepted, nil)
}

// listenersRequest 频道内听众数（不含机器人）
type listenersRequest struct {
	Count int `json:"count"`
}

// ListenersHandler 上报听众数，触发或取消空频道倒计时
func (h *APIHandler) ListenersHandler(w http.ResponseWriter, r *http.Request) {
	guildID, err := guildFromRequest(r)
	if err != nil {
		respondError(w, err)
		return
	}

	var req listenersRequest
	if !decodeBody(w, r, &req) {
		return
	}

	if err := h.engine.VoiceStateUpdate(r.Context(), guildID, req.Count); err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusNoContent, nil)
}
