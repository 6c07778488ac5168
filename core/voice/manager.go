package voice

import (
	"fmt"
	"sync"

	"github.com/disgoorg/snowflake/v2"

	"Bt1QDJ/logger"
	"Bt1QDJ/model"
)

// eventBuffer bounds the merged voice event feed.
const eventBuffer = 64

// Manager is the per-guild session registry plus the merged event feed the
// engine consumes.
type Manager struct {
	mu       sync.RWMutex
	sessions map[snowflake.ID]*Session

	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
}

func NewManager() *Manager {
	return &Manager{
		sessions: make(map[snowflake.ID]*Session),
		events:   make(chan Event, eventBuffer),
		done:     make(chan struct{}),
	}
}

// Join creates or moves the guild session. An existing session on the same
// channel is returned as-is; a different channel moves the session (the
// caller enforces the JoinNewVoiceChannel option before calling).
func (m *Manager) Join(guildID, channelID snowflake.ID, conn Connection) (*Session, error) {
	if guildID == 0 {
		return nil, fmt.Errorf("%w: zero guild id", model.ErrCannotResolveGuildID)
	}
	if conn == nil {
		conn = NopConnection{}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[guildID]; ok {
		if s.ChannelID() != channelID {
			s.move(channelID, conn)
			logger.Info("语音会话移动频道",
				logger.String("guildID", guildID.String()),
				logger.String("channelID", channelID.String()))
		}
		return s, nil
	}

	s := newSession(guildID, channelID, conn)
	m.sessions[guildID] = s
	logger.Info("语音会话建立",
		logger.String("guildID", guildID.String()),
		logger.String("channelID", channelID.String()))
	return s, nil
}

// Get returns the guild session if one exists.
func (m *Manager) Get(guildID snowflake.ID) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[guildID]
	return s, ok
}

// Leave closes and removes the guild session. It does not dispatch
// EventDisconnect: deliberate leaves are quiet, only surprise disconnects
// reported by the frontend go through Dispatch.
func (m *Manager) Leave(guildID snowflake.ID) error {
	m.mu.Lock()
	s, ok := m.sessions[guildID]
	delete(m.sessions, guildID)
	m.mu.Unlock()

	if !ok {
		return model.ErrNoVoiceSession
	}
	if err := s.close(); err != nil {
		return fmt.Errorf("close voice connection: %w", err)
	}
	return nil
}

// Dispatch feeds a voice event into the merged stream. Frontends call it
// when a track finishes, errors out, or the session drops. Full buffer drops
// the event with a log instead of blocking the frontend.
func (m *Manager) Dispatch(ev Event) {
	select {
	case <-m.done:
		return
	default:
	}
	select {
	case m.events <- ev:
	default:
		logger.Warn("语音事件缓冲已满，丢弃事件",
			logger.String("type", string(ev.Type)),
			logger.String("guildID", ev.GuildID.String()))
	}
}

// Events is the merged feed; the engine owns the single consumer. The
// channel stays open after Close; consumers select on Done to exit.
func (m *Manager) Events() <-chan Event {
	return m.events
}

// Done closes when the manager shuts down.
func (m *Manager) Done() <-chan struct{} {
	return m.done
}

// Close tears down every session and stops the feed.
func (m *Manager) Close() {
	m.closeOnce.Do(func() {
		close(m.done)
		m.mu.Lock()
		sessions := m.sessions
		m.sessions = make(map[snowflake.ID]*Session)
		m.mu.Unlock()
		for id, s := range sessions {
			if err := s.close(); err != nil {
				logger.Warn("关闭语音会话失败",
					logger.String("guildID", id.String()),
					logger.ErrorField(err))
			}
		}
	})
}
