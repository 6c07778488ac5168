package voice

import (
	"context"
	"sync"

	"github.com/disgoorg/snowflake/v2"

	"Bt1QDJ/model"
)

// Session is the live voice state of one guild.
type Session struct {
	guildID snowflake.ID

	mu        sync.RWMutex
	channelID snowflake.ID
	conn      Connection
	listeners int
	closed    bool
}

func newSession(guildID, channelID snowflake.ID, conn Connection) *Session {
	return &Session{
		guildID:   guildID,
		channelID: channelID,
		conn:      conn,
	}
}

func (s *Session) ResolveGuildID() snowflake.ID {
	if s == nil {
		return 0
	}
	return s.guildID
}

// ChannelID is the voice channel this session currently occupies.
func (s *Session) ChannelID() snowflake.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.channelID
}

// Listeners is the last reported count of non-bot users in the channel.
func (s *Session) Listeners() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listeners
}

// SetListeners records a listener count reported by the frontend and returns
// it, so callers can react to empty/occupied transitions.
func (s *Session) SetListeners(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if n < 0 {
		n = 0
	}
	s.listeners = n
	return n
}

// move rebinds the session to another channel, keeping the connection when
// the frontend reuses it.
func (s *Session) move(channelID snowflake.ID, conn Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channelID = channelID
	if conn != nil {
		s.conn = conn
	}
}

func (s *Session) connection() (Connection, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed || s.conn == nil {
		return nil, false
	}
	return s.conn, true
}

// Play starts a song on the underlying connection.
func (s *Session) Play(ctx context.Context, song *model.Song, params PlayParams) error {
	conn, ok := s.connection()
	if !ok {
		return model.ErrNoVoiceSession
	}
	return conn.Play(ctx, song, params)
}

func (s *Session) Pause() error {
	conn, ok := s.connection()
	if !ok {
		return model.ErrNoVoiceSession
	}
	return conn.Pause()
}

func (s *Session) Resume() error {
	conn, ok := s.connection()
	if !ok {
		return model.ErrNoVoiceSession
	}
	return conn.Resume()
}

func (s *Session) Stop() error {
	conn, ok := s.connection()
	if !ok {
		return model.ErrNoVoiceSession
	}
	return conn.Stop()
}

func (s *Session) SetVolume(percent int) error {
	conn, ok := s.connection()
	if !ok {
		return model.ErrNoVoiceSession
	}
	return conn.SetVolume(percent)
}

// close tears the connection down once; later calls are no-ops.
func (s *Session) close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close()
}
