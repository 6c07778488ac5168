package voice

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"Bt1QDJ/model"
)

const (
	guildA   = snowflake.ID(1001)
	channelX = snowflake.ID(2001)
	channelY = snowflake.ID(2002)
)

// recordConn records calls so tests can assert delegation.
type recordConn struct {
	mu     sync.Mutex
	played []string
	volume int
	closed bool
}

func (c *recordConn) Play(_ context.Context, song *model.Song, _ PlayParams) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.played = append(c.played, song.ID)
	return nil
}
func (c *recordConn) Pause() error  { return nil }
func (c *recordConn) Resume() error { return nil }
func (c *recordConn) Stop() error   { return nil }
func (c *recordConn) SetVolume(p int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.volume = p
	return nil
}
func (c *recordConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func TestManagerJoinReusesAndMoves(t *testing.T) {
	m := NewManager()
	defer m.Close()

	s1, err := m.Join(guildA, channelX, &recordConn{})
	if err != nil {
		t.Fatalf("Join() error = %v", err)
	}
	s2, err := m.Join(guildA, channelX, nil)
	if err != nil {
		t.Fatalf("Join() same channel error = %v", err)
	}
	if s1 != s2 {
		t.Error("Join on the same channel must reuse the session")
	}

	s3, err := m.Join(guildA, channelY, nil)
	if err != nil {
		t.Fatalf("Join() new channel error = %v", err)
	}
	if s3 != s1 {
		t.Error("moving channels must keep the session identity")
	}
	if s3.ChannelID() != channelY {
		t.Errorf("ChannelID = %v after move, want %v", s3.ChannelID(), channelY)
	}

	if _, err := m.Join(0, channelX, nil); err == nil {
		t.Error("Join(0) must fail")
	}
}

func TestManagerLeave(t *testing.T) {
	m := NewManager()
	defer m.Close()

	conn := &recordConn{}
	if _, err := m.Join(guildA, channelX, conn); err != nil {
		t.Fatal(err)
	}
	if err := m.Leave(guildA); err != nil {
		t.Fatalf("Leave() error = %v", err)
	}
	if !conn.closed {
		t.Error("Leave must close the connection")
	}
	if _, ok := m.Get(guildA); ok {
		t.Error("session still registered after Leave")
	}
	if err := m.Leave(guildA); !errors.Is(err, model.ErrNoVoiceSession) {
		t.Errorf("second Leave error = %v, want ErrNoVoiceSession", err)
	}
}

func TestSessionDelegation(t *testing.T) {
	m := NewManager()
	defer m.Close()

	conn := &recordConn{}
	s, _ := m.Join(guildA, channelX, conn)

	song := &model.Song{ID: "abc"}
	if err := s.Play(context.Background(), song, PlayParams{Volume: 50}); err != nil {
		t.Fatalf("Play() error = %v", err)
	}
	if err := s.SetVolume(80); err != nil {
		t.Fatalf("SetVolume() error = %v", err)
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	if len(conn.played) != 1 || conn.played[0] != "abc" {
		t.Errorf("played = %v", conn.played)
	}
	if conn.volume != 80 {
		t.Errorf("volume = %d, want 80", conn.volume)
	}
}

func TestSessionListeners(t *testing.T) {
	s := newSession(guildA, channelX, NopConnection{})
	if s.Listeners() != 0 {
		t.Errorf("fresh session listeners = %d", s.Listeners())
	}
	if got := s.SetListeners(3); got != 3 {
		t.Errorf("SetListeners(3) = %d", got)
	}
	if got := s.SetListeners(-1); got != 0 {
		t.Errorf("SetListeners(-1) = %d, want clamped 0", got)
	}
}

func TestDispatchAndDone(t *testing.T) {
	m := NewManager()

	m.Dispatch(Event{Type: EventFinish, GuildID: guildA})
	select {
	case ev := <-m.Events():
		if ev.Type != EventFinish || ev.GuildID != guildA {
			t.Errorf("got %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("event never arrived")
	}

	m.Close()
	select {
	case <-m.Done():
	case <-time.After(time.Second):
		t.Fatal("Done() not closed after Close")
	}
	// 关闭后 Dispatch 必须安全
	m.Dispatch(Event{Type: EventError, GuildID: guildA, Err: errors.New("x")})
}

func TestSessionResolvesGuildID(t *testing.T) {
	s := newSession(guildA, channelX, NopConnection{})
	id, err := model.ResolveGuildID(s)
	if err != nil {
		t.Fatalf("ResolveGuildID(session) error = %v", err)
	}
	if id != guildA {
		t.Errorf("ResolveGuildID = %v, want %v", id, guildA)
	}
}
