// Package search runs interactive search flows: the engine offers numbered
// choices, the user answers within a window, and exactly one terminal event
// (searchDone, searchCancel or searchInvalidAnswer) closes each flow.
package search

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"
	"github.com/google/uuid"

	"Bt1QDJ/core/event"
	"Bt1QDJ/logger"
	"Bt1QDJ/model"
)

// DefaultAnswerTimeout is how long a flow waits for an answer before it
// cancels itself.
const DefaultAnswerTimeout = 60 * time.Second

// Cooldowner throttles searches per user; the cache package implements it on
// redis. nil disables throttling.
type Cooldowner interface {
	SetSearchCooldown(ctx context.Context, guildID, userID snowflake.ID, d time.Duration) error
	SearchCoolingDown(ctx context.Context, guildID, userID snowflake.ID) (bool, error)
}

// Session is one pending search flow. Opts is the play request that started
// the flow; answering resumes it with the chosen result.
type Session struct {
	ID      string
	GuildID snowflake.ID
	Member  *model.Member
	Query   string
	Results []model.SearchResult
	Opts    model.PlayOptions
	Started time.Time

	timer *time.Timer
}

type userKey struct {
	guild snowflake.ID
	user  snowflake.ID
}

// Manager tracks at most one flow per guild member.
type Manager struct {
	bus       *event.Bus
	cooldowns Cooldowner
	cooldown  time.Duration
	timeout   time.Duration

	mu     sync.Mutex
	byUser map[userKey]*Session
}

// NewManager wires the flow manager. cooldown comes from the defaulted
// engine options; timeout <= 0 selects DefaultAnswerTimeout.
func NewManager(bus *event.Bus, cooldowns Cooldowner, cooldown, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultAnswerTimeout
	}
	return &Manager{
		bus:       bus,
		cooldowns: cooldowns,
		cooldown:  cooldown,
		timeout:   timeout,
		byUser:    make(map[userKey]*Session),
	}
}

// NoResult reports a query that matched nothing. No session is created; the
// event is the whole flow.
func (m *Manager) NoResult(guildID snowflake.ID, member *model.Member, query string) {
	m.bus.Emit(event.SearchNoResult, guildID, event.SearchData{
		Query:  query,
		Member: member,
	})
}

// Begin opens a flow offering results and emits searchResult. A flow already
// pending for the same member is cancelled first; a cooling-down member gets
// ErrSearchCooldown.
func (m *Manager) Begin(ctx context.Context, guildID snowflake.ID, member *model.Member, query string, results []model.SearchResult, opts model.PlayOptions) (*Session, error) {
	if member == nil {
		return nil, fmt.Errorf("%w: search flow needs a member", model.ErrNoSearchSession)
	}
	if len(results) == 0 {
		return nil, model.ErrNoResult
	}

	if m.cooldowns != nil {
		cooling, err := m.cooldowns.SearchCoolingDown(ctx, guildID, member.ID)
		if err != nil {
			logger.Warn("搜索冷却状态查询失败", logger.ErrorField(err))
		} else if cooling {
			return nil, fmt.Errorf("%w: user %s", model.ErrSearchCooldown, member.ID)
		}
	}

	key := userKey{guild: guildID, user: member.ID}
	s := &Session{
		ID:      uuid.NewString(),
		GuildID: guildID,
		Member:  member,
		Query:   query,
		Results: results,
		Opts:    opts,
		Started: time.Now(),
	}

	m.mu.Lock()
	if old, ok := m.byUser[key]; ok {
		m.endLocked(old)
		m.emitCancel(old)
	}
	m.byUser[key] = s
	s.timer = time.AfterFunc(m.timeout, func() { m.expire(key, s.ID) })
	m.mu.Unlock()

	if m.cooldowns != nil {
		if err := m.cooldowns.SetSearchCooldown(ctx, guildID, member.ID, m.cooldown); err != nil {
			logger.Warn("搜索冷却写入失败", logger.ErrorField(err))
		}
	}

	m.bus.Emit(event.SearchResult, guildID, event.SearchData{
		FlowID:  s.ID,
		Query:   query,
		Member:  member,
		Results: results,
	})
	return s, nil
}

// Answer resolves the member's pending flow. A 1-based integer inside the
// offered range closes it with searchDone and returns the closed session
// plus the chosen result; anything else closes it with searchInvalidAnswer
// and ErrInvalidAnswer.
func (m *Manager) Answer(guildID, userID snowflake.ID, answer string) (*Session, *model.SearchResult, error) {
	key := userKey{guild: guildID, user: userID}

	m.mu.Lock()
	s, ok := m.byUser[key]
	if ok {
		m.endLocked(s)
	}
	m.mu.Unlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: user %s", model.ErrNoSearchSession, userID)
	}

	n, err := strconv.Atoi(answer)
	if err != nil || n < 1 || n > len(s.Results) {
		m.bus.Emit(event.SearchInvalidAnswer, guildID, event.SearchData{
			FlowID: s.ID,
			Query:  s.Query,
			Member: s.Member,
			Answer: answer,
		})
		return s, nil, fmt.Errorf("%w: %q (1-%d)", model.ErrInvalidAnswer, answer, len(s.Results))
	}

	chosen := s.Results[n-1]
	m.bus.Emit(event.SearchDone, guildID, event.SearchData{
		FlowID: s.ID,
		Query:  s.Query,
		Member: s.Member,
		Answer: answer,
	})
	return s, &chosen, nil
}

// Cancel closes the member's pending flow with searchCancel.
func (m *Manager) Cancel(guildID, userID snowflake.ID) error {
	key := userKey{guild: guildID, user: userID}

	m.mu.Lock()
	s, ok := m.byUser[key]
	if ok {
		m.endLocked(s)
	}
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: user %s", model.ErrNoSearchSession, userID)
	}
	m.emitCancel(s)
	return nil
}

// Active returns the member's pending flow, if any.
func (m *Manager) Active(guildID, userID snowflake.ID) (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.byUser[userKey{guild: guildID, user: userID}]
	return s, ok
}

// Close drops all pending flows without events; used at shutdown when the
// bus is about to stop anyway.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, s := range m.byUser {
		if s.timer != nil {
			s.timer.Stop()
		}
		delete(m.byUser, key)
	}
}

// expire is the timer path: still-pending flows cancel with the same event a
// user cancel produces.
func (m *Manager) expire(key userKey, flowID string) {
	m.mu.Lock()
	s, ok := m.byUser[key]
	if !ok || s.ID != flowID {
		// 已被回答或取消，timer 晚到
		m.mu.Unlock()
		return
	}
	delete(m.byUser, key)
	m.mu.Unlock()
	m.emitCancel(s)
}

// endLocked removes s from the index and stops its timer; callers hold mu.
func (m *Manager) endLocked(s *Session) {
	delete(m.byUser, userKey{guild: s.GuildID, user: s.Member.ID})
	if s.timer != nil {
		s.timer.Stop()
	}
}

func (m *Manager) emitCancel(s *Session) {
	m.bus.Emit(event.SearchCancel, s.GuildID, event.SearchData{
		FlowID: s.ID,
		Query:  s.Query,
		Member: s.Member,
	})
}
