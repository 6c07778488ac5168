package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"Bt1QDJ/core/event"
	"Bt1QDJ/logger"
	"Bt1QDJ/model"
)

// Store is the persistence hook for queue snapshots. The cache package
// provides the redis implementation; a nil Store turns persistence off.
type Store interface {
	SaveQueue(ctx context.Context, snap *model.QueueSnapshot) error
	LoadQueue(ctx context.Context, guildID snowflake.ID) (*model.QueueSnapshot, error)
	DeleteQueue(ctx context.Context, guildID snowflake.ID) error
	ListQueues(ctx context.Context) ([]snowflake.ID, error)
}

// Manager owns every guild queue, emits their lifecycle events and mirrors
// state into the Store.
type Manager struct {
	bus   *event.Bus
	store Store

	mu           sync.RWMutex
	queues       map[snowflake.ID]*Queue
	emptyTimers  map[snowflake.ID]*time.Timer
	savePrevious bool
}

// NewManager wires the manager to the engine bus. savePrevious comes from
// the defaulted engine options.
func NewManager(bus *event.Bus, store Store, savePrevious bool) *Manager {
	return &Manager{
		bus:          bus,
		store:        store,
		queues:       make(map[snowflake.ID]*Queue),
		emptyTimers:  make(map[snowflake.ID]*time.Timer),
		savePrevious: savePrevious,
	}
}

// Create makes the guild queue and emits initQueue before any add/play event
// can reference it. Creating twice is an error.
func (m *Manager) Create(ctx context.Context, guildID snowflake.ID) (*Queue, error) {
	if guildID == 0 {
		return nil, fmt.Errorf("%w: zero guild id", model.ErrCannotResolveGuildID)
	}

	m.mu.Lock()
	if _, exists := m.queues[guildID]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("%w: guild %s", model.ErrQueueExists, guildID)
	}
	q := newQueue(guildID, m.savePrevious)
	m.queues[guildID] = q
	m.mu.Unlock()

	m.bus.Emit(event.InitQueue, guildID, event.QueueData{Queue: q.Snapshot()})
	m.Persist(ctx, q)
	logger.Info("创建播放队列", logger.String("guildID", guildID.String()))
	return q, nil
}

// GetOrCreate returns the existing queue or creates one, reporting which.
func (m *Manager) GetOrCreate(ctx context.Context, guildID snowflake.ID) (*Queue, bool, error) {
	m.mu.RLock()
	q, ok := m.queues[guildID]
	m.mu.RUnlock()
	if ok {
		return q, false, nil
	}
	q, err := m.Create(ctx, guildID)
	if err != nil {
		return nil, false, err
	}
	return q, true, nil
}

// Get fails with ErrNoQueue for unknown guilds.
func (m *Manager) Get(guildID snowflake.ID) (*Queue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q, ok := m.queues[guildID]
	if !ok {
		return nil, fmt.Errorf("%w: guild %s", model.ErrNoQueue, guildID)
	}
	return q, nil
}

func (m *Manager) Has(guildID snowflake.ID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.queues[guildID]
	return ok
}

// All returns the live queues, order unspecified.
func (m *Manager) All() []*Queue {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Queue, 0, len(m.queues))
	for _, q := range m.queues {
		out = append(out, q)
	}
	return out
}

// Delete removes the queue, cancels its timers, clears stored state and
// emits deleteQueue as the queue's final event.
func (m *Manager) Delete(ctx context.Context, guildID snowflake.ID) error {
	m.mu.Lock()
	q, ok := m.queues[guildID]
	delete(m.queues, guildID)
	if t, hasTimer := m.emptyTimers[guildID]; hasTimer {
		t.Stop()
		delete(m.emptyTimers, guildID)
	}
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: guild %s", model.ErrNoQueue, guildID)
	}

	if m.store != nil {
		if err := m.store.DeleteQueue(ctx, guildID); err != nil {
			logger.Warn("清除队列缓存失败",
				logger.String("guildID", guildID.String()),
				logger.ErrorField(err))
		}
	}
	m.bus.Emit(event.DeleteQueue, guildID, event.QueueData{Queue: q.Snapshot()})
	logger.Info("销毁播放队列", logger.String("guildID", guildID.String()))
	return nil
}

// Persist mirrors the queue into the store; failures are logged, never
// surfaced, playback must not depend on redis health.
func (m *Manager) Persist(ctx context.Context, q *Queue) {
	if m.store == nil || q == nil {
		return
	}
	if err := m.store.SaveQueue(ctx, q.Snapshot()); err != nil {
		logger.Warn("队列快照写入失败",
			logger.String("guildID", q.guildID.String()),
			logger.ErrorField(err))
	}
}

// Restore recreates queues from stored snapshots at boot. Restored queues
// come back paused; no events are emitted for them.
func (m *Manager) Restore(ctx context.Context) (int, error) {
	if m.store == nil {
		return 0, nil
	}
	ids, err := m.store.ListQueues(ctx)
	if err != nil {
		return 0, fmt.Errorf("list stored queues: %w", err)
	}

	restored := 0
	for _, id := range ids {
		snap, err := m.store.LoadQueue(ctx, id)
		if err != nil {
			logger.Warn("读取队列快照失败",
				logger.String("guildID", id.String()),
				logger.ErrorField(err))
			continue
		}
		if snap == nil || len(snap.Songs) == 0 {
			continue
		}
		q := newQueue(id, m.savePrevious)
		q.restore(snap)

		m.mu.Lock()
		if _, exists := m.queues[id]; !exists {
			m.queues[id] = q
			restored++
		}
		m.mu.Unlock()
	}
	if restored > 0 {
		logger.Info("恢复播放队列", logger.Int("count", restored))
	}
	return restored, nil
}

// ScheduleEmpty arms the guild's empty-channel timer, replacing any armed
// one. fn runs once on expiry, off the manager lock.
func (m *Manager) ScheduleEmpty(guildID snowflake.ID, d time.Duration, fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t, ok := m.emptyTimers[guildID]; ok {
		t.Stop()
	}
	m.emptyTimers[guildID] = time.AfterFunc(d, func() {
		m.mu.Lock()
		delete(m.emptyTimers, guildID)
		m.mu.Unlock()
		fn()
	})
}

// CancelEmpty disarms the guild's empty timer, if armed.
func (m *Manager) CancelEmpty(guildID snowflake.ID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if t, ok := m.emptyTimers[guildID]; ok {
		t.Stop()
		delete(m.emptyTimers, guildID)
	}
}

// Close cancels all timers. Queues are left in place for a final persist by
// the engine's shutdown path.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, t := range m.emptyTimers {
		t.Stop()
		delete(m.emptyTimers, id)
	}
}
