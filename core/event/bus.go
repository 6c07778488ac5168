package event

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"Bt1QDJ/logger"
)

// DefaultBufferSize is the emit queue depth before Emit starts dropping.
const DefaultBufferSize = 256

// Handler receives one event. Handlers run on the dispatch goroutine, one
// event at a time, so subscribers observe events in emit order; a slow
// handler delays everyone behind it.
type Handler func(Event)

type subscription struct {
	id      uint64
	handler Handler
}

// Bus is the engine's event fan-out. A single dispatcher goroutine drains
// the emit queue and calls handlers, which preserves global ordering across
// all guilds without per-subscriber channels.
type Bus struct {
	mu       sync.RWMutex
	handlers map[Type][]subscription
	all      []subscription

	nextID    atomic.Uint64
	events    chan Event
	done      chan struct{}
	closeOnce sync.Once
	stopped   sync.WaitGroup

	dropped atomic.Uint64
}

// NewBus creates the bus and starts its dispatcher. buffer <= 0 selects
// DefaultBufferSize.
func NewBus(buffer int) *Bus {
	if buffer <= 0 {
		buffer = DefaultBufferSize
	}
	b := &Bus{
		handlers: make(map[Type][]subscription),
		events:   make(chan Event, buffer),
		done:     make(chan struct{}),
	}
	b.stopped.Add(1)
	go b.dispatch()
	return b
}

// Subscribe registers a handler for one event type and returns a token for
// Unsubscribe.
func (b *Bus) Subscribe(t Type, h Handler) uint64 {
	id := b.nextID.Add(1)
	b.mu.Lock()
	b.handlers[t] = append(b.handlers[t], subscription{id: id, handler: h})
	b.mu.Unlock()
	return id
}

// SubscribeAll registers a handler that receives every event, e.g. the
// websocket gateway.
func (b *Bus) SubscribeAll(h Handler) uint64 {
	id := b.nextID.Add(1)
	b.mu.Lock()
	b.all = append(b.all, subscription{id: id, handler: h})
	b.mu.Unlock()
	return id
}

// Unsubscribe removes the handler registered under id. Unknown ids are a
// no-op.
func (b *Bus) Unsubscribe(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for t, subs := range b.handlers {
		b.handlers[t] = removeSub(subs, id)
	}
	b.all = removeSub(b.all, id)
}

func removeSub(subs []subscription, id uint64) []subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i:i], subs[i+1:]...)
		}
	}
	return subs
}

// Emit queues an event. It never blocks the caller: when the buffer is full
// the event is dropped and counted, and when the bus is closed it is a no-op.
func (b *Bus) Emit(t Type, guildID snowflake.ID, data any) {
	ev := Event{Type: t, GuildID: guildID, Timestamp: time.Now(), Data: data}
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.events <- ev:
	default:
		b.dropped.Add(1)
		logger.Warn("事件队列已满，丢弃事件",
			logger.String("type", string(t)),
			logger.String("guildID", guildID.String()),
			logger.Uint64("dropped", b.dropped.Load()))
	}
}

// Dropped reports how many events were lost to a full buffer.
func (b *Bus) Dropped() uint64 {
	return b.dropped.Load()
}

// HasListener reports whether any handler would receive events of type t.
func (b *Bus) HasListener(t Type) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers[t]) > 0 || len(b.all) > 0
}

// Close stops the dispatcher after draining queued events. Emit becomes a
// no-op; handlers registered at close time still see the drained events.
func (b *Bus) Close() {
	b.closeOnce.Do(func() { close(b.done) })
	b.stopped.Wait()
}

func (b *Bus) dispatch() {
	defer b.stopped.Done()
	for {
		select {
		case ev := <-b.events:
			b.deliver(ev)
		case <-b.done:
			// 先清空剩余事件再退出
			for {
				select {
				case ev := <-b.events:
					b.deliver(ev)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) deliver(ev Event) {
	b.mu.RLock()
	subs := make([]subscription, 0, len(b.handlers[ev.Type])+len(b.all))
	subs = append(subs, b.handlers[ev.Type]...)
	subs = append(subs, b.all...)
	b.mu.RUnlock()

	if len(subs) == 0 && ev.Type == Error {
		// 没有任何错误监听者时至少留下日志，错误不能无声消失
		msg := "unhandled engine error"
		if d, ok := ev.Data.(ErrorData); ok {
			msg = d.Message
		}
		logger.Warn("engine error had no listeners",
			logger.String("guildID", ev.GuildID.String()),
			logger.String("error", msg))
		return
	}

	for _, s := range subs {
		b.call(s, ev)
	}
}

func (b *Bus) call(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("事件处理器 panic",
				logger.String("type", string(ev.Type)),
				logger.String("guildID", ev.GuildID.String()),
				logger.Any("panic", r))
		}
	}()
	s.handler(ev)
}

// EmitError is sugar for the common error path: it wraps err into ErrorData
// and emits an Error event.
func (b *Bus) EmitError(guildID snowflake.ID, textChannelID snowflake.ID, err error) {
	if err == nil {
		return
	}
	b.Emit(Error, guildID, ErrorData{
		Err:           err,
		Message:       err.Error(),
		TextChannelID: textChannelID,
	})
}

// String implements fmt.Stringer for debug logging.
func (b *Bus) String() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := len(b.all)
	for _, subs := range b.handlers {
		n += len(subs)
	}
	return fmt.Sprintf("event.Bus{subscribers: %d, dropped: %d}", n, b.dropped.Load())
}
