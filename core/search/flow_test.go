package search

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"

	"Bt1QDJ/core/event"
	"Bt1QDJ/model"
)

const (
	guild = snowflake.ID(500)
	user  = snowflake.ID(600)
)

func member() *model.Member {
	return &model.Member{ID: user, GuildID: guild, Username: "tester"}
}

func results(n int) []model.SearchResult {
	out := make([]model.SearchResult, n)
	for i := range out {
		out[i] = model.SearchResult{
			Type: model.SearchResultVideo,
			ID:   string(rune('a' + i)),
			Name: "result",
		}
	}
	return out
}

// collectTypes subscribes to every search event and returns a receiver.
func collectTypes(bus *event.Bus) <-chan event.Event {
	ch := make(chan event.Event, 16)
	for _, t := range []event.Type{
		event.SearchResult, event.SearchDone, event.SearchCancel,
		event.SearchNoResult, event.SearchInvalidAnswer,
	} {
		bus.Subscribe(t, func(ev event.Event) { ch <- ev })
	}
	return ch
}

func next(t *testing.T, ch <-chan event.Event) event.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for search event")
		return event.Event{}
	}
}

// memCooldown is an in-memory Cooldowner double.
type memCooldown struct {
	mu  sync.Mutex
	set map[string]bool
}

func (c *memCooldown) key(g, u snowflake.ID) string { return g.String() + ":" + u.String() }

func (c *memCooldown) SetSearchCooldown(_ context.Context, g, u snowflake.ID, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.set == nil {
		c.set = map[string]bool{}
	}
	c.set[c.key(g, u)] = true
	return nil
}

func (c *memCooldown) SearchCoolingDown(_ context.Context, g, u snowflake.ID) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.set[c.key(g, u)], nil
}

func TestFlowAnswerDone(t *testing.T) {
	bus := event.NewBus(16)
	defer bus.Close()
	ch := collectTypes(bus)
	m := NewManager(bus, nil, time.Minute, time.Minute)

	s, err := m.Begin(context.Background(), guild, member(), "some query", results(3),
		model.PlayOptions{PlayHandlerOptions: model.PlayHandlerOptions{Skip: true}})
	if err != nil {
		t.Fatalf("Begin() error = %v", err)
	}
	ev := next(t, ch)
	if ev.Type != event.SearchResult {
		t.Fatalf("first event = %q, want searchResult", ev.Type)
	}
	data := ev.Data.(event.SearchData)
	if data.FlowID != s.ID || len(data.Results) != 3 || data.Query != "some query" {
		t.Errorf("searchResult data = %+v", data)
	}

	sess, chosen, err := m.Answer(guild, user, "2")
	if err != nil {
		t.Fatalf("Answer() error = %v", err)
	}
	if chosen.ID != "b" {
		t.Errorf("chosen = %+v, want the 2nd result", chosen)
	}
	if !sess.Opts.Skip {
		t.Error("session lost the play options it was started with")
	}
	ev = next(t, ch)
	if ev.Type != event.SearchDone {
		t.Errorf("terminal event = %q, want searchDone", ev.Type)
	}
	if _, ok := m.Active(guild, user); ok {
		t.Error("flow still active after answer")
	}
	// 第二次回答：会话已结束
	if _, _, err := m.Answer(guild, user, "1"); !errors.Is(err, model.ErrNoSearchSession) {
		t.Errorf("Answer() after done error = %v, want ErrNoSearchSession", err)
	}
}

func TestFlowInvalidAnswerTerminates(t *testing.T) {
	bus := event.NewBus(16)
	defer bus.Close()
	ch := collectTypes(bus)
	m := NewManager(bus, nil, time.Minute, time.Minute)

	if _, err := m.Begin(context.Background(), guild, member(), "q", results(2), model.PlayOptions{}); err != nil {
		t.Fatal(err)
	}
	next(t, ch) // searchResult

	tests := []string{"0", "3", "abc", ""}
	for _, bad := range tests {
		if _, err := m.Begin(context.Background(), guild, member(), "q", results(2), model.PlayOptions{}); err != nil {
			t.Fatal(err)
		}
		// 第一轮 Begin 会替换掉外层开启的 flow，先清到本轮的 searchResult
		drainUntil(t, ch, event.SearchResult)

		_, _, err := m.Answer(guild, user, bad)
		if !errors.Is(err, model.ErrInvalidAnswer) {
			t.Errorf("Answer(%q) error = %v, want ErrInvalidAnswer", bad, err)
		}
		ev := drainUntil(t, ch, event.SearchInvalidAnswer)
		if ev.Data.(event.SearchData).Answer != bad {
			t.Errorf("invalid answer payload = %+v", ev.Data)
		}
		// 无效答案终结整个 flow
		if _, ok := m.Active(guild, user); ok {
			t.Error("flow survived an invalid answer")
		}
	}
}

func drainUntil(t *testing.T, ch <-chan event.Event, want event.Type) event.Event {
	t.Helper()
	for i := 0; i < 10; i++ {
		ev := next(t, ch)
		if ev.Type == want {
			return ev
		}
	}
	t.Fatalf("never saw %q", want)
	return event.Event{}
}

func TestFlowCancel(t *testing.T) {
	bus := event.NewBus(16)
	defer bus.Close()
	ch := collectTypes(bus)
	m := NewManager(bus, nil, time.Minute, time.Minute)

	if _, err := m.Begin(context.Background(), guild, member(), "q", results(1), model.PlayOptions{}); err != nil {
		t.Fatal(err)
	}
	next(t, ch) // searchResult

	if err := m.Cancel(guild, user); err != nil {
		t.Fatalf("Cancel() error = %v", err)
	}
	if ev := next(t, ch); ev.Type != event.SearchCancel {
		t.Errorf("terminal event = %q, want searchCancel", ev.Type)
	}
	if err := m.Cancel(guild, user); !errors.Is(err, model.ErrNoSearchSession) {
		t.Errorf("second Cancel error = %v, want ErrNoSearchSession", err)
	}
}

func TestFlowTimeoutCancels(t *testing.T) {
	bus := event.NewBus(16)
	defer bus.Close()
	ch := collectTypes(bus)
	m := NewManager(bus, nil, time.Minute, 30*time.Millisecond)

	if _, err := m.Begin(context.Background(), guild, member(), "q", results(1), model.PlayOptions{}); err != nil {
		t.Fatal(err)
	}
	next(t, ch) // searchResult

	ev := next(t, ch)
	if ev.Type != event.SearchCancel {
		t.Errorf("timeout event = %q, want searchCancel", ev.Type)
	}
	if _, ok := m.Active(guild, user); ok {
		t.Error("flow survived its timeout")
	}
}

func TestFlowCooldown(t *testing.T) {
	bus := event.NewBus(16)
	defer bus.Close()
	ch := collectTypes(bus)
	cd := &memCooldown{}
	m := NewManager(bus, cd, time.Minute, time.Minute)
	ctx := context.Background()

	if _, err := m.Begin(ctx, guild, member(), "q", results(1), model.PlayOptions{}); err != nil {
		t.Fatalf("first Begin() error = %v", err)
	}
	next(t, ch)

	if _, err := m.Begin(ctx, guild, member(), "q2", results(1), model.PlayOptions{}); !errors.Is(err, model.ErrSearchCooldown) {
		t.Errorf("second Begin() error = %v, want ErrSearchCooldown", err)
	}

	// 其他用户不受影响
	other := &model.Member{ID: user + 1, GuildID: guild}
	if _, err := m.Begin(ctx, guild, other, "q3", results(1), model.PlayOptions{}); err != nil {
		t.Errorf("Begin() for other user error = %v", err)
	}
}

func TestFlowNoResult(t *testing.T) {
	bus := event.NewBus(16)
	defer bus.Close()
	ch := collectTypes(bus)
	m := NewManager(bus, nil, time.Minute, time.Minute)

	m.NoResult(guild, member(), "nothing matches this")
	ev := next(t, ch)
	if ev.Type != event.SearchNoResult {
		t.Fatalf("event = %q, want searchNoResult", ev.Type)
	}
	if ev.Data.(event.SearchData).Query != "nothing matches this" {
		t.Errorf("payload = %+v", ev.Data)
	}

	if _, err := m.Begin(context.Background(), guild, member(), "q", nil, model.PlayOptions{}); !errors.Is(err, model.ErrNoResult) {
		t.Errorf("Begin() with no results error = %v, want ErrNoResult", err)
	}
}

func TestFlowReplaceCancelsOld(t *testing.T) {
	bus := event.NewBus(16)
	defer bus.Close()
	ch := collectTypes(bus)
	m := NewManager(bus, nil, time.Minute, time.Minute)
	ctx := context.Background()

	s1, err := m.Begin(ctx, guild, member(), "first", results(1), model.PlayOptions{})
	if err != nil {
		t.Fatal(err)
	}
	next(t, ch) // searchResult for s1

	s2, err := m.Begin(ctx, guild, member(), "second", results(1), model.PlayOptions{})
	if err != nil {
		t.Fatalf("replacing Begin() error = %v", err)
	}

	// 旧 flow 以 searchCancel 收尾，新 flow 发出自己的 searchResult
	ev := next(t, ch)
	if ev.Type != event.SearchCancel || ev.Data.(event.SearchData).FlowID != s1.ID {
		t.Errorf("first event = %+v, want cancel of old flow", ev)
	}
	ev = next(t, ch)
	if ev.Type != event.SearchResult || ev.Data.(event.SearchData).FlowID != s2.ID {
		t.Errorf("second event = %+v, want result of new flow", ev)
	}

	if active, ok := m.Active(guild, user); !ok || active.ID != s2.ID {
		t.Error("new flow not active after replacement")
	}
}
