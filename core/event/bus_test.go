package event

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/disgoorg/snowflake/v2"
)

const testGuild = snowflake.ID(100)

var errTest = errors.New("playback failed")

func collect(t *testing.T, ch <-chan Event, n int) []Event {
	t.Helper()
	out := make([]Event, 0, n)
	for len(out) < n {
		select {
		case ev := <-ch:
			out = append(out, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out after %d/%d events", len(out), n)
		}
	}
	return out
}

func TestBusDeliversInEmitOrder(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	got := make(chan Event, 16)
	bus.Subscribe(AddSong, func(ev Event) { got <- ev })

	for i := 0; i < 10; i++ {
		bus.Emit(AddSong, testGuild, i)
	}
	events := collect(t, got, 10)
	for i, ev := range events {
		if ev.Data.(int) != i {
			t.Fatalf("events[%d].Data = %v, want %d (out of order)", i, ev.Data, i)
		}
		if ev.GuildID != testGuild {
			t.Errorf("events[%d].GuildID = %v, want %v", i, ev.GuildID, testGuild)
		}
		if ev.Timestamp.IsZero() {
			t.Errorf("events[%d].Timestamp is zero", i)
		}
	}
}

func TestBusSubscribeAllSeesEveryType(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	got := make(chan Event, 16)
	bus.SubscribeAll(func(ev Event) { got <- ev })

	bus.Emit(InitQueue, testGuild, nil)
	bus.Emit(PlaySong, testGuild, nil)
	bus.Emit(DeleteQueue, testGuild, nil)

	events := collect(t, got, 3)
	want := []Type{InitQueue, PlaySong, DeleteQueue}
	for i, ev := range events {
		if ev.Type != want[i] {
			t.Errorf("events[%d].Type = %q, want %q", i, ev.Type, want[i])
		}
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	var fired atomic.Int32
	id := bus.Subscribe(Finish, func(Event) { fired.Add(1) })

	barrier := make(chan Event, 1)
	bus.Subscribe(Empty, func(ev Event) { barrier <- ev })

	bus.Unsubscribe(id)
	bus.Emit(Finish, testGuild, nil)
	// Empty 事件在 Finish 之后派发，收到它说明前一个事件已处理完
	bus.Emit(Empty, testGuild, nil)
	collect(t, barrier, 1)

	if n := fired.Load(); n != 0 {
		t.Errorf("unsubscribed handler fired %d times", n)
	}
}

func TestBusHandlerPanicDoesNotKillDispatch(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	bus.Subscribe(PlaySong, func(Event) { panic("boom") })
	got := make(chan Event, 1)
	bus.Subscribe(PlaySong, func(ev Event) { got <- ev })

	bus.Emit(PlaySong, testGuild, nil)
	collect(t, got, 1)
}

func TestBusCloseDrainsQueuedEvents(t *testing.T) {
	bus := NewBus(64)

	var seen atomic.Int32
	bus.Subscribe(AddSong, func(Event) { seen.Add(1) })

	for i := 0; i < 50; i++ {
		bus.Emit(AddSong, testGuild, i)
	}
	bus.Close()

	if n := seen.Load(); n != 50 {
		t.Errorf("handler saw %d events after Close, want all 50", n)
	}

	// 关闭后的 Emit 必须静默忽略
	bus.Emit(AddSong, testGuild, nil)
	if n := seen.Load(); n != 50 {
		t.Errorf("Emit after Close delivered an event: %d", n)
	}
}

func TestBusHasListener(t *testing.T) {
	bus := NewBus(1)
	defer bus.Close()

	if bus.HasListener(Error) {
		t.Error("HasListener(Error) = true on a fresh bus")
	}
	id := bus.Subscribe(Error, func(Event) {})
	if !bus.HasListener(Error) {
		t.Error("HasListener(Error) = false after Subscribe")
	}
	bus.Unsubscribe(id)
	if bus.HasListener(Error) {
		t.Error("HasListener(Error) = true after Unsubscribe")
	}
	bus.SubscribeAll(func(Event) {})
	if !bus.HasListener(Error) {
		t.Error("HasListener must count SubscribeAll handlers")
	}
}

func TestBusEmitError(t *testing.T) {
	bus := NewBus(16)
	defer bus.Close()

	got := make(chan Event, 1)
	bus.Subscribe(Error, func(ev Event) { got <- ev })

	bus.EmitError(testGuild, snowflake.ID(55), errTest)
	ev := collect(t, got, 1)[0]

	data, ok := ev.Data.(ErrorData)
	if !ok {
		t.Fatalf("Data has type %T, want ErrorData", ev.Data)
	}
	if data.Err != errTest {
		t.Errorf("Err = %v, want sentinel", data.Err)
	}
	if data.Message != errTest.Error() {
		t.Errorf("Message = %q, want %q", data.Message, errTest.Error())
	}
	if data.TextChannelID != 55 {
		t.Errorf("TextChannelID = %v, want 55", data.TextChannelID)
	}

	// nil 错误不应产生事件
	bus.EmitError(testGuild, 0, nil)
	select {
	case ev := <-got:
		t.Errorf("EmitError(nil) produced event %+v", ev)
	case <-time.After(50 * time.Millisecond):
	}
}
