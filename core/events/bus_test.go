package events

import (
	"testing"

	"github.com/stretchr/testify/require"
)

type testEvent string

func (e testEvent) EventType() string { return string(e) }

func TestBusDeliversToAllSubscribers(t *testing.T) {
	bus := NewBus()
	first, cancelFirst := bus.Subscribe(4)
	defer cancelFirst()
	second, cancelSecond := bus.Subscribe(4)
	defer cancelSecond()

	bus.Emit(testEvent("tipping.tip.sent"))

	require.Equal(t, "tipping.tip.sent", (<-first).EventType())
	require.Equal(t, "tipping.tip.sent", (<-second).EventType())
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	cancel()
	cancel()
	_, ok := <-ch
	require.False(t, ok)
	bus.Emit(testEvent("after-cancel"))
}

func TestBusDropsWhenSubscriberFull(t *testing.T) {
	bus := NewBus()
	ch, cancel := bus.Subscribe(1)
	defer cancel()
	bus.Emit(testEvent("a"))
	bus.Emit(testEvent("b"))
	require.Equal(t, "a", (<-ch).EventType())
	select {
	case evt := <-ch:
		t.Fatalf("unexpected event %v", evt)
	default:
	}
}

func TestCollectorKeepsOrder(t *testing.T) {
	var c Collector
	c.Emit(testEvent("one"))
	c.Emit(nil)
	c.Emit(testEvent("two"))
	evts := c.Events()
	require.Len(t, evts, 2)
	require.Equal(t, "two", evts[1].EventType())
}

func TestBusSubscribersCount(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe(1)
	require.Equal(t, 1, bus.Subscribers())
	cancel()
	require.Zero(t, bus.Subscribers())
}
