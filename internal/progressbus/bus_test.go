package progressbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestListenReceivesConnectedEventFirst(t *testing.T) {
	b := New(time.Minute)
	go func() {
		b.Emit("task-1", Event{Type: "progress", Current: 1, Total: 2})
		b.Emit("task-1", Event{Type: "done", Status: StatusCompleted})
	}()

	var got []Event
	err := b.Listen(context.Background(), "task-1", func(e Event) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "connected", got[0].Type)
	require.Equal(t, "progress", got[1].Type)
	require.True(t, got[2].Status.Terminal())
}

func TestListenStopsOnTerminalEvent(t *testing.T) {
	b := New(time.Minute)
	b.Emit("task-2", Event{Type: "done", Status: StatusFailed, Error: "boom"})

	var got []Event
	err := b.Listen(context.Background(), "task-2", func(e Event) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "boom", got[len(got)-1].Error)
}

func TestListenStopsOnContextCancel(t *testing.T) {
	b := New(time.Minute)
	ctx, cancel := context.WithCancel(context.Background())

	count := 0
	err := b.Listen(ctx, "task-3", func(e Event) error {
		count++
		if count == 1 {
			cancel()
		}
		return nil
	})
	require.Error(t, err)
}

func TestEmitBeforeListenIsNotLost(t *testing.T) {
	b := New(time.Minute)
	b.Emit("task-4", Event{Type: "progress", Current: 1, Total: 1})
	b.Emit("task-4", Event{Type: "done", Status: StatusCompleted})

	var got []Event
	err := b.Listen(context.Background(), "task-4", func(e Event) error {
		got = append(got, e)
		return nil
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestCleanupDiscardsStreamAfterListen(t *testing.T) {
	b := New(time.Minute)
	b.Emit("task-5", Event{Type: "done", Status: StatusCompleted})
	require.NoError(t, b.Listen(context.Background(), "task-5", func(Event) error { return nil }))

	b.mu.Lock()
	_, exists := b.tasks["task-5"]
	b.mu.Unlock()
	require.False(t, exists)
}
