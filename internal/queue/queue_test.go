package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestQueue_FIFO(t *testing.T) {
	q := New[string]()
	q.Push("a")
	q.Push("b")
	q.Push("c")

	ctx := context.Background()
	for _, want := range []string{"a", "b", "c"} {
		got, err := q.Pop(ctx)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
	require.Zero(t, q.Len())
}

func TestQueue_PushNeverBlocks(t *testing.T) {
	q := New[int]()
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100000; i++ {
			q.Push(i)
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Push blocked without a consumer")
	}
	require.Equal(t, 100000, q.Len())
}

func TestQueue_PopBlocksUntilPush(t *testing.T) {
	q := New[string]()
	got := make(chan string, 1)
	go func() {
		v, err := q.Pop(context.Background())
		if err == nil {
			got <- v
		}
	}()

	select {
	case v := <-got:
		t.Fatalf("Pop returned %q from an empty queue", v)
	case <-time.After(50 * time.Millisecond):
	}

	q.Push("late")
	select {
	case v := <-got:
		require.Equal(t, "late", v)
	case <-time.After(2 * time.Second):
		t.Fatal("Pop did not wake after Push")
	}
}

func TestQueue_PopCancelled(t *testing.T) {
	q := New[string]()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := q.Pop(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestQueue_CancelledPopLeavesItems(t *testing.T) {
	q := New[string]()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := q.Pop(ctx)
	require.Error(t, err)

	q.Push("kept")
	v, err := q.Pop(context.Background())
	require.NoError(t, err)
	require.Equal(t, "kept", v)
}

func TestQueue_PushFront(t *testing.T) {
	q := New[string]()
	q.Push("b")
	q.Push("c")
	q.PushFront("a")

	require.Equal(t, []string{"a", "b", "c"}, q.Drain())
	require.Zero(t, q.Len())
}

func TestQueue_ConcurrentConsumers(t *testing.T) {
	q := New[int]()
	const n = 1000

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var (
		mu   sync.Mutex
		seen = make(map[int]int)
		wg   sync.WaitGroup
	)
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, err := q.Pop(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				seen[v]++
				done := len(seen) == n
				mu.Unlock()
				if done {
					cancel()
				}
			}
		}()
	}

	for i := 0; i < n; i++ {
		q.Push(i)
	}
	wg.Wait()

	require.Len(t, seen, n)
	for v, count := range seen {
		require.Equalf(t, 1, count, "item %d delivered %d times", v, count)
	}
}
