package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/research-scraper/internal/scraper"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan scraper.FetchTask, 1)
	errCh := make(chan error, 1)

	go func() {
		task, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- task
	}()

	require.NoError(t, q.Enqueue(context.Background(), scraper.FetchTask{ID: "t1"}))

	select {
	case task := <-result:
		assert.Equal(t, "t1", task.ID)
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for dequeue")
	}
}

func TestQueueDrainsAfterClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.NoError(t, q.Enqueue(context.Background(), scraper.FetchTask{ID: "a"}))
	require.NoError(t, q.Enqueue(context.Background(), scraper.FetchTask{ID: "b"}))
	q.Close()
	q.Close()

	for _, want := range []string{"a", "b"} {
		task, err := q.Dequeue(context.Background())
		require.NoError(t, err)
		assert.Equal(t, want, task.ID)
	}
	_, err := q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestQueueRespectsContext(t *testing.T) {
	t.Parallel()

	q := NewQueue(0)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	require.ErrorIs(t, q.Enqueue(ctx, scraper.FetchTask{ID: "blocked"}), context.DeadlineExceeded)

	canceled, cancelNow := context.WithCancel(context.Background())
	cancelNow()
	_, err := q.Dequeue(canceled)
	require.ErrorIs(t, err, context.Canceled)
}
