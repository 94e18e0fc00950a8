package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/research-scraper/internal/scraper"
)

func TestPublisherStoresMessages(t *testing.T) {
	t.Parallel()

	pub := New()
	id1, err := pub.Publish(context.Background(), "results", scraper.TaskResult{ID: "t1", Status: scraper.StatusOK})
	require.NoError(t, err)
	assert.Equal(t, "memory-1", id1)
	id2, err := pub.Publish(context.Background(), "results", scraper.TaskResult{ID: "t2", Status: scraper.StatusTimeout})
	require.NoError(t, err)
	assert.Equal(t, "memory-2", id2)

	msgs := pub.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "t2", msgs[1].Payload.(scraper.TaskResult).ID)

	msgs[0].Topic = "modified"
	assert.Equal(t, "results", pub.Messages()[0].Topic)
}

func TestPublisherFailures(t *testing.T) {
	t.Parallel()

	pub := New()
	boom := errors.New("topic gone")
	pub.FailWith(boom)
	_, err := pub.Publish(context.Background(), "results", "payload")
	require.ErrorIs(t, err, boom)

	pub.FailWith(nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = pub.Publish(ctx, "results", "payload")
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, pub.Messages())
}
