package queue

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) (*Queue, string) {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	name := "test:" + uuid.NewString()
	t.Cleanup(func() {
		_ = client.Del(context.Background(), name).Err()
		_ = client.Close()
	})
	return NewQueue(client, nil), name
}

func TestQueue_EnqueueDequeue(t *testing.T) {
	q, name := newTestQueue(t)
	ctx := context.Background()

	sent, err := q.Enqueue(ctx, name, JobTypeConferenceConfirmation, ConferenceConfirmationPayload{RecipientEmail: "a@example.com"})
	require.NoError(t, err)
	n, err := q.Len(ctx, name)
	require.NoError(t, err)
	assert.EqualValues(t, 1, n)

	got, err := q.Dequeue(ctx, name)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, sent.ID, got.ID)
	assert.Equal(t, name, got.Queue)
	assert.JSONEq(t, `{"recipient_email":"a@example.com","conference_info":""}`, string(got.Payload))
}

func TestQueue_RetryMovesToDLQ(t *testing.T) {
	q, name := newTestQueue(t)
	ctx := context.Background()

	job, err := q.Enqueue(ctx, name, JobTypeConferenceConfirmation, ConferenceConfirmationPayload{})
	require.NoError(t, err)
	_, err = q.Dequeue(ctx, name)
	require.NoError(t, err)

	dlqBefore, err := q.Len(ctx, QueueDLQ)
	require.NoError(t, err)
	for i := 1; i < MaxRetries; i++ {
		require.NoError(t, q.Retry(ctx, job))
		n, _ := q.Len(ctx, name)
		assert.EqualValues(t, 1, n)
		_, err = q.Dequeue(ctx, name)
		require.NoError(t, err)
	}
	require.NoError(t, q.Retry(ctx, job))
	n, _ := q.Len(ctx, name)
	assert.EqualValues(t, 0, n)
	dlqAfter, _ := q.Len(ctx, QueueDLQ)
	assert.Equal(t, dlqBefore+1, dlqAfter)
}
