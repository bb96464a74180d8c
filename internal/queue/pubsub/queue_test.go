package pubsub

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
)

func newTestClient(t *testing.T) *pubsub.Client {
	t.Helper()
	ctx := context.Background()

	srv := pstest.NewServer()
	t.Cleanup(func() { _ = srv.Close() })

	conn, err := grpc.Dial(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	topic, err := client.CreateTopic(ctx, "sync-jobs")
	require.NoError(t, err)
	_, err = client.CreateSubscription(ctx, "sync-workers", pubsub.SubscriptionConfig{Topic: topic})
	require.NoError(t, err)
	return client
}

func TestQueueRoundTrip(t *testing.T) {
	client := newTestClient(t)
	q, err := New(client, "sync-jobs", "sync-workers", 1, zap.NewNop())
	require.NoError(t, err)
	defer q.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	payload := capture.JobPayload{
		SyncID:        "sync-1",
		TenantID:      "tenant-1",
		TribunalSigla: "TJBA",
		OAB:           "12345BA",
		Mode:          capture.ModeCaptcha,
		CaptchaID:     "cap-1",
		CaptchaText:   "xyz",
	}
	jobID, err := q.Enqueue(ctx, payload)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	item, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, jobID, item.JobID)
	assert.Equal(t, payload, item.Payload)
	assert.GreaterOrEqual(t, item.Attempt, 1)
}

func TestQueueClose(t *testing.T) {
	client := newTestClient(t)
	q, err := New(client, "sync-jobs", "sync-workers", 1, nil)
	require.NoError(t, err)

	q.Close()
	q.Close()

	_, err = q.Enqueue(context.Background(), capture.JobPayload{SyncID: "late"})
	require.ErrorIs(t, err, ErrClosed)
	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrClosed)
}

func TestNewValidatesArguments(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "t", "s", 1, nil)
	require.Error(t, err)
}

func TestDequeueWithoutSubscription(t *testing.T) {
	client := newTestClient(t)
	q, err := New(client, "sync-jobs", "", 1, nil)
	require.NoError(t, err)
	defer q.Close()

	_, err = q.Dequeue(context.Background())
	require.Error(t, err)
}
