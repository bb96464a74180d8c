// Package pubsub implements the capture job queue on Google Cloud Pub/Sub.
package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"cloud.google.com/go/pubsub"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/JakeFAU/oab-process-sync/internal/capture"
)

// ErrClosed is returned once Close has been called.
var ErrClosed = errors.New("queue closed")

// Queue publishes capture jobs to a topic and consumes them from a
// subscription. The Pub/Sub message ID is the job handle.
type Queue struct {
	topic  *pubsub.Topic
	sub    *pubsub.Subscription
	logger *zap.Logger

	items chan capture.QueueItem
	errs  chan error

	startOnce sync.Once
	closeOnce sync.Once
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

var (
	_ capture.JobQueue  = (*Queue)(nil)
	_ capture.JobSource = (*Queue)(nil)
)

// New wires a queue to an existing topic and subscription. maxOutstanding
// bounds how many messages are held unacknowledged at once.
func New(client *pubsub.Client, topicID, subscriptionID string, maxOutstanding int, logger *zap.Logger) (*Queue, error) {
	if client == nil {
		return nil, fmt.Errorf("pubsub client is required")
	}
	if topicID == "" {
		return nil, fmt.Errorf("pubsub topic is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxOutstanding <= 0 {
		maxOutstanding = 1
	}
	q := &Queue{
		topic:  client.Topic(topicID),
		logger: logger,
		items:  make(chan capture.QueueItem),
		errs:   make(chan error, 1),
	}
	if subscriptionID != "" {
		q.sub = client.Subscription(subscriptionID)
		q.sub.ReceiveSettings.MaxOutstandingMessages = maxOutstanding
		q.sub.ReceiveSettings.NumGoroutines = 1
	}
	q.ctx, q.cancel = context.WithCancel(context.Background())
	return q, nil
}

// Enqueue publishes the payload as JSON and waits for the server-assigned ID.
func (q *Queue) Enqueue(ctx context.Context, payload capture.JobPayload) (string, error) {
	select {
	case <-q.ctx.Done():
		return "", ErrClosed
	default:
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	msg := &pubsub.Message{
		Data:       data,
		Attributes: map[string]string{"syncId": payload.SyncID, "mode": string(payload.Mode)},
	}
	otel.GetTextMapPropagator().Inject(ctx, &pubsubCarrier{attrs: msg.Attributes})

	id, err := q.topic.Publish(ctx, msg).Get(ctx)
	if err != nil {
		return "", fmt.Errorf("publish message: %w", err)
	}
	return id, nil
}

// Dequeue blocks until a job is delivered. The message is acknowledged once
// it has been handed to the caller.
func (q *Queue) Dequeue(ctx context.Context) (capture.QueueItem, error) {
	if q.sub == nil {
		return capture.QueueItem{}, fmt.Errorf("pubsub subscription is not configured")
	}
	if q.ctx.Err() != nil {
		return capture.QueueItem{}, ErrClosed
	}
	q.startOnce.Do(q.startReceiving)
	select {
	case <-ctx.Done():
		return capture.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case <-q.ctx.Done():
		return capture.QueueItem{}, ErrClosed
	case err := <-q.errs:
		return capture.QueueItem{}, err
	case item := <-q.items:
		return item, nil
	}
}

func (q *Queue) startReceiving() {
	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		err := q.sub.Receive(q.ctx, q.handle)
		if err != nil && !errors.Is(err, context.Canceled) {
			q.logger.Error("pubsub receive stopped", zap.Error(err))
			q.errs <- fmt.Errorf("receive: %w", err)
		}
	}()
}

func (q *Queue) handle(ctx context.Context, msg *pubsub.Message) {
	var payload capture.JobPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		q.logger.Warn("dropping undecodable job", zap.String("message_id", msg.ID), zap.Error(err))
		msg.Ack()
		return
	}
	item := capture.QueueItem{
		JobID:     msg.ID,
		Payload:   payload,
		Attempt:   1,
		Submitted: msg.PublishTime.Unix(),
	}
	if msg.DeliveryAttempt != nil {
		item.Attempt = *msg.DeliveryAttempt
	}
	select {
	case <-ctx.Done():
		msg.Nack()
	case q.items <- item:
		msg.Ack()
	}
}

// Close stops receiving and flushes pending publishes.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		q.cancel()
		q.wg.Wait()
		q.topic.Stop()
	})
}

// pubsubCarrier implements propagation.TextMapCarrier for Pub/Sub attributes.
type pubsubCarrier struct {
	attrs map[string]string
}

func (c *pubsubCarrier) Get(key string) string {
	return c.attrs[key]
}

func (c *pubsubCarrier) Set(key, value string) {
	c.attrs[key] = value
}

func (c *pubsubCarrier) Keys() []string {
	keys := make([]string, 0, len(c.attrs))
	for k := range c.attrs {
		keys = append(keys, k)
	}
	return keys
}
