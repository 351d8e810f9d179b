package kafka_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"ms-distribution/internal/kafka"
	"ms-distribution/internal/logger"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReader struct {
	mu        sync.Mutex
	queue     []kafkago.Message
	committed []int64
	cancel    context.CancelFunc
}

func (f *fakeReader) FetchMessage(ctx context.Context) (kafkago.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.queue) == 0 {
		f.cancel()
		return kafkago.Message{}, ctx.Err()
	}
	msg := f.queue[0]
	f.queue = f.queue[1:]
	return msg, nil
}

func (f *fakeReader) CommitMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range msgs {
		f.committed = append(f.committed, m.Offset)
	}
	return nil
}

func (f *fakeReader) Close() error { return nil }

type fakeWriter struct {
	msgs []kafkago.Message
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestConsumerCommitsHandledMessages(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reader := &fakeReader{
		queue:  []kafkago.Message{{Offset: 1}, {Offset: 2}},
		cancel: cancel,
	}
	c := kafka.NewConsumerWithReader(reader, logger.NewDiscard())

	var seen []int64
	err := c.Run(ctx, func(_ context.Context, msg kafkago.Message) error {
		seen = append(seen, msg.Offset)
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, seen)
	assert.Equal(t, []int64{1, 2}, reader.committed)
}

func TestConsumerStopsOnHandlerError(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reader := &fakeReader{queue: []kafkago.Message{{Offset: 7}}, cancel: cancel}
	c := kafka.NewConsumerWithReader(reader, logger.NewDiscard())

	err := c.Run(ctx, func(context.Context, kafkago.Message) error { return errors.New("boom") })

	assert.Error(t, err)
	assert.Empty(t, reader.committed)
}

func TestProducerPublishesJSON(t *testing.T) {
	w := &fakeWriter{}
	p := &kafka.Producer{Writer: w}

	require.NoError(t, p.Publish(context.Background(), "reg-1", map[string]string{"reference_number": "FB-1"}))

	require.Len(t, w.msgs, 1)
	assert.Equal(t, "reg-1", string(w.msgs[0].Key))
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.msgs[0].Value, &body))
	assert.Equal(t, "FB-1", body["reference_number"])
}
