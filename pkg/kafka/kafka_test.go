package kafka

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type change struct {
	Type   string `json:"type"`
	NoteID string `json:"noteId"`
}

func TestEncodeAndDecodeJSON(t *testing.T) {
	msg, err := encode(Event{Key: "n1", Value: change{Type: "upserted", NoteID: "n1"}})
	require.NoError(t, err)
	assert.Equal(t, []byte("n1"), msg.Key)

	got, err := DecodeJSON[change](msg.Value)
	require.NoError(t, err)
	assert.Equal(t, change{Type: "upserted", NoteID: "n1"}, got)
}

func TestEncodeRejectsUnmarshalableValue(t *testing.T) {
	_, err := encode(Event{Key: "k", Value: make(chan int)})
	assert.Error(t, err)
}

func TestDecodeJSONInvalid(t *testing.T) {
	_, err := DecodeJSON[change]([]byte("{"))
	assert.ErrorContains(t, err, "decoding kafka message")
}

func TestPingWithoutBrokers(t *testing.T) {
	assert.Error(t, Ping(context.Background(), nil))
}

type fakeReader struct {
	msgs      chan kafka.Message
	fetchErrs chan error
	mu        sync.Mutex
	committed []int64
	closed    bool
}

func newFakeReader(msgs ...kafka.Message) *fakeReader {
	r := &fakeReader{msgs: make(chan kafka.Message, len(msgs)), fetchErrs: make(chan error, 1)}
	for _, m := range msgs {
		r.msgs <- m
	}
	return r
}

func (r *fakeReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	select {
	case err := <-r.fetchErrs:
		return kafka.Message{}, err
	default:
	}
	select {
	case m := <-r.msgs:
		return m, nil
	case <-ctx.Done():
		return kafka.Message{}, ctx.Err()
	}
}

func (r *fakeReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *fakeReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *fakeReader) committedOffsets() []int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]int64(nil), r.committed...)
}

func fastConsumer(r messageReader, h MessageHandler) *Consumer {
	c := newConsumer(r, "test", h)
	c.retry.InitialDelay = time.Millisecond
	c.retry.MaxDelay = time.Millisecond
	c.backoff = time.Millisecond
	return c
}

func TestConsumerRetriesThenCommits(t *testing.T) {
	r := newFakeReader(
		kafka.Message{Offset: 1, Value: []byte("ok")},
		kafka.Message{Offset: 2, Value: []byte("flaky")},
		kafka.Message{Offset: 3, Value: []byte("poison")},
	)
	var flakyCalls, poisonCalls atomic.Int32
	c := fastConsumer(r, func(_ context.Context, _ []byte, value []byte) error {
		switch string(value) {
		case "flaky":
			if flakyCalls.Add(1) < 2 {
				return errors.New("transient")
			}
		case "poison":
			poisonCalls.Add(1)
			return Permanent(errors.New("bad payload"))
		}
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return len(r.committedOffsets()) == 3 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)

	assert.Equal(t, []int64{1, 2, 3}, r.committedOffsets())
	assert.Equal(t, int32(2), flakyCalls.Load())
	assert.Equal(t, int32(1), poisonCalls.Load(), "permanent errors are not retried")
	assert.Equal(t, ConsumerStats{Processed: 2, Failed: 1}, c.Stats())
	assert.True(t, r.closed)
}

func TestConsumerSurvivesFetchErrors(t *testing.T) {
	r := newFakeReader(kafka.Message{Offset: 7})
	r.fetchErrs <- errors.New("broker gone")
	c := fastConsumer(r, func(context.Context, []byte, []byte) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Start(ctx) }()

	require.Eventually(t, func() bool { return len(r.committedOffsets()) == 1 }, time.Second, time.Millisecond)
	cancel()
	require.NoError(t, <-done)
}

func TestPermanent(t *testing.T) {
	assert.NoError(t, Permanent(nil))
	base := errors.New("x")
	err := Permanent(base)
	assert.ErrorIs(t, err, base)
	assert.True(t, isPermanent(fmt.Errorf("wrapped: %w", err)))
	assert.False(t, isPermanent(base))
}
