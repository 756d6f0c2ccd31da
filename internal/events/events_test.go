package events

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeChannel struct {
	exchange  string
	published []amqp.Publishing
	err       error
	closed    bool
}

func (f *fakeChannel) PublishWithContext(_ context.Context, exchange, _ string, _, _ bool, msg amqp.Publishing) error {
	if f.err != nil {
		return f.err
	}
	f.exchange = exchange
	f.published = append(f.published, msg)
	return nil
}

func (f *fakeChannel) Close() error {
	f.closed = true
	return nil
}

func TestAMQPPublisher_Publish(t *testing.T) {
	event := FileIngested{
		RunID: "run-1", FileID: 7, Path: "in/a.mut", Format: "mutations",
		Lines: 5, Accepted: 4, Rejected: 1, Entries: 4,
		At: time.Date(2024, 7, 1, 10, 0, 0, 0, time.UTC),
	}

	t.Run("Success case - JSON body on the exchange", func(t *testing.T) {
		ch := &fakeChannel{}
		p := &AMQPPublisher{exchange: "recordkit.files", channel: ch, logger: zap.NewNop()}

		require.NoError(t, p.Publish(context.Background(), event))
		require.Len(t, ch.published, 1)
		assert.Equal(t, "recordkit.files", ch.exchange)

		msg := ch.published[0]
		assert.Equal(t, "application/json", msg.ContentType)
		assert.Equal(t, "run-1-7", msg.MessageId)

		var got FileIngested
		require.NoError(t, json.Unmarshal(msg.Body, &got))
		assert.Equal(t, event, got)

		require.NoError(t, p.Close())
		assert.True(t, ch.closed)
	})

	t.Run("Expect: error when the broker refuses", func(t *testing.T) {
		p := &AMQPPublisher{exchange: "x", channel: &fakeChannel{err: errors.New("channel closed")}, logger: zap.NewNop()}
		assert.ErrorContains(t, p.Publish(context.Background(), event), "channel closed")
	})
}

func TestNopPublisher(t *testing.T) {
	var p Publisher = NopPublisher{}
	assert.NoError(t, p.Publish(context.Background(), FileIngested{}))
	assert.NoError(t, p.Close())
}
