package chanbus_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/chanbus"
)

func TestMemoryBroker_PublishSubscribe(t *testing.T) {
	t.Parallel()

	broker := chanbus.NewMemoryBroker()
	defer broker.Close()

	ctx := context.Background()

	sub, err := broker.DialSub(ctx)
	require.NoError(t, err)
	pub, err := broker.DialPub(ctx)
	require.NoError(t, err)

	require.NoError(t, sub.Subscribe(ctx, "topic.a"))
	require.NoError(t, pub.Publish(ctx, "topic.a", []byte("one")))
	require.NoError(t, pub.Publish(ctx, "topic.a", []byte("two")))
	require.NoError(t, pub.Publish(ctx, "topic.b", []byte("elsewhere")))

	for _, want := range []string{"one", "two"} {
		select {
		case d := <-sub.Deliveries():
			assert.Equal(t, "topic.a", d.Topic)
			assert.Equal(t, want, string(d.Payload))
		case <-time.After(time.Second):
			t.Fatalf("delivery %q never arrived", want)
		}
	}

	// Nothing else pending: the topic.b publish had no subscriber.
	select {
	case d := <-sub.Deliveries():
		t.Fatalf("unexpected delivery: %+v", d)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBroker_FanOutAcrossConnections(t *testing.T) {
	t.Parallel()

	broker := chanbus.NewMemoryBroker()
	defer broker.Close()

	ctx := context.Background()

	first, err := broker.DialSub(ctx)
	require.NoError(t, err)
	second, err := broker.DialSub(ctx)
	require.NoError(t, err)
	pub, err := broker.DialPub(ctx)
	require.NoError(t, err)

	require.NoError(t, first.Subscribe(ctx, "shared"))
	require.NoError(t, second.Subscribe(ctx, "shared"))
	assert.Equal(t, 2, broker.TopicSubscribers("shared"))

	require.NoError(t, pub.Publish(ctx, "shared", []byte("both")))

	for _, sub := range []chanbus.SubConn{first, second} {
		select {
		case d := <-sub.Deliveries():
			assert.Equal(t, "both", string(d.Payload))
		case <-time.After(time.Second):
			t.Fatal("fan-out delivery missing")
		}
	}
}

func TestMemoryBroker_Unsubscribe(t *testing.T) {
	t.Parallel()

	broker := chanbus.NewMemoryBroker()
	defer broker.Close()

	ctx := context.Background()

	sub, err := broker.DialSub(ctx)
	require.NoError(t, err)
	pub, err := broker.DialPub(ctx)
	require.NoError(t, err)

	require.NoError(t, sub.Subscribe(ctx, "topic.a", "topic.b"))
	require.NoError(t, sub.Unsubscribe(ctx, "topic.a"))
	assert.Equal(t, 0, broker.TopicSubscribers("topic.a"))
	assert.Equal(t, 1, broker.TopicSubscribers("topic.b"))
	assert.EqualValues(t, 1, broker.Stats().Unsubscribes)

	require.NoError(t, pub.Publish(ctx, "topic.a", []byte("lost")))
	require.NoError(t, pub.Publish(ctx, "topic.b", []byte("kept")))

	select {
	case d := <-sub.Deliveries():
		assert.Equal(t, "topic.b", d.Topic)
		assert.Equal(t, "kept", string(d.Payload))
	case <-time.After(time.Second):
		t.Fatal("delivery for remaining topic missing")
	}
}

func TestMemoryBroker_DropConnections(t *testing.T) {
	t.Parallel()

	broker := chanbus.NewMemoryBroker()
	defer broker.Close()

	ctx := context.Background()

	sub, err := broker.DialSub(ctx)
	require.NoError(t, err)
	pub, err := broker.DialPub(ctx)
	require.NoError(t, err)
	require.NoError(t, sub.Subscribe(ctx, "topic"))

	broker.DropConnections()

	assert.True(t, sub.Closed())
	assert.True(t, pub.Closed())
	assert.ErrorIs(t, pub.Publish(ctx, "topic", []byte("dead")), chanbus.ErrConnClosed)

	select {
	case _, ok := <-sub.Deliveries():
		assert.False(t, ok, "delivery stream should end when the connection dies")
	case <-time.After(time.Second):
		t.Fatal("delivery stream did not close")
	}

	// The broker itself survives: fresh dials work.
	replacement, err := broker.DialSub(ctx)
	require.NoError(t, err)
	assert.False(t, replacement.Closed())

	stats := broker.Stats()
	assert.Equal(t, 1, stats.SubConns)
	assert.Equal(t, 0, stats.PubConns)
}

func TestMemoryBroker_Close(t *testing.T) {
	t.Parallel()

	broker := chanbus.NewMemoryBroker()

	ctx := context.Background()
	sub, err := broker.DialSub(ctx)
	require.NoError(t, err)

	require.NoError(t, broker.Close())

	assert.True(t, sub.Closed())

	_, err = broker.DialSub(ctx)
	assert.ErrorIs(t, err, chanbus.ErrBrokerClosed)
	_, err = broker.DialPub(ctx)
	assert.ErrorIs(t, err, chanbus.ErrBrokerClosed)

	// Idempotent.
	require.NoError(t, broker.Close())
}

func TestMemoryBroker_SlowConsumerDoesNotBlockPublisher(t *testing.T) {
	t.Parallel()

	broker := chanbus.NewMemoryBroker()
	defer broker.Close()

	ctx := context.Background()

	sub, err := broker.DialSub(ctx)
	require.NoError(t, err)
	pub, err := broker.DialPub(ctx)
	require.NoError(t, err)
	require.NoError(t, sub.Subscribe(ctx, "burst"))

	// Nobody reads Deliveries yet; publishes must still complete.
	for i := 0; i < 1000; i++ {
		require.NoError(t, pub.Publish(ctx, "burst", []byte{byte(i)}))
	}

	// Everything is buffered and arrives in order once reading starts.
	for i := 0; i < 1000; i++ {
		select {
		case d := <-sub.Deliveries():
			assert.Equal(t, byte(i), d.Payload[0])
		case <-time.After(time.Second):
			t.Fatalf("delivery %d missing", i)
		}
	}
}
