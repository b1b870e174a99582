package chanbus_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/chanbus"
)

// asInt64 normalizes the integer widths MessagePack picks for small numbers.
func asInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int32:
		return int64(n), true
	case int16:
		return int64(n), true
	case int8:
		return int64(n), true
	case int:
		return int64(n), true
	case uint64:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint8:
		return int64(n), true
	case float64:
		return int64(n), true
	default:
		return 0, false
	}
}

func TestReconnect_ReplaysSubscriptions(t *testing.T) {
	t.Parallel()

	layer, broker := newTestLayer(t)
	ctx := context.Background()

	channel, err := layer.NewChannel(ctx, "")
	require.NoError(t, err)
	require.NoError(t, layer.GroupAdd(ctx, "room", channel))

	require.NoError(t, layer.Send(ctx, channel, chanbus.Message{"type": "before"}))

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := layer.Receive(recvCtx, channel)
	require.NoError(t, err)
	require.Equal(t, "before", msg["type"])

	broker.DropConnections()

	// The keepalive loop notices the dead connection and replays both the
	// channel and the group subscription onto a replacement.
	require.Eventually(t, func() bool {
		return layer.Stats().Reconnects >= 1 &&
			broker.TopicSubscribers(channel) == 1 &&
			broker.TopicSubscribers("chanbus.__group__room") == 1
	}, 3*time.Second, 10*time.Millisecond, "subscriptions should be replayed after reconnect")

	// Traffic flows again over both paths, including the publish side that
	// redials on demand.
	require.NoError(t, layer.Send(ctx, channel, chanbus.Message{"type": "direct"}))
	msg, err = layer.Receive(recvCtx, channel)
	require.NoError(t, err)
	assert.Equal(t, "direct", msg["type"])

	require.NoError(t, layer.GroupSend(ctx, "room", chanbus.Message{"type": "grouped"}))
	msg, err = layer.Receive(recvCtx, channel)
	require.NoError(t, err)
	assert.Equal(t, "grouped", msg["type"])

	assert.Equal(t, chanbus.StateReady, layer.Stats().ConnState)
}

func TestReconnect_ReplayFailureIsBestEffort(t *testing.T) {
	t.Parallel()

	layer, broker := newRefusingLayer(t)
	ctx := context.Background()

	channel, err := layer.NewChannel(ctx, "")
	require.NoError(t, err)
	require.NoError(t, layer.GroupAdd(ctx, "room", channel))

	// Refuse only the group topic, then kill the connections. The replay
	// must keep the channel subscription and come up ready regardless.
	broker.refuseTopics(func(topic string) bool {
		return strings.Contains(topic, "__group__")
	})
	broker.DropConnections()

	require.Eventually(t, func() bool {
		stats := layer.Stats()
		return stats.Reconnects >= 1 &&
			stats.ConnState == chanbus.StateReady &&
			broker.TopicSubscribers(channel) == 1
	}, 3*time.Second, 10*time.Millisecond, "replay should survive a refused topic")
	assert.Equal(t, 0, broker.TopicSubscribers("chanbus.__group__room"))

	// The refused topic is reported, not raised.
	require.Eventually(t, func() bool {
		select {
		case fault := <-layer.Faults():
			return fault.Op == chanbus.FaultResubscribe &&
				fault.Topic == "chanbus.__group__room"
		default:
			return false
		}
	}, 3*time.Second, 10*time.Millisecond, "refused topic should surface as a fault")

	// Traffic flows on the surviving subscription.
	require.NoError(t, layer.Send(ctx, channel, chanbus.Message{"type": "direct"}))
	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := layer.Receive(recvCtx, channel)
	require.NoError(t, err)
	assert.Equal(t, "direct", msg["type"])

	// The group stays registered, so the next reconnect retries its topic.
	broker.refuseTopics(func(string) bool { return false })
	broker.DropConnections()
	require.Eventually(t, func() bool {
		return broker.TopicSubscribers("chanbus.__group__room") == 1
	}, 3*time.Second, 10*time.Millisecond, "refused topic should be replayed on the next reconnect")
}

func TestFaults_ReportedOnBackgroundFailures(t *testing.T) {
	t.Parallel()

	broker := chanbus.NewMemoryBroker()
	// The long keepalive interval keeps the probe from racing the dispatcher
	// for the dead connection; the dispatcher reports the loss first.
	layer, err := chanbus.New(broker,
		chanbus.WithKeepaliveInterval(200*time.Millisecond),
		chanbus.WithConnectTimeout(100*time.Millisecond),
	)
	require.NoError(t, err)
	defer layer.Close()

	ctx := context.Background()
	channel, err := layer.NewChannel(ctx, "")
	require.NoError(t, err)

	recvCtx, cancel := context.WithCancel(ctx)
	res := receiveAsync(recvCtx, layer, channel)
	time.Sleep(20 * time.Millisecond)

	// Killing the broker ends the delivery stream and makes every later
	// dial fail, so both the dispatcher and the abandoned-receive cleanup
	// report faults.
	require.NoError(t, broker.Close())
	cancel()
	<-res

	seen := make(map[chanbus.FaultOp]bool)
	deadline := time.After(3 * time.Second)
	for !(seen[chanbus.FaultConnectionLost] && seen[chanbus.FaultUnsubscribe] && seen[chanbus.FaultKeepalive]) {
		select {
		case fault := <-layer.Faults():
			require.Error(t, fault.Err)
			assert.False(t, fault.At.IsZero())
			seen[fault.Op] = true
		case <-deadline:
			t.Fatalf("missing fault kinds, saw %v", seen)
		}
	}

	assert.GreaterOrEqual(t, layer.Stats().Faults, int64(3))
}

func TestScenario_GroupChatSurvivesConnectionLoss(t *testing.T) {
	t.Parallel()

	layer, broker := newTestLayer(t)
	ctx := context.Background()

	type member struct {
		channel string
		mu      sync.Mutex
		seqs    []int64
	}

	newMember := func() *member {
		channel, err := layer.NewChannel(ctx, "")
		require.NoError(t, err)
		require.NoError(t, layer.GroupAdd(ctx, "chat", channel))

		m := &member{channel: channel}
		go func() {
			for {
				msg, err := layer.Receive(ctx, channel)
				if err != nil {
					return
				}
				if seq, ok := asInt64(msg["seq"]); ok {
					m.mu.Lock()
					m.seqs = append(m.seqs, seq)
					m.mu.Unlock()
				}
			}
		}()
		return m
	}

	last := func(m *member) int64 {
		m.mu.Lock()
		defer m.mu.Unlock()
		if len(m.seqs) == 0 {
			return 0
		}
		return m.seqs[len(m.seqs)-1]
	}

	alice := newMember()
	bob := newMember()

	send := func(from string, seq int64) {
		require.NoError(t, layer.GroupSend(ctx, "chat", chanbus.Message{
			"type":                "chat_send",
			"sender_channel_name": from,
			"seq":                 seq,
		}))
	}

	for seq := int64(1); seq <= 5; seq++ {
		send(alice.channel, seq)
	}
	require.Eventually(t, func() bool {
		return last(alice) == 5 && last(bob) == 5
	}, 3*time.Second, 10*time.Millisecond, "first batch should reach both members")

	// Kill every connection mid-conversation.
	broker.DropConnections()
	require.Eventually(t, func() bool {
		return layer.Stats().Reconnects >= 1 &&
			broker.TopicSubscribers("chanbus.__group__chat") == 1
	}, 3*time.Second, 10*time.Millisecond, "group subscription should be replayed")

	for seq := int64(6); seq <= 10; seq++ {
		send(bob.channel, seq)
	}
	require.Eventually(t, func() bool {
		return last(alice) == 10 && last(bob) == 10
	}, 3*time.Second, 10*time.Millisecond, "second batch should reach both members")

	// Delivery is at-most-once: sequences must be strictly increasing with
	// no duplicates, though gaps around the outage would be legal.
	for _, m := range []*member{alice, bob} {
		m.mu.Lock()
		for i := 1; i < len(m.seqs); i++ {
			assert.Greater(t, m.seqs[i], m.seqs[i-1],
				"out-of-order or duplicate delivery: %v", m.seqs)
		}
		m.mu.Unlock()
	}
}
