package chanbus_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/chanbus"
)

func TestGroupSend_FansOutToAllMembers(t *testing.T) {
	t.Parallel()

	layer, _ := newTestLayer(t)
	ctx := context.Background()

	members := make([]string, 3)
	for i := range members {
		name, err := layer.NewChannel(ctx, "")
		require.NoError(t, err)
		members[i] = name
		require.NoError(t, layer.GroupAdd(ctx, "room", name))
	}

	outsider, err := layer.NewChannel(ctx, "")
	require.NoError(t, err)

	require.NoError(t, layer.GroupSend(ctx, "room", chanbus.Message{"type": "broadcast"}))

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	for _, name := range members {
		msg, err := layer.Receive(recvCtx, name)
		require.NoError(t, err)
		assert.Equal(t, "broadcast", msg["type"])
	}

	// The outsider never saw the group message: a direct send afterwards is
	// the first thing in its mailbox.
	require.NoError(t, layer.Send(ctx, outsider, chanbus.Message{"type": "marker"}))
	msg, err := layer.Receive(recvCtx, outsider)
	require.NoError(t, err)
	assert.Equal(t, "marker", msg["type"])
}

func TestGroupAdd_Idempotent(t *testing.T) {
	t.Parallel()

	layer, broker := newTestLayer(t)
	ctx := context.Background()

	channel, err := layer.NewChannel(ctx, "")
	require.NoError(t, err)

	require.NoError(t, layer.GroupAdd(ctx, "room", channel))
	require.NoError(t, layer.GroupAdd(ctx, "room", channel))
	assert.Equal(t, 1, layer.Stats().Groups)

	require.NoError(t, layer.GroupSend(ctx, "room", chanbus.Message{"type": "once"}))

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	msg, err := layer.Receive(recvCtx, channel)
	require.NoError(t, err)
	assert.Equal(t, "once", msg["type"])

	// A duplicate membership must not duplicate deliveries: a marker sent
	// afterwards arrives next.
	require.NoError(t, layer.Send(ctx, channel, chanbus.Message{"type": "marker"}))
	msg, err = layer.Receive(recvCtx, channel)
	require.NoError(t, err)
	assert.Equal(t, "marker", msg["type"])

	assert.Equal(t, 1, broker.TopicSubscribers("chanbus.__group__room"))
}

func TestGroupAdd_SubscribeFailureRollsBack(t *testing.T) {
	t.Parallel()

	layer, broker := newRefusingLayer(t)
	ctx := context.Background()

	channel, err := layer.NewChannel(ctx, "")
	require.NoError(t, err)

	broker.refuseTopics(func(topic string) bool {
		return strings.Contains(topic, "__group__")
	})

	err = layer.GroupAdd(ctx, "room", channel)
	require.ErrorIs(t, err, errSubscribeRefused)
	assert.Equal(t, 0, layer.Stats().Groups,
		"a group entry must never exist without its broker subscription")
	assert.Equal(t, 0, broker.TopicSubscribers("chanbus.__group__room"))

	// The same add succeeds once the broker accepts the topic.
	broker.refuseTopics(func(string) bool { return false })
	require.NoError(t, layer.GroupAdd(ctx, "room", channel))
	assert.Equal(t, 1, layer.Stats().Groups)
	assert.Equal(t, 1, broker.TopicSubscribers("chanbus.__group__room"))
}

func TestGroupAdd_ValidatesInput(t *testing.T) {
	t.Parallel()

	layer, _ := newTestLayer(t)
	ctx := context.Background()

	assert.ErrorIs(t, layer.GroupAdd(ctx, "", "ch"), chanbus.ErrEmptyGroupName)
	assert.ErrorIs(t, layer.GroupAdd(ctx, "room", ""), chanbus.ErrEmptyChannelName)
	assert.ErrorIs(t, layer.GroupSend(ctx, "", chanbus.Message{}), chanbus.ErrEmptyGroupName)
	assert.ErrorIs(t, layer.GroupDiscard(ctx, "", "ch"), chanbus.ErrEmptyGroupName)
	assert.ErrorIs(t, layer.GroupDiscard(ctx, "room", ""), chanbus.ErrEmptyChannelName)
}

func TestGroupDiscard_StopsDelivery(t *testing.T) {
	t.Parallel()

	layer, broker := newTestLayer(t)
	ctx := context.Background()

	stay, err := layer.NewChannel(ctx, "")
	require.NoError(t, err)
	leave, err := layer.NewChannel(ctx, "")
	require.NoError(t, err)

	require.NoError(t, layer.GroupAdd(ctx, "room", stay))
	require.NoError(t, layer.GroupAdd(ctx, "room", leave))

	require.NoError(t, layer.GroupDiscard(ctx, "room", leave))

	require.NoError(t, layer.GroupSend(ctx, "room", chanbus.Message{"type": "after"}))

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	msg, err := layer.Receive(recvCtx, stay)
	require.NoError(t, err)
	assert.Equal(t, "after", msg["type"])

	// The discarded member's mailbox stays empty: a marker arrives first.
	require.NoError(t, layer.Send(ctx, leave, chanbus.Message{"type": "marker"}))
	msg, err = layer.Receive(recvCtx, leave)
	require.NoError(t, err)
	assert.Equal(t, "marker", msg["type"])

	// The group topic stays subscribed while members remain.
	assert.Equal(t, 1, broker.TopicSubscribers("chanbus.__group__room"))
}

func TestGroupDiscard_LastMemberUnsubscribesTopic(t *testing.T) {
	t.Parallel()

	layer, broker := newTestLayer(t)
	ctx := context.Background()

	channel, err := layer.NewChannel(ctx, "")
	require.NoError(t, err)

	require.NoError(t, layer.GroupAdd(ctx, "empty-me", channel))
	require.Equal(t, 1, broker.TopicSubscribers("chanbus.__group__empty-me"))

	require.NoError(t, layer.GroupDiscard(ctx, "empty-me", channel))
	assert.Equal(t, 0, broker.TopicSubscribers("chanbus.__group__empty-me"))
	assert.Equal(t, 0, layer.Stats().Groups)

	// Re-adding resubscribes from scratch.
	require.NoError(t, layer.GroupAdd(ctx, "empty-me", channel))
	assert.Equal(t, 1, broker.TopicSubscribers("chanbus.__group__empty-me"))

	require.NoError(t, layer.GroupSend(ctx, "empty-me", chanbus.Message{"type": "back"}))

	recvCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	msg, err := layer.Receive(recvCtx, channel)
	require.NoError(t, err)
	assert.Equal(t, "back", msg["type"])
}

func TestGroupDiscard_Errors(t *testing.T) {
	t.Parallel()

	layer, _ := newTestLayer(t)
	ctx := context.Background()

	channel, err := layer.NewChannel(ctx, "")
	require.NoError(t, err)

	assert.ErrorIs(t, layer.GroupDiscard(ctx, "ghost", channel), chanbus.ErrGroupNotFound)

	other, err := layer.NewChannel(ctx, "")
	require.NoError(t, err)
	require.NoError(t, layer.GroupAdd(ctx, "room", channel))
	assert.ErrorIs(t, layer.GroupDiscard(ctx, "room", other), chanbus.ErrNotGroupMember)
}

func TestGroupSend_NoMembersIsNotAnError(t *testing.T) {
	t.Parallel()

	layer, _ := newTestLayer(t)
	ctx := context.Background()

	require.NoError(t, layer.GroupSend(ctx, "nobody-home", chanbus.Message{"type": "void"}))
}

func TestGroup_MemberChannelAbandonedIsSkipped(t *testing.T) {
	t.Parallel()

	layer, _ := newTestLayer(t)
	ctx := context.Background()

	gone, err := layer.NewChannel(ctx, "")
	require.NoError(t, err)
	stay, err := layer.NewChannel(ctx, "")
	require.NoError(t, err)

	require.NoError(t, layer.GroupAdd(ctx, "room", gone))
	require.NoError(t, layer.GroupAdd(ctx, "room", stay))

	// Abandon one member's channel via receive cancellation. Its membership
	// remains, but fan-out skips members without a mailbox.
	recvCtx, cancel := context.WithCancel(ctx)
	res := receiveAsync(recvCtx, layer, gone)
	time.Sleep(20 * time.Millisecond)
	cancel()
	r := <-res
	require.ErrorIs(t, r.err, context.Canceled)

	require.NoError(t, layer.GroupSend(ctx, "room", chanbus.Message{"type": "survivors"}))

	waitCtx, waitCancel := context.WithTimeout(ctx, 2*time.Second)
	defer waitCancel()
	msg, err := layer.Receive(waitCtx, stay)
	require.NoError(t, err)
	assert.Equal(t, "survivors", msg["type"])
}
