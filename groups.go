package chanbus

import (
	"context"
	"fmt"
)

// GroupAdd subscribes a channel to a group. The first member of a group also
// subscribes the layer to the group's broker topic; later members only join
// the local fan-out table. Adding the same channel twice is a no-op.
func (l *Layer) GroupAdd(ctx context.Context, group, channel string) error {
	if group == "" {
		return ErrEmptyGroupName
	}
	if channel == "" {
		return ErrEmptyChannelName
	}
	if l.isClosed() {
		return ErrLayerClosed
	}

	conn, err := l.subConn(ctx)
	if err != nil {
		return err
	}

	topic := l.groupTopic(group)

	l.regMu.Lock()
	if members, ok := l.groups[topic]; ok {
		members[channel] = struct{}{}
		l.regMu.Unlock()
		return nil
	}
	l.regMu.Unlock()

	// Subscribe before publishing the entry so a failure leaves no trace: a
	// group entry must never exist without its broker subscription. Racing
	// first members may subscribe more than once, which SubConn makes a no-op.
	if err := conn.Subscribe(ctx, topic); err != nil {
		return fmt.Errorf("subscribe group: %w", err)
	}

	l.regMu.Lock()
	members, ok := l.groups[topic]
	if !ok {
		members = make(map[string]struct{})
		l.groups[topic] = members
	}
	members[channel] = struct{}{}
	l.regMu.Unlock()

	return nil
}

// GroupDiscard removes a channel from a group. The last member to leave also
// unsubscribes the layer from the group's broker topic. Discarding from an
// unknown group returns ErrGroupNotFound; discarding a channel that never
// joined returns ErrNotGroupMember.
func (l *Layer) GroupDiscard(ctx context.Context, group, channel string) error {
	if group == "" {
		return ErrEmptyGroupName
	}
	if channel == "" {
		return ErrEmptyChannelName
	}
	if l.isClosed() {
		return ErrLayerClosed
	}

	conn, err := l.subConn(ctx)
	if err != nil {
		return err
	}

	topic := l.groupTopic(group)

	l.regMu.Lock()
	members, ok := l.groups[topic]
	if !ok {
		l.regMu.Unlock()
		return ErrGroupNotFound
	}
	if _, ok := members[channel]; !ok {
		l.regMu.Unlock()
		return ErrNotGroupMember
	}
	delete(members, channel)
	empty := len(members) == 0
	if empty {
		delete(l.groups, topic)
	}
	l.regMu.Unlock()

	if empty {
		if err := conn.Unsubscribe(ctx, topic); err != nil {
			return fmt.Errorf("unsubscribe group: %w", err)
		}
	}

	return nil
}

// GroupSend publishes a message to every member of a group, across all
// processes subscribed to the group's topic. Sending to a group with no
// members is not an error; the broker simply has no one to deliver to.
func (l *Layer) GroupSend(ctx context.Context, group string, msg Message) error {
	if group == "" {
		return ErrEmptyGroupName
	}
	return l.publish(ctx, l.groupTopic(group), msg)
}

// groupTopic maps a group name into the layer's topic namespace. The
// sub-prefix keeps group topics from ever colliding with channel names.
func (l *Layer) groupTopic(group string) string {
	return l.prefix + groupSubprefix + group
}
