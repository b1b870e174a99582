// Package chanbus provides a process-local message routing layer on top of a
// pub/sub broker, with named channels, group fan-out, and transparent
// reconnection.
//
// The layer owns at most two broker connections regardless of how many
// channels exist: one for publishing and one for subscriptions. A single
// dispatcher goroutine drains the subscribe connection and routes every
// delivery into per-channel mailboxes, so adding channels never adds
// connections or goroutines.
//
// # Architecture
//
// The package is organized around three small contracts:
//
//   - Broker: dials publish and subscribe connections on demand
//   - PubConn / SubConn: the two connection roles the layer keeps open
//   - Codec: serializes messages for the wire (MessagePack by default)
//
// Backends plug in through the Broker interface. The package ships an
// in-process MemoryBroker; Redis and NATS backends live in
// integration/broker/redis and integration/broker/nats.
//
// # Channels and Groups
//
// A channel is a mailbox with a globally unique, routable name: the layer
// subscribes to the name as a broker topic, so any process sharing the broker
// and prefix can send to it. A group is a named set of channels; sending to
// the group publishes once and fans out to every member on arrival.
//
//	layer, err := chanbus.New(chanbus.NewMemoryBroker())
//	if err != nil {
//	    return err
//	}
//	defer layer.Close()
//
//	channel, err := layer.NewChannel(ctx, "")
//	if err != nil {
//	    return err
//	}
//	if err := layer.GroupAdd(ctx, "room42", channel); err != nil {
//	    return err
//	}
//
//	go func() {
//	    for {
//	        msg, err := layer.Receive(ctx, channel)
//	        if err != nil {
//	            return
//	        }
//	        handle(msg)
//	    }
//	}()
//
//	err = layer.GroupSend(ctx, "room42", chanbus.Message{
//	    "type": "chat_send",
//	    "text_data": "hello",
//	})
//
// # Connection Lifecycle
//
// Connections are established lazily on first use. When the subscribe
// connection dies, the next operation dials a replacement and replays every
// registered channel and group subscription onto it before anything else
// proceeds; concurrent callers share the one establishment and wait for it to
// become ready. The replay is best effort: a topic that fails to re-subscribe
// is reported on the fault stream and retried on the next reconnect while the
// rest of the topics keep working. A keepalive loop probes the connection every second so
// recovery happens even when the application is idle.
//
// Messages published while no subscription is active are lost. Delivery is
// at-most-once end to end; consumers that need gap detection should carry
// sequence numbers in their payloads.
//
// # Receive Semantics
//
// Receive blocks until a message arrives and honors context cancellation.
// Cancelling a receive abandons the channel: its registration and any
// buffered messages are discarded and the topic is unsubscribed. This is the
// only cleanup path for channels, matching the lifecycle of a consumer that
// stops listening.
//
// # Fault Reporting
//
// Background failures the layer recovers from on its own (a lost connection,
// a failed best-effort unsubscribe, a failed keepalive probe) are logged,
// counted in Stats, and offered to the bounded Faults stream for callers that
// want to observe them:
//
//	go func() {
//	    for fault := range layer.Faults() {
//	        metrics.Count("chanbus_fault", string(fault.Op))
//	    }
//	}()
//
// # Thread Safety
//
// All exported types are safe for concurrent use. Routing tables are guarded
// by a read-write mutex held for table access only, never across broker
// calls, so a stalled broker cannot wedge local bookkeeping.
package chanbus
