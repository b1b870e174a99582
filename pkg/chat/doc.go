// Package chat implements a websocket chat convention on top of a chanbus
// layer. It is a consumer of the layer, not part of it: the layer moves
// opaque messages, and this package agrees on their shape.
//
// # Envelope Convention
//
// Every group message is an Envelope carrying an event type, a text body, an
// optional binary body, and the channel name of the sender:
//
//	env := chat.Envelope{
//	    Type:     chat.EventChatSend,
//	    TextData: "hello",
//	    Sender:   myChannel,
//	}
//	err := layer.GroupSend(ctx, group, env.Message())
//
// Receivers decode deliveries with FromMessage and drop envelopes whose
// Sender matches their own channel, so a participant never hears its own
// messages echoed back.
//
// # Sessions
//
// Session binds one websocket connection to one room. It creates a channel,
// joins the room group, announces the arrival, and then pumps frames in both
// directions until the socket or the context ends:
//
//	sess, err := chat.NewSession(ctx, layer, conn, room)
//	if err != nil {
//	    return err
//	}
//	err = sess.Run(ctx)
//
// Run owns the teardown: it leaves the group and announces the departure
// even when the peer disappears without a close frame.
//
// # Sequence Tracking
//
// SequenceTracker verifies per-sender monotonic counters and reports gaps.
// Load clients use it to detect dropped messages: the layer promises
// at-most-once delivery, so a skipped counter value is evidence of a drop,
// while a duplicate or reordered value indicates a bug.
package chat
