package bus

import "time"

// Event kinds published on the bus. Subscribers filter by namespace prefix,
// so "socket." catches every inbound transport event and "chat." everything
// the engine exposes to the UI layer.
const (
	// Inbound transport events, published by the socket read loop.
	KindSocketConnected    = "socket.connected"
	KindSocketDisconnected = "socket.disconnected"
	KindSocketMessage      = "socket.message"
	KindSocketTyping       = "socket.typing"
	KindSocketPresence     = "socket.presence"
	KindSocketRead         = "socket.read"

	// Engine-facing state changes, consumed by the UI layer.
	KindMessageNew           = "chat.message.new"
	KindMessagePending       = "chat.message.pending"
	KindMessageConfirmed     = "chat.message.confirmed"
	KindMessageFailed        = "chat.message.failed"
	KindMessageDiscarded     = "chat.message.discarded"
	KindSnapshotApplied      = "chat.snapshot.applied"
	KindSnapshotFailed       = "chat.snapshot.failed"
	KindConversationsUpdated = "chat.conversations.updated"

	// Connection state machine transitions.
	KindStatusChanged = "status.changed"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}
