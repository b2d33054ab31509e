package transport

import (
	"encoding/json"
	"fmt"

	"github.com/coachly/chatsync/internal/store"
)

// Event names on the socket wire, both directions.
const (
	// Received.
	EventNewMessage   = "new_message"
	EventUserTyping   = "user_typing"
	EventUserOnline   = "user_online"
	EventMessagesRead = "messages_read"

	// Emitted.
	EventJoinConversation = "join_conversation"
	EventMarkAsRead       = "mark_as_read"
	EventTypingStart      = "typing_start"
	EventTypingStop       = "typing_stop"
	EventSendMessage      = "send_message"
)

// Envelope is the framing for every socket payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// WireMessage is an inbound new_message payload. TempID is present only when
// the message originated from this client and echoes the correlation id it
// was sent with.
type WireMessage struct {
	ID             string             `json:"id"`
	TempID         string             `json:"tempId,omitempty"`
	ConversationID string             `json:"conversationId"`
	SenderID       string             `json:"senderId"`
	SenderName     string             `json:"senderName"`
	Content        string             `json:"content"`
	Attachments    []store.Attachment `json:"attachments,omitempty"`
	CreatedAt      int64              `json:"createdAt"`
}

// ToStoreMessage converts the wire payload into its confirmed store form.
func (w *WireMessage) ToStoreMessage() store.Message {
	return store.Message{
		ID:             w.ID,
		ConversationID: w.ConversationID,
		SenderID:       w.SenderID,
		SenderName:     w.SenderName,
		Content:        w.Content,
		Attachments:    w.Attachments,
		CreatedAt:      w.CreatedAt,
		Delivery:       store.Confirmed,
	}
}

// TypingEvent is an inbound user_typing payload.
type TypingEvent struct {
	ConversationID string `json:"conversationId"`
	UserID         string `json:"userId"`
	UserName       string `json:"userName"`
	Typing         bool   `json:"typing"`
}

// PresenceEvent is an inbound user_online payload.
type PresenceEvent struct {
	UserID string `json:"userId"`
	Online bool   `json:"online"`
}

// ReadEvent is an inbound messages_read payload.
type ReadEvent struct {
	ConversationID string `json:"conversationId"`
}

// ConversationRef is the outbound payload for join/read/typing emits.
type ConversationRef struct {
	ConversationID string `json:"conversationId"`
}

// OutboundMessage is the emitted send_message payload. TempID carries the
// correlation id the server echoes back in new_message.
type OutboundMessage struct {
	ConversationID string             `json:"conversationId"`
	Content        string             `json:"content"`
	Attachments    []store.Attachment `json:"attachments,omitempty"`
	TempID         string             `json:"tempId"`
}

// ParseEvent decodes an inbound envelope into its typed payload. Unknown
// events and payloads missing required fields come back as errors; the read
// loop drops those instead of letting them near the stores.
func ParseEvent(env Envelope) (any, error) {
	switch env.Event {
	case EventNewMessage:
		var m WireMessage
		if err := json.Unmarshal(env.Data, &m); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if m.ConversationID == "" {
			return nil, fmt.Errorf("%s: missing conversationId", env.Event)
		}
		if m.ID == "" && m.TempID == "" {
			return nil, fmt.Errorf("%s: missing id and tempId", env.Event)
		}
		return &m, nil

	case EventUserTyping:
		var t TypingEvent
		if err := json.Unmarshal(env.Data, &t); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if t.ConversationID == "" || t.UserID == "" {
			return nil, fmt.Errorf("%s: missing conversationId or userId", env.Event)
		}
		return &t, nil

	case EventUserOnline:
		var p PresenceEvent
		if err := json.Unmarshal(env.Data, &p); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if p.UserID == "" {
			return nil, fmt.Errorf("%s: missing userId", env.Event)
		}
		return &p, nil

	case EventMessagesRead:
		var r ReadEvent
		if err := json.Unmarshal(env.Data, &r); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Event, err)
		}
		if r.ConversationID == "" {
			return nil, fmt.Errorf("%s: missing conversationId", env.Event)
		}
		return &r, nil
	}
	return nil, fmt.Errorf("unknown event %q", env.Event)
}
