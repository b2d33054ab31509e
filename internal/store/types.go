package store

// DeliveryState tracks the lifecycle of an optimistic send.
type DeliveryState string

const (
	Pending   DeliveryState = "pending"
	Confirmed DeliveryState = "confirmed"
	Failed    DeliveryState = "failed"
)

// Attachment is a stored file reference on a message.
type Attachment struct {
	Name string `json:"name"`
	Mime string `json:"mime"`
	URL  string `json:"url"`
}

// Message is one entry in a conversation log. Server-confirmed messages carry
// ID; an optimistic local send carries only TempID until its echo arrives,
// never both after confirmation.
type Message struct {
	ID             string
	TempID         string
	ConversationID string
	SenderID       string
	SenderName     string
	Content        string
	Attachments    []Attachment
	CreatedAt      int64 // unix millis
	Delivery       DeliveryState
}

// Key returns the identity the message is indexed under: the server id when
// assigned, the correlation id before that.
func (m Message) Key() string {
	if m.ID != "" {
		return m.ID
	}
	return m.TempID
}

// Conversation is a chat summary as shown in the conversation list.
type Conversation struct {
	ID            string
	Participants  []string
	IsGroup       bool
	IsPinned      bool
	UnreadCount   int
	LastMessage   string
	LastMessageAt int64 // unix millis
	PeerRead      bool
}

// SummaryPatch is a partial update to a conversation summary. Nil fields are
// left untouched; UnreadDelta is applied on top of UnreadCount when set.
type SummaryPatch struct {
	Participants  []string
	IsGroup       *bool
	IsPinned      *bool
	UnreadCount   *int
	UnreadDelta   int
	LastMessage   *string
	LastMessageAt *int64
	PeerRead      *bool
}
