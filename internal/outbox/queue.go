package outbox

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/coachly/chatsync/internal/bus"
	"github.com/coachly/chatsync/internal/rest"
	"github.com/coachly/chatsync/internal/store"
	"github.com/coachly/chatsync/internal/transport"
	"go.uber.org/zap"
)

// Uploader stores one attachment and returns its stable URL.
type Uploader interface {
	Upload(ctx context.Context, kind, filename string, r io.Reader) (*rest.UploadResult, error)
}

// Emitter transmits an outbound message on the live connection.
type Emitter interface {
	SendMessage(ctx context.Context, msg transport.OutboundMessage) error
}

// File is an attachment queued with a send. Data is held in memory so an
// explicit retry can re-upload without the UI re-reading anything.
type File struct {
	Name string
	Mime string
	Data []byte
}

type entry struct {
	conversationID string
	content        string
	files          []File
}

// Queue manages the optimistic send lifecycle: insert pending immediately,
// upload attachments in parallel, transmit with a correlation id, and resolve
// the entry in place when the server echo arrives. A failed send stays
// visible as failed until the user retries or discards it; nothing here
// retries on its own.
type Queue struct {
	store    *store.MessageStore
	uploader Uploader
	emitter  Emitter
	bus      *bus.Bus
	logger   *zap.Logger
	userID   string
	now      func() time.Time

	mu      sync.Mutex
	pending map[string]*entry // live correlation ids; removed only on confirm or discard
}

// NewQueue creates an outbound queue sending as userID.
func NewQueue(ms *store.MessageStore, up Uploader, em Emitter, b *bus.Bus, userID string, logger *zap.Logger) *Queue {
	return &Queue{
		store:    ms,
		uploader: up,
		emitter:  em,
		bus:      b,
		logger:   logger,
		userID:   userID,
		now:      time.Now,
		pending:  make(map[string]*entry),
	}
}

// newTempID builds a correlation id unique for the process lifetime.
func newTempID() string {
	return fmt.Sprintf("tmp-%d-%s", time.Now().UnixMilli(), uuid.NewString()[:8])
}

// kindFor selects the upload endpoint from the attachment's mime type.
func kindFor(mime string) string {
	switch {
	case strings.HasPrefix(mime, "image/"):
		return "image"
	case strings.HasPrefix(mime, "video/"):
		return "video"
	default:
		return "file"
	}
}

// Send inserts a pending message at the tail of the conversation and kicks
// off upload and transmission in the background. Returns the correlation id
// the entry is tracked under.
func (q *Queue) Send(ctx context.Context, conversationID, content string, files []File) string {
	tempID := newTempID()

	atts := make([]store.Attachment, len(files))
	for i, f := range files {
		atts[i] = store.Attachment{Name: f.Name, Mime: f.Mime}
	}
	msg := store.Message{
		TempID:         tempID,
		ConversationID: conversationID,
		SenderID:       q.userID,
		Content:        content,
		Attachments:    atts,
		CreatedAt:      q.now().UnixMilli(),
		Delivery:       store.Pending,
	}
	q.store.Insert(msg)

	q.mu.Lock()
	q.pending[tempID] = &entry{conversationID: conversationID, content: content, files: files}
	q.mu.Unlock()

	q.bus.Publish(bus.KindMessagePending, msg)
	go q.transmit(ctx, tempID)
	return tempID
}

func (q *Queue) transmit(ctx context.Context, tempID string) {
	q.mu.Lock()
	ent, ok := q.pending[tempID]
	q.mu.Unlock()
	if !ok {
		return // discarded before transmission started
	}

	atts, err := q.uploadAll(ctx, ent.files)
	if err != nil {
		q.fail(ent.conversationID, tempID, err)
		return
	}

	out := transport.OutboundMessage{
		ConversationID: ent.conversationID,
		Content:        ent.content,
		Attachments:    atts,
		TempID:         tempID,
	}
	if err := q.emitter.SendMessage(ctx, out); err != nil {
		q.fail(ent.conversationID, tempID, err)
		return
	}
	// The entry stays pending until the server echoes the correlation id.
}

// uploadAll runs the uploads in parallel and reassembles the resulting URLs
// in the original attachment order. Any failure aborts the whole send.
func (q *Queue) uploadAll(ctx context.Context, files []File) ([]store.Attachment, error) {
	if len(files) == 0 {
		return nil, nil
	}
	atts := make([]store.Attachment, len(files))
	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			res, err := q.uploader.Upload(gctx, kindFor(f.Mime), f.Name, bytes.NewReader(f.Data))
			if err != nil {
				return fmt.Errorf("upload %s: %w", f.Name, err)
			}
			atts[i] = store.Attachment{Name: f.Name, Mime: f.Mime, URL: res.URL}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return atts, nil
}

func (q *Queue) fail(conversationID, tempID string, cause error) {
	m, ok := q.store.Get(conversationID, tempID)
	if !ok {
		return
	}
	m.Delivery = store.Failed
	q.store.Replace(conversationID, tempID, m)
	q.logger.Error("send failed",
		zap.String("conversation", conversationID),
		zap.String("temp_id", tempID),
		zap.Error(cause))
	q.bus.Publish(bus.KindMessageFailed, m)
}

// Confirm resolves a pending entry with its server-confirmed counterpart,
// replacing it in place so the list position holds. Returns false when the
// correlation id is unknown or already released, which makes a duplicate ack
// a no-op.
func (q *Queue) Confirm(tempID string, confirmed store.Message) bool {
	q.mu.Lock()
	ent, ok := q.pending[tempID]
	if !ok {
		q.mu.Unlock()
		return false
	}
	delete(q.pending, tempID) // released; never matched again
	q.mu.Unlock()

	confirmed.TempID = ""
	confirmed.Delivery = store.Confirmed
	if !q.store.Replace(ent.conversationID, tempID, confirmed) {
		// The optimistic entry is gone (user discarded it just before the
		// ack); keep the server truth anyway.
		q.store.Insert(confirmed)
	}
	q.bus.Publish(bus.KindMessageConfirmed, confirmed)
	return true
}

// Retry re-attempts a failed send at the user's request. The entry keeps its
// list position but gets a fresh correlation id, so a stray late ack for the
// old id can never resurrect it.
func (q *Queue) Retry(ctx context.Context, conversationID, tempID string) (string, error) {
	m, ok := q.store.Get(conversationID, tempID)
	if !ok || m.Delivery != store.Failed {
		return "", fmt.Errorf("no failed send %s in %s", tempID, conversationID)
	}

	q.mu.Lock()
	ent, ok := q.pending[tempID]
	if !ok {
		q.mu.Unlock()
		return "", fmt.Errorf("correlation id %s already released", tempID)
	}
	fresh := newTempID()
	delete(q.pending, tempID)
	q.pending[fresh] = ent
	q.mu.Unlock()

	m.TempID = fresh
	m.Delivery = store.Pending
	q.store.Replace(conversationID, tempID, m)

	q.bus.Publish(bus.KindMessagePending, m)
	go q.transmit(ctx, fresh)
	return fresh, nil
}

// Discard removes a failed send entirely.
func (q *Queue) Discard(conversationID, tempID string) bool {
	m, ok := q.store.Get(conversationID, tempID)
	if !ok || m.Delivery != store.Failed {
		return false
	}

	q.mu.Lock()
	delete(q.pending, tempID)
	q.mu.Unlock()

	if !q.store.Remove(conversationID, tempID) {
		return false
	}
	q.bus.Publish(bus.KindMessageDiscarded, m)
	return true
}
