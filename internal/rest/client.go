package rest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/coachly/chatsync/internal/store"
	"go.uber.org/zap"
)

// Error taxonomy for snapshot and upload calls. Callers branch on these with
// errors.Is; the wrapped detail carries the HTTP status.
var (
	ErrFetchFailed  = errors.New("snapshot fetch failed")
	ErrUploadFailed = errors.New("attachment upload failed")
	// ErrUnauthorized means the session token was rejected. The external auth
	// client owns refresh; once it fails closed the session is unusable until
	// re-authenticated.
	ErrUnauthorized = errors.New("unauthorized")
)

// ConversationSummary is the wire shape of one conversation list entry.
type ConversationSummary struct {
	ID            string   `json:"id"`
	Participants  []string `json:"participants"`
	IsGroup       bool     `json:"isGroup"`
	IsPinned      bool     `json:"isPinned"`
	UnreadCount   int      `json:"unreadCount"`
	LastMessage   string   `json:"lastMessage"`
	LastMessageAt int64    `json:"lastMessageAt"`
}

// MessageDTO is the wire shape of one message in a snapshot page.
type MessageDTO struct {
	ID             string             `json:"id"`
	ConversationID string             `json:"conversationId"`
	SenderID       string             `json:"senderId"`
	SenderName     string             `json:"senderName"`
	Content        string             `json:"content"`
	Attachments    []store.Attachment `json:"attachments"`
	CreatedAt      int64              `json:"createdAt"`
}

// ToStoreMessage converts a snapshot entry into its store representation.
func (d MessageDTO) ToStoreMessage() store.Message {
	return store.Message{
		ID:             d.ID,
		ConversationID: d.ConversationID,
		SenderID:       d.SenderID,
		SenderName:     d.SenderName,
		Content:        d.Content,
		Attachments:    d.Attachments,
		CreatedAt:      d.CreatedAt,
		Delivery:       store.Confirmed,
	}
}

// MessagePage is one page of a conversation snapshot, ascending by time.
type MessagePage struct {
	Messages []MessageDTO `json:"messages"`
	HasMore  bool         `json:"hasMore"`
}

// UploadResult is the stored-file contract: a stable URL plus the name the
// server kept.
type UploadResult struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// Client consumes the chat REST API. The bearer token is attached to every
// request; refresh is owned by the external auth layer, so a 401 here is
// terminal for the session.
type Client struct {
	http   *http.Client
	base   string
	token  string
	logger *zap.Logger
}

// NewClient creates a REST client for the given base URL.
func NewClient(base, token string, logger *zap.Logger) *Client {
	return &Client{
		http:   &http.Client{Timeout: 30 * time.Second},
		base:   strings.TrimRight(base, "/"),
		token:  token,
		logger: logger,
	}
}

// Conversations fetches the conversation list snapshot.
func (c *Client) Conversations(ctx context.Context) ([]ConversationSummary, error) {
	var out []ConversationSummary
	if err := c.getJSON(ctx, "/chat/conversations", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Messages fetches one snapshot page for a conversation, ascending by time.
func (c *Client) Messages(ctx context.Context, conversationID string, page, limit int) (*MessagePage, error) {
	q := url.Values{}
	q.Set("page", strconv.Itoa(page))
	q.Set("limit", strconv.Itoa(limit))
	path := "/chat/conversations/" + url.PathEscape(conversationID) + "/messages?" + q.Encode()

	var out MessagePage
	if err := c.getJSON(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateDirect creates or returns the direct conversation with userID.
func (c *Client) CreateDirect(ctx context.Context, userID string) (*ConversationSummary, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/chat/conversations/direct/"+url.PathEscape(userID), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	var out ConversationSummary
	if err := c.do(req, ErrFetchFailed, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Upload stores one attachment. kind selects the endpoint: image, file or
// video. The returned URL is the only contract this engine relies on.
func (c *Client) Upload(ctx context.Context, kind, filename string, r io.Reader) (*UploadResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filename)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, r); err != nil {
			pw.CloseWithError(err)
			return
		}
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.base+"/chat/upload/"+url.PathEscape(kind), pr)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUploadFailed, err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out UploadResult
	if err := c.do(req, ErrUploadFailed, &out); err != nil {
		return nil, err
	}
	if out.URL == "" {
		return nil, fmt.Errorf("%w: server returned no url", ErrUploadFailed)
	}
	return &out, nil
}

func (c *Client) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+path, nil)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	return c.do(req, ErrFetchFailed, out)
}

func (c *Client) do(req *http.Request, sentinel error, out any) error {
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", sentinel, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode == http.StatusUnauthorized {
		return fmt.Errorf("%w: %s", ErrUnauthorized, req.URL.Path)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%w: status %d", sentinel, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: decode: %v", sentinel, err)
	}
	return nil
}
