package rest

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
)

func TestMessagesPage(t *testing.T) {
	var gotPath, gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.String()
		gotAuth = r.Header.Get("Authorization")
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"messages":[
			{"id":"m1","conversationId":"c1","senderId":"u2","content":"hi","createdAt":1000},
			{"id":"m2","conversationId":"c1","senderId":"u1","content":"hey","createdAt":2000}
		],"hasMore":false}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok-1", zap.NewNop())
	page, err := c.Messages(context.Background(), "c1", 1, 20)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if gotPath != "/chat/conversations/c1/messages?limit=20&page=1" {
		t.Errorf("path = %q", gotPath)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("Authorization = %q, want bearer token", gotAuth)
	}
	if len(page.Messages) != 2 || page.Messages[0].ID != "m1" {
		t.Errorf("page = %+v", page)
	}
	if m := page.Messages[0].ToStoreMessage(); m.Delivery != "confirmed" {
		t.Errorf("snapshot message delivery = %q, want confirmed", m.Delivery)
	}
}

func TestConversations(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/conversations" {
			t.Errorf("path = %q", r.URL.Path)
		}
		io.WriteString(w, `[{"id":"c1","participants":["u1","u2"],"isPinned":true,"unreadCount":3,"lastMessage":"yo","lastMessageAt":5000}]`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	sums, err := c.Conversations(context.Background())
	if err != nil {
		t.Fatalf("Conversations() error = %v", err)
	}
	if len(sums) != 1 || !sums[0].IsPinned || sums[0].UnreadCount != 3 {
		t.Errorf("summaries = %+v", sums)
	}
}

func TestFetchFailedOnServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	if _, err := c.Messages(context.Background(), "c1", 1, 20); !errors.Is(err, ErrFetchFailed) {
		t.Errorf("err = %v, want ErrFetchFailed", err)
	}
}

func TestUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "expired", zap.NewNop())
	if _, err := c.Conversations(context.Background()); !errors.Is(err, ErrUnauthorized) {
		t.Errorf("err = %v, want ErrUnauthorized", err)
	}
}

func TestCreateDirect(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/chat/conversations/direct/u9" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		io.WriteString(w, `{"id":"c9","participants":["u1","u9"]}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	sum, err := c.CreateDirect(context.Background(), "u9")
	if err != nil {
		t.Fatalf("CreateDirect() error = %v", err)
	}
	if sum.ID != "c9" {
		t.Errorf("ID = %q, want c9", sum.ID)
	}
}

func TestUpload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/upload/image" {
			t.Errorf("path = %q", r.URL.Path)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			t.Fatalf("FormFile: %v", err)
		}
		defer file.Close()
		body, _ := io.ReadAll(file)
		if string(body) != "pixels" || header.Filename != "photo.png" {
			t.Errorf("got file %q content %q", header.Filename, body)
		}
		io.WriteString(w, `{"url":"https://cdn.example.com/photo.png","filename":"photo.png"}`)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	res, err := c.Upload(context.Background(), "image", "photo.png", strings.NewReader("pixels"))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if res.URL != "https://cdn.example.com/photo.png" {
		t.Errorf("URL = %q", res.URL)
	}
}

func TestUploadFailed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "tok", zap.NewNop())
	if _, err := c.Upload(context.Background(), "file", "a.pdf", strings.NewReader("x")); !errors.Is(err, ErrUploadFailed) {
		t.Errorf("err = %v, want ErrUploadFailed", err)
	}
}
