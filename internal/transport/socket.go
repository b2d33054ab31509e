package transport

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/coder/websocket"

	"github.com/coachly/chatsync/internal/bus"
	"github.com/coachly/chatsync/internal/status"
	"go.uber.org/zap"
)

// Taxonomy for transport failures.
var (
	// ErrSendRejected means an emit could not be written to the socket. The
	// message in question stays failed; no automatic retry.
	ErrSendRejected = errors.New("send rejected")
	// ErrDisconnected means the live connection is down and a redial is in
	// progress or the socket was closed.
	ErrDisconnected = errors.New("transport disconnected")
)

// Socket owns the single live connection for the session. It is dialed once,
// survives conversation switches, and on read failure redials with jittered
// exponential backoff while the engine buffers what it misses. Inbound frames
// are parsed defensively and published on the bus under "socket.".
type Socket struct {
	url     string
	token   string
	bus     *bus.Bus
	machine *status.Machine
	logger  *zap.Logger

	mu     sync.Mutex
	conn   *websocket.Conn
	cancel context.CancelFunc
}

// NewSocket creates the session's live connection. Dial happens in Start.
func NewSocket(url, token string, b *bus.Bus, m *status.Machine, logger *zap.Logger) *Socket {
	return &Socket{
		url:     url,
		token:   token,
		bus:     b,
		machine: m,
		logger:  logger,
	}
}

// Start dials the socket and launches the read loop. The first dial failing
// is an error; later drops are handled by the redial loop.
func (s *Socket) Start(ctx context.Context) error {
	ctx, s.cancel = context.WithCancel(ctx)

	_ = s.machine.Transition(status.Connecting)
	conn, err := s.dial(ctx)
	if err != nil {
		_ = s.machine.Transition(status.Disconnected)
		return fmt.Errorf("dial live connection: %w", err)
	}
	s.setConn(conn)
	_ = s.machine.Transition(status.Ready)
	s.bus.Publish(bus.KindSocketConnected, nil)
	s.logger.Info("live connection established")

	go s.readLoop(ctx)
	return nil
}

// Stop closes the connection and halts the read loop.
func (s *Socket) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	_ = s.machine.Transition(status.Closed)
	s.mu.Lock()
	conn := s.conn
	s.conn = nil
	s.mu.Unlock()
	if conn != nil {
		_ = conn.Close(websocket.StatusNormalClosure, "client shutdown")
	}
}

func (s *Socket) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+s.token)
	conn, _, err := websocket.Dial(ctx, s.url, &websocket.DialOptions{HTTPHeader: header})
	if err != nil {
		return nil, err
	}
	conn.SetReadLimit(1 << 20)
	return conn, nil
}

func (s *Socket) setConn(conn *websocket.Conn) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func (s *Socket) current() *websocket.Conn {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *Socket) readLoop(ctx context.Context) {
	for {
		conn := s.current()
		if conn == nil {
			return
		}
		_, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.logger.Warn("live connection lost", zap.Error(err))
			_ = s.machine.Transition(status.Reconnecting)
			s.bus.Publish(bus.KindSocketDisconnected, nil)
			if err := s.redial(ctx); err != nil {
				return
			}
			continue
		}
		s.dispatch(data)
	}
}

func (s *Socket) redial(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // keep trying until the session ends

	op := func() error {
		_ = s.machine.Transition(status.Connecting)
		conn, err := s.dial(ctx)
		if err != nil {
			s.logger.Warn("redial failed", zap.Error(err))
			_ = s.machine.Transition(status.Reconnecting)
			return err
		}
		s.setConn(conn)
		return nil
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return err
	}

	_ = s.machine.Transition(status.Ready)
	s.bus.Publish(bus.KindSocketConnected, nil)
	s.logger.Info("live connection re-established")
	return nil
}

// dispatch parses one inbound frame and publishes it. Malformed frames are
// logged and dropped.
func (s *Socket) dispatch(data []byte) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.logger.Warn("malformed socket frame", zap.Error(err))
		return
	}
	payload, err := ParseEvent(env)
	if err != nil {
		s.logger.Warn("rejected socket event", zap.String("event", env.Event), zap.Error(err))
		return
	}

	switch payload.(type) {
	case *WireMessage:
		s.bus.Publish(bus.KindSocketMessage, payload)
	case *TypingEvent:
		s.bus.Publish(bus.KindSocketTyping, payload)
	case *PresenceEvent:
		s.bus.Publish(bus.KindSocketPresence, payload)
	case *ReadEvent:
		s.bus.Publish(bus.KindSocketRead, payload)
	}
}

// Emit writes one envelope to the socket. Writes are serialized; a write on a
// down connection is rejected, not queued.
func (s *Socket) Emit(ctx context.Context, event string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrSendRejected, event, err)
	}
	frame, err := json.Marshal(Envelope{Event: event, Data: raw})
	if err != nil {
		return fmt.Errorf("%w: encode envelope: %v", ErrSendRejected, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil || s.machine.Current() != status.Ready {
		return fmt.Errorf("%w: cannot emit %s", ErrDisconnected, event)
	}
	if err := s.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrSendRejected, event, err)
	}
	return nil
}

// JoinConversation subscribes this session to a conversation's live events.
func (s *Socket) JoinConversation(ctx context.Context, conversationID string) error {
	return s.Emit(ctx, EventJoinConversation, ConversationRef{ConversationID: conversationID})
}

// MarkAsRead reports the conversation as read by this user.
func (s *Socket) MarkAsRead(ctx context.Context, conversationID string) error {
	return s.Emit(ctx, EventMarkAsRead, ConversationRef{ConversationID: conversationID})
}

// TypingStart broadcasts the leading edge of a local typing burst.
func (s *Socket) TypingStart(ctx context.Context, conversationID string) error {
	return s.Emit(ctx, EventTypingStart, ConversationRef{ConversationID: conversationID})
}

// TypingStop broadcasts the trailing edge of a local typing burst.
func (s *Socket) TypingStop(ctx context.Context, conversationID string) error {
	return s.Emit(ctx, EventTypingStop, ConversationRef{ConversationID: conversationID})
}

// SendMessage transmits an outbound message carrying its correlation id.
func (s *Socket) SendMessage(ctx context.Context, msg OutboundMessage) error {
	return s.Emit(ctx, EventSendMessage, msg)
}
