package client

import (
	"context"
	"os"
	"path/filepath"

	"github.com/coachly/chatsync/internal/bus"
	"github.com/coachly/chatsync/internal/config"
	"github.com/coachly/chatsync/internal/lock"
	"github.com/coachly/chatsync/internal/logging"
	"github.com/coachly/chatsync/internal/outbox"
	"github.com/coachly/chatsync/internal/presence"
	"github.com/coachly/chatsync/internal/rest"
	"github.com/coachly/chatsync/internal/status"
	"github.com/coachly/chatsync/internal/store"
	intsync "github.com/coachly/chatsync/internal/sync"
	"github.com/coachly/chatsync/internal/transport"
	"github.com/coachly/chatsync/internal/typing"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved startup configuration passed to the fx module.
type Params struct {
	ConfigPath string
	EnvPath    string // optional env file seeding the bearer token
}

// Module returns the fx module for the sync client, composing all providers
// and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("client",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideToken,
			provideLogger,
			provideLock,
			provideBus,
			provideStateMachine,
			provideMessageStore,
			provideConversationStore,
			providePresence,
			provideRESTClient,
			provideSocket,
			provideTyping,
			provideQueue,
			provideEngine,
		),
		fx.Invoke(registerLifecycle),
	)
}

// token is a distinct type so fx can tell it apart from other strings.
type token string

func provideConfig(p Params) (*config.Config, error) {
	return config.Load(p.ConfigPath)
}

func provideToken(p Params) token {
	return token(config.Token(p.EnvPath))
}

func provideLogger(cfg *config.Config) (*zap.Logger, error) {
	return logging.New(cfg.LogPath, cfg.UserID)
}

// provideLock refuses to start a second client for the same user; two live
// connections would double every send and fight over read receipts.
func provideLock(cfg *config.Config, logger *zap.Logger) (*lock.Lock, error) {
	base, err := os.UserCacheDir()
	if err != nil {
		base = os.TempDir()
	}
	dir := filepath.Join(base, "chatsync", cfg.UserID)
	logger.Info("acquiring client lock", zap.String("dir", dir))
	l, err := lock.Acquire(dir)
	if err != nil {
		return nil, err
	}
	return l, nil
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideMessageStore() *store.MessageStore {
	return store.NewMessageStore()
}

func provideConversationStore() *store.ConversationStore {
	return store.NewConversationStore()
}

func providePresence() *presence.Tracker {
	return presence.NewTracker()
}

func provideRESTClient(cfg *config.Config, tok token, logger *zap.Logger) *rest.Client {
	return rest.NewClient(cfg.RestBaseURL, string(tok), logger)
}

func provideSocket(cfg *config.Config, tok token, b *bus.Bus, m *status.Machine, logger *zap.Logger) *transport.Socket {
	return transport.NewSocket(cfg.SocketURL, string(tok), b, m, logger)
}

func provideTyping(cfg *config.Config, sock *transport.Socket, logger *zap.Logger) *typing.Coordinator {
	return typing.NewCoordinator(sock, cfg.TypingIdle.Std(), cfg.TypingExpiry.Std(), logger)
}

func provideQueue(ms *store.MessageStore, rc *rest.Client, sock *transport.Socket, b *bus.Bus, cfg *config.Config, logger *zap.Logger) *outbox.Queue {
	return outbox.NewQueue(ms, rc, sock, b, cfg.UserID, logger)
}

func provideEngine(rc *rest.Client, sock *transport.Socket, q *outbox.Queue, ms *store.MessageStore,
	cs *store.ConversationStore, pres *presence.Tracker, typ *typing.Coordinator,
	b *bus.Bus, cfg *config.Config, logger *zap.Logger) *intsync.Engine {
	return intsync.NewEngine(rc, sock, q, ms, cs, pres, typ, b, cfg.UserID, cfg.PageSize, logger)
}

func registerLifecycle(lc fx.Lifecycle, sock *transport.Socket, engine *intsync.Engine, typ *typing.Coordinator, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Engine first, so socket events have a consumer from the
			// first frame.
			engine.Start(context.Background())
			typ.Start(context.Background())

			// The first dial and the warm-up fetch happen off the start
			// hook; a slow or down backend must not block startup, the
			// redial loop owns that.
			go func() {
				if err := sock.Start(context.Background()); err != nil {
					logger.Error("socket start failed", zap.Error(err))
				}
			}()
			go func() {
				if err := engine.RefreshConversations(context.Background()); err != nil {
					logger.Warn("initial conversation refresh failed", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			sock.Stop()
			engine.Stop()
			typ.Stop()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing client lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}
