package chatroom

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"time"

	"github.com/go-chi/cors"
	"github.com/putto11262002/chatroom/core"
	"github.com/putto11262002/chatroom/pkg/router"
)

type App struct {
	config      *Config
	db          *core.SQLiteDB
	context     context.Context
	cancel      context.CancelFunc
	server      *http.Server
	logger      *slog.Logger
	router      *router.Router
	eventRouter *core.EventRouter
	wsManager   *core.ConnManager
	broker      *core.Broker
	pipeline    *core.Pipeline

	userStore       core.UserStore
	membershipStore core.MembershipStore
	history         core.HistoryLog
	authStore       core.AuthStore
	roomService     *core.RoomService
	friendService   *core.FriendshipService

	userHandler    *UserHandler
	roomHandler    *RoomHandler
	friendHandler  *FriendHandler
	messageHandler *MessageHandler
	authHandler    *AuthHandler

	cleanupFuncs []func(context.Context)

	wg sync.WaitGroup
}

type Option func(*App)

// WithLogOutput redirects the application log.
func WithLogOutput(w io.Writer) Option {
	return func(app *App) {
		app.logger = NewLogger(w, app.config.LogLevel())
	}
}

// NewLogger returns a text logger that prints the base name of the source file.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:     level,
		AddSource: true,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.SourceKey {
				source, _ := a.Value.Any().(*slog.Source)
				if source != nil {
					source.File = filepath.Base(source.File)
				}
			}
			return a
		},
	}))
}

// New wires every component. Resources opened before a failure are released.
func New(ctx context.Context, config *Config, opts ...Option) (app *App, err error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config:\n%s", FormatValidationErrors(err))
	}

	app = &App{config: config}
	app.context, app.cancel = context.WithCancel(ctx)
	app.logger = NewLogger(os.Stdout, config.LogLevel())
	for _, opt := range opts {
		opt(app)
	}
	defer func() {
		if err != nil {
			app.Close(context.Background())
			app = nil
		}
	}()

	app.db, err = core.NewSQLiteDB(config.SQLite.File, &core.DefaultSQLiteDBOption)
	if err != nil {
		return app, fmt.Errorf("open database: %w", err)
	}
	app.AddCleanupFunc(func(ctx context.Context) {
		app.db.Close()
	})
	if err = app.db.Migrate(); err != nil {
		return app, fmt.Errorf("migrate database: %w", err)
	}

	app.userStore = core.NewSQLiteUserStore(app.db.DB)
	app.membershipStore = core.NewSQLiteMembershipStore(app.db.DB)
	app.authStore = core.NewJWTAuthStore(app.userStore, config.Auth.Secret, config.Auth.TokenTTL)
	app.roomService = core.NewRoomService(app.membershipStore, app.userStore,
		core.WithRoomServiceLogger(app.logger))
	app.friendService = core.NewFriendshipService(core.NewSQLiteFriendshipStore(app.db.DB), app.userStore,
		core.WithFriendshipServiceLogger(app.logger))

	if err = app.openHistory(); err != nil {
		return app, err
	}

	brokerOpts := []core.BrokerOption{core.WithBrokerLogger(app.logger)}
	if config.Redis.URL != "" {
		client, rErr := core.OpenRedis(app.context, config.Redis.URL)
		if rErr != nil {
			return app, rErr
		}
		app.AddCleanupFunc(func(ctx context.Context) {
			client.Close()
		})
		brokerOpts = append(brokerOpts, core.WithRelay(core.NewRedisRelay(client, app.logger)))
	}
	app.broker = core.NewBroker(brokerOpts...)

	app.pipeline = core.NewPipeline(app.history, app.userStore, app.membershipStore, app.broker,
		core.WithPipelineLogger(app.logger),
		core.WithMembershipCheck(config.Chat.RequireMembership))

	app.wsManager = core.NewConnManager(app.context, &app.wg, app.logger,
		core.WithEventRate(config.WS.EventsPerSecond, config.WS.EventBurst),
		core.WithCheckOrigin(app.checkOrigin))
	app.wsManager.OnUserConnected(app.onUserConnected)
	app.wsManager.OnUserDisconnected(app.onUserDisconnected)
	app.wsManager.OnConnectionOpened(app.onConnectionOpen)
	app.wsManager.OnConnectionClosed(app.onConnectionClose)
	app.eventRouter = core.NewEventRouter(app.context, app.logger, app.wsManager)
	app.eventRouter.On(core.JoinRoomEvent, app.JoinRoomEventHandler)
	app.eventRouter.On(core.SendMessageEvent, app.SendMessageEventHandler)

	app.userHandler = NewUserHandler(app.userStore)
	app.roomHandler = NewRoomHandler(app.roomService)
	app.friendHandler = NewFriendHandler(app.friendService)
	app.messageHandler = NewMessageHandler(app.history, app.pipeline)
	app.authHandler = NewAuthHandler(app.authStore)

	app.routes()

	app.server = &http.Server{
		Addr:    fmt.Sprintf("%s:%d", config.Hostname, config.Port),
		Handler: app.router,
		BaseContext: func(listener net.Listener) context.Context {
			return app.context
		},
	}
	if config.Mode == ProdMode {
		app.server.TLSConfig = defaultTLSConfig.Clone()
	}

	return app, nil
}

func (app *App) openHistory() error {
	switch app.config.History.Backend {
	case BadgerHistory:
		bdb, err := core.OpenBadgerDB(app.config.History.BadgerDir)
		if err != nil {
			return fmt.Errorf("open badger: %w", err)
		}
		app.AddCleanupFunc(func(ctx context.Context) {
			bdb.Close()
		})
		history, err := core.NewBadgerHistoryLog(bdb, app.userStore)
		if err != nil {
			return fmt.Errorf("badger history: %w", err)
		}
		app.AddCleanupFunc(func(ctx context.Context) {
			history.Close()
		})
		app.history = history
	default:
		app.history = core.NewSQLiteHistoryLog(app.db.DB, app.userStore)
	}
	return nil
}

func (app *App) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return slices.Contains(app.config.AllowedOrigins, "*") || slices.Contains(app.config.AllowedOrigins, origin)
}

func (app *App) routes() {
	authMiddleware := core.JWTMiddleware(app.authStore)

	app.router = router.New(router.WithLogger(app.logger),
		router.WithErrorMapper(mapCoreError),
		router.WithErrorMapper(mapDecodeError))

	app.router.Router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   app.config.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	app.router.With(authMiddleware).Get("/ws", func(w http.ResponseWriter, r *http.Request) error {
		session := core.SessionFromRequest(r)
		if err := app.wsManager.Connect(session.UserID, w, r); err != nil {
			// the handshake already wrote its response
			app.logger.Debug(fmt.Sprintf("websocket upgrade: %v", err))
		}
		return nil
	})

	app.router.Route("/api", func(api *router.Router) {
		api.Route("/users", func(r *router.Router) {
			r.With(authMiddleware).Get("/me", app.userHandler.MeHandler)
			r.Post("/", app.userHandler.RegisterUserHandler)
			r.Get("/{username}", app.userHandler.GetUserByUsernameHandler)
		})

		api.Route("/auth", func(r *router.Router) {
			r.Post("/signin", app.authHandler.SigninHandler)
		})

		api.Route("/rooms", func(r *router.Router) {
			r.Use(authMiddleware)
			r.Get("/", app.roomHandler.ListRoomsHandler)
			r.Post("/direct", app.roomHandler.CreateDirectRoomHandler)
			r.Get("/direct", app.roomHandler.FindDirectRoomHandler)
			r.Post("/group", app.roomHandler.CreateGroupRoomHandler)
			r.Get("/{roomID}", app.roomHandler.GetRoomInfoHandler)
			r.Get("/{roomID}/members", app.roomHandler.ListMembersHandler)
			r.Post("/{roomID}/members", app.roomHandler.JoinRoomHandler)
			r.Delete("/{roomID}/members/{userID}", app.roomHandler.LeaveRoomHandler)
			r.Get("/{roomID}/messages", app.messageHandler.ListHistoryHandler)
			r.Post("/{roomID}/messages", app.messageHandler.SendMessageHandler)
		})

		api.Route("/friends", func(r *router.Router) {
			r.Use(authMiddleware)
			r.Get("/", app.friendHandler.ListFriendsHandler)
			r.Delete("/{userID}", app.friendHandler.RemoveFriendHandler)
			r.Get("/requests", app.friendHandler.ListRequestsHandler)
			r.Post("/requests", app.friendHandler.AddFriendHandler)
			r.Post("/requests/{userID}/agree", app.friendHandler.AgreeHandler)
			r.Post("/requests/{userID}/reject", app.friendHandler.RejectHandler)
		})
	})
}

// Handler returns the root HTTP handler.
func (app *App) Handler() http.Handler {
	return app.router
}

// listen starts the broker and the websocket event loop.
func (app *App) listen() {
	app.broker.Start(app.context)
	app.eventRouter.Listen()
	app.AddCleanupFunc(func(ctx context.Context) {
		app.broker.Close()
	})
	app.AddCleanupFunc(func(ctx context.Context) {
		app.eventRouter.Close(ctx)
	})
	app.AddCleanupFunc(func(ctx context.Context) {
		app.wsManager.CloseAll()
	})
}

// Start serves until the parent context is done, then shuts down gracefully.
func (app *App) Start() error {
	app.listen()

	serveErr := make(chan error, 1)
	go func() {
		app.logger.Info(fmt.Sprintf("app running in %s mode on: %s", app.config.Mode, app.server.Addr))
		var err error
		if app.config.TLS.Key != "" && app.config.TLS.Crt != "" {
			err = app.server.ListenAndServeTLS(app.config.TLS.Crt, app.config.TLS.Key)
		} else {
			err = app.server.ListenAndServe()
		}
		serveErr <- err
	}()

	var err error
	select {
	case err = <-serveErr:
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
	case <-app.context.Done():
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if shutdownErr := app.server.Shutdown(closeCtx); shutdownErr != nil && err == nil {
		err = fmt.Errorf("shutdown: %w", shutdownErr)
	}
	if closeErr := app.Close(closeCtx); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func (app *App) AddCleanupFunc(f func(context.Context)) {
	app.cleanupFuncs = append(app.cleanupFuncs, f)
}

// Close runs the cleanup functions in reverse order of registration.
func (app *App) Close(ctx context.Context) error {
	app.cancel()
	funcs := app.cleanupFuncs
	app.cleanupFuncs = nil
	for i := len(funcs) - 1; i >= 0; i-- {
		funcs[i](ctx)
	}

	done := make(chan struct{})
	go func() {
		app.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		app.logger.Info("app shutdown gracefully")
		return nil
	case <-ctx.Done():
		return errors.New("app shutdown timed out")
	}
}

// Migrate applies the database migrations without starting the server.
func Migrate(config *Config) error {
	db, err := core.NewSQLiteDB(config.SQLite.File, &core.DefaultSQLiteDBOption)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()
	return db.Migrate()
}
