package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/taskwire/taskwire/internal/broadcast"
	"github.com/taskwire/taskwire/internal/registry"
	"github.com/taskwire/taskwire/internal/rooms"
	"github.com/taskwire/taskwire/internal/router"
	"github.com/taskwire/taskwire/internal/server/middleware"
	"github.com/taskwire/taskwire/pkg/config"
	"github.com/taskwire/taskwire/pkg/permission"
	"github.com/taskwire/taskwire/pkg/transport"
)

type App struct {
	logger      *slog.Logger
	registry    *registry.Registry
	rooms       *rooms.Tracker
	resolver    *permission.Resolver
	broadcaster *broadcast.Engine
	eventRouter *router.Router
	wg          sync.WaitGroup
	http        *http.Server
	config      *config.Config

	ctx context.Context
}

func NewApp(logger *slog.Logger, rootCtx context.Context, cfg *config.Config, store permission.Store) *App {
	reg := registry.New(logger)
	tracker := rooms.NewTracker(logger)
	resolver := permission.NewResolver(store, logger)
	broadcaster := broadcast.NewEngine(resolver, reg, tracker, logger)
	eventRouter := router.New(logger, reg, tracker, resolver)

	app := &App{
		logger:      logger,
		registry:    reg,
		rooms:       tracker,
		resolver:    resolver,
		broadcaster: broadcaster,
		eventRouter: eventRouter,
		config:      cfg,
		ctx:         rootCtx,
	}

	mux := http.NewServeMux()
	upgradeHandler := http.HandlerFunc(app.upgradeHandler)
	connCycler := func(userID string) {
		oldest, found := reg.OldestUserConnection(userID)
		if found {
			logger.Info("Cycling connection: closing oldest",
				slog.String("userID", userID),
				slog.String("connID", oldest.ID.String()),
			)
			oldest.Transport.Close(errors.New("connection cycled by new connection"))
		}
	}

	mux.Handle("/ws",
		middleware.Chain(upgradeHandler,
			middleware.RequestMetadataMiddleware(),
			middleware.NewRequestLogger(app.logger),
			middleware.NewAuthMiddleware(logger, app.config.Server.Auth.JWTSecret),
			middleware.NewConnectionLimiter(
				logger,
				reg.UserConnectionCount,
				connCycler,
				app.config.Server.ConnectionLimit,
			),
		),
	)

	app.http = &http.Server{
		Addr:    app.config.Server.Address,
		Handler: mux,
		BaseContext: func(l net.Listener) context.Context {
			return app.ctx
		},
	}

	return app
}

// Broadcaster exposes the broadcast engine to the wider application; the
// CRUD layer drives mutation and share-change broadcasts through it.
func (a *App) Broadcaster() *broadcast.Engine {
	return a.broadcaster
}

func (a *App) Run() error {
	go a.rooms.RunReconciler(a.ctx, a.config.Rooms.ReconcileInterval, a.registry.Alive)

	go func() {
		a.logger.Info("Server starting", slog.String("addr", a.http.Addr))
		if err := a.http.ListenAndServe(); err != http.ErrServerClosed {
			a.logger.Error("HTTP server failed", slog.Any("error", err))
		}
	}()

	<-a.ctx.Done()
	return a.Shutdown()
}

func (a *App) upgradeHandler(w http.ResponseWriter, r *http.Request) {
	reqMeta, ok := middleware.ReqMetadataFrom(r.Context())
	if !ok || reqMeta.UserID == "" {
		// The auth middleware guarantees an identity here; anything else is
		// a wiring fault.
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	connLogger := a.logger.With(
		slog.String("remoteAddr", reqMeta.IP),
		slog.String("userID", reqMeta.UserID),
	)

	wsConn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		a.logger.Error("Failed to accept websocket connection", slog.Any("error", err))
		return
	}

	conn := transport.NewConnection(
		r.Context(),
		&a.wg,
		wsConn,
		transport.ConnectionConfig(a.config.Transport),
		nil,
		nil,
		a.logger,
	)

	if _, err := a.registry.Register(conn, reqMeta.IP); err != nil {
		connLogger.Error("Failed to register connection", slog.Any("error", err))
		conn.Close(err)
		return
	}
	if _, err := a.registry.Identify(conn.ID(), registry.Identity{
		ID:    reqMeta.UserID,
		Email: reqMeta.Email,
		Name:  reqMeta.Name,
	}); err != nil {
		connLogger.Error("Failed to identify connection", slog.Any("error", err))
		conn.Close(err)
		return
	}

	conn.SetOnMessageHandler(a.eventRouter.HandleMessage)
	conn.SetOnCloseHandler(func(id uuid.UUID, err error) {
		connLogger.Info("Cleaning up closed connection", slog.String("connID", id.String()))
		a.eventRouter.OnDisconnect(id)
	})

	connLogger.Info("User connection fully established")
	conn.Run()
	<-conn.Done()
}

// Shutdown runs the graceful shutdown sequence.
func (a *App) Shutdown() error {
	a.logger.Info("Shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.http.Shutdown(shutdownCtx); err != nil {
		return err
	}

	// close all active WebSocket connections.
	a.logger.Info("Closing all active connections...")
	for _, conn := range a.registry.All() {
		conn.Transport.Close(errors.New("graceful shutdown"))
	}

	// wait for all connection goroutines to finish their cleanup.
	a.wg.Wait()
	a.logger.Info("Server shut down gracefully.")
	return nil
}
