// API личных сообщений: REST + WebSocket (presence, живая доставка, подтверждения прочтения).
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	embeddedpostgres "github.com/fergusstrange/embedded-postgres"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmchat/internal/auth"
	"github.com/dmchat/internal/blob"
	"github.com/dmchat/internal/chat"
	"github.com/dmchat/internal/config"
	"github.com/dmchat/internal/handler"
	"github.com/dmchat/internal/logger"
	"github.com/dmchat/internal/middleware"
	"github.com/dmchat/internal/presence"
	"github.com/dmchat/internal/push"
	"github.com/dmchat/internal/repository"
	"github.com/dmchat/internal/startup"
	"github.com/dmchat/internal/storage"
	"github.com/dmchat/internal/storage/memory"
	"github.com/dmchat/internal/ws"
)

// userStore объединяет то, что нужно обработчикам и chat.Service от хранилища пользователей.
type userStore interface {
	handler.UserStore
	chat.AccountStore
}

func main() {
	logger.SetPrefix("api")
	migrate := flag.Bool("migrate", false, "run database migrations and exit")
	dev := flag.Bool("dev", false, "start with embedded PostgreSQL (no external DB required)")
	inMemory := flag.Bool("memory", false, "keep users and messages in process memory (no database)")
	flag.Parse()

	logger.Info("starting API service")
	cfg := config.Load()
	logger.SetLevel(cfg.LogLevel)

	var (
		users    userStore
		messages chat.MessageStore
	)
	if *inMemory {
		logger.Info("storage: in-memory users and messages")
		users = memory.NewUsers()
		messages = memory.NewMessages()
	} else {
		if *dev {
			embeddedDB, err := startEmbeddedPostgres(cfg)
			if err != nil {
				logger.Errorf("embedded postgres: %v", err)
				os.Exit(1)
			}
			defer func() {
				logger.Info("stopping embedded postgres...")
				if err := embeddedDB.Stop(); err != nil {
					logger.Errorf("embedded postgres stop: %v", err)
				}
			}()
		}
		pool, err := connectDB(cfg)
		if err != nil {
			logger.Errorf("database: %v", err)
			os.Exit(1)
		}
		defer pool.Close()
		if *migrate && !*dev {
			return
		}
		users = repository.NewUserRepository(pool)
		messages = repository.NewMessageRepository(pool)
	}

	var store storage.Store
	if cfg.RedisURL != "" {
		rc, err := startup.ConnectRedis(cfg.RedisURL, 60*time.Second)
		if err != nil {
			logger.Errorf("redis: %v", err)
			os.Exit(1)
		}
		store = rc
		logger.Info("storage: redis for rate limits and push subscriptions")
	} else {
		store = memory.New()
		logger.Info("storage: REDIS_URL not set, rate limits and push subscriptions in memory")
	}
	defer store.Close()

	var (
		notifier      chat.Notifier
		pushPublicKey string
	)
	if cfg.Push.Enabled {
		keys, err := push.EnsureVAPIDKeys(cfg.Push.VAPIDKeysFile)
		if err != nil {
			logger.Errorf("vapid keys: %v", err)
			os.Exit(1)
		}
		n := push.NewNotifier(store, keys, cfg.Push.Subscriber)
		notifier = n
		pushPublicKey = n.PublicKey()
	}

	reg := presence.NewRegistry()
	counter := chat.NewCounter(messages)
	svc := chat.NewService(users, messages, chat.NewRouter(reg), counter, notifier)

	hubCtx, hubCancel := context.WithCancel(context.Background())
	hub := ws.NewHub(reg, svc, cfg.WS.MaxConnections)
	var hubWg sync.WaitGroup
	hubWg.Add(1)
	go func() {
		defer hubWg.Done()
		hub.Run(hubCtx)
	}()

	images := blob.New(cfg.UploadDir, cfg.PublicBaseURL, cfg.MaxUploadSize)
	tokens := auth.NewTokens(cfg.JWTSecret, cfg.TokenTTL)

	authH := handler.NewAuthHandler(users, tokens, images, cfg.MaxBodySize)
	msgH := handler.NewMessageHandler(svc, users, images, cfg.MaxBodySize)
	imageH := handler.NewImageHandler(images)
	pushH := handler.NewPushHandler(store, pushPublicKey)
	wsH := handler.NewWSHandler(hub, ws.Options{
		SendBufferSize: cfg.WS.SendBufferSize,
		WriteWait:      cfg.WS.WriteTimeout,
		PongWait:       cfg.WS.PongTimeout,
		MaxMessageSize: cfg.WS.MaxMessageSize,
	}, cfg.AllowedOrigins())

	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(chimw.Logger)
	r.Use(middleware.RecoverJSON)
	// Не сжимать WebSocket — иначе ResponseWriter не реализует http.Hijacker и upgrade даёт 500.
	r.Use(func(next http.Handler) http.Handler {
		compressed := chimw.Compress(5)(next)
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			if strings.EqualFold(req.Header.Get("Upgrade"), "websocket") {
				next.ServeHTTP(w, req)
				return
			}
			compressed.ServeHTTP(w, req)
		})
	})
	r.Use(middleware.RequestLog)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins(),
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "token"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK); w.Write([]byte("ok")) })
	r.Get("/api/status", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("Server is live")) })
	r.Get("/api/config/push", pushH.GetConfig)
	r.Get("/api/images/{name}", imageH.Serve)

	r.With(middleware.RateLimit(store, "auth", 20, time.Minute)).Group(func(r chi.Router) {
		r.Post("/api/auth/signup", authH.Signup)
		r.Post("/api/auth/login", authH.Login)
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.JWTAuth(tokens))

		r.Get("/ws", wsH.ServeWS)

		r.Get("/api/auth/check", authH.Check)
		r.Put("/api/auth/update-profile", authH.UpdateProfile)

		r.Get("/api/messages/users", msgH.GetUsers)
		r.Get("/api/messages/{id}", msgH.GetMessages)
		r.Put("/api/messages/mark/{id}", msgH.MarkSeen)
		r.With(middleware.RateLimit(store, "send", cfg.SendRateLimit, time.Minute)).
			Post("/api/messages/send/{id}", msgH.Send)

		r.Post("/api/push/subscribe", pushH.Subscribe)
		r.Post("/api/push/unsubscribe", pushH.Unsubscribe)
	})

	srv := &http.Server{
		Addr:         cfg.ServerAddr,
		Handler:      r,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	var srvWg sync.WaitGroup
	srvWg.Add(1)
	go func() {
		defer srvWg.Done()
		logger.Infof("API server listening on %s", cfg.ServerAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Errorf("server error: %v", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit
	logger.Infof("received signal %v, shutting down...", sig)

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Errorf("server shutdown: %v", err)
	}
	logger.Info("server stopped accepting connections")
	hubCancel()
	hubWg.Wait()
	logger.Info("hub stopped")
	srvWg.Wait()
}

func connectDB(cfg *config.Config) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.Database.URL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}
	poolCfg.MaxConns = int32(cfg.Database.MaxConnections)
	poolCfg.MinConns = 2

	pool, err := startup.ConnectDB(poolCfg, 60*time.Second)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := startup.Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	logger.Info("database connected, migrations applied")
	return pool, nil
}

func startEmbeddedPostgres(cfg *config.Config) (*embeddedpostgres.EmbeddedPostgres, error) {
	const (
		port     = 5432
		user     = "dmchat"
		password = "dmchat_secret"
		database = "dmchat"
	)

	dataDir := filepath.Join(".", ".pgdata")
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create pgdata dir: %w", err)
	}

	db := embeddedpostgres.NewDatabase(
		embeddedpostgres.DefaultConfig().
			Port(port).
			Username(user).
			Password(password).
			Database(database).
			DataPath(dataDir).
			RuntimePath(filepath.Join(os.TempDir(), "embedded-pg-runtime")),
	)

	logger.Info("starting embedded PostgreSQL...")
	if err := db.Start(); err != nil {
		return nil, fmt.Errorf("start: %w", err)
	}

	cfg.Database.URL = fmt.Sprintf(
		"postgres://%s:%s@localhost:%d/%s?sslmode=disable",
		user, password, port, database,
	)
	logger.Infof("embedded PostgreSQL running on port %d", port)
	return db, nil
}
