package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"

	"github.com/babynest/backend/internal/config"
	"github.com/babynest/backend/internal/database"
	"github.com/babynest/backend/internal/handlers"
	"github.com/babynest/backend/internal/middleware"
	"github.com/babynest/backend/internal/repositories"
	"github.com/babynest/backend/internal/routes"
	"github.com/babynest/backend/internal/services"
	"github.com/babynest/backend/pkg/logger"
)

// memoryStoreURI selects the in-process stores, for local development only.
const memoryStoreURI = "memory"

type stores struct {
	users    repositories.UserStore
	journals repositories.JournalStore
	messages repositories.MessageStore
}

func main() {
	if err := godotenv.Load(); err != nil {
		logger.Info("no .env file found")
	}
	if err := run(); err != nil {
		logger.Error("server exited", "error", err)
		os.Exit(1)
	}
}

// run owns every resource it opens, so its defers always execute before the
// process exits.
func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if err := logger.Configure(logger.Options{
		Level: cfg.LogLevel,
		File:  cfg.LogFile,
		JSON:  cfg.IsProduction(),
	}); err != nil {
		logger.Warn("logger options ignored", "error", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, err := openStores(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer func() {
		if err := database.Disconnect(); err != nil {
			logger.Warn("mongo disconnect failed", "error", err)
		}
	}()

	hub := services.NewHub()
	tokens := services.NewTokenManager(cfg.JWTSecret, cfg.JWTExpiresIn)

	var (
		revoker     services.TokenRevoker = services.NewMemoryTokenRevoker()
		broadcaster services.Broadcaster  = services.NewLocalBroadcaster(hub)
		partners    services.PartnerCache
		windowLimit *middleware.RedisRateLimiter
	)
	if cfg.RedisURI != "" {
		if err := database.ConnectRedis(cfg.RedisURI); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		defer func() { _ = database.DisconnectRedis() }()

		revoker = services.NewRedisTokenRevoker(database.RedisClient)
		partners = services.NewRedisPartnerCache(services.NewRedisCache(database.RedisClient))
		redisBroadcaster := services.NewRedisBroadcaster(database.RedisClient, hub)
		go redisBroadcaster.Run(ctx)
		broadcaster = redisBroadcaster
		windowLimit = middleware.NewRedisRateLimiter(database.RedisClient, cfg.TrustProxy)
	} else {
		logger.Warn("REDIS_URI not set: chat fan-out, logout revocation and rate limits are local to this instance")
	}

	var uploader services.Uploader = services.DisabledUploader{}
	if cfg.CloudinaryEnabled() {
		cld, err := services.NewCloudinaryService(cfg.CloudinaryName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret)
		if err != nil {
			logger.Warn("cloudinary unavailable, journal images disabled", "error", err)
		} else {
			uploader = cld
		}
	} else {
		logger.Warn("cloudinary credentials not found, journal images disabled")
	}

	var mailer services.Mailer
	switch {
	case cfg.Mail.Enabled():
		smtp, err := services.NewSMTPMailer(cfg.Mail)
		if err != nil {
			return fmt.Errorf("invalid mail configuration: %w", err)
		}
		mailer = smtp
	case !cfg.IsProduction():
		logger.Warn("MAIL_HOST not set, reset codes are written to the debug log")
		mailer = services.LogMailer{}
	default:
		logger.Warn("MAIL_HOST not set, password reset is unavailable")
	}

	var google *services.GoogleOAuth
	if cfg.Google.Enabled() {
		google = services.NewGoogleOAuth(cfg.Google, tokens)
	}

	authService := services.NewAuthService(st.users, tokens, revoker, mailer)
	chatService := services.NewChatService(hub, st.messages, broadcaster, partners)

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	if cfg.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.Recoverer)
	r.Use(middleware.RequestLogger)
	r.Use(middleware.CORS(cfg.AllowedOrigins))
	r.Use(middleware.SecurityHeaders)
	if cfg.IsProduction() {
		r.Use(middleware.StrictTransport)
	}
	if windowLimit != nil {
		r.Use(windowLimit.Middleware)
	}

	routes.SetupRoutes(r, routes.Handlers{
		Auth:          handlers.NewAuthHandler(authService, google, cfg.FrontendURL, cfg.IsProduction()),
		User:          handlers.NewUserHandler(services.NewUserService(st.users)),
		Journal:       handlers.NewJournalHandler(services.NewJournalService(st.journals, uploader)),
		Chat:          handlers.NewChatHandler(chatService, authService, cfg.AllowedOrigins),
		Authenticator: authService,
		AuthLimiter:   middleware.NewAuthRateLimiter(cfg.TrustProxy),
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("BabyNest backend listening", "addr", srv.Addr, "env", cfg.Environment)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-serveErr:
		if err != nil {
			hub.CloseAll()
			return fmt.Errorf("server failed: %w", err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	hub.CloseAll()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	return nil
}

func openStores(ctx context.Context, cfg *config.Config) (*stores, error) {
	if strings.EqualFold(cfg.MongoURI, memoryStoreURI) {
		if cfg.IsProduction() {
			return nil, errors.New("MONGODB_URI=memory is not allowed in production")
		}
		logger.Warn("using in-memory stores, data is lost on restart")
		return &stores{
			users:    repositories.NewInMemoryUserStore(),
			journals: repositories.NewInMemoryJournalStore(),
			messages: repositories.NewInMemoryMessageStore(),
		}, nil
	}

	if err := database.Connect(cfg.MongoURI, cfg.MongoDatabase); err != nil {
		return nil, err
	}
	indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := repositories.EnsureIndexes(indexCtx, database.DB); err != nil {
		return nil, err
	}
	return &stores{
		users:    repositories.NewMongoUserStore(database.DB),
		journals: repositories.NewMongoJournalStore(database.DB),
		messages: repositories.NewMongoMessageStore(database.DB),
	}, nil
}
