package main

import (
	"context"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"finsite/config"
	"finsite/database"
	"finsite/handlers"
	"finsite/logging"
	"finsite/middleware"
	"finsite/repositories"
	"finsite/routes"
	"finsite/storage"
	"finsite/websocket"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Log.WithError(err).Fatal("invalid configuration")
	}
	logging.Init(cfg.Env)
	logging.Log.Info("starting finsite backend")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := connectWithRetry(ctx, cfg, 3)
	if err != nil {
		logging.Log.WithError(err).Fatal("failed to connect to MongoDB")
	}
	defer db.Disconnect()

	indexCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	err = db.EnsureIndexes(indexCtx)
	cancel()
	if err != nil {
		logging.Log.WithError(err).Fatal("failed to create indexes")
	}
	logging.Log.WithField("database", cfg.MongoDatabase).Info("MongoDB ready")

	users := repositories.NewUserRepository(db, cfg.DefaultSignInRole)
	gate := users.Gate()

	hub := websocket.NewManager()
	go hub.Run(ctx)

	h := &handlers.Handler{
		Users:         users,
		Publications:  repositories.NewPublicationRepository(db, gate),
		Media:         repositories.NewMediaRepository(db, gate),
		Categories:    repositories.NewCategoryRepository(db, gate),
		Feed:          hub,
		Google:        handlers.NewGoogleOAuthConfig(cfg.GoogleClientID, cfg.GoogleClientSecret, cfg.GoogleRedirectURL),
		JWTSecret:     cfg.JWTSecret,
		JWTTTL:        cfg.JWTTTL,
		SecureCookies: cfg.IsProduction(),
	}
	if h.Google == nil {
		logging.Log.Warn("Google OAuth not configured, set GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET")
	}

	if cfg.CloudinaryURL != "" {
		files, err := storage.NewCloudinary(cfg.CloudinaryURL, cfg.CloudinaryFolder)
		if err != nil {
			logging.Log.WithError(err).Fatal("invalid CLOUDINARY_URL")
		}
		h.Files = files
	} else {
		logging.Log.Warn("CLOUDINARY_URL not set, file uploads disabled")
	}

	limiter := middleware.NewIPRateLimiter(cfg.AuthRateLimit, time.Minute)
	go sweep(ctx, limiter)

	gin.SetMode(cfg.GinMode)
	router := routes.SetupRouter(h, hub, routes.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		JWTSecret:      cfg.JWTSecret,
		AuthLimiter:    limiter,
	})

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logging.Log.WithField("port", cfg.Port).Info("server listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.Log.WithError(err).Fatal("server error")
		}
	}()

	<-ctx.Done()
	logging.Log.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logging.Log.WithError(err).Error("forced shutdown")
	}
	logging.Log.Info("server stopped")
}

func connectWithRetry(ctx context.Context, cfg *config.Config, attempts int) (*database.DB, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		db, err := database.Connect(connectCtx, cfg.MongoURI, cfg.MongoDatabase, cfg.UseTransactions)
		cancel()
		if err == nil {
			return db, nil
		}

		lastErr = err
		logging.Log.WithError(err).WithField("attempt", i).Warn("MongoDB connection attempt failed")
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
	return nil, errors.Wrapf(lastErr, "after %d attempts", attempts)
}

func sweep(ctx context.Context, limiter *middleware.IPRateLimiter) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			limiter.Sweep()
		}
	}
}
