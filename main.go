package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"volunteerconnect/config"
	"volunteerconnect/middleware"
	"volunteerconnect/routes"
	"volunteerconnect/utils"
	"volunteerconnect/worker"
)

func main() {
	// Load configuration
	if err := config.LoadConfig(); err != nil {
		logrus.Fatalf("Failed to load configuration: %v", err)
	}
	utils.ConfigureLogging(config.AppConfig.Environment)

	if err := utils.InitSentry(config.AppConfig.SentryDSN, config.AppConfig.Environment); err != nil {
		logrus.WithError(err).Warn("Sentry initialization failed, continuing without error reporting")
	}
	defer utils.FlushSentry()

	// Initialize database connection
	if err := config.ConnectDB(); err != nil {
		logrus.Fatalf("Failed to connect to database: %v", err)
	}

	storage := middleware.NewRateLimitStorage(config.AppConfig.Redis)
	services := routes.Services{
		Mailer:  utils.NewMailer(config.AppConfig),
		Chat:    utils.NewChatClient(config.AppConfig.Chat),
		Storage: storage,
		Uploads: utils.ImageUpload{
			Dir:          config.AppConfig.UploadDir,
			PublicPrefix: config.AppConfig.PublicUploadPrefix,
			MaxBytes:     int64(config.AppConfig.MaxUploadSizeMB) * 1024 * 1024,
		},
	}

	app := routes.NewApp(config.AppConfig)
	routes.SetupRoutes(app, config.DB, services)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resetTokenWorker := worker.NewResetTokenWorker(config.DB, utils.NewLogger("reset_token_worker"), 15*time.Minute)
	go resetTokenWorker.Start(ctx)

	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logrus.Info("Shutting down server...")
		cancel()
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			logrus.WithError(err).Error("Server shutdown failed")
		}
	}()

	logrus.Infof("Server starting on port %s", config.AppConfig.ServerPort)
	if err := app.Listen(":" + config.AppConfig.ServerPort); err != nil {
		logrus.Fatalf("Failed to start server: %v", err)
	}

	if storage != nil {
		if err := storage.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close rate limit storage")
		}
	}
	if err := config.CloseDB(); err != nil {
		logrus.WithError(err).Error("Failed to close database")
	}
	logrus.Info("Server stopped")
}
