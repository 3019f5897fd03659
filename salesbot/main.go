package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"salesbot/salesbot/config"
	"salesbot/salesbot/controllers"
	"salesbot/salesbot/middlewares"
	"salesbot/salesbot/routes"
	"salesbot/salesbot/services/llm"
	"salesbot/salesbot/services/notifier"
	"salesbot/salesbot/services/persona"
	"salesbot/salesbot/services/tasks"
	"salesbot/salesbot/sources/psql"
	"salesbot/salesbot/sources/psql/dao"
	"salesbot/salesbot/sources/storage"
	"salesbot/salesbot/utils/logging"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

func main() {
	cfg := config.LoadConfig()
	logging.InitLogger(cfg.LogDir)
	defer logging.Sync()

	if err := cfg.Validate(); err != nil {
		logging.ErrorLogger.Error("invalid configuration", zap.Error(err))
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := psql.NewDatabase(ctx, cfg)
	if err != nil {
		logging.ErrorLogger.Error("database connection error", zap.Error(err))
		os.Exit(1)
	}
	defer db.Close()

	llmClient, err := llm.NewClient(context.Background(), cfg)
	if err != nil {
		logging.ErrorLogger.Error("llm client error", zap.Error(err))
		os.Exit(1)
	}
	outbound, err := notifier.NewNotifier(cfg)
	if err != nil {
		logging.ErrorLogger.Error("notifier error", zap.Error(err))
		os.Exit(1)
	}
	personas, err := persona.LoadCatalog(cfg.PersonaFile)
	if err != nil {
		logging.ErrorLogger.Error("persona file error", zap.Error(err))
		os.Exit(1)
	}

	var archiver controllers.TranscriptArchiver
	minioClient, err := storage.NewMinIOClient(ctx, cfg)
	if err != nil {
		logging.ErrorLogger.Error("minio connection error", zap.Error(err))
		os.Exit(1)
	}
	if minioClient != nil {
		archiver = minioClient
	}

	chatDAO := dao.NewChatDAO(db.DB)
	chatCtrl := controllers.NewChatController(chatDAO, llmClient, outbound, personas, archiver, controllers.ChatOptions{
		Model:       cfg.Model(),
		Channel:     cfg.SlackChannel,
		DisplayName: cfg.BotDisplayName,
	})
	sqlDB, err := db.DB.DB()
	if err != nil {
		logging.ErrorLogger.Error("database handle error", zap.Error(err))
		os.Exit(1)
	}
	healthCtrl := controllers.NewHealthController(sqlDB)
	runner := tasks.NewRunner()

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middlewares.RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{cfg.ClientOrigin},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: cfg.ClientOrigin != "*",
	}))

	r.Mount("/health", routes.HealthRoutes(healthCtrl))
	r.Mount("/"+cfg.PathAPI+"/chat", routes.ChatRoutes(chatCtrl, runner, cfg))

	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: r,
	}
	go func() {
		logging.AppLogger.Info("listening",
			zap.String("addr", srv.Addr),
			zap.String("prefix", "/"+cfg.PathAPI+"/chat"),
			zap.String("llm", cfg.LLMProvider),
			zap.String("notifier", cfg.Notifier),
			zap.Bool("verify_signature", cfg.SlackVerifySignature),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorLogger.Error("server listen error", zap.Error(err))
		}
	}()
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.ErrorLogger.Error("server shutdown error", zap.Error(err))
	}
	// replies still being generated get the rest of the shutdown window
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logging.ErrorLogger.Error("background tasks abandoned", zap.Error(err))
	}
	if c, ok := llmClient.(*llm.GeminiClient); ok {
		c.Close()
	}
	logging.AppLogger.Info("server shutdown complete")
}
