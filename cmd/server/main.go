package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/suPer8Hu/mindease/internal/ai"
	"github.com/suPer8Hu/mindease/internal/chat"
	"github.com/suPer8Hu/mindease/internal/config"
	"github.com/suPer8Hu/mindease/internal/crisis"
	"github.com/suPer8Hu/mindease/internal/db"
	"github.com/suPer8Hu/mindease/internal/httpapi"
	"github.com/suPer8Hu/mindease/internal/httpapi/handlers"
	"github.com/suPer8Hu/mindease/internal/logging"
	"github.com/suPer8Hu/mindease/internal/settings"
	"github.com/suPer8Hu/mindease/internal/store/rabbitmq"
	"github.com/suPer8Hu/mindease/internal/store/redisstore"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("create logger: %v", err)
	}
	defer logger.Sync()

	gin.SetMode(gin.ReleaseMode)

	gdb, err := db.Connect(cfg.DBDSN)
	if err != nil {
		logger.Fatal("connect db", zap.Error(err))
	}
	if err := db.Migrate(gdb); err != nil {
		logger.Fatal("migrate db", zap.Error(err))
	}

	// Redis only caches preferences; run without it when unreachable.
	var cache settings.Cache
	rds := redisstore.NewStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	pingCtx, cancelPing := context.WithTimeout(context.Background(), 3*time.Second)
	if err := rds.Ping(pingCtx); err != nil {
		logger.Warn("redis unavailable, preference cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
		_ = rds.Close()
	} else {
		cache = rds
		defer rds.Close()
	}
	cancelPing()

	lexicon := crisis.Default()
	if cfg.CrisisLexiconPath != "" {
		lexicon, err = crisis.LoadFile(cfg.CrisisLexiconPath)
		if err != nil {
			logger.Fatal("load crisis lexicon", zap.String("path", cfg.CrisisLexiconPath), zap.Error(err))
		}
	}

	defaultPref := settings.Preference{
		Provider:           cfg.DefaultProvider(),
		OllamaBaseURL:      cfg.OllamaBaseURL,
		OllamaModel:        cfg.OllamaModel,
		ConversationMemory: true,
	}
	settingsSvc := settings.NewService(gdb, cache, cfg.PreferenceTTL, settings.Defaults{
		Provider:           defaultPref.Provider,
		OllamaBaseURL:      defaultPref.OllamaBaseURL,
		OllamaModel:        defaultPref.OllamaModel,
		ConversationMemory: defaultPref.ConversationMemory,
	}, logger)

	registry := ai.NewDefaultRegistry(ai.Defaults{
		GoogleBaseURL: cfg.GoogleBaseURL,
		GoogleAPIKey:  cfg.GoogleAPIKey,
		GoogleModel:   cfg.GoogleModel,
		OllamaBaseURL: cfg.OllamaBaseURL,
		OllamaModel:   cfg.OllamaModel,
		OpenAIBaseURL: cfg.OpenAIBaseURL,
		OpenAIAPIKey:  cfg.OpenAIAPIKey,
		OpenAIModel:   cfg.OpenAIModel,
		RetryAttempts: cfg.OllamaRetries,
		RetryBase:     cfg.OllamaRetryBase,
		ProbeTimeout:  cfg.ProbeTimeout,
	})

	chatSvc := chat.NewService(chat.NewRepo(gdb), registry, settingsSvc, chat.Config{
		ContextWindowSize: cfg.ChatContextWindowSize,
		GenerationTimeout: cfg.GenerationTimeout,
		ProbeTimeout:      cfg.ProbeTimeout,
		DefaultPreference: defaultPref,
	}, logger).WithLexicon(lexicon)

	// Alerts are still recorded without a broker; they stay queued.
	if pub, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue); err != nil {
		logger.Warn("rabbitmq unavailable, crisis alerts will not be delivered", zap.Error(err))
	} else {
		chatSvc.WithAlerts(pub)
		defer pub.Close()
	}

	h := handlers.NewHandler(gdb, cfg, chatSvc, settingsSvc, logger)
	router := httpapi.NewRouter(h, logger)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: cfg.GenerationTimeout + 15*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting mindease server",
			zap.String("address", cfg.HTTPAddr),
			zap.String("default_provider", defaultPref.Provider),
			zap.Strings("providers", registry.Names()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}
