package main

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"matchroom/backend/internal/api/handler"
	"matchroom/backend/internal/config"
	"matchroom/backend/internal/coordinator"
	"matchroom/backend/internal/evaluator"
	"matchroom/backend/internal/evaluator/gemini"
	"matchroom/backend/internal/logger"
	"matchroom/backend/internal/storage"
)

func setupStore(cfg config.Config, log *zap.Logger) storage.Store {
	if cfg.Store == "memory" {
		log.Warn("using in-memory room store; rooms will not survive restarts")
		return storage.NewMemoryService()
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		log.Fatal("failed to connect redis", zap.String("addr", cfg.RedisAddr), zap.Error(err))
	}
	return storage.NewRedisService(rdb)
}

func setupEvaluator(cfg config.Config, log *zap.Logger) evaluator.Evaluator {
	if cfg.GeminiAPIKey == "" {
		log.Fatal("GEMINI_API_KEY is not set")
	}

	generator, err := gemini.NewGenerator(context.Background(), cfg.GeminiAPIKey, cfg.GeminiModel)
	if err != nil {
		log.Fatal("failed to create gemini client", zap.Error(err))
	}
	log.Info("evaluator ready", zap.String("model", generator.Model()))
	return gemini.NewScorer(generator, log)
}

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	log, err := logger.New(cfg.LogJSON, cfg.Debug)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if envErr != nil {
		// Deployed environments configure through real env vars.
		log.Debug("no .env file loaded", zap.Error(envErr))
	}

	log.Info("starting matchroom backend", zap.String("port", cfg.Port))

	store := setupStore(cfg, log)
	eval := setupEvaluator(cfg, log)

	coord := coordinator.NewCoordinatorService(store, eval, log, coordinator.Options{
		RoomTTL:     config.RoomTTL,
		EvalTimeout: config.EvalTimeout,
		BcryptCost:  config.BcryptCost,
	})

	if !cfg.Debug {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.Default()
	h := handler.NewHandler(coord, log, cfg.PublicBaseURL)
	h.RegisterRoutes(r)

	server := &http.Server{
		Addr:           ":" + cfg.Port,
		Handler:        r,
		ReadTimeout:    config.ReadTimeout,
		WriteTimeout:   config.WriteTimeout,
		MaxHeaderBytes: config.MaxHeaderBytes,
	}

	log.Fatal("server exited", zap.Error(server.ListenAndServe()))
}
