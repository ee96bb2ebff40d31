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

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/yourusername/attempt-api/internal/config"
	"github.com/yourusername/attempt-api/internal/handler"
	"github.com/yourusername/attempt-api/internal/middleware"
	pgRepo "github.com/yourusername/attempt-api/internal/repository/postgres"
	redisRepo "github.com/yourusername/attempt-api/internal/repository/redis"
	"github.com/yourusername/attempt-api/internal/service"
	"github.com/yourusername/attempt-api/internal/service/attemptengine"
	"github.com/yourusername/attempt-api/pkg/auth"
	"github.com/yourusername/attempt-api/pkg/database"
)

func main() {
	// Загружаем конфигурацию
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}
	log.Printf("Загрузка конфигурации из %s", configPath)

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Printf("Failed to load config: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Database.PostgresConnectionString())
	if err != nil {
		log.Printf("Failed to connect to database: %v", err)
		os.Exit(1)
	}

	// Применяем миграции
	if err := database.MigrateDB(db); err != nil {
		log.Printf("Failed to migrate database: %v", err)
		os.Exit(1)
	}

	// Инициализируем подключение к Redis с использованием унифицированной конфигурации
	redisClient, err := database.NewUniversalRedisClient(cfg.Redis)
	if err != nil {
		log.Printf("Failed to connect to Redis: %v", err)
		os.Exit(1)
	}
	log.Println("Successfully connected to Redis")

	// Инициализируем репозитории
	attemptRepo := pgRepo.NewAttemptRepo(db)
	quizRepo := pgRepo.NewQuizRepo(db)

	cacheRepo, err := redisRepo.NewCacheRepo(redisClient)
	if err != nil {
		log.Printf("Failed to initialize CacheRepo: %v", err)
		os.Exit(1)
	}

	// Конфигурация движка попыток: умолчания плюс переопределения из файла/env
	engineConfig := attemptengine.DefaultConfig()
	if cfg.Attempt.DefaultTimeLimitSec > 0 {
		engineConfig.DefaultTimeLimitSec = cfg.Attempt.DefaultTimeLimitSec
	}
	if cfg.Attempt.SweepIntervalSec > 0 {
		engineConfig.SweepInterval = time.Duration(cfg.Attempt.SweepIntervalSec) * time.Second
	}
	if cfg.Attempt.SweepBatchSize > 0 {
		engineConfig.SweepBatchSize = cfg.Attempt.SweepBatchSize
	}

	// Инициализируем JWTService
	jwtService, err := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpirationHrs)
	if err != nil {
		log.Printf("Failed to initialize JWTService: %v", err)
		os.Exit(1)
	}

	// Создаем контекст с отменой для корректного завершения работы горутин
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Инициализируем сервисы
	attemptService := service.NewAttemptService(attemptRepo, quizRepo, cacheRepo, engineConfig, db)

	// Фоновая финализация просроченных попыток
	go attemptService.RunExpirySweeper(ctx)

	// Инициализируем обработчики
	attemptHandler := handler.NewAttemptHandler(attemptService)
	wsHandler := handler.NewWSHandler(attemptService)

	// Инициализируем middleware
	authMiddleware := middleware.NewAuthMiddleware(jwtService)
	rateLimiter := middleware.NewRateLimiter(redisClient)

	// Инициализируем роутер Gin
	router := gin.Default()

	// Настройка доверенных прокси для корректной работы c.ClientIP()
	isProduction := gin.Mode() == gin.ReleaseMode
	if isProduction {
		// Production: не доверять прокси-заголовкам
		if err := router.SetTrustedProxies(nil); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	} else {
		// Development: доверяем localhost
		if err := router.SetTrustedProxies([]string{"127.0.0.1", "::1"}); err != nil {
			log.Printf("Warning: failed to set trusted proxies: %v", err)
		}
	}

	// Настройка CORS
	router.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"http://localhost:5173", "http://localhost:3000"},
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders:    []string{"Content-Length", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}))

	// Настраиваем маршруты API
	api := router.Group("/api")
	{
		// Попытки
		attempts := api.Group("/attempts")
		attempts.Use(authMiddleware.RequireAuth())
		{
			attempts.POST("", rateLimiter.Limit(middleware.DefaultAttemptRateLimitConfig()), attemptHandler.StartAttempt)
			attempts.GET("/my", attemptHandler.GetMyAttempts)

			// Группа маршрутов, требующих attemptID
			attemptWithID := attempts.Group("/:id")
			attemptWithID.Use(middleware.ExtractUUIDParam("id", "attemptID"))
			{
				attemptWithID.GET("", attemptHandler.GetAttempt)
				attemptWithID.GET("/remaining", attemptHandler.GetRemainingTime)
				attemptWithID.GET("/summary", attemptHandler.GetAttemptSummary)

				mutating := attemptWithID.Group("")
				mutating.Use(rateLimiter.Limit(middleware.DefaultAttemptRateLimitConfig()))
				{
					mutating.POST("/answers", attemptHandler.SubmitAnswer)
					mutating.POST("/finalize", attemptHandler.FinalizeAttempt)
				}
			}
		}

		// Маршруты по викторинам (только для администраторов)
		quizzes := api.Group("/quizzes/:id")
		quizzes.Use(middleware.ExtractUintParam("id", "quizID"))
		quizzes.Use(authMiddleware.RequireAuth(), authMiddleware.AdminOnly())
		{
			quizzes.GET("/attempts", attemptHandler.GetQuizAttempts)
			quizzes.GET("/attempts/stats", attemptHandler.GetQuizAttemptStats)
			quizzes.GET("/attempts/export", rateLimiter.Limit(middleware.ExportRateLimitConfig()), attemptHandler.ExportQuizAttempts)
		}
	}

	// WebSocket маршрут: обратный отсчет оставшегося времени попытки
	router.GET("/ws/attempts/:id", middleware.ExtractUUIDParam("id", "attemptID"), wsHandler.StreamRemainingTime)

	// Настраиваем HTTP сервер с тайм-аутами для защиты от slow client attacks
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Запускаем сервер в горутине
	go func() {
		log.Printf("Starting server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Printf("Failed to start server: %v", err)
		}
	}()

	log.Printf("Server started on port %s", cfg.Server.Port)

	// После получения сигнала SIGINT или SIGTERM вызываем cancel() для завершения горутин
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	cancel()

	// Создаем контекст с таймаутом для graceful shutdown сервера
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server forced to shutdown: %v", err)
		os.Exit(1)
	}

	if err := redisClient.Close(); err != nil {
		log.Printf("Error closing Redis client: %v", err)
	}

	log.Println("Server exited properly")
}
