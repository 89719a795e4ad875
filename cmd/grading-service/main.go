package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeprep/internal/common/cache"
	"codeprep/internal/common/db"
	commonmw "codeprep/internal/common/http/middleware"
	"codeprep/internal/common/mq"
	"codeprep/internal/common/storage"
	gradingController "codeprep/internal/grading/controller"
	gradingRepo "codeprep/internal/grading/repository"
	gradingService "codeprep/internal/grading/service"
	judgeclient "codeprep/internal/judge/client"
	problemRepo "codeprep/internal/problem/repository"
	statsController "codeprep/internal/stats/controller"
	statsService "codeprep/internal/stats/service"
	"codeprep/pkg/utils/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const defaultConfigPath = "configs/grading_service.yaml"

func main() {
	configPath := flag.String("config", defaultConfigPath, "Path to config file")
	flag.Parse()

	appCfg, err := loadAppConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load app config failed: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(appCfg.Logger); err != nil {
		fmt.Fprintf(os.Stderr, "init logger failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()

	if err := run(appCfg); err != nil {
		logger.Error(context.Background(), "grading service exited", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(appCfg *AppConfig) error {
	mysqlDB, err := db.NewMySQLWithConfig(&appCfg.Database)
	if err != nil {
		return fmt.Errorf("init database failed: %w", err)
	}
	defer func() {
		_ = mysqlDB.Close()
	}()

	redisCache, err := cache.NewRedisCacheWithConfig(&appCfg.Redis)
	if err != nil {
		return fmt.Errorf("init redis failed: %w", err)
	}
	defer func() {
		_ = redisCache.Close()
	}()

	mqClient, err := mq.NewKafkaQueue(appCfg.Kafka)
	if err != nil {
		return fmt.Errorf("init kafka failed: %w", err)
	}
	defer func() {
		_ = mqClient.Close()
	}()

	objStorage, err := storage.NewMinIOStore(appCfg.MinIO)
	if err != nil {
		return fmt.Errorf("init minio failed: %w", err)
	}
	initCtx, cancelInit := context.WithTimeout(context.Background(), 10*time.Second)
	err = objStorage.EnsureBucket(initCtx, appCfg.Grading.SourceBucket)
	cancelInit()
	if err != nil {
		return fmt.Errorf("ensure source bucket failed: %w", err)
	}
	archive, err := storage.NewSourceArchive(objStorage, appCfg.Grading.SourceBucket, appCfg.Grading.MaxSourceBytes)
	if err != nil {
		return fmt.Errorf("init source archive failed: %w", err)
	}

	judge, err := judgeclient.NewClient(appCfg.Judge)
	if err != nil {
		return fmt.Errorf("init judge client failed: %w", err)
	}
	notifier, err := gradingService.NewMQNotifier(mqClient, appCfg.Topics.Notifications, appCfg.Topics.Stats)
	if err != nil {
		return fmt.Errorf("init notifier failed: %w", err)
	}

	problems := problemRepo.NewProblemRepositoryWithTTL(mysqlDB, redisCache, appCfg.Grading.ProblemCacheTTL, appCfg.Grading.ProblemEmptyTTL)
	submissions := gradingRepo.NewSubmissionRepositoryWithTTL(mysqlDB, redisCache, appCfg.Grading.SubmissionCacheTTL, appCfg.Grading.SubmissionEmptyTTL)

	grader, err := gradingService.NewGradingService(gradingService.Config{
		Judge:           judge,
		Problems:        problems,
		Submissions:     submissions,
		Archive:         archive,
		Cache:           redisCache,
		Notifier:        notifier,
		Languages:       appCfg.Grading.Languages,
		Budgets:         appCfg.Grading.Budgets,
		PollConcurrency: appCfg.Grading.PollConcurrency,
		DailyQuota:      appCfg.Grading.DailyQuota,
		GuardMargin:     appCfg.Grading.GuardMargin,
		JudgeCallBound:  judge.CallBound(),
		SourceKeyPrefix: appCfg.Grading.SourceKeyPrefix,
		MaxCodeBytes:    appCfg.Grading.MaxCodeBytes,
		Timeouts:        appCfg.Grading.Timeouts,
	})
	if err != nil {
		return fmt.Errorf("init grading service failed: %w", err)
	}

	stats, err := statsService.NewStatsService(redisCache, appCfg.Stats.ProcessedTTL)
	if err != nil {
		return fmt.Errorf("init stats service failed: %w", err)
	}
	consumerOpts := appCfg.Stats.Consumer.toSubscribeOptions(appCfg.Topics.StatsDLQ)
	if err := mqClient.Subscribe(context.Background(), appCfg.Topics.Stats, stats.HandleStatsMessage, consumerOpts); err != nil {
		return fmt.Errorf("subscribe stats topic failed: %w", err)
	}
	if err := mqClient.Start(); err != nil {
		return fmt.Errorf("start kafka consumer failed: %w", err)
	}
	defer func() {
		_ = mqClient.Stop()
	}()

	health := healthHandler(map[string]func(context.Context) error{
		"mysql": mysqlDB.Ping,
		"redis": redisCache.Ping,
		"kafka": mqClient.Ping,
	})
	httpServer := buildHTTPServer(appCfg.Server, grader, stats, health)
	listener, err := net.Listen("tcp", appCfg.Server.Addr)
	if err != nil {
		return fmt.Errorf("init http listener failed: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info(context.Background(), "grading http server started", zap.String("addr", appCfg.Server.Addr))
		errCh <- httpServer.Serve(listener)
	}()

	shutdownCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error(context.Background(), "http server stopped", zap.Error(err))
		}
	case <-shutdownCtx.Done():
		logger.Info(context.Background(), "shutdown signal received")
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error(context.Background(), "http server shutdown failed", zap.Error(err))
	}
	return nil
}

func buildHTTPServer(cfg ServerConfig, grader gradingController.Grader, stats statsController.StatsReader, health gin.HandlerFunc) *http.Server {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(commonmw.Correlation())
	router.Use(commonmw.RequestLogger())

	router.GET("/healthz", health)
	api := router.Group("/api/v1")
	gradingController.NewGradingController(grader).RegisterRoutes(api)
	statsController.NewStatsController(stats).RegisterRoutes(api)

	return &http.Server{
		Addr:         cfg.Addr,
		Handler:      router,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
}

// healthHandler pings every dependency and reports 503 when any fails.
func healthHandler(checks map[string]func(context.Context) error) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				status = http.StatusServiceUnavailable
				result[name] = err.Error()
				continue
			}
			result[name] = "ok"
		}
		c.JSON(status, result)
	}
}
