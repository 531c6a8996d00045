// Точка входа бэкенда приёмной кампании: экспорт документов
// абитуриентов и загрузка файлов с серверным сжатием изображений.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dewasatria11/pondok-backend/internal/api/handlers"
	"github.com/dewasatria11/pondok-backend/internal/api/middleware"
	"github.com/dewasatria11/pondok-backend/internal/config"
	"github.com/dewasatria11/pondok-backend/internal/database"
	"github.com/dewasatria11/pondok-backend/internal/objstore"
	"github.com/dewasatria11/pondok-backend/internal/repository"
	"github.com/dewasatria11/pondok-backend/internal/server"
	"github.com/dewasatria11/pondok-backend/internal/service"
)

// exportCacheSize — ёмкость LRU-кэша артефактов экспорта.
const exportCacheSize = 32

func main() {
	// Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка конфигурации: %v\n", err)
		os.Exit(1)
	}

	// Настройка логгера
	logger := config.SetupLogger(cfg)
	logger.Info("Бэкенд запускается",
		slog.String("instance_id", cfg.InstanceID),
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
	)

	ctx := context.Background()

	// --- Инициализация компонентов ---

	// 1. PostgreSQL
	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	registrantRepo := repository.NewRegistrantRepository(pool)

	// 2. Object storage
	storageClient := objstore.New(cfg.StorageURL, cfg.StorageServiceKey, logger)

	// 3. Сервисы экспортного конвейера
	locator := service.NewLocator(storageClient, cfg.FilesBucket, logger)
	fetcher := service.NewFetcher(storageClient, cfg.FilesBucket, cfg.ExportWorkers, logger)
	builder := service.NewArchiveBuilder(logger)
	publisher := service.NewPublisher(storageClient, cfg.ExportsBucket, cfg.ExportsPrefix,
		cfg.SignedURLTTL, cfg.RetentionWindow, logger)
	exportCache := service.NewCacheService(exportCacheSize, cfg.ExportCacheTTL)

	exportSvc := service.NewExportService(
		registrantRepo,
		locator,
		fetcher,
		builder,
		publisher,
		exportCache,
		cfg.ExportTimeout,
		cfg.ExportMaxRecords,
		logger,
	)

	// 4. Сжатие изображений
	compressor := service.NewCompressService(cfg.CompressTargetKB, logger)

	// 5. Фоновые процессы

	// 5.1 Периодическая очистка устаревших архивов
	sweepSvc := service.NewSweepService(publisher, cfg.SweepInterval, logger)
	sweepSvc.Start(ctx)

	// 5.2 topologymetrics — мониторинг object storage
	dephealthSvc, dephealthErr := service.NewDephealthService(
		cfg.InstanceID,
		cfg.DephealthGroup,
		cfg.DephealthDepName,
		cfg.StorageURL,
		cfg.DephealthCheckInterval,
		logger,
	)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
	} else {
		if startErr := dephealthSvc.Start(ctx); startErr != nil {
			logger.Warn("Ошибка запуска topologymetrics",
				slog.String("error", startErr.Error()),
			)
		} else {
			logger.Info("topologymetrics запущен",
				slog.String("storage_url", cfg.StorageURL),
				slog.String("check_interval", cfg.DephealthCheckInterval.String()),
			)
		}
	}

	// 6. Handlers
	h := server.Handlers{
		Export: handlers.NewExportHandler(exportSvc, logger),
		Upload: handlers.NewUploadHandler(storageClient, storageClient.PublicURL,
			compressor, cfg.FilesBucket, cfg.MaxUploadSize, logger),
		Health: handlers.NewHealthHandler(database.NewReadinessChecker(pool)),
	}

	// 7. JWT middleware (опционально)
	var jwtAuth *middleware.JWTAuth
	if cfg.JWKSUrl != "" {
		jwtAuth, err = middleware.NewJWTAuth(middleware.JWTAuthConfig{
			JWKSURL:         cfg.JWKSUrl,
			CACertPath:      cfg.JWKSCACert,
			ClientTimeout:   10 * time.Second,
			RefreshInterval: time.Hour,
			JWTLeeway:       time.Minute,
		}, logger)
		if err != nil {
			// JWT недоступен — запускаем без аутентификации (для разработки)
			logger.Warn("JWT JWKS недоступен, запуск без аутентификации",
				slog.String("jwks_url", cfg.JWKSUrl),
				slog.String("error", err.Error()),
			)
		} else {
			logger.Info("JWT аутентификация настроена",
				slog.String("jwks_url", cfg.JWKSUrl),
			)
		}
	} else {
		logger.Warn("PSB_JWKS_URL не задан, экспорт доступен без аутентификации")
	}

	// 8. Создание и запуск HTTP-сервера
	srv := server.New(cfg, logger, h, jwtAuth)

	if err := srv.Run(); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// --- Graceful shutdown фоновых процессов ---
	logger.Info("Остановка фоновых процессов...")

	sweepSvc.Stop()
	if dephealthErr == nil {
		dephealthSvc.Stop()
	}

	logger.Info("Бэкенд остановлен")
}
