// Пакет config — загрузка и валидация конфигурации backend-а
// приёмной кампании из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации сервиса.
type Config struct {
	// Порт HTTP-сервера
	Port int
	// Идентификатор инстанса (например, "psb-backend-01")
	InstanceID string

	// DSN-параметры PostgreSQL внешнего хранилища записей
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// Базовый URL object-storage API (Supabase-совместимый REST)
	StorageURL string
	// Сервисный ключ для запросов к object storage
	StorageServiceKey string
	// Бакет с файлами абитуриентов
	FilesBucket string
	// Бакет временных выгрузок (архивы экспорта)
	ExportsBucket string
	// Префикс архивов внутри бакета временных выгрузок
	ExportsPrefix string

	// Общий бюджет времени на один экспорт
	ExportTimeout time.Duration
	// Количество параллельных воркеров скачивания
	ExportWorkers int
	// Максимум записей за один экспорт
	ExportMaxRecords int
	// TTL подписанной ссылки на архив
	SignedURLTTL time.Duration
	// Окно хранения опубликованных архивов
	RetentionWindow time.Duration
	// Интервал фоновой очистки устаревших архивов
	SweepInterval time.Duration
	// TTL кэша повторных экспортов с одинаковыми фильтрами
	ExportCacheTTL time.Duration

	// Целевой размер сжатого изображения в КБ
	CompressTargetKB int
	// Жёсткий потолок размера файла после сжатия в байтах
	MaxUploadSize int64

	// URL JWKS endpoint для проверки JWT (пусто — auth выключен)
	JWKSUrl string
	// Путь к CA-сертификату для TLS JWKS endpoint (опционально)
	JWKSCACert string

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Имя зависимости (object storage) в метриках topologymetrics
	DephealthDepName string

	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// DatabaseDSN собирает DSN для pgxpool из отдельных параметров.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode)
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// PSB_PORT — порт HTTP-сервера (по умолчанию 8080)
	cfg.Port, err = getEnvInt("PSB_PORT", 8080)
	if err != nil {
		return nil, fmt.Errorf("PSB_PORT: %w", err)
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("PSB_PORT: значение %d вне допустимого диапазона", cfg.Port)
	}

	// PSB_INSTANCE_ID — идентификатор инстанса (по умолчанию "psb-backend")
	cfg.InstanceID = getEnvDefault("PSB_INSTANCE_ID", "psb-backend")

	// --- PostgreSQL ---

	// PSB_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("PSB_DB_HOST")
	if err != nil {
		return nil, err
	}

	cfg.DBPort, err = getEnvInt("PSB_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("PSB_DB_PORT: %w", err)
	}

	// PSB_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("PSB_DB_USER")
	if err != nil {
		return nil, err
	}

	// PSB_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("PSB_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// PSB_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("PSB_DB_NAME")
	if err != nil {
		return nil, err
	}

	cfg.DBSSLMode = getEnvDefault("PSB_DB_SSLMODE", "require")

	// --- Object storage ---

	// PSB_STORAGE_URL — обязательный, без завершающего слэша
	cfg.StorageURL, err = getEnvRequired("PSB_STORAGE_URL")
	if err != nil {
		return nil, err
	}
	cfg.StorageURL = strings.TrimRight(cfg.StorageURL, "/")

	// PSB_STORAGE_SERVICE_KEY — обязательный (service role, полный доступ)
	cfg.StorageServiceKey, err = getEnvRequired("PSB_STORAGE_SERVICE_KEY")
	if err != nil {
		return nil, err
	}

	cfg.FilesBucket = getEnvDefault("PSB_FILES_BUCKET", "pendaftar-files")
	cfg.ExportsBucket = getEnvDefault("PSB_EXPORTS_BUCKET", "temp-downloads")
	cfg.ExportsPrefix = getEnvDefault("PSB_EXPORTS_PREFIX", "exports")

	// --- Экспорт ---

	// PSB_EXPORT_TIMEOUT — общий бюджет экспорта (по умолчанию 55s,
	// меньше лимита исполнения serverless-платформы)
	cfg.ExportTimeout, err = getEnvDuration("PSB_EXPORT_TIMEOUT", 55*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PSB_EXPORT_TIMEOUT: %w", err)
	}

	// PSB_EXPORT_WORKERS — воркеры скачивания (по умолчанию 15)
	cfg.ExportWorkers, err = getEnvInt("PSB_EXPORT_WORKERS", 15)
	if err != nil {
		return nil, fmt.Errorf("PSB_EXPORT_WORKERS: %w", err)
	}
	if cfg.ExportWorkers <= 0 {
		return nil, fmt.Errorf("PSB_EXPORT_WORKERS: значение должно быть положительным")
	}

	// PSB_EXPORT_MAX_RECORDS — максимум записей за экспорт (по умолчанию 200)
	cfg.ExportMaxRecords, err = getEnvInt("PSB_EXPORT_MAX_RECORDS", 200)
	if err != nil {
		return nil, fmt.Errorf("PSB_EXPORT_MAX_RECORDS: %w", err)
	}
	if cfg.ExportMaxRecords <= 0 {
		return nil, fmt.Errorf("PSB_EXPORT_MAX_RECORDS: значение должно быть положительным")
	}

	// PSB_SIGNED_URL_TTL — срок жизни подписанной ссылки (по умолчанию 1h)
	cfg.SignedURLTTL, err = getEnvDuration("PSB_SIGNED_URL_TTL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PSB_SIGNED_URL_TTL: %w", err)
	}

	// PSB_RETENTION_WINDOW — окно хранения архивов (по умолчанию 24h)
	cfg.RetentionWindow, err = getEnvDuration("PSB_RETENTION_WINDOW", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PSB_RETENTION_WINDOW: %w", err)
	}

	// PSB_SWEEP_INTERVAL — интервал фоновой очистки (по умолчанию 1h)
	cfg.SweepInterval, err = getEnvDuration("PSB_SWEEP_INTERVAL", time.Hour)
	if err != nil {
		return nil, fmt.Errorf("PSB_SWEEP_INTERVAL: %w", err)
	}

	// PSB_EXPORT_CACHE_TTL — кэш повторных экспортов (по умолчанию 10m).
	// Должен быть заметно меньше PSB_SIGNED_URL_TTL, иначе кэш может
	// отдать ссылку с истёкшей подписью.
	cfg.ExportCacheTTL, err = getEnvDuration("PSB_EXPORT_CACHE_TTL", 10*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("PSB_EXPORT_CACHE_TTL: %w", err)
	}
	if cfg.ExportCacheTTL >= cfg.SignedURLTTL {
		return nil, fmt.Errorf("PSB_EXPORT_CACHE_TTL: значение %s должно быть меньше PSB_SIGNED_URL_TTL (%s)",
			cfg.ExportCacheTTL, cfg.SignedURLTTL)
	}

	// --- Загрузка файлов ---

	// PSB_COMPRESS_TARGET_KB — целевой размер изображения (по умолчанию 500)
	cfg.CompressTargetKB, err = getEnvInt("PSB_COMPRESS_TARGET_KB", 500)
	if err != nil {
		return nil, fmt.Errorf("PSB_COMPRESS_TARGET_KB: %w", err)
	}
	if cfg.CompressTargetKB <= 0 {
		return nil, fmt.Errorf("PSB_COMPRESS_TARGET_KB: значение должно быть положительным")
	}

	// PSB_MAX_UPLOAD_SIZE — потолок размера после сжатия (по умолчанию 5 MB)
	cfg.MaxUploadSize, err = getEnvInt64("PSB_MAX_UPLOAD_SIZE", 5*1024*1024)
	if err != nil {
		return nil, fmt.Errorf("PSB_MAX_UPLOAD_SIZE: %w", err)
	}
	if cfg.MaxUploadSize <= 0 {
		return nil, fmt.Errorf("PSB_MAX_UPLOAD_SIZE: значение должно быть положительным")
	}

	// --- Auth ---

	// PSB_JWKS_URL — опционально; пусто — запуск без аутентификации
	cfg.JWKSUrl = getEnvDefault("PSB_JWKS_URL", "")
	cfg.JWKSCACert = getEnvDefault("PSB_JWKS_CA_CERT", "")

	// --- Логирование ---

	// PSB_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("PSB_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("PSB_LOG_LEVEL: %w", err)
	}

	// PSB_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("PSB_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("PSB_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// --- topologymetrics ---

	// PSB_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("PSB_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PSB_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// PSB_DEPHEALTH_GROUP — имя группы в метриках (по умолчанию "psb-backend")
	cfg.DephealthGroup = getEnvDefault("PSB_DEPHEALTH_GROUP", "psb-backend")

	// PSB_DEPHEALTH_DEP_NAME — имя зависимости (по умолчанию "object-storage")
	cfg.DephealthDepName = getEnvDefault("PSB_DEPHEALTH_DEP_NAME", "object-storage")

	// PSB_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("PSB_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("PSB_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvInt64 возвращает int64 значение переменной окружения или значение по умолчанию.
func getEnvInt64(key string, defaultVal int64) (int64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.ParseInt(val, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 24h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
