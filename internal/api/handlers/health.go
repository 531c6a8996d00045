// health.go — обработчики health endpoints для Kubernetes probes.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/dewasatria11/pondok-backend/internal/config"
)

// serviceName — имя сервиса в health-ответах.
const serviceName = "pondok-backend"

// statusFail — строковая константа для статуса "fail" в health checks.
const statusFail = "fail"

// DatabaseChecker — интерфейс проверки подключения к БД
// (реализуется database.ReadinessChecker).
type DatabaseChecker interface {
	CheckReady(ctx context.Context) (status string, message string)
}

// HealthHandler реализует health endpoints: /health/live, /health/ready.
type HealthHandler struct {
	version string
	db      DatabaseChecker
}

// NewHealthHandler создаёт обработчик health endpoints.
// db — проверка PostgreSQL (nil — проверка пропускается).
func NewHealthHandler(db DatabaseChecker) *HealthHandler {
	return &HealthHandler{
		version: config.Version,
		db:      db,
	}
}

// HealthLive обрабатывает GET /health/live.
// Возвращает 200, если процесс жив. Не проверяет зависимости.
func (h *HealthHandler) HealthLive(w http.ResponseWriter, _ *http.Request) {
	resp := map[string]any{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// HealthReady обрабатывает GET /health/ready.
// Проверяет подключение к PostgreSQL.
func (h *HealthHandler) HealthReady(w http.ResponseWriter, r *http.Request) {
	overallStatus := "ok"
	httpStatus := http.StatusOK

	dbCheck := map[string]any{
		"status":  "ok",
		"message": "Проверка не настроена",
	}
	if h.db != nil {
		status, message := h.db.CheckReady(r.Context())
		dbCheck = map[string]any{"status": status}
		if message != "" {
			dbCheck["message"] = message
		}
		if status != "ok" {
			overallStatus = statusFail
			httpStatus = http.StatusServiceUnavailable
		}
	}

	resp := map[string]any{
		"status":    overallStatus,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   h.version,
		"service":   serviceName,
		"checks": map[string]any{
			"database": dbCheck,
		},
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpStatus)
	_ = json.NewEncoder(w).Encode(resp)
}
