// export.go — обработчик массового экспорта документов абитуриентов.
// GET /api/export?only=all&status=verified&date_from=2026-01-01&date_to=2026-06-30&limit=100
// Ответ — JSON с подписанной ссылкой на ZIP-архив, сам архив клиент
// скачивает напрямую из object storage.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	apierrors "github.com/dewasatria11/pondok-backend/internal/api/errors"
	"github.com/dewasatria11/pondok-backend/internal/api/middleware"
	"github.com/dewasatria11/pondok-backend/internal/domain/model"
	"github.com/dewasatria11/pondok-backend/internal/service"
)

// exportResponse — тело успешного ответа экспорта.
type exportResponse struct {
	OK                    bool     `json:"ok"`
	DownloadURL           string   `json:"download_url"`
	Filename              string   `json:"filename"`
	SizeBytes             int64    `json:"size_bytes"`
	SizeMB                float64  `json:"size_mb"`
	TotalFiles            int      `json:"total_files"`
	SuccessCount          int      `json:"success_count"`
	FailedCount           int      `json:"failed_count"`
	FailedDetails         []string `json:"failed_details,omitempty"`
	ProcessingTimeSeconds float64  `json:"processing_time_seconds"`
	PendaftarProcessed    int      `json:"pendaftar_processed"`
	ExpiresIn             string   `json:"expires_in"`
	FromCache             bool     `json:"from_cache,omitempty"`
	Message               string   `json:"message"`
}

// Exporter — интерфейс экспортного конвейера
// (реализуется *service.ExportService).
type Exporter interface {
	Export(ctx context.Context, req model.ExportRequest) (*model.ExportSummary, error)
}

// ExportHandler — обработчик endpoint-а экспорта.
type ExportHandler struct {
	svc    Exporter
	logger *slog.Logger
}

// NewExportHandler создаёт обработчик экспорта.
func NewExportHandler(svc Exporter, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{
		svc:    svc,
		logger: logger.With(slog.String("component", "export_handler")),
	}
}

// Export обрабатывает GET /api/export.
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	filter, err := parseExportFilter(r)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	req := model.ExportRequest{
		Filter:      filter,
		RequestedBy: middleware.SubjectFromContext(r.Context()),
	}

	summary, err := h.svc.Export(r.Context(), req)
	if err != nil {
		h.writeExportError(w, err)
		return
	}

	resp := exportResponse{
		OK:                    true,
		DownloadURL:           summary.Artifact.URL,
		Filename:              summary.Artifact.Filename,
		SizeBytes:             summary.Artifact.Size,
		SizeMB:                math.Round(float64(summary.Artifact.Size)/(1024*1024)*100) / 100,
		TotalFiles:            summary.TotalFiles,
		SuccessCount:          summary.SuccessCount,
		FailedCount:           summary.FailedCount,
		FailedDetails:         summary.FailedDetails,
		ProcessingTimeSeconds: math.Round(summary.Elapsed.Seconds()*100) / 100,
		PendaftarProcessed:    summary.RegistrantsProcessed,
		ExpiresIn:             formatExpiry(summary.Artifact.ExpiresIn),
		FromCache:             summary.FromCache,
		Message: fmt.Sprintf("ZIP berhasil dibuat! %d file dari %d",
			summary.SuccessCount, summary.TotalFiles),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(resp)
}

// writeExportError транслирует ошибки конвейера в HTTP-ответы.
// «Нечего выгружать» — 404, истёкший дедлайн — 504, остальное — 500.
func (h *ExportHandler) writeExportError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, service.ErrNoRecords):
		apierrors.NotFound(w, "Tidak ada pendaftar ditemukan")
	case errors.Is(err, service.ErrNoCandidates), errors.Is(err, service.ErrNoFiles):
		apierrors.NotFound(w, "Tidak ada berkas yang berhasil diunduh")
	case errors.Is(err, context.DeadlineExceeded):
		apierrors.Timeout(w, "Waktu pemrosesan habis, coba kurangi jumlah data")
	default:
		h.logger.Error("Экспорт завершился ошибкой",
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, err.Error(),
			"Terjadi kesalahan internal: "+err.Error())
	}
}

// parseExportFilter разбирает и валидирует query-параметры экспорта.
func parseExportFilter(r *http.Request) (model.ExportFilter, error) {
	q := r.URL.Query()
	filter := model.ExportFilter{
		Only:     q.Get("only"),
		Status:   q.Get("status"),
		DateFrom: q.Get("date_from"),
		DateTo:   q.Get("date_to"),
	}

	if filter.Only != "" && filter.Only != "all" && filter.Only != "images" {
		return filter, fmt.Errorf("параметр only: ожидается all или images, получено %q", filter.Only)
	}
	if filter.Status != "" && !model.ValidStatusFilter(filter.Status) {
		return filter, fmt.Errorf("параметр status: недопустимое значение %q", filter.Status)
	}
	for name, value := range map[string]string{"date_from": filter.DateFrom, "date_to": filter.DateTo} {
		if value == "" {
			continue
		}
		if _, err := time.Parse("2006-01-02", value); err != nil {
			return filter, fmt.Errorf("параметр %s: ожидается дата YYYY-MM-DD, получено %q", name, value)
		}
	}

	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 {
			return filter, fmt.Errorf("параметр limit: ожидается положительное число, получено %q", raw)
		}
		filter.Limit = limit
	}

	return filter, nil
}

// formatExpiry форматирует срок жизни ссылки для ответа ("1 hour").
func formatExpiry(ttl time.Duration) string {
	if ttl == time.Hour {
		return "1 hour"
	}
	return ttl.String()
}
