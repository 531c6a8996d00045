// ExportService — оркестратор экспортного конвейера.
// Конвейер: выборка записей → обход файлов → параллельное скачивание →
// сборка архива → публикация. Общий дедлайн делится между фазами:
// обход хранилища получает долю бюджета в дочернем контексте, остаток
// достаётся скачиванию. Истечение дедлайна на промежуточной фазе не
// фатально: конвейер продолжает с тем, что успел собрать.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dewasatria11/pondok-backend/internal/domain/model"
	"github.com/dewasatria11/pondok-backend/internal/repository"
)

// Prometheus-метрики экспорта.
var (
	exportTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "psb_export_total",
			Help: "Общее количество запросов экспорта по результату",
		},
		[]string{"result"},
	)

	exportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "psb_export_duration_seconds",
		Help:    "Длительность полного экспортного конвейера",
		Buckets: []float64{1, 5, 10, 20, 30, 45, 55, 60},
	})
)

const (
	// collectBudgetFraction — доля общего дедлайна на обход хранилища
	collectBudgetFraction = 0.30
	// maxFailedDetails — сколько причин неуспеха попадает в итоговый отчёт
	maxFailedDetails = 10
	// archiveBasePrefix — базовое имя файла архива
	archiveBasePrefix = "semua-berkas"
)

// Сентинельные ошибки конвейера. Все три означают «нечего выгружать»
// и транслируются обработчиком в 404.
var (
	// ErrNoRecords — под фильтры не попала ни одна запись.
	ErrNoRecords = errors.New("нет записей, подходящих под фильтры")
	// ErrNoCandidates — у отобранных записей нет файлов в хранилище.
	ErrNoCandidates = errors.New("у отобранных записей нет файлов")
)

// ExportService — оркестратор полного цикла экспорта документов.
type ExportService struct {
	registrants repository.RegistrantRepository
	locator     *Locator
	fetcher     *Fetcher
	builder     *ArchiveBuilder
	publisher   *Publisher
	cache       *CacheService

	timeout    time.Duration
	maxRecords int
	logger     *slog.Logger
}

// NewExportService создаёт оркестратор экспорта.
// timeout — общий дедлайн конвейера, maxRecords — потолок записей
// за один экспорт (страховка от неограниченной выборки).
func NewExportService(
	registrants repository.RegistrantRepository,
	locator *Locator,
	fetcher *Fetcher,
	builder *ArchiveBuilder,
	publisher *Publisher,
	cache *CacheService,
	timeout time.Duration,
	maxRecords int,
	logger *slog.Logger,
) *ExportService {
	return &ExportService{
		registrants: registrants,
		locator:     locator,
		fetcher:     fetcher,
		builder:     builder,
		publisher:   publisher,
		cache:       cache,
		timeout:     timeout,
		maxRecords:  maxRecords,
		logger:      logger.With(slog.String("component", "export")),
	}
}

// Export выполняет полный экспортный конвейер для принятого запроса.
// Повторный запрос с теми же фильтрами в пределах TTL кэша возвращает
// уже опубликованный архив без повторной сборки.
func (s *ExportService) Export(ctx context.Context, req model.ExportRequest) (*model.ExportSummary, error) {
	exportID := uuid.NewString()
	log := s.logger.With(slog.String("export_id", exportID))
	started := time.Now()

	filter := s.normalizeFilter(req.Filter)
	key := FilterKey(filter)
	if cached, ok := s.cache.Get(key); ok {
		log.Info("Экспорт взят из кэша",
			slog.String("filename", cached.Artifact.Filename),
		)
		exportTotal.WithLabelValues("cache_hit").Inc()
		hit := *cached
		hit.FromCache = true
		return &hit, nil
	}

	// Общий дедлайн покрывает выборку, обход и скачивание. Сборка и
	// публикация идут на контексте вызывающего: истечение бюджета
	// посреди скачивания не должно убивать публикацию частичного архива.
	workCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	log.Info("Экспорт начат",
		slog.String("only", filter.Only),
		slog.String("status", filter.Status),
		slog.String("date_from", filter.DateFrom),
		slog.String("date_to", filter.DateTo),
		slog.Int("limit", filter.Limit),
		slog.String("requested_by", req.RequestedBy),
	)

	// Фаза выборки записей
	regs, err := s.registrants.ListByFilter(workCtx, filter)
	if err != nil {
		exportTotal.WithLabelValues("query_error").Inc()
		return nil, fmt.Errorf("выборка записей: %w", err)
	}
	if len(regs) == 0 {
		exportTotal.WithLabelValues("no_records").Inc()
		return nil, ErrNoRecords
	}

	// Фаза обхода хранилища: дочерний контекст с долей бюджета
	candidates := s.collect(workCtx, log, regs, filter)
	if len(candidates) == 0 {
		exportTotal.WithLabelValues("no_candidates").Inc()
		return nil, ErrNoCandidates
	}

	log.Info("Обход хранилища завершён",
		slog.Int("registrants", len(regs)),
		slog.Int("candidates", len(candidates)),
	)

	// Фаза скачивания: остаток общего бюджета
	results := s.fetcher.FetchAll(workCtx, candidates)

	// Фаза сборки архива
	data, stats, err := s.builder.Build(results)
	if err != nil {
		exportTotal.WithLabelValues("no_files").Inc()
		return nil, err
	}

	// Фаза публикации
	artifact, err := s.publisher.Publish(ctx, data, archiveBasePrefix)
	if err != nil {
		exportTotal.WithLabelValues("publish_error").Inc()
		return nil, fmt.Errorf("публикация архива: %w", err)
	}

	summary := &model.ExportSummary{
		Artifact:             artifact,
		RegistrantsProcessed: len(regs),
		TotalFiles:           len(candidates),
		SuccessCount:         stats.Succeeded,
		FailedCount:          stats.Failed,
		FailedDetails:        failedDetails(results),
		Elapsed:              time.Since(started),
	}
	s.cache.Set(key, summary)

	exportTotal.WithLabelValues("ok").Inc()
	exportDuration.Observe(summary.Elapsed.Seconds())

	log.Info("Экспорт завершён",
		slog.String("filename", artifact.Filename),
		slog.Int64("size_bytes", artifact.Size),
		slog.Int("total_files", summary.TotalFiles),
		slog.Int("success", summary.SuccessCount),
		slog.Int("failed", summary.FailedCount),
		slog.Duration("elapsed", summary.Elapsed),
	)

	return summary, nil
}

// normalizeFilter применяет значения по умолчанию и потолок записей.
func (s *ExportService) normalizeFilter(f model.ExportFilter) model.ExportFilter {
	if f.Only != "images" {
		f.Only = "all"
	}
	if f.Limit <= 0 || f.Limit > s.maxRecords {
		f.Limit = s.maxRecords
	}
	return f
}

// collect обходит хранилище по записям в дочернем контексте с долей
// общего бюджета. Истечение бюджета прерывает обход, уже найденные
// кандидаты сохраняются. Записи без NISN пропускаются: без namespace
// файлы недостижимы.
func (s *ExportService) collect(ctx context.Context, log *slog.Logger, regs []model.Registrant, filter model.ExportFilter) []model.CandidateFile {
	budget := s.timeout
	if deadline, ok := ctx.Deadline(); ok {
		budget = time.Until(deadline)
	}
	collectCtx, cancel := context.WithTimeout(ctx, time.Duration(float64(budget)*collectBudgetFraction))
	defer cancel()

	exts := model.AllExtensions
	if filter.Only == "images" {
		exts = model.ImageExtensions
	}

	var candidates []model.CandidateFile
	for _, reg := range regs {
		if collectCtx.Err() != nil {
			log.Warn("Бюджет обхода хранилища исчерпан",
				slog.Int("collected", len(candidates)),
			)
			break
		}
		if reg.NISN == "" {
			log.Warn("Запись без NISN пропущена",
				slog.Int64("id", reg.ID),
				slog.String("name", reg.FullName),
			)
			continue
		}

		files, err := s.locator.Locate(collectCtx, reg, exts)
		if err != nil {
			// Ошибка по одной записи не валит экспорт целиком
			log.Warn("Ошибка обхода файлов записи",
				slog.String("nisn", reg.NISN),
				slog.String("error", err.Error()),
			)
			continue
		}
		candidates = append(candidates, files...)
	}
	return candidates
}

// failedDetails собирает первые причины неуспеха скачивания.
func failedDetails(results []model.FetchResult) []string {
	var details []string
	for i := range results {
		if results[i].OK() {
			continue
		}
		details = append(details, fmt.Sprintf("%s: %s", results[i].File.SourcePath, results[i].Err))
		if len(details) >= maxFailedDetails {
			break
		}
	}
	return details
}
