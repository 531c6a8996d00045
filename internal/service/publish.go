// publish.go — публикация архива и очистка устаревших выгрузок.
//
// Publish загружает архив в бакет временных выгрузок, выпускает
// подписанную ссылку и запускает best-effort очистку. Очистка также
// выполняется фоновой горутиной с периодическим тикером (SweepService).
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dewasatria11/pondok-backend/internal/domain/model"
)

// Prometheus метрики публикации и очистки
var (
	// publishTotal — количество публикаций архивов по результату.
	publishTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "psb_publish_total",
			Help: "Общее количество публикаций архивов экспорта",
		},
		[]string{"result"},
	)

	// sweepRunsTotal — количество запусков очистки.
	sweepRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "psb_sweep_runs_total",
		Help: "Общее количество запусков очистки устаревших архивов",
	})

	// sweepDeletedTotal — количество удалённых архивов.
	sweepDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "psb_sweep_deleted_total",
		Help: "Общее количество архивов, удалённых очисткой",
	})
)

// sweepInspectLimit — максимум объектов, рассматриваемых за одну очистку.
// Ограничивает время очистки внутри запроса экспорта.
const sweepInspectLimit = 10

// Publisher — публикация архивов во временный бакет.
type Publisher struct {
	storage   ObjectStorage
	bucket    string
	prefix    string
	urlTTL    time.Duration
	retention time.Duration
	logger    *slog.Logger
}

// NewPublisher создаёт Publisher.
// bucket/prefix — бакет и префикс временных выгрузок,
// urlTTL — срок жизни подписанной ссылки,
// retention — окно хранения, после которого архив подлежит удалению.
func NewPublisher(storage ObjectStorage, bucket, prefix string, urlTTL, retention time.Duration, logger *slog.Logger) *Publisher {
	return &Publisher{
		storage:   storage,
		bucket:    bucket,
		prefix:    prefix,
		urlTTL:    urlTTL,
		retention: retention,
		logger:    logger.With(slog.String("component", "publisher")),
	}
}

// Publish загружает архив, выпускает подписанную ссылку и запускает
// best-effort очистку устаревших архивов. Имя файла содержит таймстемп
// для уникальности. Ошибка подписи ссылки фатальна: без ссылки
// опубликованный архив недостижим.
func (p *Publisher) Publish(ctx context.Context, data []byte, basePrefix string) (*model.ArchiveArtifact, error) {
	now := time.Now().UTC()
	filename := fmt.Sprintf("%s_%s.zip", basePrefix, now.Format("20060102_150405"))
	storagePath := p.prefix + "/" + filename

	if err := p.storage.Upload(ctx, p.bucket, storagePath, data, "application/zip"); err != nil {
		publishTotal.WithLabelValues("upload_error").Inc()
		return nil, fmt.Errorf("загрузка архива в хранилище: %w", err)
	}

	url, err := p.storage.SignURL(ctx, p.bucket, storagePath, p.urlTTL)
	if err != nil {
		publishTotal.WithLabelValues("sign_error").Inc()
		return nil, fmt.Errorf("выпуск подписанной ссылки: %w", err)
	}

	publishTotal.WithLabelValues("ok").Inc()

	// Очистка не влияет на результат публикации
	p.SweepOnce(ctx)

	return &model.ArchiveArtifact{
		Filename:    filename,
		StoragePath: storagePath,
		Size:        int64(len(data)),
		CreatedAt:   now,
		URL:         url,
		ExpiresIn:   p.urlTTL,
	}, nil
}

// SweepResult — итог одного запуска очистки.
type SweepResult struct {
	// Inspected — сколько объектов рассмотрено
	Inspected int
	// Deleted — сколько архивов удалено
	Deleted int
	// Errors — сколько ошибок проглочено
	Errors int
}

// SweepOnce удаляет архивы старше окна хранения.
// Любые ошибки только логируются: очистка — рекомендательная,
// её сбой не должен ломать публикацию.
func (p *Publisher) SweepOnce(ctx context.Context) SweepResult {
	sweepRunsTotal.Inc()
	result := SweepResult{}

	objects, err := p.storage.List(ctx, p.bucket, p.prefix, 0)
	if err != nil {
		p.logger.Warn("Очистка: ошибка листинга, пропускаем цикл",
			slog.String("error", err.Error()),
		)
		result.Errors++
		return result
	}

	cutoff := time.Now().UTC().Add(-p.retention)

	for _, obj := range objects {
		if result.Inspected >= sweepInspectLimit {
			break
		}
		if obj.Name == "" || obj.CreatedAt.IsZero() {
			continue
		}
		result.Inspected++

		if !obj.CreatedAt.Before(cutoff) {
			continue
		}

		path := p.prefix + "/" + obj.Name
		if err := p.storage.Remove(ctx, p.bucket, []string{path}); err != nil {
			p.logger.Warn("Очистка: не удалось удалить архив",
				slog.String("path", path),
				slog.String("error", err.Error()),
			)
			result.Errors++
			continue
		}
		result.Deleted++
		sweepDeletedTotal.Inc()
	}

	if result.Deleted > 0 || result.Errors > 0 {
		p.logger.Info("Очистка завершена",
			slog.Int("inspected", result.Inspected),
			slog.Int("deleted", result.Deleted),
			slog.Int("errors", result.Errors),
		)
	}

	return result
}

// SweepService — фоновая периодическая очистка устаревших архивов.
type SweepService struct {
	publisher *Publisher
	interval  time.Duration
	logger    *slog.Logger

	mu     sync.Mutex // защита от параллельного запуска
	cancel context.CancelFunc
}

// NewSweepService создаёт фоновую очистку с заданным интервалом.
func NewSweepService(publisher *Publisher, interval time.Duration, logger *slog.Logger) *SweepService {
	return &SweepService{
		publisher: publisher,
		interval:  interval,
		logger:    logger.With(slog.String("component", "sweep")),
	}
}

// Start запускает фоновую горутину очистки с периодическим тикером.
// Вызывается один раз при старте приложения.
func (s *SweepService) Start(ctx context.Context) {
	sweepCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(sweepCtx)

	s.logger.Info("Фоновая очистка запущена",
		slog.String("interval", s.interval.String()),
	)
}

// Stop останавливает фоновую очистку.
func (s *SweepService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("Фоновая очистка остановлена")
}

// run — основной цикл фоновой горутины.
func (s *SweepService) run(ctx context.Context) {
	// Первый запуск — сразу после старта
	s.runOnce(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce выполняет один цикл очистки под мьютексом.
func (s *SweepService) runOnce(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisher.SweepOnce(ctx)
}
