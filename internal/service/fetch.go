// fetch.go — ограниченный пул воркеров для скачивания файлов-кандидатов.
//
// Дедлайн кооперативный: воркеры перестают брать задачи после отмены
// контекста, а сборщик результатов возвращает накопленное, не дожидаясь
// зависших скачиваний. Частичный архив лучше, чем никакого.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dewasatria11/pondok-backend/internal/domain/model"
)

// Prometheus метрики скачивания
var (
	// fetchFilesTotal — количество скачиваний по результату.
	fetchFilesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "psb_fetch_files_total",
			Help: "Общее количество скачиваний файлов при экспорте",
		},
		[]string{"result"},
	)

	// fetchDurationSeconds — длительность скачивания одного файла.
	fetchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "psb_fetch_duration_seconds",
		Help:    "Длительность скачивания одного файла в секундах",
		Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
	})
)

// maxErrLen — предел длины текста ошибки в FetchResult,
// чтобы итоговый отчёт оставался читаемым.
const maxErrLen = 100

// Fetcher — пул воркеров скачивания файлов из object storage.
type Fetcher struct {
	storage ObjectStorage
	bucket  string
	workers int
	logger  *slog.Logger
}

// NewFetcher создаёт Fetcher с заданным числом воркеров.
func NewFetcher(storage ObjectStorage, bucket string, workers int, logger *slog.Logger) *Fetcher {
	if workers <= 0 {
		workers = 1
	}
	return &Fetcher{
		storage: storage,
		bucket:  bucket,
		workers: workers,
		logger:  logger.With(slog.String("component", "fetcher")),
	}
}

// FetchAll скачивает файлы пулом воркеров и возвращает результаты.
// Пока контекст жив — ровно один FetchResult на каждый CandidateFile;
// после истечения дедлайна возвращается то, что успело завершиться
// (незапущенные и незавершённые задачи отбрасываются без ожидания).
// Порядок результатов не гарантируется.
func (f *Fetcher) FetchAll(ctx context.Context, files []model.CandidateFile) []model.FetchResult {
	if len(files) == 0 {
		return nil
	}

	tasks := make(chan model.CandidateFile, len(files))
	for _, file := range files {
		tasks <- file
	}
	close(tasks)

	// Буфер на все задачи: воркер никогда не блокируется на записи,
	// поэтому результат зависшего скачивания можно не ждать.
	results := make(chan model.FetchResult, len(files))

	var wg sync.WaitGroup
	for i := 0; i < f.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.worker(ctx, tasks, results)
		}()
	}

	// Барьер: либо все воркеры закончили, либо дедлайн
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		f.logger.Warn("Дедлайн скачивания истёк, возвращаем частичные результаты",
			slog.Int("total", len(files)),
		)
	}

	// Забираем всё, что накопилось, без блокировки
	collected := make([]model.FetchResult, 0, len(files))
	for {
		select {
		case res := <-results:
			collected = append(collected, res)
		default:
			return collected
		}
	}
}

// worker скачивает задачи из канала до исчерпания или отмены контекста.
func (f *Fetcher) worker(ctx context.Context, tasks <-chan model.CandidateFile, results chan<- model.FetchResult) {
	for {
		select {
		case <-ctx.Done():
			return
		case file, ok := <-tasks:
			if !ok {
				return
			}
			results <- f.fetchOne(ctx, file)
		}
	}
}

// fetchOne скачивает один файл. Пустой ответ — неуспех ("empty"),
// ошибка скачивания — неуспех с усечённым текстом.
func (f *Fetcher) fetchOne(ctx context.Context, file model.CandidateFile) model.FetchResult {
	start := time.Now()
	data, err := f.storage.Download(ctx, f.bucket, file.SourcePath)
	fetchDurationSeconds.Observe(time.Since(start).Seconds())

	if err != nil {
		fetchFilesTotal.WithLabelValues("error").Inc()
		return model.FetchResult{File: file, Err: trimErr(err.Error())}
	}
	if len(data) == 0 {
		fetchFilesTotal.WithLabelValues("empty").Inc()
		return model.FetchResult{File: file, Err: "empty"}
	}

	fetchFilesTotal.WithLabelValues("ok").Inc()
	return model.FetchResult{File: file, Data: data}
}

// trimErr обрезает текст ошибки до maxErrLen символов.
func trimErr(msg string) string {
	if len(msg) > maxErrLen {
		return msg[:maxErrLen]
	}
	return msg
}
