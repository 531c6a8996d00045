// archive.go — сборка ZIP-архива из скачанных файлов.
//
// Содержимое (фото, PDF) уже сжато, поэтому используется быстрый
// уровень deflate: выигрыш от максимального сжатия ничтожен,
// а времени в бюджете экспорта мало.
package service

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/klauspost/compress/flate"

	"github.com/dewasatria11/pondok-backend/internal/domain/model"
)

// ErrNoFiles — в списке результатов нет ни одного успешного скачивания.
var ErrNoFiles = errors.New("нет успешно скачанных файлов")

// BuildStats — агрегированные счётчики сборки архива.
type BuildStats struct {
	// Attempted — всего результатов на входе
	Attempted int
	// Succeeded — файлов записано в архив
	Succeeded int
	// Failed — неуспешных скачиваний
	Failed int
}

// ArchiveBuilder — сборщик ZIP-архива.
type ArchiveBuilder struct {
	logger *slog.Logger
}

// NewArchiveBuilder создаёт сборщик архива.
func NewArchiveBuilder(logger *slog.Logger) *ArchiveBuilder {
	return &ArchiveBuilder{
		logger: logger.With(slog.String("component", "archive")),
	}
}

// Build собирает архив из успешных результатов скачивания.
// Неуспешные результаты учитываются только в счётчиках.
// Если успешных нет — возвращает ErrNoFiles, пустой архив не создаётся.
// Порядок входного списка не важен.
func (b *ArchiveBuilder) Build(results []model.FetchResult) ([]byte, BuildStats, error) {
	stats := BuildStats{Attempted: len(results)}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	zw.RegisterCompressor(zip.Deflate, func(out io.Writer) (io.WriteCloser, error) {
		return flate.NewWriter(out, flate.BestSpeed)
	})

	// Занятые пути назначения: коллизии получают суффикс -2, -3…
	used := make(map[string]int)

	for _, res := range results {
		if !res.OK() {
			stats.Failed++
			continue
		}

		dest := uniquePath(used, res.File.ArchivePath)
		w, err := zw.Create(dest)
		if err != nil {
			zw.Close()
			return nil, stats, fmt.Errorf("создание записи архива %s: %w", dest, err)
		}
		if _, err := w.Write(res.Data); err != nil {
			zw.Close()
			return nil, stats, fmt.Errorf("запись в архив %s: %w", dest, err)
		}
		stats.Succeeded++
	}

	if stats.Succeeded == 0 {
		zw.Close()
		return nil, stats, ErrNoFiles
	}

	if err := zw.Close(); err != nil {
		return nil, stats, fmt.Errorf("закрытие архива: %w", err)
	}

	b.logger.Debug("Архив собран",
		slog.Int("files", stats.Succeeded),
		slog.Int("bytes", buf.Len()),
	)

	return buf.Bytes(), stats, nil
}

// uniquePath возвращает свободный путь внутри архива.
// При коллизии к имени добавляется суффикс перед расширением:
// a/b/foto.jpg → a/b/foto-2.jpg. Молчаливая перезапись недопустима.
func uniquePath(used map[string]int, dest string) string {
	used[dest]++
	if used[dest] == 1 {
		return dest
	}

	ext := path.Ext(dest)
	base := strings.TrimSuffix(dest, ext)
	for {
		candidate := fmt.Sprintf("%s-%d%s", base, used[dest], ext)
		if used[candidate] == 0 {
			used[candidate]++
			return candidate
		}
		used[dest]++
	}
}
