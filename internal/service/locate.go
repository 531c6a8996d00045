// locate.go — поиск файлов-кандидатов для экспорта.
//
// Для каждой записи абитуриента Locator выполняет один плоский листинг
// namespace-а (nisn/) в бакете файлов, фильтрует по набору расширений,
// классифицирует по имени файла и вычисляет путь назначения в архиве:
// {slug полного имени}/{класс документа}/{имя файла}.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode"

	"github.com/dewasatria11/pondok-backend/internal/domain/model"
)

// Locator — поиск и классификация файлов-кандидатов.
type Locator struct {
	storage ObjectStorage
	bucket  string
	logger  *slog.Logger
}

// NewLocator создаёт Locator над бакетом файлов абитуриентов.
func NewLocator(storage ObjectStorage, bucket string, logger *slog.Logger) *Locator {
	return &Locator{
		storage: storage,
		bucket:  bucket,
		logger:  logger.With(slog.String("component", "locator")),
	}
}

// Locate возвращает файлы-кандидаты одной записи.
// allowedExts — пресет расширений (model.ImageExtensions или model.AllExtensions).
// Ошибка листинга возвращается вызывающему: оркестратор фиксирует её
// как пропуск записи, а не как фатальный сбой экспорта.
func (l *Locator) Locate(ctx context.Context, reg model.Registrant, allowedExts []string) ([]model.CandidateFile, error) {
	objects, err := l.storage.List(ctx, l.bucket, reg.NISN, 0)
	if err != nil {
		return nil, fmt.Errorf("листинг файлов записи %s: %w", reg.NISN, err)
	}

	slug := Slugify(reg.FullName)

	var candidates []model.CandidateFile
	for _, obj := range objects {
		if obj.Name == "" {
			continue
		}
		// Объекты без metadata — вложенные "папки", пропускаем
		if obj.Metadata == nil {
			continue
		}
		if !model.ExtensionAllowed(obj.Name, allowedExts) {
			continue
		}

		class := model.DetectDocumentClass(obj.Name)
		candidates = append(candidates, model.CandidateFile{
			SourcePath:  reg.NISN + "/" + obj.Name,
			ArchivePath: fmt.Sprintf("%s/%s/%s", slug, class, obj.Name),
			OwnerName:   reg.FullName,
			Class:       class,
		})
	}

	l.logger.Debug("Файлы записи собраны",
		slog.String("nisn", reg.NISN),
		slog.Int("listed", len(objects)),
		slog.Int("candidates", len(candidates)),
	)

	return candidates, nil
}

// Slugify преобразует имя в безопасный сегмент пути архива:
// нижний регистр, пробелы → "-", только буквы/цифры/подчёркивание/дефис,
// повторные дефисы схлопываются, краевые обрезаются.
// Пустой результат заменяется на "unnamed".
func Slugify(text string) string {
	lower := strings.ToLower(strings.TrimSpace(text))

	var b strings.Builder
	b.Grow(len(lower))
	for _, r := range lower {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-':
			b.WriteRune(r)
		case unicode.IsSpace(r):
			b.WriteRune('-')
		}
	}

	slug := b.String()
	for strings.Contains(slug, "--") {
		slug = strings.ReplaceAll(slug, "--", "-")
	}
	slug = strings.Trim(slug, "-")

	if slug == "" {
		return "unnamed"
	}
	return slug
}
