// logging.go — middleware логирования HTTP-запросов через slog.
// Экспорт легитимно работает десятки секунд, поэтому помимо статуса
// логируется длительность и строка фильтров; для аутентифицированных
// запросов добавляется субъект токена.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"
)

// logInfoKey — ключ контекста для аннотаций запроса.
type logInfoKey struct{}

// logInfo — изменяемые аннотации, заполняемые по ходу обработки
// (аутентификация живёт глубже в цепочке middleware, чем логгер).
type logInfo struct {
	subject string
}

// AnnotateSubject записывает субъект токена в аннотации запроса,
// чтобы он попал в итоговую строку лога. Вызывается из JWT middleware.
func AnnotateSubject(ctx context.Context, subject string) {
	if info, ok := ctx.Value(logInfoKey{}).(*logInfo); ok {
		info.subject = subject
	}
}

// statusWriter перехватывает статус-код и размер ответа.
type statusWriter struct {
	http.ResponseWriter
	status  int
	written int64
}

func newStatusWriter(w http.ResponseWriter) *statusWriter {
	return &statusWriter{ResponseWriter: w, status: http.StatusOK}
}

func (sw *statusWriter) WriteHeader(code int) {
	sw.status = code
	sw.ResponseWriter.WriteHeader(code)
}

func (sw *statusWriter) Write(b []byte) (int, error) {
	n, err := sw.ResponseWriter.Write(b)
	sw.written += int64(n)
	return n, err
}

// Unwrap позволяет http.ResponseController получить доступ к оригинальному ResponseWriter.
func (sw *statusWriter) Unwrap() http.ResponseWriter {
	return sw.ResponseWriter
}

// RequestLogger логирует каждый запрос после обработки.
// Уровень зависит от статуса: INFO до 400, WARN 4xx, ERROR 5xx.
// Для /api/export в лог попадает строка фильтров (query string),
// для запросов с JWT — субъект токена.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			sw := newStatusWriter(w)

			info := &logInfo{}
			r = r.WithContext(context.WithValue(r.Context(), logInfoKey{}, info))

			next.ServeHTTP(sw, r)

			level := slog.LevelInfo
			switch {
			case sw.status >= 500:
				level = slog.LevelError
			case sw.status >= 400:
				level = slog.LevelWarn
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", sw.status),
				slog.Duration("duration", time.Since(start)),
				slog.Int64("bytes", sw.written),
				slog.String("remote_addr", r.RemoteAddr),
			}
			if q := r.URL.RawQuery; q != "" {
				attrs = append(attrs, slog.String("filters", q))
			}
			if info.subject != "" {
				attrs = append(attrs, slog.String("subject", info.subject))
			}

			logger.LogAttrs(r.Context(), level, "Запрос обработан", attrs...)
		})
	}
}
