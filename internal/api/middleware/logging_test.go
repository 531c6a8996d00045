package middleware

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

// captureLogger — логгер, пишущий JSON в буфер для проверки полей.
func captureLogger() (*slog.Logger, *bytes.Buffer) {
	var buf bytes.Buffer
	return slog.New(slog.NewJSONHandler(&buf, nil)), &buf
}

// lastLogEntry разбирает последнюю строку лога.
func lastLogEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	if len(lines) == 0 || len(lines[len(lines)-1]) == 0 {
		t.Fatal("лог пуст")
	}
	var entry map[string]any
	if err := json.Unmarshal(lines[len(lines)-1], &entry); err != nil {
		t.Fatalf("разбор строки лога: %v", err)
	}
	return entry
}

func TestRequestLogger_BasicFields(t *testing.T) {
	logger, buf := captureLogger()
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/export?only=images&status=verified", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	entry := lastLogEntry(t, buf)
	if entry["level"] != "INFO" {
		t.Errorf("level: хотели INFO, получили %v", entry["level"])
	}
	if entry["path"] != "/api/export" {
		t.Errorf("path: получили %v", entry["path"])
	}
	if entry["filters"] != "only=images&status=verified" {
		t.Errorf("filters: хотели строку фильтров, получили %v", entry["filters"])
	}
	if entry["status"] != float64(http.StatusOK) {
		t.Errorf("status: получили %v", entry["status"])
	}
}

func TestRequestLogger_LevelByStatus(t *testing.T) {
	cases := []struct {
		status int
		level  string
	}{
		{http.StatusNotFound, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}

	for _, c := range cases {
		logger, buf := captureLogger()
		handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(c.status)
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/export", nil)
		handler.ServeHTTP(httptest.NewRecorder(), req)

		entry := lastLogEntry(t, buf)
		if entry["level"] != c.level {
			t.Errorf("статус %d: хотели уровень %s, получили %v", c.status, c.level, entry["level"])
		}
	}
}

// Субъект, извлечённый из токена глубже в цепочке, должен попасть
// в итоговую строку лога запроса.
func TestRequestLogger_SubjectAnnotation(t *testing.T) {
	logger, buf := captureLogger()
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		AnnotateSubject(r.Context(), "admin@pondok")
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/export", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := lastLogEntry(t, buf)
	if entry["subject"] != "admin@pondok" {
		t.Errorf("subject: хотели admin@pondok, получили %v", entry["subject"])
	}
}

func TestRequestLogger_NoQueryNoFilters(t *testing.T) {
	logger, buf := captureLogger()
	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	handler.ServeHTTP(httptest.NewRecorder(), req)

	entry := lastLogEntry(t, buf)
	if _, ok := entry["filters"]; ok {
		t.Error("filters не должен присутствовать без query string")
	}
}
