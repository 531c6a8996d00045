package handlers

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dewasatria11/pondok-backend/internal/objstore"
	"github.com/dewasatria11/pondok-backend/internal/service"
)

// fakeUploadStorage — реализация service.ObjectStorage, записывающая Upload-ы.
type fakeUploadStorage struct {
	uploadErr error

	gotBucket      string
	gotPath        string
	gotData        []byte
	gotContentType string
}

func (f *fakeUploadStorage) List(context.Context, string, string, int) ([]objstore.ObjectInfo, error) {
	return nil, nil
}

func (f *fakeUploadStorage) Download(context.Context, string, string) ([]byte, error) {
	return nil, nil
}

func (f *fakeUploadStorage) Upload(_ context.Context, bucket, path string, data []byte, contentType string) error {
	if f.uploadErr != nil {
		return f.uploadErr
	}
	f.gotBucket = bucket
	f.gotPath = path
	f.gotData = data
	f.gotContentType = contentType
	return nil
}

func (f *fakeUploadStorage) SignURL(context.Context, string, string, time.Duration) (string, error) {
	return "", nil
}

func (f *fakeUploadStorage) Remove(context.Context, string, []string) error {
	return nil
}

func testPublicURL(bucket, path string) string {
	return "https://storage.test/public/" + bucket + "/" + path
}

func newTestUploadHandler(storage *fakeUploadStorage, maxSize int64) *UploadHandler {
	return NewUploadHandler(storage, testPublicURL,
		service.NewCompressService(500, testLogger()),
		"pendaftar-files", maxSize, testLogger())
}

// postUpload отправляет JSON-запрос загрузки и возвращает recorder.
func postUpload(t *testing.T, h *UploadHandler, body map[string]any) *httptest.ResponseRecorder {
	t.Helper()

	raw, err := json.Marshal(body)
	if err != nil {
		t.Fatalf("Маршалинг тела запроса: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/api/upload", bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.Upload(rec, req)
	return rec
}

func TestUpload_PDFPassthrough(t *testing.T) {
	storage := &fakeUploadStorage{}
	h := newTestUploadHandler(storage, 5*1024*1024)

	pdf := []byte("%PDF-1.4 test document")
	rec := postUpload(t, h, map[string]any{
		"file":     base64.StdEncoding.EncodeToString(pdf),
		"fileName": "ijazah.pdf",
		"nisn":     "0012345678",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("статус: хотели 200, получили %d, тело: %s", rec.Code, rec.Body.String())
	}

	if storage.gotPath != "0012345678/ijazah.pdf" {
		t.Errorf("path: хотели 0012345678/ijazah.pdf, получили %q", storage.gotPath)
	}
	if !bytes.Equal(storage.gotData, pdf) {
		t.Error("PDF должен загружаться без изменений")
	}
	if storage.gotContentType != "application/pdf" {
		t.Errorf("content-type: хотели application/pdf, получили %q", storage.gotContentType)
	}

	var resp map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp["ok"] != true {
		t.Error("ok: хотели true")
	}
	if resp["filename"] != "0012345678/ijazah.pdf" {
		t.Errorf("filename: получили %v", resp["filename"])
	}
	if !strings.HasPrefix(resp["url"].(string), "https://storage.test/public/pendaftar-files/") {
		t.Errorf("url: получили %v", resp["url"])
	}
}

func TestUpload_JPEGServerCompression(t *testing.T) {
	storage := &fakeUploadStorage{}
	h := newTestUploadHandler(storage, 5*1024*1024)

	// Маленький JPEG: сжатие должно отработать и сохранить формат
	img := image.NewNRGBA(image.Rect(0, 0, 50, 50))
	for y := 0; y < 50; y++ {
		for x := 0; x < 50; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 5), G: uint8(y * 5), B: 100, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}); err != nil {
		t.Fatal(err)
	}

	rec := postUpload(t, h, map[string]any{
		"file":     "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()),
		"fileName": "pas-foto.jpg",
		"nisn":     "0012345678",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("статус: хотели 200, получили %d, тело: %s", rec.Code, rec.Body.String())
	}
	if storage.gotContentType != "image/jpeg" {
		t.Errorf("content-type: хотели image/jpeg, получили %q", storage.gotContentType)
	}
	if _, err := jpeg.Decode(bytes.NewReader(storage.gotData)); err != nil {
		t.Errorf("загруженные байты не декодируются как JPEG: %v", err)
	}
}

func TestUpload_ClientCompressedSkipsServerCompression(t *testing.T) {
	storage := &fakeUploadStorage{}
	h := newTestUploadHandler(storage, 5*1024*1024)

	// Невалидный JPEG, но alreadyCompressed=true: сервер не трогает байты
	data := []byte("pretend-compressed-jpeg")
	rec := postUpload(t, h, map[string]any{
		"file":              base64.StdEncoding.EncodeToString(data),
		"fileName":          "foto.jpg",
		"nisn":              "0012345678",
		"alreadyCompressed": true,
		"mimeType":          "image/jpeg",
	})

	if rec.Code != http.StatusOK {
		t.Fatalf("статус: хотели 200, получили %d", rec.Code)
	}
	if !bytes.Equal(storage.gotData, data) {
		t.Error("байты изменились несмотря на alreadyCompressed")
	}
}

func TestUpload_ValidationErrors(t *testing.T) {
	cases := []struct {
		name string
		body map[string]any
	}{
		{"нет обязательных полей", map[string]any{"fileName": "a.pdf"}},
		{"nisn undefined", map[string]any{
			"file": "aGVsbG8=", "fileName": "a.pdf", "nisn": "undefined"}},
		{"nisn короткий", map[string]any{
			"file": "aGVsbG8=", "fileName": "a.pdf", "nisn": "12345"}},
		{"nisn с буквами", map[string]any{
			"file": "aGVsbG8=", "fileName": "a.pdf", "nisn": "12345abcde"}},
		{"запрещённое расширение", map[string]any{
			"file": "aGVsbG8=", "fileName": "malware.exe", "nisn": "0012345678"}},
		{"без расширения", map[string]any{
			"file": "aGVsbG8=", "fileName": "noext", "nisn": "0012345678"}},
		{"невалидный base64", map[string]any{
			"file": "???не-base64???", "fileName": "a.pdf", "nisn": "0012345678"}},
		{"кривой data-URL", map[string]any{
			"file": "data:image/png;base64", "fileName": "a.png", "nisn": "0012345678"}},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			h := newTestUploadHandler(&fakeUploadStorage{}, 5*1024*1024)
			rec := postUpload(t, h, c.body)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("статус: хотели 400, получили %d, тело: %s", rec.Code, rec.Body.String())
			}
		})
	}
}

func TestUpload_FileTooLarge(t *testing.T) {
	// Тело укладывается в лимит чтения (2×maxSize), но декодированный
	// файл превышает потолок после сжатия
	h := newTestUploadHandler(&fakeUploadStorage{}, 1024)

	rec := postUpload(t, h, map[string]any{
		"file":     base64.StdEncoding.EncodeToString(bytes.Repeat([]byte("a"), 1100)),
		"fileName": "big.pdf",
		"nisn":     "0012345678",
	})

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("статус: хотели 413, получили %d", rec.Code)
	}
}

func TestUpload_StorageError(t *testing.T) {
	cases := []struct {
		name      string
		uploadErr error
		wantMsg   string
	}{
		{"бакет не существует", errors.New("Bucket not found"),
			"Storage bucket 'pendaftar-files' belum dibuat. Silakan buat bucket terlebih dahulu."},
		{"дубликат объекта", errors.New("duplicate key value violates unique constraint"),
			"File dengan nama yang sama sudah ada."},
		{"прочая ошибка", errors.New("connection refused"),
			"Gagal mengunggah file ke storage"},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			storage := &fakeUploadStorage{uploadErr: c.uploadErr}
			h := newTestUploadHandler(storage, 5*1024*1024)

			rec := postUpload(t, h, map[string]any{
				"file":     base64.StdEncoding.EncodeToString([]byte("%PDF test")),
				"fileName": "ijazah.pdf",
				"nisn":     "0012345678",
			})

			if rec.Code != http.StatusInternalServerError {
				t.Fatalf("статус: хотели 500, получили %d", rec.Code)
			}
			var resp map[string]any
			_ = json.Unmarshal(rec.Body.Bytes(), &resp)
			if resp["message"] != c.wantMsg {
				t.Errorf("message: хотели %q, получили %v", c.wantMsg, resp["message"])
			}
		})
	}
}

// Тело больше допустимого отсекается ещё при чтении, не после
// полного base64-декодирования в память.
func TestUpload_BodyBoundedBeforeDecode(t *testing.T) {
	h := newTestUploadHandler(&fakeUploadStorage{}, 16)

	// Незакрытая JSON-строка заметно больше потолка: декодер вынужден
	// читать дальше и упирается в ограничение тела
	body := `{"file":"` + strings.Repeat("A", 4096)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("статус: хотели 413, получили %d", rec.Code)
	}
}

func TestUpload_InvalidJSONBody(t *testing.T) {
	h := newTestUploadHandler(&fakeUploadStorage{}, 5*1024*1024)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", strings.NewReader("не json"))
	rec := httptest.NewRecorder()
	h.Upload(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("статус: хотели 400, получили %d", rec.Code)
	}
}
