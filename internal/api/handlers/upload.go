// upload.go — обработчик загрузки документов абитуриента.
// POST /api/upload принимает JSON с base64-содержимым файла,
// валидирует NISN и расширение, сжимает изображения под целевой
// размер и кладёт файл в бакет pendaftar-files под ключом {nisn}/{имя}.
package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"regexp"
	"strings"

	apierrors "github.com/dewasatria11/pondok-backend/internal/api/errors"
	"github.com/dewasatria11/pondok-backend/internal/service"
)

// nisnPattern — NISN: ровно 10 цифр.
var nisnPattern = regexp.MustCompile(`^\d{10}$`)

// allowedUploadExtensions — расширения, принимаемые загрузкой.
var allowedUploadExtensions = []string{"jpg", "jpeg", "png", "pdf", "doc", "docx"}

// mimeByExtension — MIME-типы по расширению для незажатых файлов.
var mimeByExtension = map[string]string{
	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"pdf":  "application/pdf",
	"doc":  "application/msword",
	"docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// uploadRequest — тело запроса загрузки.
type uploadRequest struct {
	// File — base64-содержимое, допускается data-URL префикс
	File string `json:"file"`
	// FileName — имя файла (уже отформатировано клиентом)
	FileName string `json:"fileName"`
	// FileType — тип документа (информативно, в пути не участвует)
	FileType string `json:"fileType"`
	// NISN — namespace файлов абитуриента
	NISN string `json:"nisn"`
	// AlreadyCompressed — клиент уже сжал изображение
	AlreadyCompressed bool `json:"alreadyCompressed"`
	// MimeType — MIME от клиента (для уже сжатых файлов)
	MimeType string `json:"mimeType"`
}

// uploadResponse — тело успешного ответа загрузки.
type uploadResponse struct {
	OK       bool   `json:"ok"`
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

// UploadHandler — обработчик endpoint-а загрузки.
type UploadHandler struct {
	storage    service.ObjectStorage
	publicURL  func(bucket, path string) string
	compressor *service.CompressService
	bucket     string
	maxSize    int64
	logger     *slog.Logger
}

// NewUploadHandler создаёт обработчик загрузки.
// publicURL — функция построения публичной ссылки (objstore.Client.PublicURL),
// maxSize — жёсткий потолок размера файла после сжатия в байтах.
func NewUploadHandler(
	storage service.ObjectStorage,
	publicURL func(bucket, path string) string,
	compressor *service.CompressService,
	bucket string,
	maxSize int64,
	logger *slog.Logger,
) *UploadHandler {
	return &UploadHandler{
		storage:    storage,
		publicURL:  publicURL,
		compressor: compressor,
		bucket:     bucket,
		maxSize:    maxSize,
		logger:     logger.With(slog.String("component", "upload_handler")),
	}
}

// Upload обрабатывает POST /api/upload.
func (h *UploadHandler) Upload(w http.ResponseWriter, r *http.Request) {
	// Потолок тела: сам файл ограничен maxSize, плюс base64-наценка
	// ~4/3 и JSON-обёртка. Без этого произвольно большой payload
	// целиком оседает в памяти ещё до декодирования.
	r.Body = http.MaxBytesReader(w, r.Body, h.maxSize*2)

	var req uploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apierrors.FileTooLarge(w,
				fmt.Sprintf("Ukuran file maksimal %dMB setelah kompres", h.maxSize/(1024*1024)))
			return
		}
		apierrors.ValidationError(w, "Невалидное JSON-тело запроса: "+err.Error())
		return
	}

	if req.File == "" || req.FileName == "" || req.NISN == "" {
		apierrors.ValidationError(w, "Обязательные поля: file, fileName, nisn")
		return
	}
	if req.NISN == "undefined" || strings.TrimSpace(req.NISN) == "" {
		apierrors.ValidationError(w, "NISN tidak valid")
		return
	}
	if !nisnPattern.MatchString(req.NISN) {
		apierrors.ValidationError(w, "Format NISN tidak valid. Harus 10 digit angka")
		return
	}

	data, err := decodeFilePayload(req.File)
	if err != nil {
		apierrors.ValidationError(w, err.Error())
		return
	}

	ext := extensionOf(req.FileName)
	if !extAllowed(ext) {
		apierrors.ValidationError(w,
			"Tipe file tidak diizinkan. Hanya: "+strings.Join(allowedUploadExtensions, ", "))
		return
	}

	contentType := mimeByExtension[ext]
	if req.MimeType != "" {
		contentType = req.MimeType
	}

	// Серверное сжатие изображений, если клиент не сжал сам.
	// Сбой сжатия не фатален: загружаем исходные байты.
	if isImageExt(ext) && !req.AlreadyCompressed {
		result, err := h.compressor.CompressKeepFormat(data, ext)
		if err != nil {
			h.logger.Warn("Сжатие не удалось, загружаем исходный файл",
				slog.String("filename", req.FileName),
				slog.String("error", err.Error()),
			)
		} else {
			data = result.Data
			if result.Mime != "" {
				contentType = result.Mime
			}
		}
	}

	if int64(len(data)) > h.maxSize {
		apierrors.FileTooLarge(w,
			fmt.Sprintf("Ukuran file maksimal %dMB setelah kompres", h.maxSize/(1024*1024)))
		return
	}

	storagePath := req.NISN + "/" + req.FileName
	if err := h.storage.Upload(r.Context(), h.bucket, storagePath, data, contentType); err != nil {
		h.logger.Error("Загрузка файла в хранилище не удалась",
			slog.String("path", storagePath),
			slog.String("error", err.Error()),
		)
		apierrors.InternalError(w, err.Error(), h.uploadErrorMessage(err))
		return
	}

	h.logger.Info("Файл загружен",
		slog.String("path", storagePath),
		slog.Int("bytes", len(data)),
		slog.String("content_type", contentType),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(uploadResponse{
		OK:       true,
		URL:      h.publicURL(h.bucket, storagePath),
		Filename: storagePath,
	})
}

// uploadErrorMessage переводит типовые ошибки хранилища в понятные
// фронтенду сообщения.
func (h *UploadHandler) uploadErrorMessage(err error) string {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "Bucket not found"), strings.Contains(msg, "404"):
		return fmt.Sprintf("Storage bucket '%s' belum dibuat. Silakan buat bucket terlebih dahulu.", h.bucket)
	case strings.Contains(strings.ToLower(msg), "duplicate"):
		return "File dengan nama yang sama sudah ada."
	default:
		return "Gagal mengunggah file ke storage"
	}
}

// decodeFilePayload декодирует base64-содержимое, срезая data-URL префикс.
func decodeFilePayload(payload string) ([]byte, error) {
	if strings.HasPrefix(payload, "data:") {
		_, after, found := strings.Cut(payload, ",")
		if !found {
			return nil, fmt.Errorf("невалидный data-URL формат")
		}
		payload = after
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("не удалось декодировать base64: %w", err)
	}
	return data, nil
}

// extensionOf возвращает расширение имени файла в нижнем регистре без точки.
func extensionOf(filename string) string {
	idx := strings.LastIndex(filename, ".")
	if idx < 0 || idx == len(filename)-1 {
		return ""
	}
	return strings.ToLower(filename[idx+1:])
}

func extAllowed(ext string) bool {
	for _, a := range allowedUploadExtensions {
		if ext == a {
			return true
		}
	}
	return false
}

func isImageExt(ext string) bool {
	return ext == "jpg" || ext == "jpeg" || ext == "png"
}
