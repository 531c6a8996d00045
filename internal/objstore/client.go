// Пакет objstore — HTTP-клиент object-storage API (Supabase-совместимый REST).
// Операции: List, Download, Upload, SignURL, Remove, PublicURL.
// Клиент создаётся один раз при старте процесса и передаётся в сервисы
// по ссылке — без глобального состояния и переподключений.
package objstore

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ObjectInfo — метаданные объекта из листинга бакета.
type ObjectInfo struct {
	// Name — имя объекта относительно префикса листинга
	Name string `json:"name"`
	// CreatedAt — время создания объекта
	CreatedAt time.Time `json:"created_at"`
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time `json:"updated_at"`
	// Metadata — размер и MIME-тип (может отсутствовать для "папок")
	Metadata *ObjectMetadata `json:"metadata,omitempty"`
}

// ObjectMetadata — вложенные метаданные объекта.
type ObjectMetadata struct {
	Size     int64  `json:"size"`
	Mimetype string `json:"mimetype"`
}

// Client — клиент object-storage API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	serviceKey string
	logger     *slog.Logger
}

// New создаёт клиент object storage.
// baseURL — корень API без завершающего слэша, serviceKey — сервисный ключ
// с полным доступом к бакетам.
func New(baseURL, serviceKey string, logger *slog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		logger:     logger.With(slog.String("component", "objstore")),
	}
}

// listRequest — тело запроса листинга.
type listRequest struct {
	Prefix string     `json:"prefix"`
	Limit  int        `json:"limit,omitempty"`
	Offset int        `json:"offset"`
	SortBy listSortBy `json:"sortBy"`
}

type listSortBy struct {
	Column string `json:"column"`
	Order  string `json:"order"`
}

// List возвращает объекты бакета под заданным префиксом.
// Листинг плоский: вложенные "папки" приходят как объекты без metadata.
// POST /storage/v1/object/list/{bucket}
func (c *Client) List(ctx context.Context, bucket, prefix string, limit int) ([]ObjectInfo, error) {
	reqURL := fmt.Sprintf("%s/storage/v1/object/list/%s", c.baseURL, bucket)

	body, err := json.Marshal(listRequest{
		Prefix: prefix,
		Limit:  limit,
		SortBy: listSortBy{Column: "name", Order: "asc"},
	})
	if err != nil {
		return nil, fmt.Errorf("сериализация запроса листинга: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("создание запроса List: %w", err)
	}
	c.setAuth(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("листинг %s/%s: %w", bucket, prefix, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError("List", bucket, prefix, resp)
	}

	var objects []ObjectInfo
	if err := json.NewDecoder(resp.Body).Decode(&objects); err != nil {
		return nil, fmt.Errorf("декодирование листинга %s/%s: %w", bucket, prefix, err)
	}

	return objects, nil
}

// Download скачивает объект целиком.
// GET /storage/v1/object/{bucket}/{path}
func (c *Client) Download(ctx context.Context, bucket, path string) ([]byte, error) {
	reqURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, bucket, escapePath(path))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("создание запроса Download: %w", err)
	}
	c.setAuth(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("скачивание %s/%s: %w", bucket, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.apiError("Download", bucket, path, resp)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("чтение тела %s/%s: %w", bucket, path, err)
	}

	return data, nil
}

// Upload загружает объект в бакет.
// POST /storage/v1/object/{bucket}/{path}
func (c *Client) Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error {
	reqURL := fmt.Sprintf("%s/storage/v1/object/%s/%s", c.baseURL, bucket, escapePath(path))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("создание запроса Upload: %w", err)
	}
	c.setAuth(req)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Cache-Control", "3600")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("загрузка %s/%s: %w", bucket, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.apiError("Upload", bucket, path, resp)
	}

	return nil
}

// signResponse — ответ endpointa подписи URL.
type signResponse struct {
	SignedURL string `json:"signedURL"`
}

// SignURL выпускает подписанную ссылку на объект со сроком жизни ttl.
// POST /storage/v1/object/sign/{bucket}/{path}
func (c *Client) SignURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error) {
	reqURL := fmt.Sprintf("%s/storage/v1/object/sign/%s/%s", c.baseURL, bucket, escapePath(path))

	body, err := json.Marshal(map[string]int{"expiresIn": int(ttl.Seconds())})
	if err != nil {
		return "", fmt.Errorf("сериализация запроса подписи: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, reqURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("создание запроса SignURL: %w", err)
	}
	c.setAuth(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("подпись URL %s/%s: %w", bucket, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", c.apiError("SignURL", bucket, path, resp)
	}

	var signed signResponse
	if err := json.NewDecoder(resp.Body).Decode(&signed); err != nil {
		return "", fmt.Errorf("декодирование ответа подписи %s/%s: %w", bucket, path, err)
	}
	if signed.SignedURL == "" {
		return "", fmt.Errorf("подпись URL %s/%s: пустой signedURL в ответе", bucket, path)
	}

	// API возвращает путь относительно /storage/v1
	return c.baseURL + "/storage/v1" + signed.SignedURL, nil
}

// Remove удаляет объекты из бакета. Best-effort со стороны вызывающих:
// ошибка возвращается, но очистка не обязана её эскалировать.
// DELETE /storage/v1/object/{bucket}
func (c *Client) Remove(ctx context.Context, bucket string, paths []string) error {
	reqURL := fmt.Sprintf("%s/storage/v1/object/%s", c.baseURL, bucket)

	body, err := json.Marshal(map[string][]string{"prefixes": paths})
	if err != nil {
		return fmt.Errorf("сериализация запроса удаления: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, reqURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("создание запроса Remove: %w", err)
	}
	c.setAuth(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("удаление из %s: %w", bucket, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.apiError("Remove", bucket, strings.Join(paths, ","), resp)
	}

	return nil
}

// PublicURL возвращает публичную ссылку на объект (для публичных бакетов).
func (c *Client) PublicURL(bucket, path string) string {
	return fmt.Sprintf("%s/storage/v1/object/public/%s/%s", c.baseURL, bucket, escapePath(path))
}

// setAuth выставляет заголовки авторизации сервисного ключа.
func (c *Client) setAuth(req *http.Request) {
	req.Header.Set("Authorization", "Bearer "+c.serviceKey)
	req.Header.Set("apikey", c.serviceKey)
}

// apiError формирует ошибку из неуспешного ответа API,
// включая усечённое тело для диагностики.
func (c *Client) apiError(op, bucket, path string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	return fmt.Errorf("%s %s/%s: статус %d: %s", op, bucket, path, resp.StatusCode, string(body))
}

// escapePath экранирует сегменты пути объекта, сохраняя разделители.
func escapePath(path string) string {
	segments := strings.Split(path, "/")
	for i, s := range segments {
		segments[i] = url.PathEscape(s)
	}
	return strings.Join(segments, "/")
}
