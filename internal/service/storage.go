// Пакет service — бизнес-логика экспортного конвейера и загрузки файлов.
// storage.go — узкие интерфейсы внешних коллабораторов.
package service

import (
	"context"
	"time"

	"github.com/dewasatria11/pondok-backend/internal/objstore"
)

// ObjectStorage — операции object storage, используемые конвейером.
// Реализуется *objstore.Client; в тестах подменяется фейком.
type ObjectStorage interface {
	List(ctx context.Context, bucket, prefix string, limit int) ([]objstore.ObjectInfo, error)
	Download(ctx context.Context, bucket, path string) ([]byte, error)
	Upload(ctx context.Context, bucket, path string, data []byte, contentType string) error
	SignURL(ctx context.Context, bucket, path string, ttl time.Duration) (string, error)
	Remove(ctx context.Context, bucket string, paths []string) error
}
