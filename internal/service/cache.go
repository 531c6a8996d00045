// CacheService — LRU-кэш готовых артефактов экспорта с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
//
// Повторный экспорт с теми же фильтрами в пределах TTL возвращает уже
// опубликованный архив вместо повторной сборки. TTL кэша строго меньше
// срока действия подписанной ссылки, поэтому из кэша никогда не
// возвращается протухший URL.
package service

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/dewasatria11/pondok-backend/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "psb_export_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш артефактов экспорта.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "psb_export_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша артефактов экспорта.",
	})
)

// CacheService — LRU-кэш артефактов экспорта с автоматическим TTL.
// Каждый экземпляр имеет собственный in-memory кэш (per-instance).
type CacheService struct {
	cache *expirable.LRU[string, *model.ExportSummary]
}

// NewCacheService создаёт LRU-кэш с указанным максимальным размером и TTL.
// maxSize — максимальное количество записей в кэше.
// ttl — время жизни записи после добавления.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	cache := expirable.NewLRU[string, *model.ExportSummary](maxSize, nil, ttl)
	return &CacheService{cache: cache}
}

// FilterKey строит детерминированный ключ кэша по фильтрам экспорта.
func FilterKey(f model.ExportFilter) string {
	raw := fmt.Sprintf("only=%s|status=%s|from=%s|to=%s|limit=%d",
		f.Only, f.Status, f.DateFrom, f.DateTo, f.Limit)
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Get возвращает результат экспорта из кэша по ключу фильтров.
// Возвращает (результат, true) при hit или (nil, false) при miss.
// Обновляет Prometheus-метрики hit/miss.
func (c *CacheService) Get(key string) (*model.ExportSummary, bool) {
	val, ok := c.cache.Get(key)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись в кэше.
func (c *CacheService) Set(key string, summary *model.ExportSummary) {
	c.cache.Add(key, summary)
}

// Delete удаляет запись из кэша.
func (c *CacheService) Delete(key string) {
	c.cache.Remove(key)
}
