package catalog

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"

	"github.com/vladislavdragonenkov/shop/internal/domain"
	"github.com/vladislavdragonenkov/shop/internal/metrics"
)

const (
	defaultImageCacheSize = 10000
	defaultImageCacheTTL  = 5 * time.Minute
	imageBatchSize        = 200
	imageBatchParallelism = 4
)

// imageEntry кэширует и отсутствие изображения, чтобы не ходить в хранилище повторно.
type imageEntry struct {
	url       string
	found     bool
	expiresAt time.Time
}

// ImageCache — LRU-кэш с TTL поверх ImageLookup.
type ImageCache struct {
	backend domain.ImageLookup
	cache   *lru.Cache[int64, imageEntry]
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.ShopMetrics
	mu      sync.Mutex
}

// NewImageCache создаёт кэш на size записей; size<=0 и ttl<=0 заменяются значениями по умолчанию.
func NewImageCache(backend domain.ImageLookup, size int, ttl time.Duration, m *metrics.ShopMetrics) (*ImageCache, error) {
	if size <= 0 {
		size = defaultImageCacheSize
	}
	if ttl <= 0 {
		ttl = defaultImageCacheTTL
	}
	cache, err := lru.New[int64, imageEntry](size)
	if err != nil {
		return nil, fmt.Errorf("create image cache: %w", err)
	}
	return &ImageCache{
		backend: backend,
		cache:   cache,
		ttl:     ttl,
		now:     time.Now,
		metrics: m,
	}, nil
}

// RepresentativeImages отдаёт URL из кэша, а промахи догружает пачками параллельно.
func (c *ImageCache) RepresentativeImages(ctx context.Context, itemIDs []int64) (map[int64]string, error) {
	result := make(map[int64]string, len(itemIDs))
	now := c.now()

	var missing []int64
	seen := make(map[int64]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}

		entry, ok := c.cache.Get(id)
		if !ok || now.After(entry.expiresAt) {
			missing = append(missing, id)
			continue
		}
		if entry.found {
			result[id] = entry.url
		}
	}
	c.metrics.RecordImageCacheHit(len(seen) - len(missing))
	c.metrics.RecordImageCacheMiss(len(missing))
	if len(missing) == 0 {
		return result, nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(imageBatchParallelism)
	for start := 0; start < len(missing); start += imageBatchSize {
		end := min(start+imageBatchSize, len(missing))
		batch := missing[start:end]

		g.Go(func() error {
			found, err := c.backend.RepresentativeImages(gctx, batch)
			if err != nil {
				return err
			}
			c.store(batch, found, result)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("load representative images: %w", err)
	}
	return result, nil
}

func (c *ImageCache) store(batch []int64, found map[int64]string, result map[int64]string) {
	expiresAt := c.now().Add(c.ttl)

	c.mu.Lock()
	defer c.mu.Unlock()

	for _, id := range batch {
		url, ok := found[id]
		c.cache.Add(id, imageEntry{url: url, found: ok, expiresAt: expiresAt})
		if ok {
			result[id] = url
		}
	}
}

// Purge очищает кэш.
func (c *ImageCache) Purge() {
	c.cache.Purge()
}

var _ domain.ImageLookup = (*ImageCache)(nil)
