// Package rediscache кеширует каталог в Redis поверх любого ProductRepository.
package rediscache

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/coffeeshop/internal/domain"
	"github.com/vladislavdragonenkov/coffeeshop/internal/metrics"
)

const (
	defaultTTL    = 5 * time.Minute
	defaultPrefix = "storefront:catalog:"
)

// Client — команды Redis, которые нужны кешу.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Incr(ctx context.Context, key string) *redis.IntCmd
}

// Options настраивает кеш каталога.
type Options struct {
	TTL     time.Duration
	Prefix  string
	Logger  *log.Entry
	Metrics *metrics.StorefrontMetrics
}

// ProductCache — read-through кеш товаров и выборок каталога.
// Выборки привязаны к поколению каталога: любое изменение увеличивает поколение,
// и старые ключи просто истекают по TTL.
type ProductCache struct {
	next    domain.ProductRepository
	client  Client
	ttl     time.Duration
	prefix  string
	logger  *log.Entry
	metrics *metrics.StorefrontMetrics
}

// NewProductCache оборачивает репозиторий каталога.
func NewProductCache(next domain.ProductRepository, client Client, opts Options) *ProductCache {
	if opts.TTL <= 0 {
		opts.TTL = defaultTTL
	}
	if opts.Prefix == "" {
		opts.Prefix = defaultPrefix
	}
	if opts.Logger == nil {
		opts.Logger = log.WithField("component", "catalog-cache")
	}
	return &ProductCache{
		next:    next,
		client:  client,
		ttl:     opts.TTL,
		prefix:  opts.Prefix,
		logger:  opts.Logger,
		metrics: opts.Metrics,
	}
}

// NewClient создаёт клиента Redis по адресу host:port.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

func (c *ProductCache) Get(ctx context.Context, id string) (domain.Product, error) {
	key := c.prefix + "product:" + id

	var product domain.Product
	if c.load(ctx, "product", key, &product) {
		return product, nil
	}

	product, err := c.next.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	c.store(ctx, key, product)
	return product, nil
}

func (c *ProductCache) List(ctx context.Context, filter domain.ProductFilter) ([]domain.Product, error) {
	key := c.prefix + "list:" + c.generation(ctx) + ":" + filterKey(filter)

	var products []domain.Product
	if c.load(ctx, "list", key, &products) {
		return products, nil
	}

	products, err := c.next.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, products)
	return products, nil
}

// Upsert пишет в репозиторий и сбрасывает кеш товара и всех выборок.
func (c *ProductCache) Upsert(ctx context.Context, product domain.Product) error {
	if err := c.next.Upsert(ctx, product); err != nil {
		return err
	}
	if err := c.client.Del(ctx, c.prefix+"product:"+product.ID).Err(); err != nil {
		c.logger.WithError(err).WithField("product_id", product.ID).Warn("failed to evict cached product")
	}
	c.bump(ctx)
	return nil
}

func (c *ProductCache) ListSubCategories(ctx context.Context) ([]domain.SubCategory, error) {
	key := c.prefix + "subcategories:" + c.generation(ctx)

	var subs []domain.SubCategory
	if c.load(ctx, "subcategories", key, &subs) {
		return subs, nil
	}

	subs, err := c.next.ListSubCategories(ctx)
	if err != nil {
		return nil, err
	}
	c.store(ctx, key, subs)
	return subs, nil
}

func (c *ProductCache) UpsertSubCategory(ctx context.Context, sub domain.SubCategory) error {
	if err := c.next.UpsertSubCategory(ctx, sub); err != nil {
		return err
	}
	c.bump(ctx)
	return nil
}

// load читает JSON из Redis; любая ошибка Redis считается промахом.
func (c *ProductCache) load(ctx context.Context, kind, key string, dst any) bool {
	raw, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).WithField("key", key).Warn("catalog cache read failed")
		}
		c.metrics.RecordCacheLookup(kind, false)
		return false
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("catalog cache entry is corrupted")
		c.metrics.RecordCacheLookup(kind, false)
		return false
	}
	c.metrics.RecordCacheLookup(kind, true)
	return true
}

func (c *ProductCache) store(ctx context.Context, key string, value any) {
	raw, err := json.Marshal(value)
	if err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("failed to encode catalog cache entry")
		return
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		c.logger.WithError(err).WithField("key", key).Warn("catalog cache write failed")
	}
}

func (c *ProductCache) generation(ctx context.Context) string {
	gen, err := c.client.Get(ctx, c.prefix+"gen").Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			c.logger.WithError(err).Warn("failed to read catalog generation")
		}
		return "0"
	}
	return gen
}

func (c *ProductCache) bump(ctx context.Context) {
	if err := c.client.Incr(ctx, c.prefix+"gen").Err(); err != nil {
		c.logger.WithError(err).Warn("failed to bump catalog generation")
	}
}

func filterKey(filter domain.ProductFilter) string {
	raw := fmt.Sprintf("%s|%s|%s|%t|%s",
		filter.Category, filter.SubCategoryID, filter.Query, filter.OnlyAvailable, strconv.Itoa(filter.Limit))
	sum := sha1.Sum([]byte(raw))
	return hex.EncodeToString(sum[:])
}

var _ domain.ProductRepository = (*ProductCache)(nil)
