package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/fishdeas/fishdeas/pkg/observability"
	"github.com/fishdeas/fishdeas/pkg/storage"
)

// NewRedisClient connects to Redis and verifies the connection
func NewRedisClient(cfg storage.Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisURL,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return client, nil
}

// CachedArticleStore wraps an ArticleStore with a Redis read-through
// cache. Articles change rarely and are read on every visit, so they
// are the one record type worth caching. Writes invalidate eagerly.
type CachedArticleStore struct {
	inner   storage.ArticleStore
	redis   *redis.Client
	ttl     map[string]time.Duration
	metrics *observability.Metrics
}

// NewCachedArticleStore wraps inner with caching; metrics may be nil
func NewCachedArticleStore(inner storage.ArticleStore, client *redis.Client, ttl map[string]time.Duration, metrics *observability.Metrics) *CachedArticleStore {
	if ttl == nil {
		ttl = storage.DefaultConfig().CacheTTL
	}
	return &CachedArticleStore{
		inner:   inner,
		redis:   client,
		ttl:     ttl,
		metrics: metrics,
	}
}

func (c *CachedArticleStore) CreateArticle(ctx context.Context, article *storage.Article) error {
	if err := c.inner.CreateArticle(ctx, article); err != nil {
		return err
	}
	c.redis.Del(ctx, "articles:list")
	return nil
}

func (c *CachedArticleStore) GetArticle(ctx context.Context, id string) (*storage.Article, error) {
	cacheKey := fmt.Sprintf("article:%s", id)

	cached, err := c.redis.Get(ctx, cacheKey).Result()
	if err == nil {
		var article storage.Article
		if err := json.Unmarshal([]byte(cached), &article); err == nil {
			c.hit("article")
			return &article, nil
		}
	}
	c.miss("article")

	article, err := c.inner.GetArticle(ctx, id)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(article); err == nil {
		c.redis.Set(ctx, cacheKey, data, c.ttl["article"])
	}
	return article, nil
}

func (c *CachedArticleStore) ListArticles(ctx context.Context) ([]*storage.Article, error) {
	cacheKey := "articles:list"

	cached, err := c.redis.Get(ctx, cacheKey).Result()
	if err == nil {
		var articles []*storage.Article
		if err := json.Unmarshal([]byte(cached), &articles); err == nil {
			c.hit("article_list")
			return articles, nil
		}
	}
	c.miss("article_list")

	articles, err := c.inner.ListArticles(ctx)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(articles); err == nil {
		c.redis.Set(ctx, cacheKey, data, c.ttl["article_list"])
	}
	return articles, nil
}

// SearchArticles is not cached; query strings are unbounded and results
// go stale with every write
func (c *CachedArticleStore) SearchArticles(ctx context.Context, title string) ([]*storage.Article, error) {
	return c.inner.SearchArticles(ctx, title)
}

func (c *CachedArticleStore) UpdateArticle(ctx context.Context, article *storage.Article) error {
	if err := c.inner.UpdateArticle(ctx, article); err != nil {
		return err
	}
	c.invalidate(ctx, article.ID)
	return nil
}

func (c *CachedArticleStore) DeleteArticle(ctx context.Context, id string) error {
	if err := c.inner.DeleteArticle(ctx, id); err != nil {
		return err
	}
	c.invalidate(ctx, id)
	return nil
}

func (c *CachedArticleStore) invalidate(ctx context.Context, id string) {
	c.redis.Del(ctx, fmt.Sprintf("article:%s", id), "articles:list")
}

func (c *CachedArticleStore) hit(keyType string) {
	if c.metrics != nil {
		c.metrics.CacheHitsTotal.WithLabelValues(keyType).Inc()
	}
}

func (c *CachedArticleStore) miss(keyType string) {
	if c.metrics != nil {
		c.metrics.CacheMissesTotal.WithLabelValues(keyType).Inc()
	}
}
