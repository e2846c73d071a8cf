package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/fishdeas/fishdeas/pkg/observability"
	"github.com/fishdeas/fishdeas/pkg/storage"
)

// ArticleStore implements storage.ArticleStore on PostgreSQL
type ArticleStore struct {
	db  *sql.DB
	ops opTracker
}

// NewArticleStore creates an article store on the given connection;
// metrics may be nil
func NewArticleStore(db *sql.DB, metrics *observability.Metrics) *ArticleStore {
	return &ArticleStore{db: db, ops: opTracker{metrics: metrics}}
}

func (s *ArticleStore) CreateArticle(ctx context.Context, article *storage.Article) (err error) {
	defer s.ops.track("create_article", &err)()
	query := `
		INSERT INTO articles (id, title, content, author, image_url, date)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	_, err = s.db.ExecContext(ctx, query,
		article.ID,
		article.Title,
		article.Content,
		article.Author,
		article.ImageURL,
		article.Date,
	)
	if err != nil {
		return fmt.Errorf("failed to create article: %w", err)
	}
	return nil
}

func (s *ArticleStore) GetArticle(ctx context.Context, id string) (article *storage.Article, err error) {
	defer s.ops.track("get_article", &err)()
	query := `
		SELECT id, title, content, author, image_url, date
		FROM articles
		WHERE id = $1
	`

	article = &storage.Article{}
	err = s.db.QueryRowContext(ctx, query, id).Scan(
		&article.ID,
		&article.Title,
		&article.Content,
		&article.Author,
		&article.ImageURL,
		&article.Date,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	} else if err != nil {
		return nil, fmt.Errorf("failed to get article: %w", err)
	}
	return article, nil
}

func (s *ArticleStore) ListArticles(ctx context.Context) (articles []*storage.Article, err error) {
	defer s.ops.track("list_articles", &err)()
	query := `
		SELECT id, title, content, author, image_url, date
		FROM articles
		ORDER BY date DESC, created_at DESC
	`
	return s.queryArticles(ctx, query)
}

func (s *ArticleStore) SearchArticles(ctx context.Context, title string) (articles []*storage.Article, err error) {
	defer s.ops.track("search_articles", &err)()
	query := `
		SELECT id, title, content, author, image_url, date
		FROM articles
		WHERE title ILIKE '%' || $1 || '%'
		ORDER BY date DESC, created_at DESC
	`
	return s.queryArticles(ctx, query, title)
}

func (s *ArticleStore) UpdateArticle(ctx context.Context, article *storage.Article) (err error) {
	defer s.ops.track("update_article", &err)()
	query := `
		UPDATE articles
		SET title = $1, content = $2, author = $3, image_url = $4, date = $5
		WHERE id = $6
	`
	result, err := s.db.ExecContext(ctx, query,
		article.Title,
		article.Content,
		article.Author,
		article.ImageURL,
		article.Date,
		article.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update article: %w", err)
	}
	return requireRow(result)
}

func (s *ArticleStore) DeleteArticle(ctx context.Context, id string) (err error) {
	defer s.ops.track("delete_article", &err)()
	result, err := s.db.ExecContext(ctx, `DELETE FROM articles WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete article: %w", err)
	}
	return requireRow(result)
}

func (s *ArticleStore) queryArticles(ctx context.Context, query string, args ...interface{}) ([]*storage.Article, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	defer rows.Close()

	articles := make([]*storage.Article, 0)
	for rows.Next() {
		var article storage.Article
		if err := rows.Scan(
			&article.ID,
			&article.Title,
			&article.Content,
			&article.Author,
			&article.ImageURL,
			&article.Date,
		); err != nil {
			return nil, fmt.Errorf("failed to scan article: %w", err)
		}
		articles = append(articles, &article)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate articles: %w", err)
	}
	return articles, nil
}
