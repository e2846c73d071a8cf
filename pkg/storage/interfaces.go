package storage

import (
	"context"
	"errors"
	"io"
	"time"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("record not found")
	// ErrDuplicate is returned by conditional creates when the record
	// already exists (unique email)
	ErrDuplicate = errors.New("record already exists")
)

// User is one credential record. SessionToken holds the single currently
// valid session cookie token, or "" when the user is logged out; writing
// a new value invalidates every previously issued token pair.
type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	PasswordHash string `json:"-"`
	Verified     bool   `json:"verified"`
	SessionToken string `json:"-"`
}

// ResetCode is the single-use password reset code for one user. A
// placeholder row (empty hash, zero expiry) is created at registration
// and overwritten on each reset request.
type ResetCode struct {
	UserID    string    `json:"user_id"`
	CodeHash  string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
	Used      bool      `json:"used"`
}

// Article is an editorial article with one uploaded image
type Article struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Author   string `json:"author"`
	ImageURL string `json:"image"`
	Date     string `json:"date"`
}

// Detection is one image-inference result owned by a user
type Detection struct {
	ID        string    `json:"id"`
	ImageURL  string    `json:"imageUrl"`
	Model     string    `json:"model"`
	UserID    string    `json:"userId"`
	CreatedAt time.Time `json:"createdAt"`
}

// CredentialStore persists user credential records. All mutations are
// independent field updates; there is no multi-field transaction.
type CredentialStore interface {
	// CreateUser inserts a new record. Returns ErrDuplicate when a
	// record with the same email already exists.
	CreateUser(ctx context.Context, user *User) error
	GetUser(ctx context.Context, id string) (*User, error)
	GetUserByEmail(ctx context.Context, email string) (*User, error)
	UpdateName(ctx context.Context, id, name string) error
	// UpdateSessionToken stores the current session token; the empty
	// string clears it (logout).
	UpdateSessionToken(ctx context.Context, id, token string) error
	UpdatePassword(ctx context.Context, id, passwordHash string) error
	MarkVerified(ctx context.Context, id string) error
}

// ResetCodeStore persists one reset code per user
type ResetCodeStore interface {
	// InitResetCode creates the never-issued placeholder for a new user
	InitResetCode(ctx context.Context, userID string) error
	// SaveResetCode overwrites the user's code with a freshly issued one
	SaveResetCode(ctx context.Context, code *ResetCode) error
	GetResetCode(ctx context.Context, userID string) (*ResetCode, error)
	// MarkUsed flips the one-shot used latch
	MarkUsed(ctx context.Context, userID string) error
	// PurgeExpired resets codes whose expiry passed before the given
	// time, returning how many were cleared
	PurgeExpired(ctx context.Context, before time.Time) (int64, error)
}

// ArticleStore persists articles
type ArticleStore interface {
	CreateArticle(ctx context.Context, article *Article) error
	GetArticle(ctx context.Context, id string) (*Article, error)
	// ListArticles returns all articles, newest date first
	ListArticles(ctx context.Context) ([]*Article, error)
	// SearchArticles returns articles whose title contains the query,
	// case-insensitively
	SearchArticles(ctx context.Context, title string) ([]*Article, error)
	UpdateArticle(ctx context.Context, article *Article) error
	DeleteArticle(ctx context.Context, id string) error
}

// DetectionStore persists detections, always scoped to their owner
type DetectionStore interface {
	CreateDetection(ctx context.Context, detection *Detection) error
	GetDetection(ctx context.Context, id, userID string) (*Detection, error)
	ListDetections(ctx context.Context, userID string) ([]*Detection, error)
	DeleteDetection(ctx context.Context, id, userID string) error
}

// ObjectStore stores uploaded and processed images
type ObjectStore interface {
	// PutObject uploads content under key and returns its public URL
	PutObject(ctx context.Context, key string, content io.Reader, contentType string) (string, error)
	DeleteObject(ctx context.Context, key string) error
	// ObjectKey maps a public URL previously returned by PutObject back
	// to its key, or "" when the URL is not one of ours
	ObjectKey(url string) string
}

// Config for storage backends
type Config struct {
	Type string // "postgres" or "memory"

	// PostgreSQL config
	PostgresURL      string
	PostgresMaxConns int
	PostgresMinConns int
	PostgresTimeout  time.Duration

	// S3 config
	S3Endpoint     string
	S3Region       string
	S3Bucket       string
	S3AccessKey    string
	S3SecretKey    string
	S3UsePathStyle bool
	S3PublicURL    string

	// Redis config
	RedisURL      string
	RedisPassword string
	RedisDB       int

	// Cache config
	CacheEnabled bool
	CacheTTL     map[string]time.Duration
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Type:             "memory",
		PostgresMaxConns: 20,
		PostgresMinConns: 2,
		PostgresTimeout:  10 * time.Second,
		CacheEnabled:     true,
		CacheTTL: map[string]time.Duration{
			"article":      15 * time.Minute,
			"article_list": 5 * time.Minute,
		},
	}
}
