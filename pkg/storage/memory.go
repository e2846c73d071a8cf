package storage

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore is an in-memory implementation of all record stores. It is
// used by tests and by dev mode when no postgres URL is configured. Email
// uniqueness is enforced under the mutex, which makes CreateUser a true
// conditional create.
type MemoryStore struct {
	mu         sync.RWMutex
	users      map[string]*User
	emails     map[string]string // email -> user id
	resetCodes map[string]*ResetCode
	articles   map[string]*Article
	detections map[string]*Detection
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]*User),
		emails:     make(map[string]string),
		resetCodes: make(map[string]*ResetCode),
		articles:   make(map[string]*Article),
		detections: make(map[string]*Detection),
	}
}

func (s *MemoryStore) CreateUser(ctx context.Context, user *User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Emails compare case-insensitively, matching the LOWER(email)
	// index on the postgres side.
	key := strings.ToLower(user.Email)
	if _, taken := s.emails[key]; taken {
		return ErrDuplicate
	}

	u := *user
	s.users[u.ID] = &u
	s.emails[key] = u.ID
	return nil
}

func (s *MemoryStore) GetUser(ctx context.Context, id string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	u := *user
	return &u, nil
}

func (s *MemoryStore) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[strings.ToLower(email)]
	if !ok {
		return nil, ErrNotFound
	}
	u := *s.users[id]
	return &u, nil
}

func (s *MemoryStore) UpdateName(ctx context.Context, id, name string) error {
	return s.updateUser(id, func(u *User) { u.Name = name })
}

func (s *MemoryStore) UpdateSessionToken(ctx context.Context, id, token string) error {
	return s.updateUser(id, func(u *User) { u.SessionToken = token })
}

func (s *MemoryStore) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return s.updateUser(id, func(u *User) { u.PasswordHash = passwordHash })
}

func (s *MemoryStore) MarkVerified(ctx context.Context, id string) error {
	return s.updateUser(id, func(u *User) { u.Verified = true })
}

func (s *MemoryStore) updateUser(id string, mutate func(*User)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	mutate(user)
	return nil
}

func (s *MemoryStore) InitResetCode(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetCodes[userID] = &ResetCode{UserID: userID}
	return nil
}

func (s *MemoryStore) SaveResetCode(ctx context.Context, code *ResetCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := *code
	s.resetCodes[c.UserID] = &c
	return nil
}

func (s *MemoryStore) GetResetCode(ctx context.Context, userID string) (*ResetCode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	code, ok := s.resetCodes[userID]
	if !ok {
		return nil, ErrNotFound
	}
	c := *code
	return &c, nil
}

func (s *MemoryStore) MarkUsed(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	code, ok := s.resetCodes[userID]
	if !ok {
		return ErrNotFound
	}
	code.Used = true
	return nil
}

func (s *MemoryStore) PurgeExpired(ctx context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged int64
	for userID, code := range s.resetCodes {
		if !code.ExpiresAt.IsZero() && code.ExpiresAt.Before(before) {
			s.resetCodes[userID] = &ResetCode{UserID: userID}
			purged++
		}
	}
	return purged, nil
}

func (s *MemoryStore) CreateArticle(ctx context.Context, article *Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a := *article
	s.articles[a.ID] = &a
	return nil
}

func (s *MemoryStore) GetArticle(ctx context.Context, id string) (*Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	article, ok := s.articles[id]
	if !ok {
		return nil, ErrNotFound
	}
	a := *article
	return &a, nil
}

func (s *MemoryStore) ListArticles(ctx context.Context) ([]*Article, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	articles := make([]*Article, 0, len(s.articles))
	for _, article := range s.articles {
		a := *article
		articles = append(articles, &a)
	}
	sort.Slice(articles, func(i, j int) bool {
		return articles[i].Date > articles[j].Date
	})
	return articles, nil
}

func (s *MemoryStore) SearchArticles(ctx context.Context, title string) ([]*Article, error) {
	all, err := s.ListArticles(ctx)
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(title)
	matches := make([]*Article, 0)
	for _, article := range all {
		if strings.Contains(strings.ToLower(article.Title), query) {
			matches = append(matches, article)
		}
	}
	return matches, nil
}

func (s *MemoryStore) UpdateArticle(ctx context.Context, article *Article) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.articles[article.ID]; !ok {
		return ErrNotFound
	}
	a := *article
	s.articles[a.ID] = &a
	return nil
}

func (s *MemoryStore) DeleteArticle(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.articles[id]; !ok {
		return ErrNotFound
	}
	delete(s.articles, id)
	return nil
}

func (s *MemoryStore) CreateDetection(ctx context.Context, detection *Detection) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	d := *detection
	s.detections[d.ID] = &d
	return nil
}

func (s *MemoryStore) GetDetection(ctx context.Context, id, userID string) (*Detection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	detection, ok := s.detections[id]
	if !ok || detection.UserID != userID {
		return nil, ErrNotFound
	}
	d := *detection
	return &d, nil
}

func (s *MemoryStore) ListDetections(ctx context.Context, userID string) ([]*Detection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	detections := make([]*Detection, 0)
	for _, detection := range s.detections {
		if detection.UserID == userID {
			d := *detection
			detections = append(detections, &d)
		}
	}
	sort.Slice(detections, func(i, j int) bool {
		return detections[i].CreatedAt.After(detections[j].CreatedAt)
	})
	return detections, nil
}

func (s *MemoryStore) DeleteDetection(ctx context.Context, id, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	detection, ok := s.detections[id]
	if !ok || detection.UserID != userID {
		return ErrNotFound
	}
	delete(s.detections, id)
	return nil
}

// MemoryObjectStore is an in-memory ObjectStore for tests and dev mode
type MemoryObjectStore struct {
	mu      sync.RWMutex
	objects map[string][]byte
	baseURL string
}

// NewMemoryObjectStore creates an in-memory object store whose URLs are
// rooted at baseURL
func NewMemoryObjectStore(baseURL string) *MemoryObjectStore {
	if baseURL == "" {
		baseURL = "memory://objects"
	}
	return &MemoryObjectStore{
		objects: make(map[string][]byte),
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

func (s *MemoryObjectStore) PutObject(ctx context.Context, key string, content io.Reader, contentType string) (string, error) {
	data, err := io.ReadAll(content)
	if err != nil {
		return "", fmt.Errorf("failed to read content: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = data
	return s.baseURL + "/" + key, nil
}

func (s *MemoryObjectStore) DeleteObject(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.objects[key]; !ok {
		return ErrNotFound
	}
	delete(s.objects, key)
	return nil
}

func (s *MemoryObjectStore) ObjectKey(url string) string {
	prefix := s.baseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return ""
	}
	return strings.TrimPrefix(url, prefix)
}

// Object returns a stored object's bytes, for tests
func (s *MemoryObjectStore) Object(key string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.objects[key]
	return data, ok
}
