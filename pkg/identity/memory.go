package identity

import (
	"context"
	"fmt"
	"sync"
)

// MemoryProvider is an in-process Provider used by tests and dev mode.
// Verified state is flipped through SetVerified, standing in for the
// user clicking the emailed link.
type MemoryProvider struct {
	mu       sync.RWMutex
	accounts map[string]*memoryAccount // keyed by email
}

type memoryAccount struct {
	ID           string
	Name         string
	PasswordHash string
	Verified     bool
}

// NewMemoryProvider creates an empty in-memory provider
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{
		accounts: make(map[string]*memoryAccount),
	}
}

func (p *MemoryProvider) CreateUser(ctx context.Context, id, name, email, passwordHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.accounts[email] = &memoryAccount{
		ID:           id,
		Name:         name,
		PasswordHash: passwordHash,
	}
	return nil
}

func (p *MemoryProvider) UpdateDisplayName(ctx context.Context, id, name string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, account := range p.accounts {
		if account.ID == id {
			account.Name = name
			return nil
		}
	}
	return fmt.Errorf("no account with id %q", id)
}

func (p *MemoryProvider) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	for _, account := range p.accounts {
		if account.ID == id {
			account.PasswordHash = passwordHash
			return nil
		}
	}
	return fmt.Errorf("no account with id %q", id)
}

func (p *MemoryProvider) EmailVerified(ctx context.Context, email string) (bool, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	account, ok := p.accounts[email]
	if !ok {
		return false, fmt.Errorf("no account with email %q", email)
	}
	return account.Verified, nil
}

func (p *MemoryProvider) VerificationLink(ctx context.Context, email string) (string, error) {
	return "https://accounts.fishdeas.dev/verify?email=" + email, nil
}

// SetVerified marks the account verified, as if the link was clicked
func (p *MemoryProvider) SetVerified(email string, verified bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if account, ok := p.accounts[email]; ok {
		account.Verified = verified
	}
}

// PasswordHash returns the mirrored password hash, for tests
func (p *MemoryProvider) PasswordHash(email string) string {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if account, ok := p.accounts[email]; ok {
		return account.PasswordHash
	}
	return ""
}
