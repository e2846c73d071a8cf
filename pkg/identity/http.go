package identity

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPProvider talks to the identity provider's admin REST API
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates a provider client for the admin API at baseURL
func NewHTTPProvider(baseURL, apiKey string) *HTTPProvider {
	return &HTTPProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

type accountPayload struct {
	ID           string `json:"id,omitempty"`
	DisplayName  string `json:"display_name,omitempty"`
	Email        string `json:"email,omitempty"`
	PasswordHash string `json:"password_hash,omitempty"`
}

func (p *HTTPProvider) CreateUser(ctx context.Context, id, name, email, passwordHash string) error {
	return p.do(ctx, http.MethodPost, "/v1/accounts", accountPayload{
		ID:           id,
		DisplayName:  name,
		Email:        email,
		PasswordHash: passwordHash,
	}, nil)
}

func (p *HTTPProvider) UpdateDisplayName(ctx context.Context, id, name string) error {
	return p.do(ctx, http.MethodPatch, "/v1/accounts/"+url.PathEscape(id), accountPayload{
		DisplayName: name,
	}, nil)
}

func (p *HTTPProvider) UpdatePassword(ctx context.Context, id, passwordHash string) error {
	return p.do(ctx, http.MethodPatch, "/v1/accounts/"+url.PathEscape(id), accountPayload{
		PasswordHash: passwordHash,
	}, nil)
}

func (p *HTTPProvider) EmailVerified(ctx context.Context, email string) (bool, error) {
	var out struct {
		EmailVerified bool `json:"email_verified"`
	}
	path := "/v1/accounts/by-email/" + url.PathEscape(email)
	if err := p.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return false, err
	}
	return out.EmailVerified, nil
}

func (p *HTTPProvider) VerificationLink(ctx context.Context, email string) (string, error) {
	var out struct {
		Link string `json:"link"`
	}
	err := p.do(ctx, http.MethodPost, "/v1/verification-links", map[string]string{
		"email": email,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Link, nil
}

func (p *HTTPProvider) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshaling request: %w", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, p.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return fmt.Errorf("identity provider request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("identity provider returned status %d", resp.StatusCode)
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decoding response: %w", err)
		}
	}

	return nil
}
