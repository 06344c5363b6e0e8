package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/tollgate/tollgate/internal/model"
)

// Identity resolution errors.
var (
	// ErrUnauthenticated means the credential is missing, malformed or rejected.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrIdentityUnavailable means the identity provider could not be reached
	// or failed. It is not the caller's fault.
	ErrIdentityUnavailable = errors.New("identity provider unavailable")
)

// maxIdentityBody bounds the provider response we are willing to decode.
const maxIdentityBody = 64 << 10

// IdentityCache stores resolved identities keyed by credential hash.
type IdentityCache interface {
	GetIdentity(ctx context.Context, cacheKey string) (*model.Identity, error)
	SetIdentity(ctx context.Context, cacheKey string, id *model.Identity, ttl time.Duration) error
}

// IdentityClient resolves bearer credentials against a GoTrue-compatible
// identity provider (GET {baseURL}/auth/v1/user).
type IdentityClient struct {
	baseURL  string
	apiKey   string
	http     *http.Client
	cache    IdentityCache
	cacheTTL time.Duration
	logger   *slog.Logger
}

// IdentityOption configures an IdentityClient.
type IdentityOption func(*IdentityClient)

// WithIdentityCache enables caching of successful resolutions.
func WithIdentityCache(c IdentityCache, ttl time.Duration) IdentityOption {
	return func(ic *IdentityClient) {
		ic.cache = c
		ic.cacheTTL = ttl
	}
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(c *http.Client) IdentityOption {
	return func(ic *IdentityClient) {
		ic.http = c
	}
}

// NewIdentityClient creates a client for the provider at baseURL.
func NewIdentityClient(baseURL, apiKey string, timeout time.Duration, logger *slog.Logger, opts ...IdentityOption) *IdentityClient {
	if logger == nil {
		logger = slog.Default()
	}
	ic := &IdentityClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.With("component", "identity"),
	}
	for _, opt := range opts {
		opt(ic)
	}
	return ic
}

type providerUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

// Resolve maps a bearer credential to a user identity.
func (c *IdentityClient) Resolve(ctx context.Context, credential string) (*model.Identity, error) {
	credential = strings.TrimSpace(credential)
	if credential == "" {
		return nil, ErrUnauthenticated
	}

	cacheKey := QuickHash(credential)
	if c.cache != nil {
		if id, err := c.cache.GetIdentity(ctx, cacheKey); err == nil && id != nil {
			return id, nil
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/v1/user", nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrIdentityUnavailable, err)
	}
	req.Header.Set("Authorization", "Bearer "+credential)
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentityUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusNotFound:
		return nil, ErrUnauthenticated
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: status %d", ErrIdentityUnavailable, resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, ErrUnauthenticated
	}

	var user providerUser
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxIdentityBody)).Decode(&user); err != nil || user.ID == "" {
		return nil, ErrUnauthenticated
	}

	id := &model.Identity{UserID: user.ID, Email: user.Email}
	if c.cache != nil {
		if err := c.cache.SetIdentity(ctx, cacheKey, id, c.cacheTTL); err != nil {
			c.logger.Warn("identity cache write failed", "error", err)
		}
	}
	return id, nil
}

// BearerToken extracts the credential from an Authorization header value.
// It returns "" when the header is absent or uses another scheme.
func BearerToken(header string) string {
	scheme, token, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
