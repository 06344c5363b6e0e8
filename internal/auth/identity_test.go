package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tollgate/tollgate/internal/model"
)

type mapIdentityCache struct {
	mu sync.Mutex
	m  map[string]*model.Identity
}

func (c *mapIdentityCache) GetIdentity(_ context.Context, key string) (*model.Identity, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.m[key], nil
}

func (c *mapIdentityCache) SetIdentity(_ context.Context, key string, id *model.Identity, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[key] = id
	return nil
}

func newIdentityServer(t *testing.T, calls *atomic.Int32) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.URL.Path != "/auth/v1/user" || r.Header.Get("apikey") != "anon" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		switch r.Header.Get("Authorization") {
		case "Bearer good":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"user-1","email":"u@example.com","aud":"authenticated"}`))
		case "Bearer noid":
			_, _ = w.Write([]byte(`{"email":"u@example.com"}`))
		case "Bearer garbage":
			_, _ = w.Write([]byte(`<html>`))
		case "Bearer boom":
			w.WriteHeader(http.StatusBadGateway)
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestIdentityClient_Resolve(t *testing.T) {
	var calls atomic.Int32
	srv := newIdentityServer(t, &calls)
	client := NewIdentityClient(srv.URL+"/", "anon", time.Second, nil)

	tests := []struct {
		name       string
		credential string
		wantUser   string
		wantErr    error
	}{
		{"valid", "good", "user-1", nil},
		{"rejected", "expired", "", ErrUnauthenticated},
		{"empty", "  ", "", ErrUnauthenticated},
		{"missing id", "noid", "", ErrUnauthenticated},
		{"malformed body", "garbage", "", ErrUnauthenticated},
		{"provider down", "boom", "", ErrIdentityUnavailable},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			id, err := client.Resolve(context.Background(), tt.credential)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if id.UserID != tt.wantUser {
				t.Errorf("UserID = %q, want %q", id.UserID, tt.wantUser)
			}
		})
	}
}

func TestIdentityClient_TransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	client := NewIdentityClient(url, "anon", time.Second, nil)
	_, err := client.Resolve(context.Background(), "good")
	if !errors.Is(err, ErrIdentityUnavailable) {
		t.Fatalf("error = %v, want ErrIdentityUnavailable", err)
	}
}

func TestIdentityClient_CachesResolutions(t *testing.T) {
	var calls atomic.Int32
	srv := newIdentityServer(t, &calls)
	cache := &mapIdentityCache{m: map[string]*model.Identity{}}
	client := NewIdentityClient(srv.URL, "anon", time.Second, nil, WithIdentityCache(cache, time.Minute))

	for i := 0; i < 3; i++ {
		if _, err := client.Resolve(context.Background(), "good"); err != nil {
			t.Fatalf("Resolve failed: %v", err)
		}
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("provider calls = %d, want 1", got)
	}

	// Rejections are never cached.
	for i := 0; i < 2; i++ {
		_, _ = client.Resolve(context.Background(), "expired")
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("provider calls = %d, want 3", got)
	}
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def", "abc.def"},
		{"bearer abc", "abc"},
		{"  Bearer   abc  ", "abc"},
		{"Basic abc", ""},
		{"Bearer", ""},
		{"", ""},
	}

	for _, tt := range tests {
		if got := BearerToken(tt.header); got != tt.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}
