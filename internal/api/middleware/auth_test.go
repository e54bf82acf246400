package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/pingup/pingup/internal/core"
)

// mapIdentity resolves tokens from a fixed map.
type mapIdentity map[string]string

func (m mapIdentity) Verify(_ context.Context, token string) (string, error) {
	if subject, ok := m[token]; ok {
		return subject, nil
	}
	return "", core.ErrAuth("unauthorized", "invalid token")
}

func authedHandler(gotSubject *string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*gotSubject = Subject(r.Context())
		w.WriteHeader(http.StatusOK)
	})
}

func TestAuth_BearerHeader(t *testing.T) {
	var subject string
	h := Auth(mapIdentity{"tok-1": "u-alice"})(authedHandler(&subject))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer tok-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if subject != "u-alice" {
		t.Errorf("expected subject u-alice, got %q", subject)
	}
}

func TestAuth_RawHeaderToken(t *testing.T) {
	var subject string
	h := Auth(mapIdentity{"tok-1": "u-alice"})(authedHandler(&subject))

	// Clients that skip the Bearer prefix still authenticate.
	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "tok-1")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestAuth_QueryFallback(t *testing.T) {
	var subject string
	h := Auth(mapIdentity{"tok-1": "u-alice"})(authedHandler(&subject))

	// EventSource cannot set headers; the token rides the query string.
	req := httptest.NewRequest("GET", "/stream?token=tok-1", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if subject != "u-alice" {
		t.Errorf("expected subject u-alice, got %q", subject)
	}
}

func TestAuth_Rejections(t *testing.T) {
	var subject string
	h := Auth(mapIdentity{"tok-1": "u-alice"})(authedHandler(&subject))

	for name, req := range map[string]*http.Request{
		"missing": httptest.NewRequest("GET", "/", nil),
		"unknown": func() *http.Request {
			r := httptest.NewRequest("GET", "/", nil)
			r.Header.Set("Authorization", "Bearer nope")
			return r
		}(),
	} {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%s: expected 401, got %d", name, rec.Code)
		}
	}
}

func TestSubject_UnauthenticatedContext(t *testing.T) {
	if got := Subject(context.Background()); got != "" {
		t.Errorf("expected empty subject, got %q", got)
	}
}
