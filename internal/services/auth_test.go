package services

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestAuthLoginFlow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/csrf-token":
			_ = json.NewEncoder(w).Encode(map[string]string{"csrfToken": "csrf-123"})
		case "/auth/login":
			if r.Header.Get("X-CSRF-Token") != "csrf-123" {
				w.WriteHeader(http.StatusForbidden)
				_, _ = w.Write([]byte(`{"error":"invalid csrf token"}`))
				return
			}
			var body map[string]string
			_ = json.NewDecoder(r.Body).Decode(&body)
			if body["email"] != "user@example.com" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_ = json.NewEncoder(w).Encode(Credentials{UserID: "u1", Token: "tok-1"})
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	auth := NewAuthClient(srv.URL, nil)
	ctx := context.Background()

	csrf, err := auth.CSRFToken(ctx)
	if err != nil {
		t.Fatalf("CSRFToken() error = %v", err)
	}
	if csrf != "csrf-123" {
		t.Errorf("CSRFToken() = %q, want %q", csrf, "csrf-123")
	}

	creds, err := auth.Login(ctx, "user@example.com", "secret", csrf)
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if creds.UserID != "u1" || creds.Token != "tok-1" {
		t.Errorf("Login() = %+v, want issued credentials", creds)
	}

	_, err = auth.Login(ctx, "user@example.com", "secret", "stale")
	var httpErr *HTTPError
	if !errors.As(err, &httpErr) || httpErr.Status != http.StatusForbidden {
		t.Errorf("Login() with stale token error = %v, want 403 HTTPError", err)
	}
}

func TestLanguagePreference(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/memory/profile" {
			http.NotFound(w, r)
			return
		}
		switch r.Header.Get("Authorization") {
		case "Bearer tok-1":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"memory": MemoryProfile{
					Preferences: UserPreferences{Language: "urdu", Madhhab: "hanafi"},
					MemoryCount: 3,
				},
			})
		default:
			w.WriteHeader(http.StatusUnauthorized)
		}
	}))
	defer srv.Close()

	auth := NewAuthClient(srv.URL, nil)
	ctx := context.Background()

	if got := auth.LanguagePreference(ctx, "tok-1"); got != "urdu" {
		t.Errorf("LanguagePreference() = %q, want %q", got, "urdu")
	}

	// Missing or rejected tokens degrade to no preference rather than an
	// error.
	if got := auth.LanguagePreference(ctx, ""); got != "" {
		t.Errorf("LanguagePreference() without token = %q, want empty", got)
	}
	if got := auth.LanguagePreference(ctx, "bad"); got != "" {
		t.Errorf("LanguagePreference() with rejected token = %q, want empty", got)
	}

	profile, err := auth.Profile(ctx, "tok-1")
	if err != nil {
		t.Fatalf("Profile() error = %v", err)
	}
	if profile.Preferences.Madhhab != "hanafi" || profile.MemoryCount != 3 {
		t.Errorf("Profile() = %+v, want stored fields", profile)
	}
}
