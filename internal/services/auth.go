package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
)

// AuthClient proxies the backend's identity endpoints: CSRF token issuance,
// email/password login and signup, Google id-token exchange, and the memory
// profile read. Tokens are opaque strings; no session state is kept here.
type AuthClient struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewAuthClient creates an auth client for the given backend base URL.
func NewAuthClient(baseURL string, logger *slog.Logger) *AuthClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuthClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{},
		logger:  logger,
	}
}

// Credentials is the token bundle issued on a successful login or signup.
type Credentials struct {
	UserID string `json:"user_id"`
	Token  string `json:"token"`
}

// UserPreferences are the profile fields the backend tracks per user.
type UserPreferences struct {
	Language  string   `json:"language,omitempty"`
	Madhhab   string   `json:"madhhab,omitempty"`
	Interests []string `json:"interests,omitempty"`
}

// MemoryProfile is the user's stored memory profile.
type MemoryProfile struct {
	Preferences     UserPreferences `json:"preferences"`
	RecentSummaries []string        `json:"recentSummaries,omitempty"`
	MemoryCount     int             `json:"memoryCount,omitempty"`
}

// CSRFToken fetches a fresh CSRF token for subsequent auth requests.
func (a *AuthClient) CSRFToken(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/auth/csrf-token", nil)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", readHTTPError(resp)
	}

	var body struct {
		CSRFToken string `json:"csrfToken"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("error unmarshaling response: %w", err)
	}
	return body.CSRFToken, nil
}

// Login exchanges email/password credentials for a token.
func (a *AuthClient) Login(ctx context.Context, email, password, csrfToken string) (Credentials, error) {
	return a.exchange(ctx, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, csrfToken)
}

// Signup registers a new account and returns its token.
func (a *AuthClient) Signup(ctx context.Context, email, password, csrfToken string) (Credentials, error) {
	return a.exchange(ctx, "/auth/signup", map[string]string{
		"email":    email,
		"password": password,
	}, csrfToken)
}

// LoginWithGoogle exchanges a Google identity token for backend credentials.
func (a *AuthClient) LoginWithGoogle(ctx context.Context, idToken, csrfToken string) (Credentials, error) {
	return a.exchange(ctx, "/auth/google", map[string]string{
		"id_token": idToken,
	}, csrfToken)
}

func (a *AuthClient) exchange(ctx context.Context, path string, body map[string]string, csrfToken string) (Credentials, error) {
	jsonBody, err := json.Marshal(body)
	if err != nil {
		return Credentials{}, fmt.Errorf("error marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL+path, bytes.NewBuffer(jsonBody))
	if err != nil {
		return Credentials{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-CSRF-Token", csrfToken)

	resp, err := a.client.Do(req)
	if err != nil {
		return Credentials{}, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Credentials{}, readHTTPError(resp)
	}

	var creds Credentials
	if err := json.NewDecoder(resp.Body).Decode(&creds); err != nil {
		return Credentials{}, fmt.Errorf("error unmarshaling response: %w", err)
	}
	return creds, nil
}

// Profile fetches the user's memory profile.
func (a *AuthClient) Profile(ctx context.Context, token string) (MemoryProfile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/memory/profile", nil)
	if err != nil {
		return MemoryProfile{}, fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.client.Do(req)
	if err != nil {
		return MemoryProfile{}, fmt.Errorf("error sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return MemoryProfile{}, readHTTPError(resp)
	}

	var body struct {
		Memory MemoryProfile `json:"memory"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return MemoryProfile{}, fmt.Errorf("error unmarshaling response: %w", err)
	}
	return body.Memory, nil
}

// LanguagePreference returns the user's stored language preference, or the
// empty string when the user has none or the profile cannot be read.
func (a *AuthClient) LanguagePreference(ctx context.Context, token string) string {
	if token == "" {
		return ""
	}
	profile, err := a.Profile(ctx, token)
	if err != nil {
		a.logger.Debug("Failed to fetch memory profile", slog.String("err", err.Error()))
		return ""
	}
	return profile.Preferences.Language
}
