package services

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/url"
	"strings"
	"testing"
)

type roundTripFunc func(req *http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func jsonResponse(status int, body string) *http.Response {
	return &http.Response{
		StatusCode: status,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

func fakeGitHub(login string) *http.Client {
	return &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		switch {
		case req.URL.Host == "github.com" && req.URL.Path == "/login/oauth/access_token":
			return jsonResponse(http.StatusOK, `{"access_token":"gho_test","token_type":"bearer","scope":"read:user"}`), nil
		case req.URL.Host == "api.github.com" && req.URL.Path == "/user":
			if req.Header.Get("Authorization") != "Bearer gho_test" {
				return jsonResponse(http.StatusUnauthorized, `{"message":"Bad credentials"}`), nil
			}
			return jsonResponse(http.StatusOK, `{"id":42,"login":"`+login+`","name":"Store Admin"}`), nil
		default:
			return jsonResponse(http.StatusNotFound, `{"message":"Not Found"}`), nil
		}
	})}
}

func newTestAuthService(t *testing.T, login string) *AuthService {
	t.Helper()

	service, err := NewAuthService(AuthConfig{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		BaseURL:      "https://shop.example/",
		AdminUsers:   []string{"StoreOwner", " "},
		HTTPClient:   fakeGitHub(login),
	}, nil)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return service
}

func TestNewAuthService_RequiresConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		cfg  AuthConfig
	}{
		{name: "missing client", cfg: AuthConfig{AdminUsers: []string{"owner"}}},
		{name: "missing admins", cfg: AuthConfig{ClientID: "id", ClientSecret: "secret", AdminUsers: []string{" "}}},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if _, err := NewAuthService(tt.cfg, nil); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestAuthService_StartGitHubLogin(t *testing.T) {
	t.Parallel()

	service := newTestAuthService(t, "storeowner")
	result, err := service.StartGitHubLogin()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.State == "" {
		t.Fatal("expected state")
	}

	parsed, err := url.Parse(result.AuthorizationURL)
	if err != nil {
		t.Fatalf("invalid authorization url: %v", err)
	}
	query := parsed.Query()
	if query.Get("state") != result.State {
		t.Fatalf("expected state %q in url, got %q", result.State, query.Get("state"))
	}
	if query.Get("redirect_uri") != "https://shop.example/auth/github/callback" {
		t.Fatalf("unexpected redirect uri %q", query.Get("redirect_uri"))
	}
}

func TestAuthService_StartGitHubLogin_Unavailable(t *testing.T) {
	t.Parallel()

	service := &AuthService{}
	_, err := service.StartGitHubLogin()
	if !errors.Is(err, ErrAuthUnavailable) {
		t.Fatalf("expected ErrAuthUnavailable, got %v", err)
	}
}

func TestAuthService_CompleteGitHubOAuth(t *testing.T) {
	t.Parallel()

	service := newTestAuthService(t, "storeowner")
	user, err := service.CompleteGitHubOAuth(context.Background(), "code-123")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Login != "storeowner" || user.ID != 42 {
		t.Fatalf("unexpected user: %+v", user)
	}
}

func TestAuthService_CompleteGitHubOAuth_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		login   string
		code    string
		wantErr error
	}{
		{name: "blank code", login: "storeowner", code: "   ", wantErr: ErrAuthInvalidCode},
		{name: "not an admin", login: "someone-else", code: "code-123", wantErr: ErrAuthNotAdmin},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			service := newTestAuthService(t, tt.login)
			_, err := service.CompleteGitHubOAuth(context.Background(), tt.code)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestAuthService_CompleteGitHubOAuth_UserLookupFails(t *testing.T) {
	t.Parallel()

	service := newTestAuthService(t, "storeowner")
	service.httpClient = &http.Client{Transport: roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if strings.HasSuffix(req.URL.Path, "/access_token") {
			return jsonResponse(http.StatusOK, `{"access_token":"other","token_type":"bearer"}`), nil
		}
		return jsonResponse(http.StatusUnauthorized, `{"message":"Bad credentials"}`), nil
	})}

	_, err := service.CompleteGitHubOAuth(context.Background(), "code-123")
	if !errors.Is(err, ErrAuthGetGitHubUser) {
		t.Fatalf("expected ErrAuthGetGitHubUser, got %v", err)
	}
}

func TestGitHubOAuthRedirectURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		baseURL string
		want    string
	}{
		{baseURL: "https://shop.example", want: "https://shop.example/auth/github/callback"},
		{baseURL: "https://shop.example/", want: "https://shop.example/auth/github/callback"},
		{baseURL: "  ", want: ""},
	}

	for _, tt := range tests {
		if got := gitHubOAuthRedirectURL(tt.baseURL); got != tt.want {
			t.Fatalf("expected %q, got %q", tt.want, got)
		}
	}
}

func TestAuthService_IsAdmin(t *testing.T) {
	t.Parallel()

	service := newTestAuthService(t, "storeowner")
	if !service.IsAdmin(" storeOwner ") {
		t.Fatal("expected case-insensitive admin match")
	}
	if service.IsAdmin("") || service.IsAdmin("intruder") {
		t.Fatal("expected non-admins to be rejected")
	}
}
