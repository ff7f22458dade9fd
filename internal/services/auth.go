package services

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/go-github/v66/github"
	"golang.org/x/oauth2"
	githuboauth "golang.org/x/oauth2/github"
)

var (
	ErrAuthUnavailable   = errors.New("auth service unavailable")
	ErrAuthInvalidCode   = errors.New("oauth code is required")
	ErrAuthCodeExchange  = errors.New("failed to exchange oauth code")
	ErrAuthGetGitHubUser = errors.New("failed to fetch github user")
	ErrAuthGenerateState = errors.New("failed to generate oauth state")
	ErrAuthNotAdmin      = errors.New("github user is not an admin")
)

type GitHubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

type StartGitHubLoginResult struct {
	State            string
	AuthorizationURL string
}

type AuthConfig struct {
	ClientID     string
	ClientSecret string
	BaseURL      string
	// AdminUsers are the GitHub logins allowed into the admin surface.
	AdminUsers []string
	HTTPClient *http.Client
}

type AuthService struct {
	oauthConfig *oauth2.Config
	admins      map[string]struct{}
	httpClient  *http.Client
	fetchUser   func(ctx context.Context, token *oauth2.Token) (*GitHubUser, error)
	logger      *slog.Logger
}

func NewAuthService(cfg AuthConfig, logger *slog.Logger) (*AuthService, error) {
	if strings.TrimSpace(cfg.ClientID) == "" || strings.TrimSpace(cfg.ClientSecret) == "" {
		return nil, fmt.Errorf("github oauth client id and secret are required")
	}

	admins := make(map[string]struct{}, len(cfg.AdminUsers))
	for _, login := range cfg.AdminUsers {
		login = strings.ToLower(strings.TrimSpace(login))
		if login != "" {
			admins[login] = struct{}{}
		}
	}
	if len(admins) == 0 {
		return nil, fmt.Errorf("at least one admin github user is required")
	}

	s := &AuthService{
		oauthConfig: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     githuboauth.Endpoint,
			Scopes:       []string{"read:user", "user:email"},
			RedirectURL:  gitHubOAuthRedirectURL(cfg.BaseURL),
		},
		admins:     admins,
		httpClient: cfg.HTTPClient,
		logger:     logger,
	}
	s.fetchUser = s.getGitHubUser
	return s, nil
}

func gitHubOAuthRedirectURL(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return ""
	}

	return strings.TrimRight(baseURL, "/") + "/auth/github/callback"
}

func (s *AuthService) StartGitHubLogin() (StartGitHubLoginResult, error) {
	result := StartGitHubLoginResult{}
	if s == nil || s.oauthConfig == nil {
		return result, ErrAuthUnavailable
	}

	state, err := generateOAuthState()
	if err != nil {
		return result, fmt.Errorf("%w: %v", ErrAuthGenerateState, err)
	}

	result.State = state
	result.AuthorizationURL = s.oauthConfig.AuthCodeURL(state, oauth2.AccessTypeOnline)

	return result, nil
}

// CompleteGitHubOAuth exchanges the callback code and returns the user if they are an admin.
func (s *AuthService) CompleteGitHubOAuth(ctx context.Context, code string) (*GitHubUser, error) {
	if s == nil || s.oauthConfig == nil || s.fetchUser == nil {
		return nil, ErrAuthUnavailable
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return nil, ErrAuthInvalidCode
	}

	ctx = s.oauthContext(ctx)
	token, err := s.oauthConfig.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthCodeExchange, err)
	}

	user, err := s.fetchUser(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAuthGetGitHubUser, err)
	}

	if !s.IsAdmin(user.Login) {
		if s.logger != nil {
			s.logger.Warn("rejected admin login", "github_login", user.Login)
		}
		return nil, fmt.Errorf("%w: %s", ErrAuthNotAdmin, user.Login)
	}

	return user, nil
}

func (s *AuthService) IsAdmin(login string) bool {
	if s == nil {
		return false
	}
	_, ok := s.admins[strings.ToLower(strings.TrimSpace(login))]
	return ok
}

func (s *AuthService) oauthContext(ctx context.Context) context.Context {
	if s.httpClient == nil {
		return ctx
	}
	return context.WithValue(ctx, oauth2.HTTPClient, s.httpClient)
}

func (s *AuthService) getGitHubUser(ctx context.Context, token *oauth2.Token) (*GitHubUser, error) {
	client := github.NewClient(s.oauthConfig.Client(ctx, token))

	user, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return nil, err
	}

	return &GitHubUser{
		ID:    user.GetID(),
		Login: user.GetLogin(),
		Email: user.GetEmail(),
		Name:  user.GetName(),
	}, nil
}

func generateOAuthState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}
