package guest

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestIssuer(t *testing.T) *Issuer {
	t.Helper()

	issuer, err := NewIssuer(testSecret, true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return issuer
}

func TestNewIssuer_RejectsShortSecret(t *testing.T) {
	t.Parallel()

	if _, err := NewIssuer("short", false); err == nil {
		t.Fatal("expected short secret to be rejected")
	}
}

func TestEnsure_IssuesAndReusesIdentity(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)

	rec := httptest.NewRecorder()
	guestID, created, err := issuer.Ensure(rec, httptest.NewRequest(http.MethodGet, "/api/guest-id", nil))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !created {
		t.Fatal("expected a new identity")
	}
	if _, err := uuid.Parse(guestID); err != nil {
		t.Fatalf("expected uuid guest id, got %q", guestID)
	}

	cookies := rec.Result().Cookies()
	if len(cookies) != 1 {
		t.Fatalf("expected one cookie, got %d", len(cookies))
	}
	cookie := cookies[0]
	if cookie.Name != CookieName || !cookie.HttpOnly || !cookie.Secure || cookie.SameSite != http.SameSiteLaxMode {
		t.Fatalf("unexpected cookie attributes: %+v", cookie)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
	req.AddCookie(cookie)
	again := httptest.NewRecorder()
	sameID, created, err := issuer.Ensure(again, req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if created || sameID != guestID {
		t.Fatalf("expected stable identity %q, got %q (created=%v)", guestID, sameID, created)
	}
	if len(again.Result().Cookies()) != 0 {
		t.Fatal("expected no new cookie for a known guest")
	}
}

func TestFromRequest_RejectsBadTokens(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)
	other, err := NewIssuer(strings.Repeat("x", 32), false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	foreign, err := other.Issue(uuid.NewString())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	notUUID, err := issuer.Issue("guest-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	noneToken, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject: uuid.NewString(),
		Issuer:  "norcalbattery-storefront",
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	tests := []struct {
		name  string
		value string
	}{
		{name: "missing", value: ""},
		{name: "garbage", value: "not-a-token"},
		{name: "other secret", value: foreign},
		{name: "non uuid subject", value: notUUID},
		{name: "unsigned", value: noneToken},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodGet, "/api/orders", nil)
			if tt.value != "" {
				req.AddCookie(&http.Cookie{Name: CookieName, Value: tt.value})
			}
			if _, err := issuer.FromRequest(req); !errors.Is(err, ErrNoGuest) {
				t.Fatalf("expected ErrNoGuest, got %v", err)
			}
		})
	}
}

func TestParse_RejectsExpiredToken(t *testing.T) {
	t.Parallel()

	issuer := newTestIssuer(t)
	start := time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return start }

	token, err := issuer.Issue(uuid.NewString())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	issuer.now = func() time.Time { return start.Add(tokenTTL + time.Hour) }
	if _, err := issuer.Parse(token); !errors.Is(err, jwt.ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}
