// Package guest issues the signed cookie that identifies an anonymous shopper.
package guest

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	CookieName = "guest_id"
	tokenTTL   = 365 * 24 * time.Hour
	issuer     = "norcalbattery-storefront"
)

var ErrNoGuest = errors.New("no valid guest identity")

type Claims struct {
	jwt.RegisteredClaims
}

type Issuer struct {
	secret []byte
	secure bool
	now    func() time.Time
}

func NewIssuer(secret string, secureCookies bool) (*Issuer, error) {
	if len(secret) < 32 {
		return nil, fmt.Errorf("guest token secret must be at least 32 bytes")
	}
	return &Issuer{
		secret: []byte(secret),
		secure: secureCookies,
		now:    time.Now,
	}, nil
}

// Issue signs a token for guestID.
func (i *Issuer) Issue(guestID string) (string, error) {
	now := i.now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   guestID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

// Parse verifies a token and returns the guest id it carries.
func (i *Issuer) Parse(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil {
		return "", err
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return "", fmt.Errorf("guest id is not a uuid: %w", err)
	}
	return claims.Subject, nil
}

// FromRequest returns the verified guest id from the request cookie.
func (i *Issuer) FromRequest(r *http.Request) (string, error) {
	cookie, err := r.Cookie(CookieName)
	if err != nil || cookie.Value == "" {
		return "", ErrNoGuest
	}
	guestID, err := i.Parse(cookie.Value)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoGuest, err)
	}
	return guestID, nil
}

// Ensure returns the caller's guest id, issuing a new cookie when it is missing or invalid.
// The boolean reports whether a new identity was created.
func (i *Issuer) Ensure(w http.ResponseWriter, r *http.Request) (string, bool, error) {
	if guestID, err := i.FromRequest(r); err == nil {
		return guestID, false, nil
	}

	guestID := uuid.NewString()
	token, err := i.Issue(guestID)
	if err != nil {
		return "", false, fmt.Errorf("failed to sign guest token: %w", err)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(tokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   i.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return guestID, true, nil
}
