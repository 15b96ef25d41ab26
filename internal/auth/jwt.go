// Package auth issues and verifies the bearer tokens used by the signal channel.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/huddle/internal/core"
	"github.com/dkeye/huddle/internal/domain"
	"github.com/lestrrat-go/jwx/v2/jwa"
	"github.com/lestrrat-go/jwx/v2/jwt"
)

const (
	UserIDClaim = "userId"
	DefaultTTL  = 24 * time.Hour
	issuer      = "huddle"
)

var ErrNoSecret = errors.New("auth secret is empty")

// JWT signs HS256 tokens carrying the user id claim.
type JWT struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewJWT(secret string, ttl time.Duration) (*JWT, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &JWT{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

func (j *JWT) Issue(uid domain.UserID) (string, error) {
	if _, err := domain.ParseUserID(string(uid)); err != nil {
		return "", err
	}
	now := j.now()
	token, err := jwt.NewBuilder().
		Issuer(issuer).
		Subject(string(uid)).
		IssuedAt(now).
		Expiration(now.Add(j.ttl)).
		Build()
	if err != nil {
		return "", err
	}
	if err := token.Set(UserIDClaim, string(uid)); err != nil {
		return "", fmt.Errorf("set %s claim: %w", UserIDClaim, err)
	}
	signed, err := jwt.Sign(token, jwt.WithKey(jwa.HS256, j.secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return string(signed), nil
}

// VerifyToken checks signature and expiry and returns the user id claim.
// Every failure wraps core.ErrAuthentication.
func (j *JWT) VerifyToken(_ context.Context, raw string) (domain.UserID, error) {
	if raw == "" {
		return "", fmt.Errorf("%w: missing token", core.ErrAuthentication)
	}
	token, err := jwt.Parse([]byte(raw),
		jwt.WithKey(jwa.HS256, j.secret),
		jwt.WithValidate(true),
		jwt.WithClock(jwt.ClockFunc(j.now)),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrAuthentication, err)
	}
	claim, ok := token.Get(UserIDClaim)
	if !ok {
		return "", fmt.Errorf("%w: no %s claim", core.ErrAuthentication, UserIDClaim)
	}
	s, _ := claim.(string)
	uid, err := domain.ParseUserID(s)
	if err != nil {
		return "", fmt.Errorf("%w: %w", core.ErrAuthentication, err)
	}
	return uid, nil
}
