// Package auth hashes passwords and issues the signed access and refresh tokens used by the API.
package auth

import (
	"fmt"
	"time"

	"github.com/gofrs/uuid"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	AccessTokenTTL  = 15 * time.Minute
	RefreshTokenTTL = 7 * 24 * time.Hour

	MinPasswordLen = 6
	// MaxPasswordLen is the bcrypt input limit in bytes.
	MaxPasswordLen = 72
)

var (
	ErrInvalidToken  = fmt.Errorf("invalid or expired token")
	ErrWeakPassword  = fmt.Errorf("password must be at least %d characters", MinPasswordLen)
	ErrLongPassword  = fmt.Errorf("password must not exceed %d bytes", MaxPasswordLen)
	ErrBadCredential = fmt.Errorf("invalid email or password")
	ErrMissingSecret = fmt.Errorf("token secret not configured")
)

func HashPassword(password string) (string, error) {
	if len(password) < MinPasswordLen {
		return "", ErrWeakPassword
	}
	if len(password) > MaxPasswordLen {
		return "", ErrLongPassword
	}
	b, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrBadCredential
	}
	return nil
}

// Issuer signs and verifies HS256 tokens. Access and refresh tokens use separate secrets.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	now           func() time.Time
}

func NewIssuer(accessSecret, refreshSecret string) (*Issuer, error) {
	if accessSecret == "" || refreshSecret == "" {
		return nil, ErrMissingSecret
	}
	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		now:           time.Now,
	}, nil
}

// Pair is a freshly issued access/refresh token pair. RefreshID is the jti of the refresh token
// and is what the user record keeps to detect reuse.
type Pair struct {
	Access    string
	Refresh   string
	RefreshID string
}

func (i *Issuer) Issue(userID uuid.UUID) (Pair, error) {
	now := i.now()

	access, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(AccessTokenTTL)),
	}).SignedString(i.accessSecret)
	if err != nil {
		return Pair{}, err
	}

	jti, err := uuid.NewV4()
	if err != nil {
		return Pair{}, err
	}
	refresh, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   userID.String(),
		ID:        jti.String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(RefreshTokenTTL)),
	}).SignedString(i.refreshSecret)
	if err != nil {
		return Pair{}, err
	}

	return Pair{Access: access, Refresh: refresh, RefreshID: jti.String()}, nil
}

// ParseAccess returns the user id carried by a valid access token.
func (i *Issuer) ParseAccess(token string) (uuid.UUID, error) {
	claims, err := i.parse(token, i.accessSecret)
	if err != nil {
		return uuid.Nil, err
	}
	return subject(claims)
}

// ParseRefresh returns the user id and the token id of a valid refresh token.
func (i *Issuer) ParseRefresh(token string) (uuid.UUID, string, error) {
	claims, err := i.parse(token, i.refreshSecret)
	if err != nil {
		return uuid.Nil, "", err
	}
	if claims.ID == "" {
		return uuid.Nil, "", ErrInvalidToken
	}
	id, err := subject(claims)
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, claims.ID, nil
}

func (i *Issuer) parse(token string, secret []byte) (*jwt.RegisteredClaims, error) {
	claims := new(jwt.RegisteredClaims)
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithTimeFunc(i.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claims, nil
}

func subject(claims *jwt.RegisteredClaims) (uuid.UUID, error) {
	id, err := uuid.FromString(claims.Subject)
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: bad subject", ErrInvalidToken)
	}
	return id, nil
}
