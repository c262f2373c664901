// Package session mints and verifies the access/refresh token pair and carries
// it to and from the client as cookies.
package session

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrInvalidToken covers malformed, expired and badly signed tokens alike.
	ErrInvalidToken = errors.New("invalid token")
	// ErrInvalidPayload is returned for a verified token without a user id.
	ErrInvalidPayload = errors.New("invalid token payload")
)

// Claims is the token payload: registered claims plus the user id.
type Claims struct {
	jwt.RegisteredClaims
	UserID uint `json:"_id,omitempty"`
}

// Pair is an access token together with its refresh token.
type Pair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// Issuer signs access tokens and refresh tokens with separate secrets.
type Issuer struct {
	accessSecret  []byte
	refreshSecret []byte
	accessTTL     time.Duration
	refreshTTL    time.Duration
	now           func() time.Time
}

func NewIssuer(accessSecret, refreshSecret string, accessTTL, refreshTTL time.Duration) *Issuer {
	return &Issuer{
		accessSecret:  []byte(accessSecret),
		refreshSecret: []byte(refreshSecret),
		accessTTL:     accessTTL,
		refreshTTL:    refreshTTL,
		now:           time.Now,
	}
}

func (i *Issuer) AccessTTL() time.Duration  { return i.accessTTL }
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// AccessToken returns a short-lived token for userID.
func (i *Issuer) AccessToken(userID uint) (string, error) {
	return i.sign(userID, i.accessSecret, i.accessTTL)
}

// RefreshToken returns a long-lived token for userID.
func (i *Issuer) RefreshToken(userID uint) (string, error) {
	return i.sign(userID, i.refreshSecret, i.refreshTTL)
}

// Pair mints both tokens for userID. Persisting the refresh token is the
// caller's job.
func (i *Issuer) Pair(userID uint) (Pair, error) {
	access, err := i.AccessToken(userID)
	if err != nil {
		return Pair{}, err
	}
	refresh, err := i.RefreshToken(userID)
	if err != nil {
		return Pair{}, err
	}
	return Pair{AccessToken: access, RefreshToken: refresh}, nil
}

// ParseAccess verifies an access token and returns its user id.
func (i *Issuer) ParseAccess(token string) (uint, error) {
	return i.parse(token, i.accessSecret)
}

// ParseRefresh verifies a refresh token and returns its user id.
func (i *Issuer) ParseRefresh(token string) (uint, error) {
	return i.parse(token, i.refreshSecret)
}

func (i *Issuer) sign(userID uint, secret []byte, ttl time.Duration) (string, error) {
	now := i.now()
	// the jti keeps two tokens minted in the same second distinct
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UserID: userID,
	})
	return token.SignedString(secret)
}

func (i *Issuer) parse(tokenString string, secret []byte) (uint, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenSignatureInvalid
		}
		return secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !token.Valid {
		return 0, ErrInvalidToken
	}
	if claims.UserID == 0 {
		return 0, ErrInvalidPayload
	}
	return claims.UserID, nil
}

// HashToken is the form a refresh token is stored in.
func HashToken(token string) string {
	h := sha256.Sum256([]byte(token))
	return hex.EncodeToString(h[:])
}
