package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/strefethen/freebox-hub-go/internal/config"
)

// TokenKind separates short-lived access tokens from the refresh tokens a
// paired client keeps to renew them.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

const (
	tokenIssuer   = "freebox-hub"
	tokenAudience = "freebox-hub-client"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
	ErrTokenType    = errors.New("token has invalid type")
)

// TokenPair is handed to a client when pairing completes.
type TokenPair struct {
	AccessToken  string
	RefreshToken string
	ExpiresInSec int
}

type clientClaims struct {
	DeviceName string    `json:"device_name"`
	Kind       TokenKind `json:"kind"`
	jwt.RegisteredClaims
}

// Issuer mints and checks the HS256 credentials of paired hub clients.
type Issuer struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer reads the secret and lifetimes from cfg.
func NewIssuer(cfg config.Config) *Issuer {
	return &Issuer{
		secret:     []byte(cfg.JWTSecret),
		accessTTL:  time.Duration(cfg.JWTAccessTokenExpirySec) * time.Second,
		refreshTTL: time.Duration(cfg.JWTRefreshTokenExpirySec) * time.Second,
		now:        time.Now,
	}
}

// AccessTTL is the lifetime of access tokens.
func (i *Issuer) AccessTTL() time.Duration {
	return i.accessTTL
}

// Issue creates the credentials of a newly paired client.
func (i *Issuer) Issue(client Principal) (TokenPair, error) {
	if client.DeviceID == "" || client.DeviceName == "" {
		return TokenPair{}, fmt.Errorf("issue tokens: device id and name are required")
	}
	access, err := i.sign(client, KindAccess, i.accessTTL)
	if err != nil {
		return TokenPair{}, err
	}
	refresh, err := i.sign(client, KindRefresh, i.refreshTTL)
	if err != nil {
		return TokenPair{}, err
	}
	return TokenPair{
		AccessToken:  access,
		RefreshToken: refresh,
		ExpiresInSec: int(i.accessTTL.Seconds()),
	}, nil
}

// Refresh exchanges a refresh token for a new access token of the same client.
func (i *Issuer) Refresh(refreshToken string) (string, error) {
	client, err := i.Verify(refreshToken, KindRefresh)
	if err != nil {
		return "", err
	}
	return i.sign(client, KindAccess, i.accessTTL)
}

// Verify checks signature, issuer, audience, expiry and kind. A valid token
// of the other kind yields ErrTokenType.
func (i *Issuer) Verify(token string, want TokenKind) (Principal, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(tokenAudience),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithTimeFunc(i.now),
	)

	claims := &clientClaims{}
	if _, err := parser.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	}); err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return Principal{}, ErrTokenExpired
		}
		return Principal{}, ErrTokenInvalid
	}

	if claims.Subject == "" || claims.DeviceName == "" {
		return Principal{}, ErrTokenInvalid
	}
	switch claims.Kind {
	case want:
	case KindAccess, KindRefresh:
		return Principal{}, ErrTokenType
	default:
		return Principal{}, ErrTokenInvalid
	}
	return Principal{DeviceID: claims.Subject, DeviceName: claims.DeviceName}, nil
}

func (i *Issuer) sign(client Principal, kind TokenKind, ttl time.Duration) (string, error) {
	now := i.now()
	claims := clientClaims{
		DeviceName: client.DeviceName,
		Kind:       kind,
		RegisteredClaims: jwt.RegisteredClaims{
			// Two tokens minted in the same second must still differ.
			ID:        uuid.NewString(),
			Subject:   client.DeviceID,
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{tokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}
