package chat

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultUserTokenTTL = time.Hour
	issuedAtBackdate    = time.Minute
)

var (
	errMissingAPISecret = errors.New("chat: api secret required")
	errMissingUserID    = errors.New("chat: user id required")
)

// UserClaims authenticate one chat user against the hosted service.
type UserClaims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

type serverClaims struct {
	Server bool `json:"server"`
	jwt.RegisteredClaims
}

// TokenIssuer signs chat user and server tokens with the hosted service's API secret.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	clock  func() time.Time
}

// NewTokenIssuer constructs an issuer. A non-positive ttl defaults to one hour.
func NewTokenIssuer(secret string, ttl time.Duration, clock func() time.Time) (*TokenIssuer, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errMissingAPISecret
	}
	if ttl <= 0 {
		ttl = defaultUserTokenTTL
	}
	if clock == nil {
		clock = time.Now
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, clock: clock}, nil
}

// UserToken returns a token for userID valid for the configured ttl.
// The issued-at time is backdated a minute to tolerate clock skew at the hosted service.
func (i *TokenIssuer) UserToken(userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", errMissingUserID
	}
	now := i.clock().UTC()
	claims := UserClaims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now.Add(-issuedAtBackdate)),
			ExpiresAt: jwt.NewNumericDate(now.Add(i.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// ServerToken returns the token used for server side API calls.
func (i *TokenIssuer) ServerToken() (string, error) {
	claims := serverClaims{
		Server: true,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt: jwt.NewNumericDate(i.clock().UTC().Add(-issuedAtBackdate)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// ParseUserToken validates a user token signed by this issuer.
func (i *TokenIssuer) ParseUserToken(token string) (UserClaims, error) {
	claims := &UserClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (interface{}, error) {
		return i.secret, nil
	}, jwt.WithTimeFunc(i.clock), jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return UserClaims{}, err
	}
	return *claims, nil
}
