package jwt

import (
	"errors"
	"fmt"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the shortest HMAC secret NewIssuer accepts.
const MinSecretLength = 32

var (
	ErrInvalidToken   = errors.New("invalid token")
	ErrTokenExpired   = errors.New("token expired")
	ErrSecretRequired = errors.New("jwt secret is required")
	ErrSecretTooShort = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)
)

type Claims struct {
	IdentityID string `json:"identity_id"`
	Email      string `json:"email,omitempty"`
	Role       string `json:"role,omitempty"`
	jwtlib.RegisteredClaims
}

// Issuer signs and verifies session tokens. It is immutable after construction.
type Issuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewIssuer(secret []byte, ttl time.Duration) (*Issuer, error) {
	if len(secret) == 0 {
		return nil, ErrSecretRequired
	}
	if len(secret) < MinSecretLength {
		return nil, ErrSecretTooShort
	}
	if ttl <= 0 {
		return nil, errors.New("jwt ttl must be positive")
	}
	key := make([]byte, len(secret))
	copy(key, secret)
	return &Issuer{secret: key, ttl: ttl, now: time.Now}, nil
}

func (i *Issuer) TTL() time.Duration {
	return i.ttl
}

func (i *Issuer) Sign(identityID, email, role string) (string, error) {
	now := i.now()
	claims := Claims{
		IdentityID: identityID,
		Email:      email,
		Role:       role,
		RegisteredClaims: jwtlib.RegisteredClaims{
			Subject:   identityID,
			ExpiresAt: jwtlib.NewNumericDate(now.Add(i.ttl)),
			IssuedAt:  jwtlib.NewNumericDate(now),
		},
	}
	token := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, claims)
	return token.SignedString(i.secret)
}

func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	token, err := jwtlib.ParseWithClaims(tokenString, &Claims{}, func(token *jwtlib.Token) (interface{}, error) {
		if token.Method.Alg() != jwtlib.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing method")
		}
		return i.secret, nil
	}, jwtlib.WithTimeFunc(i.now), jwtlib.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwtlib.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid || claims.IdentityID == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
