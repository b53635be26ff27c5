package httphandler

import (
	"crypto/rand"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/ericfisherdev/tgvault/internal/domain/model"
)

// DefaultTokenTTL bounds how long a session token is accepted.
const DefaultTokenTTL = 15 * time.Minute

// ErrUnauthorized is returned by Authorize for a missing, expired or stale token.
var ErrUnauthorized = errors.New("unauthorized")

// epochSource is the part of the vault session a token is bound to.
type epochSource interface {
	State() model.SessionState
	Epoch() uint64
}

// Claims are the JWT claims of a session token. Epoch is the vault's lock
// epoch at issue time; any Lock bumps it and invalidates the token.
type Claims struct {
	Epoch uint64 `json:"epoch"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and checks HS256 session tokens. The signing key is
// random per process, so a restart (which also locks the vault) invalidates
// every outstanding token.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	vault  epochSource
	now    func() time.Time
}

// NewTokenIssuer creates an issuer bound to vault. ttl <= 0 selects DefaultTokenTTL.
func NewTokenIssuer(vault epochSource, ttl time.Duration) (*TokenIssuer, error) {
	secret := make([]byte, 32)
	if _, err := rand.Read(secret); err != nil {
		return nil, fmt.Errorf("generate token secret: %w", err)
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: secret, ttl: ttl, vault: vault, now: time.Now}, nil
}

// Issue returns a token for the current epoch and its expiry.
func (t *TokenIssuer) Issue() (string, time.Time, error) {
	now := t.now()
	exp := now.Add(t.ttl)
	claims := Claims{
		Epoch: t.vault.Epoch(),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "vault",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, exp, nil
}

// Validate parses tokenStr and checks it against the live session.
func (t *TokenIssuer) Validate(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(tok *jwt.Token) (any, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", tok.Header["alg"])
		}
		return t.secret, nil
	}, jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return nil, ErrUnauthorized
	}

	if t.vault.State() != model.StateUnlocked || claims.Epoch != t.vault.Epoch() {
		return nil, model.ErrVaultLocked
	}
	return claims, nil
}

// Authorize validates the bearer token of r. Browsers cannot set headers on
// websocket handshakes, so a token query parameter is accepted as well.
func (t *TokenIssuer) Authorize(r *http.Request) error {
	tokenStr := ""
	if bearer := r.Header.Get("Authorization"); strings.HasPrefix(bearer, "Bearer ") {
		tokenStr = strings.TrimPrefix(bearer, "Bearer ")
	} else {
		tokenStr = r.URL.Query().Get("token")
	}
	if tokenStr == "" {
		return ErrUnauthorized
	}

	_, err := t.Validate(tokenStr)
	return err
}
