package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/sassongal/revWave-sub000/internal/domain"
)

// StateTTL bounds how long a consent redirect may take.
const StateTTL = 10 * time.Minute

var errInvalidState = errors.New("invalid oauth state")

// StateCodec signs the OAuth state parameter so the callback can trust the
// tenant and provider it names.
type StateCodec struct {
	secret []byte
	now    func() time.Time
}

func NewStateCodec(secret string) *StateCodec {
	return &StateCodec{secret: []byte(secret), now: time.Now}
}

type stateClaims struct {
	Tenant   string `json:"tid"`
	Provider string `json:"prv"`
	jwt.RegisteredClaims
}

// Issue returns a signed state for (tenant, provider).
func (c *StateCodec) Issue(tenantID string, provider domain.Provider) (string, error) {
	now := c.now()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, stateClaims{
		Tenant:   tenantID,
		Provider: string(provider),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(StateTTL)),
		},
	})
	return tok.SignedString(c.secret)
}

// Verify checks the signature and expiry and returns the tenant and provider.
func (c *StateCodec) Verify(state string) (string, domain.Provider, error) {
	var claims stateClaims
	tok, err := jwt.ParseWithClaims(state, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	}, jwt.WithTimeFunc(c.now))
	if err != nil || !tok.Valid {
		return "", "", fmt.Errorf("%w: %v", errInvalidState, err)
	}
	if claims.Tenant == "" || claims.Provider == "" {
		return "", "", errInvalidState
	}
	return claims.Tenant, domain.Provider(claims.Provider), nil
}
