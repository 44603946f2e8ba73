// Package auth mints and verifies the bearer tokens that bind worker
// callbacks to a single function run.
package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tabsdata/tabsdata-server/internal/pkg/apierr"
)

type CallbackTokens struct {
	secret []byte
	ttl    time.Duration
}

func NewCallbackTokens(secret string, ttl time.Duration) *CallbackTokens {
	return &CallbackTokens{secret: []byte(secret), ttl: ttl}
}

type callbackClaims struct {
	FunctionRunID string `json:"function_run_id"`
	jwt.RegisteredClaims
}

// Mint issues a token scoped to one function run.
func (t *CallbackTokens) Mint(functionRunID string, now time.Time) (string, error) {
	claims := callbackClaims{
		FunctionRunID: functionRunID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   functionRunID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(t.secret)
	if err != nil {
		return "", apierr.Wrap(apierr.Fatal, err, "mint callback token")
	}
	return signed, nil
}

// Verify checks the token and that it was minted for the given run.
func (t *CallbackTokens) Verify(tokenString, functionRunID string) error {
	var claims callbackClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(tok *jwt.Token) (interface{}, error) {
		if _, ok := tok.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, apierr.New(apierr.AuthFailed, "unexpected signing method %v", tok.Header["alg"])
		}
		return t.secret, nil
	})
	if err != nil || !token.Valid {
		return apierr.Wrap(apierr.AuthFailed, err, "invalid callback token")
	}
	if claims.FunctionRunID != functionRunID {
		return apierr.New(apierr.AuthFailed, "callback token not issued for run %s", functionRunID)
	}
	return nil
}
