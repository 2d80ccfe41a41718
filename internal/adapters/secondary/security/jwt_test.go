package security

import (
	"crypto/rand"
	"crypto/rsa"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newKeyPair(t *testing.T) (*rsa.PrivateKey, []byte) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	return key, PublicKeyPEM(&key.PublicKey)
}

func TestJWTValidator_AcceptsSignedToken(t *testing.T) {
	key, pubPEM := newKeyPair(t)
	v, err := NewJWTValidator(pubPEM)
	require.NoError(t, err)

	token, err := NewJWTIssuerFromKey(key).Issue("p1", "admin", time.Minute)
	require.NoError(t, err)

	principal, err := v.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "p1", principal.UserID)
	assert.True(t, principal.IsAdmin())
}

func TestJWTValidator_Rejections(t *testing.T) {
	key, pubPEM := newKeyPair(t)
	other, _ := newKeyPair(t)
	v, err := NewJWTValidator(pubPEM)
	require.NoError(t, err)

	expired, err := NewJWTIssuerFromKey(key).Issue("p1", "", -time.Minute)
	require.NoError(t, err)

	foreign, err := NewJWTIssuerFromKey(other).Issue("p1", "", time.Minute)
	require.NoError(t, err)

	hmac, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "p1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString(pubPEM)
	require.NoError(t, err)

	for name, token := range map[string]string{
		"expired":          expired,
		"wrong key":        foreign,
		"hmac with pubkey": hmac,
		"garbage":          "not-a-token",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := v.Validate(token)
			assert.Error(t, err)
		})
	}
}

func TestNewJWTValidator_BadPEM(t *testing.T) {
	_, err := NewJWTValidator([]byte("nope"))
	assert.Error(t, err)
}
