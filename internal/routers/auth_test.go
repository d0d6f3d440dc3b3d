package routers

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, method jwt.SigningMethod, key any, claims jwt.MapClaims) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestStaticKeyVerifierHMAC(t *testing.T) {
	key := []byte("secret")
	v, err := NewStaticKeyVerifier(key)
	require.NoError(t, err)

	ctx := context.Background()
	token := sign(t, jwt.SigningMethodHS256, key, jwt.MapClaims{
		"sub":                "jane",
		"email":              "jane@example.com",
		"preferred_username": "jane",
		"name":               "Jane Doe",
		"scope":              "openid admin",
		"exp":                time.Now().Add(time.Minute).Unix(),
	})
	claims, err := v.Verify(ctx, token)
	require.NoError(t, err)
	assert.Equal(t, "jane", claims.Subject)
	assert.Equal(t, "jane@example.com", claims.Email)
	assert.Equal(t, "Jane Doe", claims.FullName)
	assert.True(t, claims.HasScope(AdminScope))
	assert.False(t, claims.HasScope("adm"))

	expired := sign(t, jwt.SigningMethodHS256, key, jwt.MapClaims{
		"sub": "jane",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})
	_, err = v.Verify(ctx, expired)
	assert.Error(t, err)

	forged := sign(t, jwt.SigningMethodHS256, []byte("other"), jwt.MapClaims{"sub": "jane"})
	_, err = v.Verify(ctx, forged)
	assert.Error(t, err)

	unsigned := sign(t, jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType, jwt.MapClaims{"sub": "jane"})
	_, err = v.Verify(ctx, unsigned)
	assert.Error(t, err)

	_, err = NewStaticKeyVerifier(nil)
	assert.Error(t, err)
}

func TestStaticKeyVerifierRSA(t *testing.T) {
	private, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKIXPublicKey(&private.PublicKey)
	require.NoError(t, err)
	public := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})

	v, err := NewStaticKeyVerifier(public)
	require.NoError(t, err)

	token := sign(t, jwt.SigningMethodRS256, private, jwt.MapClaims{"sub": "john"})
	claims, err := v.Verify(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "john", claims.Subject)
	assert.False(t, claims.HasScope(AdminScope))

	// an HMAC token signed with the public key must not pass as RS256
	confused := sign(t, jwt.SigningMethodHS256, public, jwt.MapClaims{"sub": "john"})
	_, err = v.Verify(context.Background(), confused)
	assert.Error(t, err)

	_, err = NewStaticKeyVerifier([]byte("-----BEGIN PUBLIC KEY-----\nbroken\n-----END PUBLIC KEY-----\n"))
	assert.Error(t, err)
}
