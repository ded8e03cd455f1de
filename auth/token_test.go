package auth

import (
	"context"
	"testing"
	"time"

	"github.com/chathaven/haven-client/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signedToken(t *testing.T, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "alice",
		"exp": exp.Unix(),
	})
	raw, err := tok.SignedString([]byte("test-key"))
	require.NoError(t, err)
	return raw
}

func TestExpiryPeeksUnverified(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	got, ok := Expiry(signedToken(t, exp))
	require.True(t, ok)
	assert.Equal(t, exp.Unix(), got.Unix())

	_, ok = Expiry("not-a-jwt")
	assert.False(t, ok)
}

func TestStaticTokenSource(t *testing.T) {
	raw := signedToken(t, time.Now().Add(time.Hour))
	tok, err := StaticTokenSource{RawToken: raw}.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, raw, tok)

	// opaque non-JWT tokens pass through untouched
	tok, err = StaticTokenSource{RawToken: "opaque-credential"}.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "opaque-credential", tok)

	_, err = StaticTokenSource{RawToken: signedToken(t, time.Now().Add(-time.Hour))}.Token(context.Background())
	assert.Error(t, err)
}

func TestCommandTokenSource(t *testing.T) {
	tok, err := CommandTokenSource{Command: "echo '  token-from-helper  '"}.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-from-helper", tok)

	_, err = CommandTokenSource{Command: "true"}.Token(context.Background())
	assert.Error(t, err)

	_, err = CommandTokenSource{Command: "exit 3"}.Token(context.Background())
	assert.Error(t, err)
}

func TestFromConfig(t *testing.T) {
	_, err := FromConfig(&config.Config{})
	assert.Equal(t, ErrNoCredential, err)

	src, err := FromConfig(&config.Config{AuthConfig: config.AuthConfig{Token: "abc"}})
	require.NoError(t, err)
	assert.IsType(t, StaticTokenSource{}, src)

	src, err = FromConfig(&config.Config{AuthConfig: config.AuthConfig{TokenCommand: "echo x"}})
	require.NoError(t, err)
	assert.IsType(t, CommandTokenSource{}, src)

	src, err = FromConfig(&config.Config{AuthConfig: config.AuthConfig{
		OIDCConfig: config.OIDCConfig{ProviderUrl: "https://accounts.example.com", ClientId: "haven"},
	}})
	require.NoError(t, err)
	assert.IsType(t, &OIDCTokenSource{}, src)
}
