package credential

import (
	"context"
	"testing"
	"time"

	"github.com/99designs/keyring"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/pburn/internal/model"
)

func newManager(ring keyring.Keyring, fileToken string, env map[string]string) *Manager {
	m := New(ring, fileToken)
	m.getenv = func(k string) string { return env[k] }
	return m
}

func TestResolve_Order(t *testing.T) {
	ring := keyring.NewArrayKeyring([]keyring.Item{{Key: itemKey, Data: []byte("sk-from-ring")}})

	tok, err := newManager(ring, "sk-from-file", map[string]string{EnvToken: "sk-from-env"}).Resolve()
	require.NoError(t, err)
	assert.Equal(t, SourceEnv, tok.Source)
	assert.Equal(t, "sk-from-env", tok.Value)

	tok, err = newManager(ring, "sk-from-file", nil).Resolve()
	require.NoError(t, err)
	assert.Equal(t, SourceKeyring, tok.Source)

	tok, err = newManager(keyring.NewArrayKeyring(nil), "sk-from-file", nil).Resolve()
	require.NoError(t, err)
	assert.Equal(t, SourceConfig, tok.Source)

	tok, err = newManager(nil, " sk-from-file ", nil).Resolve()
	require.NoError(t, err)
	assert.Equal(t, "sk-from-file", tok.Value)
}

func TestResolve_NoToken(t *testing.T) {
	m := newManager(keyring.NewArrayKeyring(nil), "", nil)
	_, err := m.Resolve()
	assert.ErrorIs(t, err, ErrNoToken)
	assert.ErrorIs(t, err, model.ErrAuth)

	_, err = m.TokenSource(context.Background())
	assert.ErrorIs(t, err, model.ErrAuth)
}

func TestSetAndClear(t *testing.T) {
	m := newManager(keyring.NewArrayKeyring(nil), "", nil)
	require.True(t, m.HasKeyring())

	require.NoError(t, m.Set("  sk-new-token  "))
	got, err := m.TokenSource(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "sk-new-token", got)

	require.NoError(t, m.Clear())
	require.NoError(t, m.Clear())
	_, err = m.Resolve()
	assert.ErrorIs(t, err, ErrNoToken)

	assert.ErrorIs(t, m.Set(""), model.ErrConfig)
}

func TestSet_NoKeyring(t *testing.T) {
	m := newManager(nil, "", nil)
	assert.False(t, m.HasKeyring())
	assert.ErrorIs(t, m.Set("sk-x"), ErrNoKeyring)
	assert.NoError(t, m.Clear())
}

func signed(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return s
}

func TestDetectKind(t *testing.T) {
	assert.Equal(t, KindAPIKey, DetectKind("sk-abc123"))
	assert.Equal(t, KindJWT, DetectKind(signed(t, jwt.MapClaims{"sub": "u1"})))
	assert.Equal(t, KindOpaque, DetectKind("a.b.c"))
	assert.Equal(t, KindOpaque, DetectKind("plain-token"))
}

func TestExpiry(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	tok := signed(t, jwt.MapClaims{"exp": exp.Unix()})

	got, ok := Expiry(tok)
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	resolved := newToken(tok, SourceEnv)
	assert.Equal(t, KindJWT, resolved.Kind)
	assert.False(t, resolved.Expired(time.Now()))
	assert.True(t, resolved.Expired(exp.Add(time.Second)))

	_, ok = Expiry(signed(t, jwt.MapClaims{"sub": "u1"}))
	assert.False(t, ok)
	assert.False(t, newToken("sk-abc", SourceEnv).Expired(time.Now()))
}

func TestMask(t *testing.T) {
	assert.Equal(t, "sk-abc...wxyz", Mask("sk-abcdefghijklmnopqrstuvwxyz"))
	assert.Equal(t, "*****", Mask("short"))
}

func TestValidate(t *testing.T) {
	now := time.Now()
	assert.NoError(t, Validate("sk-abc", now))
	assert.ErrorIs(t, Validate("", now), model.ErrConfig)
	assert.ErrorIs(t, Validate("sk abc", now), model.ErrConfig)

	expired := signed(t, jwt.MapClaims{"exp": now.Add(-time.Minute).Unix()})
	err := Validate(expired, now)
	require.ErrorIs(t, err, model.ErrConfig)
	assert.Contains(t, err.Error(), "expired")

	m := newManager(keyring.NewArrayKeyring(nil), "", nil)
	assert.Error(t, m.Set(expired))
}
