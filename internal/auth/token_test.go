package auth

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func signedToken(t *testing.T, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestSubjectFromToken(t *testing.T) {
	withUserID := signedToken(t, Claims{UserID: "u42", RegisteredClaims: jwt.RegisteredClaims{Subject: "other"}})
	subject, err := SubjectFromToken(withUserID)
	require.NoError(t, err)
	assert.Equal(t, "u42", subject)

	withSub := signedToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "u7"}})
	subject, err = SubjectFromToken(withSub)
	require.NoError(t, err)
	assert.Equal(t, "u7", subject)

	_, err = SubjectFromToken(signedToken(t, Claims{}))
	assert.ErrorIs(t, err, ErrTokenMalformed)

	_, err = SubjectFromToken("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenMalformed)
}

func TestExpiresAt(t *testing.T) {
	exp := time.Date(2030, 1, 2, 3, 4, 5, 0, time.UTC)
	token := signedToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)}})

	got, ok := ExpiresAt(token)
	require.True(t, ok)
	assert.True(t, exp.Equal(got))

	_, ok = ExpiresAt(signedToken(t, Claims{UserID: "u1"}))
	assert.False(t, ok)
	_, ok = ExpiresAt("opaque-token")
	assert.False(t, ok)
}

func TestStaticTokenSource(t *testing.T) {
	token, err := StaticTokenSource("abc").Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "abc", token)

	_, err = StaticTokenSource(" ").Token(context.Background())
	assert.ErrorIs(t, err, ErrTokenMissing)
}

func TestFileTokenSource_ReloadsChangedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "gateway_token")
	require.NoError(t, os.WriteFile(path, []byte("first\n"), 0o600))
	src := NewFileTokenSource(path, nil)

	token, err := src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "first", token)

	require.NoError(t, os.WriteFile(path, []byte("second"), 0o600))
	later := time.Now().Add(time.Hour)
	require.NoError(t, os.Chtimes(path, later, later))

	token, err = src.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "second", token)
}

func TestFileTokenSource_Errors(t *testing.T) {
	dir := t.TempDir()
	_, err := NewFileTokenSource(filepath.Join(dir, "missing"), nil).Token(context.Background())
	assert.ErrorIs(t, err, ErrTokenMissing)

	empty := filepath.Join(dir, "empty")
	require.NoError(t, os.WriteFile(empty, []byte("  \n"), 0o600))
	_, err = NewFileTokenSource(empty, nil).Token(context.Background())
	assert.ErrorIs(t, err, ErrTokenMissing)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = NewFileTokenSource(empty, nil).Token(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFileTokenSource_WarnsOnceAboutExpiredToken(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	path := filepath.Join(t.TempDir(), "gateway_token")
	expired := signedToken(t, Claims{RegisteredClaims: jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	}})
	require.NoError(t, os.WriteFile(path, []byte(expired), 0o600))

	src := NewFileTokenSource(path, zap.New(core))
	for i := 0; i < 3; i++ {
		token, err := src.Token(context.Background())
		require.NoError(t, err)
		assert.Equal(t, expired, token)
	}
	assert.Equal(t, 1, logs.FilterMessage("Access token has expired").Len())
}
