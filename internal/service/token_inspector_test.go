package service

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-adp-mobile/pkg/errors"
)

func TestTokenInspectorDecodeClaims(t *testing.T) {
	inspector := newTestInspector()
	token := mintToken(t, fixedNow.Add(time.Hour), "Admin", "Teacher")

	claims, err := inspector.DecodeClaims(token)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(time.Hour).Unix(), claims.ExpiresAt)
	assert.Equal(t, []string{"Admin", "Teacher"}, claims.Roles)
}

func TestTokenInspectorSkewBoundary(t *testing.T) {
	inspector := newTestInspector()

	assert.True(t, inspector.IsExpired(mintToken(t, fixedNow.Add(29*time.Second))))
	assert.False(t, inspector.IsExpired(mintToken(t, fixedNow.Add(30*time.Second))))
	assert.False(t, inspector.IsExpired(mintToken(t, fixedNow.Add(31*time.Second))))
	assert.True(t, inspector.IsExpired(mintToken(t, fixedNow.Add(-time.Minute))))

	assert.False(t, inspector.IsExpiredWithSkew(mintToken(t, fixedNow.Add(29*time.Second)), 0))
}

func TestTokenInspectorMalformedTokensCountAsExpired(t *testing.T) {
	inspector := newTestInspector()

	for _, token := range []string{"", "not-a-token", "a.b", "a.b.c"} {
		assert.True(t, inspector.IsExpired(token), token)
		_, err := inspector.DecodeClaims(token)
		assert.ErrorIs(t, err, appErrors.ErrTokenDecode, token)
	}
}

func TestTokenInspectorMissingExpIsDecodeError(t *testing.T) {
	inspector := newTestInspector()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"roles": []string{"Admin"}}).SignedString([]byte("k"))
	require.NoError(t, err)

	_, err = inspector.DecodeClaims(token)
	assert.ErrorIs(t, err, appErrors.ErrTokenDecode)
	assert.True(t, inspector.IsExpired(token))
}

func TestTokenInspectorRoleClaimVariants(t *testing.T) {
	inspector := NewTokenInspector(DefaultExpirySkew, "role", "roles")
	exp := time.Now().Add(time.Hour).Unix()

	single, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp, "role": "Parent"}).SignedString([]byte("k"))
	require.NoError(t, err)
	claims, err := inspector.DecodeClaims(single)
	require.NoError(t, err)
	assert.Equal(t, []string{"Parent"}, claims.Roles)

	none, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": exp}).SignedString([]byte("k"))
	require.NoError(t, err)
	claims, err = inspector.DecodeClaims(none)
	require.NoError(t, err)
	assert.Empty(t, claims.Roles)
	assert.NotNil(t, claims.Roles)
}
