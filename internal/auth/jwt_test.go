package auth

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/lalith-99/aipdfly/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func TestGenerateAndParseToken(t *testing.T) {
	token, err := GenerateToken("user_2abc", models.RoleAdmin, "a@example.com", testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, "user_2abc", claims.UserID())
	assert.Equal(t, models.RoleAdmin, claims.Role)
	assert.Equal(t, "a@example.com", claims.Email)
}

func TestParseToken_Rejects(t *testing.T) {
	valid, err := GenerateToken("user_1", models.RoleCustomer, "", testSecret, time.Hour)
	require.NoError(t, err)
	expired, err := GenerateToken("user_1", models.RoleCustomer, "", testSecret, -time.Minute)
	require.NoError(t, err)
	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Subject:   "user_1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	noSubject, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		secret string
	}{
		{"wrong secret", valid, "other"},
		{"expired", expired, testSecret},
		{"alg none", none, testSecret},
		{"no subject", noSubject, testSecret},
		{"garbage", "not.a.token", testSecret},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseToken(tt.token, tt.secret)
			assert.Error(t, err)
		})
	}
}

func TestParseToken_UnknownRoleIsCustomer(t *testing.T) {
	token, err := GenerateToken("user_1", models.Role("superuser"), "", testSecret, time.Hour)
	require.NoError(t, err)

	claims, err := ParseToken(token, testSecret)
	require.NoError(t, err)
	assert.Equal(t, models.RoleCustomer, claims.Role)
}

func TestGenerateToken_EmptyUser(t *testing.T) {
	_, err := GenerateToken("", models.RoleCustomer, "", testSecret, time.Hour)
	assert.Error(t, err)
}
