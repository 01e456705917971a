package jwt

import (
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/piresc/schoolbus/internal/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func getTestConfig() models.JWTConfig {
	return models.JWTConfig{
		Secret:     "test-secret-key-for-jwt-signing",
		Expiration: 60,
		Issuer:     "schoolbus-test",
	}
}

func TestGenerateAndValidateToken(t *testing.T) {
	cfg := getTestConfig()

	token, expiresAt, err := GenerateToken("driver-1", "driver", cfg)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.InDelta(t, time.Now().Add(time.Hour).Unix(), expiresAt, 5)

	claims, err := ValidateToken(token, cfg)
	require.NoError(t, err)
	assert.Equal(t, "driver-1", claims.UserID)
	assert.Equal(t, "driver", claims.Role)
	assert.Equal(t, "schoolbus-test", claims.Issuer)
	assert.NotEmpty(t, claims.ID)
}

func TestValidateToken_Invalid(t *testing.T) {
	cfg := getTestConfig()

	sign := func(claims jwt.Claims, method jwt.SigningMethod, key interface{}) string {
		s, err := jwt.NewWithClaims(method, claims).SignedString(key)
		require.NoError(t, err)
		return s
	}
	valid := func() Claims {
		return Claims{
			UserID: "parent-1",
			Role:   "parent",
			RegisteredClaims: jwt.RegisteredClaims{
				Issuer:    cfg.Issuer,
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			},
		}
	}

	expired := valid()
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))
	otherIssuer := valid()
	otherIssuer.Issuer = "someone-else"
	noUser := valid()
	noUser.UserID = ""

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-token"},
		{"wrong secret", sign(valid(), jwt.SigningMethodHS256, []byte("other-secret"))},
		{"expired", sign(expired, jwt.SigningMethodHS256, []byte(cfg.Secret))},
		{"other issuer", sign(otherIssuer, jwt.SigningMethodHS256, []byte(cfg.Secret))},
		{"missing user", sign(noUser, jwt.SigningMethodHS256, []byte(cfg.Secret))},
		{"none algorithm", sign(valid(), jwt.SigningMethodNone, jwt.UnsafeAllowNoneSignatureType)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := ValidateToken(tt.token, cfg)
			assert.Nil(t, claims)
			assert.True(t, errors.Is(err, ErrInvalidToken), "got %v", err)
		})
	}
}

func TestTokenFromRequest(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		query   string
		want    string
		wantErr error
	}{
		{name: "bearer header", header: "Bearer abc", want: "abc"},
		{name: "lowercase scheme", header: "bearer abc", want: "abc"},
		{name: "query fallback", query: "?token=xyz", want: "xyz"},
		{name: "header wins", header: "Bearer abc", query: "?token=xyz", want: "abc"},
		{name: "basic auth", header: "Basic abc", wantErr: ErrInvalidToken},
		{name: "missing", wantErr: ErrMissingToken},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/ws"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			got, err := TokenFromRequest(req)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
