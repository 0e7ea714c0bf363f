package auth

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listsync/listsync/internal/config"
)

func TestNewAuthMiddleware(t *testing.T) {
	t.Parallel()

	secretFile := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(secretFile, []byte(testSecret), 0o600))

	tests := []struct {
		name    string
		cfg     *config.AuthConfig
		wantErr string
	}{
		{name: "nil config is anonymous"},
		{name: "anonymous", cfg: &config.AuthConfig{Mode: config.AuthModeAnonymous}},
		{
			name: "jwt",
			cfg: &config.AuthConfig{
				Mode: config.AuthModeJWT,
				JWT:  &config.JWTConfig{SecretFile: secretFile},
			},
		},
		{
			name:    "jwt without settings",
			cfg:     &config.AuthConfig{Mode: config.AuthModeJWT},
			wantErr: "jwt configuration is required",
		},
		{
			name: "jwt with unreadable secret",
			cfg: &config.AuthConfig{
				Mode: config.AuthModeJWT,
				JWT:  &config.JWTConfig{SecretFile: filepath.Join(t.TempDir(), "missing")},
			},
			wantErr: "failed to read jwt secret",
		},
		{
			name:    "unsupported mode",
			cfg:     &config.AuthConfig{Mode: "oauth"},
			wantErr: "unsupported auth mode",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			mw, err := NewAuthMiddleware(tt.cfg)
			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, mw)
		})
	}
}

func TestNewAuthMiddleware_JWTEndToEnd(t *testing.T) {
	t.Parallel()

	secretFile := filepath.Join(t.TempDir(), "secret")
	require.NoError(t, os.WriteFile(secretFile, []byte(testSecret+"\n"), 0o600))

	mw, err := NewAuthMiddleware(&config.AuthConfig{
		Mode: config.AuthModeJWT,
		JWT: &config.JWTConfig{
			SecretFile: secretFile,
			Issuer:     "https://issuer.example.com",
			Audience:   "listsync",
			Realm:      "ops",
		},
	})
	require.NoError(t, err)

	handler := mw(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusAccepted)
	}))

	token := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"sub": "ops",
		"iss": "https://issuer.example.com",
		"aud": "listsync",
		"exp": time.Now().Add(time.Minute).Unix(),
	})

	req := httptest.NewRequest(http.MethodPost, "/v1/sync", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusAccepted, rec.Code)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/sync", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Header().Get("WWW-Authenticate"), `realm="ops"`)
}
