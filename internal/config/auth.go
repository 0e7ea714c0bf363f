package config

import "fmt"

// AuthMode selects how the /v1 API authenticates callers
type AuthMode string

const (
	// AuthModeAnonymous disables authentication
	AuthModeAnonymous AuthMode = "anonymous"

	// AuthModeJWT requires an HMAC signed bearer token
	AuthModeJWT AuthMode = "jwt"

	// JWTSecretEnv is the environment variable holding the token signing secret
	JWTSecretEnv = "LISTSYNC_JWT_SECRET"
)

// AuthConfig defines authentication for the status and trigger endpoints.
// Health, readiness, version and metrics are always public.
type AuthConfig struct {
	// Mode is anonymous (default) or jwt
	Mode AuthMode   `yaml:"mode,omitempty"`
	JWT  *JWTConfig `yaml:"jwt,omitempty"`
}

// JWTConfig defines how bearer tokens are validated in jwt mode
type JWTConfig struct {
	// SecretFile holds the HS256 signing secret. Falls back to LISTSYNC_JWT_SECRET.
	SecretFile string `yaml:"secretFile,omitempty"`

	// Issuer is the required "iss" claim, when set
	Issuer string `yaml:"issuer,omitempty"`

	// Audience is the required "aud" claim, when set
	Audience string `yaml:"audience,omitempty"`

	// Realm is reported in WWW-Authenticate challenges
	Realm string `yaml:"realm,omitempty"`
}

// GetMode returns the auth mode, defaulting to anonymous
func (a *AuthConfig) GetMode() AuthMode {
	if a == nil || a.Mode == "" {
		return AuthModeAnonymous
	}
	return a.Mode
}

// GetSecret returns the signing secret from SecretFile or LISTSYNC_JWT_SECRET
func (j *JWTConfig) GetSecret() (string, error) {
	return readSecret(j.SecretFile, JWTSecretEnv)
}

func (a *AuthConfig) validate() error {
	switch a.GetMode() {
	case AuthModeAnonymous:
		return nil
	case AuthModeJWT:
		if a.JWT == nil {
			return fmt.Errorf("auth.jwt is required when auth.mode is %q", AuthModeJWT)
		}
		return nil
	default:
		return fmt.Errorf("auth.mode must be %q or %q, got %q", AuthModeAnonymous, AuthModeJWT, a.Mode)
	}
}
