package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// JWTConfig configures the JWT authenticator.
type JWTConfig struct {
	// Issuer is the expected token issuer (iss claim).
	Issuer string

	// Audience is the expected token audience (aud claim).
	Audience string

	// HeaderName is the header containing the token.
	// Default: "Authorization"
	HeaderName string

	// TokenPrefix is the prefix before the token in the header.
	// Default: "Bearer "
	TokenPrefix string

	// RolesClaim is the claim containing roles.
	// Default: "roles"
	RolesClaim string

	// Leeway tolerates clock skew between controller and worker.
	Leeway time.Duration
}

func (c *JWTConfig) applyDefaults() {
	if c.HeaderName == "" {
		c.HeaderName = "Authorization"
	}
	if c.TokenPrefix == "" {
		c.TokenPrefix = "Bearer "
	}
	if c.RolesClaim == "" {
		c.RolesClaim = "roles"
	}
}

// JWTAuthenticator validates HS256 tokens signed with a shared key.
type JWTAuthenticator struct {
	config JWTConfig
	key    []byte
}

// NewJWTAuthenticator creates a new JWT authenticator.
func NewJWTAuthenticator(config JWTConfig, key []byte) *JWTAuthenticator {
	config.applyDefaults()
	return &JWTAuthenticator{config: config, key: key}
}

// Name returns "jwt".
func (a *JWTAuthenticator) Name() string {
	return "jwt"
}

// Authenticate validates the bearer token carried in the request headers.
func (a *JWTAuthenticator) Authenticate(_ context.Context, req *AuthRequest) (*AuthResult, error) {
	if len(a.key) == 0 {
		return nil, ErrEmptyKey
	}

	header := req.GetHeader(a.config.HeaderName)
	tokenString, found := strings.CutPrefix(header, a.config.TokenPrefix)
	if header == "" || !found {
		return AuthFailure(ErrMissingCredentials, "jwt"), nil
	}
	tokenString = strings.TrimSpace(tokenString)

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithLeeway(a.config.Leeway),
		jwt.WithExpirationRequired(),
	}
	if a.config.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(a.config.Issuer))
	}
	if a.config.Audience != "" {
		opts = append(opts, jwt.WithAudience(a.config.Audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return a.key, nil
	}, opts...)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return AuthFailure(ErrTokenExpired, "jwt"), nil
	case errors.Is(err, jwt.ErrTokenMalformed):
		return AuthFailure(ErrTokenMalformed, "jwt"), nil
	case err != nil:
		return AuthFailure(ErrInvalidCredentials, "jwt"), nil
	}

	return AuthSuccess(a.buildIdentity(claims)), nil
}

func (a *JWTAuthenticator) buildIdentity(claims jwt.MapClaims) *Identity {
	identity := &Identity{
		Method: AuthMethodJWT,
		Claims: make(map[string]any, len(claims)),
	}
	for k, v := range claims {
		identity.Claims[k] = v
	}

	identity.Principal, _ = claims.GetSubject()

	if roles, ok := claims[a.config.RolesClaim].([]any); ok {
		identity.Roles = make([]string, 0, len(roles))
		for _, r := range roles {
			if s, ok := r.(string); ok {
				identity.Roles = append(identity.Roles, s)
			}
		}
	}

	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		identity.ExpiresAt = exp.Time
	}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		identity.IssuedAt = iat.Time
	}

	return identity
}

// SignerConfig describes the tokens a Signer mints.
type SignerConfig struct {
	Issuer   string
	Audience string
	Subject  string
	Roles    []string

	// TTL is the token lifetime. Default: 1 minute.
	TTL time.Duration
}

// Signer mints HS256 bearer tokens for calls to worker agents.
type Signer struct {
	config SignerConfig
	key    []byte
	now    func() time.Time
}

// NewSigner creates a signer. It fails if key is empty.
func NewSigner(key []byte, config SignerConfig) (*Signer, error) {
	if len(key) == 0 {
		return nil, ErrEmptyKey
	}
	if config.TTL <= 0 {
		config.TTL = time.Minute
	}
	return &Signer{config: config, key: key, now: time.Now}, nil
}

// Token returns a freshly signed token.
func (s *Signer) Token(context.Context) (string, error) {
	now := s.now()
	claims := jwt.MapClaims{
		"sub": s.config.Subject,
		"iat": jwt.NewNumericDate(now),
		"exp": jwt.NewNumericDate(now.Add(s.config.TTL)),
	}
	if s.config.Issuer != "" {
		claims["iss"] = s.config.Issuer
	}
	if s.config.Audience != "" {
		claims["aud"] = s.config.Audience
	}
	if len(s.config.Roles) > 0 {
		claims["roles"] = s.config.Roles
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
}

var _ Authenticator = (*JWTAuthenticator)(nil)
