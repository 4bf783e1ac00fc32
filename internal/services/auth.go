package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/confide-ai/confide-backend/internal/logger"
	"github.com/confide-ai/confide-backend/internal/requestdata"
	"github.com/confide-ai/confide-backend/internal/store"
	"github.com/confide-ai/confide-backend/internal/types"
	"github.com/confide-ai/confide-backend/internal/utils"
)

// ErrUnauthorized covers every token defect: malformed, expired, bad
// signature, wrong audience or issuer. Callers translate it to 401 without
// leaking which check failed.
var ErrUnauthorized = errors.New("invalid or missing credentials")

// Claims is the subset of identity-provider claims the backend cares about.
type Claims struct {
	Subject     string
	Email       string
	DisplayName string
	Issuer      string
}

// TokenVerifier checks a raw bearer token and extracts its claims.
type TokenVerifier interface {
	Verify(ctx context.Context, tokenString string) (*Claims, error)
}

// Auth resolves bearer tokens to provisioned users.
type Auth interface {
	// SetContextFromToken verifies the token, provisions or refreshes the
	// matching user and returns a context carrying the request data.
	SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error)
}

type AuthService struct {
	log      *logger.Logger
	verifier TokenVerifier
	store    store.Store
}

func NewAuthService(log *logger.Logger, verifier TokenVerifier, st store.Store) *AuthService {
	return &AuthService{
		log:      log.With("service", "AuthService"),
		verifier: verifier,
		store:    st,
	}
}

func (as *AuthService) SetContextFromToken(ctx context.Context, tokenString string) (context.Context, error) {
	if tokenString == "" {
		return ctx, ErrUnauthorized
	}
	claims, err := as.verifier.Verify(ctx, tokenString)
	if err != nil {
		as.log.Debug("Token rejected", "error", err)
		return ctx, ErrUnauthorized
	}

	// A store failure must not mint a duplicate user for a known subject,
	// so it aborts the request instead of falling through to creation.
	user, err := as.store.UserGet(ctx, claims.Subject)
	if err != nil {
		return ctx, fmt.Errorf("failed to look up user: %w", err)
	}
	if user == nil {
		user = &types.User{
			ID:          uuid.New(),
			ExternalID:  claims.Subject,
			Email:       claims.Email,
			DisplayName: claims.DisplayName,
			CreatedAt:   time.Now(),
		}
		if err := as.store.UserSet(ctx, user); err != nil {
			return ctx, fmt.Errorf("failed to provision user: %w", err)
		}
		as.log.Info("Provisioned new user", "user_id", user.ID, "issuer", claims.Issuer)
	} else if drifted(user, claims) {
		user.Email = claims.Email
		user.DisplayName = claims.DisplayName
		if err := as.store.UserSet(ctx, user); err != nil {
			// Stale claims are tolerable, the identity itself is intact.
			as.log.Warn("Failed to refresh user claims", "user_id", user.ID, "error", err)
		}
	}

	return requestdata.WithRequestData(ctx, &requestdata.RequestData{
		TokenString: tokenString,
		UserID:      user.ID,
		ExternalID:  user.ExternalID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
	}), nil
}

func drifted(user *types.User, claims *Claims) bool {
	if claims.Email != "" && claims.Email != user.Email {
		return true
	}
	if claims.DisplayName != "" && claims.DisplayName != user.DisplayName {
		return true
	}
	return false
}

type oidcClaims struct {
	jwt.RegisteredClaims
	Email             string `json:"email"`
	PreferredUsername string `json:"preferred_username"`
	Name              string `json:"name"`
}

// JWKSVerifier validates tokens against an identity provider's published
// signing keys. Several issuers can be trusted at once so that tokens from
// both organization and consumer tenants are accepted.
type JWKSVerifier struct {
	log      *logger.Logger
	keys     keyfunc.Keyfunc
	audience string
	issuers  []string
}

func NewJWKSVerifier(log *logger.Logger) (*JWKSVerifier, error) {
	serviceLog := log.With("service", "JWKSVerifier")
	jwksURL := utils.GetEnv("OIDC_JWKS_URL", "", log)
	if jwksURL == "" {
		return nil, fmt.Errorf("missing OIDC_JWKS_URL environment variable")
	}
	audience := utils.GetEnv("OIDC_AUDIENCE", "", log)
	if audience == "" {
		return nil, fmt.Errorf("missing OIDC_AUDIENCE environment variable")
	}
	issuers := utils.GetEnvAsSlice("OIDC_ISSUERS", nil, log)
	if len(issuers) == 0 {
		return nil, fmt.Errorf("missing OIDC_ISSUERS environment variable")
	}
	keys, err := keyfunc.NewDefault([]string{jwksURL})
	if err != nil {
		return nil, fmt.Errorf("failed to load JWKS from %s: %w", jwksURL, err)
	}
	return &JWKSVerifier{
		log:      serviceLog,
		keys:     keys,
		audience: audience,
		issuers:  issuers,
	}, nil
}

func (v *JWKSVerifier) Verify(ctx context.Context, tokenString string) (*Claims, error) {
	claims := &oidcClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, v.keys.Keyfunc,
		jwt.WithValidMethods([]string{"RS256", "ES256"}),
		jwt.WithAudience(v.audience),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("token validation failed: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("token is not valid")
	}
	if claims.Subject == "" {
		return nil, fmt.Errorf("token has no subject")
	}
	if !v.trustedIssuer(claims.Issuer) {
		return nil, fmt.Errorf("untrusted issuer %q", claims.Issuer)
	}

	displayName := claims.Name
	if displayName == "" {
		displayName = claims.PreferredUsername
	}
	return &Claims{
		Subject:     claims.Subject,
		Email:       claims.Email,
		DisplayName: displayName,
		Issuer:      claims.Issuer,
	}, nil
}

func (v *JWKSVerifier) trustedIssuer(issuer string) bool {
	for _, trusted := range v.issuers {
		if issuer == trusted {
			return true
		}
	}
	return false
}
