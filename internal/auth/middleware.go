package auth

import (
	"context"
	"fmt"
	"net/http"

	"ms-distribution/internal/logger"
	"ms-distribution/internal/utils"

	"github.com/coreos/go-oidc/v3/oidc"
)

type contextKey string

const principalKey contextKey = "principal"

// Principal is the authenticated caller.
type Principal struct {
	Subject string
	Roles   []string
}

func (p Principal) HasRole(roles ...string) bool {
	for _, have := range p.Roles {
		for _, want := range roles {
			if have == want {
				return true
			}
		}
	}
	return false
}

type Verifier interface {
	Verify(ctx context.Context, raw string) (Principal, error)
}

// OIDCVerifier validates tokens issued by an OpenID Connect provider. Roles
// are read from a top-level "role" claim or from Keycloak's realm_access.
type OIDCVerifier struct {
	verifier *oidc.IDTokenVerifier
}

func NewOIDCVerifier(ctx context.Context, issuer string) (*OIDCVerifier, error) {
	provider, err := oidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("failed to create OIDC provider: %w", err)
	}
	return &OIDCVerifier{
		verifier: provider.Verifier(&oidc.Config{SkipClientIDCheck: true}),
	}, nil
}

func (v *OIDCVerifier) Verify(ctx context.Context, raw string) (Principal, error) {
	idToken, err := v.verifier.Verify(ctx, raw)
	if err != nil {
		return Principal{}, fmt.Errorf("invalid token: %w", err)
	}

	var claims struct {
		Sub         string `json:"sub"`
		Role        string `json:"role"`
		RealmAccess struct {
			Roles []string `json:"roles"`
		} `json:"realm_access"`
	}
	if err := idToken.Claims(&claims); err != nil {
		return Principal{}, fmt.Errorf("failed to parse claims: %w", err)
	}

	roles := claims.RealmAccess.Roles
	if claims.Role != "" {
		roles = append(roles, claims.Role)
	}
	return Principal{Subject: claims.Sub, Roles: roles}, nil
}

// Middleware rejects requests without a valid bearer token and stores the
// principal on the request context.
func Middleware(v Verifier, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := ExtractTokenFromRequest(r)
			if err != nil {
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("unauthorized", err.Error(), nil))
				return
			}

			principal, err := v.Verify(r.Context(), raw)
			if err != nil {
				log.LogSecurity("AUTH_FAILED", fmt.Sprintf("%s %s: %v", r.Method, r.URL.Path, err))
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("unauthorized", "invalid or expired token", nil))
				return
			}

			ctx := context.WithValue(r.Context(), principalKey, principal)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole allows the request through only if the principal holds one of roles.
func RequireRole(log *logger.Logger, roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := FromContext(r.Context())
			if !ok {
				utils.WriteJSON(w, http.StatusUnauthorized, utils.ErrorResponse("unauthorized", "authentication required", nil))
				return
			}
			if !principal.HasRole(roles...) {
				log.LogSecurity("FORBIDDEN", fmt.Sprintf("%s with roles %v tried %s %s", principal.Subject, principal.Roles, r.Method, r.URL.Path))
				utils.WriteJSON(w, http.StatusForbidden, utils.ErrorResponse("forbidden", "insufficient permissions", map[string]interface{}{"required": roles}))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func FromContext(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey).(Principal)
	return p, ok
}

// UserID returns the authenticated subject, or "".
func UserID(ctx context.Context) string {
	p, _ := FromContext(ctx)
	return p.Subject
}
