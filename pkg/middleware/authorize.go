package middleware

import (
	"net/http"
	"slices"
	"strings"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/menusam/listing-moderation/pkg/composables"
)

var (
	ErrMissingToken = errors.New("missing bearer token")
	ErrInvalidToken = errors.New("invalid token")
)

// Claims carried by moderator access tokens. Either role or roles may be set.
type Claims struct {
	Role  string   `json:"role,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

type AuthorizeOptions struct {
	Secret []byte
	Issuer string
	// Roles allowed through. Comparison is case-insensitive.
	Roles []string
}

// ParseToken validates an HS256 token and resolves the caller.
func ParseToken(raw string, opts AuthorizeOptions) (*composables.User, []string, error) {
	if len(opts.Secret) == 0 {
		return nil, nil, errors.Wrap(ErrInvalidToken, "no signing secret configured")
	}
	parserOpts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if opts.Issuer != "" {
		parserOpts = append(parserOpts, jwt.WithIssuer(opts.Issuer))
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return opts.Secret, nil
	}, parserOpts...)
	if err != nil {
		return nil, nil, errors.Wrap(ErrInvalidToken, err.Error())
	}
	if !token.Valid {
		return nil, nil, ErrInvalidToken
	}
	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, nil, errors.Wrap(ErrInvalidToken, "subject is not a uuid")
	}

	roles := make([]string, 0, len(claims.Roles)+1)
	if claims.Role != "" {
		roles = append(roles, strings.ToLower(claims.Role))
	}
	for _, role := range claims.Roles {
		roles = append(roles, strings.ToLower(role))
	}
	user := &composables.User{ID: id}
	if len(roles) > 0 {
		user.Role = roles[0]
	}
	return user, roles, nil
}

func bearer(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", ErrMissingToken
	}
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
		return "", ErrMissingToken
	}
	return strings.TrimSpace(token), nil
}

// Authorize admits only callers holding one of the configured roles.
// Unauthenticated requests get 401, authenticated non-moderators get 403.
func Authorize(opts AuthorizeOptions) mux.MiddlewareFunc {
	allowed := make([]string, 0, len(opts.Roles))
	for _, role := range opts.Roles {
		allowed = append(allowed, strings.ToLower(role))
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearer(r)
			if err != nil {
				writeJSONError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", err.Error())
				return
			}
			user, roles, err := ParseToken(raw, opts)
			if err != nil {
				composables.UseLogger(r.Context()).WithError(err).Debug("rejecting token")
				writeJSONError(w, r, http.StatusUnauthorized, "UNAUTHENTICATED", ErrInvalidToken.Error())
				return
			}
			idx := slices.IndexFunc(roles, func(role string) bool { return slices.Contains(allowed, role) })
			if idx < 0 {
				writeJSONError(w, r, http.StatusForbidden, "FORBIDDEN", "moderator role required")
				return
			}
			user.Role = roles[idx]
			next.ServeHTTP(w, r.WithContext(composables.WithUser(r.Context(), user)))
		})
	}
}
