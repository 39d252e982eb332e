package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/daimoniac/scorecard/internal/errors"
	"github.com/daimoniac/scorecard/internal/types"
)

type userKey struct{}

// Claims are the JWT claims the API reads
type Claims struct {
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// authMiddleware verifies the bearer token and resolves its email to a catalog user
func (s *APIServer) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := s.authenticate(r)
		if err != nil {
			s.logger.Debug("authentication failed",
				"path", r.URL.Path,
				"error", err)
			s.respondError(w, http.StatusUnauthorized, err.Error())
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, user)))
	})
}

func (s *APIServer) authenticate(r *http.Request) (*types.User, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return nil, errors.ErrUnauthorized
	}
	raw := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		return []byte(s.config.JWTSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrUnauthorized, err)
	}
	if claims.Email == "" {
		return nil, fmt.Errorf("%w: token has no email claim", errors.ErrUnauthorized)
	}

	user, ok := s.deps.Users.User(claims.Email)
	if !ok {
		return nil, fmt.Errorf("%w: no user found for %s", errors.ErrUnauthorized, claims.Email)
	}
	return user, nil
}

// UserFrom returns the authenticated user stored on ctx
func UserFrom(ctx context.Context) *types.User {
	user, _ := ctx.Value(userKey{}).(*types.User)
	return user
}

// SignToken issues an HS256 token for email
func SignToken(secret, email string) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{Email: email})
	return token.SignedString([]byte(secret))
}
