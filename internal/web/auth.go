package web

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"

	"github.com/roach88/taskmarket/internal/domain"
	"github.com/roach88/taskmarket/internal/market"
)

const userKey = "user"

// claims is the token payload.
type claims struct {
	UserID string `json:"user_id"`
	jwt.RegisteredClaims
}

// issueToken signs a token for userID valid for the configured TTL.
func (s *Server) issueToken(userID string) (string, time.Time, error) {
	now := s.market.Now()
	expires := now.Add(s.cfg.TokenTTL)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims{
		UserID: userID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
	})
	signed, err := token.SignedString([]byte(s.cfg.JWTSecret))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign token: %w", err)
	}
	return signed, expires, nil
}

// parseToken verifies raw and returns the user id it names.
func (s *Server) parseToken(raw string) (string, error) {
	var c claims
	_, err := jwt.ParseWithClaims(raw, &c,
		func(*jwt.Token) (any, error) { return []byte(s.cfg.JWTSecret), nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.market.Now),
	)
	if err != nil {
		return "", err
	}
	if c.UserID == "" {
		return "", errors.New("token has no user_id")
	}
	return c.UserID, nil
}

// requireAuth rejects requests without a valid bearer token for an
// existing user, and stores that user in the context.
func (s *Server) requireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abort(c, http.StatusUnauthorized, market.CodeNotLoggedIn, "authorization header required")
			return
		}

		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || raw == "" {
			abort(c, http.StatusUnauthorized, market.CodeNotLoggedIn, "invalid authorization format")
			return
		}

		userID, err := s.parseToken(raw)
		if err != nil {
			abort(c, http.StatusUnauthorized, market.CodeNotLoggedIn, "invalid token")
			return
		}

		user, err := s.market.Users.Get(userID)
		if err != nil {
			abort(c, http.StatusUnauthorized, market.CodeNotLoggedIn, "token user no longer exists")
			return
		}

		c.Set(userKey, user)
		c.Next()
	}
}

// currentUser returns the user stored by requireAuth.
func currentUser(c *gin.Context) domain.User {
	return c.MustGet(userKey).(domain.User)
}
