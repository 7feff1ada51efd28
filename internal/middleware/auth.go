package middleware

import (
	"errors"
	"strconv"
	"strings"

	"sccompanion/internal/config"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrMissingToken means the request carried no bearer token.
	ErrMissingToken = errors.New("authorization header required")
	// ErrMalformedHeader means the Authorization header was not "Bearer <token>".
	ErrMalformedHeader = errors.New("invalid authorization header format")
	// ErrInvalidToken covers bad signatures, expiry and bad claims.
	ErrInvalidToken = errors.New("invalid or expired token")
)

// Claims are the JWT claims issued at login.
type Claims struct {
	UserIDClaim uint   `json:"userId"`
	Handle      string `json:"handle"`
	Email       string `json:"email"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// UserID parses the numeric subject.
func (c *Claims) UserID() (uint, error) {
	id, err := strconv.ParseUint(c.Subject, 10, 32)
	if err != nil || id == 0 {
		return 0, ErrInvalidToken
	}
	return uint(id), nil
}

// BearerToken reads the token from the Authorization header. When allowQuery
// is set, a "token" query parameter is accepted first, which browsers need
// for WebSocket upgrades.
func BearerToken(c *fiber.Ctx, allowQuery bool) (string, error) {
	if allowQuery {
		if tok := c.Query("token"); tok != "" {
			return tok, nil
		}
	}

	header := c.Get(fiber.HeaderAuthorization)
	if header == "" {
		return "", ErrMissingToken
	}
	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", ErrMalformedHeader
	}
	return parts[1], nil
}

// ParseToken verifies signature, expiry, issuer and audience and returns
// the claims.
func ParseToken(cfg *config.Config, raw string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.JWTIssuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.JWTIssuer))
	}
	if cfg.JWTAudience != "" {
		opts = append(opts, jwt.WithAudience(cfg.JWTAudience))
	}

	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return []byte(cfg.JWTSecret), nil
	}, opts...)
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := claims.UserID(); err != nil {
		return nil, err
	}
	return claims, nil
}
