package auth

import (
	"buildtrack-backend/internal/models"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "buildtrack-backend"

// ErrInvalidToken is returned for any token that cannot be resolved to a
// principal: malformed, expired, badly signed, or missing claims.
var ErrInvalidToken = errors.New("invalid session token")

// --- JWT Claims ---

// CustomClaims includes standard JWT claims plus the session principal.
type CustomClaims struct {
	UserID uuid.UUID   `json:"user_id"`
	Role   models.Role `json:"role"`
	Name   string      `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Principal is the authenticated participant bound to a request or a
// realtime connection.
type Principal struct {
	UserID uuid.UUID
	Role   models.Role
	Name   string
}

// NewAccessToken generates a new JWT access token for a principal.
func NewAccessToken(p Principal, jwtSecret string, expiration time.Duration) (string, error) {
	now := time.Now()
	claims := CustomClaims{
		UserID: p.UserID,
		Role:   p.Role,
		Name:   p.Name,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiration)),
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			Issuer:    issuer,
			Subject:   p.UserID.String(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := token.SignedString([]byte(jwtSecret))
	if err != nil {
		return "", fmt.Errorf("error signing token for user %s: %w", p.UserID, err)
	}
	return signedToken, nil
}

// SessionResolver turns bearer tokens into principals. Both the REST
// middleware and the realtime gateway authenticate through it.
type SessionResolver struct {
	secret []byte
}

func NewSessionResolver(jwtSecret string) *SessionResolver {
	return &SessionResolver{secret: []byte(jwtSecret)}
}

// Authenticate validates a token and returns its principal. Every failure
// wraps ErrInvalidToken.
func (r *SessionResolver) Authenticate(tokenString string) (Principal, error) {
	claims := &CustomClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return r.secret, nil
	}, jwt.WithIssuer(issuer))
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return Principal{}, fmt.Errorf("%w: token has expired", ErrInvalidToken)
		case errors.Is(err, jwt.ErrTokenMalformed):
			return Principal{}, fmt.Errorf("%w: malformed token", ErrInvalidToken)
		default:
			return Principal{}, fmt.Errorf("%w: %v", ErrInvalidToken, err)
		}
	}
	if !token.Valid {
		return Principal{}, ErrInvalidToken
	}

	if claims.UserID == uuid.Nil {
		return Principal{}, fmt.Errorf("%w: missing user id", ErrInvalidToken)
	}
	if !claims.Role.Valid() {
		return Principal{}, fmt.Errorf("%w: unknown role %q", ErrInvalidToken, claims.Role)
	}

	return Principal{UserID: claims.UserID, Role: claims.Role, Name: claims.Name}, nil
}

// BearerToken extracts the token of an "Authorization: Bearer <token>"
// header value. ok is false for a missing or malformed header.
func BearerToken(header string) (token string, ok bool) {
	parts := strings.Fields(header)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	return parts[1], true
}
