package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

// tokenTTL is how long an issued node token stays valid.
const tokenTTL = 24 * time.Hour

var (
	// ErrNotInitialized is returned when token operations run before Init.
	ErrNotInitialized = errors.New("auth not initialized, missing JWT secret")
	// ErrTokenInvalid is returned for tokens that parse but fail validation.
	ErrTokenInvalid = errors.New("invalid token")
)

var secret []byte

// Claims identifies the frontend client a node token was issued to.
type Claims struct {
	Client string `json:"client"`
	jwt.RegisteredClaims
}

// Init stores the signing secret for this process. Must run before any
// token is generated or parsed.
func Init(jwtSecret string) error {
	if jwtSecret == "" {
		return ErrNotInitialized
	}
	secret = []byte(jwtSecret)
	return nil
}

// HashPassword generates a bcrypt hash of the password.
func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(bytes), nil
}

// VerifyPassword compares a password with a bcrypt hash.
func VerifyPassword(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// GenerateToken issues a signed node token for the named client.
func GenerateToken(client string) (string, error) {
	if len(secret) == 0 {
		return "", ErrNotInitialized
	}
	now := time.Now()
	claims := &Claims{
		Client: client,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   client,
			Issuer:    "1qdj",
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ParseToken validates a node token and returns its claims.
func ParseToken(tokenString string) (*Claims, error) {
	if len(secret) == 0 {
		return nil, ErrNotInitialized
	}
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", err)
	}
	if !token.Valid {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
