// internal/auth/session.go
package auth

import (
	"crypto/ed25519"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jason-s-yu/uno/internal/models"
)

// CookieName is the cookie carrying the session token.
const CookieName = "auth_token"

// ErrNoToken is returned when a request carries neither the cookie nor a bearer token.
var ErrNoToken = errors.New("no auth token")

// privateKey and publicKey are used for signing and verifying JWT tokens.
var (
	privateKey ed25519.PrivateKey
	publicKey  ed25519.PublicKey

	// tokenTTL is how long issued tokens stay valid; 0 means no exp claim.
	tokenTTL time.Duration
)

// parseTokenExpireTime accepts a Go duration, or "never" / "0" / "" for tokens that never expire.
func parseTokenExpireTime(duration string) (time.Duration, error) {
	if duration == "never" || duration == "0" || duration == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(duration)
	if err != nil {
		return 0, fmt.Errorf("failed to parse token expire time: %w", err)
	}
	return d, nil
}

// Init generates a fresh ed25519 key pair at runtime and sets the token expiration.
func Init(expire string) error {
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		return fmt.Errorf("failed to generate ed25519 key pair: %w", err)
	}
	ttl, err := parseTokenExpireTime(expire)
	if err != nil {
		return err
	}
	publicKey, privateKey, tokenTTL = pub, priv, ttl
	return nil
}

// InitFromPath reads ed25519 private/public keys from file and sets the token expiration.
func InitFromPath(privatePath, publicPath, expire string) error {
	privateKeyData, err := os.ReadFile(privatePath)
	if err != nil {
		return fmt.Errorf("failed to read private key file: %w", err)
	}
	publicKeyData, err := os.ReadFile(publicPath)
	if err != nil {
		return fmt.Errorf("failed to read public key file: %w", err)
	}
	if len(privateKeyData) != ed25519.PrivateKeySize || len(publicKeyData) != ed25519.PublicKeySize {
		return errors.New("invalid ed25519 key size")
	}
	ttl, err := parseTokenExpireTime(expire)
	if err != nil {
		return err
	}

	privateKey = ed25519.PrivateKey(privateKeyData)
	publicKey = ed25519.PublicKey(publicKeyData)
	tokenTTL = ttl
	return nil
}

// CreateJWT creates a signed JWT token with "sub" = user id and "name" = username.
func CreateJWT(user models.User) (string, error) {
	claims := jwt.MapClaims{
		"sub":  user.ID.String(),
		"name": user.Username,
		"iat":  time.Now().Unix(),
	}
	if tokenTTL > 0 {
		claims["exp"] = time.Now().Add(tokenTTL).Unix()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	return token.SignedString(privateKey)
}

// AuthenticateJWT verifies a JWT string and returns the user it identifies.
func AuthenticateJWT(tokenString string) (models.User, error) {
	t, err := jwt.Parse(tokenString, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodEd25519); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return publicKey, nil
	})
	if err != nil {
		return models.User{}, fmt.Errorf("jwt parse error: %w", err)
	}
	if !t.Valid {
		return models.User{}, fmt.Errorf("invalid token")
	}

	claims, ok := t.Claims.(jwt.MapClaims)
	if !ok {
		return models.User{}, fmt.Errorf("invalid jwt claims")
	}
	sub, ok := claims["sub"].(string)
	if !ok {
		return models.User{}, fmt.Errorf("missing sub in jwt")
	}
	id, err := uuid.Parse(sub)
	if err != nil {
		return models.User{}, fmt.Errorf("invalid user id in token: %w", err)
	}
	name, _ := claims["name"].(string)

	return models.User{ID: id, Username: name}, nil
}

// TokenFromRequest returns the session token from the auth cookie or an
// "Authorization: Bearer" header.
func TokenFromRequest(r *http.Request) (string, error) {
	if c, err := r.Cookie(CookieName); err == nil && c.Value != "" {
		return c.Value, nil
	}
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		if tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer ")); tok != "" {
			return tok, nil
		}
	}
	return "", ErrNoToken
}

// UserFromRequest authenticates the request's session token.
func UserFromRequest(r *http.Request) (models.User, error) {
	tok, err := TokenFromRequest(r)
	if err != nil {
		return models.User{}, err
	}
	return AuthenticateJWT(tok)
}
