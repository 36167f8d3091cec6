package auth

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAuthDisabled       = errors.New("authentication is disabled")
)

// Authenticator validates operator credentials against the bcrypt hashes
// published in the users block of the configuration document and issues
// JWT bearer tokens on success.
type Authenticator struct {
	enabled       bool
	passwordHashes map[string][]byte
	jwtManager    *JWTManager
}

// NewAuthenticator builds an Authenticator from a username to bcrypt-hash
// map (the configuration document's users block). Authentication is
// enabled whenever at least one user is configured.
func NewAuthenticator(users map[string]string) *Authenticator {
	hashes := make(map[string][]byte, len(users))
	for username, hash := range users {
		hashes[username] = []byte(hash)
	}

	return &Authenticator{
		enabled:        len(hashes) > 0,
		passwordHashes: hashes,
		jwtManager:     NewJWTManager(),
	}
}

// IsEnabled returns whether authentication is enabled
func (a *Authenticator) IsEnabled() bool {
	return a.enabled
}

// Authenticate validates credentials and returns a JWT token
func (a *Authenticator) Authenticate(username, password string) (string, int64, error) {
	if !a.enabled {
		return "", 0, ErrAuthDisabled
	}

	hash, ok := a.passwordHashes[username]
	if !ok {
		return "", 0, ErrInvalidCredentials
	}

	if err := bcrypt.CompareHashAndPassword(hash, []byte(password)); err != nil {
		return "", 0, ErrInvalidCredentials
	}

	token, expiresAt, err := a.jwtManager.GenerateToken(username)
	if err != nil {
		return "", 0, err
	}

	return token, expiresAt.Unix(), nil
}

// ValidateToken validates a JWT token
func (a *Authenticator) ValidateToken(token string) (*Claims, error) {
	return a.jwtManager.ValidateToken(token)
}

// JWTManager returns the JWT manager
func (a *Authenticator) JWTManager() *JWTManager {
	return a.jwtManager
}

// HashPassword creates a bcrypt hash of a password (utility function)
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
