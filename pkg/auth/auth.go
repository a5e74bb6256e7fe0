// Package auth implements registration, login and credential verification.
// Login issues an opaque token; the realtime handshake and the HTTP write
// path verify it through Verify.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"github.com/boardcast/boardcast/pkg/database"
	"github.com/boardcast/boardcast/pkg/sanitize"
)

var (
	// ErrInvalidCredentials indicates an unknown username or wrong password.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrUsernameInvalid indicates a username that is empty after sanitization.
	ErrUsernameInvalid = errors.New("username invalid")
	// ErrUsernameTooLong indicates a username over the length limit.
	ErrUsernameTooLong = errors.New("username too long")
	// ErrPasswordRequired indicates a missing password.
	ErrPasswordRequired = errors.New("password required")
)

// MaxUsernameLength is enforced on the pre-sanitization input.
const MaxUsernameLength = 20

// Service handles account registration and credential verification.
type Service struct {
	db *database.DB
}

// NewService creates an auth service backed by the given store.
func NewService(db *database.DB) *Service {
	return &Service{db: db}
}

// Register validates and sanitizes the username, hashes the password and
// persists the new user.
func (s *Service) Register(username, password string) (*database.User, error) {
	if password == "" {
		return nil, ErrPasswordRequired
	}
	if utf8.RuneCountInString(username) > MaxUsernameLength {
		return nil, ErrUsernameTooLong
	}

	clean, err := sanitize.Clean(username)
	if err != nil {
		return nil, ErrUsernameInvalid
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	return s.db.CreateUser(clean, string(hash))
}

// Login checks the password and issues a fresh credential token.
func (s *Service) Login(username, password string) (string, error) {
	user, err := s.db.GetUserByName(username)
	if errors.Is(err, database.ErrUserNotFound) {
		return "", ErrInvalidCredentials
	}
	if err != nil {
		return "", err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}

	token, err := newToken()
	if err != nil {
		return "", err
	}
	if err := s.db.InsertToken(token, user.ID); err != nil {
		return "", err
	}
	return token, nil
}

// Verify resolves a credential token to its user, or reports that the token
// is unknown.
func (s *Service) Verify(token string) (*database.User, bool) {
	if token == "" {
		return nil, false
	}
	user, err := s.db.LookupToken(token)
	if err != nil {
		return nil, false
	}
	return user, true
}

func newToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
