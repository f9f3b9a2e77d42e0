package services

import (
	"strings"

	"golang.org/x/crypto/bcrypt"
)

// AuthService decides who may see the aggregate dashboard. Two paths
// grant access: an identity on the evaluator allow-list, or a successful
// password login that yields a bearer token.
type AuthService struct {
	evaluators   map[string]struct{}
	passwordHash string
}

// NewAuthService takes the evaluator allow-list (matched
// case-insensitively) and an optional bcrypt hash for the local login.
func NewAuthService(evaluators []string, passwordHash string) *AuthService {
	set := make(map[string]struct{}, len(evaluators))
	for _, e := range evaluators {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			set[e] = struct{}{}
		}
	}
	return &AuthService{evaluators: set, passwordHash: passwordHash}
}

// IsEvaluator reports whether identity is on the allow-list.
func (s *AuthService) IsEvaluator(identity string) bool {
	if IsAnonymousIdentity(identity) {
		return false
	}
	_, ok := s.evaluators[strings.ToLower(strings.TrimSpace(identity))]
	return ok
}

// Login checks the evaluator password against the configured hash.
func (s *AuthService) Login(password string) error {
	if s.passwordHash == "" {
		return NewInvalidError("evaluator login is not configured")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)); err != nil {
		return NewUnauthorizedError("wrong password")
	}
	return nil
}
