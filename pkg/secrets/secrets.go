// Package secrets generates admin tokens and checks them against stored
// bcrypt hashes, so deployments only need to keep the hash in configuration.
package secrets

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"sync"

	"golang.org/x/crypto/bcrypt"

	dErrors "audittrail/pkg/domain-errors"
)

const tokenBytes = 32

// Generate returns a random URL-safe token.
func Generate() (string, error) {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "could not generate token")
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// Hash returns the bcrypt hash of token at the given cost. A cost of 0
// selects bcrypt.DefaultCost.
func Hash(token string, cost int) (string, error) {
	if token == "" {
		return "", dErrors.New(dErrors.CodeValidation, "token cannot be empty")
	}
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	hashed, err := bcrypt.GenerateFromPassword([]byte(token), cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", dErrors.New(dErrors.CodeValidation, "token is too long")
		}
		return "", dErrors.Wrap(err, dErrors.CodeInvalidInput, "could not hash token")
	}
	return string(hashed), nil
}

// HashedToken verifies presented tokens against one bcrypt hash. The digest
// of the last accepted token is remembered so repeated requests with the same
// token skip bcrypt.
type HashedToken struct {
	hash []byte

	mu       sync.RWMutex
	accepted [sha256.Size]byte
	cached   bool
}

// NewHashedToken rejects strings that are not bcrypt hashes.
func NewHashedToken(hash string) (*HashedToken, error) {
	if _, err := bcrypt.Cost([]byte(hash)); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "admin token hash is not a bcrypt hash")
	}
	return &HashedToken{hash: []byte(hash)}, nil
}

// Verify returns a CodeUnauthorized error when token does not match.
func (h *HashedToken) Verify(token string) error {
	if token == "" {
		return dErrors.New(dErrors.CodeUnauthorized, "token required")
	}
	digest := sha256.Sum256([]byte(token))

	h.mu.RLock()
	hit := h.cached && subtle.ConstantTimeCompare(digest[:], h.accepted[:]) == 1
	h.mu.RUnlock()
	if hit {
		return nil
	}

	if err := bcrypt.CompareHashAndPassword(h.hash, []byte(token)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return dErrors.New(dErrors.CodeUnauthorized, "invalid token")
		}
		return dErrors.Wrap(err, dErrors.CodeInternal, "could not verify token")
	}

	h.mu.Lock()
	h.accepted = digest
	h.cached = true
	h.mu.Unlock()
	return nil
}
