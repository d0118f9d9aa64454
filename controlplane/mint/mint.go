// Package mint issues pairing credentials: a short pair identifier that names
// a session and a one-time bearer token that gates entry to it.
package mint

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// PairIDBytes is the entropy behind a pair identifier (6 hex chars).
	PairIDBytes = 3
	// TokenBytes is the entropy behind a bearer token (32 hex chars).
	TokenBytes = 16

	// maxPairIDAttempts bounds collision retries. With 24 bits of id space a
	// handful of retries is already far beyond what a full registry needs.
	maxPairIDAttempts = 32
)

var ErrPairIDSpaceExhausted = errors.New("pair id space exhausted")

// Credentials is the output of one mint operation.
type Credentials struct {
	PairID string `json:"pairId"`
	Token  string `json:"token"`
}

// Generate mints fresh credentials. taken reports whether a candidate pair
// identifier already names a live session; Generate retries until it finds a
// free one.
func Generate(taken func(string) bool) (Credentials, error) {
	for attempt := 0; attempt < maxPairIDAttempts; attempt++ {
		id, err := randomHex(PairIDBytes)
		if err != nil {
			return Credentials{}, fmt.Errorf("mint pair id: %w", err)
		}
		if taken != nil && taken(id) {
			continue
		}
		token, err := randomHex(TokenBytes)
		if err != nil {
			return Credentials{}, fmt.Errorf("mint token: %w", err)
		}
		return Credentials{PairID: id, Token: token}, nil
	}
	return Credentials{}, ErrPairIDSpaceExhausted
}

// ValidPairID reports whether s has the shape of a minted pair identifier.
func ValidPairID(s string) bool {
	if len(s) != PairIDBytes*2 {
		return false
	}
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') {
			return false
		}
	}
	return true
}

func randomHex(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
