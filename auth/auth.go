// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidRelayKey = errors.New("invalid relay key")
	ErrEmptyToken      = errors.New("empty token")
)

// GenerateID creates a random hex ID of the specified byte length
func GenerateID(byteLen int) (string, error) {
	b := make([]byte, byteLen)
	_, err := rand.Read(b)
	if err != nil {
		return "", fmt.Errorf("failed to generate random ID: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateRelayKey creates an HMAC-based key for an extension install.
// This is deterministic and verifiable
func GenerateRelayKey(extensionID, salt string) string {
	h := hmac.New(sha256.New, []byte(salt))
	h.Write([]byte(extensionID))
	sum := h.Sum(nil)
	// Use URL-safe base64 and trim padding for cleaner keys
	return strings.TrimRight(base64.URLEncoding.EncodeToString(sum), "=")
}

// ValidateRelayKey checks if the provided relay key is valid for the extension
func ValidateRelayKey(extensionID, relayKey, salt string) error {
	if extensionID == "" || relayKey == "" {
		return ErrInvalidRelayKey
	}
	expected := GenerateRelayKey(extensionID, salt)
	if !hmac.Equal([]byte(relayKey), []byte(expected)) {
		return ErrInvalidRelayKey
	}
	return nil
}
