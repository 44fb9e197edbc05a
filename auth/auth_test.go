// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package auth

import (
	"errors"
	"testing"
)

func TestGenerateID(t *testing.T) {
	tests := []struct {
		name    string
		byteLen int
		wantLen int // hex encoded length = byteLen * 2
	}{
		{"8 bytes", 8, 16},
		{"16 bytes", 16, 32},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, err := GenerateID(tt.byteLen)
			if err != nil {
				t.Fatalf("GenerateID() error = %v", err)
			}
			if len(id) != tt.wantLen {
				t.Errorf("GenerateID() length = %d, want %d", len(id), tt.wantLen)
			}
			for _, c := range id {
				if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
					t.Errorf("GenerateID() contains invalid hex char: %c", c)
				}
			}
		})
	}

	// Test randomness - two IDs should be different
	id1, _ := GenerateID(16)
	id2, _ := GenerateID(16)
	if id1 == id2 {
		t.Error("GenerateID() produced identical IDs")
	}
}

func TestGenerateRelayKey(t *testing.T) {
	salt := "test-salt"

	key1 := GenerateRelayKey("ext-abc", salt)
	key2 := GenerateRelayKey("ext-abc", salt)
	if key1 != key2 {
		t.Error("GenerateRelayKey() should be deterministic")
	}

	if GenerateRelayKey("ext-xyz", salt) == key1 {
		t.Error("different extensions should produce different keys")
	}
	if GenerateRelayKey("ext-abc", "other-salt") == key1 {
		t.Error("different salts should produce different keys")
	}

	// URL-safe base64 without padding
	for _, c := range key1 {
		if c == '=' || c == '+' || c == '/' {
			t.Errorf("GenerateRelayKey() contains non URL-safe char: %c", c)
		}
	}
}

func TestValidateRelayKey(t *testing.T) {
	salt := "test-salt"
	valid := GenerateRelayKey("ext-abc", salt)

	tests := []struct {
		name        string
		extensionID string
		key         string
		wantErr     bool
	}{
		{"valid key", "ext-abc", valid, false},
		{"wrong extension", "ext-xyz", valid, true},
		{"tampered key", "ext-abc", valid[:len(valid)-1] + "x", true},
		{"empty key", "ext-abc", "", true},
		{"empty extension", "", GenerateRelayKey("", salt), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateRelayKey(tt.extensionID, tt.key, salt)
			if (err != nil) != tt.wantErr {
				t.Errorf("ValidateRelayKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidRelayKey) {
				t.Errorf("ValidateRelayKey() error = %v, want ErrInvalidRelayKey", err)
			}
		})
	}
}
