// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

/*
Package auth provides auth token storage and key generation utilities.

# Token Providers

The bridge's get-auth-token and set-auth-token messages go through a
TokenProvider. Tokens are stored per subject (the handshake install id,
or the session origin when no install id was sent):

	tokens := auth.NewCachedTokens(auth.NewSQLTokens(db), time.Minute)
	err := tokens.SetToken(ctx, subject, "tok123")
	tok, ok, err := tokens.GetToken(ctx, subject)

Implementations:

  - MemoryTokens: process memory, for tests and single-instance setups
  - SQLTokens: the auth_token table
  - CachedTokens: ttlcache read-through in front of another provider

# Relay Keys

Relay keys use HMAC-SHA256 to create deterministic, verifiable keys for
extension installs calling the relay endpoints:

	relayKey := auth.GenerateRelayKey(extensionID, salt)
	err := auth.ValidateRelayKey(extensionID, relayKey, salt)

The key is URL-safe base64 encoded without padding. Since it's
deterministic, validation does not need to store the key.

# ID Generation

Random hex IDs for sessions:

	id, err := auth.GenerateID(8)  // 16 hex characters
*/
package auth
