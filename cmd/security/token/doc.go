// Package token signs and verifies heirloom's access and refresh tokens and
// derives the digest under which refresh tokens are stored.
//
// Tokens are compact HS256 JWS values. Access and refresh tokens are signed
// with separate keys and carry a "type" discriminator so neither can be
// accepted in place of the other.
//
// Keys are injected through Config; the package reads no environment.
// Storage digests are stable 64-char hex: SHA-256(token) by default, or
// HMAC-SHA256(token, pepper) when a storage pepper is configured.
package token
