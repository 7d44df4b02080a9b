// Package session implements heirloom's session lifecycle.
//
// Resolver turns the access-token cookie of a request into a Session:
// Authenticated, Degraded (token verified but the user directory could not
// be read) or Unauthenticated with a Reason the caller branches on.
//
// Controller issues sessions (Login, Authenticate), rotates refresh tokens
// (Rotate) and revokes them (Logout). Refresh tokens are signed JWS values
// whose hashes are persisted through refresh.Store; rotation keeps the token
// family and revokes exactly one record per call.
//
// Transport concerns beyond cookies live in the api package.
package session
