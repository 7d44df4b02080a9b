// Package password hashes and verifies heirloom credentials with Argon2id.
//
// Hashes are stored as PHC strings ($argon2id$v=19$m=..,t=..,p=..$salt$key).
// Stored hashes are treated as untrusted: parsing is strict and Verify
// refuses parameters above twice the configured cost.
package password
