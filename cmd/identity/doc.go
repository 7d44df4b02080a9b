// Package identity is heirloom's read-side view of user accounts.
//
// Accounts are created and managed by the surrounding application; the
// authentication core only looks users up by ID or email through Directory.
// Postgres and SQLite implementations are provided, plus CreateUser and
// BumpSessionVersion for seeding and for forcing outstanding access tokens
// to be re-issued.
package identity
