// Package store persists user credentials. Two backends exist: a flat
// file of username:password lines and a SQLite database. Passwords are
// stored in clear text; the store is a known-weak collaborator and is
// deliberately not hardened here.
package store

import "context"

// Backend names accepted in configuration.
const (
	BackendFile   = "file"
	BackendSQLite = "sqlite"
)

// CredentialStore is the persistence contract used by the
// authenticator. Load runs once at startup; Append runs on each
// first-time registration. Implementations must serialize Append so
// concurrent registrations of different names cannot interleave
// writes.
type CredentialStore interface {
	Load() (map[string]string, error)
	Append(ctx context.Context, username, password string) error
	Close() error
}
