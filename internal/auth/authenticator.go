// Package auth validates login attempts against the credential store
// and performs first-use auto-registration.
package auth

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"chatrelay/internal/store"
)

// Outcome classifies one authentication attempt.
type Outcome int

const (
	// Rejected means the username is known and the password does not
	// match. The caller must terminate the connection; there is no
	// retry on the same connection.
	Rejected Outcome = iota
	// Accepted means the username is known and the password matches.
	Accepted
	// Registered means the username was unknown and the pair has been
	// stored as a new user.
	Registered
)

func (o Outcome) String() string {
	switch o {
	case Rejected:
		return "rejected"
	case Accepted:
		return "accepted"
	case Registered:
		return "registered"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Authenticator checks credentials against an in-memory mirror of the
// credential store, loaded once at startup. Registrations update both
// the mirror and the persistent store under one mutex, so concurrent
// first-time registrations are serialized.
type Authenticator struct {
	store store.CredentialStore
	log   *zap.Logger

	mu    sync.Mutex
	users map[string]string
}

// New loads the credential store and returns an authenticator over it.
func New(credStore store.CredentialStore, log *zap.Logger) (*Authenticator, error) {
	users, err := credStore.Load()
	if err != nil {
		return nil, fmt.Errorf("load credential store: %w", err)
	}
	log.Info("credential store loaded", zap.Int("users", len(users)))

	return &Authenticator{
		store: credStore,
		log:   log,
		users: users,
	}, nil
}

// Authenticate validates one login attempt. Surrounding whitespace on
// both fields is trimmed before comparison and storage. Passwords are
// compared in clear text; hashing is out of scope for this system.
func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (Outcome, error) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)

	a.mu.Lock()
	defer a.mu.Unlock()

	stored, known := a.users[username]
	if !known {
		if err := a.store.Append(ctx, username, password); err != nil {
			return Rejected, fmt.Errorf("register user %s: %w", username, err)
		}
		a.users[username] = password
		a.log.Info("registered new user", zap.String("user", username))
		return Registered, nil
	}

	if stored != password {
		a.log.Warn("invalid password", zap.String("user", username))
		return Rejected, nil
	}
	return Accepted, nil
}
