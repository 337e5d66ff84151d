package store

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
)

// FileStore keeps credentials in a text file, one username:password
// pair per line. A missing file is an empty store.
type FileStore struct {
	path string
	mu   sync.Mutex
}

// NewFileStore creates a store backed by the file at path. The file
// is not created until the first Append.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load reads every credential line. Lines without a separator are
// skipped; surrounding whitespace on both fields is trimmed.
func (s *FileStore) Load() (map[string]string, error) {
	users := make(map[string]string)

	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return users, nil
		}
		return nil, fmt.Errorf("open credential file %s: %w", s.path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		username, password, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		users[strings.TrimSpace(username)] = strings.TrimSpace(password)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read credential file %s: %w", s.path, err)
	}
	return users, nil
}

// Append adds one credential line. Appends are serialized through the
// store's mutex so concurrent registrations never interleave.
func (s *FileStore) Append(ctx context.Context, username, password string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open credential file %s: %w", s.path, err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s:%s\n", username, password); err != nil {
		return fmt.Errorf("append credential for %s: %w", username, err)
	}
	return nil
}

// Close is a no-op; the file is opened per append.
func (s *FileStore) Close() error {
	return nil
}
