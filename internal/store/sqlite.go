package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	password TEXT NOT NULL
)`

// SQLiteStore keeps credentials in a SQLite database. All writes pass
// through a single writer goroutine; SQLite allows only one writer at
// a time and funneling writes avoids busy errors under concurrent
// registrations.
type SQLiteStore struct {
	db      *sql.DB
	log     *zap.Logger
	writeCh chan writeOp

	closeOnce sync.Once
	done      chan struct{}
	wg        sync.WaitGroup
}

type writeOp struct {
	exec   func(*sql.DB) error
	result chan error
}

// NewSQLiteStore opens (creating if needed) the database at path and
// starts the writer goroutine.
func NewSQLiteStore(path string, log *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("open credential database %s: %w", path, err)
	}

	if _, err := db.Exec(sqliteSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create users table: %w", err)
	}

	s := &SQLiteStore{
		db:      db,
		log:     log,
		writeCh: make(chan writeOp, 16),
		done:    make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

// writeLoop applies queued writes one at a time.
func (s *SQLiteStore) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case op := <-s.writeCh:
			op.result <- op.exec(s.db)
		case <-s.done:
			return
		}
	}
}

// Load reads every stored credential.
func (s *SQLiteStore) Load() (map[string]string, error) {
	rows, err := s.db.Query(`SELECT username, password FROM users`)
	if err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	defer rows.Close()

	users := make(map[string]string)
	for rows.Next() {
		var username, password string
		if err := rows.Scan(&username, &password); err != nil {
			return nil, fmt.Errorf("scan credential row: %w", err)
		}
		users[username] = password
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load credentials: %w", err)
	}
	return users, nil
}

// Append stores one credential through the writer goroutine and waits
// for the write to land.
func (s *SQLiteStore) Append(ctx context.Context, username, password string) error {
	op := writeOp{
		exec: func(db *sql.DB) error {
			_, err := db.ExecContext(ctx,
				`INSERT INTO users (username, password) VALUES (?, ?)`,
				username, password)
			return err
		},
		result: make(chan error, 1),
	}

	select {
	case <-s.done:
		return ErrStoreClosed
	default:
	}

	select {
	case s.writeCh <- op:
	case <-s.done:
		return ErrStoreClosed
	case <-ctx.Done():
		return ctx.Err()
	}

	select {
	case err := <-op.result:
		if err != nil {
			return fmt.Errorf("append credential for %s: %w", username, err)
		}
		return nil
	case <-s.done:
		return ErrStoreClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close stops the writer goroutine and closes the database.
func (s *SQLiteStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		err = s.db.Close()
	})
	return err
}
