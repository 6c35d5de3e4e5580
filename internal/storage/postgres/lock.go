package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// ErrLocked is returned when another ingest run holds the lock.
var ErrLocked = errors.New("another ingest run holds the lock")

// RunLock is a session-level advisory lock held on a dedicated connection
// for the duration of a run.
type RunLock struct {
	db   *sqlx.DB
	conn *sqlx.Conn
	key  string
}

func NewRunLock(db *sqlx.DB, key string) *RunLock {
	return &RunLock{db: db, key: key}
}

func (l *RunLock) Acquire(ctx context.Context) error {
	conn, err := l.db.Connx(ctx)
	if err != nil {
		return fmt.Errorf("open lock connection: %w", err)
	}

	var locked bool
	if err := conn.GetContext(ctx, &locked, "SELECT pg_try_advisory_lock(hashtext($1))", l.key); err != nil {
		conn.Close()
		return fmt.Errorf("try advisory lock: %w", err)
	}
	if !locked {
		conn.Close()
		return ErrLocked
	}

	l.conn = conn
	return nil
}

func (l *RunLock) Release(ctx context.Context) error {
	if l.conn == nil {
		return nil
	}
	defer func() {
		l.conn.Close()
		l.conn = nil
	}()

	_, err := l.conn.ExecContext(ctx, "SELECT pg_advisory_unlock(hashtext($1))", l.key)
	return err
}
