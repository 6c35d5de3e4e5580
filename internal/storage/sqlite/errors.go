package sqlite

import (
	"errors"
	"fmt"

	"github.com/mattn/go-sqlite3"
)

// StoreError wraps a failed statement. Busy and locked databases are
// transient; every other sqlite error is not.
type StoreError struct {
	Op        string
	Code      sqlite3.ErrNo
	Err       error
	transient bool
}

func (e *StoreError) Error() string {
	if e.Code != 0 {
		return fmt.Sprintf("%s: [%d] %v", e.Op, int(e.Code), e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Transient() bool {
	return e.transient
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) {
		return &StoreError{
			Op:        op,
			Code:      sqlErr.Code,
			Err:       err,
			transient: sqlErr.Code == sqlite3.ErrBusy || sqlErr.Code == sqlite3.ErrLocked,
		}
	}
	return &StoreError{Op: op, Err: err}
}
