package postgres

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/lib/pq"
)

// StoreError wraps a failed statement with its SQLSTATE and whether the
// failure is worth retrying.
type StoreError struct {
	Op        string
	Code      string
	Err       error
	transient bool
}

func (e *StoreError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: [%s] %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

func (e *StoreError) Transient() bool {
	return e.transient
}

// transientClasses are SQLSTATE classes for connection loss, serialization
// failures and resource exhaustion.
var transientClasses = map[pq.ErrorClass]bool{
	"08": true,
	"40": true,
	"53": true,
}

var transientCodes = map[pq.ErrorCode]bool{
	"57014": true, // query_canceled, raised on statement_timeout
	"57P01": true, // admin_shutdown
	"57P02": true, // crash_shutdown
	"57P03": true, // cannot_connect_now
}

func classify(op string, err error) error {
	if err == nil {
		return nil
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return &StoreError{
			Op:        op,
			Code:      string(pqErr.Code),
			Err:       err,
			transient: transientClasses[pqErr.Code.Class()] || transientCodes[pqErr.Code],
		}
	}

	var netErr net.Error
	transient := errors.Is(err, driver.ErrBadConn) || errors.As(err, &netErr)
	return &StoreError{Op: op, Err: err, transient: transient}
}
