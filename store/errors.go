package store

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"syscall"

	"github.com/lib/pq"
	"github.com/mattn/go-sqlite3"

	"github.com/goliatone/go-entity-session/errs"
)

// IsConnectionFailure reports whether err is a transport or authentication
// failure rather than a statement error.
func IsConnectionFailure(err error) bool {
	if err == nil {
		return false
	}
	if errs.IsStoreConnection(err) {
		return true
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "08", "28": // connection exception, invalid authorization
			return true
		}
		return false
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		switch liteErr.Code {
		case sqlite3.ErrCantOpen, sqlite3.ErrNotADB, sqlite3.ErrAuth:
			return true
		}
	}
	return false
}

// connectionError wraps err as a StoreConnectionError when it is a
// connection failure and with op context otherwise.
func connectionError(op string, err error) error {
	if err == nil {
		return nil
	}
	if errs.IsStoreConnection(err) {
		return err
	}
	if IsConnectionFailure(err) {
		return errs.StoreConnection(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// classify maps errors from statement execution. Context errors and
// sql.ErrNoRows pass through untouched so callers can test for them.
func classify(op string, err error) error {
	if err == nil || errors.Is(err, sql.ErrNoRows) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return connectionError(op, err)
}
