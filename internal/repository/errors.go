// Package repository defines the persistence contract of the reservation
// service and its two implementations: MySQLStore for production and
// MemoryStore for local development and tests.  The sentinel errors below
// are shared by both so that higher layers can distinguish failure
// scenarios without knowing which store is in use.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a requested row does not exist.  Handlers
// translate it into an HTTP 404 response.
var ErrNotFound = errors.New("not found")

// ErrForbidden is returned when the caller attempts an operation on a
// resource they do not own.  Handlers translate it into an HTTP 403
// response.
var ErrForbidden = errors.New("forbidden")

// ErrConflict is returned when a write violates a uniqueness rule, such as
// a second walk-in payment for the same booking.  Handlers translate it
// into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

// ErrPendingExists is returned when a user already owns a pending booking
// and another one would be created.
var ErrPendingExists = errors.New("user already has a pending booking")

const (
	mysqlDuplicateEntry = 1062
	pendingUserIndex    = "uq_bookings_pending_user"
)

// mapWriteError converts driver errors into the sentinels above.
func mapWriteError(err error) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
		if strings.Contains(me.Message, pendingUserIndex) {
			return ErrPendingExists
		}
		return ErrConflict
	}
	return err
}
