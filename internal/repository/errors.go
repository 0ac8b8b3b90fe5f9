// Package repository holds the MySQL data access layer.  The sentinel
// errors below let handlers and the linking flow tell failure kinds apart
// without inspecting driver errors themselves.
package repository

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("not found")

// ErrEmailExists is returned by AccountRepo.Create when the unique index
// on accounts.email rejects the insert.
var ErrEmailExists = errors.New("email already exists")

// ErrConflict is returned when a write collides with another row's unique
// value, such as a second profile claiming the same Patreon id.  Handlers
// translate it into an HTTP 409 response.
var ErrConflict = errors.New("conflict")

const mysqlDuplicateEntry = 1062

// isDuplicate reports whether err is MySQL's duplicate-key error.
func isDuplicate(err error) bool {
	var me *mysql.MySQLError
	return errors.As(err, &me) && me.Number == mysqlDuplicateEntry
}
