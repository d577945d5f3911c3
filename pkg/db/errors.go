package db

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/mattn/go-sqlite3"
	"gorm.io/gorm"
)

// Postgres SQLSTATEs that signal contention rather than a bad statement.
var pgTransient = map[string]bool{
	"40001": true, // serialization_failure
	"40P01": true, // deadlock_detected
	"55P03": true, // lock_not_available
}

// MySQL error numbers for deadlock and lock wait timeout.
var mysqlTransient = map[uint16]bool{
	1213: true,
	1205: true,
}

// IsTransient reports whether err is lock contention that can succeed when
// the whole unit of work is replayed.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgTransient[pgErr.Code]
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return mysqlTransient[myErr.Number]
	}

	var liteErr sqlite3.Error
	if errors.As(err, &liteErr) {
		return liteErr.Code == sqlite3.ErrBusy || liteErr.Code == sqlite3.ErrLocked
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "database is locked") || strings.Contains(msg, "database table is locked")
}

// IsDuplicate reports a unique constraint violation. It relies on
// gorm.Config.TranslateError being enabled.
func IsDuplicate(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey)
}

// IsNotFound reports gorm's missing record error.
func IsNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
