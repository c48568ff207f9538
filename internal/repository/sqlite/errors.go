package sqlite

import (
	"errors"
	"strings"

	moderncsqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// uniqueViolation reports whether err is a UNIQUE constraint failure and, if
// so, returns the offending "table.column" list from the driver message, e.g.
// "contacts.user_id, contacts.email".
func uniqueViolation(err error) (columns string, ok bool) {
	var sqliteErr *moderncsqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		if code != sqlite3.SQLITE_CONSTRAINT_UNIQUE && code != sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY {
			return "", false
		}
	}

	msg := err.Error()
	const marker = "UNIQUE constraint failed: "
	i := strings.Index(msg, marker)
	if i < 0 {
		return "", false
	}
	columns = msg[i+len(marker):]
	if j := strings.Index(columns, " ("); j >= 0 {
		columns = columns[:j]
	}
	return columns, true
}
