package db

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const mysqlDuplicateEntry = 1062

// IsNoRows reports whether err means the query matched nothing.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}

// UniqueViolation reports whether err is a MySQL duplicate-entry error and
// returns the violated index name when the server included one.
func UniqueViolation(err error) (string, bool) {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) || myErr.Number != mysqlDuplicateEntry {
		return "", false
	}
	return duplicateIndexName(myErr.Message), true
}

// duplicateIndexName pulls "uk_x" out of "Duplicate entry 'a' for key 'submissions.uk_x'".
func duplicateIndexName(message string) string {
	const marker = "for key "
	idx := strings.LastIndex(message, marker)
	if idx == -1 {
		return ""
	}
	name := strings.Trim(strings.TrimSpace(message[idx+len(marker):]), " `\"'")
	if dot := strings.LastIndexByte(name, '.'); dot != -1 {
		name = name[dot+1:]
	}
	return name
}
