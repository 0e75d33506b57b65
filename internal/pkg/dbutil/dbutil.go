package dbutil

import (
	"database/sql"
	"errors"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	appErr "github.com/xxxsen/rentdesk/internal/pkg/errors"
)

const (
	gendryLimit      = "LIMIT ?,?"
	uniqueViolation  = "23505"
	postgresLimitSQL = "LIMIT ? OFFSET ?"
)

// Finalize turns gendry output into a postgres statement. gendry emits
// "LIMIT ?,?" with (offset, count) args; postgres wants the count first.
func Finalize(query string, args []interface{}) (string, []interface{}) {
	if at := strings.LastIndex(query, gendryLimit); at >= 0 {
		offsetArg := strings.Count(query[:at], "?")
		if offsetArg+1 < len(args) {
			args[offsetArg], args[offsetArg+1] = args[offsetArg+1], args[offsetArg]
			query = query[:at] + postgresLimitSQL + query[at+len(gendryLimit):]
		}
	}
	return sqlx.Rebind(sqlx.DOLLAR, query), args
}

func IsConflict(err error) bool {
	var pgErr *pq.Error
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

// MapError converts driver errors into the application sentinels repos return.
func MapError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return appErr.ErrNotFound
	case IsConflict(err):
		return appErr.ErrConflict
	default:
		return err
	}
}
