package dbutil

import (
	"database/sql"
	"errors"
	"fmt"
	"testing"

	"github.com/didi/gendry/builder"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	appErr "github.com/xxxsen/rentdesk/internal/pkg/errors"
)

func TestFinalizeRewritesGendryLimit(t *testing.T) {
	sqlStr, args, err := builder.BuildSelect("otp_codes", map[string]interface{}{
		"identity_id": "u1",
		"purpose":     "EMAIL_VERIFICATION",
		"_orderby":    "ctime desc",
		"_limit":      []uint{5, 1},
	}, []string{"id"})
	require.NoError(t, err)

	sqlStr, args = Finalize(sqlStr, args)
	require.Contains(t, sqlStr, "LIMIT $3 OFFSET $4")
	require.NotContains(t, sqlStr, "?")
	require.Len(t, args, 4)
	require.EqualValues(t, 1, args[2])
	require.EqualValues(t, 5, args[3])
}

func TestFinalizeWithoutLimit(t *testing.T) {
	sqlStr, args := Finalize("UPDATE devices SET is_revoked = ? WHERE id = ?", []interface{}{true, "d1"})
	require.Equal(t, "UPDATE devices SET is_revoked = $1 WHERE id = $2", sqlStr)
	require.Equal(t, []interface{}{true, "d1"}, args)
}

func TestMapError(t *testing.T) {
	require.NoError(t, MapError(nil))
	require.ErrorIs(t, MapError(sql.ErrNoRows), appErr.ErrNotFound)
	require.ErrorIs(t, MapError(fmt.Errorf("insert: %w", &pq.Error{Code: "23505"})), appErr.ErrConflict)
	other := errors.New("connection reset")
	require.Equal(t, other, MapError(other))
	require.False(t, IsConflict(&pq.Error{Code: "23503"}))
}
