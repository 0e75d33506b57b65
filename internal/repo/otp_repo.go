package repo

import (
	"context"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/rentdesk/internal/model"
	"github.com/xxxsen/rentdesk/internal/pkg/dbutil"
)

var otpColumns = []string{"id", "identity_id", "code", "purpose", "expires_at", "is_used", "ctime"}

// OtpRepo is the durable tier of the OTP store.
type OtpRepo struct {
	db DBTX
}

func NewOtpRepo(db DBTX) *OtpRepo {
	return &OtpRepo{db: db}
}

func (r *OtpRepo) Create(ctx context.Context, code *model.OtpCode) error {
	data := map[string]interface{}{
		"id":          code.ID,
		"identity_id": code.IdentityID,
		"code":        code.Code,
		"purpose":     code.Purpose,
		"expires_at":  code.ExpiresAt,
		"is_used":     code.IsUsed,
		"ctime":       code.Ctime,
	}
	sqlStr, args, err := builder.BuildInsert("otp_codes", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return err
}

// InvalidateActive marks every unused code of the purpose as used.
func (r *OtpRepo) InvalidateActive(ctx context.Context, identityID, purpose string) error {
	where := map[string]interface{}{"identity_id": identityID, "purpose": purpose, "is_used": false}
	sqlStr, args, err := builder.BuildUpdate("otp_codes", where, map[string]interface{}{"is_used": true})
	if err != nil {
		return err
	}
	_, err = execAffected(ctx, r.db, sqlStr, args)
	return err
}

// FindLive returns the newest unused, unexpired record carrying code.
func (r *OtpRepo) FindLive(ctx context.Context, identityID, purpose, code string, now int64) (*model.OtpCode, error) {
	return r.findOne(ctx, map[string]interface{}{
		"identity_id":  identityID,
		"purpose":      purpose,
		"code":         code,
		"is_used":      false,
		"expires_at >": now,
		"_orderby":     "ctime desc",
		"_limit":       []uint{0, 1},
	})
}

// FindLatestByCode returns the newest record carrying code regardless of state.
func (r *OtpRepo) FindLatestByCode(ctx context.Context, identityID, purpose, code string) (*model.OtpCode, error) {
	return r.findOne(ctx, map[string]interface{}{
		"identity_id": identityID,
		"purpose":     purpose,
		"code":        code,
		"_orderby":    "ctime desc",
		"_limit":      []uint{0, 1},
	})
}

func (r *OtpRepo) findOne(ctx context.Context, where map[string]interface{}) (*model.OtpCode, error) {
	sqlStr, args, err := builder.BuildSelect("otp_codes", where, otpColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var item model.OtpCode
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&item.ID, &item.IdentityID, &item.Code, &item.Purpose, &item.ExpiresAt, &item.IsUsed, &item.Ctime,
	)
	if err != nil {
		return nil, dbutil.MapError(err)
	}
	return &item, nil
}

// MarkUsed consumes the record; false means another caller consumed it first.
func (r *OtpRepo) MarkUsed(ctx context.Context, id string) (bool, error) {
	where := map[string]interface{}{"id": id, "is_used": false}
	sqlStr, args, err := builder.BuildUpdate("otp_codes", where, map[string]interface{}{"is_used": true})
	if err != nil {
		return false, err
	}
	affected, err := execAffected(ctx, r.db, sqlStr, args)
	if err != nil {
		return false, err
	}
	return affected == 1, nil
}

// DeleteBefore removes records that expired before cutoff.
func (r *OtpRepo) DeleteBefore(ctx context.Context, cutoff int64) (int64, error) {
	sqlStr, args, err := builder.BuildDelete("otp_codes", map[string]interface{}{"expires_at <": cutoff})
	if err != nil {
		return 0, err
	}
	return execAffected(ctx, r.db, sqlStr, args)
}
