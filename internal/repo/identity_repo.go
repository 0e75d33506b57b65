package repo

import (
	"context"
	"database/sql"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/rentdesk/internal/model"
	"github.com/xxxsen/rentdesk/internal/pkg/dbutil"
	appErr "github.com/xxxsen/rentdesk/internal/pkg/errors"
)

var identityColumns = []string{
	"id", "email", "password_hash", "role", "full_name", "phone", "company_name",
	"is_active", "is_email_verified", "ctime", "mtime",
}

type IdentityRepo struct {
	db DBTX
}

func NewIdentityRepo(db DBTX) *IdentityRepo {
	return &IdentityRepo{db: db}
}

func (r *IdentityRepo) Create(ctx context.Context, identity *model.Identity) error {
	data := map[string]interface{}{
		"id":                identity.ID,
		"email":             identity.Email,
		"password_hash":     identity.PasswordHash,
		"role":              identity.Role,
		"full_name":         identity.FullName,
		"phone":             identity.Phone,
		"company_name":      identity.CompanyName,
		"is_active":         identity.IsActive,
		"is_email_verified": identity.IsEmailVerified,
		"ctime":             identity.Ctime,
		"mtime":             identity.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("identities", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return dbutil.MapError(err)
}

func (r *IdentityRepo) GetByEmail(ctx context.Context, email string) (*model.Identity, error) {
	return r.getOne(ctx, map[string]interface{}{"email": email})
}

func (r *IdentityRepo) GetByID(ctx context.Context, id string) (*model.Identity, error) {
	return r.getOne(ctx, map[string]interface{}{"id": id})
}

func (r *IdentityRepo) getOne(ctx context.Context, where map[string]interface{}) (*model.Identity, error) {
	sqlStr, args, err := builder.BuildSelect("identities", where, identityColumns)
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var identity model.Identity
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(
		&identity.ID, &identity.Email, &identity.PasswordHash, &identity.Role,
		&identity.FullName, &identity.Phone, &identity.CompanyName,
		&identity.IsActive, &identity.IsEmailVerified, &identity.Ctime, &identity.Mtime,
	)
	if err != nil {
		return nil, dbutil.MapError(err)
	}
	return &identity, nil
}

// GetSnapshot loads the identity and only its most recent active or trialing
// subscription.
func (r *IdentityRepo) GetSnapshot(ctx context.Context, id string) (*model.IdentitySnapshot, error) {
	identity, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	snapshot := &model.IdentitySnapshot{
		ID:              identity.ID,
		Email:           identity.Email,
		Role:            identity.Role,
		FullName:        identity.FullName,
		IsActive:        identity.IsActive,
		IsEmailVerified: identity.IsEmailVerified,
	}
	where := map[string]interface{}{
		"identity_id": id,
		"status in":   []interface{}{model.SubscriptionActive, model.SubscriptionTrialing},
		"_orderby":    "ctime desc",
		"_limit":      []uint{0, 1},
	}
	sqlStr, args, err := builder.BuildSelect("subscriptions", where, []string{"id", "status", "current_period_end"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var sub model.SubscriptionSnapshot
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&sub.ID, &sub.Status, &sub.CurrentPeriodEnd)
	switch {
	case err == sql.ErrNoRows:
	case err != nil:
		return nil, err
	default:
		snapshot.Subscription = &sub
	}
	return snapshot, nil
}

func (r *IdentityRepo) Update(ctx context.Context, id string, patch model.IdentityPatch, mtime int64) error {
	update := map[string]interface{}{"mtime": mtime}
	if v, ok := patch.FullName.Get(); ok {
		update["full_name"] = v
	}
	if v, ok := patch.Phone.Get(); ok {
		update["phone"] = v
	}
	if v, ok := patch.CompanyName.Get(); ok {
		update["company_name"] = v
	}
	if v, ok := patch.IsActive.Get(); ok {
		update["is_active"] = v
	}
	if v, ok := patch.IsEmailVerified.Get(); ok {
		update["is_email_verified"] = v
	}
	sqlStr, args, err := builder.BuildUpdate("identities", map[string]interface{}{"id": id}, update)
	if err != nil {
		return err
	}
	affected, err := execAffected(ctx, r.db, sqlStr, args)
	if err != nil {
		return err
	}
	if affected == 0 {
		return appErr.ErrNotFound
	}
	return nil
}
