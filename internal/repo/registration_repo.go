package repo

import (
	"context"
	"database/sql"

	"github.com/xxxsen/rentdesk/internal/model"
	"github.com/xxxsen/rentdesk/internal/otp"
)

// RegistrationRepo groups the writes that create an identity so they commit
// or roll back together.
type RegistrationRepo struct {
	db *sql.DB
}

func NewRegistrationRepo(db *sql.DB) *RegistrationRepo {
	return &RegistrationRepo{db: db}
}

// CreatePending inserts the identity and its first device, then runs inTx
// with an OTP durable tier bound to the same transaction.
func (r *RegistrationRepo) CreatePending(ctx context.Context, identity *model.Identity, device *model.Device,
	inTx func(ctx context.Context, codes otp.DurableTier) error) error {
	return WithTx(ctx, r.db, func(tx DBTX) error {
		if err := NewIdentityRepo(tx).Create(ctx, identity); err != nil {
			return err
		}
		if err := NewDeviceRepo(tx).Create(ctx, device); err != nil {
			return err
		}
		if inTx == nil {
			return nil
		}
		return inTx(ctx, NewOtpRepo(tx))
	})
}

// CreateLinked inserts an identity together with its external account link.
func (r *RegistrationRepo) CreateLinked(ctx context.Context, identity *model.Identity, account *model.OAuthAccount) error {
	return WithTx(ctx, r.db, func(tx DBTX) error {
		if err := NewIdentityRepo(tx).Create(ctx, identity); err != nil {
			return err
		}
		return NewOAuthRepo(tx).Create(ctx, account)
	})
}
