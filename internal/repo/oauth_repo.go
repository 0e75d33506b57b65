package repo

import (
	"context"

	"github.com/didi/gendry/builder"

	"github.com/xxxsen/rentdesk/internal/model"
	"github.com/xxxsen/rentdesk/internal/pkg/dbutil"
)

type OAuthRepo struct {
	db DBTX
}

func NewOAuthRepo(db DBTX) *OAuthRepo {
	return &OAuthRepo{db: db}
}

func (r *OAuthRepo) Create(ctx context.Context, account *model.OAuthAccount) error {
	data := map[string]interface{}{
		"id":               account.ID,
		"identity_id":      account.IdentityID,
		"provider":         string(account.Provider),
		"provider_user_id": account.ProviderUserID,
		"email":            account.Email,
		"ctime":            account.Ctime,
		"mtime":            account.Mtime,
	}
	sqlStr, args, err := builder.BuildInsert("oauth_accounts", []map[string]interface{}{data})
	if err != nil {
		return err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	_, err = r.db.ExecContext(ctx, sqlStr, args...)
	return dbutil.MapError(err)
}

func (r *OAuthRepo) GetByProviderUserID(ctx context.Context, provider model.IdentityProvider, providerUserID string) (*model.OAuthAccount, error) {
	where := map[string]interface{}{
		"provider":         string(provider),
		"provider_user_id": providerUserID,
	}
	sqlStr, args, err := builder.BuildSelect("oauth_accounts", where, []string{"id", "identity_id", "provider", "provider_user_id", "email", "ctime", "mtime"})
	if err != nil {
		return nil, err
	}
	sqlStr, args = dbutil.Finalize(sqlStr, args)
	var account model.OAuthAccount
	var providerName string
	err = r.db.QueryRowContext(ctx, sqlStr, args...).Scan(&account.ID, &account.IdentityID, &providerName, &account.ProviderUserID, &account.Email, &account.Ctime, &account.Mtime)
	if err != nil {
		return nil, dbutil.MapError(err)
	}
	account.Provider = model.IdentityProvider(providerName)
	return &account, nil
}
