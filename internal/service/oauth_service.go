package service

import (
	"context"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/rentdesk/internal/model"
	"github.com/xxxsen/rentdesk/internal/oauth"
	appErr "github.com/xxxsen/rentdesk/internal/pkg/errors"
)

type OAuthAccountStore interface {
	Create(ctx context.Context, account *model.OAuthAccount) error
	GetByProviderUserID(ctx context.Context, provider model.IdentityProvider, providerUserID string) (*model.OAuthAccount, error)
}

type LinkRegistrar interface {
	CreateLinked(ctx context.Context, identity *model.Identity, account *model.OAuthAccount) error
}

type OAuthService struct {
	registry   *oauth.Registry
	accounts   OAuthAccountStore
	identities IdentityLookup
	registrar  LinkRegistrar
	auth       *AuthService
	now        func() time.Time
}

func NewOAuthService(registry *oauth.Registry, accounts OAuthAccountStore, identities IdentityLookup, registrar LinkRegistrar, auth *AuthService) *OAuthService {
	return &OAuthService{
		registry:   registry,
		accounts:   accounts,
		identities: identities,
		registrar:  registrar,
		auth:       auth,
		now:        time.Now,
	}
}

func (s *OAuthService) exchanger(p oauth.Provider) (oauth.Exchanger, error) {
	impl, ok := s.registry.Get(p)
	if !ok {
		return nil, appErr.ErrInvalid
	}
	return impl, nil
}

func (s *OAuthService) GetAuthURL(p oauth.Provider, state string) (string, error) {
	impl, err := s.exchanger(p)
	if err != nil {
		return "", err
	}
	return impl.AuthURL(state)
}

func (s *OAuthService) ExchangeCode(ctx context.Context, p oauth.Provider, code string) (*oauth.Profile, error) {
	impl, err := s.exchanger(p)
	if err != nil {
		return nil, err
	}
	return impl.ExchangeCode(ctx, code)
}

// LoginOrCreate signs in the identity linked to profile. An unlinked profile
// is attached to the identity with the same email, or to a new verified
// manager account when none exists.
func (s *OAuthService) LoginOrCreate(ctx context.Context, profile *oauth.Profile) (*Session, error) {
	if profile == nil || profile.ProviderUserID == "" || profile.Email == "" {
		return nil, appErr.ErrInvalid
	}
	provider := profile.Provider.ExternalIdentity()
	if provider == "" {
		return nil, appErr.ErrInvalid
	}
	email := strings.ToLower(strings.TrimSpace(profile.Email))
	now := s.now().Unix()

	account, err := s.accounts.GetByProviderUserID(ctx, provider, profile.ProviderUserID)
	switch {
	case err == nil:
		identity, err := s.identities.GetByID(ctx, account.IdentityID)
		if err != nil {
			return nil, err
		}
		return s.signIn(ctx, identity)
	case !appErr.IsNotFound(err):
		return nil, err
	}

	link := &model.OAuthAccount{
		ID:             newID(),
		Provider:       provider,
		ProviderUserID: profile.ProviderUserID,
		Email:          email,
		Ctime:          now,
		Mtime:          now,
	}
	identity, err := s.identities.GetByEmail(ctx, email)
	switch {
	case err == nil:
		link.IdentityID = identity.ID
		if err := s.accounts.Create(ctx, link); err != nil {
			return nil, err
		}
		if !identity.IsEmailVerified {
			if err := s.auth.profiles.MarkEmailVerified(ctx, identity.ID); err != nil {
				return nil, err
			}
			identity.IsEmailVerified = true
		}
		logutil.GetLogger(ctx).Info("oauth account linked",
			zap.String("identity_id", identity.ID), zap.String("provider", profile.Provider.String()))
		return s.signIn(ctx, identity)
	case !appErr.IsNotFound(err):
		return nil, err
	}

	identity = &model.Identity{
		ID:              newID(),
		Email:           email,
		Role:            model.RoleManager,
		IsActive:        true,
		IsEmailVerified: true,
		Ctime:           now,
		Mtime:           now,
	}
	link.IdentityID = identity.ID
	if err := s.registrar.CreateLinked(ctx, identity, link); err != nil {
		return nil, err
	}
	logutil.GetLogger(ctx).Info("identity created from oauth",
		zap.String("identity_id", identity.ID), zap.String("provider", profile.Provider.String()))
	return s.signIn(ctx, identity)
}

func (s *OAuthService) signIn(ctx context.Context, identity *model.Identity) (*Session, error) {
	if !identity.IsActive {
		return nil, appErr.Unauthorized(appErr.ReasonInactive, "account is inactive")
	}
	return s.auth.sign(ctx, identity)
}
