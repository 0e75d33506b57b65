package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/rentdesk/internal/model"
	"github.com/xxxsen/rentdesk/internal/oauth"
	appErr "github.com/xxxsen/rentdesk/internal/pkg/errors"
)

func TestResolveUsesCache(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	session := verifiedManager(t, env, "cache@example.com")
	id := session.Identity.ID

	before := env.store.snapshots
	for i := 0; i < 3; i++ {
		snap, err := env.profiles.Resolve(ctx, id)
		require.NoError(t, err)
		require.Equal(t, id, snap.ID)
	}
	require.Equal(t, before, env.store.snapshots)

	_, err := env.profiles.Resolve(ctx, "missing")
	require.ErrorIs(t, err, appErr.ErrNotFound)
}

func TestCompleteProfileInvalidatesViews(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	session := verifiedManager(t, env, "profile@example.com")
	id := session.Identity.ID
	require.False(t, session.Identity.ProfileComplete())

	_, err := env.devices.ListDevices(ctx, id)
	require.NoError(t, err)

	_, err = env.profiles.CompleteProfile(ctx, id, ProfileInput{FullName: "   "})
	require.ErrorIs(t, err, appErr.ErrInvalid)

	snap, err := env.profiles.CompleteProfile(ctx, id, ProfileInput{FullName: " Ada Manager ", CompanyName: "Acme Lettings"})
	require.NoError(t, err)
	require.Equal(t, "Ada Manager", snap.FullName)
	require.True(t, snap.ProfileComplete())

	var cached []*model.Device
	ok, err := env.views.Get(ctx, deviceListKey(id), &cached)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestUpdateProfileRejectsEmptyPatch(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.profiles.UpdateProfile(context.Background(), "any", model.IdentityPatch{})
	require.ErrorIs(t, err, appErr.ErrInvalid)
}

func TestDeviceListCachedUntilRevoke(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	session := verifiedManager(t, env, "devices@example.com")
	id := session.Identity.ID

	items, err := env.devices.ListDevices(ctx, id)
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.False(t, items[0].IsRevoked)

	require.ErrorIs(t, env.devices.RevokeDevice(ctx, "someone-else", session.DeviceID), appErr.ErrNotFound)
	require.NoError(t, env.devices.RevokeDevice(ctx, id, session.DeviceID))

	items, err = env.devices.ListDevices(ctx, id)
	require.NoError(t, err)
	require.True(t, items[0].IsRevoked)
}

type stubExchanger struct {
	profile *oauth.Profile
}

func (s stubExchanger) Provider() oauth.Provider {
	return s.profile.Provider
}

func (s stubExchanger) AuthURL(state string) (string, error) {
	return "https://accounts.example.com/auth?state=" + state, nil
}

func (s stubExchanger) ExchangeCode(_ context.Context, code string) (*oauth.Profile, error) {
	if code != "good" {
		return nil, errors.New("bad code")
	}
	return s.profile, nil
}

func TestOAuthLoginOrCreate(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	profile := &oauth.Profile{Provider: oauth.Google, ProviderUserID: "g-1", Email: "New@Example.com"}
	svc := env.oauth(stubExchanger{profile: profile})

	url, err := svc.GetAuthURL(oauth.Google, "s1")
	require.NoError(t, err)
	require.Contains(t, url, "state=s1")
	_, err = svc.GetAuthURL(oauth.Apple, "s1")
	require.ErrorIs(t, err, appErr.ErrInvalid)

	got, err := svc.ExchangeCode(ctx, oauth.Google, "good")
	require.NoError(t, err)

	first, err := svc.LoginOrCreate(ctx, got)
	require.NoError(t, err)
	require.Equal(t, "new@example.com", first.Identity.Email)
	require.True(t, first.Identity.IsEmailVerified)
	require.Equal(t, model.RoleManager, first.Identity.Role)

	again, err := svc.LoginOrCreate(ctx, got)
	require.NoError(t, err)
	require.Equal(t, first.Identity.ID, again.Identity.ID)

	account, err := env.store.GetByProviderUserID(ctx, model.IdentityProviderGoogle, "g-1")
	require.NoError(t, err)
	require.Equal(t, first.Identity.ID, account.IdentityID)
}

func TestOAuthLinksExistingEmail(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t)
	register(t, env, "linked@example.com")
	existing, err := env.store.GetByEmail(ctx, "linked@example.com")
	require.NoError(t, err)

	svc := env.oauth()
	session, err := svc.LoginOrCreate(ctx, &oauth.Profile{Provider: oauth.Facebook, ProviderUserID: "fb-7", Email: "linked@example.com"})
	require.NoError(t, err)
	require.Equal(t, existing.ID, session.Identity.ID)
	require.True(t, session.Identity.IsEmailVerified)

	_, err = svc.LoginOrCreate(ctx, &oauth.Profile{Provider: oauth.Facebook, Email: "x@example.com"})
	require.ErrorIs(t, err, appErr.ErrInvalid)
}
