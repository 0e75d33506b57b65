package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/rentdesk/internal/cache"
	"github.com/xxxsen/rentdesk/internal/device"
	"github.com/xxxsen/rentdesk/internal/job"
	"github.com/xxxsen/rentdesk/internal/model"
	"github.com/xxxsen/rentdesk/internal/oauth"
	"github.com/xxxsen/rentdesk/internal/otp"
	appErr "github.com/xxxsen/rentdesk/internal/pkg/errors"
	"github.com/xxxsen/rentdesk/internal/pkg/jwt"
	"github.com/xxxsen/rentdesk/internal/pkg/password"
)

const testSecret = "service-test-secret-0123456789abcdef"

// fakeStore stands in for the identity, registration and oauth repos.
type fakeStore struct {
	mu         sync.Mutex
	identities map[string]*model.Identity
	subs       map[string]*model.SubscriptionSnapshot
	accounts   map[string]*model.OAuthAccount
	snapshots  int
	devices    *fakeDevices
	codes      *fakeCodes
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		identities: map[string]*model.Identity{},
		subs:       map[string]*model.SubscriptionSnapshot{},
		accounts:   map[string]*model.OAuthAccount{},
		devices:    &fakeDevices{devices: map[string]*model.Device{}},
		codes:      &fakeCodes{},
	}
}

func (s *fakeStore) GetByEmail(_ context.Context, email string) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, identity := range s.identities {
		if identity.Email == email {
			cp := *identity
			return &cp, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (s *fakeStore) GetByID(_ context.Context, id string) (*model.Identity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *identity
	return &cp, nil
}

func (s *fakeStore) GetSnapshot(_ context.Context, id string) (*model.IdentitySnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots++
	identity, ok := s.identities[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	return &model.IdentitySnapshot{
		ID:              identity.ID,
		Email:           identity.Email,
		Role:            identity.Role,
		FullName:        identity.FullName,
		IsActive:        identity.IsActive,
		IsEmailVerified: identity.IsEmailVerified,
		Subscription:    s.subs[id],
	}, nil
}

func (s *fakeStore) Update(_ context.Context, id string, patch model.IdentityPatch, mtime int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	identity, ok := s.identities[id]
	if !ok {
		return appErr.ErrNotFound
	}
	identity.FullName = patch.FullName.OrElse(identity.FullName)
	identity.Phone = patch.Phone.OrElse(identity.Phone)
	identity.CompanyName = patch.CompanyName.OrElse(identity.CompanyName)
	identity.IsActive = patch.IsActive.OrElse(identity.IsActive)
	identity.IsEmailVerified = patch.IsEmailVerified.OrElse(identity.IsEmailVerified)
	identity.Mtime = mtime
	return nil
}

func (s *fakeStore) createIdentity(identity *model.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, existing := range s.identities {
		if existing.Email == identity.Email {
			return appErr.ErrConflict
		}
	}
	cp := *identity
	s.identities[identity.ID] = &cp
	return nil
}

func (s *fakeStore) dropIdentity(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.identities, id)
}

func (s *fakeStore) CreatePending(ctx context.Context, identity *model.Identity, d *model.Device,
	inTx func(ctx context.Context, codes otp.DurableTier) error) error {
	if err := s.createIdentity(identity); err != nil {
		return err
	}
	if err := s.devices.Create(ctx, d); err != nil {
		s.dropIdentity(identity.ID)
		return err
	}
	if err := inTx(ctx, s.codes); err != nil {
		s.dropIdentity(identity.ID)
		return err
	}
	return nil
}

func (s *fakeStore) CreateLinked(ctx context.Context, identity *model.Identity, account *model.OAuthAccount) error {
	if err := s.createIdentity(identity); err != nil {
		return err
	}
	return s.Create(ctx, account)
}

func (s *fakeStore) Create(_ context.Context, account *model.OAuthAccount) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := string(account.Provider) + ":" + account.ProviderUserID
	if _, ok := s.accounts[key]; ok {
		return appErr.ErrConflict
	}
	cp := *account
	s.accounts[key] = &cp
	return nil
}

func (s *fakeStore) GetByProviderUserID(_ context.Context, provider model.IdentityProvider, providerUserID string) (*model.OAuthAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	account, ok := s.accounts[string(provider)+":"+providerUserID]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *account
	return &cp, nil
}

type fakeDevices struct {
	mu      sync.Mutex
	devices map[string]*model.Device
}

func (r *fakeDevices) Create(_ context.Context, d *model.Device) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *d
	r.devices[d.ID] = &cp
	return nil
}

func (r *fakeDevices) GetByID(_ context.Context, id string) (*model.Device, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return nil, appErr.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *fakeDevices) filter(match func(*model.Device) bool) []*model.Device {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Device
	for _, d := range r.devices {
		if match(d) {
			cp := *d
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Ctime > out[j].Ctime })
	return out
}

func (r *fakeDevices) ListActiveTokens(_ context.Context, identityID string, now int64) ([]*model.Device, error) {
	return r.filter(func(d *model.Device) bool { return d.IdentityID == identityID && d.HasActiveToken(now) }), nil
}

func (r *fakeDevices) ListByIdentity(_ context.Context, identityID string) ([]*model.Device, error) {
	return r.filter(func(d *model.Device) bool { return d.IdentityID == identityID }), nil
}

func (r *fakeDevices) FindBySighting(_ context.Context, identityID, ip, fingerprint, userAgent string) (*model.Device, error) {
	out := r.filter(func(d *model.Device) bool {
		if d.IdentityID != identityID || d.IPAddress != ip || d.Fingerprint != fingerprint || d.IsRevoked {
			return false
		}
		return fingerprint != "" || d.UserAgent == userAgent
	})
	if len(out) == 0 {
		return nil, appErr.ErrNotFound
	}
	return out[0], nil
}

func (r *fakeDevices) update(id string, fn func(d *model.Device)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.devices[id]
	if !ok {
		return appErr.ErrNotFound
	}
	fn(d)
	return nil
}

func (r *fakeDevices) SetToken(_ context.Context, id, tokenHash string, expiresAt int64, meta model.Device) error {
	return r.update(id, func(d *model.Device) {
		d.TokenHash, d.TokenExpiresAt, d.IsVerified = tokenHash, expiresAt, true
		d.IPAddress, d.UserAgent, d.Fingerprint, d.LastSeenAt = meta.IPAddress, meta.UserAgent, meta.Fingerprint, meta.LastSeenAt
	})
}

func (r *fakeDevices) RefreshToken(_ context.Context, id string, expiresAt int64, meta model.Device) error {
	return r.update(id, func(d *model.Device) {
		d.TokenExpiresAt = expiresAt
		d.IPAddress, d.UserAgent, d.LastSeenAt = meta.IPAddress, meta.UserAgent, meta.LastSeenAt
		if meta.Fingerprint != "" {
			d.Fingerprint = meta.Fingerprint
		}
	})
}

func (r *fakeDevices) TouchLastSeen(_ context.Context, id string, lastSeenAt int64) error {
	return r.update(id, func(d *model.Device) { d.LastSeenAt = lastSeenAt })
}

func (r *fakeDevices) MarkVerified(_ context.Context, id string) error {
	return r.update(id, func(d *model.Device) { d.IsVerified = true })
}

func (r *fakeDevices) Revoke(_ context.Context, id string) error {
	return r.update(id, func(d *model.Device) { d.IsRevoked = true })
}

// fakeCodes is the durable OTP tier. The fast tier is healthy in these
// tests, so it only sees invalidations.
type fakeCodes struct {
	mu    sync.Mutex
	codes []*model.OtpCode
}

func (c *fakeCodes) Create(_ context.Context, code *model.OtpCode) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	cp := *code
	c.codes = append(c.codes, &cp)
	return nil
}

func (c *fakeCodes) InvalidateActive(_ context.Context, identityID, purpose string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, code := range c.codes {
		if code.IdentityID == identityID && code.Purpose == purpose {
			code.IsUsed = true
		}
	}
	return nil
}

func (c *fakeCodes) find(match func(*model.OtpCode) bool) (*model.OtpCode, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.codes) - 1; i >= 0; i-- {
		if match(c.codes[i]) {
			cp := *c.codes[i]
			return &cp, nil
		}
	}
	return nil, appErr.ErrNotFound
}

func (c *fakeCodes) FindLive(_ context.Context, identityID, purpose, code string, now int64) (*model.OtpCode, error) {
	return c.find(func(o *model.OtpCode) bool {
		return o.IdentityID == identityID && o.Purpose == purpose && o.Code == code && !o.IsUsed && o.ExpiresAt > now
	})
}

func (c *fakeCodes) FindLatestByCode(_ context.Context, identityID, purpose, code string) (*model.OtpCode, error) {
	return c.find(func(o *model.OtpCode) bool {
		return o.IdentityID == identityID && o.Purpose == purpose && o.Code == code
	})
}

func (c *fakeCodes) MarkUsed(_ context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, code := range c.codes {
		if code.ID == id && !code.IsUsed {
			code.IsUsed = true
			return true, nil
		}
	}
	return false, nil
}

type recordingJobs struct {
	mu   sync.Mutex
	jobs []job.Job
}

func (r *recordingJobs) Enqueue(_ context.Context, j job.Job) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs = append(r.jobs, j)
	return nil
}

func (r *recordingJobs) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.jobs)
}

// lastCode returns the code of the most recent OTP email sent for purpose.
func (r *recordingJobs) lastCode(t *testing.T, purpose string) string {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.jobs) - 1; i >= 0; i-- {
		if r.jobs[i].Type == job.TypeOTPEmail && r.jobs[i].Payload[job.PayloadPurpose] == purpose {
			return r.jobs[i].Payload[job.PayloadCode]
		}
	}
	t.Fatalf("no %s code sent", purpose)
	return ""
}

type testEnv struct {
	store      *fakeStore
	jobs       *recordingJobs
	redis      *miniredis.Miniredis
	identities *cache.IdentityCache
	views      *cache.GenericCache
	issuer     *jwt.Issuer
	profiles   *IdentityService
	devices    *DeviceService
	auth       *AuthService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store := newFakeStore()
	identities, err := cache.NewIdentityCache(cache.IdentityCacheConfig{})
	require.NoError(t, err)
	views := cache.NewGenericCache(client, "test")
	issuer, err := jwt.NewIssuer([]byte(testSecret), time.Hour)
	require.NoError(t, err)
	hasher, err := password.NewArgon2(password.Argon2Config{
		MemoryKB: 8192, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32,
	})
	require.NoError(t, err)
	manager := device.NewManager(store.devices, hasher, time.Hour)
	codes := otp.NewStore(otp.NewMemoryTier(time.Minute), store.codes, 5*time.Minute)
	jobs := &recordingJobs{}

	profiles := NewIdentityService(store, identities, views)
	auth := NewAuthService(AuthServiceDeps{
		Identities: store,
		Registrar:  store,
		Profiles:   profiles,
		Devices:    manager,
		Codes:      codes,
		Issuer:     issuer,
		Views:      views,
		Jobs:       jobs,
	})
	return &testEnv{
		store:      store,
		jobs:       jobs,
		redis:      mr,
		identities: identities,
		views:      views,
		issuer:     issuer,
		profiles:   profiles,
		devices:    NewDeviceService(manager, views, time.Minute),
		auth:       auth,
	}
}

func (e *testEnv) oauth(exchangers ...oauth.Exchanger) *OAuthService {
	return NewOAuthService(oauth.NewRegistryWith(exchangers...), e.store, e.store, e.store, e.auth)
}
