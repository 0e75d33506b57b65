package service

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/rentdesk/internal/cache"
	"github.com/xxxsen/rentdesk/internal/device"
	"github.com/xxxsen/rentdesk/internal/job"
	"github.com/xxxsen/rentdesk/internal/model"
	"github.com/xxxsen/rentdesk/internal/otp"
	appErr "github.com/xxxsen/rentdesk/internal/pkg/errors"
	"github.com/xxxsen/rentdesk/internal/pkg/jwt"
	"github.com/xxxsen/rentdesk/internal/pkg/password"
)

const defaultResendCooldown = time.Minute

type IdentityLookup interface {
	GetByEmail(ctx context.Context, email string) (*model.Identity, error)
	GetByID(ctx context.Context, id string) (*model.Identity, error)
}

// Registrar writes a new identity, its first device and its first code in
// one transaction.
type Registrar interface {
	CreatePending(ctx context.Context, identity *model.Identity, device *model.Device,
		inTx func(ctx context.Context, codes otp.DurableTier) error) error
}

type DeviceInfo struct {
	IP          string
	UserAgent   string
	Fingerprint string
}

type RegisterInput struct {
	Email    string
	Password string
	Device   DeviceInfo
}

type LoginInput struct {
	Email       string
	Password    string
	Device      DeviceInfo
	DeviceToken string
}

type VerifyInput struct {
	Email       string
	Code        string
	Device      DeviceInfo
	DeviceToken string
}

// Session is what a successful authentication hands back to the client.
type Session struct {
	Token       string
	ExpiresIn   time.Duration
	DeviceToken string
	DeviceID    string
	Identity    *model.IdentitySnapshot
}

// Challenge tells the client an OTP was sent and must be verified first.
type Challenge struct {
	Purpose  string
	Reason   string
	Email    string
	DeviceID string
}

type LoginResult struct {
	Session   *Session
	Challenge *Challenge
}

type AuthServiceDeps struct {
	Identities     IdentityLookup
	Registrar      Registrar
	Profiles       *IdentityService
	Devices        *device.Manager
	Codes          *otp.Store
	Issuer         *jwt.Issuer
	Views          *cache.GenericCache
	Jobs           job.Dispatcher
	ResendCooldown time.Duration
}

type AuthService struct {
	identities     IdentityLookup
	registrar      Registrar
	profiles       *IdentityService
	devices        *device.Manager
	codes          *otp.Store
	issuer         *jwt.Issuer
	views          *cache.GenericCache
	jobs           job.Dispatcher
	resendCooldown time.Duration
	now            func() time.Time
}

func NewAuthService(deps AuthServiceDeps) *AuthService {
	cooldown := deps.ResendCooldown
	if cooldown <= 0 {
		cooldown = defaultResendCooldown
	}
	return &AuthService{
		identities:     deps.Identities,
		registrar:      deps.Registrar,
		profiles:       deps.Profiles,
		devices:        deps.Devices,
		codes:          deps.Codes,
		issuer:         deps.Issuer,
		views:          deps.Views,
		jobs:           deps.Jobs,
		resendCooldown: cooldown,
		now:            time.Now,
	}
}

func normalizeEmail(email string) (string, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return "", appErr.ErrInvalid
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return "", appErr.ErrInvalid
	}
	return email, nil
}

// Register creates an unverified manager account and emails its
// verification code. The identity, device and code commit together.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*Challenge, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	hash, err := password.Hash(input.Password)
	if errors.Is(err, password.ErrTooShort) {
		return nil, fmt.Errorf("%w: password must be at least %d characters", appErr.ErrInvalid, password.MinLength)
	}
	if err != nil {
		return nil, err
	}
	now := s.now().Unix()
	identity := &model.Identity{
		ID:           newID(),
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleManager,
		IsActive:     true,
		Ctime:        now,
		Mtime:        now,
	}
	d := device.NewTracked(identity.ID, input.Device.IP, input.Device.UserAgent, input.Device.Fingerprint, now)
	var code string
	err = s.registrar.CreatePending(ctx, identity, d, func(ctx context.Context, codes otp.DurableTier) error {
		var err error
		code, err = s.codes.WithDurable(codes).Create(ctx, identity.ID, model.OtpPurposeEmailVerification)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.sendCode(ctx, email, model.OtpPurposeEmailVerification, code)
	logutil.GetLogger(ctx).Info("identity registered", zap.String("identity_id", identity.ID))
	return &Challenge{
		Purpose:  model.OtpPurposeEmailVerification,
		Reason:   appErr.ReasonEmailNotVerified,
		Email:    email,
		DeviceID: d.ID,
	}, nil
}

// Login checks the password, then decides between issuing a session and
// challenging the device with an OTP.
func (s *AuthService) Login(ctx context.Context, input LoginInput) (*LoginResult, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, appErr.Unauthorized(appErr.ReasonInvalidCredentials, "invalid email or password")
	}
	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, appErr.Unauthorized(appErr.ReasonInvalidCredentials, "invalid email or password")
		}
		return nil, err
	}
	if identity.PasswordHash == "" || password.Compare(identity.PasswordHash, input.Password) != nil {
		return nil, appErr.Unauthorized(appErr.ReasonInvalidCredentials, "invalid email or password")
	}
	if !identity.IsActive {
		return nil, appErr.Unauthorized(appErr.ReasonInactive, "account is inactive")
	}
	info := input.Device
	if !identity.IsEmailVerified {
		sighting, err := s.devices.TrackSighting(ctx, identity.ID, info.IP, info.UserAgent, info.Fingerprint)
		if err != nil {
			return nil, err
		}
		challenge, err := s.challenge(ctx, identity, model.OtpPurposeEmailVerification, appErr.ReasonEmailNotVerified, sighting.DeviceID)
		if err != nil {
			return nil, err
		}
		return &LoginResult{Challenge: challenge}, nil
	}

	var mismatch *device.ValidateResult
	if input.DeviceToken != "" {
		res, err := s.devices.ValidateToken(ctx, identity.ID, input.DeviceToken, info.Fingerprint)
		if err != nil {
			return nil, err
		}
		if res.Valid && !res.FingerprintMismatch {
			session, err := s.issueSession(ctx, identity, info, input.DeviceToken)
			if err != nil {
				return nil, err
			}
			return &LoginResult{Session: session}, nil
		}
		if res.FingerprintMismatch {
			mismatch = &res
		}
	}

	sighting, err := s.devices.TrackSighting(ctx, identity.ID, info.IP, info.UserAgent, info.Fingerprint)
	if err != nil {
		return nil, err
	}
	if mismatch != nil || sighting.IsNewDevice || !sighting.Verified {
		deviceID := sighting.DeviceID
		if mismatch != nil {
			deviceID = mismatch.DeviceID
		}
		challenge, err := s.challenge(ctx, identity, model.OtpPurposeDeviceVerification, "", deviceID)
		if err != nil {
			return nil, err
		}
		return &LoginResult{Challenge: challenge}, nil
	}
	session, err := s.issueSession(ctx, identity, info, "")
	if err != nil {
		return nil, err
	}
	return &LoginResult{Session: session}, nil
}

// VerifyEmail consumes an email verification code, marks the address
// verified and signs the caller in on the device that registered.
func (s *AuthService) VerifyEmail(ctx context.Context, input VerifyInput) (*Session, error) {
	identity, err := s.verifyCode(ctx, input, model.OtpPurposeEmailVerification)
	if err != nil {
		return nil, err
	}
	if err := s.profiles.MarkEmailVerified(ctx, identity.ID); err != nil {
		return nil, err
	}
	identity.IsEmailVerified = true
	return s.issueSession(ctx, identity, input.Device, input.DeviceToken)
}

// VerifyDevice consumes a device challenge and trusts the calling device.
func (s *AuthService) VerifyDevice(ctx context.Context, input VerifyInput) (*Session, error) {
	identity, err := s.verifyCode(ctx, input, model.OtpPurposeDeviceVerification)
	if err != nil {
		return nil, err
	}
	return s.issueSession(ctx, identity, input.Device, input.DeviceToken)
}

func (s *AuthService) verifyCode(ctx context.Context, input VerifyInput, purpose string) (*model.Identity, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil, appErr.Unauthorized(appErr.ReasonCodeInvalid, "invalid verification code")
		}
		return nil, err
	}
	res, err := s.codes.Verify(ctx, identity.ID, purpose, input.Code)
	if err != nil {
		return nil, err
	}
	if err := verifyError(res); err != nil {
		return nil, err
	}
	if !identity.IsActive {
		return nil, appErr.Unauthorized(appErr.ReasonInactive, "account is inactive")
	}
	return identity, nil
}

func verifyError(res otp.VerifyResult) error {
	switch {
	case res.Valid:
		return nil
	case res.Expired:
		return appErr.Unauthorized(appErr.ReasonCodeExpired, "verification code has expired")
	case res.AlreadyUsed:
		return appErr.Unauthorized(appErr.ReasonCodeUsed, "verification code was already used")
	default:
		return appErr.Unauthorized(appErr.ReasonCodeInvalid, "invalid verification code")
	}
}

// ResendCode issues a fresh code for purpose, at most once per cooldown.
// Unknown or already verified addresses succeed silently.
func (s *AuthService) ResendCode(ctx context.Context, email, purpose string) error {
	if !model.ValidOtpPurpose(purpose) {
		return appErr.ErrInvalid
	}
	email, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	identity, err := s.identities.GetByEmail(ctx, email)
	if err != nil {
		if appErr.IsNotFound(err) {
			return nil
		}
		return err
	}
	if purpose == model.OtpPurposeEmailVerification && identity.IsEmailVerified {
		return nil
	}
	ok, err := s.views.SetNX(ctx, "otp:cooldown:"+purpose+":"+identity.ID, s.now().Unix(), s.resendCooldown)
	if err != nil {
		logutil.GetLogger(ctx).Warn("resend cooldown unavailable", zap.String("identity_id", identity.ID), zap.Error(err))
	} else if !ok {
		return appErr.ErrTooMany
	}
	code, err := s.codes.Create(ctx, identity.ID, purpose)
	if err != nil {
		return err
	}
	s.sendCode(ctx, identity.Email, purpose, code)
	return nil
}

// Logout revokes the device token held by the session owner. A missing or
// invalid session is not an error; the caller clears cookies regardless.
func (s *AuthService) Logout(ctx context.Context, sessionToken, deviceToken string) error {
	if sessionToken == "" || deviceToken == "" {
		return nil
	}
	claims, err := s.issuer.Verify(sessionToken)
	if err != nil {
		return nil
	}
	if err := s.devices.Revoke(ctx, claims.IdentityID, deviceToken); err != nil {
		return err
	}
	s.profiles.Invalidate(ctx, claims.IdentityID)
	return nil
}

func (s *AuthService) challenge(ctx context.Context, identity *model.Identity, purpose, reason, deviceID string) (*Challenge, error) {
	code, err := s.codes.Create(ctx, identity.ID, purpose)
	if err != nil {
		return nil, err
	}
	s.sendCode(ctx, identity.Email, purpose, code)
	return &Challenge{Purpose: purpose, Reason: reason, Email: identity.Email, DeviceID: deviceID}, nil
}

func (s *AuthService) sendCode(ctx context.Context, email, purpose, code string) {
	if err := s.jobs.Enqueue(ctx, job.OTPEmail(email, purpose, code)); err != nil {
		logutil.GetLogger(ctx).Error("enqueue otp email failed", zap.String("purpose", purpose), zap.Error(err))
	}
}

// issueSession trusts the calling device and signs a session for identity.
func (s *AuthService) issueSession(ctx context.Context, identity *model.Identity, info DeviceInfo, existingToken string) (*Session, error) {
	issued, err := s.devices.IssueOrRefreshToken(ctx, device.IssueParams{
		IdentityID:    identity.ID,
		IP:            info.IP,
		UserAgent:     info.UserAgent,
		Fingerprint:   info.Fingerprint,
		ExistingToken: existingToken,
	})
	if err != nil {
		return nil, err
	}
	session, err := s.sign(ctx, identity)
	if err != nil {
		return nil, err
	}
	session.DeviceToken = issued.Token
	session.DeviceID = issued.DeviceID
	return session, nil
}

func (s *AuthService) sign(ctx context.Context, identity *model.Identity) (*Session, error) {
	token, err := s.issuer.Sign(identity.ID, identity.Email, identity.Role)
	if err != nil {
		return nil, err
	}
	s.profiles.Invalidate(ctx, identity.ID)
	snapshot, err := s.profiles.Resolve(ctx, identity.ID)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresIn: s.issuer.TTL(), Identity: snapshot}, nil
}
