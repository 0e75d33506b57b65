package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type OtpPurger interface {
	DeleteBefore(ctx context.Context, cutoff int64) (int64, error)
}

type DevicePurger interface {
	DeleteStale(ctx context.Context, before int64) (int64, error)
}

// OTPCleanupJob deletes durable OTP rows that expired longer than retention ago.
type OTPCleanupJob struct {
	codes     OtpPurger
	retention time.Duration
	now       func() time.Time
}

func NewOTPCleanupJob(codes OtpPurger, retention time.Duration) *OTPCleanupJob {
	if retention <= 0 {
		retention = 7 * 24 * time.Hour
	}
	return &OTPCleanupJob{codes: codes, retention: retention, now: time.Now}
}

func (j *OTPCleanupJob) Name() string {
	return "otp_cleanup"
}

func (j *OTPCleanupJob) Run(ctx context.Context) error {
	n, err := j.codes.DeleteBefore(ctx, j.now().Add(-j.retention).Unix())
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("otp codes purged", zap.Int64("count", n))
	return nil
}

// DeviceCleanupJob deletes revoked or token-expired devices unseen for retention.
type DeviceCleanupJob struct {
	devices   DevicePurger
	retention time.Duration
	now       func() time.Time
}

func NewDeviceCleanupJob(devices DevicePurger, retention time.Duration) *DeviceCleanupJob {
	if retention <= 0 {
		retention = 180 * 24 * time.Hour
	}
	return &DeviceCleanupJob{devices: devices, retention: retention, now: time.Now}
}

func (j *DeviceCleanupJob) Name() string {
	return "device_cleanup"
}

func (j *DeviceCleanupJob) Run(ctx context.Context) error {
	n, err := j.devices.DeleteStale(ctx, j.now().Add(-j.retention).Unix())
	if err != nil {
		return err
	}
	logutil.GetLogger(ctx).Info("stale devices purged", zap.Int64("count", n))
	return nil
}
