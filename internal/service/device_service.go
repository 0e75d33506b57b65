package service

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/rentdesk/internal/cache"
	"github.com/xxxsen/rentdesk/internal/device"
	"github.com/xxxsen/rentdesk/internal/model"
)

type DeviceService struct {
	devices *device.Manager
	views   *cache.GenericCache
	listTTL time.Duration
}

func NewDeviceService(devices *device.Manager, views *cache.GenericCache, listTTL time.Duration) *DeviceService {
	if listTTL <= 0 {
		listTTL = time.Minute
	}
	return &DeviceService{devices: devices, views: views, listTTL: listTTL}
}

func deviceListKey(identityID string) string {
	return "identity:" + identityID + ":devices"
}

func (s *DeviceService) ListDevices(ctx context.Context, identityID string) ([]*model.Device, error) {
	return cache.GetOrSet(ctx, s.views, deviceListKey(identityID), s.listTTL, func(ctx context.Context) ([]*model.Device, error) {
		items, err := s.devices.ListDevices(ctx, identityID)
		if err != nil {
			return nil, err
		}
		if items == nil {
			items = []*model.Device{}
		}
		return items, nil
	})
}

func (s *DeviceService) RevokeDevice(ctx context.Context, identityID, deviceID string) error {
	if err := s.devices.RevokeDevice(ctx, identityID, deviceID); err != nil {
		return err
	}
	if err := s.views.Del(ctx, deviceListKey(identityID)); err != nil {
		logutil.GetLogger(ctx).Warn("drop device list view failed", zap.String("identity_id", identityID), zap.Error(err))
	}
	return nil
}
