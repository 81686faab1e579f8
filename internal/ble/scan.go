package ble

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// ScanForDevices scans for peripherals advertising serviceUUID and returns
// them strongest signal first.
func ScanForDevices(adapter Adapter, serviceUUID string, timeout time.Duration) ([]Device, error) {
	if err := adapter.Enable(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrCapabilityUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	devices, err := adapter.Scan(ctx, serviceUUID)
	if err != nil {
		return nil, fmt.Errorf("ble: scan: %w", err)
	}
	sort.SliceStable(devices, func(i, j int) bool {
		return devices[i].RSSI > devices[j].RSSI
	})
	return devices, nil
}
