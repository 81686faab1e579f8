package ble

import (
	"errors"
	"testing"
	"time"
)

func TestScanForDevices(t *testing.T) {
	adapter := newMockAdapter([]Device{
		{Name: "SARM-far", MAC: "11:11:11:11:11:11", RSSI: -90},
		{Name: "SARM-near", MAC: "22:22:22:22:22:22", RSSI: -35},
	})

	result, err := ScanForDevices(adapter, ServiceUUID, 5*time.Second)
	if err != nil {
		t.Fatalf("ScanForDevices() error = %v", err)
	}
	if len(result) != 2 {
		t.Fatalf("got %d devices, want 2", len(result))
	}
	if result[0].Name != "SARM-near" {
		t.Errorf("first device = %q, want strongest signal first", result[0].Name)
	}
}

func TestScanForDevicesEmpty(t *testing.T) {
	adapter := newMockAdapter(nil)
	result, err := ScanForDevices(adapter, ServiceUUID, 5*time.Second)
	if err != nil {
		t.Fatalf("ScanForDevices() error = %v", err)
	}
	if len(result) != 0 {
		t.Fatalf("got %d devices, want 0", len(result))
	}
}

func TestScanForDevicesWithoutBluetooth(t *testing.T) {
	adapter := newMockAdapter(nil)
	adapter.enableErr = errMock
	_, err := ScanForDevices(adapter, ServiceUUID, time.Second)
	if !errors.Is(err, ErrCapabilityUnavailable) {
		t.Errorf("ScanForDevices() error = %v, want ErrCapabilityUnavailable", err)
	}
}
