//go:build linux

package ble

import (
	"strings"
	"testing"

	"github.com/godbus/dbus/v5"
)

func TestNameListed(t *testing.T) {
	names := []string{"org.freedesktop.DBus", ":1.4", "org.bluez"}
	if !nameListed(names, "org.bluez") {
		t.Error("nameListed() = false, want true")
	}
	if nameListed(names[:2], "org.bluez") {
		t.Error("nameListed() = true without org.bluez")
	}
	if nameListed(nil, "org.bluez") {
		t.Error("nameListed(nil) = true")
	}
}

func TestDeviceObjectPath(t *testing.T) {
	got := deviceObjectPath("aa:bb:cc:dd:ee:ff")
	if want := dbus.ObjectPath("/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF"); got != want {
		t.Errorf("deviceObjectPath() = %q, want %q", got, want)
	}
}

func TestFindCharacteristicPath(t *testing.T) {
	device := deviceObjectPath("AA:BB:CC:DD:EE:FF")
	char := func(uuid string) map[string]map[string]dbus.Variant {
		return map[string]map[string]dbus.Variant{
			bluezCharIface: {"UUID": dbus.MakeVariant(uuid)},
		}
	}
	objects := map[dbus.ObjectPath]map[string]map[string]dbus.Variant{
		device + "/service000a": {"org.bluez.GattService1": {"UUID": dbus.MakeVariant(ServiceUUID)}},
		device + "/service000a/char000b": char(CommandCharUUID),
		device + "/service000a/char000d": char(StatusCharUUID),
		"/org/bluez/hci0/dev_11_22_33_44_55_66/service000a/char000b": char(CommandCharUUID),
	}

	tests := []struct {
		name   string
		device dbus.ObjectPath
		uuid   string
		want   dbus.ObjectPath
		wantOK bool
	}{
		{"command", device, CommandCharUUID, device + "/service000a/char000b", true},
		{"status upper case", device, strings.ToUpper(StatusCharUUID), device + "/service000a/char000d", true},
		{"service is not a characteristic", device, ServiceUUID, "", false},
		{"other device", deviceObjectPath("99:99:99:99:99:99"), CommandCharUUID, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := findCharacteristicPath(objects, tt.device, tt.uuid)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("findCharacteristicPath() = %q, %v, want %q, %v", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}
