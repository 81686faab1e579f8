//go:build linux

package ble

import (
	"errors"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const (
	bluezBusName     = "org.bluez"
	bluezAdapterPath = "/org/bluez/hci0"
	bluezAdapterIfce = "org.bluez.Adapter1"
	bluezCharIface   = "org.bluez.GattCharacteristic1"
	dbusPropsIface   = "org.freedesktop.DBus.Properties"
	dbusObjMgrIface  = "org.freedesktop.DBus.ObjectManager"
)

// preflight checks that BlueZ is running and the default adapter is powered,
// so a missing Bluetooth stack is reported as such instead of as a scan error.
func preflight() error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("connect to system bus: %w", err)
	}

	var names []string
	if err := conn.BusObject().Call("org.freedesktop.DBus.ListNames", 0).Store(&names); err != nil {
		return fmt.Errorf("list bus names: %w", err)
	}
	if !nameListed(names, bluezBusName) {
		return errors.New("org.bluez not found on system bus, is bluetooth.service running?")
	}

	var powered dbus.Variant
	obj := conn.Object(bluezBusName, bluezAdapterPath)
	if err := obj.Call(dbusPropsIface+".Get", 0, bluezAdapterIfce, "Powered").Store(&powered); err != nil {
		return fmt.Errorf("query %s: %w", bluezAdapterPath, err)
	}
	if on, ok := powered.Value().(bool); ok && !on {
		return fmt.Errorf("adapter %s is powered off", bluezAdapterPath)
	}
	return nil
}

func nameListed(names []string, want string) bool {
	for _, n := range names {
		if n == want {
			return true
		}
	}
	return false
}

// Write performs an acknowledged write (a GATT Write Request). tinygo's
// Linux backend only exposes write-without-response, so the request goes
// to BlueZ directly.
func (c *tinyGoCharacteristic) Write(data []byte) error {
	conn, err := dbus.SystemBus()
	if err != nil {
		return fmt.Errorf("ble: connect to system bus: %w", err)
	}
	path, err := c.objectPath(conn)
	if err != nil {
		return err
	}
	opts := map[string]dbus.Variant{"type": dbus.MakeVariant("request")}
	if err := conn.Object(bluezBusName, path).Call(bluezCharIface+".WriteValue", 0, data, opts).Err; err != nil {
		return fmt.Errorf("ble: write %s: %w", c.uuid, err)
	}
	return nil
}

// objectPath finds the BlueZ object for this characteristic once and caches it.
func (c *tinyGoCharacteristic) objectPath(conn *dbus.Conn) (dbus.ObjectPath, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.path != "" {
		return dbus.ObjectPath(c.path), nil
	}

	var objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	root := conn.Object(bluezBusName, "/")
	if err := root.Call(dbusObjMgrIface+".GetManagedObjects", 0).Store(&objects); err != nil {
		return "", fmt.Errorf("ble: list bluez objects: %w", err)
	}
	path, ok := findCharacteristicPath(objects, deviceObjectPath(c.mac), c.uuid)
	if !ok {
		return "", fmt.Errorf("ble: characteristic %s not found under %s", c.uuid, deviceObjectPath(c.mac))
	}
	c.path = string(path)
	return path, nil
}

// deviceObjectPath converts "AA:BB:CC:DD:EE:FF" to
// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func deviceObjectPath(mac string) dbus.ObjectPath {
	return dbus.ObjectPath(bluezAdapterPath + "/dev_" + strings.ReplaceAll(strings.ToUpper(mac), ":", "_"))
}

// findCharacteristicPath returns the GATT characteristic with the given UUID
// that belongs to device.
func findCharacteristicPath(objects map[dbus.ObjectPath]map[string]map[string]dbus.Variant, device dbus.ObjectPath, uuid string) (dbus.ObjectPath, bool) {
	prefix := string(device) + "/"
	for path, ifaces := range objects {
		if !strings.HasPrefix(string(path), prefix) {
			continue
		}
		props, ok := ifaces[bluezCharIface]
		if !ok {
			continue
		}
		if v, ok := props["UUID"].Value().(string); ok && strings.EqualFold(v, uuid) {
			return path, true
		}
	}
	return "", false
}
