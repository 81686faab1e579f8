//go:build !linux

package ble

// preflight has nothing to check outside Linux; the platform stack reports
// its own availability through Enable.
func preflight() error { return nil }

// Write performs an acknowledged write.
func (c *tinyGoCharacteristic) Write(data []byte) error {
	_, err := c.char.Write(data)
	return err
}
