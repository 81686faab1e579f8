package ble

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// mockCharacteristic records acknowledged writes and allows subscribing.
type mockCharacteristic struct {
	mu           sync.Mutex
	writes       [][]byte
	callback     func([]byte)
	writeErr     error
	subscribeErr error
	unsubscribed int
	// writeBlock, when set, makes the next Write signal writeStarted and
	// wait until writeBlock is closed.
	writeBlock   chan struct{}
	writeStarted chan struct{}
}

func (c *mockCharacteristic) Write(data []byte) error {
	c.mu.Lock()
	block, started := c.writeBlock, c.writeStarted
	c.writeBlock = nil
	c.mu.Unlock()
	if block != nil {
		close(started)
		<-block
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	return nil
}

func (c *mockCharacteristic) Subscribe(cb func([]byte)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.subscribeErr != nil {
		return c.subscribeErr
	}
	c.callback = cb
	return nil
}

func (c *mockCharacteristic) Unsubscribe() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.callback = nil
	c.unsubscribed++
	return nil
}

// handler returns the currently registered notification callback.
func (c *mockCharacteristic) handler() func([]byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.callback
}

// SimulateNotification sends a notification to the subscriber.
func (c *mockCharacteristic) SimulateNotification(data []byte) {
	if cb := c.handler(); cb != nil {
		cb(data)
	}
}

func (c *mockCharacteristic) writtenStrings() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.writes))
	for i, w := range c.writes {
		out[i] = string(w)
	}
	return out
}

// mockUnackedCharacteristic additionally supports write-without-response.
type mockUnackedCharacteristic struct {
	*mockCharacteristic
	unacked [][]byte
}

func (c *mockUnackedCharacteristic) WriteWithoutResponse(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.writeErr != nil {
		return c.writeErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.unacked = append(c.unacked, cp)
	return nil
}

// mockConnection simulates a BLE connection.
type mockConnection struct {
	mu            sync.Mutex
	cmdChar       Characteristic
	statusChar    *mockCharacteristic
	missingCmd    bool
	missingStatus bool
	disconnectCb  func()
	disconnected  bool
	// onDiscover, when set, runs at the start of DiscoverCharacteristic.
	onDiscover func(charUUID string)
}

func newMockConnection() *mockConnection {
	return &mockConnection{
		cmdChar:    &mockCharacteristic{},
		statusChar: &mockCharacteristic{},
	}
}

// command returns the acknowledged-write mock behind the command channel.
func (c *mockConnection) command() *mockCharacteristic {
	switch ch := c.cmdChar.(type) {
	case *mockCharacteristic:
		return ch
	case *mockUnackedCharacteristic:
		return ch.mockCharacteristic
	}
	return nil
}

func (c *mockConnection) DiscoverCharacteristic(serviceUUID, charUUID string) (Characteristic, error) {
	if c.onDiscover != nil {
		c.onDiscover(charUUID)
	}
	if serviceUUID != ServiceUUID {
		return nil, fmt.Errorf("mock: unknown service UUID %q", serviceUUID)
	}
	switch {
	case charUUID == CommandCharUUID && !c.missingCmd:
		return c.cmdChar, nil
	case charUUID == StatusCharUUID && !c.missingStatus:
		return c.statusChar, nil
	default:
		return nil, fmt.Errorf("mock: characteristic %q not found", charUUID)
	}
}

func (c *mockConnection) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnected = true
	return nil
}

func (c *mockConnection) isDisconnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnected
}

func (c *mockConnection) OnDisconnect(cb func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectCb = cb
}

// disconnectHandler returns the currently registered disconnect callback.
func (c *mockConnection) disconnectHandler() func() {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.disconnectCb
}

// SimulateDisconnect triggers the disconnect callback.
func (c *mockConnection) SimulateDisconnect() {
	if cb := c.disconnectHandler(); cb != nil {
		cb()
	}
}

// mockAdapter simulates the BLE adapter.
type mockAdapter struct {
	mu         sync.Mutex
	devices    []Device
	enableErr  error
	connectErr error
	// connectBlock, when set, makes Connect hang until it is closed,
	// ignoring the context like an unresponsive platform would.
	connectBlock chan struct{}
	// configure, when set, customizes each new connection.
	configure  func(*mockConnection)
	scans      int
	connection *mockConnection // most recent connection for test assertions
}

func newMockAdapter(devices []Device) *mockAdapter {
	return &mockAdapter{devices: devices}
}

func (a *mockAdapter) Enable() error { return a.enableErr }

func (a *mockAdapter) Scan(_ context.Context, _ string) ([]Device, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.scans++
	return a.devices, nil
}

func (a *mockAdapter) Connect(_ context.Context, _ string) (Connection, error) {
	if a.connectBlock != nil {
		<-a.connectBlock
	}
	if a.connectErr != nil {
		return nil, a.connectErr
	}
	conn := newMockConnection()
	if a.configure != nil {
		a.configure(conn)
	}
	a.mu.Lock()
	a.connection = conn
	a.mu.Unlock()
	return conn, nil
}

// latestConnection returns the most recently created connection (thread-safe).
func (a *mockAdapter) latestConnection() *mockConnection {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.connection
}

func (a *mockAdapter) scanCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.scans
}

var errMock = errors.New("mock failure")

func TestMockAdapterImplementsInterface(t *testing.T) {
	var _ Adapter = (*mockAdapter)(nil)
}

func TestMockConnectionImplementsInterface(t *testing.T) {
	var _ Connection = (*mockConnection)(nil)
}

func TestMockCharacteristicImplementsInterface(t *testing.T) {
	var _ Characteristic = (*mockCharacteristic)(nil)
	var _ UnacknowledgedWriter = (*mockUnackedCharacteristic)(nil)
}
