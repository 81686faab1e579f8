package ble

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/chaz8081/sarmctl/internal/ble/protocol"
)

// State is the lifecycle state of a Session.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// Channels identifies the GATT service and characteristics exposed by the
// firmware. They are agreed out-of-band and fixed per firmware build.
type Channels struct {
	ServiceUUID string
	CommandUUID string // write
	StatusUUID  string // notify
}

// DefaultChannels returns the UUIDs used by the stock SARM firmware.
func DefaultChannels() Channels {
	return Channels{
		ServiceUUID: ServiceUUID,
		CommandUUID: CommandCharUUID,
		StatusUUID:  StatusCharUUID,
	}
}

// SessionOptions configures the BLE session behavior.
type SessionOptions struct {
	ConnectTimeout     time.Duration // bound on the whole connect sequence
	ScanWindow         time.Duration // how long discovery scans before picking a device
	DeviceName         string        // optional local-name prefix filter
	DeviceAddress      string        // optional exact address filter
	AcknowledgedWrites bool          // never use write-without-response
}

// DefaultSessionOptions returns sensible defaults.
func DefaultSessionOptions() SessionOptions {
	return SessionOptions{
		ConnectTimeout: 20 * time.Second,
		ScanWindow:     5 * time.Second,
	}
}

// Observer receives session events. Calls are serialized: a state change and
// a status report are never delivered concurrently. Implementations must not
// call Connect or Close from inside a callback.
type Observer interface {
	SessionStateChanged(state State)
	StatusReceived(report protocol.StatusReport)
}

// link holds the references resolved during one connect attempt.
type link struct {
	device Device
	conn   Connection
	cmd    Characteristic
	status Characteristic
}

// release unregisters callbacks and, if hangup is set, drops the connection.
func (l link) release(hangup bool) error {
	if l.status != nil {
		if err := l.status.Unsubscribe(); err != nil {
			slog.Debug("[BLE] unsubscribe failed", "error", err)
		}
	}
	if l.conn == nil {
		return nil
	}
	l.conn.OnDisconnect(nil)
	if !hangup {
		return nil
	}
	if err := l.conn.Disconnect(); err != nil {
		return fmt.Errorf("ble: disconnect: %w", err)
	}
	return nil
}

// Session manages the BLE connection to a SARM arm controller. It owns the
// connection state and the resolved characteristics, encodes outbound
// commands and decodes inbound status notifications.
type Session struct {
	adapter  Adapter
	channels Channels
	opts     SessionOptions

	// connecting guards against overlapping connect sequences.
	connecting atomic.Bool

	// events serializes observer delivery.
	events sync.Mutex

	mu       sync.Mutex
	state    State
	gen      uint64 // bumped on every transition into Connecting or Disconnected
	current  link
	observer Observer
	// abortAttempt cancels the connect sequence running under gen.
	abortAttempt context.CancelCauseFunc

	writeMu sync.Mutex
}

// NewSession creates a disconnected session. Zero option values fall back
// to DefaultSessionOptions.
func NewSession(adapter Adapter, channels Channels, opts SessionOptions) *Session {
	def := DefaultSessionOptions()
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = def.ConnectTimeout
	}
	if opts.ScanWindow <= 0 {
		opts.ScanWindow = def.ScanWindow
	}
	return &Session{
		adapter:  adapter,
		channels: channels,
		opts:     opts,
	}
}

// Observe registers the observer for state changes and status reports,
// replacing any previous one.
func (s *Session) Observe(obs Observer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observer = obs
}

// State returns the current connection state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Device returns the connected peripheral, if any.
func (s *Session) Device() (Device, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.current.device, s.state == Connected
}

// Connect discovers the arm, connects, resolves the command and status
// characteristics and subscribes to status notifications. The whole sequence
// is bounded by SessionOptions.ConnectTimeout. Calling Connect while already
// connected tears down the current link first.
//
// On failure the session is left Disconnected with no references held and
// the error is ErrCapabilityUnavailable, ErrConnectInProgress or a
// *ConnectError (which wraps ErrTimeout when the bound was exceeded).
func (s *Session) Connect(ctx context.Context) error {
	if !s.connecting.CompareAndSwap(false, true) {
		return ErrConnectInProgress
	}
	defer s.connecting.Store(false)

	if err := s.adapter.Enable(); err != nil {
		slog.Error("[BLE] adapter unavailable", "error", err)
		return fmt.Errorf("%w: %w", ErrCapabilityUnavailable, err)
	}

	ctx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
	defer cancel()
	ctx, abortAttempt := context.WithCancelCause(ctx)
	defer abortAttempt(nil)

	gen := s.begin(abortAttempt)

	var l link
	err := s.establish(ctx, gen, &l)
	if err == nil {
		err = s.commit(gen, l)
	}
	if err != nil {
		s.abort(gen, l, err)
		return err
	}
	return nil
}

// begin moves the session into Connecting, releasing any link still held.
// abortAttempt is called with the reason when the attempt is cut short by a
// disconnect or Close.
func (s *Session) begin(abortAttempt context.CancelCauseFunc) uint64 {
	s.events.Lock()
	s.mu.Lock()
	old := s.current
	prev := s.state
	s.current = link{}
	s.gen++
	gen := s.gen
	s.state = Connecting
	s.abortAttempt = abortAttempt
	obs := s.observer
	s.mu.Unlock()
	notifyState(obs, Connecting)
	s.events.Unlock()

	if prev == Connected {
		slog.Info("[BLE] dropping current link for new connect", "mac", old.device.MAC)
		if err := old.release(true); err != nil {
			slog.Warn("[BLE] failed to drop previous link", "error", err)
		}
	}
	return gen
}

// establish runs the discover, connect, resolve and subscribe steps, filling
// l as references are obtained so a failed attempt can be cleaned up.
func (s *Session) establish(ctx context.Context, gen uint64, l *link) error {
	dev, err := s.discover(ctx)
	if err != nil {
		return stepError(ctx, StepDiscover, err)
	}
	l.device = dev
	slog.Info("[BLE] connecting", "name", dev.Name, "mac", dev.MAC, "rssi", dev.RSSI)

	conn, err := await(ctx, func() (Connection, error) {
		return s.adapter.Connect(ctx, dev.MAC)
	}, func(c Connection) {
		_ = c.Disconnect()
	})
	if err != nil {
		return stepError(ctx, StepConnect, err)
	}
	l.conn = conn
	conn.OnDisconnect(func() { s.handleDisconnect(gen) })

	cmd, err := await(ctx, func() (Characteristic, error) {
		return conn.DiscoverCharacteristic(s.channels.ServiceUUID, s.channels.CommandUUID)
	}, nil)
	if err != nil {
		return stepError(ctx, StepResolveCommand, err)
	}
	l.cmd = cmd

	status, err := await(ctx, func() (Characteristic, error) {
		return conn.DiscoverCharacteristic(s.channels.ServiceUUID, s.channels.StatusUUID)
	}, nil)
	if err != nil {
		return stepError(ctx, StepResolveStatus, err)
	}

	_, err = await(ctx, func() (Characteristic, error) {
		return status, status.Subscribe(func(data []byte) { s.handleNotification(gen, data) })
	}, func(c Characteristic) {
		_ = c.Unsubscribe()
	})
	if err != nil {
		return stepError(ctx, StepSubscribe, err)
	}
	l.status = status
	return nil
}

// discover scans for the service and picks the best matching device.
func (s *Session) discover(ctx context.Context) (Device, error) {
	scanCtx, cancel := context.WithTimeout(ctx, s.opts.ScanWindow)
	defer cancel()

	devices, err := await(ctx, func() ([]Device, error) {
		return s.adapter.Scan(scanCtx, s.channels.ServiceUUID)
	}, nil)
	if err != nil {
		return Device{}, err
	}
	if err := ctx.Err(); err != nil {
		return Device{}, err
	}

	dev, ok := selectDevice(devices, s.opts.DeviceName, s.opts.DeviceAddress)
	if !ok {
		slog.Warn("[BLE] no matching device", "seen", len(devices), "name", s.opts.DeviceName, "address", s.opts.DeviceAddress)
		return Device{}, ErrNoDevice
	}
	return dev, nil
}

// commit publishes a fully established link and enters Connected.
func (s *Session) commit(gen uint64, l link) error {
	s.events.Lock()
	defer s.events.Unlock()

	s.mu.Lock()
	if s.gen != gen || s.state != Connecting {
		s.mu.Unlock()
		return &ConnectError{Step: StepSubscribe, Err: ErrLinkLost}
	}
	s.current = l
	s.state = Connected
	s.abortAttempt = nil
	obs := s.observer
	s.mu.Unlock()

	slog.Info("[BLE] connected", "name", l.device.Name, "mac", l.device.MAC)
	notifyState(obs, Connected)
	return nil
}

// abort returns a failed attempt to Disconnected and drops whatever it held.
func (s *Session) abort(gen uint64, l link, cause error) {
	slog.Warn("[BLE] connect failed", "error", cause)

	s.events.Lock()
	s.mu.Lock()
	current := s.gen == gen
	if current {
		s.current = link{}
		s.state = Disconnected
		s.abortAttempt = nil
		s.gen++
	}
	obs := s.observer
	s.mu.Unlock()
	if current {
		notifyState(obs, Disconnected)
	}
	s.events.Unlock()

	if err := l.release(true); err != nil {
		slog.Debug("[BLE] cleanup after failed connect", "error", err)
	}
}

// handleDisconnect handles a peripheral-initiated disconnect for the link
// established under gen. Events for older links are ignored.
func (s *Session) handleDisconnect(gen uint64) {
	s.events.Lock()
	s.mu.Lock()
	if s.gen != gen || s.state == Disconnected {
		s.mu.Unlock()
		s.events.Unlock()
		return
	}
	old := s.current
	prev := s.state
	abortAttempt := s.abortAttempt
	s.current = link{}
	s.state = Disconnected
	s.abortAttempt = nil
	s.gen++
	obs := s.observer
	s.mu.Unlock()

	if prev == Connecting && abortAttempt != nil {
		abortAttempt(ErrLinkLost)
	}
	slog.Warn("[BLE] disconnected", "mac", old.device.MAC, "while", prev)
	notifyState(obs, Disconnected)
	s.events.Unlock()

	_ = old.release(false)
}

// handleNotification decodes a status notification and forwards it to the
// observer. Notifications for anything but the live Connected link are
// discarded.
func (s *Session) handleNotification(gen uint64, data []byte) {
	s.events.Lock()
	defer s.events.Unlock()

	s.mu.Lock()
	live := s.gen == gen && s.state == Connected
	obs := s.observer
	s.mu.Unlock()

	if !live {
		slog.Debug("[BLE] discarding notification outside active session", "bytes", len(data))
		return
	}

	report, err := protocol.DecodeStatus(data)
	if err != nil {
		slog.Warn("[BLE] dropping malformed status", "error", err, "payload", printable(data))
		return
	}
	if obs != nil {
		obs.StatusReceived(report)
	}
}

// Send encodes cmd and writes it to the command characteristic. Outside the
// Connected state the command is dropped and a *WriteError wrapping
// ErrNotConnected is returned. Writes are issued in call order.
func (s *Session) Send(cmd protocol.Command) error {
	payload, err := protocol.Encode(cmd)
	if err != nil {
		return &WriteError{Command: commandName(cmd), Err: err}
	}

	// The link is read after taking writeMu so a command queued behind
	// another write never reaches a link dropped in the meantime.
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.Lock()
	state := s.state
	char := s.current.cmd
	s.mu.Unlock()

	if state != Connected || char == nil {
		slog.Info("[BLE] dropping command, not connected", "cmd", cmd.Name(), "state", state)
		return &WriteError{Command: cmd.Name(), Err: ErrNotConnected}
	}

	if err := s.write(char, payload); err != nil {
		slog.Error("[BLE] write failed", "cmd", cmd.Name(), "error", err)
		return &WriteError{Command: cmd.Name(), Err: err}
	}
	slog.Debug("[BLE] command sent", "cmd", cmd.Name(), "payload", string(payload))
	return nil
}

// write prefers write-without-response when the characteristic supports it.
func (s *Session) write(char Characteristic, payload []byte) error {
	if w, ok := char.(UnacknowledgedWriter); ok && !s.opts.AcknowledgedWrites {
		return w.WriteWithoutResponse(payload)
	}
	return char.Write(payload)
}

// Close releases the current link and disconnects from the peripheral.
// The session may be connected again afterwards.
func (s *Session) Close() error {
	s.events.Lock()
	s.mu.Lock()
	old := s.current
	prev := s.state
	abortAttempt := s.abortAttempt
	s.current = link{}
	s.state = Disconnected
	s.abortAttempt = nil
	s.gen++
	obs := s.observer
	s.mu.Unlock()
	if abortAttempt != nil {
		abortAttempt(ErrSessionClosed)
	}
	if prev != Disconnected {
		notifyState(obs, Disconnected)
	}
	s.events.Unlock()

	if prev == Connected {
		slog.Info("[BLE] closing", "mac", old.device.MAC)
	}
	return old.release(true)
}

// stepError attributes err to step. When the attempt's context is done, the
// reason it ended (timeout, link loss, Close) replaces err.
func stepError(ctx context.Context, step Step, err error) error {
	if ctx.Err() != nil {
		if cause := context.Cause(ctx); errors.Is(cause, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %w", ErrTimeout, cause)
		} else {
			err = cause
		}
	}
	return &ConnectError{Step: step, Err: err}
}

func notifyState(obs Observer, state State) {
	if obs != nil {
		obs.SessionStateChanged(state)
	}
}

// await runs fn and waits for it or for ctx, whichever finishes first. When
// ctx is done by the time a result is available, a successful result is
// handed to discard.
func await[T any](ctx context.Context, fn func() (T, error), discard func(T)) (T, error) {
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		if err := ctx.Err(); err != nil {
			if r.err == nil && discard != nil {
				discard(r.v)
			}
			var zero T
			return zero, err
		}
		return r.v, r.err
	case <-ctx.Done():
		if discard != nil {
			go func() {
				if r := <-ch; r.err == nil {
					discard(r.v)
				}
			}()
		}
		var zero T
		return zero, ctx.Err()
	}
}

// selectDevice picks the strongest device matching the optional filters.
func selectDevice(devices []Device, name, addr string) (Device, bool) {
	var best Device
	found := false
	for _, d := range devices {
		if addr != "" && !strings.EqualFold(d.MAC, addr) {
			continue
		}
		if name != "" && !strings.HasPrefix(d.Name, name) {
			continue
		}
		if !found || d.RSSI > best.RSSI {
			best = d
			found = true
		}
	}
	return best, found
}

func commandName(cmd protocol.Command) string {
	if cmd == nil {
		return "<nil>"
	}
	return cmd.Name()
}

// printable truncates a payload for logging.
func printable(data []byte) string {
	const limit = 64
	if len(data) > limit {
		return fmt.Sprintf("%q...", data[:limit])
	}
	return fmt.Sprintf("%q", data)
}
