package ble

import (
	"errors"
	"fmt"
)

var (
	// ErrCapabilityUnavailable means the platform lacks usable BLE support.
	// Connect fails with it before any discovery is attempted.
	ErrCapabilityUnavailable = errors.New("ble: bluetooth capability unavailable")
	// ErrTimeout means the connect sequence exceeded its bound.
	ErrTimeout = errors.New("ble: connect timed out")
	// ErrNoDevice means discovery finished without a matching peripheral.
	ErrNoDevice = errors.New("ble: no matching device found")
	// ErrConnectInProgress is returned when Connect is called while another
	// connect sequence is still running.
	ErrConnectInProgress = errors.New("ble: connect already in progress")
	// ErrNotConnected is wrapped by WriteError when a command is sent
	// outside the Connected state.
	ErrNotConnected = errors.New("ble: not connected")
	// ErrLinkLost means the peripheral dropped the link while connecting.
	ErrLinkLost = errors.New("ble: link lost")
	// ErrSessionClosed means Close was called while a connect was running.
	ErrSessionClosed = errors.New("ble: session closed")
)

// Step names a stage of the connect sequence.
type Step string

const (
	StepDiscover       Step = "discover"
	StepConnect        Step = "connect"
	StepResolveCommand Step = "resolve-command"
	StepResolveStatus  Step = "resolve-status"
	StepSubscribe      Step = "subscribe"
)

// ConnectError reports which step of the connect sequence failed.
type ConnectError struct {
	Step Step
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("ble: connect failed at %s: %v", e.Step, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// WriteError reports a command that could not be written.
type WriteError struct {
	Command string
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ble: write %s: %v", e.Command, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
