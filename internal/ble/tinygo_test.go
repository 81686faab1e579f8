package ble

import (
	"errors"
	"testing"
)

func TestEnableGateRetriesUntilSuccess(t *testing.T) {
	var g enableGate
	calls := 0
	preflightErr := errors.New("org.bluez not found on system bus")
	enable := func() error {
		calls++
		if calls == 1 {
			return preflightErr
		}
		return nil
	}

	if err := g.do(enable); !errors.Is(err, preflightErr) {
		t.Fatalf("first do() error = %v, want %v", err, preflightErr)
	}
	if err := g.do(enable); err != nil {
		t.Fatalf("second do() error = %v, want nil after the stack came up", err)
	}
	if err := g.do(enable); err != nil {
		t.Fatalf("third do() error = %v", err)
	}
	if calls != 2 {
		t.Errorf("enable ran %d times, want 2", calls)
	}
}
