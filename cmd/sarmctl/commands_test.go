package main

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/chaz8081/sarmctl/internal/arm"
	"github.com/chaz8081/sarmctl/internal/ble"
)

func TestParseOperation(t *testing.T) {
	tests := []struct {
		line    string
		want    operation
		wantErr string
	}{
		{line: "", want: operation{kind: opNone}},
		{line: "   ", want: operation{kind: opNone}},
		{line: "connect", want: operation{kind: opConnect}},
		{line: "C", want: operation{kind: opConnect}},
		{line: "send", want: operation{kind: opSendPose}},
		{line: "home", want: operation{kind: opHome}},
		{line: "status", want: operation{kind: opStatus}},
		{line: "help", want: operation{kind: opHelp}},
		{line: "quit", want: operation{kind: opQuit}},
		{line: "exit", want: operation{kind: opQuit}},
		{line: "set 2 45", want: operation{kind: opSetJoint, joint: 2, angle: 45}},
		{line: "set joint3 45", want: operation{kind: opSetJoint, joint: 2, angle: 45}},
		{line: "SET Joint1 -10", want: operation{kind: opSetJoint, joint: 0, angle: -10}},
		{line: "pose 10 20 30 40 50", want: operation{kind: opSetPose, pose: arm.Pose{10, 20, 30, 40, 50}}},
		{line: "pose -5 20 30 40 500", want: operation{kind: opSetPose, pose: arm.Pose{0, 20, 30, 40, 180}}},

		{line: "home now", wantErr: "unexpected arguments"},
		{line: "set 2", wantErr: "usage: set"},
		{line: "set 5 45", wantErr: "out of range"},
		{line: "set joint9 45", wantErr: "joint9"},
		{line: "set 2 abc", wantErr: "invalid angle"},
		{line: "pose 1 2 3", wantErr: "needs 5 angles"},
		{line: "pose 1 2 3 4 x", wantErr: "invalid angle"},
		{line: "dance", wantErr: "unknown command"},
	}

	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, err := parseOperation(tt.line)
			if tt.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
					t.Fatalf("parseOperation(%q) error = %v, want containing %q", tt.line, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseOperation(%q) error = %v", tt.line, err)
			}
			if got != tt.want {
				t.Errorf("parseOperation(%q) = %+v, want %+v", tt.line, got, tt.want)
			}
		})
	}
}

func TestFormatPose(t *testing.T) {
	got := formatPose(arm.Pose{10, 20, 30, 40, 50})
	want := "joint1=10 joint2=20 joint3=30 joint4=40 joint5=50"
	if got != want {
		t.Errorf("formatPose() = %q, want %q", got, want)
	}
}

func TestDescribeConnectError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"unavailable", fmt.Errorf("enable: %w", ble.ErrCapabilityUnavailable), "not available"},
		{"in progress", ble.ErrConnectInProgress, "already running"},
		{"timeout", &ble.ConnectError{Step: ble.StepConnect, Err: ble.ErrTimeout}, "Timed out"},
		{"no device", &ble.ConnectError{Step: ble.StepDiscover, Err: ble.ErrNoDevice}, "No arm found"},
		{"step", &ble.ConnectError{Step: ble.StepSubscribe, Err: errors.New("busy")}, "during subscribe: busy"},
		{"other", errors.New("boom"), "Connection failed: boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := describeConnectError(tt.err); !strings.Contains(got, tt.want) {
				t.Errorf("describeConnectError() = %q, want containing %q", got, tt.want)
			}
		})
	}
}
