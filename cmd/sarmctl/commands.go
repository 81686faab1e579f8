package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/chaz8081/sarmctl/internal/arm"
	"github.com/chaz8081/sarmctl/internal/ble"
)

// opKind is an operator command typed at the prompt.
type opKind int

const (
	opNone opKind = iota
	opConnect
	opSetJoint
	opSetPose
	opSendPose
	opHome
	opStatus
	opHelp
	opQuit
)

// operation is a parsed operator command.
type operation struct {
	kind  opKind
	joint arm.JointID
	angle int
	pose  arm.Pose
}

const helpText = `Commands:
  connect                      scan for the arm and connect
  set <joint> <angle>          move one joint (joint1..joint5 or 0..4, angle 0..180)
  pose <a0> <a1> <a2> <a3> <a4> move all joints
  send                         re-send the current pose
  home                         send the arm home
  status                       show connection state and pose
  help                         show this help
  quit                         disconnect and exit`

// parseOperation parses one line of operator input.
func parseOperation(line string) (operation, error) {
	fields := strings.Fields(strings.ToLower(line))
	if len(fields) == 0 {
		return operation{kind: opNone}, nil
	}

	cmd, args := fields[0], fields[1:]
	switch cmd {
	case "connect", "c":
		return simple(opConnect, args)
	case "send":
		return simple(opSendPose, args)
	case "home":
		return simple(opHome, args)
	case "status", "s":
		return simple(opStatus, args)
	case "help", "?":
		return simple(opHelp, args)
	case "quit", "exit", "q":
		return simple(opQuit, args)

	case "set":
		if len(args) != 2 {
			return operation{}, errors.New("usage: set <joint> <angle>")
		}
		id, err := parseJoint(args[0])
		if err != nil {
			return operation{}, err
		}
		angle, err := strconv.Atoi(args[1])
		if err != nil {
			return operation{}, fmt.Errorf("invalid angle %q", args[1])
		}
		return operation{kind: opSetJoint, joint: id, angle: angle}, nil

	case "pose":
		if len(args) != arm.NumJoints {
			return operation{}, fmt.Errorf("usage: pose needs %d angles, got %d", arm.NumJoints, len(args))
		}
		var p arm.Pose
		for i, a := range args {
			v, err := strconv.Atoi(a)
			if err != nil {
				return operation{}, fmt.Errorf("invalid angle %q", a)
			}
			p[i] = arm.Clamp(v)
		}
		return operation{kind: opSetPose, pose: p}, nil
	}
	return operation{}, fmt.Errorf("unknown command %q (try help)", cmd)
}

func simple(kind opKind, args []string) (operation, error) {
	if len(args) != 0 {
		return operation{}, fmt.Errorf("unexpected arguments: %s", strings.Join(args, " "))
	}
	return operation{kind: kind}, nil
}

// parseJoint accepts a joint label ("joint3") or a wire id ("2").
func parseJoint(s string) (arm.JointID, error) {
	if n, err := strconv.Atoi(s); err == nil {
		id := arm.JointID(n)
		if !id.Valid() {
			return 0, fmt.Errorf("joint id %d out of range 0..%d", n, arm.NumJoints-1)
		}
		return id, nil
	}
	return arm.JointIDOf(s)
}

// formatPose renders a pose as "joint1=90 joint2=90 ...".
func formatPose(p arm.Pose) string {
	parts := make([]string, len(p))
	for i, a := range p {
		parts[i] = fmt.Sprintf("%s=%d", arm.KeyOf(arm.JointID(i)), a)
	}
	return strings.Join(parts, " ")
}

// describeConnectError turns a connect failure into an operator notice.
func describeConnectError(err error) string {
	var ce *ble.ConnectError
	switch {
	case errors.Is(err, ble.ErrCapabilityUnavailable):
		return "Bluetooth LE is not available on this machine: " + err.Error()
	case errors.Is(err, ble.ErrConnectInProgress):
		return "A connection attempt is already running."
	case errors.Is(err, ble.ErrTimeout):
		return "Timed out connecting to the arm. Is it powered on and in range?"
	case errors.Is(err, ble.ErrNoDevice):
		return "No arm found. Is it powered on and advertising?"
	case errors.As(err, &ce):
		return fmt.Sprintf("Connection failed during %s: %v", ce.Step, ce.Err)
	default:
		return "Connection failed: " + err.Error()
	}
}
