// Package protocol implements the JSON wire format spoken by the SARM arm
// firmware: command frames written to the command characteristic and status
// frames received as notifications on the status characteristic.
package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"unicode/utf8"

	"github.com/chaz8081/sarmctl/internal/arm"
)

// Command names as they appear in the "cmd" field.
const (
	CmdSetJoint = "set_joint"
	CmdSetPose  = "set_pose"
	CmdHome     = "home"
)

// ErrUnknownCommand is returned by Encode for a Command it cannot serialize.
var ErrUnknownCommand = errors.New("protocol: unknown command")

// Command is an outbound operator intent. The concrete types are SetJoint,
// SetPose and Home.
type Command interface {
	// Name returns the wire name of the command.
	Name() string
	isCommand()
}

// SetJoint moves a single joint.
type SetJoint struct {
	Joint arm.JointID
	Angle arm.Angle
}

// SetPose moves every joint at once.
type SetPose struct {
	Joints arm.Pose
}

// Home asks the firmware to drive the arm to its home pose.
type Home struct{}

func (SetJoint) Name() string { return CmdSetJoint }
func (SetPose) Name() string  { return CmdSetPose }
func (Home) Name() string     { return CmdHome }

func (SetJoint) isCommand() {}
func (SetPose) isCommand()  {}
func (Home) isCommand()     {}

// Encode serializes cmd into its wire frame. The output is byte-for-byte
// stable for equal commands; angles are clamped into the valid range.
//
//	{"cmd":"set_joint","jointId":<0..4>,"angle":<0..180>}
//	{"cmd":"set_pose","joints":[a0,a1,a2,a3,a4]}
//	{"cmd":"home"}
func Encode(cmd Command) ([]byte, error) {
	switch c := cmd.(type) {
	case SetJoint:
		if !c.Joint.Valid() {
			return nil, fmt.Errorf("protocol: joint id %d out of range", int(c.Joint))
		}
		buf := make([]byte, 0, 48)
		buf = append(buf, `{"cmd":"set_joint","jointId":`...)
		buf = strconv.AppendInt(buf, int64(c.Joint), 10)
		buf = append(buf, `,"angle":`...)
		buf = strconv.AppendInt(buf, int64(arm.Clamp(int(c.Angle))), 10)
		buf = append(buf, '}')
		return buf, nil
	case SetPose:
		buf := make([]byte, 0, 48)
		buf = append(buf, `{"cmd":"set_pose","joints":`...)
		buf = appendPose(buf, c.Joints.Clamped())
		buf = append(buf, '}')
		return buf, nil
	case Home:
		return []byte(`{"cmd":"home"}`), nil
	case nil:
		return nil, fmt.Errorf("%w: nil", ErrUnknownCommand)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownCommand, cmd)
	}
}

// appendPose appends p as a JSON array of integers.
func appendPose(buf []byte, p arm.Pose) []byte {
	buf = append(buf, '[')
	for i, a := range p {
		if i > 0 {
			buf = append(buf, ',')
		}
		buf = strconv.AppendInt(buf, int64(a), 10)
	}
	return append(buf, ']')
}

// StatusReport is the decoded status notification from the firmware.
type StatusReport struct {
	Joints arm.Pose
}

// DecodeError describes an inbound payload that could not be decoded.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return "protocol: decode status: " + e.Reason + ": " + e.Err.Error()
	}
	return "protocol: decode status: " + e.Reason
}

func (e *DecodeError) Unwrap() error { return e.Err }

// statusFrame mirrors {"joints":[...]}; unknown fields are ignored.
type statusFrame struct {
	Joints json.RawMessage `json:"joints"`
}

var jsonNull = []byte("null")

// DecodeStatus parses a status notification. Any payload that is not UTF-8
// JSON carrying a "joints" array of exactly arm.NumJoints numbers yields a
// *DecodeError. Numbers are rounded to whole degrees and clamped.
func DecodeStatus(data []byte) (StatusReport, error) {
	if len(data) == 0 {
		return StatusReport{}, &DecodeError{Reason: "empty payload"}
	}
	if !utf8.Valid(data) {
		return StatusReport{}, &DecodeError{Reason: "payload is not valid UTF-8"}
	}

	var frame statusFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return StatusReport{}, &DecodeError{Reason: "malformed JSON", Err: err}
	}
	if len(frame.Joints) == 0 || bytes.Equal(frame.Joints, jsonNull) {
		return StatusReport{}, &DecodeError{Reason: `missing "joints"`}
	}

	var entries []json.RawMessage
	if err := json.Unmarshal(frame.Joints, &entries); err != nil {
		return StatusReport{}, &DecodeError{Reason: `"joints" is not an array`, Err: err}
	}
	if len(entries) != arm.NumJoints {
		return StatusReport{}, &DecodeError{
			Reason: fmt.Sprintf(`"joints" has %d entries, want %d`, len(entries), arm.NumJoints),
		}
	}

	var report StatusReport
	for i, raw := range entries {
		angle, err := decodeAngle(raw)
		if err != nil {
			return StatusReport{}, &DecodeError{Reason: fmt.Sprintf("joint %d", i), Err: err}
		}
		report.Joints[i] = angle
	}
	return report, nil
}

// decodeAngle converts one array entry into a clamped angle.
func decodeAngle(raw json.RawMessage) (arm.Angle, error) {
	if bytes.Equal(bytes.TrimSpace(raw), jsonNull) {
		return 0, errors.New("null is not a number")
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err != nil {
		return 0, fmt.Errorf("not a number: %s", raw)
	}
	switch {
	case f <= arm.MinAngle:
		return arm.MinAngle, nil
	case f >= arm.MaxAngle:
		return arm.MaxAngle, nil
	}
	return arm.Angle(math.Round(f)), nil
}
