// Package arm models the joint state of the SARM 5-DOF arm: joint
// identifiers, angle limits and whole-arm poses.
package arm

import (
	"fmt"
	"strconv"
	"strings"
)

// NumJoints is the number of actuated joints on the arm.
const NumJoints = 5

// Angle limits in degrees, inclusive.
const (
	MinAngle = 0
	MaxAngle = 180

	// HomeAngle is the resting angle of every joint at power-on.
	HomeAngle = 90
)

// keyPrefix is the human-facing label prefix, as in "joint1".
const keyPrefix = "joint"

// JointID is the zero-based wire identifier of a joint (0..4).
type JointID int

// Valid reports whether id names one of the arm's joints.
func (id JointID) Valid() bool {
	return id >= 0 && id < NumJoints
}

// String returns the human-facing label, e.g. "joint3" for id 2.
func (id JointID) String() string {
	if !id.Valid() {
		return fmt.Sprintf("JointID(%d)", int(id))
	}
	return KeyOf(id)
}

// Angle is a joint angle in whole degrees.
type Angle int

// Clamp constrains any integer into [MinAngle, MaxAngle].
func Clamp(v int) Angle {
	switch {
	case v < MinAngle:
		return MinAngle
	case v > MaxAngle:
		return MaxAngle
	}
	return Angle(v)
}

// Pose holds one angle per joint; index i is JointID i. Being an array,
// it is copied on assignment and always has exactly NumJoints entries.
type Pose [NumJoints]Angle

// DefaultPose returns the pose assumed before the firmware reports one:
// every joint at HomeAngle.
func DefaultPose() Pose {
	var p Pose
	for i := range p {
		p[i] = HomeAngle
	}
	return p
}

// Clamped returns a copy of p with every angle constrained to the valid range.
func (p Pose) Clamped() Pose {
	for i, a := range p {
		p[i] = Clamp(int(a))
	}
	return p
}

// WithJoint returns a copy of p with the angle of joint id replaced.
// The angle is clamped. An invalid id returns p unchanged.
func WithJoint(p Pose, id JointID, angle int) Pose {
	if !id.Valid() {
		return p
	}
	p[id] = Clamp(angle)
	return p
}

// Ints returns the pose as a plain slice, handy for logging and encoding.
func (p Pose) Ints() []int {
	out := make([]int, len(p))
	for i, a := range p {
		out[i] = int(a)
	}
	return out
}

// KeyOf returns the label of joint id: "joint1" through "joint5".
// The caller must pass a valid id.
func KeyOf(id JointID) string {
	return keyPrefix + strconv.Itoa(int(id)+1)
}

// JointIDOf parses a joint label ("joint1".."joint5", case-insensitive)
// into its wire identifier. Only the five canonical labels are accepted.
func JointIDOf(key string) (JointID, error) {
	k := strings.ToLower(strings.TrimSpace(key))
	for id := JointID(0); id < NumJoints; id++ {
		if k == KeyOf(id) {
			return id, nil
		}
	}
	return 0, fmt.Errorf("arm: unknown joint %q", key)
}
