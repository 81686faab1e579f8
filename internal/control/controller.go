// Package control is the operator-facing facade over the BLE session. It
// keeps the last known arm pose and connection state and turns operator
// actions into protocol commands.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/chaz8081/sarmctl/internal/arm"
	"github.com/chaz8081/sarmctl/internal/ble"
	"github.com/chaz8081/sarmctl/internal/ble/protocol"
)

// Link is the session contract the controller drives. *ble.Session
// implements it.
type Link interface {
	Connect(ctx context.Context) error
	Send(cmd protocol.Command) error
	State() ble.State
	Observe(obs ble.Observer)
}

// Snapshot is a consistent view of the controller state.
type Snapshot struct {
	State ble.State
	Pose  arm.Pose
}

// Controller exposes the connection state, the current pose and the
// operator actions. It is safe for concurrent use.
type Controller struct {
	link Link

	mu    sync.Mutex
	state ble.State
	pose  arm.Pose

	updates chan Snapshot
}

// Compile-time check that Controller observes the session.
var _ ble.Observer = (*Controller)(nil)

// New creates a Controller over link with every joint at arm.HomeAngle and
// registers it as the link's observer.
func New(link Link) *Controller {
	c := &Controller{
		link:    link,
		state:   link.State(),
		pose:    arm.DefaultPose(),
		updates: make(chan Snapshot, 16),
	}
	link.Observe(c)
	return c
}

// State returns the current connection state.
func (c *Controller) State() ble.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Pose returns the current pose: the operator's latest intent or the
// latest firmware report, whichever came last.
func (c *Controller) Pose() arm.Pose {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pose
}

// Snapshot returns the state and pose together.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{State: c.state, Pose: c.pose}
}

// Updates returns a channel that receives a Snapshot after every change.
// Sends never block; when the reader falls behind, snapshots are dropped and
// Snapshot is the authoritative view.
func (c *Controller) Updates() <-chan Snapshot {
	return c.updates
}

// Connect establishes the BLE session. The returned error is meant for the
// operator: capability, connect and timeout failures. The controller is
// Disconnected afterwards whenever an error is returned.
func (c *Controller) Connect(ctx context.Context) error {
	if err := c.link.Connect(ctx); err != nil {
		slog.Error("[CTRL] connect failed", "error", err)
		return err
	}
	return nil
}

// SetJoint moves one joint. The angle is clamped and applied to the local
// pose before the command is sent. Only an invalid joint id is reported;
// write failures are logged by the session and the local update is kept.
func (c *Controller) SetJoint(id arm.JointID, angle int) error {
	if !id.Valid() {
		return fmt.Errorf("control: joint id %d out of range", int(id))
	}
	a := arm.Clamp(angle)

	c.mu.Lock()
	c.pose = arm.WithJoint(c.pose, id, int(a))
	c.publishLocked()
	c.mu.Unlock()

	c.send(protocol.SetJoint{Joint: id, Angle: a})
	return nil
}

// SetPose moves every joint at once. Angles are clamped and the local pose
// is replaced before the command is sent.
func (c *Controller) SetPose(p arm.Pose) {
	p = p.Clamped()

	c.mu.Lock()
	c.pose = p
	c.publishLocked()
	c.mu.Unlock()

	c.send(protocol.SetPose{Joints: p})
}

// SendPose re-sends the current local pose as a full SetPose command.
func (c *Controller) SendPose() {
	c.SetPose(c.Pose())
}

// GoHome asks the firmware to home the arm. The local pose is left alone
// until the firmware reports the resulting pose.
func (c *Controller) GoHome() {
	c.send(protocol.Home{})
}

// send dispatches cmd. Failures were already logged by the session and are
// not surfaced: the UI reflects intent, not confirmed hardware state.
func (c *Controller) send(cmd protocol.Command) {
	err := c.link.Send(cmd)
	if err == nil {
		return
	}
	var we *ble.WriteError
	if !errors.As(err, &we) {
		slog.Warn("[CTRL] command not sent", "cmd", cmd.Name(), "error", err)
	}
}

// SessionStateChanged implements ble.Observer.
func (c *Controller) SessionStateChanged(state ble.State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == state {
		return
	}
	slog.Debug("[CTRL] state changed", "from", c.state, "to", state)
	c.state = state
	c.publishLocked()
}

// StatusReceived implements ble.Observer. The reported pose replaces the
// local one.
func (c *Controller) StatusReceived(report protocol.StatusReport) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pose = report.Joints
	c.publishLocked()
}

// publishLocked offers the current snapshot to Updates (caller must hold mu).
func (c *Controller) publishLocked() {
	select {
	case c.updates <- Snapshot{State: c.state, Pose: c.pose}:
	default:
	}
}
