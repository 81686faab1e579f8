// Package hotkey provides global hotkeys for operator actions using gohook.
// Each configured key combo emits its action when pressed.
package hotkey

import (
	"sort"
	"strings"
	"sync"

	hook "github.com/robotn/gohook"
)

// Action is an operator action bound to a key combo.
type Action int

const (
	// ActionHome sends the arm to its home pose.
	ActionHome Action = iota
	// ActionSendPose re-sends the current pose.
	ActionSendPose
	// ActionConnect (re)connects to the arm.
	ActionConnect
)

func (a Action) String() string {
	switch a {
	case ActionHome:
		return "home"
	case ActionSendPose:
		return "send-pose"
	case ActionConnect:
		return "connect"
	default:
		return "unknown"
	}
}

// Event is emitted on the channel returned by Events.
type Event struct {
	Action Action
}

// Bindings maps actions to lowercase key names (e.g., ["ctrl", "shift", "h"]).
// Actions with no keys are not registered.
type Bindings map[Action][]string

// Listener manages the global hotkeys and emits action events.
type Listener struct {
	bindings Bindings
	ch       chan Event
	done     chan struct{}
	once     sync.Once
}

// NewListener creates a Listener for the given bindings.
func NewListener(bindings Bindings) *Listener {
	return &Listener{
		bindings: bindings,
		ch:       make(chan Event, 16),
		done:     make(chan struct{}),
	}
}

// Events returns the channel that receives hotkey events.
// The channel is closed when the listener stops.
func (l *Listener) Events() <-chan Event {
	return l.ch
}

// Describe returns a human-readable summary such as "home=ctrl+shift+h".
func (l *Listener) Describe() string {
	var parts []string
	for _, action := range l.actions() {
		parts = append(parts, action.String()+"="+strings.Join(l.bindings[action], "+"))
	}
	return strings.Join(parts, ", ")
}

// actions returns the bound actions in a stable order.
func (l *Listener) actions() []Action {
	var out []Action
	for action, keys := range l.bindings {
		if len(keys) > 0 {
			out = append(out, action)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// emit delivers an event without blocking the hook thread.
func (l *Listener) emit(action Action) {
	select {
	case l.ch <- Event{Action: action}:
	default: // don't block if channel is full
	}
}

// Start begins listening for the global hotkeys.
// This function blocks until Stop is called. Run it in a goroutine.
func (l *Listener) Start() {
	for _, action := range l.actions() {
		hook.Register(hook.KeyDown, l.bindings[action], func(e hook.Event) {
			l.emit(action)
		})
	}

	evChan := hook.Start()
	go func() {
		<-l.done
		hook.End()
	}()
	<-hook.Process(evChan)
	close(l.ch)
}

// Stop terminates the hotkey listener.
// It is safe to call multiple times.
func (l *Listener) Stop() {
	l.once.Do(func() {
		close(l.done)
	})
}
