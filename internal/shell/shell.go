/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

// Package shell is the device's activity/state machine: a registry of named
// states, each polled once per tick via Update, transitioning through
// Exit/Enter pairs. Grounded on StateMachine.cpp's registry-of-pointers
// design (update current state, compare returned transition's next id
// against the current one, exit/enter on change, then render) and the
// teacher's internal/ui.Run headless-vs-GUI driver split.
package shell

import (
	"log/slog"
	"sync"

	"papyrix/internal/papyrixerr"
	"papyrix/internal/settings"
)

// StateID names one node of the activity graph.
type StateID uint8

const (
	Startup StateID = iota
	Home
	FileList
	Reader
	SettingsState
	Sync
	Network
	CalibreSync
	ErrorState
	Sleep
)

func (id StateID) String() string {
	switch id {
	case Startup:
		return "startup"
	case Home:
		return "home"
	case FileList:
		return "file_list"
	case Reader:
		return "reader"
	case SettingsState:
		return "settings"
	case Sync:
		return "sync"
	case Network:
		return "network"
	case CalibreSync:
		return "calibre_sync"
	case ErrorState:
		return "error"
	case Sleep:
		return "sleep"
	default:
		return "unknown"
	}
}

// StateTransition is a state's Update result: which state to move to next,
// and whether the machine should skip the usual render pass on the tick it
// moves (an "immediate" transition, e.g. long-press-to-sleep).
type StateTransition struct {
	Next      StateID
	Immediate bool
}

// Stay is the transition a state returns to remain where it is.
func Stay(current StateID) StateTransition { return StateTransition{Next: current} }

// State is one node in the activity graph.
type State interface {
	ID() StateID
	Enter(core *Core)
	Exit(core *Core)
	Update(core *Core) StateTransition
	Render(core *Core)
}

// Hooks are the external-contract callbacks the shell drives but does not
// implement itself (display, network, power) — spec.md §1 keeps these as
// external contracts; the shell only calls them at the right moments.
type Hooks struct {
	FlushDisplay    func()
	NetworkShutdown func()
	ArmWakeSource   func()
	EnterDeepSleep  func() // never returns on real hardware
}

// Core is the shared state every activity's Update/Render reads and
// mutates: persisted settings, a display/framebuffer mutex (spec.md §5's
// "a mutex guards the transition" between foreground render and background
// content-pipeline work), and the last error recorded by ErrorState.
type Core struct {
	mu sync.Mutex // guards foreground/background framebuffer ownership

	Log          *slog.Logger
	Settings     settings.Settings
	SettingsPath string
	Hooks        Hooks

	LastErrKind papyrixerr.Kind
	LastErrMsg  string

	EventQueue []Event
}

// Event is a small input/lifecycle event queued for the current state.
type Event struct {
	Kind      EventKind
	Button    Button
	LongPress bool
}

// EventKind tags the shape of Event.
type EventKind uint8

const (
	EventButton EventKind = iota
	EventTick
)

// Button enumerates the device's physical buttons.
type Button uint8

const (
	ButtonNone Button = iota
	ButtonPower
	ButtonNext
	ButtonPrev
	ButtonHome
)

// Lock acquires exclusive framebuffer ownership for the foreground renderer.
func (c *Core) Lock() { c.mu.Lock() }

// Unlock releases framebuffer ownership.
func (c *Core) Unlock() { c.mu.Unlock() }

// PushEvent queues an event for the current state's next Update call.
func (c *Core) PushEvent(e Event) { c.EventQueue = append(c.EventQueue, e) }

// DrainEvents returns and clears the queued events, the "flushing the event
// queue between" step StateMachine.cpp performs across a transition.
func (c *Core) DrainEvents() []Event {
	ev := c.EventQueue
	c.EventQueue = nil
	return ev
}

// SetError records the (kind, message) pair ErrorState displays, matching
// spec.md §7's "short human message... waits for any button press."
func (c *Core) SetError(kind papyrixerr.Kind, msg string) {
	c.LastErrKind = kind
	c.LastErrMsg = msg
}

// RecordReturnTo persists a tiny "return-to" hint (spec.md §4.8) so a
// post-sleep cold boot can route directly back to id instead of Startup.
func (c *Core) RecordReturnTo(id StateID) {
	c.Settings.TransitionReturnTo = uint8(id)
	_ = settings.Save(c.SettingsPath, c.Settings)
}

// Machine is the state registry and driver loop.
type Machine struct {
	states    map[StateID]State
	current   State
	currentID StateID
	log       *slog.Logger
}

// NewMachine constructs an empty registry.
func NewMachine(log *slog.Logger) *Machine {
	if log == nil {
		log = slog.Default()
	}
	return &Machine{states: make(map[StateID]State), log: log}
}

// Register adds a state to the registry, keyed by its ID.
func (m *Machine) Register(s State) {
	m.states[s.ID()] = s
}

// Init enters initialState directly (no Exit on a nonexistent previous
// state), mirroring StateMachine::init.
func (m *Machine) Init(core *Core, initial StateID) {
	if m.current != nil {
		m.current.Exit(core)
	}
	s, ok := m.states[initial]
	if !ok {
		m.log.Error("shell: no state registered", "id", initial)
		return
	}
	m.currentID = initial
	m.current = s
	m.log.Info("shell: initial state", "id", initial)
	s.Enter(core)
}

// CurrentID returns the active state's id.
func (m *Machine) CurrentID() StateID { return m.currentID }

// Update polls the current state once, transitioning and rendering exactly
// as StateMachine::update does: Update -> (maybe) transition -> Render. An
// Immediate transition skips that tick's Render.
func (m *Machine) Update(core *Core) {
	if m.current == nil {
		return
	}
	trans := m.current.Update(core)
	if trans.Next != m.currentID {
		m.transition(trans.Next, core)
		if trans.Immediate {
			return
		}
	}
	m.current.Render(core)
}

func (m *Machine) transition(next StateID, core *Core) {
	nextState, ok := m.states[next]
	if !ok {
		m.log.Error("shell: no state for transition target", "id", next)
		return
	}
	m.log.Info("shell: transition", "from", m.currentID, "to", next)
	if m.current != nil {
		m.current.Exit(core)
	}
	core.DrainEvents()
	m.currentID = next
	m.current = nextState
	nextState.Enter(core)
}
