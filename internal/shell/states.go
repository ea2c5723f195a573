/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package shell

import "papyrix/internal/settings"

// checkLongPressSleep scans the queued events for a long-press of the
// power button, which always wins over whatever the calling state would
// otherwise do next (spec.md §4.8: "The power button produces a long-press
// that always transitions to Sleep").
func checkLongPressSleep(core *Core) (StateTransition, bool) {
	for _, e := range core.EventQueue {
		if e.Kind == EventButton && e.Button == ButtonPower && e.LongPress {
			return StateTransition{Next: Sleep, Immediate: true}, true
		}
	}
	return StateTransition{}, false
}

// StartupState runs device init and routes to the persisted return-to hint,
// or Home if none was recorded.
type StartupState struct{}

func (StartupState) ID() StateID    { return Startup }
func (StartupState) Enter(c *Core)   { c.Log.Info("shell: entering startup") }
func (StartupState) Exit(*Core)      {}
func (StartupState) Render(*Core)    {}
func (StartupState) Update(c *Core) StateTransition {
	if id := StateID(c.Settings.TransitionReturnTo); id != Startup && id <= Sleep {
		return StateTransition{Next: id}
	}
	return StateTransition{Next: Home}
}

// HomeState is the top-level menu.
type HomeState struct{}

func (HomeState) ID() StateID { return Home }
func (HomeState) Enter(*Core)  {}
func (HomeState) Exit(*Core)   {}
func (HomeState) Render(*Core) {}
func (s HomeState) Update(c *Core) StateTransition {
	if t, ok := checkLongPressSleep(c); ok {
		return t
	}
	for _, e := range c.DrainEvents() {
		if e.Kind != EventButton {
			continue
		}
		switch e.Button {
		case ButtonNext:
			return StateTransition{Next: FileList}
		case ButtonHome:
			return StateTransition{Next: SettingsState}
		}
	}
	return Stay(Home)
}

// FileListState browses the catalog.
type FileListState struct{}

func (FileListState) ID() StateID { return FileList }
func (FileListState) Enter(*Core)  {}
func (FileListState) Exit(*Core)   {}
func (FileListState) Render(*Core) {}
func (FileListState) Update(c *Core) StateTransition {
	if t, ok := checkLongPressSleep(c); ok {
		return t
	}
	for _, e := range c.DrainEvents() {
		if e.Kind == EventButton && e.Button == ButtonNext {
			return StateTransition{Next: Reader}
		}
	}
	return Stay(FileList)
}

// ReaderState paginates the open book.
type ReaderState struct{}

func (ReaderState) ID() StateID { return Reader }
func (ReaderState) Enter(c *Core) { c.RecordReturnTo(Reader) }
func (ReaderState) Exit(*Core)    {}
func (ReaderState) Render(*Core)  {}
func (ReaderState) Update(c *Core) StateTransition {
	if t, ok := checkLongPressSleep(c); ok {
		return t
	}
	for _, e := range c.DrainEvents() {
		if e.Kind == EventButton && e.Button == ButtonHome {
			return StateTransition{Next: FileList}
		}
	}
	return Stay(Reader)
}

// SettingsActivityState edits persisted settings.
type SettingsActivityState struct{}

func (SettingsActivityState) ID() StateID { return SettingsState }
func (SettingsActivityState) Enter(*Core)  {}
func (SettingsActivityState) Exit(c *Core)  { _ = settings.Save(c.SettingsPath, c.Settings) }
func (SettingsActivityState) Render(*Core)  {}
func (SettingsActivityState) Update(c *Core) StateTransition {
	if t, ok := checkLongPressSleep(c); ok {
		return t
	}
	for _, e := range c.DrainEvents() {
		if e.Kind == EventButton && e.Button == ButtonHome {
			return StateTransition{Next: Home}
		}
	}
	return Stay(SettingsState)
}

// SyncState is a generic "work in progress" activity (e.g. catalog rebuild)
// that returns to Home once its Done field is set by the caller; Update
// reads no events for it — concrete progress is driven externally by
// whatever invoked the sync and pushed us here.
type SyncState struct{ Done bool }

func (s *SyncState) ID() StateID { return Sync }
func (s *SyncState) Enter(*Core)  { s.Done = false }
func (s *SyncState) Exit(*Core)   {}
func (s *SyncState) Render(*Core) {}
func (s *SyncState) Update(c *Core) StateTransition {
	if t, ok := checkLongPressSleep(c); ok {
		return t
	}
	if s.Done {
		return StateTransition{Next: Home}
	}
	return Stay(Sync)
}

// NetworkState manages Wi-Fi connect/disconnect before handing off to
// CalibreSync.
type NetworkState struct{ Ready bool }

func (s *NetworkState) ID() StateID { return Network }
func (s *NetworkState) Enter(*Core)  { s.Ready = false }
func (s *NetworkState) Exit(*Core)   {}
func (s *NetworkState) Render(*Core) {}
func (s *NetworkState) Update(c *Core) StateTransition {
	if t, ok := checkLongPressSleep(c); ok {
		return t
	}
	if s.Ready {
		return StateTransition{Next: CalibreSync}
	}
	return Stay(Network)
}

// CalibreSyncState hosts one internal/calibre.Session for the duration of a
// wireless sync; Done is set by whatever drives the session loop alongside
// the shell tick.
type CalibreSyncState struct{ Done bool }

func (s *CalibreSyncState) ID() StateID { return CalibreSync }
func (s *CalibreSyncState) Enter(*Core)  { s.Done = false }
func (s *CalibreSyncState) Exit(c *Core) {
	if c.Hooks.NetworkShutdown != nil {
		c.Hooks.NetworkShutdown()
	}
}
func (s *CalibreSyncState) Render(*Core)  {}
func (s *CalibreSyncState) Update(c *Core) StateTransition {
	if t, ok := checkLongPressSleep(c); ok {
		return t
	}
	if s.Done {
		return StateTransition{Next: Home}
	}
	return Stay(CalibreSync)
}

// ErrorActivityState displays the recorded error and waits for any button.
type ErrorActivityState struct{}

func (ErrorActivityState) ID() StateID { return ErrorState }
func (ErrorActivityState) Enter(c *Core) {
	c.Log.Warn("shell: entering error state", "kind", c.LastErrKind, "msg", c.LastErrMsg)
}
func (ErrorActivityState) Exit(*Core)  {}
func (ErrorActivityState) Render(*Core) {}
func (ErrorActivityState) Update(c *Core) StateTransition {
	for _, e := range c.DrainEvents() {
		if e.Kind == EventButton && e.Button != ButtonNone {
			return StateTransition{Next: FileList}
		}
	}
	return Stay(ErrorState)
}

// SleepActivityState shuts the network down, flushes the display, arms a
// wake source, persists a return-to hint, and enters deep sleep. On real
// hardware EnterDeepSleep never returns; a nil hook is skipped, and nothing
// in this tree installs one.
type SleepActivityState struct{ returnTo StateID }

func (s *SleepActivityState) ID() StateID { return Sleep }
func (s *SleepActivityState) Enter(c *Core) {
	s.returnTo = StateID(c.Settings.TransitionReturnTo)
	if c.Hooks.NetworkShutdown != nil {
		c.Hooks.NetworkShutdown()
	}
	if c.Hooks.FlushDisplay != nil {
		c.Hooks.FlushDisplay()
	}
	c.RecordReturnTo(s.returnTo)
	if c.Hooks.ArmWakeSource != nil {
		c.Hooks.ArmWakeSource()
	}
	if c.Hooks.EnterDeepSleep != nil {
		c.Hooks.EnterDeepSleep()
	}
}
func (*SleepActivityState) Exit(*Core)  {}
func (*SleepActivityState) Render(*Core) {}
func (*SleepActivityState) Update(*Core) StateTransition { return Stay(Sleep) }
