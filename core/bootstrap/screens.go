package bootstrap

import "github.com/botfsm/botfsm/core/engine"

// Screen registers a group of related states on a machine. Applications
// implement one Screen per functional area and hand them to Run.
type Screen interface {
	Register(m *engine.Machine)
}

// ScreenFunc adapts a bare function to the Screen interface.
type ScreenFunc func(m *engine.Machine)

// Register executes the underlying function.
func (f ScreenFunc) Register(m *engine.Machine) {
	f(m)
}

// Landing builds a Screen declaring the root state.
func Landing(code func(*engine.State)) Screen {
	return ScreenFunc(func(m *engine.Machine) {
		m.Landing(code)
	})
}
