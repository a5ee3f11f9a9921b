package runtime

import (
	"github.com/wippyai/julia-runtime/value"
)

// Module is a serialized view of a guest module. All operations take
// the owning runtime's lock.
type Module struct {
	rt *Runtime
	m  value.Module
}

// Name returns the module's name.
func (m Module) Name() (string, error) {
	m.rt.mu.Lock()
	defer m.rt.mu.Unlock()
	return m.m.Name()
}

// Global looks up a binding, following the module's lookup chain.
func (m Module) Global(name string) (value.Value, error) {
	m.rt.mu.Lock()
	defer m.rt.mu.Unlock()
	return m.m.Global(name)
}

// SetGlobal binds name to v in the module.
func (m Module) SetGlobal(name string, v value.Value) error {
	m.rt.mu.Lock()
	defer m.rt.mu.Unlock()
	return m.m.SetGlobal(name, v)
}

// Function looks up a callable binding.
func (m Module) Function(name string) (value.Function, error) {
	m.rt.mu.Lock()
	defer m.rt.mu.Unlock()
	return m.m.Function(name)
}

// Call looks up a callable binding and invokes it in one serialized
// step.
func (m Module) Call(name string, args ...value.Value) (value.Value, error) {
	m.rt.mu.Lock()
	defer m.rt.mu.Unlock()
	f, err := m.m.Function(name)
	if err != nil {
		return value.Value{}, err
	}
	return f.Call(args...)
}

// Value returns the unserialized module handle.
func (m Module) Value() value.Module {
	return m.m
}
