package common

import "errors"

// Module names understood by the pause guard.
const (
	ModuleEscrow   = "escrow"
	ModuleRegistry = "registry"
)

var ErrModulePaused = errors.New("module paused")

// PauseView exposes the pause flags maintained by the operator.
type PauseView interface {
	IsPaused(module string) bool
}

// Guard fails with ErrModulePaused when module is paused. A nil view never
// blocks.
func Guard(p PauseView, module string) error {
	if p == nil || module == "" {
		return nil
	}
	if p.IsPaused(module) {
		return ErrModulePaused
	}
	return nil
}

// IsKnownModule reports whether module can be paused.
func IsKnownModule(module string) bool {
	switch module {
	case ModuleEscrow, ModuleRegistry:
		return true
	default:
		return false
	}
}
