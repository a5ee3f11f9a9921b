package engine

import (
	"io"
	"os"

	"github.com/BurntSushi/toml"

	jlerrors "github.com/wippyai/julia-runtime/errors"
)

// Options holds configuration for engine creation.
type Options struct {
	// HeapBudget sets the number of bytes allocated between automatic
	// collections. 0 means the default budget.
	HeapBudget int64 `toml:"heap_budget"`

	// DisableGC starts the engine with automatic collection off. Explicit
	// Collect calls still work. Equivalent to GCEnable(false) after init.
	DisableGC bool `toml:"disable_gc"`

	// HistoryFile is the path the interactive shell persists input history
	// to. Empty disables persistence.
	HistoryFile string `toml:"history_file"`

	// Stdout receives guest print output. Defaults to os.Stdout.
	Stdout io.Writer `toml:"-"`
}

const defaultHeapBudget = 4 << 20

// DefaultOptions returns the options a zero-config engine runs with.
func DefaultOptions() Options {
	return Options{
		HeapBudget: defaultHeapBudget,
		Stdout:     os.Stdout,
	}
}

// LoadOptions reads options from a TOML file, filling unset fields with
// defaults.
func LoadOptions(path string) (Options, error) {
	opts := DefaultOptions()
	if _, err := toml.DecodeFile(path, &opts); err != nil {
		return Options{}, jlerrors.Encoding("load options", err)
	}
	if opts.HeapBudget <= 0 {
		opts.HeapBudget = defaultHeapBudget
	}
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	return opts, nil
}

func (o Options) withDefaults() Options {
	if o.HeapBudget <= 0 {
		o.HeapBudget = defaultHeapBudget
	}
	if o.Stdout == nil {
		o.Stdout = os.Stdout
	}
	return o
}
