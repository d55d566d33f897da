package harha

import (
	"errors"
	"fmt"
)

// Taxonomy of errors a VFS operation can return. Backends translate
// host-specific failures onto these sentinels once, at the backend
// boundary; nothing above a backend re-maps them.
var (
	ErrUnexpected    = errors.New("harha: unexpected backend error")
	ErrUnsupported   = errors.New("harha: operation unsupported by backend")
	ErrPermission    = errors.New("harha: permission denied")
	ErrOutOfMemory   = errors.New("harha: out of memory")
	ErrFileNotFound  = errors.New("harha: no such file or directory")
	ErrNotDir        = errors.New("harha: not a directory")
	ErrIsDir         = errors.New("harha: is a directory")
	ErrAlreadyExists = errors.New("harha: path already exists")
	ErrDirNotEmpty   = errors.New("harha: directory not empty")
	ErrResourceLimit = errors.New("harha: resource limit reached")
	ErrNotOpenRead   = errors.New("harha: handle not open for reading")
	ErrNotOpenWrite  = errors.New("harha: handle not open for writing")
	ErrNotOpenIter   = errors.New("harha: handle not open for iteration")
	ErrUnseekable    = errors.New("harha: handle does not support seeking")
	ErrNoSpace       = errors.New("harha: no space left")
	ErrInvalidPath   = errors.New("harha: invalid path")

	// ErrAlreadyMounted and ErrNotMounted are overlay/multiplexer mount-table
	// errors; they are not part of the per-operation taxonomy above but
	// follow the same sentinel-plus-%w wrapping convention.
	ErrAlreadyMounted = errors.New("harha: mount point already in use")
	ErrNotMounted     = errors.New("harha: mount point not in use")
)

func wrapInvalidPath(path, reason string) error {
	return fmt.Errorf("harha: invalid path %q: %s: %w", path, reason, ErrInvalidPath)
}

// wrap annotates a sentinel with caller-supplied context, preserving
// errors.Is compatibility.
func wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf("harha: %s: %w", fmt.Sprintf(format, args...), sentinel)
}
