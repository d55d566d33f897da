// Package harha is a portable, capability-controlled virtual filesystem
// library. It exposes a single operation vocabulary — open, close, stat,
// iterate, read, write, seek and delete — over opaque directory and file
// handles, and composes multiple backends (host passthrough, mount-point
// overlay, tag-multiplexed, and read-only archive) behind that vocabulary.
//
// A VFS wraps exactly one Backend and gates every operation through a
// Permissions set before the backend ever sees the call. Composing backends
// (overlay, multiplexer) are themselves Backend implementations that hold
// other VFS instances as children, so the same capability discipline
// applies recursively.
package harha
