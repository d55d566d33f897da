package harha

// Dir is an opaque directory handle. The zero value, RootDir, is a
// reserved sentinel meaning "the VFS's current logical root" rather than a
// real physical directory; every other value is backend-private and must
// not be constructed or inspected by callers.
type Dir uint32

// RootDir is the reserved Dir sentinel. Passing it to any VFS operation
// substitutes the VFS's current logical root (see VFS.Chroot).
const RootDir Dir = 0

// File is an opaque file handle, backend-private and carrying no reserved
// value.
type File uint32
