package harha

// Permissions is the packed capability-flag set a VFS instance is
// constructed with. A permission bit failing its check at the facade
// returns ErrPermission without ever reaching the backend.
type Permissions struct {
	Create  bool
	Delete  bool
	Read    bool
	Write   bool
	Iterate bool
	Stat    bool
}

// AllPermissions returns a Permissions value with every bit set, the
// default a backend advertises unless constructed read-only or otherwise
// restricted.
func AllPermissions() Permissions {
	return Permissions{
		Create:  true,
		Delete:  true,
		Read:    true,
		Write:   true,
		Iterate: true,
		Stat:    true,
	}
}

// ReadOnlyPermissions returns a Permissions value permitting read, iterate
// and stat only — the set the archive backend, and any passthrough
// backend opened with WithReadOnly, advertise.
func ReadOnlyPermissions() Permissions {
	return Permissions{
		Read:    true,
		Iterate: true,
		Stat:    true,
	}
}
