package harha

// Noop provides per-operation "unsupported" stubs for backends that omit
// a capability. Embed it in a backend struct and override only the methods
// the backend actually implements; the archive backend, for instance,
// embeds Noop and overrides everything except CloseDir/Writev/Pwritev/
// DeleteFile/DeleteDir, which fall through to these stubs.
//
// Noop.Deinit and the Close* methods are no-ops rather than errors, per the
// spec's "close is a safe no-op" rule; every other method returns
// ErrUnsupported.
type Noop struct{}

func (Noop) Capabilities() Permissions { return Permissions{} }

func (Noop) OpenDir(Dir, SafePath, DirOpenOptions) (Dir, error) {
	return 0, ErrUnsupported
}
func (Noop) CloseDir(Dir) {}
func (Noop) DeleteDir(Dir, SafePath, DirDeleteOptions) error {
	return ErrUnsupported
}
func (Noop) Stat(Dir, SafePath) (Stat, error) {
	return Stat{}, ErrUnsupported
}
func (Noop) Iterate(Dir) (BackendIterator, error) {
	return nil, ErrUnsupported
}
func (Noop) OpenFile(Dir, SafePath, FileOpenOptions) (File, error) {
	return 0, ErrUnsupported
}
func (Noop) CloseFile(File) {}
func (Noop) DeleteFile(Dir, SafePath) error {
	return ErrUnsupported
}
func (Noop) Seek(File, uint64, Whence) (uint64, error) {
	return 0, ErrUnsupported
}
func (Noop) Readv(File, [][]byte) (int, error) {
	return 0, ErrUnsupported
}
func (Noop) Preadv(File, [][]byte, uint64) (int, error) {
	return 0, ErrUnsupported
}
func (Noop) Writev(File, [][]byte) (int, error) {
	return 0, ErrUnsupported
}
func (Noop) Pwritev(File, [][]byte, uint64) (int, error) {
	return 0, ErrUnsupported
}
func (Noop) Deinit() error { return nil }
