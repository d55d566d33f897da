package harha

import "time"

// Kind distinguishes the two object kinds a Stat can describe.
type Kind uint8

const (
	KindFile Kind = iota
	KindDir
)

func (k Kind) String() string {
	if k == KindDir {
		return "dir"
	}
	return "file"
}

// Stat describes a directory or file entry. Size is undefined (reported as
// zero) for directories. ModTime/ChangeTime are the zero time.Time when the
// backend has no notion of modification/change time (archive entries
// report ChangeTime == ModTime, per the archive backend's index format).
type Stat struct {
	Kind       Kind
	Size       uint64
	ModTime    time.Time
	ChangeTime time.Time
}

// IsDir reports whether the Stat describes a directory.
func (s Stat) IsDir() bool { return s.Kind == KindDir }
