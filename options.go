package harha

// DirOpenOptions configures OpenDir.
type DirOpenOptions struct {
	// Create, if set, creates the directory when it does not already
	// exist. Requires the Create permission bit.
	Create bool
}

// DirDeleteOptions configures DeleteDir.
type DirDeleteOptions struct {
	// Recursive, if set, removes a non-empty directory and its contents.
	// Without it, deleting a non-empty directory returns ErrDirNotEmpty.
	Recursive bool
}

// Mode is the access mode a file is opened with.
type Mode uint8

const (
	ModeReadOnly Mode = iota
	ModeWriteOnly
	ModeReadWrite
)

// FileOpenOptions configures OpenFile.
type FileOpenOptions struct {
	Mode Mode
	// Create, if set, creates the file when it does not already exist.
	// Requires the Create permission bit.
	Create bool
}

// Whence selects how Seek interprets its offset argument.
type Whence uint8

const (
	// WhenceSet seeks to an absolute offset.
	WhenceSet Whence = iota
	// WhenceForward adds offset to the current cursor. Passthrough and
	// archive saturate at the largest uint64 rather than overflowing and
	// do not clamp to the file size, so the cursor may move past
	// end-of-file.
	WhenceForward
	// WhenceBackward subtracts offset from the current cursor, saturating
	// at zero rather than underflowing.
	WhenceBackward
	// WhenceFromEnd seeks to size - offset, saturating at zero.
	WhenceFromEnd
)

// Entry is one directory entry yielded by iteration: a basename that
// always satisfies Validate, paired with its Stat.
type Entry struct {
	Basename string
	Stat     Stat
}
