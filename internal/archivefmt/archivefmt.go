// Package archivefmt parses the append-only archive layout the archive
// backend serves: a fixed header, a string table of entry paths, and a
// parallel table of per-entry size/time/offset records. No ecosystem
// library exists for this bespoke layout, so it is a small hand-rolled
// reader kept deliberately free of backend policy (path indexing, handle
// packing, directory synthesis all live in backend/archive).
package archivefmt

import (
	"encoding/binary"
	"errors"
	"io"
	"time"
)

// Magic is the 8-byte header tag every archive begins with.
var Magic = [8]byte{'H', 'A', 'R', 'H', 'A', '1', 0, 0}

var (
	ErrBadMagic  = errors.New("archivefmt: bad magic")
	ErrTruncated = errors.New("archivefmt: truncated archive")
)

// Entry is one file record: its path, size, modification time, and the
// byte offset of its data within the archive.
type Entry struct {
	Path       string
	Size       uint64
	ModTime    time.Time
	DataOffset uint64
}

// Archive is a fully parsed archive: every file entry, in on-disk order.
type Archive struct {
	Entries []Entry
}

// Parse reads the header, string table and entry table from r in sequence.
// r must be positioned at the start of the archive.
func Parse(r io.Reader) (*Archive, error) {
	var header [16]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, ErrTruncated
	}
	if string(header[:8]) != string(Magic[:]) {
		return nil, ErrBadMagic
	}
	count := binary.LittleEndian.Uint32(header[8:12])

	paths := make([]string, count)
	for i := range paths {
		var lenBuf [4]byte
		if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
			return nil, ErrTruncated
		}
		n := binary.LittleEndian.Uint32(lenBuf[:])
		buf := make([]byte, n)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, ErrTruncated
		}
		paths[i] = string(buf)
	}

	entries := make([]Entry, count)
	for i := range entries {
		var rec [24]byte
		if _, err := io.ReadFull(r, rec[:]); err != nil {
			return nil, ErrTruncated
		}
		entries[i] = Entry{
			Path:       paths[i],
			Size:       binary.LittleEndian.Uint64(rec[0:8]),
			ModTime:    time.Unix(0, int64(binary.LittleEndian.Uint64(rec[8:16]))),
			DataOffset: binary.LittleEndian.Uint64(rec[16:24]),
		}
	}

	return &Archive{Entries: entries}, nil
}
