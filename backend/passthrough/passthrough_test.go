package passthrough_test

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"golang.org/x/sync/errgroup"

	"github.com/sorvi-platform/harha"
	"github.com/sorvi-platform/harha/backend/passthrough"
)

func newTestVFS(t *testing.T) (*harha.VFS, string) {
	t.Helper()
	dir := t.TempDir()
	b, err := passthrough.NewFromOSPath(dir)
	if err != nil {
		t.Fatalf("NewFromOSPath: %v", err)
	}
	v := harha.New(b)
	t.Cleanup(func() { v.Deinit() })
	return v, dir
}

func TestPassthrough_WriteReadRoundTrip(t *testing.T) {
	v, _ := newTestVFS(t)
	root := harha.RootDir

	f, err := v.OpenFile(root, harha.MustResolve("note.txt"), harha.FileOpenOptions{Mode: harha.ModeReadWrite, Create: true})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if _, err := v.Writev(f, [][]byte{[]byte("hello "), []byte("world")}); err != nil {
		t.Fatalf("Writev: %v", err)
	}
	v.CloseFile(f)

	f, err = v.OpenFile(root, harha.MustResolve("note.txt"), harha.FileOpenOptions{Mode: harha.ModeReadOnly})
	if err != nil {
		t.Fatalf("OpenFile for read: %v", err)
	}
	defer v.CloseFile(f)

	buf := make([]byte, 64)
	n, err := v.Readv(f, [][]byte{buf})
	if err != nil {
		t.Fatalf("Readv: %v", err)
	}
	if got := string(buf[:n]); got != "hello world" {
		t.Errorf("Readv = %q, want %q", got, "hello world")
	}
}

func TestPassthrough_SeekThenRead(t *testing.T) {
	v, dir := newTestVFS(t)
	root := harha.RootDir

	if err := os.WriteFile(filepath.Join(dir, "seekme.txt"), []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f, err := v.OpenFile(root, harha.MustResolve("seekme.txt"), harha.FileOpenOptions{Mode: harha.ModeReadOnly})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer v.CloseFile(f)

	if _, err := v.Seek(f, 5, harha.WhenceSet); err != nil {
		t.Fatalf("Seek: %v", err)
	}

	buf := make([]byte, 4)
	n, err := v.Readv(f, [][]byte{buf})
	if err != nil {
		t.Fatalf("Readv: %v", err)
	}
	if got := string(buf[:n]); got != "5678" {
		t.Errorf("Readv after seek = %q, want %q", got, "5678")
	}
}

func TestPassthrough_ScatterWrite(t *testing.T) {
	v, dir := newTestVFS(t)
	root := harha.RootDir

	f, err := v.OpenFile(root, harha.MustResolve("scatter.bin"), harha.FileOpenOptions{Mode: harha.ModeReadWrite, Create: true})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	n, err := v.Writev(f, [][]byte{[]byte("AAAA"), []byte("BBBB"), []byte("CCCC")})
	if err != nil {
		t.Fatalf("Writev: %v", err)
	}
	if n != 12 {
		t.Errorf("Writev returned %d, want 12", n)
	}
	v.CloseFile(f)

	got, err := os.ReadFile(filepath.Join(dir, "scatter.bin"))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(got) != "AAAABBBBCCCC" {
		t.Errorf("file contents = %q, want %q", got, "AAAABBBBCCCC")
	}
}

func TestPassthrough_PreadvDoesNotMoveCursor(t *testing.T) {
	v, dir := newTestVFS(t)
	root := harha.RootDir

	if err := os.WriteFile(filepath.Join(dir, "pread.txt"), []byte("0123456789"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	f, err := v.OpenFile(root, harha.MustResolve("pread.txt"), harha.FileOpenOptions{Mode: harha.ModeReadOnly})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	defer v.CloseFile(f)

	pbuf := make([]byte, 4)
	if _, err := v.Preadv(f, [][]byte{pbuf}, 6); err != nil {
		t.Fatalf("Preadv: %v", err)
	}
	if string(pbuf) != "6789" {
		t.Errorf("Preadv = %q, want %q", pbuf, "6789")
	}

	buf := make([]byte, 2)
	n, err := v.Readv(f, [][]byte{buf})
	if err != nil {
		t.Fatalf("Readv: %v", err)
	}
	if got := string(buf[:n]); got != "01" {
		t.Errorf("Readv after Preadv = %q, want %q (Preadv must not move the cursor)", got, "01")
	}
}

func TestPassthrough_OpenCloseParity(t *testing.T) {
	v, _ := newTestVFS(t)
	root := harha.RootDir

	f, err := v.OpenFile(root, harha.MustResolve("a.txt"), harha.FileOpenOptions{Mode: harha.ModeReadWrite, Create: true})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	v.CloseFile(f)
	// Closing twice is a documented safe no-op.
	v.CloseFile(f)

	if _, err := v.Readv(f, [][]byte{make([]byte, 1)}); err == nil {
		t.Error("expected an error reading a closed handle")
	}
}

// TestPassthrough_ConcurrentCursorsAreIsolated opens the same file twice and
// drives independent seek+read sequences on each handle from separate
// goroutines, confirming per-handle cursor state never leaks across handles
// sharing one backing path. The VFS is not safe for concurrent use, so each
// call into it is serialized by a mutex; the goroutines' sequences still
// interleave.
func TestPassthrough_ConcurrentCursorsAreIsolated(t *testing.T) {
	v, dir := newTestVFS(t)
	root := harha.RootDir

	content := []byte("0123456789ABCDEF")
	if err := os.WriteFile(filepath.Join(dir, "shared.bin"), content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	var g errgroup.Group
	var mu sync.Mutex
	offsets := []uint64{0, 4, 8, 12}
	for _, off := range offsets {
		off := off
		g.Go(func() error {
			mu.Lock()
			f, err := v.OpenFile(root, harha.MustResolve("shared.bin"), harha.FileOpenOptions{Mode: harha.ModeReadOnly})
			mu.Unlock()
			if err != nil {
				return err
			}
			defer func() {
				mu.Lock()
				v.CloseFile(f)
				mu.Unlock()
			}()

			mu.Lock()
			_, err = v.Seek(f, off, harha.WhenceSet)
			mu.Unlock()
			if err != nil {
				return err
			}
			buf := make([]byte, 4)
			mu.Lock()
			n, err := v.Readv(f, [][]byte{buf})
			mu.Unlock()
			if err != nil {
				return err
			}
			want := string(content[off : off+4])
			if got := string(buf[:n]); got != want {
				t.Errorf("handle at offset %d read %q, want %q", off, got, want)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		t.Fatalf("errgroup: %v", err)
	}
}

func TestPassthrough_MkdirAndIterate(t *testing.T) {
	v, _ := newTestVFS(t)
	root := harha.RootDir

	d, err := v.OpenDir(root, harha.MustResolve("sub"), harha.DirOpenOptions{Create: true})
	if err != nil {
		t.Fatalf("OpenDir create: %v", err)
	}
	defer v.CloseDir(d)

	f, err := v.OpenFile(d, harha.MustResolve("inner.txt"), harha.FileOpenOptions{Mode: harha.ModeReadWrite, Create: true})
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	v.CloseFile(f)

	it, err := v.Iterate(d)
	if err != nil {
		t.Fatalf("Iterate: %v", err)
	}
	defer it.Deinit()

	entry, ok, err := it.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if !ok || entry.Basename != "inner.txt" {
		t.Errorf("Iterate yielded %+v, want inner.txt", entry)
	}
}

func TestPassthrough_ReadOnlyRejectsWrite(t *testing.T) {
	dir := t.TempDir()
	b, err := passthrough.NewFromOSPath(dir, passthrough.WithReadOnly())
	if err != nil {
		t.Fatalf("NewFromOSPath: %v", err)
	}
	v := harha.New(b)
	defer v.Deinit()

	if _, err := v.OpenFile(harha.RootDir, harha.MustResolve("f.txt"), harha.FileOpenOptions{Mode: harha.ModeReadWrite, Create: true}); err == nil {
		t.Error("expected write open to fail against a read-only backend")
	}
}
