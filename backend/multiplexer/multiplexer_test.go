package multiplexer_test

import (
	"errors"
	"testing"

	"github.com/sorvi-platform/harha"
	"github.com/sorvi-platform/harha/backend/multiplexer"
	"github.com/sorvi-platform/harha/backend/passthrough"
)

type tag int

const (
	tagA tag = iota
	tagB
)

func newChildVFS(t *testing.T) *harha.VFS {
	t.Helper()
	b, err := passthrough.NewFromOSPath(t.TempDir())
	if err != nil {
		t.Fatalf("NewFromOSPath: %v", err)
	}
	return harha.New(b)
}

func TestMultiplexer_RootDirIsomorphicToTag(t *testing.T) {
	b, err := multiplexer.New[tag](2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := uint32(b.RootDir(tagA)); got != uint32(tagA) {
		t.Errorf("RootDir(tagA).as_int = %d, want %d", got, tagA)
	}
	if got := uint32(b.RootDir(tagB)); got != uint32(tagB) {
		t.Errorf("RootDir(tagB).as_int = %d, want %d", got, tagB)
	}
}

func TestMultiplexer_EncodeDecodeRoundTrip(t *testing.T) {
	b, err := multiplexer.New[tag](2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d := b.Encode(tagB, 42)
	gotTag, gotInner := b.DecodeDir(d)
	if gotTag != tagB || gotInner != 42 {
		t.Errorf("DecodeDir(Encode(tagB, 42)) = (%v, %d), want (%v, 42)", gotTag, gotInner, tagB)
	}
}

func TestMultiplexer_MountAndDispatch(t *testing.T) {
	b, err := multiplexer.New[tag](2)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	childA := newChildVFS(t)
	childB := newChildVFS(t)
	if err := b.Mount(tagA, childA); err != nil {
		t.Fatalf("Mount tagA: %v", err)
	}
	if err := b.Mount(tagB, childB); err != nil {
		t.Fatalf("Mount tagB: %v", err)
	}

	v := harha.New(b)
	defer v.Deinit()

	fa, err := v.OpenFile(b.RootDir(tagA), harha.MustResolve("a.txt"), harha.FileOpenOptions{Mode: harha.ModeReadWrite, Create: true})
	if err != nil {
		t.Fatalf("OpenFile under tagA: %v", err)
	}
	if _, err := v.Writev(fa, [][]byte{[]byte("alpha")}); err != nil {
		t.Fatalf("Writev: %v", err)
	}
	v.CloseFile(fa)

	fb, err := v.OpenFile(b.RootDir(tagB), harha.MustResolve("b.txt"), harha.FileOpenOptions{Mode: harha.ModeReadWrite, Create: true})
	if err != nil {
		t.Fatalf("OpenFile under tagB: %v", err)
	}
	if _, err := v.Writev(fb, [][]byte{[]byte("bravo")}); err != nil {
		t.Fatalf("Writev: %v", err)
	}
	v.CloseFile(fb)

	// a.txt must not exist under tagB's child, and vice versa: mounts are
	// fully isolated filesystems, not shared storage (scenario 5).
	if _, err := v.Stat(b.RootDir(tagB), harha.MustResolve("a.txt")); !errors.Is(err, harha.ErrFileNotFound) {
		t.Errorf("Stat a.txt under tagB: got %v, want ErrFileNotFound", err)
	}
	if _, err := v.Stat(b.RootDir(tagA), harha.MustResolve("b.txt")); !errors.Is(err, harha.ErrFileNotFound) {
		t.Errorf("Stat b.txt under tagA: got %v, want ErrFileNotFound", err)
	}

	readBack := func(rootDir harha.Dir, name, want string) {
		t.Helper()
		f, err := v.OpenFile(rootDir, harha.MustResolve(name), harha.FileOpenOptions{Mode: harha.ModeReadOnly})
		if err != nil {
			t.Fatalf("OpenFile(%q): %v", name, err)
		}
		defer v.CloseFile(f)
		buf := make([]byte, 16)
		n, err := v.Readv(f, [][]byte{buf})
		if err != nil {
			t.Fatalf("Readv(%q): %v", name, err)
		}
		if got := string(buf[:n]); got != want {
			t.Errorf("%q = %q, want %q", name, got, want)
		}
	}
	readBack(b.RootDir(tagA), "a.txt", "alpha")
	readBack(b.RootDir(tagB), "b.txt", "bravo")
}

func TestMultiplexer_TagOutOfRange(t *testing.T) {
	b, err := multiplexer.New[tag](1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Mount(tag(5), newChildVFS(t)); !errors.Is(err, multiplexer.ErrTagOutOfRange) {
		t.Errorf("Mount with out-of-range tag: got %v, want ErrTagOutOfRange", err)
	}
}

func TestMultiplexer_UnmountedTagFailsDispatch(t *testing.T) {
	b, err := multiplexer.New[tag](1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	v := harha.New(b)
	defer v.Deinit()

	if _, err := v.Stat(b.RootDir(tagA), harha.RootPath); !errors.Is(err, harha.ErrNotMounted) {
		t.Errorf("Stat against unmounted tag: got %v, want ErrNotMounted", err)
	}
}

func TestMultiplexer_DoubleMountRejected(t *testing.T) {
	b, err := multiplexer.New[tag](1)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := b.Mount(tagA, newChildVFS(t)); err != nil {
		t.Fatalf("Mount: %v", err)
	}
	if err := b.Mount(tagA, newChildVFS(t)); !errors.Is(err, harha.ErrAlreadyMounted) {
		t.Errorf("second Mount on the same tag: got %v, want ErrAlreadyMounted", err)
	}
}
