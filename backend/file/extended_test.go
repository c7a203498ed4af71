package file

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/evalkit/evaldb"
)

func TestStat(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	writeObject(t, store, "aero/base/menu.json", `{"a":1}`)

	info, err := store.Stat(ctx, "aero/base/menu.json")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.Key != "aero/base/menu.json" {
		t.Errorf("Key = %q", info.Key)
	}
	if info.Size != 7 {
		t.Errorf("Size = %d, want 7", info.Size)
	}
	if time.Since(info.ModTime) > time.Minute {
		t.Errorf("ModTime = %v, not recent", info.ModTime)
	}
}

func TestStatNotFound(t *testing.T) {
	store := newTestStore(t)

	if _, err := store.Stat(context.Background(), "missing.json"); !errors.Is(err, evaldb.ErrNotFound) {
		t.Errorf("Stat = %v, want ErrNotFound", err)
	}
}

func TestStatCompressed(t *testing.T) {
	store := New(Config{Root: t.TempDir(), CreateDirs: true, Compress: true})
	defer func() { _ = store.Close() }()

	writeObject(t, store, "x.json", `{"a":1}`)

	info, err := store.Stat(context.Background(), "x.json")
	if err != nil {
		t.Fatalf("Stat failed: %v", err)
	}
	if info.ModTime.IsZero() {
		t.Error("ModTime is zero for compressed object")
	}
}

func TestFilePath(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	writeObject(t, store, "aero/base/menu.json", "{}")

	path, err := store.FilePath(ctx, "aero/base/menu.json")
	if err != nil {
		t.Fatalf("FilePath failed: %v", err)
	}
	if path == "" {
		t.Error("FilePath returned empty path")
	}

	if _, err := store.FilePath(ctx, "missing.json"); !errors.Is(err, evaldb.ErrNotFound) {
		t.Errorf("FilePath missing = %v, want ErrNotFound", err)
	}
}

func TestFilePathCompressed(t *testing.T) {
	store := New(Config{Root: t.TempDir(), CreateDirs: true, Compress: true})
	defer func() { _ = store.Close() }()

	writeObject(t, store, "x.json", "{}")

	if _, err := store.FilePath(context.Background(), "x.json"); !errors.Is(err, evaldb.ErrUnsupportedAccess) {
		t.Errorf("FilePath compressed = %v, want ErrUnsupportedAccess", err)
	}
}

func TestFeatures(t *testing.T) {
	plain := New(Config{Root: t.TempDir()})
	if f := plain.Features(); !f.FilePath || !f.Stat {
		t.Errorf("plain Features = %+v", f)
	}
	compressed := New(Config{Root: t.TempDir(), Compress: true})
	if f := compressed.Features(); f.FilePath || !f.Stat {
		t.Errorf("compressed Features = %+v", f)
	}
}

func TestAsExtended(t *testing.T) {
	store := newTestStore(t)

	ext, ok := evaldb.AsExtended(store)
	if !ok {
		t.Fatal("filesystem store is not an ExtendedStore")
	}
	if !ext.Features().Stat {
		t.Error("Features().Stat = false")
	}
}
