package localfs

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSaveAndOpenRoundTrip(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	key := "ab12cd_shelf.jpg"
	if err := storage.Save(context.Background(), key, strings.NewReader("jpeg-bytes")); err != nil {
		t.Fatalf("Save: %v", err)
	}

	r, err := storage.Open(context.Background(), key)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer r.Close()
	body, err := io.ReadAll(r)
	if err != nil {
		t.Fatal(err)
	}
	if string(body) != "jpeg-bytes" {
		t.Errorf("body = %q, want jpeg-bytes", body)
	}
}

func TestSaveShardsByKeyPrefix(t *testing.T) {
	base := t.TempDir()
	storage, err := New(base)
	if err != nil {
		t.Fatal(err)
	}

	if err := storage.Save(context.Background(), "ab12cd_shelf.jpg", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(base, "ab", "ab12cd_shelf.jpg")); err != nil {
		t.Errorf("expected file under two-character shard dir: %v", err)
	}
}

func TestRemoveDeletesStoredFile(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	key := "ab12cd_shelf.jpg"
	if err := storage.Save(context.Background(), key, strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if err := storage.Remove(context.Background(), key); err != nil {
		t.Fatalf("Remove: %v", err)
	}
	if _, err := storage.Open(context.Background(), key); err == nil {
		t.Errorf("Open succeeded after Remove")
	}
	if err := storage.Remove(context.Background(), "../escape"); err == nil {
		t.Errorf("Remove accepted a traversal key")
	}
}

func TestResolveRejectsTraversalKeys(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}

	for _, key := range []string{"", "../escape", "a/b", ".hidden", "..", "dir/../../etc"} {
		if err := storage.Save(context.Background(), key, strings.NewReader("x")); err == nil {
			t.Errorf("key %q: Save accepted a key that must be rejected", key)
		}
		if _, err := storage.Open(context.Background(), key); err == nil {
			t.Errorf("key %q: Open accepted a key that must be rejected", key)
		}
	}
}

func TestOpenMissingKeyFails(t *testing.T) {
	storage, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := storage.Open(context.Background(), "ab12_missing.jpg"); err == nil {
		t.Error("Open must fail for a key never saved")
	}
}

func TestShortKeysUseWholeKeyAsShard(t *testing.T) {
	base := t.TempDir()
	storage, err := New(base)
	if err != nil {
		t.Fatal(err)
	}
	if err := storage.Save(context.Background(), "ab", strings.NewReader("x")); err != nil {
		t.Fatal(err)
	}
	if _, err := os.Stat(filepath.Join(base, "ab", "ab")); err != nil {
		t.Errorf("short key not stored under its own shard: %v", err)
	}
}
