package native

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "local_storage.yaml")

	s, err := OpenLocalStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Length() != 0 {
		t.Fatalf("new storage should be empty, got %d", s.Length())
	}

	for _, kv := range [][2]string{{"nickname", "alice"}, {"deviceId", "cam-1"}, {"nickname", "bob"}} {
		if err := s.SetItem(kv[0], kv[1]); err != nil {
			t.Fatal(err)
		}
	}
	if v, ok := s.GetItem("nickname"); !ok || v != "bob" {
		t.Fatalf("got %q want %q", v, "bob")
	}
	if k, _ := s.Key(0); k != "nickname" {
		t.Fatalf("key order is incorrect, got %s", k)
	}
	if _, ok := s.Key(2); ok {
		t.Fatal("key out of range should not exist")
	}

	t.Run("persists", func(t *testing.T) {
		reopened, err := OpenLocalStorage(path)
		if err != nil {
			t.Fatal(err)
		}
		if reopened.Length() != 2 {
			t.Fatalf("got %d items want 2", reopened.Length())
		}
		if v, _ := reopened.GetItem("deviceId"); v != "cam-1" {
			t.Fatalf("got %q want %q", v, "cam-1")
		}
		if k, _ := reopened.Key(1); k != "deviceId" {
			t.Fatalf("key order is incorrect, got %s", k)
		}
	})

	t.Run("remove and clear", func(t *testing.T) {
		if err := s.RemoveItem("nickname"); err != nil {
			t.Fatal(err)
		}
		if err := s.RemoveItem("unknown"); err != nil {
			t.Fatal(err)
		}
		if _, ok := s.GetItem("nickname"); ok {
			t.Fatal("removed item still present")
		}
		if k, _ := s.Key(0); k != "deviceId" {
			t.Fatalf("got %s want deviceId", k)
		}
		if err := s.Clear(); err != nil {
			t.Fatal(err)
		}
		reopened, err := OpenLocalStorage(path)
		if err != nil {
			t.Fatal(err)
		}
		if reopened.Length() != 0 {
			t.Fatalf("cleared storage has %d items", reopened.Length())
		}
	})
}

func TestLocalStorageQuota(t *testing.T) {
	s, err := OpenLocalStorage("")
	if err != nil {
		t.Fatal(err)
	}
	big := strings.Repeat("x", StorageQuota)
	if err := s.SetItem("k", big); !errors.Is(err, ErrQuotaExceeded) {
		t.Fatalf("got %v want %v", err, ErrQuotaExceeded)
	}
	if s.Length() != 0 {
		t.Fatal("failed write should not be stored")
	}
	if err := s.SetItem("k", big[:StorageQuota-1]); err != nil {
		t.Fatal(err)
	}
	// Replacing a value only counts the difference.
	if err := s.SetItem("k", big[:StorageQuota-2]); err != nil {
		t.Fatal(err)
	}
}

func TestLocalStorageCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local_storage.yaml")
	if err := os.WriteFile(path, []byte("key: [unterminated"), 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := OpenLocalStorage(path); err == nil {
		t.Fatal("expected error for corrupt file")
	}
}

func TestLocalStorageFailedWriteKeepsState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "local_storage.yaml")
	s, err := OpenLocalStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SetItem("nickname", "alice"); err != nil {
		t.Fatal(err)
	}

	// A directory in place of the temporary file makes every save fail.
	if err := os.Mkdir(path+".tmp", 0o755); err != nil {
		t.Fatal(err)
	}

	if err := s.SetItem("deviceId", "cam-1"); err == nil {
		t.Fatal("expected set to fail")
	}
	if _, ok := s.GetItem("deviceId"); ok {
		t.Fatal("failed set changed memory")
	}
	if err := s.SetItem("nickname", "bob"); err == nil {
		t.Fatal("expected overwrite to fail")
	}
	if v, _ := s.GetItem("nickname"); v != "alice" {
		t.Fatalf("got %q want %q", v, "alice")
	}
	if err := s.RemoveItem("nickname"); err == nil {
		t.Fatal("expected remove to fail")
	}
	if err := s.Clear(); err == nil {
		t.Fatal("expected clear to fail")
	}
	if s.Length() != 1 {
		t.Fatalf("got %d items want 1", s.Length())
	}
	if k, _ := s.Key(0); k != "nickname" {
		t.Fatalf("got %s want nickname", k)
	}

	reopened, err := OpenLocalStorage(path)
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := reopened.GetItem("nickname"); v != "alice" || reopened.Length() != 1 {
		t.Fatalf("file does not match memory, got %q with %d items", v, reopened.Length())
	}
}
