// internal/auth/credentials_test.go
package auth

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// fileStore forces the file fallback into a throwaway home directory.
func fileStore(t *testing.T) *Store {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("file fallback test relies on HOME")
	}
	t.Setenv("HOME", t.TempDir())
	t.Setenv("CI", "1")
	return NewStore()
}

func TestStoreFileRoundTrip(t *testing.T) {
	s := fileStore(t)

	if err := s.Set("shop-password", "s3cret"); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := s.Resolve("shop-password")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != "s3cret" {
		t.Errorf("secret = %q", got)
	}

	names, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 1 || names[0] != "shop-password" {
		t.Errorf("names = %v", names)
	}

	if err := s.Delete("shop-password"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.Resolve("shop-password"); err == nil {
		t.Error("deleted credential still resolves")
	}
}

func TestStoreFilePermissions(t *testing.T) {
	s := fileStore(t)

	if err := s.Set("secret", "value"); err != nil {
		t.Fatalf("set: %v", err)
	}
	home := os.Getenv("HOME")
	info, err := os.Stat(filepath.Join(home, ".studio", "credentials", "secret.cred"))
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("permissions = %o, want 0600", perm)
	}
}

func TestStoreEmptyName(t *testing.T) {
	s := fileStore(t)

	if _, err := s.Resolve(""); err == nil {
		t.Error("empty name resolved")
	}
	if err := s.Set("", "x"); err == nil {
		t.Error("empty name stored")
	}
	if err := s.Delete(""); err == nil {
		t.Error("empty name deleted")
	}
}

func TestStoreDeleteUnknownIsNoop(t *testing.T) {
	s := fileStore(t)
	if err := s.Delete("never-stored"); err != nil {
		t.Errorf("delete unknown: %v", err)
	}
}

func TestStoreListEmpty(t *testing.T) {
	s := fileStore(t)
	names, err := s.List()
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(names) != 0 {
		t.Errorf("names = %v", names)
	}
}
