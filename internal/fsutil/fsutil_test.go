package fsutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestReadFileScoped_ReadsFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "a.txt")
	if err := os.WriteFile(p, []byte("hello"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}

	b, err := ReadFileScoped(p)
	if err != nil {
		t.Fatalf("ReadFileScoped error: %v", err)
	}
	if string(b) != "hello" {
		t.Fatalf("unexpected content: %q", string(b))
	}
}

func TestReadFileScoped_RejectsInvalidPath(t *testing.T) {
	for _, p := range []string{"", ".", string(filepath.Separator)} {
		if _, err := ReadFileScoped(p); err == nil {
			t.Fatalf("expected error for %q", p)
		}
	}
}

func TestReadFileIfExists(t *testing.T) {
	dir := t.TempDir()

	for _, p := range []string{
		filepath.Join(dir, "missing.yaml"),
		filepath.Join(dir, "nodir", "missing.yaml"),
	} {
		data, ok, err := ReadFileIfExists(p)
		if err != nil || ok || data != nil {
			t.Fatalf("ReadFileIfExists(%q) = %q, %v, %v; want nil, false, nil", p, data, ok, err)
		}
	}

	p := filepath.Join(dir, "present.yaml")
	if err := os.WriteFile(p, []byte("x: 1"), 0o600); err != nil {
		t.Fatal(err)
	}
	data, ok, err := ReadFileIfExists(p)
	if err != nil || !ok || string(data) != "x: 1" {
		t.Fatalf("ReadFileIfExists = %q, %v, %v", data, ok, err)
	}
}

func TestWriteFileAtomic_CreatesAndReplaces(t *testing.T) {
	p := filepath.Join(t.TempDir(), "nested", "state.json")

	if err := WriteFileAtomic(p, []byte("one"), 0o600); err != nil {
		t.Fatalf("first write: %v", err)
	}
	if err := WriteFileAtomic(p, []byte("two"), 0o600); err != nil {
		t.Fatalf("second write: %v", err)
	}

	b, err := ReadFileScoped(p)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(b) != "two" {
		t.Fatalf("expected replaced content, got %q", b)
	}

	entries, err := os.ReadDir(filepath.Dir(p))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected only the target file, got %d entries", len(entries))
	}
}
