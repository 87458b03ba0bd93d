package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestRemoveMatching_RemovesOnlyMatchingFiles(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"hist_age.png", "bar_status.png", "hist_age.svg", "notes.png", "keep.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.MkdirAll(filepath.Join(dir, "hist_dir.png"), 0755); err != nil {
		t.Fatal(err)
	}

	removed, err := RemoveMatching(dir, []string{"hist_", "bar_"}, ".png")
	if err != nil {
		t.Fatalf("RemoveMatching failed: %v", err)
	}
	if len(removed) != 2 {
		t.Errorf("expected 2 removed files, got %v", removed)
	}

	for _, name := range []string{"hist_age.svg", "notes.png", "keep.txt", "hist_dir.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			t.Errorf("%s should have been kept: %v", name, err)
		}
	}
	for _, name := range []string{"hist_age.png", "bar_status.png"} {
		if _, err := os.Stat(filepath.Join(dir, name)); !os.IsNotExist(err) {
			t.Errorf("%s should have been removed", name)
		}
	}
}

func TestRemoveMatching_NonExistentDir(t *testing.T) {
	removed, err := RemoveMatching(filepath.Join(t.TempDir(), "missing"), []string{"hist_"}, ".png")
	if err != nil {
		t.Errorf("expected no error for non-existent directory, got: %v", err)
	}
	if len(removed) != 0 {
		t.Errorf("expected nothing removed, got %v", removed)
	}
}

func TestRemoveIfExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	if err := os.WriteFile(path, []byte("old"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := RemoveIfExists(path); err != nil {
		t.Fatalf("RemoveIfExists() error = %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("file still exists after RemoveIfExists")
	}
	if err := RemoveIfExists(path); err != nil {
		t.Errorf("RemoveIfExists() on missing file error = %v", err)
	}
}

func TestWriteFileAtomic_CreatesAndOverwrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "report.md")

	if err := WriteFileAtomic(path, []byte("first"), 0644); err != nil {
		t.Fatalf("first write failed: %v", err)
	}
	if err := WriteFileAtomic(path, []byte("second"), 0644); err != nil {
		t.Fatalf("second write failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "second" {
		t.Errorf("expected overwritten content, got %q", data)
	}

	entries, err := os.ReadDir(filepath.Dir(path))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("temp files left behind: %v", entries)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0644 {
		t.Errorf("expected 0644, got %04o", info.Mode().Perm())
	}
}

func TestRelativeTo(t *testing.T) {
	tests := []struct {
		base, target, want string
	}{
		{"out", "out/graphs/hist_age.png", "graphs/hist_age.png"},
		{".", "graphs/bar_status.png", "graphs/bar_status.png"},
		{"reports", "graphs/heatmap_correlation.png", "../graphs/heatmap_correlation.png"},
	}
	for _, tt := range tests {
		if got := RelativeTo(tt.base, tt.target); got != tt.want {
			t.Errorf("RelativeTo(%q, %q) = %q, want %q", tt.base, tt.target, got, tt.want)
		}
	}
}
