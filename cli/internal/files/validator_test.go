package files

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "report.txt")
	if err := os.WriteFile(path, []byte("quarterly"), 0o644); err != nil {
		t.Fatal(err)
	}

	info, err := Validate(path)
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if info.Name != "report.txt" || info.Size != 9 || info.Path != path {
		t.Fatalf("info=%+v", info)
	}
	if info.Type == "" {
		t.Fatalf("missing mime type")
	}
}

func TestValidateRejects(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		path string
		want error
	}{
		{filepath.Join(dir, "missing"), ErrNotExist},
		{dir, ErrDirectory},
		{empty, ErrEmpty},
	}
	for _, tt := range tests {
		if _, err := Validate(tt.path); !errors.Is(err, tt.want) {
			t.Errorf("Validate(%s) = %v, want %v", tt.path, err, tt.want)
		}
	}
	if _, err := Validate("  "); err == nil {
		t.Fatalf("blank path accepted")
	}
}
