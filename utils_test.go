package slabq

import (
	"os"
	"path/filepath"
	"testing"
)

func TestValidateStorageDir(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "not-a-dir")
	if err := os.WriteFile(file, []byte("x"), 0644); err != nil {
		t.Fatalf("failed to seed file: %v", err)
	}

	tests := []struct {
		name      string
		dirName   string
		expectErr bool
	}{
		{name: "existing directory is valid", dirName: dir, expectErr: false},
		{name: "empty path is rejected", dirName: "", expectErr: true},
		{name: "missing path is rejected", dirName: filepath.Join(dir, "missing"), expectErr: true},
		{name: "path that is a file is rejected", dirName: file, expectErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateStorageDir(tt.dirName)
			if tt.expectErr && err == nil {
				t.Errorf("Failed test: %s, expected error, got nil", tt.name)
			}
			if !tt.expectErr && err != nil {
				t.Errorf("Failed test: %s, unexpected error: %v", tt.name, err)
			}
		})
	}
}
