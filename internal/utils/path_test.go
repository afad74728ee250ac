package utils

import (
	"os"
	"path/filepath"
	"testing"
)

func TestExpandPath(t *testing.T) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		t.Fatalf("Failed to get home directory: %v", err)
	}
	t.Setenv("GOSYNCMOVIES_TEST_DIR", "/srv/data")

	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"empty", "", ""},
		{"tilde only", "~", homeDir},
		{"tilde with path", "~/data/movies.db", filepath.Join(homeDir, "data/movies.db")},
		{"env var", "$GOSYNCMOVIES_TEST_DIR/jobs", "/srv/data/jobs"},
		{"absolute", "/abs/path", "/abs/path"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ExpandPath(tt.input)
			if err != nil {
				t.Fatalf("ExpandPath(%q) error = %v", tt.input, err)
			}
			if got != tt.expected {
				t.Errorf("ExpandPath(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}

func TestDataDirHonorsXDG(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", "/tmp/xdg")
	got, err := DataDir("gosyncmovies")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/tmp/xdg/gosyncmovies" {
		t.Errorf("DataDir() = %q", got)
	}
}
