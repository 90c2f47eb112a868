package rig

import (
	"os"
	"path/filepath"
	"testing"
)

func writeIdentityConfig(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rig.json")
	if err := os.WriteFile(path, []byte(`{"identity": "BENCH STAGE"}`), 0644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}
