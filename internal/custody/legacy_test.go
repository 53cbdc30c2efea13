package custody

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestFileLegacyStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "recovery_phrase")
	legacy := NewFileLegacyStore(path)
	ctx := context.Background()

	// Absent file is absence, not an error.
	phrase, err := legacy.ReadPhrase(ctx)
	if err != nil {
		t.Fatalf("ReadPhrase: %v", err)
	}
	if phrase != "" {
		t.Fatalf("phrase = %q, want empty", phrase)
	}

	if err := os.WriteFile(path, []byte(testPhrase+"\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	phrase, err = legacy.ReadPhrase(ctx)
	if err != nil {
		t.Fatalf("ReadPhrase: %v", err)
	}
	if phrase != testPhrase {
		t.Errorf("phrase = %q, want trimmed file contents", phrase)
	}

	if err := legacy.ErasePhrase(ctx); err != nil {
		t.Fatalf("ErasePhrase: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("legacy file still present after erase")
	}

	// Erasing twice is a no-op.
	if err := legacy.ErasePhrase(ctx); err != nil {
		t.Errorf("second erase: %v", err)
	}
}
