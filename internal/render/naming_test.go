package render

import (
	"os"
	"path/filepath"
	"testing"
)

func TestUniquePath(t *testing.T) {
	dir := t.TempDir()

	p1 := UniquePath(dir, "Quiz 1", ".docx")
	if filepath.Base(p1) != "Quiz 1.docx" {
		t.Errorf("first path = %q", p1)
	}
	if err := os.WriteFile(p1, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	p2 := UniquePath(dir, "Quiz 1", ".docx")
	if filepath.Base(p2) != "Quiz 1 (2).docx" {
		t.Errorf("second path = %q", p2)
	}
	if err := os.WriteFile(p2, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	p3 := UniquePath(dir, "Quiz 1", ".docx")
	if filepath.Base(p3) != "Quiz 1 (3).docx" {
		t.Errorf("third path = %q", p3)
	}
}
