package filestore

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

func writeFile(t *testing.T, root, rel string, data []byte) {
	t.Helper()
	p := filepath.Join(root, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, data, 0644); err != nil {
		t.Fatal(err)
	}
}

// ============================================================================
// Project loading
// ============================================================================

func TestLoadProjectSeparatesTexFromPassthrough(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.tex", []byte("\\documentclass{article}\n"))
	writeFile(t, root, "chapters/intro.tex", []byte("intro\n"))
	writeFile(t, root, "figures/plot.pdf", []byte("%PDF-fake"))
	writeFile(t, root, "refs.bib", []byte("@article{x}"))

	files, passthrough, err := New(root).LoadProject()
	if err != nil {
		t.Fatalf("LoadProject failed: %v", err)
	}
	if len(files) != 2 {
		t.Errorf("expected 2 tex files, got %d", len(files))
	}
	if _, ok := files["chapters/intro.tex"]; !ok {
		t.Error("nested tex file missing; keys must be slash-relative paths")
	}
	if len(passthrough) != 2 {
		t.Errorf("expected 2 passthrough files, got %v", passthrough)
	}
}

func TestLoadProjectSkipsVCSDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, "main.tex", []byte("x"))
	writeFile(t, root, ".git/objects/blob.tex", []byte("not a source file"))

	files, passthrough, err := New(root).LoadProject()
	if err != nil {
		t.Fatalf("LoadProject failed: %v", err)
	}
	if len(files) != 1 || len(passthrough) != 0 {
		t.Errorf("VCS internals must be skipped: %d files, %v", len(files), passthrough)
	}
}

// ============================================================================
// Encoding detection
// ============================================================================

func TestLoadProjectDecodesEncodings(t *testing.T) {
	utf16Data, err := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).
		NewEncoder().Bytes([]byte("utf16 content"))
	if err != nil {
		t.Fatal(err)
	}
	gbkData, err := simplifiedchinese.GBK.NewEncoder().Bytes([]byte("中文内容"))
	if err != nil {
		t.Fatal(err)
	}

	root := t.TempDir()
	writeFile(t, root, "bom.tex", append([]byte{0xEF, 0xBB, 0xBF}, []byte("bom content")...))
	writeFile(t, root, "utf16.tex", utf16Data)
	writeFile(t, root, "gbk.tex", gbkData)
	writeFile(t, root, "plain.tex", []byte("plain content"))

	files, _, err := New(root).LoadProject()
	if err != nil {
		t.Fatalf("LoadProject failed: %v", err)
	}

	tests := map[string]string{
		"bom.tex":   "bom content",
		"utf16.tex": "utf16 content",
		"gbk.tex":   "中文内容",
		"plain.tex": "plain content",
	}
	for rel, want := range tests {
		f, ok := files[rel]
		if !ok {
			t.Errorf("%s missing", rel)
			continue
		}
		if f.Content != want {
			t.Errorf("%s: expected %q, got %q", rel, want, f.Content)
		}
		if strings.HasPrefix(f.Content, "\uFEFF") {
			t.Errorf("%s: BOM must be stripped", rel)
		}
	}
}

// ============================================================================
// Writing
// ============================================================================

func TestWriteFileCreatesDirectories(t *testing.T) {
	root := t.TempDir()
	dest := t.TempDir()
	store := New(root)

	if err := store.WriteFile(dest, "deep/nested/out.tex", "translated"); err != nil {
		t.Fatalf("WriteFile failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "deep", "nested", "out.tex"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "translated" {
		t.Errorf("unexpected content: %q", data)
	}
}

func TestCopyPassthroughPreservesBytes(t *testing.T) {
	root := t.TempDir()
	dest := t.TempDir()
	raw := []byte{0x00, 0xFF, 0x12, 0x89}
	writeFile(t, root, "assets/bin.dat", raw)

	if err := New(root).CopyPassthrough(dest, []string{"assets/bin.dat"}); err != nil {
		t.Fatalf("CopyPassthrough failed: %v", err)
	}
	data, err := os.ReadFile(filepath.Join(dest, "assets", "bin.dat"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != string(raw) {
		t.Errorf("passthrough bytes changed: %v", data)
	}
}
