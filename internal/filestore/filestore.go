// Package filestore reads a LaTeX project tree from disk and writes the
// translated tree back. Source files arrive in whatever encoding the authors
// used; everything is normalized to UTF-8 on the way in and written back as
// UTF-8 without BOM.
package filestore

import (
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"

	"latex-project-translator/internal/logger"
	"latex-project-translator/internal/types"
)

// texExtensions are the files submitted to the parser. Everything else in the
// project tree is carried over unchanged.
var texExtensions = map[string]bool{".tex": true}

// skippedDirs are never descended into.
var skippedDirs = map[string]bool{".git": true, ".svn": true, "node_modules": true}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Store reads and writes one project tree.
type Store struct {
	root string
}

// New creates a store rooted at the project directory.
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the project root directory.
func (s *Store) Root() string { return s.root }

// LoadProject walks the tree and returns the LaTeX files as UTF-8 text,
// keyed by slash-separated path relative to the root, plus the relative
// paths of every other regular file for passthrough copying.
func (s *Store) LoadProject() (map[string]*types.ProjectFile, []string, error) {
	files := make(map[string]*types.ProjectFile)
	var passthrough []string

	err := filepath.WalkDir(s.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if skippedDirs[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		rel, err := filepath.Rel(s.root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if !texExtensions[strings.ToLower(filepath.Ext(p))] {
			passthrough = append(passthrough, rel)
			return nil
		}

		data, err := os.ReadFile(p)
		if err != nil {
			return types.NewAppErrorWithDetails(types.ErrFileNotFound, "failed to read project file", rel, err)
		}
		text, enc := decodeText(data)
		if enc != "utf-8" {
			logger.Info("converted source encoding",
				logger.String("file", rel),
				logger.String("encoding", enc))
		}
		files[rel] = &types.ProjectFile{Path: rel, Content: text}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	sort.Strings(passthrough)
	logger.Info("project loaded",
		logger.String("root", s.root),
		logger.Int("tex_files", len(files)),
		logger.Int("other_files", len(passthrough)))
	return files, passthrough, nil
}

// WriteFile writes one translated file under destRoot, creating directories
// as needed.
func (s *Store) WriteFile(destRoot, rel, content string) error {
	target := filepath.Join(destRoot, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return types.NewAppErrorWithDetails(types.ErrInternal, "failed to create output directory", rel, err)
	}
	if err := os.WriteFile(target, []byte(content), 0644); err != nil {
		return types.NewAppErrorWithDetails(types.ErrInternal, "failed to write output file", rel, err)
	}
	return nil
}

// CopyPassthrough copies the non-LaTeX project files into destRoot unchanged.
func (s *Store) CopyPassthrough(destRoot string, rels []string) error {
	for _, rel := range rels {
		data, err := os.ReadFile(filepath.Join(s.root, filepath.FromSlash(rel)))
		if err != nil {
			return types.NewAppErrorWithDetails(types.ErrFileNotFound, "failed to read passthrough file", rel, err)
		}
		target := filepath.Join(destRoot, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
			return types.NewAppErrorWithDetails(types.ErrInternal, "failed to create output directory", rel, err)
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return types.NewAppErrorWithDetails(types.ErrInternal, "failed to write passthrough file", rel, err)
		}
	}
	return nil
}

// decodeText converts raw file bytes to UTF-8 and names the source encoding.
// Detection order: BOM, valid UTF-8, GB18030. GB18030 is a superset of GBK
// and of ASCII, so it is a safe last resort that never fails outright.
func decodeText(data []byte) (string, string) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return string(data[len(bomUTF8):]), "utf-8-bom"
	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.UseBOM).NewDecoder()
		out, err := dec.Bytes(data)
		if err == nil {
			return string(out), "utf-16"
		}
	}
	if utf8.Valid(data) {
		return string(data), "utf-8"
	}
	out, err := simplifiedchinese.GB18030.NewDecoder().Bytes(data)
	if err == nil && utf8.Valid(out) {
		return string(out), "gb18030"
	}
	// Undecodable bytes pass through; the parser treats them as opaque text.
	return string(data), "unknown"
}
