package registry

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"chatd/internal/common/fsutil"
	"chatd/pkg/types"
)

// GGUFScanner discovers loadable weights files by extension.
type GGUFScanner struct{}

func NewGGUFScanner() *GGUFScanner { return &GGUFScanner{} }

// Scan lists *.gguf files in dir. Name is the full filename (including
// extension); Path is the absolute file path.
func (s *GGUFScanner) Scan(dir string) ([]types.ModelFile, error) {
	base, err := fsutil.ExpandHome(dir)
	if err != nil {
		return nil, err
	}
	abs, err := filepath.Abs(base)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	entries, err := os.ReadDir(abs)
	if err != nil {
		return nil, fmt.Errorf("read dir: %w", err)
	}
	var files []types.ModelFile
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(strings.ToLower(name), ".gguf") {
			continue
		}
		f := types.ModelFile{Name: name, Path: filepath.Join(abs, name)}
		if info, err := e.Info(); err == nil {
			f.SizeBytes = info.Size()
		}
		files = append(files, f)
	}
	return files, nil
}

// LoadDir scans dir with the default scanner.
func LoadDir(dir string) ([]types.ModelFile, error) {
	return NewGGUFScanner().Scan(dir)
}
