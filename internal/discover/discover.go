// Package discover lists input images and derives their output names.
package discover

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/tendant/simple-grayscaler/internal/process"
)

// OutputPrefix is prepended to every source basename to name its output.
const OutputPrefix = "gris_"

// DefaultExtensions are the accepted input extensions (lowercase, with dot).
var DefaultExtensions = []string{".png", ".jpg", ".jpeg", ".bmp", ".gif"}

// ConfigError reports an unusable input directory. It is fatal to the run.
type ConfigError struct {
	Dir string
	Err error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("input directory %s: %v", e.Dir, e.Err)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// Images returns the regular files directly inside dir whose extension is in
// exts (case-insensitive), sorted lexicographically. Subdirectories are not
// descended into.
func Images(dir string, exts []string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, &ConfigError{Dir: dir, Err: err}
	}
	if !info.IsDir() {
		return nil, &ConfigError{Dir: dir, Err: fmt.Errorf("not a directory")}
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, &ConfigError{Dir: dir, Err: err}
	}

	accepted := make(map[string]bool, len(exts))
	for _, ext := range exts {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		accepted[ext] = true
	}

	var files []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if accepted[strings.ToLower(filepath.Ext(e.Name()))] {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// OutputName derives the output name for path: prefix plus the original
// basename, extension included.
func OutputName(prefix, path string) string {
	return prefix + filepath.Base(path)
}

// Refs pairs every path with a unique output name. Collisions are resolved in
// input order.
func Refs(paths []string, prefix string) []process.Ref {
	resolver := NewCollisionResolver()
	refs := make([]process.Ref, len(paths))
	for i, p := range paths {
		refs[i] = process.Ref{
			Source: p,
			Dest:   resolver.Resolve(p, OutputName(prefix, p)),
		}
	}
	return refs
}
