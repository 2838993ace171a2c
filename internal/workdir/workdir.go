// Package workdir prepares the on-disk staging layout used by the gathering
// phases: a root directory with one subdirectory per phase that stages files.
package workdir

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Subdirectory names under the working-directory root.
const (
	DirectoryDir = "directory"
	DataEnumDir  = "dataenum"
)

// Layout is the prepared staging hierarchy.
type Layout struct {
	// Root is the absolute working-directory root.
	Root string
	// Directory stages files written by the directory enumerator.
	Directory string
	// DataEnum stages files written by the data enumerator.
	DataEnum string
}

// Prepare resolves root (defaulting to the current directory), creates it and
// both phase subdirectories, and verifies they are writable. It is idempotent.
func Prepare(root string) (Layout, error) {
	if strings.TrimSpace(root) == "" {
		root = "."
	}
	abs, err := filepath.Abs(root)
	if err != nil {
		return Layout{}, fmt.Errorf("resolve working directory: %w", err)
	}
	layout := Layout{
		Root:      abs,
		Directory: filepath.Join(abs, DirectoryDir),
		DataEnum:  filepath.Join(abs, DataEnumDir),
	}
	for _, dir := range []string{layout.Root, layout.Directory, layout.DataEnum} {
		if err := ensureDir(dir); err != nil {
			return Layout{}, err
		}
	}
	return layout, nil
}

func ensureDir(dir string) error {
	info, err := os.Stat(dir)
	switch {
	case err == nil && !info.IsDir():
		return fmt.Errorf("%s is not a directory", dir)
	case err == nil:
	case os.IsNotExist(err):
		if mkErr := os.MkdirAll(dir, 0o750); mkErr != nil {
			return fmt.Errorf("failed to create %s: %w", dir, mkErr)
		}
	default:
		return fmt.Errorf("failed to stat %s: %w", dir, err)
	}

	probe, err := os.CreateTemp(dir, ".writable_test")
	if err != nil {
		return fmt.Errorf("%s is not writable: %w", dir, err)
	}
	name := probe.Name()
	if err := probe.Close(); err != nil {
		return fmt.Errorf("failed to close probe file: %w", err)
	}
	if err := os.Remove(name); err != nil {
		return fmt.Errorf("failed to clean up probe file: %w", err)
	}
	return nil
}
