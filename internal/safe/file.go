// Package safe reads user-supplied fixture files with basic guards.
package safe

import (
	"fmt"
	"os"
	"path/filepath"
)

// DefaultMaxFileSize caps fixture files at 1MB.
const DefaultMaxFileSize = 1 << 20

// ReadOptions configures ReadFile.
type ReadOptions struct {
	// MaxSize is the largest accepted file in bytes. Zero means DefaultMaxFileSize.
	MaxSize int64
	// AllowSymlinks follows a symlinked path instead of rejecting it.
	AllowSymlinks bool
}

// ReadFile reads a regular file no larger than the configured limit.
// Symlinks are rejected unless opts allows them.
func ReadFile(path string, opts *ReadOptions) ([]byte, error) {
	if opts == nil {
		opts = &ReadOptions{}
	}
	maxSize := opts.MaxSize
	if maxSize == 0 {
		maxSize = DefaultMaxFileSize
	}

	clean := filepath.Clean(path)

	info, err := os.Lstat(clean)
	if err != nil {
		return nil, err
	}

	if info.Mode()&os.ModeSymlink != 0 {
		if !opts.AllowSymlinks {
			return nil, fmt.Errorf("file %q is a symlink", path)
		}
		if info, err = os.Stat(clean); err != nil {
			return nil, err
		}
	}

	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("path %q is not a regular file", path)
	}

	if info.Size() > maxSize {
		return nil, fmt.Errorf("file %q exceeds maximum size of %d bytes", path, maxSize)
	}

	// #nosec G304 - path validated above.
	return os.ReadFile(clean)
}
