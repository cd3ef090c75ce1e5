// Package fileutil provides atomic file replacement with tmp+mv semantics.
package fileutil

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/eunmann/exocdf/pkg/logging"
)

const tmpSuffix = ".tmp"

// Exists returns true if the file exists.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// WriteAtomic writes a complete file through write into a temporary sibling
// of path, fsyncs it, and renames it over path. On any error the target is
// left as it was and the temporary file is removed.
//
// Processes that still hold a mapping or descriptor of the old file keep
// seeing the old contents.
func WriteAtomic(path string, write func(w io.Writer) error) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*"+tmpSuffix)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	fail := func(err error) error {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}

	if err := write(tmp); err != nil {
		return fail(err)
	}
	if err := tmp.Sync(); err != nil {
		return fail(fmt.Errorf("sync temp file: %w", err))
	}
	if err := tmp.Chmod(0o644); err != nil {
		return fail(fmt.Errorf("chmod temp file: %w", err))
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp to final: %w", err)
	}
	return nil
}

// CleanupTmpFiles removes temp files left next to path by interrupted
// writes.
func CleanupTmpFiles(path string) error {
	pattern := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+".*"+tmpSuffix)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return fmt.Errorf("glob temp files: %w", err)
	}

	var removed int
	for _, m := range matches {
		if !strings.HasSuffix(m, tmpSuffix) {
			continue
		}
		if err := os.Remove(m); err == nil {
			removed++
		}
	}
	if removed > 0 {
		logging.L().Debug().Int("files_removed", removed).Str("path", path).Msg("cleaned up tmp files")
	}
	return nil
}
