package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

type outputOptions struct {
	JSON   bool
	Path   string
	Writer io.Writer
}

// emit prints text, or data as indented JSON when opts.JSON is set, and
// mirrors the same bytes to opts.Path when given.
func emit(text string, data any, opts outputOptions) error {
	w := opts.Writer
	if w == nil {
		w = os.Stdout
	}
	content := []byte(text)
	if opts.JSON {
		b, err := json.MarshalIndent(data, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal output: %w", err)
		}
		content = b
	}
	fmt.Fprintln(w, string(content))

	if opts.Path == "" {
		return nil
	}
	if err := writeFileAtomic(opts.Path, append(content, '\n')); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	fmt.Fprintf(os.Stderr, "✓ Wrote output to %s\n", opts.Path)
	return nil
}

// writeFileAtomic writes to a temp file in the target directory and renames
// it over path, so readers never see a partial file.
func writeFileAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	cleanup := func() { _ = os.Remove(name) }
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return err
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		cleanup()
		return err
	}
	if err := os.Rename(name, path); err != nil {
		cleanup()
		return err
	}
	return nil
}
