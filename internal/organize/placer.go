package organize

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// place moves or copies src to dest, creating the destination directory.
func (o *Organizer) place(src, dest string) error {
	if err := os.MkdirAll(filepath.Dir(dest), 0755); err != nil {
		return fmt.Errorf("cannot create directory: %w", err)
	}
	if o.cfg.Copy {
		return copyFile(src, dest)
	}
	return moveFile(src, dest)
}

// moveFile renames src to dest, falling back to copy-and-remove across
// filesystem boundaries where rename cannot work.
func moveFile(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	if err := copyFile(src, dest); err != nil {
		return err
	}
	if err := os.Remove(src); err != nil {
		return fmt.Errorf("copied but cannot remove source: %w", err)
	}
	return nil
}

// copyFile copies src to dest preserving mode and modification time. The
// mtime matters: it is half of the cache's change-detection signature.
func copyFile(src, dest string) error {
	info, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("cannot stat source: %w", err)
	}

	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("cannot open source: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(dest, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("cannot create destination: %w", err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("copy failed: %w", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return fmt.Errorf("copy failed: %w", err)
	}

	if err := os.Chtimes(dest, info.ModTime(), info.ModTime()); err != nil {
		return fmt.Errorf("cannot preserve mtime: %w", err)
	}
	return nil
}
