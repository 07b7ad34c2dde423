// Package fileutil removes duplicate files: to the system trash, to a
// holding folder, or permanently.
package fileutil

import (
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"syscall"
	"time"
)

// Method says what happens to a removed file
type Method string

const (
	MethodTrash     Method = "trash"
	MethodPermanent Method = "permanent"
	MethodMove      Method = "move"
)

// Remover disposes of files with one Method
type Remover struct {
	method  Method
	moveTo  string
	homeDir func() (string, error)
}

// NewRemover picks the method from the CLI flags. moveTo wins over permanent.
func NewRemover(permanent bool, moveTo string) *Remover {
	r := &Remover{method: MethodTrash, homeDir: os.UserHomeDir}
	switch {
	case moveTo != "":
		r.method = MethodMove
		r.moveTo = moveTo
	case permanent:
		r.method = MethodPermanent
	}
	return r
}

// Method returns the removal method
func (r *Remover) Method() Method {
	return r.method
}

// Verb describes the action for user output, e.g. "Moved to trash".
func (r *Remover) Verb() string {
	switch r.method {
	case MethodPermanent:
		return "Deleted"
	case MethodMove:
		return "Moved to " + r.moveTo
	default:
		return "Moved to trash"
	}
}

// Remove disposes of path
func (r *Remover) Remove(path string) error {
	switch r.method {
	case MethodPermanent:
		return os.Remove(path)
	case MethodMove:
		return MoveFile(path, r.moveTo)
	default:
		return r.moveToTrash(path)
	}
}

// MoveFile moves a file into destDir. An existing file of the same name is
// not overwritten; a counter is appended instead (photo_1.jpg).
func MoveFile(src, destDir string) error {
	if err := os.MkdirAll(destDir, 0755); err != nil {
		return err
	}

	destName := uniqueName(filepath.Base(src), func(name string) bool {
		return !exists(filepath.Join(destDir, name))
	})

	return rename(src, filepath.Join(destDir, destName))
}

func exists(path string) bool {
	_, err := os.Lstat(path)
	return !errors.Is(err, os.ErrNotExist)
}

// uniqueName returns filename, or filename with _N before the extension, for
// the first candidate free reports as usable.
func uniqueName(filename string, free func(string) bool) string {
	if free(filename) {
		return filename
	}

	ext := filepath.Ext(filename)
	stem := strings.TrimSuffix(filename, ext)
	for n := 1; ; n++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, n, ext)
		if free(candidate) {
			return candidate
		}
	}
}

// rename moves a file, copying and deleting when src and dest are on
// different filesystems.
func rename(src, dest string) error {
	err := os.Rename(src, dest)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if errors.As(err, &linkErr) && errors.Is(linkErr.Err, syscall.EXDEV) {
		if err := copyFile(src, dest); err != nil {
			return err
		}
		return os.Remove(src)
	}

	return err
}

func copyFile(src, dest string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	st, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_EXCL, st.Mode())
	if err != nil {
		return err
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		os.Remove(dest)
		return err
	}
	if err := out.Close(); err != nil {
		os.Remove(dest)
		return err
	}
	return os.Chtimes(dest, st.ModTime(), st.ModTime())
}

// moveToTrash moves a file to the current user's trash.
//   - macOS: ~/.Trash
//   - Linux: ~/.local/share/Trash with a .trashinfo entry
//   - Windows: Recycle Bin
func (r *Remover) moveToTrash(src string) error {
	if runtime.GOOS == "windows" {
		return recycle(src)
	}

	home, err := r.homeDir()
	if err != nil {
		return fmt.Errorf("failed to get home directory: %w", err)
	}

	switch runtime.GOOS {
	case "linux":
		return trashFreedesktop(src, filepath.Join(home, ".local", "share", "Trash"))
	case "darwin":
		return MoveFile(src, filepath.Join(home, ".Trash"))
	default:
		return MoveFile(src, filepath.Join(home, ".imagedupes", "trash"))
	}
}

// trashFreedesktop implements the freedesktop.org trash layout under root:
// the file goes to files/ and its origin is recorded in info/<name>.trashinfo.
func trashFreedesktop(src, root string) error {
	filesDir := filepath.Join(root, "files")
	infoDir := filepath.Join(root, "info")
	for _, dir := range []string{filesDir, infoDir} {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("failed to create trash directory: %w", err)
		}
	}

	absPath, err := filepath.Abs(src)
	if err != nil {
		return err
	}

	name := uniqueName(filepath.Base(src), func(name string) bool {
		return !exists(filepath.Join(filesDir, name)) &&
			!exists(filepath.Join(infoDir, name+".trashinfo"))
	})

	infoPath := filepath.Join(infoDir, name+".trashinfo")
	info := fmt.Sprintf("[Trash Info]\nPath=%s\nDeletionDate=%s\n",
		(&url.URL{Path: absPath}).EscapedPath(),
		time.Now().Format("2006-01-02T15:04:05"))

	if err := os.WriteFile(infoPath, []byte(info), 0600); err != nil {
		return err
	}

	if err := rename(src, filepath.Join(filesDir, name)); err != nil {
		os.Remove(infoPath)
		return err
	}
	return nil
}
