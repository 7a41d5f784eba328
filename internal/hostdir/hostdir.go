package hostdir

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/sheerbytes/filehost/pkg/protocol"
)

var (
	// ErrNotFound indicates the requested name is not a regular file in the directory.
	ErrNotFound = errors.New("file not found")
	// ErrTooLarge indicates the file cannot fit in a single frame.
	ErrTooLarge = errors.New("file too large")
)

// Entry is one served file. The digest is computed on every read and never cached.
type Entry struct {
	Name   string
	Data   []byte
	Digest string
}

// Dir is a directory of files served to clients.
type Dir struct {
	root string
}

// Open returns the directory at root, creating it if absent. created reports
// whether it had to be created.
func Open(root string) (d *Dir, created bool, err error) {
	info, err := os.Stat(root)
	switch {
	case err == nil:
		if !info.IsDir() {
			return nil, false, fmt.Errorf("%s is not a directory", root)
		}
	case errors.Is(err, fs.ErrNotExist):
		if err := os.MkdirAll(root, 0755); err != nil {
			return nil, false, fmt.Errorf("create directory: %w", err)
		}
		created = true
	default:
		return nil, false, fmt.Errorf("stat directory: %w", err)
	}
	return &Dir{root: root}, created, nil
}

// Root returns the directory path.
func (d *Dir) Root() string {
	return d.root
}

// List returns the regular files directly under the directory, sorted by name.
// Symlinks to regular files are included; subdirectories are not.
func (d *Dir) List() ([]string, error) {
	entries, err := os.ReadDir(d.root)
	if err != nil {
		return nil, fmt.Errorf("read directory: %w", err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		info, err := os.Stat(filepath.Join(d.root, e.Name()))
		if err != nil {
			// Dangling symlink or a file removed between ReadDir and Stat.
			continue
		}
		if info.Mode().IsRegular() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}

// Read loads the whole file and its digest. A negative maxSize means no limit.
func (d *Dir) Read(name string, maxSize int64) (Entry, error) {
	if err := protocol.ValidateName(name); err != nil {
		return Entry{}, err
	}
	path := filepath.Join(d.root, name)
	info, err := os.Stat(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return Entry{}, fmt.Errorf("stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		return Entry{}, fmt.Errorf("%w: %s is not a regular file", ErrNotFound, name)
	}
	if maxSize >= 0 && info.Size() > maxSize {
		return Entry{}, fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, name, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return Entry{}, fmt.Errorf("read %s: %w", name, err)
	}
	if maxSize >= 0 && int64(len(data)) > maxSize {
		return Entry{}, fmt.Errorf("%w: %s grew to %d bytes", ErrTooLarge, name, len(data))
	}
	return Entry{Name: name, Data: data, Digest: protocol.Digest(data)}, nil
}
