package bind

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// FileBackend stores the document in a file. Writes go through a temporary
// file and a rename so that readers never observe a partial document.
type FileBackend struct {
	path string
}

// NewFileBackend creates a FileBackend for path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

// Path returns the file path.
func (f *FileBackend) Path() string {
	return f.path
}

// Load reads the file. A missing file yields no document.
func (f *FileBackend) Load(_ context.Context) ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// DefaultFileMode is the permission of a store file Save creates. An
// existing file keeps its mode.
const DefaultFileMode fs.FileMode = 0o644

// Save replaces the file contents.
func (f *FileBackend) Save(_ context.Context, data []byte) error {
	mode := DefaultFileMode
	if info, err := os.Stat(f.path); err == nil {
		mode = info.Mode().Perm()
	}

	dir := filepath.Dir(f.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // gone after a successful rename

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Chmod(mode); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), f.path)
}

// Watch begins watching the file and returns a channel that emits its
// contents whenever it is written, created or replaced. The current
// contents are emitted immediately when the file exists. The containing
// directory is watched so that replacement by rename is observed.
func (f *FileBackend) Watch(ctx context.Context) (<-chan []byte, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	target := filepath.Clean(f.path)
	out := make(chan []byte)

	go func() {
		defer close(out)
		defer watcher.Close()

		emit := func() bool {
			data, err := os.ReadFile(f.path)
			if err != nil {
				return true
			}
			select {
			case out <- data:
				return true
			case <-ctx.Done():
				return false
			}
		}

		if !emit() {
			return
		}

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if !emit() {
					return
				}

			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()

	return out, nil
}

var (
	_ Backend = (*FileBackend)(nil)
	_ Watcher = (*FileBackend)(nil)
)

// FileStoreConfig describes a file-backed store.
type FileStoreConfig struct {
	// Path is the document file. The codec follows its extension.
	Path string `validate:"required"`
	// Format forces "json" or "yaml" regardless of the extension.
	Format string `validate:"omitempty,oneof=json yaml"`
	// Debounce overrides DefaultDebounce for autosave and reload.
	Debounce time.Duration `validate:"min=0"`
}

// NewFileStore creates a DocumentStore over a FileBackend.
func NewFileStore(cfg FileStoreConfig, opts ...StoreOption) (*DocumentStore, error) {
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{Op: "bind.NewFileStore", Name: cfg.Path, Err: err}
	}

	codec := CodecFor(cfg.Path)
	switch cfg.Format {
	case "json":
		codec = JSONCodec{}
	case "yaml":
		codec = YAMLCodec{}
	}

	base := []StoreOption{WithCodec(codec)}
	if cfg.Debounce > 0 {
		base = append(base, WithDebounce(cfg.Debounce))
	}
	return NewStore(NewFileBackend(cfg.Path), append(base, opts...)...), nil
}

// DefaultStorePath returns "<program>.store.json" in the working directory,
// named after the running executable.
func DefaultStorePath() string {
	name := filepath.Base(os.Args[0])
	name = strings.TrimSuffix(name, filepath.Ext(name))
	return name + ".store.json"
}
