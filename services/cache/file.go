package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/afero"
)

const fileExt = ".json"

var validFileKey = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// FileBackend stores one JSON document per key in a directory
type FileBackend struct {
	fs  afero.Fs
	dir string
}

// NewFileBackend creates the directory if needed and returns a backend rooted there
func NewFileBackend(fsys afero.Fs, dir string) (*FileBackend, error) {
	if fsys == nil {
		fsys = afero.NewOsFs()
	}
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &FileBackend{fs: fsys, dir: dir}, nil
}

// Name returns the backend name
func (b *FileBackend) Name() string {
	return "file"
}

func (b *FileBackend) path(key string) (string, error) {
	if !validFileKey.MatchString(key) {
		return "", fmt.Errorf("invalid cache key %q", key)
	}
	return filepath.Join(b.dir, key+fileExt), nil
}

// Load reads and decodes the entry file
func (b *FileBackend) Load(_ context.Context, key string) (*Entry, error) {
	p, err := b.path(key)
	if err != nil {
		return nil, err
	}

	raw, err := afero.ReadFile(b.fs, p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read cache file: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		return nil, fmt.Errorf("decode cache file %s: %w", p, err)
	}
	entry.Key = key
	return &entry, nil
}

// Save writes the entry to a temp file and renames it into place
func (b *FileBackend) Save(_ context.Context, entry *Entry) error {
	p, err := b.path(entry.Key)
	if err != nil {
		return err
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("encode cache entry: %w", err)
	}

	tmp, err := afero.TempFile(b.fs, b.dir, entry.Key+".tmp-")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(raw); err != nil {
		tmp.Close()
		_ = b.fs.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = b.fs.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := b.fs.Rename(tmpName, p); err != nil {
		_ = b.fs.Remove(tmpName)
		return fmt.Errorf("rename cache file: %w", err)
	}
	return nil
}

// Delete removes the entry file; a missing file is not an error
func (b *FileBackend) Delete(_ context.Context, key string) error {
	p, err := b.path(key)
	if err != nil {
		return err
	}
	if err := b.fs.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("remove cache file: %w", err)
	}
	return nil
}

// Clear removes every entry file in the directory
func (b *FileBackend) Clear(_ context.Context) error {
	infos, err := afero.ReadDir(b.fs, b.dir)
	if err != nil {
		return fmt.Errorf("list cache dir: %w", err)
	}
	for _, info := range infos {
		if info.IsDir() || !strings.HasSuffix(info.Name(), fileExt) {
			continue
		}
		if err := b.fs.Remove(filepath.Join(b.dir, info.Name())); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("remove cache file: %w", err)
		}
	}
	return nil
}
