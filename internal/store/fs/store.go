// Package fs implements store.Store over a local build directory.
package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"mime"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/zjrosen/layerforge/internal/log"
	"github.com/zjrosen/layerforge/internal/store"
)

const tmpPrefix = ".tmp-"

// Store maps keys to files under root.
type Store struct {
	root string
}

var _ store.Store = (*Store)(nil)

// New returns a store rooted at root, creating the directory if needed.
func New(root string) (*Store, error) {
	if root == "" {
		root = "build"
	}
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, fmt.Errorf("create build directory: %w", err)
	}
	return &Store{root: root}, nil
}

// Root returns the directory backing the store.
func (s *Store) Root() string { return s.root }

func (s *Store) Driver() store.Driver { return store.DriverFilesystem }

// sanitizeKey rejects keys that would escape root.
func sanitizeKey(key string) (string, error) {
	if strings.TrimSpace(key) == "" {
		return "", errors.New("empty key")
	}
	if strings.HasPrefix(key, "/") {
		return "", fmt.Errorf("invalid absolute key %q", key)
	}
	clean := filepath.ToSlash(filepath.Clean(key))
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key traversal %q", key)
	}
	return clean, nil
}

func (s *Store) pathFor(key string) (string, error) {
	k, err := sanitizeKey(key)
	if err != nil {
		return "", err
	}
	return filepath.Join(s.root, filepath.FromSlash(k)), nil
}

// Put writes r to key through a temp file renamed into place.
func (s *Store) Put(_ context.Context, key string, r io.Reader, opts store.PutOptions) (store.Info, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return store.Info{}, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return store.Info{}, err
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), tmpPrefix+"*")
	if err != nil {
		return store.Info{}, err
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	size, err := io.Copy(tmp, r)
	if err != nil {
		_ = tmp.Close()
		return store.Info{}, err
	}
	if err := tmp.Close(); err != nil {
		return store.Info{}, err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return store.Info{}, err
	}

	fi, err := os.Stat(path)
	if err != nil {
		return store.Info{}, err
	}
	log.Debug(log.CatStore, "Wrote object", "key", key, "size", size)
	return store.Info{Key: key, Size: size, ContentType: opts.ContentType, LastModified: fi.ModTime().UTC()}, nil
}

func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path) //nolint:gosec // G304: path is sanitized above
	if errors.Is(err, iofs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, key)
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

func (s *Store) List(_ context.Context, prefix string) ([]store.Info, error) {
	var infos []store.Info
	err := filepath.WalkDir(s.root, func(path string, d iofs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), tmpPrefix) {
			return nil
		}
		rel, err := filepath.Rel(s.root, path)
		if err != nil {
			return err
		}
		key := filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(key, prefix) {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		infos = append(infos, store.Info{
			Key:          key,
			Size:         fi.Size(),
			ContentType:  mime.TypeByExtension(filepath.Ext(key)),
			LastModified: fi.ModTime().UTC(),
		})
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	path, err := s.pathFor(key)
	if err != nil {
		return false, err
	}
	if err := os.Remove(path); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Reset removes the build directory and recreates it empty.
func (s *Store) Reset(_ context.Context) error {
	if err := os.RemoveAll(s.root); err != nil {
		return fmt.Errorf("remove build directory: %w", err)
	}
	log.Debug(log.CatStore, "Reset build directory", "root", s.root)
	return os.MkdirAll(s.root, 0o750)
}
