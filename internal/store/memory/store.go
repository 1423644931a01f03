// Package memory implements an in-process store.Store used for dry runs and
// tests.
package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/zjrosen/layerforge/internal/store"
)

type entry struct {
	info store.Info
	data []byte
}

// Store keeps objects in a map.
type Store struct {
	mu   sync.RWMutex
	objs map[string]entry
}

var _ store.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store { return &Store{objs: make(map[string]entry)} }

func (s *Store) Driver() store.Driver { return store.DriverMemory }

func (s *Store) Put(_ context.Context, key string, r io.Reader, opts store.PutOptions) (store.Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return store.Info{}, err
	}
	info := store.Info{Key: key, Size: int64(len(data)), ContentType: opts.ContentType, LastModified: time.Now().UTC()}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.objs[key] = entry{info: info, data: data}
	return info, nil
}

func (s *Store) Get(_ context.Context, key string) (io.ReadCloser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.objs[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", store.ErrNotFound, key)
	}
	return io.NopCloser(bytes.NewReader(e.data)), nil
}

func (s *Store) List(_ context.Context, prefix string) ([]store.Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var infos []store.Info
	for k, e := range s.objs {
		if prefix == "" || strings.HasPrefix(k, prefix) {
			infos = append(infos, e.info)
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Key < infos[j].Key })
	return infos, nil
}

func (s *Store) Delete(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objs[key]; !ok {
		return false, nil
	}
	delete(s.objs, key)
	return true, nil
}

func (s *Store) Reset(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objs = make(map[string]entry)
	return nil
}
