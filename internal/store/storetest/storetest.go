// Package storetest holds the behaviour every store.Store implementation must
// share.
package storetest

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/layerforge/internal/store"
)

// Run exercises s. The store must start empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()

	info, err := s.Put(ctx, "json/0.json", bytes.NewReader([]byte(`{"edition":0}`)), store.PutOptions{ContentType: "application/json"})
	require.NoError(t, err)
	require.Equal(t, "json/0.json", info.Key)
	require.Equal(t, int64(13), info.Size)

	// Put replaces.
	_, err = s.Put(ctx, "json/0.json", bytes.NewReader([]byte(`{"edition":1}`)), store.PutOptions{})
	require.NoError(t, err)
	require.Equal(t, `{"edition":1}`, read(t, s, "json/0.json"))

	png := []byte("\x89PNG\r\n\x1a\n\r\n0\r\n")
	_, err = s.Put(ctx, "images/0.png", bytes.NewReader(png), store.PutOptions{ContentType: "image/png"})
	require.NoError(t, err)
	require.Equal(t, string(png), read(t, s, "images/0.png"))

	list, err := s.List(ctx, "json/")
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "json/0.json", list[0].Key)

	all, err := s.List(ctx, "")
	require.NoError(t, err)
	require.Equal(t, []string{"images/0.png", "json/0.json"}, keys(all))

	_, err = s.Get(ctx, "json/missing.json")
	require.ErrorIs(t, err, store.ErrNotFound)

	ok, err := s.Delete(ctx, "images/0.png")
	require.NoError(t, err)
	require.True(t, ok)

	require.NoError(t, s.Reset(ctx))
	all, err = s.List(ctx, "")
	require.NoError(t, err)
	require.Empty(t, all)
}

func read(t *testing.T, s store.Store, key string) string {
	t.Helper()
	rc, err := s.Get(context.Background(), key)
	require.NoError(t, err)
	defer func() { _ = rc.Close() }()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func keys(infos []store.Info) []string {
	out := make([]string, 0, len(infos))
	for _, i := range infos {
		out = append(out, i.Key)
	}
	return out
}
