package metrics

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/zjrosen/layerforge/internal/ledger"
)

func TestRecorder_Counts(t *testing.T) {
	r := New()
	r.EditionCreated(0, 10*time.Millisecond)
	r.EditionCreated(0, 20*time.Millisecond)
	r.EditionCreated(1, 5*time.Millisecond)
	r.DuplicateDrawn(1)
	r.RunFinished(ledger.RunStatusAborted)

	require.Equal(t, 2.0, testutil.ToFloat64(r.editions.WithLabelValues("0")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.editions.WithLabelValues("1")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.duplicates.WithLabelValues("1")))
	require.Equal(t, 1.0, testutil.ToFloat64(r.runs.WithLabelValues("aborted")))
	require.Equal(t, 1, testutil.CollectAndCount(r.editionSeconds))
}

func TestRecorder_AssetCache(t *testing.T) {
	r := New()
	r.AssetCache(7, 3)
	r.AssetCache(9, 4)

	require.Equal(t, 9.0, testutil.ToFloat64(r.assetLoads.WithLabelValues("hit")))
	require.Equal(t, 4.0, testutil.ToFloat64(r.assetLoads.WithLabelValues("miss")))
}

func TestRecorder_WriteTextfile(t *testing.T) {
	r := New()
	r.EditionCreated(0, time.Millisecond)

	path := filepath.Join(t.TempDir(), "textfile", "layerforge.prom")
	require.NoError(t, r.WriteTextfile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `layerforge_editions_created_total{configuration="0"} 1`)
}
