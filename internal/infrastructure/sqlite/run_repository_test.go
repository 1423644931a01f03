package sqlite

import (
	"context"
	"errors"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zjrosen/layerforge/internal/ledger"
)

func setupRepo(t *testing.T) ledger.Repository {
	t.Helper()
	db, err := NewDB(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db.Ledger()
}

func newRun(id string, started time.Time) *ledger.Run {
	return &ledger.Run{
		ID:         id,
		Collection: "Your Collection",
		Network:    "eth",
		Seed:       42,
		Target:     5,
		Status:     ledger.RunStatusRunning,
		StartedAt:  started,
	}
}

var t0 = time.UnixMilli(1_700_000_000_000)

func TestRunRepository_CreateAndFind(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	run := newRun("run-1", t0)
	run.Seed = math.MaxUint64
	require.NoError(t, repo.CreateRun(ctx, run))

	got, err := repo.FindRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, "Your Collection", got.Collection)
	require.Equal(t, uint64(math.MaxUint64), got.Seed)
	require.Equal(t, ledger.RunStatusRunning, got.Status)
	require.True(t, got.StartedAt.Equal(t0))
	require.Nil(t, got.CompletedAt)
	require.Empty(t, got.Error)
}

func TestRunRepository_CreateRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	require.Error(t, repo.CreateRun(ctx, newRun("", t0)))

	bad := newRun("run-1", t0)
	bad.Status = "paused"
	require.Error(t, repo.CreateRun(ctx, bad))

	require.NoError(t, repo.CreateRun(ctx, newRun("run-1", t0)))
	require.Error(t, repo.CreateRun(ctx, newRun("run-1", t0)), "duplicate id")
}

func TestRunRepository_FindRun_NotFound(t *testing.T) {
	_, err := setupRepo(t).FindRun(context.Background(), "missing")

	var nf *ledger.RunNotFoundError
	require.True(t, errors.As(err, &nf))
	require.Equal(t, "missing", nf.ID)
}

func TestRunRepository_FinishRun(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	require.NoError(t, repo.CreateRun(ctx, newRun("run-1", t0)))

	done := t0.Add(3 * time.Second)
	require.NoError(t, repo.FinishRun(ctx, "run-1", ledger.RunStatusAborted, 4, 60, errors.New("too many duplicates"), done))

	got, err := repo.FindRun(ctx, "run-1")
	require.NoError(t, err)
	require.Equal(t, ledger.RunStatusAborted, got.Status)
	require.Equal(t, 4, got.Editions)
	require.Equal(t, 60, got.Duplicates)
	require.Equal(t, "too many duplicates", got.Error)
	require.NotNil(t, got.CompletedAt)
	require.True(t, got.CompletedAt.Equal(done))
}

func TestRunRepository_FinishRun_Errors(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	err := repo.FinishRun(ctx, "missing", ledger.RunStatusCompleted, 0, 0, nil, t0)
	var nf *ledger.RunNotFoundError
	require.True(t, errors.As(err, &nf))

	require.NoError(t, repo.CreateRun(ctx, newRun("run-1", t0)))
	require.Error(t, repo.FinishRun(ctx, "run-1", "bogus", 0, 0, nil, t0))
}

func TestRunRepository_Editions(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)
	require.NoError(t, repo.CreateRun(ctx, newRun("run-1", t0)))
	require.NoError(t, repo.CreateRun(ctx, newRun("run-2", t0)))

	for i, ed := range []int{3, 0, 2} {
		require.NoError(t, repo.RecordEdition(ctx, &ledger.Edition{
			RunID:         "run-1",
			Edition:       ed,
			Configuration: 0,
			DNA:           "0:a.png-1:b.png",
			Hash:          "hash",
			CreatedAt:     t0.Add(time.Duration(i) * time.Millisecond),
		}))
	}
	require.NoError(t, repo.RecordEdition(ctx, &ledger.Edition{RunID: "run-2", Edition: 0, DNA: "x", Hash: "y", CreatedAt: t0}))

	got, err := repo.ListEditions(ctx, "run-1")
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, []int{3, 0, 2}, []int{got[0].Edition, got[1].Edition, got[2].Edition})
	require.Equal(t, "0:a.png-1:b.png", got[0].DNA)

	err = repo.RecordEdition(ctx, &ledger.Edition{RunID: "run-1", Edition: 3, DNA: "z", Hash: "z", CreatedAt: t0})
	require.Error(t, err, "edition numbers are unique per run")

	none, err := repo.ListEditions(ctx, "missing")
	require.NoError(t, err)
	require.Empty(t, none)
}

func TestRunRepository_RecordEdition_UnknownRun(t *testing.T) {
	err := setupRepo(t).RecordEdition(context.Background(), &ledger.Edition{RunID: "missing", DNA: "x", Hash: "y", CreatedAt: t0})

	var nf *ledger.RunNotFoundError
	require.True(t, errors.As(err, &nf))
}

func TestRunRepository_ListRuns(t *testing.T) {
	ctx := context.Background()
	repo := setupRepo(t)

	for i, id := range []string{"a", "b", "c", "d"} {
		require.NoError(t, repo.CreateRun(ctx, newRun(id, t0.Add(time.Duration(i)*time.Minute))))
	}
	require.NoError(t, repo.FinishRun(ctx, "a", ledger.RunStatusCompleted, 5, 0, nil, t0))
	require.NoError(t, repo.FinishRun(ctx, "c", ledger.RunStatusCompleted, 5, 0, nil, t0))

	all, err := repo.ListRuns(ctx, ledger.ListFilter{})
	require.NoError(t, err)
	require.Equal(t, []string{"d", "c", "b", "a"}, runIDs(all))

	completed, err := repo.ListRuns(ctx, ledger.ListFilter{Status: ledger.RunStatusCompleted})
	require.NoError(t, err)
	require.Equal(t, []string{"c", "a"}, runIDs(completed))

	limited, err := repo.ListRuns(ctx, ledger.ListFilter{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, []string{"d", "c"}, runIDs(limited))
}

func runIDs(runs []*ledger.Run) []string {
	ids := make([]string, len(runs))
	for i, r := range runs {
		ids[i] = r.ID
	}
	return ids
}
