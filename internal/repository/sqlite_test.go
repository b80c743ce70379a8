package repository

import (
	"context"
	"errors"
	"math/rand"
	"sort"
	"testing"
	"time"

	"github.com/jtoloui/motorway-takehome-backend/internal/models"
	"github.com/jtoloui/motorway-takehome-backend/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func newTestSQLiteStore(t *testing.T, logger *zap.Logger) *SQLiteStore {
	t.Helper()
	if logger == nil {
		logger = zap.NewNop()
	}
	store, err := NewSQLiteStore(context.Background(), SQLiteConfig{Path: ":memory:", QueryTimeout: 2 * time.Second}, logger, nil)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	return store
}

func seededStore(t *testing.T, logger *zap.Logger) *SQLiteStore {
	t.Helper()
	store := newTestSQLiteStore(t, logger)
	require.NoError(t, SeedDemo(context.Background(), store))
	return store
}

func resolve(t *testing.T, store Store, id int64, at time.Time) (*models.VehicleState, error) {
	t.Helper()
	return WithTransaction(context.Background(), store, func(ctx context.Context, tx Tx) (*models.VehicleState, error) {
		if _, err := tx.GetVehicleByID(ctx, id); err != nil {
			return nil, err
		}
		return tx.GetStateAtTime(ctx, id, at)
	})
}

func mustParse(t *testing.T, value string) time.Time {
	t.Helper()
	at, err := time.Parse(time.RFC3339Nano, value)
	require.NoError(t, err)
	return at
}

func TestSQLiteStore_GetStateAtTime(t *testing.T) {
	store := seededStore(t, nil)

	tests := []struct {
		name      string
		at        string
		wantState string
		wantTime  time.Time
	}{
		{
			name:      "after latest entry",
			at:        "2024-09-11T17:21:37+00:00",
			wantState: "sold",
			wantTime:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "between entries",
			at:        "2023-06-01T00:00:00Z",
			wantState: "selling",
			wantTime:  time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "exactly on an entry",
			at:        "2023-01-01T00:00:00Z",
			wantState: "selling",
			wantTime:  time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "one microsecond before an entry",
			at:        "2022-12-31T23:59:59.999999Z",
			wantState: "quoted",
			wantTime:  time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:      "offset is honoured",
			at:        "2023-01-01T01:00:00+02:00",
			wantState: "quoted",
			wantTime:  time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolve(t, store, 3, mustParse(t, tt.at))
			require.NoError(t, err)
			assert.Equal(t, int64(3), got.ID)
			assert.Equal(t, "VW", got.Make)
			assert.Equal(t, "GOLF", got.Model)
			assert.Equal(t, tt.wantState, got.State)
			assert.True(t, tt.wantTime.Equal(got.Timestamp), "got %s", got.Timestamp)
			assert.Equal(t, time.UTC, got.Timestamp.Location())
		})
	}
}

func TestSQLiteStore_StateNotFoundBeforeFirstEntry(t *testing.T) {
	store := seededStore(t, nil)

	_, err := resolve(t, store, 3, mustParse(t, "2020-09-11T17:21:37+00:00"))

	require.Error(t, err)
	assert.True(t, IsStateNotFound(err))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "no state recorded at or before this time", err.Error())
}

func TestSQLiteStore_VehicleNotFound(t *testing.T) {
	store := seededStore(t, nil)

	for _, at := range []string{"2020-01-01T00:00:00Z", "2024-09-11T17:21:37+00:00"} {
		_, err := resolve(t, store, 9999, mustParse(t, at))
		require.Error(t, err)
		assert.True(t, IsVehicleNotFound(err), "at %s", at)
	}
}

func TestSQLiteStore_OrphanedStateLogDoesNotMaskMissingVehicle(t *testing.T) {
	store := seededStore(t, nil)
	ctx := context.Background()
	require.NoError(t, store.AppendState(ctx, models.StateLogEntry{
		VehicleID: 4242,
		State:     "sold",
		Timestamp: time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC),
	}))

	_, err := resolve(t, store, 4242, mustParse(t, "2024-01-01T00:00:00Z"))

	assert.True(t, IsVehicleNotFound(err))
}

func TestSQLiteStore_NeverPrefersLaterEntry(t *testing.T) {
	store := newTestSQLiteStore(t, nil)
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))
	base := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)

	for id := int64(1); id <= 20; id++ {
		require.NoError(t, store.InsertVehicle(ctx, models.Vehicle{ID: id, Make: "MAKE", Model: "MODEL"}))

		var entries []models.StateLogEntry
		seen := map[int]bool{}
		n := 1 + rng.Intn(8)
		for i := 0; i < n; i++ {
			offset := rng.Intn(1000)
			if seen[offset] {
				continue
			}
			seen[offset] = true
			entry := models.StateLogEntry{
				VehicleID: id,
				State:     []string{"quoted", "selling", "sold"}[rng.Intn(3)],
				Timestamp: base.Add(time.Duration(offset) * time.Hour),
			}
			entries = append(entries, entry)
			require.NoError(t, store.AppendState(ctx, entry))
		}
		sort.Slice(entries, func(i, j int) bool { return entries[i].Timestamp.Before(entries[j].Timestamp) })

		for sample := 0; sample < 10; sample++ {
			at := base.Add(time.Duration(rng.Intn(1100)-50) * time.Hour)

			var want *models.StateLogEntry
			for i := range entries {
				if !entries[i].Timestamp.After(at) {
					want = &entries[i]
				}
			}

			got, err := resolve(t, store, id, at)
			if want == nil {
				assert.True(t, IsStateNotFound(err), "vehicle %d at %s", id, at)
				continue
			}
			require.NoError(t, err)
			assert.False(t, got.Timestamp.After(at), "resolved entry is after the query time")
			assert.True(t, want.Timestamp.Equal(got.Timestamp), "vehicle %d at %s", id, at)
			assert.Equal(t, want.State, got.State)
		}
	}
}

func TestSQLiteStore_RollbackReleasesConnection(t *testing.T) {
	logger, capture := testutil.NewCapturingLogger(zapcore.DebugLevel)
	store := seededStore(t, logger)
	ctx := context.Background()
	boom := errors.New("state query failed")

	err := store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		if _, err := tx.GetVehicleByID(ctx, 3); err != nil {
			return err
		}
		return boom
	})

	require.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Stats().InUse)
	assert.True(t, capture.Contains("Transaction begin"))
	assert.True(t, capture.Contains("Transaction rolled back"))
	assert.False(t, capture.Contains("Transaction committed"))

	// The single in-memory connection must be usable again.
	got, err := resolve(t, store, 3, mustParse(t, "2024-09-11T17:21:37+00:00"))
	require.NoError(t, err)
	assert.Equal(t, "sold", got.State)
	assert.Equal(t, 0, store.Stats().InUse)
}

func TestSQLiteStore_CommitLogsAndReturnsResult(t *testing.T) {
	logger, capture := testutil.NewCapturingLogger(zapcore.DebugLevel)
	store := seededStore(t, logger)

	got, err := resolve(t, store, 2, mustParse(t, "2022-09-11T18:00:00Z"))

	require.NoError(t, err)
	assert.Equal(t, "selling", got.State)
	assert.Equal(t, 1, capture.Count("Transaction committed"))
	assert.Equal(t, 0, capture.Count("Transaction rolled back"))
}

func TestSQLiteStore_CancelledContextIsTransient(t *testing.T) {
	store := seededStore(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := store.InTx(ctx, func(ctx context.Context, tx Tx) error {
		_, err := tx.GetVehicleByID(ctx, 3)
		return err
	})

	require.Error(t, err)
	var transient *TransientError
	assert.True(t, errors.As(err, &transient))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestSQLiteStore_AcquireTimeoutBoundsPoolWait(t *testing.T) {
	store, err := NewSQLiteStore(context.Background(), SQLiteConfig{
		Path:           ":memory:",
		AcquireTimeout: 50 * time.Millisecond,
		QueryTimeout:   2 * time.Second,
	}, zap.NewNop(), nil)
	require.NoError(t, err)
	t.Cleanup(store.Close)
	require.NoError(t, SeedDemo(context.Background(), store))

	// Hold the only in-memory connection.
	holding := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
			close(holding)
			<-release
			return nil
		})
	}()
	<-holding

	start := time.Now()
	err = store.InTx(context.Background(), func(ctx context.Context, tx Tx) error {
		t.Error("transaction must not start without a connection")
		return nil
	})

	require.Error(t, err)
	var transient *TransientError
	require.True(t, errors.As(err, &transient))
	assert.True(t, transient.Timeout)
	assert.Less(t, time.Since(start), time.Second)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 0, store.Stats().InUse)
}

func TestSeedDemo_IsIdempotent(t *testing.T) {
	store := seededStore(t, nil)

	require.NoError(t, SeedDemo(context.Background(), store))

	got, err := resolve(t, store, 3, mustParse(t, "2024-09-11T17:21:37+00:00"))
	require.NoError(t, err)
	assert.Equal(t, "sold", got.State)
}

func TestSplitStatements(t *testing.T) {
	statements := splitStatements(`
-- leading comment
CREATE TABLE a (id INT);

-- another
CREATE TABLE b (id INT);
`)

	assert.Equal(t, []string{"CREATE TABLE a (id INT)", "CREATE TABLE b (id INT)"}, statements)
}
