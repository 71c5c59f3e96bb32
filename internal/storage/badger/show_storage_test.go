package badger

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/backlot/internal/common"
	"github.com/ternarybob/backlot/internal/models"
)

func newTestStorage(t *testing.T) *ShowStorage {
	t.Helper()

	logger := arbor.NewLogger()
	db, err := NewBadgerDB(logger, &common.BadgerConfig{
		Path: filepath.Join(t.TempDir(), "backlot-test"),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return NewShowStorage(db, logger)
}

func TestCreateAndGetSnapshot(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	snapshot := models.NewShowSnapshot("show_a", "Night Harbor")
	require.NoError(t, storage.CreateSnapshot(ctx, snapshot))

	got, err := storage.GetSnapshot(ctx, "show_a")
	require.NoError(t, err)
	assert.Equal(t, "show_a", got.ShowID)
	assert.Equal(t, "Night Harbor", got.Title)
	assert.NotNil(t, got.Portraits)
	assert.NotNil(t, got.Dossiers)
	assert.NotNil(t, got.Videos)
}

func TestCreateSnapshotRejectsDuplicates(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.CreateSnapshot(ctx, models.NewShowSnapshot("show_a", "First")))
	err := storage.CreateSnapshot(ctx, models.NewShowSnapshot("show_a", "Second"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestGetSnapshotNotFound(t *testing.T) {
	storage := newTestStorage(t)

	_, err := storage.GetSnapshot(context.Background(), "show_missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestListSnapshotsNewestFirst(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	older := models.NewShowSnapshot("show_old", "Older")
	older.CreatedAt = time.Now().Add(-time.Hour)
	require.NoError(t, storage.CreateSnapshot(ctx, older))
	require.NoError(t, storage.CreateSnapshot(ctx, models.NewShowSnapshot("show_new", "Newer")))

	snapshots, err := storage.ListSnapshots(ctx)
	require.NoError(t, err)
	require.Len(t, snapshots, 2)
	assert.Equal(t, "show_new", snapshots[0].ShowID)
	assert.Equal(t, "show_old", snapshots[1].ShowID)
}

func TestUpdateSnapshotAppliesMutation(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.CreateSnapshot(ctx, models.NewShowSnapshot("show_a", "Test")))

	err := storage.UpdateSnapshot(ctx, "show_a", func(s *models.ShowSnapshot) error {
		return s.ApplyArtifact(models.KindPortrait, models.TargetEntity{ShowID: "show_a", CharacterID: "char_1"}, "https://cdn.example.com/p.png")
	})
	require.NoError(t, err)

	got, err := storage.GetSnapshot(ctx, "show_a")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/p.png", got.Portraits["char_1"])
}

func TestUpdateSnapshotUnknownShow(t *testing.T) {
	storage := newTestStorage(t)

	err := storage.UpdateSnapshot(context.Background(), "show_missing", func(s *models.ShowSnapshot) error {
		return nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestUpdateSnapshotMutationErrorAbortsWrite(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.CreateSnapshot(ctx, models.NewShowSnapshot("show_a", "Test")))

	boom := errors.New("mutation rejected")
	err := storage.UpdateSnapshot(ctx, "show_a", func(s *models.ShowSnapshot) error {
		s.PosterURL = "should not persist"
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := storage.GetSnapshot(ctx, "show_a")
	require.NoError(t, err)
	assert.Empty(t, got.PosterURL)
}

// Concurrent writers touching different characters of the same show
// must not lose each other's map entries.
func TestUpdateSnapshotConcurrentCharacters(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	snapshot := models.NewShowSnapshot("show_a", "Test")
	require.NoError(t, storage.CreateSnapshot(ctx, snapshot))

	const writers = 8
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			characterID := fmt.Sprintf("char_%d", i)
			err := storage.UpdateSnapshot(ctx, "show_a", func(s *models.ShowSnapshot) error {
				return s.ApplyArtifact(models.KindPortrait, models.TargetEntity{ShowID: "show_a", CharacterID: characterID}, "locator_"+characterID)
			})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	got, err := storage.GetSnapshot(ctx, "show_a")
	require.NoError(t, err)
	require.Len(t, got.Portraits, writers)
	for i := 0; i < writers; i++ {
		characterID := fmt.Sprintf("char_%d", i)
		assert.Equal(t, "locator_"+characterID, got.Portraits[characterID])
	}
}

func TestUpdateSnapshotAppendsVideos(t *testing.T) {
	storage := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, storage.CreateSnapshot(ctx, models.NewShowSnapshot("show_a", "Test")))

	target := models.TargetEntity{ShowID: "show_a", CharacterID: "char_1"}
	for _, locator := range []string{"v1", "v2"} {
		err := storage.UpdateSnapshot(ctx, "show_a", func(s *models.ShowSnapshot) error {
			return s.ApplyArtifact(models.KindVideo, target, locator)
		})
		require.NoError(t, err)
	}

	got, err := storage.GetSnapshot(ctx, "show_a")
	require.NoError(t, err)
	assert.Equal(t, []string{"v1", "v2"}, got.Videos["char_1"])
}
