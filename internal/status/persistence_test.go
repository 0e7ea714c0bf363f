package status

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTargetName = "mailing-list"

func TestFileStatusPersistence_SaveAndLoad(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	persistence := NewFileStatusPersistence(tmpDir)

	now := time.Now().UTC().Truncate(time.Second)
	saved := &SyncStatus{
		Phase:             SyncPhaseComplete,
		Message:           "Run completed",
		RunID:             "run-1",
		LastAttempt:       &now,
		AttemptCount:      0,
		LastSyncTime:      &now,
		Candidates:        7,
		Created:           2,
		Updated:           3,
		Skipped:           2,
		WriteBackFailures: 1,
		SyncSchedule:      "10m",
	}

	ctx := context.Background()
	require.NoError(t, persistence.SaveStatus(ctx, testTargetName, saved))

	_, err := os.Stat(filepath.Join(tmpDir, testTargetName, StatusFileName))
	require.NoError(t, err)

	loaded, err := persistence.LoadStatus(ctx, testTargetName)
	require.NoError(t, err)
	require.NotNil(t, loaded.LastSyncTime)
	assert.True(t, now.Equal(*loaded.LastSyncTime))
	loaded.LastSyncTime = saved.LastSyncTime
	loaded.LastAttempt = saved.LastAttempt
	assert.Equal(t, saved, loaded)
}

func TestFileStatusPersistence_LoadNonExistent(t *testing.T) {
	t.Parallel()

	persistence := NewFileStatusPersistence(t.TempDir())

	loaded, err := persistence.LoadStatus(context.Background(), testTargetName)
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, SyncPhase(""), loaded.Phase)
	assert.Nil(t, loaded.LastSyncTime)
}

func TestFileStatusPersistence_Overwrite(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	persistence := NewFileStatusPersistence(tmpDir)
	ctx := context.Background()

	require.NoError(t, persistence.SaveStatus(ctx, testTargetName, &SyncStatus{Phase: SyncPhaseSyncing}))
	require.NoError(t, persistence.SaveStatus(ctx, testTargetName, &SyncStatus{Phase: SyncPhaseFailed, Message: "boom", AttemptCount: 2}))

	loaded, err := persistence.LoadStatus(ctx, testTargetName)
	require.NoError(t, err)
	assert.Equal(t, SyncPhaseFailed, loaded.Phase)
	assert.Equal(t, "boom", loaded.Message)
	assert.Equal(t, 2, loaded.AttemptCount)

	_, err = os.Stat(filepath.Join(tmpDir, testTargetName, StatusFileName+".tmp"))
	assert.True(t, os.IsNotExist(err), "temporary file should be renamed away")
}

func TestFileStatusPersistence_CorruptFile(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, testTargetName)
	require.NoError(t, os.MkdirAll(dir, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, StatusFileName), []byte("{not json"), 0600))

	_, err := NewFileStatusPersistence(tmpDir).LoadStatus(context.Background(), testTargetName)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal status")
}
