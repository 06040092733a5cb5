package database_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/lamontai/lamontai/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestListBackupsNewestFirst(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{
		"lamontai-20250101T000000Z.dump",
		"lamontai-20250301T000000Z.dump",
		"lamontai-20250201T000000Z.dump",
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o600))
	}

	bm := database.NewBackupManager("postgres://localhost/app", zap.NewNop(), database.BackupConfig{
		Dir:       dir,
		Interval:  time.Hour,
		Retention: 7,
	})

	paths, err := bm.ListBackups()
	require.NoError(t, err)
	require.Len(t, paths, 3)
	assert.Contains(t, paths[0], "20250301")
	assert.Contains(t, paths[2], "20250101")
}

func TestListBackupsMissingDir(t *testing.T) {
	bm := database.NewBackupManager("postgres://localhost/app", zap.NewNop(), database.BackupConfig{
		Dir: filepath.Join(t.TempDir(), "does-not-exist"),
	})
	paths, err := bm.ListBackups()
	require.NoError(t, err)
	assert.Empty(t, paths)
}
