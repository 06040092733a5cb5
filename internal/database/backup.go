// Backup and restore utilities built on pg_dump/pg_restore
package database

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
)

// BackupConfig contains backup manager configuration
type BackupConfig struct {
	Dir       string        `json:"dir"`
	Interval  time.Duration `json:"interval"`
	Retention int           `json:"retention"` // number of backup files to keep
}

// BackupManager handles scheduled database backup and restore operations
type BackupManager struct {
	dsn    string
	logger *zap.Logger
	config BackupConfig
}

// NewBackupManager creates a new backup manager
func NewBackupManager(dsn string, logger *zap.Logger, config BackupConfig) *BackupManager {
	if config.Dir == "" {
		config.Dir = "./backups"
	}
	if config.Interval == 0 {
		config.Interval = 24 * time.Hour
	}
	if config.Retention == 0 {
		config.Retention = 7
	}
	return &BackupManager{
		dsn:    dsn,
		logger: logger.Named("backup"),
		config: config,
	}
}

// CreateBackup dumps the database to a timestamped file and prunes old backups
func (bm *BackupManager) CreateBackup(ctx context.Context) (string, error) {
	if err := os.MkdirAll(bm.config.Dir, 0o750); err != nil {
		return "", fmt.Errorf("failed to create backup dir: %w", err)
	}

	name := fmt.Sprintf("lamontai-%s.dump", time.Now().UTC().Format("20060102T150405Z"))
	path := filepath.Join(bm.config.Dir, name)

	cmd := exec.CommandContext(ctx, "pg_dump", "--format=custom", "--file", path, bm.dsn)
	out, err := cmd.CombinedOutput()
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("pg_dump failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	bm.logger.Info("Backup created", zap.String("path", path))

	if err := bm.prune(); err != nil {
		bm.logger.Warn("Backup retention pruning failed", zap.Error(err))
	}
	return path, nil
}

// Restore loads a backup file into the database, replacing existing objects
func (bm *BackupManager) Restore(ctx context.Context, path string) error {
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("backup file not readable: %w", err)
	}

	cmd := exec.CommandContext(ctx, "pg_restore", "--clean", "--if-exists", "--dbname", bm.dsn, path)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("pg_restore failed: %w: %s", err, strings.TrimSpace(string(out)))
	}

	bm.logger.Info("Backup restored", zap.String("path", path))
	return nil
}

// ListBackups returns backup file paths, newest first
func (bm *BackupManager) ListBackups() ([]string, error) {
	entries, err := os.ReadDir(bm.config.Dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read backup dir: %w", err)
	}

	var paths []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".dump") {
			continue
		}
		paths = append(paths, filepath.Join(bm.config.Dir, e.Name()))
	}
	// Timestamped names sort chronologically
	sort.Sort(sort.Reverse(sort.StringSlice(paths)))
	return paths, nil
}

// Run performs periodic backups until ctx is canceled
func (bm *BackupManager) Run(ctx context.Context) {
	ticker := time.NewTicker(bm.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := bm.CreateBackup(ctx); err != nil {
				bm.logger.Error("Scheduled backup failed", zap.Error(err))
			}
		}
	}
}

func (bm *BackupManager) prune() error {
	paths, err := bm.ListBackups()
	if err != nil {
		return err
	}
	if len(paths) <= bm.config.Retention {
		return nil
	}
	for _, p := range paths[bm.config.Retention:] {
		if err := os.Remove(p); err != nil {
			return fmt.Errorf("failed to remove old backup %s: %w", p, err)
		}
		bm.logger.Info("Pruned old backup", zap.String("path", p))
	}
	return nil
}
