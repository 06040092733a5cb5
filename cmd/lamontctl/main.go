package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/lamontai/lamontai/internal/config"
	"github.com/lamontai/lamontai/internal/database"
	"github.com/lamontai/lamontai/pkg/logger"
)

const usage = `lamontctl - operations helper

Usage:
  lamontctl backup             create a database backup now
  lamontctl restore <file>     restore the database from a backup file
  lamontctl backups            list available backup files
  lamontctl health [base-url]  probe a running instance
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using environment variables")
	}
	zapLogger, err := logger.NewLogger("info")
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer zapLogger.Sync()

	cfg, err := config.LoadConfig()
	if err != nil {
		zapLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	switch os.Args[1] {
	case "backup":
		mgr := backupManager(cfg, zapLogger)
		path, err := mgr.CreateBackup(ctx)
		if err != nil {
			zapLogger.Fatal("Backup failed", zap.Error(err))
		}
		fmt.Println(path)
	case "restore":
		if len(os.Args) < 3 {
			fmt.Fprint(os.Stderr, usage)
			os.Exit(2)
		}
		mgr := backupManager(cfg, zapLogger)
		if err := mgr.Restore(ctx, os.Args[2]); err != nil {
			zapLogger.Fatal("Restore failed", zap.Error(err))
		}
		fmt.Println("restored")
	case "backups":
		mgr := backupManager(cfg, zapLogger)
		files, err := mgr.ListBackups()
		if err != nil {
			zapLogger.Fatal("Listing backups failed", zap.Error(err))
		}
		for _, f := range files {
			fmt.Println(f)
		}
	case "health":
		base := fmt.Sprintf("http://localhost:%d", cfg.Server.Port)
		if len(os.Args) > 2 {
			base = os.Args[2]
		}
		if err := probe(ctx, base); err != nil {
			zapLogger.Fatal("Health probe failed", zap.Error(err))
		}
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
}

func backupManager(cfg *config.Config, zapLogger *zap.Logger) *database.BackupManager {
	return database.NewBackupManager(cfg.Database.DSN, zapLogger, database.BackupConfig{
		Dir:       cfg.Backup.Dir,
		Interval:  cfg.Backup.Interval,
		Retention: cfg.Backup.Retention,
	})
}

func probe(ctx context.Context, base string) error {
	for _, path := range []string{"/api/v1/health", "/api/v1/ready"} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, base+path, nil)
		if err != nil {
			return err
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return err
		}
		var body map[string]interface{}
		err = json.NewDecoder(resp.Body).Decode(&body)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		out, _ := json.Marshal(body)
		fmt.Printf("%s %d %s\n", path, resp.StatusCode, out)
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("%s returned %d", path, resp.StatusCode)
		}
	}
	return nil
}
