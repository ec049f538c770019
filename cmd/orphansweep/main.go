// orphansweep reclaims draft attachments that no post references. It is
// the safety net behind the live session tracker: files leaked through
// server crashes, failed deletes or reaped sessions are picked up here.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/emberfeed/backend/internal/database"
	"github.com/emberfeed/backend/internal/logger"
	"github.com/emberfeed/backend/internal/models"
	"github.com/emberfeed/backend/internal/storage"
)

var (
	prefix    string
	olderThan time.Duration
	dryRun    bool
)

var rootCmd = &cobra.Command{
	Use:   "orphansweep",
	Short: "Delete draft attachments no post references",
	Long: `orphansweep lists stored draft attachments, subtracts every key
referenced by a post, and deletes the rest. Only objects older than the
--older-than floor are touched, so in-flight compositions are never swept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return sweep(cmd.Context())
	},
}

func init() {
	rootCmd.Flags().StringVar(&prefix, "prefix", storage.DraftPrefix, "Object key prefix to scan")
	rootCmd.Flags().DurationVar(&olderThan, "older-than", 24*time.Hour, "Only delete objects older than this")
	rootCmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report what would be deleted without deleting")
}

func main() {
	_ = godotenv.Load()
	if err := logger.Initialize(os.Getenv("LOG_LEVEL"), ""); err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialize logging: %v\n", err)
		os.Exit(1)
	}
	defer logger.Close()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func sweep(ctx context.Context) error {
	if err := database.Initialize(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	defer database.Close()

	store, err := storage.NewS3Store(
		getEnv("AWS_REGION", "us-east-1"),
		os.Getenv("AWS_BUCKET"),
		os.Getenv("CDN_BASE_URL"),
	)
	if err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	referenced, err := referencedKeys()
	if err != nil {
		return err
	}
	logger.Log.Info("Loaded referenced attachment keys", zap.Int("count", len(referenced)))

	objects, err := store.ListPrefix(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list objects: %w", err)
	}

	floor := time.Now().Add(-olderThan)
	var deleted, kept, failed int
	for _, obj := range objects {
		if referenced[obj.Key] || obj.LastModified.After(floor) {
			kept++
			continue
		}

		if dryRun {
			fmt.Printf("would delete %s (age %s, %d bytes)\n",
				obj.Key, time.Since(obj.LastModified).Round(time.Minute), obj.Size)
			deleted++
			continue
		}

		if err := store.DeleteFile(ctx, obj.Key); err != nil {
			logger.Log.Warn("Failed to delete orphan", logger.WithFileID(obj.Key), zap.Error(err))
			failed++
			continue
		}
		logger.Log.Info("Deleted orphan attachment",
			logger.WithFileID(obj.Key),
			zap.Int64("size", obj.Size),
		)
		deleted++
	}

	logger.Log.Info("Orphan sweep finished",
		zap.Int("scanned", len(objects)),
		zap.Int("deleted", deleted),
		zap.Int("kept", kept),
		zap.Int("failed", failed),
		zap.Bool("dry_run", dryRun),
	)
	return nil
}

// referencedKeys collects every attachment key any post references,
// including soft-deleted posts whose attachments may still be restorable.
func referencedKeys() (map[string]bool, error) {
	var posts []models.Post
	if err := database.DB.Unscoped().Select("attachment_keys").Find(&posts).Error; err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}

	keys := make(map[string]bool)
	for _, post := range posts {
		for _, key := range post.AttachmentKeys {
			keys[key] = true
		}
	}
	return keys, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
