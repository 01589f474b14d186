package jobs

import (
	"context"
	"encoding/json"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hibiken/asynq"
)

// defaultSweepAge is how old a temp file must be before removal. Uploads in
// flight hold their temp file for seconds, not hours.
const defaultSweepAge = time.Hour

// HandleStorageSweepTask processes TaskStorageSweep tasks: it walks the
// storage root and removes *.tmp files left behind by cancelled uploads.
// Finished uploads are renamed away from the temp name atomically, so
// anything still matching after the age cutoff is garbage.
func HandleStorageSweepTask(ctx context.Context, t *asynq.Task) error {
	var payload StorageSweepPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Root == "" {
		return asynq.SkipRetry
	}
	olderThan := payload.OlderThan
	if olderThan <= 0 {
		olderThan = defaultSweepAge
	}

	removed, err := SweepTempFiles(ctx, payload.Root, olderThan)
	if err != nil {
		return err
	}
	if removed > 0 {
		slog.Info("storage sweep", slog.String("root", payload.Root), slog.Int("removed", removed))
	}
	return nil
}

// SweepTempFiles removes temp files older than the cutoff and reports how
// many were deleted.
func SweepTempFiles(ctx context.Context, root string, olderThan time.Duration) (int, error) {
	cutoff := time.Now().Add(-olderThan)
	removed := 0

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if d.IsDir() || !strings.HasSuffix(d.Name(), ".tmp") {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return nil
		}
		if info.ModTime().After(cutoff) {
			return nil
		}
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			slog.Warn("storage sweep remove", slog.String("path", path), slog.Any("error", err))
			return nil
		}
		removed++
		return nil
	})
	if err != nil {
		return removed, err
	}
	return removed, nil
}
