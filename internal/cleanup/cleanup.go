package cleanup

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/italolelis/bilidown/internal/logctx"
)

// TempDirPrefix is the name prefix of per-run temp directories.
const TempDirPrefix = "bilidown-"

// SweepStaleTempDirs removes run temp directories under root in which nothing, the directory
// itself included, was modified within maxAge. Those are left behind by runs that were killed
// before their deferred cleanup; live runs keep theirs fresh with KeepFresh.
// It returns the number of directories removed. A non-positive maxAge disables the sweep.
func SweepStaleTempDirs(ctx context.Context, root string, maxAge time.Duration) (int, error) {
	if maxAge <= 0 {
		return 0, nil
	}

	if root == "" {
		root = os.TempDir()
	}

	logger := logctx.LoggerFromContext(ctx)

	entries, err := os.ReadDir(root)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}

		return 0, err
	}

	now := time.Now()
	removed := 0

	for _, entry := range entries {
		if ctx.Err() != nil {
			return removed, ctx.Err()
		}

		if !entry.IsDir() || !strings.HasPrefix(entry.Name(), TempDirPrefix) {
			continue
		}

		dir := filepath.Join(root, entry.Name())

		modified, err := newestModTime(dir)
		if err != nil {
			logger.Warn("failed to stat temp directory", "dir", dir, "err", err)

			continue
		}

		if modified.IsZero() || now.Sub(modified) <= maxAge {
			continue
		}

		if err := os.RemoveAll(dir); err != nil {
			logger.Error("failed to delete stale temp directory", "dir", dir, "err", err)

			return removed, err
		}

		removed++

		logger.Info("deleted stale temp directory", "dir", dir, "last_modified", modified)
	}

	return removed, nil
}

// newestModTime returns the latest modification time of dir and everything below it.
// Entries that vanish during the walk are ignored.
func newestModTime(dir string) (time.Time, error) {
	var newest time.Time

	err := filepath.WalkDir(dir, func(_ string, d fs.DirEntry, err error) error {
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		info, err := d.Info()
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil
			}

			return err
		}

		if info.ModTime().After(newest) {
			newest = info.ModTime()
		}

		return nil
	})

	return newest, err
}

// KeepFresh bumps the modification time of dir every interval until ctx is done or the
// returned stop function is called. stop waits for the background goroutine to exit.
func KeepFresh(ctx context.Context, dir string, interval time.Duration) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)

		logger := logctx.LoggerFromContext(ctx)

		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				now := time.Now()
				if err := os.Chtimes(dir, now, now); err != nil {
					logger.Debug("failed to refresh temp directory", "dir", dir, "err", err)
				}
			}
		}
	}()

	return func() {
		cancel()
		<-done
	}
}
