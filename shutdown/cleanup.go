package shutdown

import (
	"context"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"ghibli_backend/core"
	"ghibli_backend/logging"
)

// TempFilePattern matches the scratch PNGs written for remote image edits.
const TempFilePattern = "ghibli-*.png"

// CleanupTempFiles returns a ShutdownFunc that removes files matching
// pattern in dir. Failures are logged and never block shutdown.
//
//	manager.Register("temp-files", PriorityTempFiles,
//	    shutdown.CleanupTempFiles(logger, os.TempDir(), shutdown.TempFilePattern))
func CleanupTempFiles(logger *logging.Logger, dir, pattern string) core.ShutdownFunc {
	return func(ctx context.Context) error {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			logger.Warn("Invalid temp file pattern", zap.String("pattern", pattern), zap.Error(err))
			return nil
		}
		if len(matches) == 0 {
			return nil
		}

		var removed, failed int
		for _, path := range matches {
			if ctx.Err() != nil {
				logger.Warn("Shutdown deadline reached during temp file cleanup",
					zap.Int("removed", removed),
					zap.Int("remaining", len(matches)-removed-failed),
				)
				return nil
			}
			if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
				failed++
				logger.Warn("Failed to remove temp file", zap.String("file", filepath.Base(path)), zap.Error(err))
				continue
			}
			removed++
		}

		logger.Info("Temp file cleanup complete",
			zap.Int("removed", removed),
			zap.Int("failed", failed),
		)
		return nil
	}
}
