// Package util provides utility functions for file operations.
package util

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// MinTempSpaceMB is the minimum free space required for temporary operations (in MB).
const MinTempSpaceMB = 100

// EnsureDirectoryWritable checks if a directory exists and is writable.
func EnsureDirectoryWritable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("directory does not exist: %s", path)
		}
		return fmt.Errorf("cannot access directory: %w", err)
	}

	if !info.IsDir() {
		return fmt.Errorf("path is not a directory: %s", path)
	}

	// Check if directory is writable by attempting to create a test file
	testPath := filepath.Join(path, ".ferris_swarm_write_test")
	f, err := os.Create(testPath)
	if err != nil {
		return fmt.Errorf("directory is not writable: %s", path)
	}
	_ = f.Close()
	_ = os.Remove(testPath)

	return nil
}

// GetAvailableSpace returns the available disk space in bytes for the given path.
// Returns 0 if the space cannot be determined.
func GetAvailableSpace(path string) uint64 {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0
	}
	return stat.Bavail * uint64(stat.Bsize)
}

// CheckDiskSpace checks if there is sufficient disk space and logs a warning if low.
// Returns true if space is sufficient or cannot be determined.
func CheckDiskSpace(path string, logger func(format string, args ...any)) bool {
	available := GetAvailableSpace(path)
	if available == 0 {
		return true // Cannot determine, assume OK
	}

	availableMB := available / (1024 * 1024)
	if availableMB < MinTempSpaceMB {
		if logger != nil {
			logger("Low disk space in %s: %d MB available (minimum recommended: %d MB)",
				path, availableMB, MinTempSpaceMB)
		}
		return false
	}
	return true
}

// CleanupStaleTempFiles removes files matching the prefix in dir that are
// older than maxAgeHours. Used by long-running node processes to recover
// scratch files orphaned by a crash mid-request, where the normal
// defer-based cleanup never ran (spec.md §4.4).
func CleanupStaleTempFiles(dir, prefix string, maxAgeHours uint64) (int, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return 0, nil
	}

	cleanedCount := 0
	maxAge := time.Duration(maxAgeHours) * time.Hour
	now := time.Now()

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // Skip files we can't access
		}

		// Only process files in the top level
		if d.IsDir() {
			if path != dir {
				return fs.SkipDir
			}
			return nil
		}

		filename := d.Name()
		if !strings.HasPrefix(filename, prefix) {
			return nil
		}

		info, err := d.Info()
		if err != nil {
			return nil
		}

		age := now.Sub(info.ModTime())
		if age > maxAge {
			if err := os.Remove(path); err == nil {
				cleanedCount++
			}
		}

		return nil
	})

	if err != nil {
		return cleanedCount, fmt.Errorf("failed to read temp directory for cleanup: %w", err)
	}

	return cleanedCount, nil
}
