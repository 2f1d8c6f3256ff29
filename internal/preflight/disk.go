package preflight

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"github.com/dustin/go-humanize"

	"github.com/Aman-CERP/sessionrecall/internal/store"
)

// MinDiskSpaceBytes is the least free space accepted on the data dir's
// file system, whatever the index size.
const MinDiskSpaceBytes = 50 * 1024 * 1024

// A save writes the new index and embeddings beside the old ones before
// renaming them into place.
const saveHeadroom = 2

// RequiredDiskSpace returns the free space a save of the index in dataDir
// needs.
func RequiredDiskSpace(dataDir string) uint64 {
	var current uint64
	for _, name := range []string{store.IndexFileName, store.EmbeddingsFileName} {
		if info, err := os.Stat(filepath.Join(dataDir, name)); err == nil {
			current += uint64(info.Size())
		}
	}
	return max(uint64(MinDiskSpaceBytes), saveHeadroom*current)
}

// CheckDiskSpace checks that the file system holding dataDir can take
// another save of the index.
func (c *Checker) CheckDiskSpace(dataDir string) CheckResult {
	dir := existingParent(dataDir)
	result := CheckResult{
		Name:     "disk_space",
		Required: true,
		Details:  dir,
	}

	var stat syscall.Statfs_t
	if err := syscall.Statfs(dir, &stat); err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("failed to check disk space: %v", err)
		return result
	}
	free := stat.Bavail * uint64(stat.Bsize)
	need := RequiredDiskSpace(dataDir)

	result.Message = fmt.Sprintf("%s free, %s needed to save the index",
		humanize.IBytes(free), humanize.IBytes(need))
	if free < need {
		result.Status = StatusFail
		return result
	}
	result.Status = StatusPass
	return result
}
