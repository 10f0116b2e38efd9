package preflight

import (
	"golang.org/x/sys/unix"

	"github.com/Aman-CERP/iiifstore/internal/store"
)

// MinDiskSpaceBytes is the free space below which the data directory check
// fails.
const MinDiskSpaceBytes = 100 * 1024 * 1024

// CheckDiskSpace checks the free space of the file system holding path.
func (c *Checker) CheckDiskSpace(path string) CheckResult {
	result := CheckResult{Name: "disk_space", Required: true}

	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return result.set(StatusFail, "statfs: %v", err)
	}
	return diskSpaceResult(result, int64(stat.Bavail)*int64(stat.Bsize))
}

func diskSpaceResult(result CheckResult, available int64) CheckResult {
	status := StatusPass
	if available < MinDiskSpaceBytes {
		status = StatusFail
		result.Details = "The database and the text index grow with every ingested manifest"
	}
	return result.set(status, "%s free (minimum: %s)", store.FormatBytes(available), store.FormatBytes(MinDiskSpaceBytes))
}
