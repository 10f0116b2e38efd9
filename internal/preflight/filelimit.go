package preflight

import (
	"golang.org/x/sys/unix"
)

// Open file limits. Below MinFileDescriptors the check fails; below
// RecommendedFileDescriptors it warns, since every watched directory and
// every bleve segment holds a descriptor.
const (
	MinFileDescriptors         = 1024
	RecommendedFileDescriptors = 4096
)

// CheckFileDescriptors checks the soft open file limit of this process.
func (c *Checker) CheckFileDescriptors() CheckResult {
	result := CheckResult{Name: "file_descriptors", Required: true}

	var lim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &lim); err != nil {
		return result.set(StatusFail, "getrlimit: %v", err)
	}
	return fileLimitResult(result, lim.Cur)
}

func fileLimitResult(result CheckResult, soft uint64) CheckResult {
	const raise = "Raise it with 'ulimit -n 10240' before 'iiifstore watch' or 'iiifstore serve'"
	switch {
	case soft < MinFileDescriptors:
		result.Details = raise
		return result.set(StatusFail, "soft limit %d is below %d", soft, MinFileDescriptors)
	case soft < RecommendedFileDescriptors:
		result.Details = raise
		return result.set(StatusWarn, "soft limit %d, %d recommended", soft, RecommendedFileDescriptors)
	default:
		return result.set(StatusPass, "soft limit %d", soft)
	}
}
