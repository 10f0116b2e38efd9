// Package preflight checks that iiifstore can run with a configuration:
// the data directory is writable with enough free space, the file
// descriptor limit is high enough, and the database and text index open.
//
//	checker := preflight.New()
//	results := checker.RunAll(ctx, cfg)
//	if checker.HasCriticalFailures(results) {
//	    // Handle failures
//	}
package preflight
