package preflight

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Aman-CERP/iiifstore/internal/config"
)

// CheckStatus is the outcome of one check.
type CheckStatus int

// Check outcomes, from best to worst.
const (
	StatusPass CheckStatus = iota
	StatusWarn
	StatusFail
)

var statusNames = [...]string{"PASS", "WARN", "FAIL"}

func (s CheckStatus) String() string {
	if s < 0 || int(s) >= len(statusNames) {
		return "UNKNOWN"
	}
	return statusNames[s]
}

// MarshalText writes the status as PASS, WARN or FAIL.
func (s CheckStatus) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// CheckResult is what one check found.
type CheckResult struct {
	Name     string      `json:"name"`
	Status   CheckStatus `json:"status"`
	Message  string      `json:"message"`
	Details  string      `json:"details,omitempty"`
	Required bool        `json:"required"`
}

// IsCritical reports a failed required check.
func (r CheckResult) IsCritical() bool {
	return r.Required && r.Status == StatusFail
}

// set returns r with status and a formatted message.
func (r CheckResult) set(status CheckStatus, format string, args ...any) CheckResult {
	r.Status = status
	r.Message = fmt.Sprintf(format, args...)
	return r
}

// Checker runs the checks of the doctor command.
type Checker struct {
	verbose bool
	output  io.Writer
}

// Option configures a Checker.
type Option func(*Checker)

// WithVerbose prints the details of passing checks too.
func WithVerbose(verbose bool) Option {
	return func(c *Checker) { c.verbose = verbose }
}

// WithOutput sets where PrintResults writes. Defaults to stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Checker) { c.output = w }
}

// New returns a Checker.
func New(opts ...Option) *Checker {
	c := &Checker{output: os.Stdout}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// check is one entry of the RunAll table. Checks with onDisk set read the
// data directory and only run once it is writable.
type check struct {
	onDisk bool
	run    func(ctx context.Context, cfg *config.Config) CheckResult
}

func (c *Checker) checks() []check {
	return []check{
		{run: func(_ context.Context, cfg *config.Config) CheckResult { return c.CheckCanonicalHostname(cfg) }},
		{onDisk: true, run: func(_ context.Context, cfg *config.Config) CheckResult { return c.CheckDiskSpace(cfg.Paths.DataDir) }},
		{run: func(context.Context, *config.Config) CheckResult { return c.CheckFileDescriptors() }},
		{onDisk: true, run: c.CheckDatabase},
		{onDisk: true, run: func(_ context.Context, cfg *config.Config) CheckResult { return c.CheckTextIndex(cfg) }},
	}
}

// RunAll checks the data directory, then runs every other check against
// cfg. Checks that read the data directory are skipped when it is not
// writable.
func (c *Checker) RunAll(ctx context.Context, cfg *config.Config) []CheckResult {
	dataDir := c.CheckWritePermissions(cfg.Paths.DataDir)
	results := []CheckResult{dataDir}
	for _, chk := range c.checks() {
		if chk.onDisk && dataDir.Status != StatusPass {
			continue
		}
		results = append(results, chk.run(ctx, cfg))
	}
	return results
}

// tally splits results into critical failures and everything else that
// did not pass.
type tally struct {
	errors   []CheckResult
	warnings []CheckResult
}

func count(results []CheckResult) tally {
	var t tally
	for _, r := range results {
		switch {
		case r.IsCritical():
			t.errors = append(t.errors, r)
		case r.Status != StatusPass:
			t.warnings = append(t.warnings, r)
		}
	}
	return t
}

func (t tally) status() string {
	switch {
	case len(t.errors) > 0:
		return "failed"
	case len(t.warnings) > 0:
		return "ready_with_warnings"
	default:
		return "ready"
	}
}

// HasCriticalFailures reports whether a required check failed.
func (c *Checker) HasCriticalFailures(results []CheckResult) bool {
	return len(count(results).errors) > 0
}

// SummaryStatus is "ready", "ready_with_warnings" or "failed". A failed
// optional check counts as a warning.
func (c *Checker) SummaryStatus(results []CheckResult) string {
	return count(results).status()
}

// PrintResults writes one line per check, the summary status and the list
// of errors and warnings.
func (c *Checker) PrintResults(results []CheckResult) {
	w := c.output
	const title = "iiifstore system check"
	_, _ = fmt.Fprintf(w, "%s\n%s\n\n", title, strings.Repeat("=", len(title)))

	for _, r := range results {
		_, _ = fmt.Fprintf(w, "[%s] %s: %s\n", r.Status, r.Name, r.Message)
		if r.Details != "" && (c.verbose || r.Status != StatusPass) {
			_, _ = fmt.Fprintf(w, "      %s\n", r.Details)
		}
	}

	t := count(results)
	_, _ = fmt.Fprintf(w, "\nStatus: %s\n", strings.ToUpper(t.status()))
	c.printList("error(s)", t.errors)
	c.printList("warning(s)", t.warnings)
}

func (c *Checker) printList(noun string, results []CheckResult) {
	if len(results) == 0 {
		return
	}
	_, _ = fmt.Fprintf(c.output, "\n%d %s:\n", len(results), noun)
	for _, r := range results {
		_, _ = fmt.Fprintf(c.output, "  - %s: %s\n", r.Name, r.Message)
	}
}

// CheckWritePermissions creates the data directory when missing and
// writes a scratch file into it.
func (c *Checker) CheckWritePermissions(path string) CheckResult {
	result := CheckResult{Name: "data_dir", Required: true, Details: path}

	if err := os.MkdirAll(path, 0o755); err != nil {
		return result.set(StatusFail, "cannot create: %v", err)
	}
	f, err := os.CreateTemp(path, ".iiifstore-preflight-*")
	if err != nil {
		return result.set(StatusFail, "permission denied: %v", err)
	}
	_ = f.Close()
	_ = os.Remove(f.Name())
	return result.set(StatusPass, "writable")
}
