package watcher

import (
	"path/filepath"
	"strings"
	"time"
)

// Operation is a file change.
type Operation int

const (
	// OpCreate is a new document.
	OpCreate Operation = iota
	// OpModify is a changed or replaced document.
	OpModify
	// OpDelete is a removed document. Renames out of the directory are
	// reported as deletes.
	OpDelete
)

// String returns the operation name.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent is one change to a watched document.
type FileEvent struct {
	// Path is absolute.
	Path      string
	Operation Operation
	Timestamp time.Time
}

// Options configures a Watcher.
type Options struct {
	// DebounceWindow is how long a file must be quiet before its event is
	// emitted. Default: 500ms
	DebounceWindow time.Duration

	// PollInterval is the scan interval in polling mode. Default: 5s
	PollInterval time.Duration

	// EventBufferSize is the number of batches buffered. Default: 100
	EventBufferSize int

	// Extensions lists the watched file extensions, compared
	// case-insensitively. Default: .json
	Extensions []string

	// Polling forces polling mode.
	Polling bool

	// Ignore skips matching paths. When nil, Scan and Start read the
	// .iiifignore file of the root, if any.
	Ignore *Ignore
}

// DefaultOptions returns the default watcher options.
func DefaultOptions() Options {
	return Options{
		DebounceWindow:  500 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 100,
		Extensions:      []string{".json"},
	}
}

// WithDefaults returns options with defaults applied for zero values.
func (o Options) WithDefaults() Options {
	defaults := DefaultOptions()
	if o.DebounceWindow <= 0 {
		o.DebounceWindow = defaults.DebounceWindow
	}
	if o.PollInterval <= 0 {
		o.PollInterval = defaults.PollInterval
	}
	if o.EventBufferSize <= 0 {
		o.EventBufferSize = defaults.EventBufferSize
	}
	if len(o.Extensions) == 0 {
		o.Extensions = defaults.Extensions
	}
	return o
}

// Matches reports whether path is a watched document: the extension is
// listed, no path element below root is hidden and no ignore pattern
// matches.
func (o Options) Matches(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil || rel == "." || strings.HasPrefix(rel, "..") {
		return false
	}
	for _, part := range strings.Split(filepath.ToSlash(rel), "/") {
		if strings.HasPrefix(part, ".") {
			return false
		}
	}
	if o.Ignore.Match(rel, false) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(path))
	for _, want := range o.Extensions {
		if strings.ToLower(want) == ext {
			return true
		}
	}
	return false
}

// skipDir reports whether a directory below root is not descended into.
func (o Options) skipDir(root, path string) bool {
	if path == root {
		return false
	}
	if strings.HasPrefix(filepath.Base(path), ".") {
		return true
	}
	rel, err := filepath.Rel(root, path)
	return err == nil && o.Ignore.Match(rel, true)
}
