package index

import (
	"fmt"
	"os"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
)

// Backend names a TextIndex implementation.
type Backend string

const (
	// BackendBleve uses bleve v2 with per-language analyzers (default).
	BackendBleve Backend = "bleve"

	// BackendSQLite uses SQLite FTS5 with the porter stemmer. Several
	// processes may read it at once.
	BackendSQLite Backend = "sqlite"
)

// New opens the text index for backend. basePath has no extension: the
// backend adds ".bleve" or ".db". An empty basePath creates an in-memory
// index.
func New(basePath string, backend string) (TextIndex, error) {
	switch Backend(backend) {
	case BackendBleve, "":
		return NewBleveIndex(Path(basePath, string(BackendBleve)))
	case BackendSQLite:
		return NewSQLiteIndex(Path(basePath, string(BackendSQLite)))
	default:
		return nil, ierrors.ConfigError(fmt.Sprintf("unknown text index backend: %s", backend), nil).
			WithSuggestion("set search.backend to bleve or sqlite")
	}
}

// Path returns the on-disk location of the index for backend, "" when
// basePath is empty.
func Path(basePath, backend string) string {
	if basePath == "" {
		return ""
	}
	if Backend(backend) == BackendSQLite {
		return basePath + ".db"
	}
	return basePath + ".bleve"
}

// Detect reports which backend an existing index at basePath uses, or ""
// when there is none.
func Detect(basePath string) Backend {
	if fileExists(basePath + ".db") {
		return BackendSQLite
	}
	if dirExists(basePath + ".bleve") {
		return BackendBleve
	}
	return ""
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
