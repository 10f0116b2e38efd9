package preflight

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Aman-CERP/iiifstore/internal/config"
	"github.com/Aman-CERP/iiifstore/internal/index"
	"github.com/Aman-CERP/iiifstore/internal/store"
)

// defaultCanonicalHostname is the hostname of a configuration nobody edited.
const defaultCanonicalHostname = "http://localhost:8000"

// CheckCanonicalHostname warns when canonical ids use the default host.
func (c *Checker) CheckCanonicalHostname(cfg *config.Config) CheckResult {
	result := CheckResult{Name: "canonical_hostname", Status: StatusPass, Message: cfg.Server.CanonicalHostname}
	if cfg.Server.CanonicalHostname == defaultCanonicalHostname {
		result.Status = StatusWarn
		result.Message = "canonical ids use the default " + defaultCanonicalHostname
		result.Details = "Set server.canonical_hostname before ingesting; it is part of every stored id"
	}
	return result
}

// CheckDatabase opens the store database and reads its table counts.
func (c *Checker) CheckDatabase(ctx context.Context, cfg *config.Config) CheckResult {
	result := CheckResult{
		Name:     "database",
		Required: true,
		Details:  cfg.DatabasePath(),
	}

	s, err := store.Open(store.Options{
		DataDir:           cfg.Paths.DataDir,
		Driver:            cfg.Store.Driver,
		CanonicalHostname: cfg.Server.CanonicalHostname,
		ResourcePath:      cfg.Server.ResourcePath,
		Logger:            slog.New(slog.DiscardHandler),
	})
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot open: %v", err)
		return result
	}
	defer func() { _ = s.Close() }()

	stats, err := s.Stats(ctx)
	if err != nil {
		result.Status = StatusFail
		result.Message = fmt.Sprintf("cannot read: %v", err)
		return result
	}

	result.Status = StatusPass
	result.Message = fmt.Sprintf("%s, %d resources, %d indexables", cfg.Store.Driver, stats.Resources, stats.Indexables)
	return result
}

// CheckTextIndex reports the text index found next to the database.
func (c *Checker) CheckTextIndex(cfg *config.Config) CheckResult {
	basePath := cfg.IndexBasePath()
	result := CheckResult{
		Name:    "text_index",
		Details: index.Path(basePath, cfg.Search.Backend),
	}

	found := index.Detect(basePath)
	switch {
	case found == "":
		result.Status = StatusWarn
		result.Message = "not created yet, the first ingest creates it"
	case string(found) != cfg.Search.Backend:
		result.Status = StatusWarn
		result.Message = fmt.Sprintf("found a %s index, configured backend is %s", found, cfg.Search.Backend)
		result.Details = "Run 'iiifstore reindex' after switching search.backend"
	default:
		info := store.DiskInfo(cfg.Paths.DataDir, index.Path(basePath, cfg.Search.Backend))
		result.Status = StatusPass
		result.Message = fmt.Sprintf("%s, %s", found, store.FormatBytes(info.IndexBytes))
	}
	return result
}
