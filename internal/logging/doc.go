// Package logging configures structured slog output for iiifstore.
//
// Logs are JSON lines written to a size-rotated file under ~/.iiifstore/logs.
// CLI commands also tee to stderr; the MCP server never does, because stdout
// and stderr belong to the JSON-RPC stream.
package logging
