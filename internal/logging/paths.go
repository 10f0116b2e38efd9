package logging

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"
)

// DefaultLogDir returns ~/.iiifstore/logs, or a temp path without a home.
func DefaultLogDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".iiifstore", "logs")
	}
	return filepath.Join(home, ".iiifstore", "logs")
}

// DefaultLogPath returns the default log file path.
func DefaultLogPath() string {
	return filepath.Join(DefaultLogDir(), "iiifstore.log")
}

// FindLogFile returns explicit if it exists, otherwise the default log path.
func FindLogFile(explicit string) (string, error) {
	path := explicit
	if path == "" {
		path = DefaultLogPath()
	}
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("no log file at %s: run a command with --debug first", path)
	}
	return path, nil
}

// Tail writes the last n lines of path to w. With follow it keeps copying
// appended lines until ctx is cancelled.
func Tail(ctx context.Context, path string, n int, follow bool, w io.Writer) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	reader := bufio.NewReader(f)
	ring := make([]string, 0, n)
	for {
		line, err := reader.ReadString('\n')
		if line != "" {
			if len(ring) == n && n > 0 {
				ring = ring[1:]
			}
			if n > 0 {
				ring = append(ring, line)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("failed to read log file: %w", err)
		}
	}
	for _, line := range ring {
		if _, err := io.WriteString(w, line); err != nil {
			return err
		}
	}

	if !follow {
		return nil
	}

	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			for {
				line, err := reader.ReadString('\n')
				if line != "" {
					if _, werr := io.WriteString(w, line); werr != nil {
						return werr
					}
				}
				if err != nil {
					break
				}
			}
		}
	}
}
