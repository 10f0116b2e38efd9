package ingest

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
)

// maxDocumentBytes bounds a document read from any source.
const maxDocumentBytes = 64 << 20

// ReadSource reads a IIIF document from "-" (stdin), an http(s) URL or a
// file path. client may be nil.
func ReadSource(ctx context.Context, src string, stdin io.Reader, client *http.Client) ([]byte, error) {
	switch {
	case src == "-":
		return readLimited(stdin)
	case strings.HasPrefix(src, "http://"), strings.HasPrefix(src, "https://"):
		return fetch(ctx, src, client)
	default:
		f, err := os.Open(src)
		if err != nil {
			if os.IsNotExist(err) {
				return nil, ierrors.New(ierrors.ErrCodeFileNotFound, "file not found", err).WithDetail("path", src)
			}
			return nil, fmt.Errorf("open %s: %w", src, err)
		}
		defer func() { _ = f.Close() }()
		return readLimited(f)
	}
}

func fetch(ctx context.Context, url string, client *http.Client) ([]byte, error) {
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, ierrors.New(ierrors.ErrCodeInvalidInput, "invalid URL", err).WithDetail("url", url)
	}
	req.Header.Set("Accept", "application/ld+json, application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, ierrors.NetworkError("failed to fetch document", err).WithDetail("url", url)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, ierrors.NetworkError(fmt.Sprintf("fetching document returned HTTP %d", resp.StatusCode), nil).
			WithDetail("url", url)
	}
	return readLimited(resp.Body)
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxDocumentBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	if len(data) > maxDocumentBytes {
		return nil, ierrors.InvalidResource(fmt.Sprintf("document exceeds %d bytes", maxDocumentBytes))
	}
	return data, nil
}
