package iiif

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
)

// maxInfoJSONBytes bounds the size of an info.json response.
const maxInfoJSONBytes = 1 << 20

// FetcherConfig configures a ServiceFetcher.
type FetcherConfig struct {
	Timeout         time.Duration
	Retries         int
	RequestsPerSec  float64
	Burst           int
	CacheSize       int
	CircuitFailures int
	CircuitReset    time.Duration
}

// DefaultFetcherConfig mirrors the images section defaults.
func DefaultFetcherConfig() FetcherConfig {
	return FetcherConfig{
		Timeout:         5 * time.Second,
		Retries:         2,
		RequestsPerSec:  10,
		Burst:           5,
		CacheSize:       1000,
		CircuitFailures: 5,
		CircuitReset:    30 * time.Second,
	}
}

// ServiceFetcher retrieves image service descriptors ({service}/info.json).
// Responses are cached by service id. Requests are rate limited, retried on
// transient failure and guarded by a circuit breaker.
type ServiceFetcher struct {
	client  *http.Client
	cache   *lru.Cache[string, map[string]any]
	limiter *rate.Limiter
	breaker *ierrors.CircuitBreaker
	retry   ierrors.RetryConfig
	logger  *slog.Logger
}

// NewServiceFetcher creates a fetcher. A nil client uses a client with
// cfg.Timeout.
func NewServiceFetcher(cfg FetcherConfig, client *http.Client, logger *slog.Logger) (*ServiceFetcher, error) {
	if cfg.CacheSize <= 0 {
		cfg.CacheSize = DefaultFetcherConfig().CacheSize
	}
	if cfg.RequestsPerSec <= 0 {
		cfg.RequestsPerSec = DefaultFetcherConfig().RequestsPerSec
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if client == nil {
		client = &http.Client{Timeout: cfg.Timeout}
	}
	if logger == nil {
		logger = slog.Default()
	}

	cache, err := lru.New[string, map[string]any](cfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create info.json cache: %w", err)
	}

	retry := ierrors.DefaultRetryConfig()
	retry.MaxRetries = cfg.Retries

	return &ServiceFetcher{
		client:  client,
		cache:   cache,
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSec), cfg.Burst),
		breaker: ierrors.NewCircuitBreaker("image_service",
			ierrors.WithMaxFailures(cfg.CircuitFailures),
			ierrors.WithResetTimeout(cfg.CircuitReset)),
		retry:  retry,
		logger: logger,
	}, nil
}

// Fetch returns the info.json of the image service with the given id.
func (f *ServiceFetcher) Fetch(ctx context.Context, serviceID string) (map[string]any, error) {
	serviceID = strings.TrimSuffix(serviceID, "/")
	if serviceID == "" {
		return nil, ierrors.New(ierrors.ErrCodeImageService, "image service has no id", nil)
	}
	if info, ok := f.cache.Get(serviceID); ok {
		return info, nil
	}

	info, err := ierrors.CircuitDo(f.breaker, func() (map[string]any, error) {
		return ierrors.RetryWithResult(ctx, f.retry, func() (map[string]any, error) {
			return f.get(ctx, serviceID+"/info.json")
		})
	})
	if err != nil {
		return nil, err
	}
	f.cache.Add(serviceID, info)
	return info, nil
}

func (f *ServiceFetcher) get(ctx context.Context, url string) (map[string]any, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, ierrors.New(ierrors.ErrCodeImageService, "invalid info.json url", err).WithDetail("url", url)
	}
	req.Header.Set("Accept", "application/ld+json, application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, ierrors.New(ierrors.ErrCodeImageService, "info.json request failed", err).WithDetail("url", url)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		e := ierrors.New(ierrors.ErrCodeImageService, fmt.Sprintf("info.json returned %d", resp.StatusCode), nil).
			WithDetail("url", url)
		// Only server-side failures are worth retrying.
		e.Retryable = resp.StatusCode >= 500
		return nil, e
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxInfoJSONBytes))
	if err != nil {
		return nil, ierrors.New(ierrors.ErrCodeImageService, "failed to read info.json", err).WithDetail("url", url)
	}
	var info map[string]any
	if err := json.Unmarshal(body, &info); err != nil {
		e := ierrors.New(ierrors.ErrCodeImageService, "info.json is not a JSON object", err).WithDetail("url", url)
		e.Retryable = false
		return nil, e
	}
	return info, nil
}

// Resolver resolves thumbnails, optionally dereferencing their image
// services.
type Resolver struct {
	fetcher *ServiceFetcher
	logger  *slog.Logger
}

// NewResolver creates a Resolver. fetcher may be nil, which disables
// dereferencing.
func NewResolver(fetcher *ServiceFetcher, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{fetcher: fetcher, logger: logger}
}

// Thumbnail returns the thumbnail list for n, or nil when none can be found.
//
// With dereference set, each candidate's image services are completed with
// their info.json under "info". A failed fetch leaves that service as it was.
func (r *Resolver) Thumbnail(ctx context.Context, n, firstCanvas *Node, dereference bool) ([]map[string]any, error) {
	candidates := cloneObjects(ThumbnailCandidates(n, firstCanvas))
	if len(candidates) == 0 {
		return nil, nil
	}
	if !dereference || r.fetcher == nil {
		return candidates, nil
	}

	type job struct {
		svc map[string]any
		id  string
	}
	var jobs []job
	for _, c := range candidates {
		services := ImageServices(c)
		for _, svc := range services {
			if id := idOf(svc); id != "" {
				jobs = append(jobs, job{svc: svc, id: id})
			}
		}
		if len(services) > 0 {
			c["service"] = toAnyList(services)
		}
	}

	infos := make([]map[string]any, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, j := range jobs {
		g.Go(func() error {
			info, err := r.fetcher.Fetch(gctx, j.id)
			if err != nil {
				r.logger.Warn("image_service_fetch_failed",
					slog.String("service", j.id),
					slog.String("error", err.Error()))
				return nil
			}
			infos[i] = info
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, j := range jobs {
		if infos[i] != nil {
			j.svc["info"] = infos[i]
		}
	}
	return candidates, nil
}

// cloneObjects copies the top level of each object so callers can annotate
// services without touching the source tree.
func cloneObjects(in []map[string]any) []map[string]any {
	out := make([]map[string]any, len(in))
	for i, m := range in {
		c := make(map[string]any, len(m))
		for k, v := range m {
			c[k] = v
		}
		if services := objectList(m["service"]); len(services) > 0 {
			cs := make([]any, len(services))
			for j, svc := range services {
				sc := make(map[string]any, len(svc))
				for k, v := range svc {
					sc[k] = v
				}
				cs[j] = sc
			}
			c["service"] = cs
		}
		out[i] = c
	}
	return out
}

func toAnyList(in []map[string]any) []any {
	out := make([]any, len(in))
	for i, m := range in {
		out[i] = m
	}
	return out
}
