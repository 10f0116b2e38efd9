// Package telemetry records search query statistics. Counts stay local:
// they are written to the store database and read back by "iiifstore stats".
package telemetry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	lru "github.com/hashicorp/golang-lru/v2"
)

// QueryType classifies a search request by the criteria it uses.
type QueryType string

const (
	QueryTypeFulltext QueryType = "fulltext"
	QueryTypeFaceted  QueryType = "faceted"
	QueryTypeMixed    QueryType = "mixed"
	QueryTypeBrowse   QueryType = "browse"
)

// Classify returns the query type of a request with or without full text
// and with or without facets, filters or sorting.
func Classify(fulltext, structured bool) QueryType {
	switch {
	case fulltext && structured:
		return QueryTypeMixed
	case fulltext:
		return QueryTypeFulltext
	case structured:
		return QueryTypeFaceted
	default:
		return QueryTypeBrowse
	}
}

// LatencyBucket is a latency histogram bucket.
type LatencyBucket string

const (
	BucketP10   LatencyBucket = "p10"   // <10ms
	BucketP50   LatencyBucket = "p50"   // 10-50ms
	BucketP100  LatencyBucket = "p100"  // 50-100ms
	BucketP500  LatencyBucket = "p500"  // 100-500ms
	BucketP1000 LatencyBucket = "p1000" // >=500ms
)

// Buckets lists the latency buckets in ascending order.
var Buckets = []LatencyBucket{BucketP10, BucketP50, BucketP100, BucketP500, BucketP1000}

// LatencyToBucket converts a duration to its histogram bucket.
func LatencyToBucket(d time.Duration) LatencyBucket {
	ms := d.Milliseconds()
	switch {
	case ms < 10:
		return BucketP10
	case ms < 50:
		return BucketP50
	case ms < 100:
		return BucketP100
	case ms < 500:
		return BucketP500
	default:
		return BucketP1000
	}
}

// QueryEvent is one executed search request.
type QueryEvent struct {
	Query       string
	Type        QueryType
	ResultCount int
	Latency     time.Duration
	Timestamp   time.Time
}

// CircularBuffer is a fixed-capacity FIFO buffer.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int
	size     int
	capacity int
}

// NewCircularBuffer creates a buffer holding at most capacity items.
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity <= 0 {
		capacity = 100
	}
	return &CircularBuffer[T]{items: make([]T, capacity), capacity: capacity}
}

// Add appends item, evicting the oldest item when full.
func (b *CircularBuffer[T]) Add(item T) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.items[b.head] = item
	b.head = (b.head + 1) % b.capacity
	if b.size < b.capacity {
		b.size++
	}
}

// Items returns the items oldest first.
func (b *CircularBuffer[T]) Items() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]T, b.size)
	if b.size < b.capacity {
		copy(out, b.items[:b.size])
		return out
	}
	n := copy(out, b.items[b.head:])
	copy(out[n:], b.items[:b.head])
	return out
}

// Size returns the number of items.
func (b *CircularBuffer[T]) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// ExtractTerms lowercases a query and returns its words of three or more
// letters. Query syntax such as quotes and operators is dropped.
func ExtractTerms(query string) []string {
	words := strings.FieldsFunc(strings.ToLower(query), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	var terms []string
	for _, w := range words {
		if utf8.RuneCountInString(w) >= 3 && w != "and" && w != "not" {
			terms = append(terms, w)
		}
	}
	return terms
}

// TermCount is a query term and how often it was searched.
type TermCount struct {
	Term  string `json:"term"`
	Count int64  `json:"count"`
}

// Snapshot summarises recorded queries.
type Snapshot struct {
	TotalQueries      int64                   `json:"total_queries"`
	ZeroResultCount   int64                   `json:"zero_result_count"`
	TypeCounts        map[QueryType]int64     `json:"type_counts"`
	Latency           map[LatencyBucket]int64 `json:"latency"`
	TopTerms          []TermCount             `json:"top_terms"`
	ZeroResultQueries []string                `json:"zero_result_queries"`
	RepeatCount       int64                   `json:"repeat_count"`
	Since             time.Time               `json:"since"`
}

// ZeroResultPercentage returns the share of queries without results.
func (s *Snapshot) ZeroResultPercentage() float64 {
	if s.TotalQueries == 0 {
		return 0
	}
	return float64(s.ZeroResultCount) / float64(s.TotalQueries) * 100
}

// Batch is the set of counts recorded since the last flush.
type Batch struct {
	Date        string
	Types       map[QueryType]int64
	ZeroResults map[QueryType]int64
	Latency     map[LatencyBucket]int64
	Terms       map[string]int64
	ZeroQueries []ZeroResultQuery
}

func newBatch() *Batch {
	return &Batch{
		Types:       make(map[QueryType]int64),
		ZeroResults: make(map[QueryType]int64),
		Latency:     make(map[LatencyBucket]int64),
		Terms:       make(map[string]int64),
	}
}

// Empty reports whether the batch holds no queries.
func (b *Batch) Empty() bool {
	return len(b.Types) == 0
}

// Store persists batches and reports on them.
type Store interface {
	Save(ctx context.Context, batch *Batch) error
	Report(ctx context.Context, since time.Time, limit int) (*Snapshot, error)
}

// Config configures QueryMetrics.
type Config struct {
	TopTermsCapacity    int
	ZeroResultsCapacity int
	RecentCapacity      int

	// FlushInterval is how often counts are saved; 0 saves only on Flush
	// and Close.
	FlushInterval time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		TopTermsCapacity:    100,
		ZeroResultsCapacity: 100,
		RecentCapacity:      500,
		FlushInterval:       time.Minute,
	}
}

// QueryMetrics collects query statistics in memory and saves them to a
// Store. Safe for concurrent use.
type QueryMetrics struct {
	mu sync.Mutex

	total       int64
	zero        int64
	types       map[QueryType]int64
	latency     map[LatencyBucket]int64
	topTerms    *lru.Cache[string, int64]
	zeroResults *CircularBuffer[string]
	recent      *lru.Cache[string, struct{}]
	repeats     int64
	since       time.Time

	pending *Batch
	store   Store
	logger  *slog.Logger
	stopCh  chan struct{}
	done    chan struct{}
	closed  bool
}

// NewQueryMetrics creates a collector. With a nil store counts are kept in
// memory only.
func NewQueryMetrics(store Store, cfg Config, logger *slog.Logger) *QueryMetrics {
	d := DefaultConfig()
	if cfg.TopTermsCapacity <= 0 {
		cfg.TopTermsCapacity = d.TopTermsCapacity
	}
	if cfg.ZeroResultsCapacity <= 0 {
		cfg.ZeroResultsCapacity = d.ZeroResultsCapacity
	}
	if cfg.RecentCapacity <= 0 {
		cfg.RecentCapacity = d.RecentCapacity
	}
	if logger == nil {
		logger = slog.Default()
	}

	topTerms, _ := lru.New[string, int64](cfg.TopTermsCapacity)
	recent, _ := lru.New[string, struct{}](cfg.RecentCapacity)

	m := &QueryMetrics{
		types:       make(map[QueryType]int64),
		latency:     make(map[LatencyBucket]int64),
		topTerms:    topTerms,
		zeroResults: NewCircularBuffer[string](cfg.ZeroResultsCapacity),
		recent:      recent,
		since:       time.Now(),
		pending:     newBatch(),
		store:       store,
		logger:      logger,
	}
	if cfg.FlushInterval > 0 && store != nil {
		m.stopCh = make(chan struct{})
		m.done = make(chan struct{})
		go m.flushLoop(cfg.FlushInterval)
	}
	return m
}

func (m *QueryMetrics) flushLoop(interval time.Duration) {
	defer close(m.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if err := m.Flush(context.Background()); err != nil {
				m.logger.Warn("query_metrics_flush_failed", slog.String("error", err.Error()))
			}
		case <-m.stopCh:
			return
		}
	}
}

// Record adds one query.
func (m *QueryMetrics) Record(event QueryEvent) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Type == "" {
		event.Type = Classify(strings.TrimSpace(event.Query) != "", false)
	}
	bucket := LatencyToBucket(event.Latency)
	terms := ExtractTerms(event.Query)
	query := strings.TrimSpace(event.Query)

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}

	m.total++
	m.types[event.Type]++
	m.latency[bucket]++
	m.pending.Types[event.Type]++
	m.pending.Latency[bucket]++

	for _, term := range terms {
		n, _ := m.topTerms.Get(term)
		m.topTerms.Add(term, n+1)
		m.pending.Terms[term]++
	}

	if event.ResultCount == 0 {
		m.zero++
		m.pending.ZeroResults[event.Type]++
		if query != "" {
			m.zeroResults.Add(query)
			m.pending.ZeroQueries = append(m.pending.ZeroQueries, ZeroResultQuery{Query: query, Timestamp: event.Timestamp})
		}
	}

	if query != "" {
		key := hashQuery(query)
		if _, seen := m.recent.Get(key); seen {
			m.repeats++
		}
		m.recent.Add(key, struct{}{})
	}
}

func hashQuery(query string) string {
	sum := sha256.Sum256([]byte(strings.ToLower(query)))
	return hex.EncodeToString(sum[:16])
}

// Snapshot returns the counts recorded by this collector.
func (m *QueryMetrics) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := &Snapshot{
		TotalQueries:      m.total,
		ZeroResultCount:   m.zero,
		TypeCounts:        make(map[QueryType]int64, len(m.types)),
		Latency:           make(map[LatencyBucket]int64, len(m.latency)),
		ZeroResultQueries: m.zeroResults.Items(),
		RepeatCount:       m.repeats,
		Since:             m.since,
	}
	for k, v := range m.types {
		s.TypeCounts[k] = v
	}
	for k, v := range m.latency {
		s.Latency[k] = v
	}
	for _, term := range m.topTerms.Keys() {
		if n, ok := m.topTerms.Peek(term); ok {
			s.TopTerms = append(s.TopTerms, TermCount{Term: term, Count: n})
		}
	}
	SortTerms(s.TopTerms)
	return s
}

// SortTerms orders terms by count, most frequent first.
func SortTerms(terms []TermCount) {
	sort.Slice(terms, func(i, j int) bool {
		if terms[i].Count != terms[j].Count {
			return terms[i].Count > terms[j].Count
		}
		return terms[i].Term < terms[j].Term
	})
}

// Flush saves the counts recorded since the last flush. Counts that fail
// to save are dropped.
func (m *QueryMetrics) Flush(ctx context.Context) error {
	if m.store == nil {
		return nil
	}
	m.mu.Lock()
	batch := m.pending
	m.pending = newBatch()
	m.mu.Unlock()

	if batch.Empty() {
		return nil
	}
	batch.Date = time.Now().UTC().Format(time.DateOnly)
	return m.store.Save(ctx, batch)
}

// Close stops periodic flushing and saves what is left.
func (m *QueryMetrics) Close(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	if m.stopCh != nil {
		close(m.stopCh)
		<-m.done
	}
	return m.Flush(ctx)
}
