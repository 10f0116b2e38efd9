package telemetry

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	mu      sync.Mutex
	batches []*Batch
}

func (s *memStore) Save(_ context.Context, b *Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, b)
	return nil
}

func (s *memStore) Report(context.Context, time.Time, int) (*Snapshot, error) {
	return &Snapshot{}, nil
}

func TestClassify(t *testing.T) {
	assert.Equal(t, QueryTypeMixed, Classify(true, true))
	assert.Equal(t, QueryTypeFulltext, Classify(true, false))
	assert.Equal(t, QueryTypeFaceted, Classify(false, true))
	assert.Equal(t, QueryTypeBrowse, Classify(false, false))
}

func TestLatencyToBucket(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want LatencyBucket
	}{
		{5 * time.Millisecond, BucketP10},
		{10 * time.Millisecond, BucketP50},
		{75 * time.Millisecond, BucketP100},
		{250 * time.Millisecond, BucketP500},
		{2 * time.Second, BucketP1000},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, LatencyToBucket(tt.d), tt.d.String())
	}
}

func TestCircularBuffer_EvictsOldest(t *testing.T) {
	b := NewCircularBuffer[string](3)
	for _, s := range []string{"a", "b", "c", "d", "e"} {
		b.Add(s)
	}
	assert.Equal(t, 3, b.Size())
	assert.Equal(t, []string{"c", "d", "e"}, b.Items())

	empty := NewCircularBuffer[int](0)
	assert.Empty(t, empty.Items())
}

func TestExtractTerms(t *testing.T) {
	assert.Equal(t, []string{"grey", "heron"}, ExtractTerms(`"Grey Heron" OR of`))
	assert.Equal(t, []string{"vögel", "audubon"}, ExtractTerms("Vögel -audubon"))
	assert.Nil(t, ExtractTerms("  "))
}

func TestQueryMetrics_RecordAndSnapshot(t *testing.T) {
	// Given: a collector without persistence
	m := NewQueryMetrics(nil, Config{}, nil)

	// When: three queries are recorded, one repeated and one empty-handed
	m.Record(QueryEvent{Query: "heron", Type: QueryTypeFulltext, ResultCount: 3, Latency: time.Millisecond})
	m.Record(QueryEvent{Query: "Heron", Type: QueryTypeFulltext, ResultCount: 3, Latency: 20 * time.Millisecond})
	m.Record(QueryEvent{Query: "zebra", Type: QueryTypeMixed, ResultCount: 0, Latency: time.Millisecond})

	// Then: the snapshot holds every count
	s := m.Snapshot()
	assert.EqualValues(t, 3, s.TotalQueries)
	assert.EqualValues(t, 1, s.ZeroResultCount)
	assert.EqualValues(t, 2, s.TypeCounts[QueryTypeFulltext])
	assert.EqualValues(t, 1, s.TypeCounts[QueryTypeMixed])
	assert.EqualValues(t, 2, s.Latency[BucketP10])
	assert.EqualValues(t, 1, s.Latency[BucketP50])
	assert.Equal(t, []string{"zebra"}, s.ZeroResultQueries)
	assert.EqualValues(t, 1, s.RepeatCount)
	require.NotEmpty(t, s.TopTerms)
	assert.Equal(t, TermCount{Term: "heron", Count: 2}, s.TopTerms[0])
	assert.InDelta(t, 33.3, s.ZeroResultPercentage(), 0.1)
}

func TestQueryMetrics_BrowseIsNotAZeroResultQuery(t *testing.T) {
	m := NewQueryMetrics(nil, Config{}, nil)

	m.Record(QueryEvent{ResultCount: 0})

	s := m.Snapshot()
	assert.EqualValues(t, 1, s.TypeCounts[QueryTypeBrowse])
	assert.EqualValues(t, 1, s.ZeroResultCount)
	assert.Empty(t, s.ZeroResultQueries)
}

func TestQueryMetrics_FlushSavesOnlyNewCounts(t *testing.T) {
	// Given: a collector with a store and no periodic flush
	store := &memStore{}
	m := NewQueryMetrics(store, Config{}, nil)
	ctx := context.Background()

	// When: it is flushed after each query, and once with nothing new
	m.Record(QueryEvent{Query: "heron", Type: QueryTypeFulltext, ResultCount: 1})
	require.NoError(t, m.Flush(ctx))
	require.NoError(t, m.Flush(ctx))
	m.Record(QueryEvent{Query: "zebra", Type: QueryTypeFulltext})
	require.NoError(t, m.Close(ctx))

	// Then: each batch holds only the counts since the previous flush
	require.Len(t, store.batches, 2)
	assert.EqualValues(t, 1, store.batches[0].Types[QueryTypeFulltext])
	assert.EqualValues(t, 1, store.batches[0].Terms["heron"])
	assert.Empty(t, store.batches[0].ZeroQueries)
	assert.EqualValues(t, 1, store.batches[1].Types[QueryTypeFulltext])
	assert.EqualValues(t, 1, store.batches[1].ZeroResults[QueryTypeFulltext])
	require.Len(t, store.batches[1].ZeroQueries, 1)
	assert.Equal(t, "zebra", store.batches[1].ZeroQueries[0].Query)
	assert.Equal(t, time.Now().UTC().Format(time.DateOnly), store.batches[1].Date)
}

func TestQueryMetrics_IgnoresRecordsAfterClose(t *testing.T) {
	store := &memStore{}
	m := NewQueryMetrics(store, Config{FlushInterval: time.Hour}, nil)

	require.NoError(t, m.Close(context.Background()))
	require.NoError(t, m.Close(context.Background()))
	m.Record(QueryEvent{Query: "late"})

	assert.Zero(t, m.Snapshot().TotalQueries)
	assert.Empty(t, store.batches)
}

func TestQueryMetrics_PeriodicFlush(t *testing.T) {
	store := &memStore{}
	m := NewQueryMetrics(store, Config{FlushInterval: 10 * time.Millisecond}, nil)
	t.Cleanup(func() { _ = m.Close(context.Background()) })

	m.Record(QueryEvent{Query: "heron", ResultCount: 1})

	assert.Eventually(t, func() bool {
		store.mu.Lock()
		defer store.mu.Unlock()
		return len(store.batches) == 1
	}, time.Second, 5*time.Millisecond)
}
