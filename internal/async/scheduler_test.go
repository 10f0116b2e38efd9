package async

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ierrors "github.com/Aman-CERP/iiifstore/internal/errors"
	"github.com/Aman-CERP/iiifstore/internal/index"
)

func TestNewScheduler_RejectsBadSchedule(t *testing.T) {
	_, err := NewScheduler("not a schedule", nil, nil, nil)
	require.Error(t, err)
	assert.True(t, ierrors.HasCode(err, ierrors.ErrCodeConfigInvalid))
}

func TestScheduler_RunNowRecordsCounts(t *testing.T) {
	// Given: a reconcile func that finds one orphan and two missing entries
	progress := NewIndexProgress()
	s, err := NewScheduler("@every 1h", func(context.Context) (*index.CheckResult, error) {
		return &index.CheckResult{
			Checked: 5,
			Inconsistencies: []index.Inconsistency{
				{Type: index.InconsistencyOrphan, IndexableID: "x"},
				{Type: index.InconsistencyMissing, IndexableID: "y"},
				{Type: index.InconsistencyMissing, IndexableID: "z"},
			},
		}, nil
	}, progress, nil)
	require.NoError(t, err)

	// When
	result, err := s.RunNow(context.Background())

	// Then
	require.NoError(t, err)
	assert.Equal(t, 5, result.Checked)
	snap := progress.Snapshot()
	require.NotNil(t, snap.LastReconcile)
	assert.Equal(t, 1, snap.Orphans)
	assert.Equal(t, 2, snap.Missing)
}

func TestScheduler_RunNowRecordsError(t *testing.T) {
	progress := NewIndexProgress()
	s, err := NewScheduler("@every 1h", func(context.Context) (*index.CheckResult, error) {
		return nil, errors.New("index closed")
	}, progress, nil)
	require.NoError(t, err)

	_, err = s.RunNow(context.Background())

	assert.EqualError(t, err, "index closed")
	assert.Equal(t, "index closed", progress.Snapshot().LastError)
}

func TestScheduler_RunsOnSchedule(t *testing.T) {
	var runs atomic.Int32
	s, err := NewScheduler("@every 1s", func(context.Context) (*index.CheckResult, error) {
		runs.Add(1)
		return &index.CheckResult{}, nil
	}, nil, nil)
	require.NoError(t, err)

	require.NoError(t, s.Start(context.Background()))
	defer s.Stop()

	assert.Eventually(t, func() bool { return runs.Load() >= 1 }, 5*time.Second, 50*time.Millisecond)
}
