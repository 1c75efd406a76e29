package catalog

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/skridlevsky/panel-vote/internal/panel"
)

type countingReconciler struct {
	calls atomic.Int32
	err   error
}

func (r *countingReconciler) Sync(context.Context) (panel.SyncReport, error) {
	r.calls.Add(1)
	if r.err != nil {
		return panel.SyncReport{}, r.err
	}
	return panel.SyncReport{Fetched: 2, Created: 1}, nil
}

func TestSyncer_Disabled(t *testing.T) {
	r := &countingReconciler{}
	s := NewSyncer(r, 0)
	s.Run(context.Background())
	s.Stop()

	assert.Equal(t, int32(0), r.calls.Load())
	assert.Equal(t, "disabled", s.Status().Status)
}

func TestSyncer_SyncsOnStartAndOnTick(t *testing.T) {
	r := &countingReconciler{}
	s := NewSyncer(r, 10*time.Millisecond)
	s.Run(context.Background())
	defer s.Stop()

	require.Eventually(t, func() bool { return r.calls.Load() >= 2 }, time.Second, 5*time.Millisecond)

	status := s.Status()
	assert.Equal(t, "ok", status.Status)
	assert.Equal(t, panel.SyncReport{Fetched: 2, Created: 1}, status.LastReport)
	assert.False(t, status.LastRun.IsZero())
}

func TestSyncer_RecordsFailure(t *testing.T) {
	r := &countingReconciler{err: errors.New("webflow API error 503")}
	s := NewSyncer(r, time.Hour)

	_, err := s.SyncOnce(context.Background())
	require.Error(t, err)

	status := s.Status()
	assert.Equal(t, "error: webflow API error 503", status.Status)
	assert.Equal(t, 1, status.Runs)
}

func TestSyncer_StopIsIdempotent(t *testing.T) {
	s := NewSyncer(&countingReconciler{}, time.Hour)
	s.Run(context.Background())
	s.Stop()
	s.Stop()
}
