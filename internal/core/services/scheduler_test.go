package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	storemem "github.com/custodia-labs/quill/internal/adapters/driven/storage/memory"
	"github.com/custodia-labs/quill/internal/core/domain"
)

func TestNewScheduler_DefaultSchedule(t *testing.T) {
	s := NewScheduler("", nil, nil)
	assert.Equal(t, domain.DefaultReconcileSchedule, s.schedule)
}

func TestValidateSchedule(t *testing.T) {
	tests := []struct {
		spec    string
		wantErr bool
	}{
		{spec: "@every 10m"},
		{spec: "@hourly"},
		{spec: "*/5 * * * *"},
		{spec: "every ten minutes", wantErr: true},
		{spec: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			err := ValidateSchedule(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestScheduler_RunsOnStartAndRecordsHistory(t *testing.T) {
	runs := storemem.NewReconcileLog()
	rec := &fakeReconciler{}
	s := NewScheduler("@every 1h", runs, rec)

	done := make(chan error, 1)
	go func() { done <- s.Start(context.Background()) }()

	require.Eventually(t, func() bool { return rec.Calls() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		history, _ := s.History(context.Background(), 10)
		return len(history) == 1
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, s.Stop())
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after Stop")
	}

	history, err := s.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.False(t, history[0].Failed())
	assert.Equal(t, domain.ReconcileReport{Scanned: 3, Enqueued: 2, Orphans: 1}, history[0].Report)
	assert.False(t, history[0].EndedAt.Before(history[0].StartedAt))

	// Stopping twice is harmless
	assert.NoError(t, s.Stop())
}

func TestScheduler_RecordsFailure(t *testing.T) {
	runs := storemem.NewReconcileLog()
	rec := &fakeReconciler{err: errors.New("store offline")}
	s := NewScheduler("@every 1h", runs, rec)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Start(ctx) }()

	require.Eventually(t, func() bool {
		history, _ := s.History(context.Background(), 10)
		return len(history) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Start did not return after cancel")
	}

	history, err := s.History(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.True(t, history[0].Failed())
	assert.Equal(t, "store offline", history[0].Error)
	assert.Zero(t, history[0].Report)
}

func TestScheduler_HistoryWithoutLog(t *testing.T) {
	s := NewScheduler("@every 1h", nil, &fakeReconciler{})
	history, err := s.History(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestScheduler_InvalidSchedule(t *testing.T) {
	s := NewScheduler("not a schedule", nil, &fakeReconciler{})
	err := s.Start(context.Background())
	assert.Error(t, err)

	// A failed start leaves the scheduler stopped
	assert.NoError(t, s.Stop())
}
