package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/offerpulse/offerpulse/internal/config"
)

type fakeCounterStore struct {
	senderCount  int
	senderOldest time.Time
	receives     map[uuid.UUID]int

	inserted      []uuid.UUID
	insertedType  SubjectType
	batchInserted []uuid.UUID
}

func (f *fakeCounterStore) CountSenderSends(ctx context.Context, venueID uuid.UUID) (int, time.Time, error) {
	return f.senderCount, f.senderOldest, nil
}

func (f *fakeCounterStore) CountRecipientReceives(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	return f.receives, nil
}

func (f *fakeCounterStore) Insert(ctx context.Context, subjectID uuid.UUID, subjectType SubjectType) error {
	f.inserted = append(f.inserted, subjectID)
	f.insertedType = subjectType
	return nil
}

func (f *fakeCounterStore) InsertBatch(ctx context.Context, subjectIDs []uuid.UUID, subjectType SubjectType) error {
	f.batchInserted = append(f.batchInserted, subjectIDs...)
	f.insertedType = subjectType
	return nil
}

func (f *fakeCounterStore) DeleteExpired(ctx context.Context) (int64, error) {
	return 0, nil
}

func TestCheckSenderQuota(t *testing.T) {
	oldest := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name        string
		tier        string
		count       int
		wantAllowed bool
		wantLimit   int
	}{
		{"free tier under limit", "free", 2, true, 3},
		{"free tier at limit", "free", 3, false, 3},
		{"core tier fifth send allowed", "core", 4, true, 5},
		{"core tier at limit", "core", 5, false, 5},
		{"pro tier under limit", "pro", 9, true, 10},
		{"unknown tier treated as free", "platinum", 3, false, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &fakeCounterStore{senderCount: tt.count, senderOldest: oldest}
			l := New(store, 10, nil)

			d, err := l.CheckSenderQuota(context.Background(), uuid.New(), tt.tier)
			require.NoError(t, err)
			assert.Equal(t, tt.wantAllowed, d.Allowed)
			assert.Equal(t, tt.count, d.Count)
			assert.Equal(t, tt.wantLimit, d.Limit)
			assert.Equal(t, oldest.Add(Window), d.ResetAt)
		})
	}
}

func TestCheckSenderQuota_UnlimitedTierSkipsCounting(t *testing.T) {
	store := &fakeCounterStore{senderCount: 10000}
	l := New(store, 10, nil)

	d, err := l.CheckSenderQuota(context.Background(), uuid.New(), "revenue")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
	assert.Equal(t, config.UnlimitedQuota, d.Limit)
	assert.Zero(t, d.Count)
}

func TestCheckSenderQuota_ResetEstimate(t *testing.T) {
	oldest := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	store := &fakeCounterStore{senderCount: 3, senderOldest: oldest}
	l := New(store, 10, nil)

	d, err := l.CheckSenderQuota(context.Background(), uuid.New(), "free")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, oldest.Add(24*time.Hour), d.ResetAt, "reset is oldest in-window send plus the window")
	assert.False(t, d.ResetAt.IsZero(), "rejection must carry a non-zero reset estimate")
}

func TestFilterRecipients(t *testing.T) {
	overCap := uuid.New()
	atCap := uuid.New()
	underCap := uuid.New()
	fresh := uuid.New()

	store := &fakeCounterStore{receives: map[uuid.UUID]int{
		overCap:  14,
		atCap:    10,
		underCap: 9,
	}}
	l := New(store, 10, nil)

	eligible, err := l.FilterRecipients(context.Background(), []uuid.UUID{overCap, atCap, underCap, fresh})
	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{underCap, fresh}, eligible,
		"users at or over the cap are silently excluded")
}

func TestFilterRecipients_EmptyInput(t *testing.T) {
	l := New(&fakeCounterStore{}, 10, nil)
	eligible, err := l.FilterRecipients(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, eligible)
}

func TestRecordRecipientReceives(t *testing.T) {
	store := &fakeCounterStore{}
	l := New(store, 10, nil)

	ids := []uuid.UUID{uuid.New(), uuid.New()}
	require.NoError(t, l.RecordRecipientReceives(context.Background(), ids))
	assert.Equal(t, ids, store.batchInserted)
	assert.Equal(t, SubjectUserReceive, store.insertedType)

	// No-op for empty input, no rows written.
	store.batchInserted = nil
	require.NoError(t, l.RecordRecipientReceives(context.Background(), nil))
	assert.Empty(t, store.batchInserted)
}

func TestRecordSenderSend(t *testing.T) {
	store := &fakeCounterStore{}
	l := New(store, 10, nil)

	venueID := uuid.New()
	require.NoError(t, l.RecordSenderSend(context.Background(), venueID))
	assert.Equal(t, []uuid.UUID{venueID}, store.inserted)
	assert.Equal(t, SubjectVenueSend, store.insertedType)
}
