package ratelimit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGStore persists counters in the rate_limit_counters table via the
// prepared statements registered in internal/db.
type PGStore struct {
	pool *pgxpool.Pool
}

// NewPGStore creates a Postgres-backed counter store.
func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) CountSenderSends(ctx context.Context, venueID uuid.UUID) (int, time.Time, error) {
	var count int
	var oldest sql.NullTime
	err := s.readOnceRetry(ctx, func(ctx context.Context) error {
		return s.pool.QueryRow(ctx, "count_sender_sends", venueID).Scan(&count, &oldest)
	})
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("count sender sends: %w", err)
	}
	if !oldest.Valid {
		return count, time.Time{}, nil
	}
	return count, oldest.Time, nil
}

func (s *PGStore) CountRecipientReceives(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID]int, error) {
	var counts map[uuid.UUID]int
	err := s.readOnceRetry(ctx, func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, "count_recipient_receives", userIDs)
		if err != nil {
			return err
		}
		defer rows.Close()

		counts = make(map[uuid.UUID]int, len(userIDs))
		for rows.Next() {
			var id uuid.UUID
			var n int
			if err := rows.Scan(&id, &n); err != nil {
				return fmt.Errorf("scan recipient count: %w", err)
			}
			counts[id] = n
		}
		return rows.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("count recipient receives: %w", err)
	}
	return counts, nil
}

// readOnceRetry retries a failed read a single time. Writes are never
// retried; the counter tables are append-only and a duplicate insert would
// inflate a quota count.
func (s *PGStore) readOnceRetry(ctx context.Context, fn func(context.Context) error) error {
	if err := fn(ctx); err == nil {
		return nil
	}
	select {
	case <-time.After(100 * time.Millisecond):
	case <-ctx.Done():
		return ctx.Err()
	}
	return fn(ctx)
}

func (s *PGStore) Insert(ctx context.Context, subjectID uuid.UUID, subjectType SubjectType) error {
	_, err := s.pool.Exec(ctx, "insert_rate_counter", subjectID, string(subjectType))
	return err
}

func (s *PGStore) InsertBatch(ctx context.Context, subjectIDs []uuid.UUID, subjectType SubjectType) error {
	_, err := s.pool.Exec(ctx, "insert_rate_counters_bulk", subjectIDs, string(subjectType))
	return err
}

func (s *PGStore) DeleteExpired(ctx context.Context) (int64, error) {
	tag, err := s.pool.Exec(ctx, "delete_expired_counters")
	if err != nil {
		return 0, fmt.Errorf("delete expired counters: %w", err)
	}
	return tag.RowsAffected(), nil
}
