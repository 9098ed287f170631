package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// ActiveDeviceTokens returns the active push tokens for each user in userIDs.
// Users with no active devices are absent from the result.
func (s *Store) ActiveDeviceTokens(ctx context.Context, userIDs []uuid.UUID) (map[uuid.UUID][]string, error) {
	if len(userIDs) == 0 {
		return map[uuid.UUID][]string{}, nil
	}

	tokens := make(map[uuid.UUID][]string)
	err := s.readWithRetry(ctx, "active_device_tokens", func(ctx context.Context) error {
		rows, err := s.pool.Query(ctx, "active_device_tokens", userIDs)
		if err != nil {
			return fmt.Errorf("query device tokens: %w", err)
		}
		defer rows.Close()

		clear(tokens)
		for rows.Next() {
			var userID uuid.UUID
			var token string
			if err := rows.Scan(&userID, &token); err != nil {
				return fmt.Errorf("scan device token: %w", err)
			}
			tokens[userID] = append(tokens[userID], token)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

// DeactivateTokens permanently deactivates device tokens the gateway reported
// invalid. Deactivation is monotonic; a token never reactivates without a
// fresh registration.
func (s *Store) DeactivateTokens(ctx context.Context, tokens []string) (int64, error) {
	if len(tokens) == 0 {
		return 0, nil
	}
	tag, err := s.pool.Exec(ctx, "deactivate_device_tokens", tokens)
	if err != nil {
		return 0, fmt.Errorf("deactivate tokens: %w", err)
	}
	return tag.RowsAffected(), nil
}
