package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/tollgate/tollgate/internal/model"
)

// DefaultUsageListLimit bounds ListUsageEvents when the caller passes no limit.
const DefaultUsageListLimit = 50

// InsertUsageEvent appends a usage event. Events are never updated or deleted.
func (r *Repository) InsertUsageEvent(ctx context.Context, e *model.UsageEvent) error {
	query := `
		INSERT INTO usage_events (id, account_id, operation, model, tokens_used, latency_ms, status, error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NULLIF($8, ''), $9)
	`

	_, err := r.pool.Exec(ctx, query,
		e.ID,
		e.AccountID,
		e.Operation,
		e.Model,
		e.TokensUsed,
		e.LatencyMs,
		string(e.Status),
		e.Error,
		e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert usage event: %w", err)
	}

	return nil
}

// ListUsageEvents returns the most recent usage events for an account,
// newest first.
func (r *Repository) ListUsageEvents(ctx context.Context, accountID string, limit int) ([]*model.UsageEvent, error) {
	if limit <= 0 {
		limit = DefaultUsageListLimit
	}

	query := `
		SELECT id, account_id, operation, model, tokens_used, latency_ms, status, error, created_at
		FROM usage_events
		WHERE account_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list usage events: %w", err)
	}
	defer rows.Close()

	events := make([]*model.UsageEvent, 0, limit)
	for rows.Next() {
		e, err := scanUsageEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan usage event: %w", err)
		}
		events = append(events, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating usage events: %w", err)
	}

	return events, nil
}

func scanUsageEvent(rows pgx.Rows) (*model.UsageEvent, error) {
	var e model.UsageEvent
	var status string
	var errText *string

	err := rows.Scan(
		&e.ID,
		&e.AccountID,
		&e.Operation,
		&e.Model,
		&e.TokensUsed,
		&e.LatencyMs,
		&status,
		&errText,
		&e.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	e.Status = model.UsageStatus(status)
	if errText != nil {
		e.Error = *errText
	}
	return &e, nil
}
