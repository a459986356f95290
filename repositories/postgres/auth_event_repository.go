package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/upb/auth-gateway/models"
	"github.com/upb/auth-gateway/repositories"
)

// AuthEventRepository implements the repositories.AuthEventRepository interface
type AuthEventRepository struct {
	db     *DB
	logger *zap.Logger
}

// NewAuthEventRepository creates a new auth event repository
func NewAuthEventRepository(db *DB, logger *zap.Logger) repositories.AuthEventRepository {
	return &AuthEventRepository{
		db:     db,
		logger: logger,
	}
}

// Insert inserts a new auth event
func (r *AuthEventRepository) Insert(ctx context.Context, event *models.AuthEvent) error {
	query := `
		INSERT INTO auth_events (
			id, action, outcome, backend, error_type, details,
			ip_address, user_agent, request_id, latency_ms, timestamp
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.Action,
		event.Outcome,
		event.Backend,
		nullString(event.ErrorType),
		nullJSON(event.Details),
		event.IPAddress,
		event.UserAgent,
		event.RequestID,
		event.LatencyMs,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("failed to insert auth event: %w", err)
	}

	r.logger.Debug("auth event inserted",
		zap.String("id", event.ID.String()),
		zap.String("action", string(event.Action)),
		zap.String("outcome", string(event.Outcome)))
	return nil
}

// CountByOutcome counts events per outcome recorded at or after since
func (r *AuthEventRepository) CountByOutcome(ctx context.Context, since time.Time) (map[models.AuthOutcome]int, error) {
	query := `
		SELECT outcome, COUNT(*)
		FROM auth_events
		WHERE timestamp >= $1
		GROUP BY outcome
	`

	rows, err := r.db.QueryContext(ctx, query, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count auth events: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.AuthOutcome]int)
	for rows.Next() {
		var outcome models.AuthOutcome
		var count int
		if err := rows.Scan(&outcome, &count); err != nil {
			return nil, fmt.Errorf("failed to scan auth event count: %w", err)
		}
		counts[outcome] = count
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating auth event counts: %w", err)
	}

	return counts, nil
}

// DeleteOlderThan removes events recorded before cutoff
func (r *AuthEventRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM auth_events WHERE timestamp < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to delete auth events: %w", err)
	}

	removed, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	r.logger.Info("auth events pruned",
		zap.Int64("removed", removed),
		zap.Time("cutoff", cutoff))
	return removed, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullJSON(data []byte) interface{} {
	if len(data) == 0 {
		return nil
	}
	return data
}
