package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"log/slog"

	"github.com/botfsm/botfsm/core/engine"
	"github.com/botfsm/botfsm/core/logger"
)

// PostgresStore persists session blobs in the user_sessions table, one row
// per (user, state) pair. It implements engine.SessionStore.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open connection pool. The schema is managed by
// the migrations directory, not by this type.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

var _ engine.SessionStore = (*PostgresStore)(nil)

// Load returns the stored blob, or (nil, nil) when no row exists.
func (s *PostgresStore) Load(ctx context.Context, userID int64, stateID string) ([]byte, error) {
	start := time.Now()
	var blob []byte
	err := s.db.GetContext(ctx, &blob,
		`SELECT blob FROM user_sessions WHERE user_id = $1 AND state_id = $2`,
		userID, stateID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		logger.SES.Error("session load failed",
			slog.String("event", "session.load"),
			slog.Int64("user_id", userID),
			slog.String("state_id", stateID),
			slog.String("err", err.Error()),
		)
		return nil, fmt.Errorf("session load: %w", err)
	}
	logger.SES.Debug("session loaded",
		slog.String("event", "session.load"),
		slog.Int64("user_id", userID),
		slog.String("state_id", stateID),
		slog.Int("bytes", len(blob)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return blob, nil
}

// Save upserts the blob for the (user, state) pair.
func (s *PostgresStore) Save(ctx context.Context, userID int64, stateID string, blob []byte) error {
	start := time.Now()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO user_sessions (user_id, state_id, blob, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id, state_id)
		 DO UPDATE SET blob = EXCLUDED.blob, updated_at = now()`,
		userID, stateID, blob,
	)
	if err != nil {
		logger.SES.Error("session save failed",
			slog.String("event", "session.save"),
			slog.Int64("user_id", userID),
			slog.String("state_id", stateID),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("session save: %w", err)
	}
	logger.SES.Debug("session saved",
		slog.String("event", "session.save"),
		slog.Int64("user_id", userID),
		slog.String("state_id", stateID),
		slog.Int("bytes", len(blob)),
		slog.Duration("duration", logger.RoundMS(time.Since(start))),
	)
	return nil
}

// Reset deletes the blob for the (user, state) pair. Deleting a missing row
// is not an error.
func (s *PostgresStore) Reset(ctx context.Context, userID int64, stateID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_sessions WHERE user_id = $1 AND state_id = $2`,
		userID, stateID,
	)
	if err != nil {
		logger.SES.Error("session reset failed",
			slog.String("event", "session.reset"),
			slog.Int64("user_id", userID),
			slog.String("state_id", stateID),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("session reset: %w", err)
	}
	return nil
}

// ResetAll deletes every session of the user.
func (s *PostgresStore) ResetAll(ctx context.Context, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_sessions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		logger.SES.Error("session reset all failed",
			slog.String("event", "session.reset_all"),
			slog.Int64("user_id", userID),
			slog.String("err", err.Error()),
		)
		return fmt.Errorf("session reset all: %w", err)
	}
	if rows, rowsErr := res.RowsAffected(); rowsErr == nil && rows > 0 {
		logger.SES.Debug("sessions cleared",
			slog.String("event", "session.reset_all"),
			slog.Int64("user_id", userID),
			slog.Int64("rows", rows),
		)
	}
	return nil
}
