package repository

import (
	"context"
	"database/sql"
	"time"

	"parkhere/internal/db"
)

type JobRepository struct {
	DB *sql.DB
}

func NewJobRepository(database *sql.DB) *JobRepository {
	return &JobRepository{DB: database}
}

// StaleActiveSessions returns sessions that have been active since before
// the cutoff. Sessions have no expiry, so a client that never releases
// holds its slot indefinitely; the watchdog surfaces those.
func (r *JobRepository) StaleActiveSessions(ctx context.Context, cutoff time.Time) ([]db.ParkingSession, error) {
	rows, err := r.DB.QueryContext(ctx,
		sessionSelect+` WHERE status = 'active' AND started_at < $1 ORDER BY started_at`,
		cutoff,
	)
	if err != nil {
		return nil, translateDBError(err)
	}
	defer rows.Close()

	var sessions []db.ParkingSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, translateDBError(err)
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, translateDBError(err)
	}
	return sessions, nil
}
