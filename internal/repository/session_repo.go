package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"parkhere/internal/apperrors"
	"parkhere/internal/db"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	txAttempts     = 4
	txBackoffStart = 25 * time.Millisecond
)

// SessionRepository owns the slot ledger: location capacity counters and
// parking session records. All mutation goes through ReserveSlot and
// ReleaseSlot, each a single serializable transaction.
type SessionRepository struct {
	DB *sql.DB
}

func NewSessionRepository(database *sql.DB) *SessionRepository {
	return &SessionRepository{DB: database}
}

// ReserveSlot atomically checks the caller has no active session, locks the
// (location, category) capacity row, decrements it and inserts the session.
// Concurrent reservations for the last slot serialize on the row lock; the
// loser observes available = 0 and gets SlotUnavailable. started_at is the
// transaction's commit-side NOW().
func (r *SessionRepository) ReserveSlot(ctx context.Context, userID, vehicleID, locationID string) (*db.ParkingSession, error) {
	var sess *db.ParkingSession

	err := r.withRetry(ctx, func(tx *sql.Tx) error {
		var category db.Category
		err := tx.QueryRowContext(ctx,
			`SELECT category FROM vehicles WHERE id = $1 AND owner_id = $2`,
			vehicleID, userID,
		).Scan(&category)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("vehicle")
		}
		if err != nil {
			return err
		}

		var activeID string
		err = tx.QueryRowContext(ctx,
			`SELECT id FROM parking_sessions WHERE user_id = $1 AND status = 'active'`,
			userID,
		).Scan(&activeID)
		if err == nil {
			return apperrors.SessionAlreadyActive(activeID)
		}
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}

		var locationExists bool
		err = tx.QueryRowContext(ctx,
			`SELECT EXISTS (SELECT 1 FROM parking_locations WHERE id = $1)`,
			locationID,
		).Scan(&locationExists)
		if err != nil {
			return err
		}
		if !locationExists {
			return apperrors.NotFound("location")
		}

		var available, total int
		err = tx.QueryRowContext(ctx,
			`SELECT available, total FROM location_capacity
			 WHERE location_id = $1 AND category = $2
			 FOR UPDATE`,
			locationID, category,
		).Scan(&available, &total)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.NotFound("capacity")
		}
		if err != nil {
			return err
		}
		if available <= 0 {
			return apperrors.SlotUnavailable(locationID, string(category))
		}

		_, err = tx.ExecContext(ctx,
			`UPDATE location_capacity SET available = available - 1
			 WHERE location_id = $1 AND category = $2`,
			locationID, category,
		)
		if err != nil {
			return err
		}

		s := db.ParkingSession{
			ID:            uuid.NewString(),
			UserID:        userID,
			VehicleID:     vehicleID,
			LocationID:    locationID,
			Category:      category,
			Status:        db.SessionActive,
			PaymentStatus: db.PaymentPending,
		}
		err = tx.QueryRowContext(ctx,
			`INSERT INTO parking_sessions
			 (id, user_id, vehicle_id, location_id, category, status, payment_status)
			 VALUES ($1, $2, $3, $4, $5, 'active', $6)
			 RETURNING started_at, created_at, updated_at`,
			s.ID, s.UserID, s.VehicleID, s.LocationID, s.Category, s.PaymentStatus,
		).Scan(&s.StartedAt, &s.CreatedAt, &s.UpdatedAt)
		if err != nil {
			return err
		}
		sess = &s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// ReleaseSlot completes an active session and returns its slot to the
// capacity bucket. Idempotent-safe: a second release of the same session
// fails with InvalidSessionState and does not touch the counter. The
// increment is clamped at total; hitting the clamp means a decrement was
// lost somewhere and is logged as an anomaly.
func (r *SessionRepository) ReleaseSlot(ctx context.Context, sessionID, userID string) (*db.ParkingSession, error) {
	var sess *db.ParkingSession

	err := r.withRetry(ctx, func(tx *sql.Tx) error {
		var s db.ParkingSession
		var endedAt sql.NullTime
		err := tx.QueryRowContext(ctx,
			`SELECT id, user_id, vehicle_id, location_id, category, status,
			        started_at, ended_at, fee_cents, checkout_session_id,
			        payment_status, created_at, updated_at
			 FROM parking_sessions WHERE id = $1
			 FOR UPDATE`,
			sessionID,
		).Scan(
			&s.ID, &s.UserID, &s.VehicleID, &s.LocationID, &s.Category, &s.Status,
			&s.StartedAt, &endedAt, &s.FeeCents, &s.CheckoutSessionID,
			&s.PaymentStatus, &s.CreatedAt, &s.UpdatedAt,
		)
		if errors.Is(err, sql.ErrNoRows) {
			return apperrors.InvalidSessionState(sessionID, "no such session")
		}
		if err != nil {
			return err
		}
		if userID != "" && s.UserID != userID {
			return apperrors.Unauthorized("session belongs to another user")
		}
		if s.Status != db.SessionActive {
			return apperrors.InvalidSessionState(sessionID, "already completed")
		}

		var ended time.Time
		err = tx.QueryRowContext(ctx,
			`UPDATE parking_sessions
			 SET status = 'completed', ended_at = NOW(), updated_at = NOW()
			 WHERE id = $1
			 RETURNING ended_at`,
			sessionID,
		).Scan(&ended)
		if err != nil {
			return err
		}
		s.Status = db.SessionCompleted
		s.EndedAt = &ended

		var available, total int
		err = tx.QueryRowContext(ctx,
			`SELECT available, total FROM location_capacity
			 WHERE location_id = $1 AND category = $2
			 FOR UPDATE`,
			s.LocationID, s.Category,
		).Scan(&available, &total)
		if errors.Is(err, sql.ErrNoRows) {
			logrus.WithFields(logrus.Fields{
				"session_id":  sessionID,
				"location_id": s.LocationID,
				"category":    s.Category,
			}).Warn("release: capacity bucket missing, slot not returned")
			sess = &s
			return nil
		}
		if err != nil {
			return err
		}
		if available >= total {
			logrus.WithFields(logrus.Fields{
				"session_id":  sessionID,
				"location_id": s.LocationID,
				"category":    s.Category,
				"available":   available,
				"total":       total,
			}).Warn("release: available already at total, increment clamped")
		} else {
			_, err = tx.ExecContext(ctx,
				`UPDATE location_capacity SET available = available + 1
				 WHERE location_id = $1 AND category = $2`,
				s.LocationID, s.Category,
			)
			if err != nil {
				return err
			}
		}
		sess = &s
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sess, nil
}

func (r *SessionRepository) ActiveSession(ctx context.Context, userID string) (*db.ParkingSession, error) {
	row := r.DB.QueryRowContext(ctx,
		sessionSelect+` WHERE user_id = $1 AND status = 'active'`, userID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translateDBError(err)
	}
	return sess, nil
}

func (r *SessionRepository) ListSessions(ctx context.Context, userID string) ([]db.ParkingSession, error) {
	rows, err := r.DB.QueryContext(ctx,
		sessionSelect+` WHERE user_id = $1 ORDER BY started_at DESC`, userID)
	if err != nil {
		return nil, translateDBError(err)
	}
	defer rows.Close()

	var sessions []db.ParkingSession
	for rows.Next() {
		sess, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, *sess)
	}
	if err := rows.Err(); err != nil {
		return nil, translateDBError(err)
	}
	return sessions, nil
}

func (r *SessionRepository) RecordFee(ctx context.Context, sessionID string, feeCents int64) error {
	return r.execOnSession(ctx,
		`UPDATE parking_sessions SET fee_cents = $2, updated_at = NOW() WHERE id = $1`,
		sessionID, feeCents)
}

func (r *SessionRepository) AttachCheckout(ctx context.Context, sessionID, checkoutSessionID string) error {
	return r.execOnSession(ctx,
		`UPDATE parking_sessions SET checkout_session_id = $2, updated_at = NOW() WHERE id = $1`,
		sessionID, checkoutSessionID)
}

func (r *SessionRepository) MarkPaid(ctx context.Context, sessionID string) error {
	return r.execOnSession(ctx,
		`UPDATE parking_sessions SET payment_status = 'succeeded', updated_at = NOW() WHERE id = $1`,
		sessionID)
}

func (r *SessionRepository) SessionByCheckoutID(ctx context.Context, checkoutSessionID string) (*db.ParkingSession, error) {
	row := r.DB.QueryRowContext(ctx,
		sessionSelect+` WHERE checkout_session_id = $1`, checkoutSessionID)
	sess, err := scanSession(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperrors.NotFound("session")
	}
	if err != nil {
		return nil, translateDBError(err)
	}
	return sess, nil
}

func (r *SessionRepository) execOnSession(ctx context.Context, query string, args ...interface{}) error {
	result, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return translateDBError(err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return translateDBError(err)
	}
	if n == 0 {
		return apperrors.NotFound("session")
	}
	return nil
}

const sessionSelect = `
	SELECT id, user_id, vehicle_id, location_id, category, status,
	       started_at, ended_at, fee_cents, checkout_session_id,
	       payment_status, created_at, updated_at
	FROM parking_sessions`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSession(row rowScanner) (*db.ParkingSession, error) {
	var s db.ParkingSession
	var endedAt sql.NullTime
	err := row.Scan(
		&s.ID, &s.UserID, &s.VehicleID, &s.LocationID, &s.Category, &s.Status,
		&s.StartedAt, &endedAt, &s.FeeCents, &s.CheckoutSessionID,
		&s.PaymentStatus, &s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if endedAt.Valid {
		t := endedAt.Time
		s.EndedAt = &t
	}
	return &s, nil
}

// withRetry runs fn inside a serializable transaction, retrying the whole
// transaction on serialization or deadlock aborts with doubling backoff.
// Exhausted retries surface as Contention. Tagged errors returned by fn
// abort immediately with no mutation committed.
func (r *SessionRepository) withRetry(ctx context.Context, fn func(tx *sql.Tx) error) error {
	backoff := txBackoffStart
	var lastErr error

	for attempt := 1; attempt <= txAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-ctx.Done():
				return apperrors.BackendUnavailable(ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		err := r.runTx(ctx, fn)
		if err == nil {
			return nil
		}
		if !isSerializationFailure(err) {
			return err
		}
		lastErr = err
		logrus.WithFields(logrus.Fields{
			"attempt": attempt,
			"error":   err,
		}).Debug("slot transaction aborted on conflict, retrying")
	}

	logrus.WithError(lastErr).Warn("slot transaction retries exhausted")
	return apperrors.Contention(lastErr)
}

func (r *SessionRepository) runTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.DB.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return apperrors.BackendUnavailable(err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return translateDBError(err)
	}
	if err := tx.Commit(); err != nil {
		if isSerializationFailure(err) {
			return err
		}
		return apperrors.BackendUnavailable(err)
	}
	return nil
}

// Postgres class 40: 40001 serialization_failure, 40P01 deadlock_detected.
// Both mean the transaction can be retried as-is.
func isSerializationFailure(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// translateDBError keeps tagged and retryable errors as-is and wraps
// everything else as a backend failure so driver errors never leak.
func translateDBError(err error) error {
	if err == nil {
		return nil
	}
	var tagged *apperrors.Error
	if errors.As(err, &tagged) {
		return err
	}
	if isSerializationFailure(err) {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return err
	}
	return apperrors.BackendUnavailable(err)
}
