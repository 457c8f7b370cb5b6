package service

import (
	"context"
	"time"

	"parkhere/internal/db"

	"github.com/sirupsen/logrus"
)

type StaleSessionStore interface {
	StaleActiveSessions(ctx context.Context, cutoff time.Time) ([]db.ParkingSession, error)
}

// JobService runs the periodic session watchdog. Sessions have no expiry,
// so one that is never released holds its slot forever; the watchdog
// reports those without reclaiming them.
type JobService struct {
	store      StaleSessionStore
	staleAfter time.Duration
}

func NewJobService(store StaleSessionStore, staleAfter time.Duration) *JobService {
	if staleAfter <= 0 {
		staleAfter = 24 * time.Hour
	}
	return &JobService{store: store, staleAfter: staleAfter}
}

func (s *JobService) ReportStaleSessions(ctx context.Context) error {
	cutoff := time.Now().Add(-s.staleAfter)
	sessions, err := s.store.StaleActiveSessions(ctx, cutoff)
	if err != nil {
		return err
	}
	if len(sessions) == 0 {
		return nil
	}
	for _, sess := range sessions {
		logrus.WithFields(logrus.Fields{
			"session_id":  sess.ID,
			"user_id":     sess.UserID,
			"location_id": sess.LocationID,
			"category":    sess.Category,
			"started_at":  sess.StartedAt,
		}).Warn("watchdog: session active past threshold, slot still held")
	}
	logrus.WithField("count", len(sessions)).Warn("watchdog: stale active sessions found")
	return nil
}
