package service

import (
	"context"
	"time"

	"parkhere/internal/apperrors"
	"parkhere/internal/db"
	"parkhere/internal/entities"

	"github.com/sirupsen/logrus"
)

// SessionStore is the slot ledger. Reserve and release are atomic: either
// the counter moves and the session row changes together, or nothing does.
type SessionStore interface {
	ReserveSlot(ctx context.Context, userID, vehicleID, locationID string) (*db.ParkingSession, error)
	ReleaseSlot(ctx context.Context, sessionID, userID string) (*db.ParkingSession, error)
	ActiveSession(ctx context.Context, userID string) (*db.ParkingSession, error)
	ListSessions(ctx context.Context, userID string) ([]db.ParkingSession, error)
	RecordFee(ctx context.Context, sessionID string, feeCents int64) error
	AttachCheckout(ctx context.Context, sessionID, checkoutSessionID string) error
	SessionByCheckoutID(ctx context.Context, checkoutSessionID string) (*db.ParkingSession, error)
	MarkPaid(ctx context.Context, sessionID string) error
}

type LocationStore interface {
	Location(ctx context.Context, id string) (*db.ParkingLocation, error)
	Availability(ctx context.Context, locationID string, category db.Category) (*db.CapacityBucket, error)
}

type UserStore interface {
	User(ctx context.Context, id string) (*db.User, error)
	UserByEmail(ctx context.Context, email string) (*db.User, error)
}

type CheckoutClient interface {
	CreateCheckoutSession(amountCents int64, currency, description, customerEmail string) (url, id string, err error)
}

type ReceiptSender interface {
	SendReceiptEmail(user db.User, sess db.ParkingSession, locationName string)
	SendReceiptSMS(user db.User, sess db.ParkingSession, locationName string)
}

type SessionService struct {
	store     SessionStore
	locations LocationStore
	users     UserStore
	checkout  CheckoutClient
	sender    ReceiptSender
}

func NewSessionService(store SessionStore, locations LocationStore, users UserStore, checkout CheckoutClient, sender ReceiptSender) *SessionService {
	return &SessionService{
		store:     store,
		locations: locations,
		users:     users,
		checkout:  checkout,
		sender:    sender,
	}
}

// StartSession reserves one slot of the vehicle's category at the location
// and returns the new active session. All failure modes leave the ledger
// untouched.
func (s *SessionService) StartSession(ctx context.Context, userID, vehicleID, locationID string) (*entities.SessionResponse, error) {
	if userID == "" {
		return nil, apperrors.Unauthorized("not authenticated")
	}
	if vehicleID == "" || locationID == "" {
		return nil, apperrors.InvalidArgument("vehicle_id and location_id are required")
	}

	sess, err := s.store.ReserveSlot(ctx, userID, vehicleID, locationID)
	if err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"session_id":  sess.ID,
		"user_id":     sess.UserID,
		"location_id": sess.LocationID,
		"category":    sess.Category,
	}).Info("parking session started")
	return entities.NewSessionResponse(sess), nil
}

// EndSession releases the slot, computes the fee from the location's hourly
// price, opens a checkout for it and fires the receipt notifications.
// Only the release itself is transactional; fee, checkout and notifications
// are follow-ups on an already-completed session.
func (s *SessionService) EndSession(ctx context.Context, userID, sessionID string) (*entities.ReceiptResponse, error) {
	if sessionID == "" {
		return nil, apperrors.InvalidArgument("session id is required")
	}

	sess, err := s.store.ReleaseSlot(ctx, sessionID, userID)
	if err != nil {
		return nil, err
	}

	location, err := s.locations.Location(ctx, sess.LocationID)
	if err != nil {
		return nil, err
	}

	endedAt := time.Now().UTC()
	if sess.EndedAt != nil {
		endedAt = *sess.EndedAt
	}
	fee := FeeCents(location.PricePerHourCents, sess.StartedAt, endedAt)
	sess.FeeCents = fee
	if err := s.store.RecordFee(ctx, sess.ID, fee); err != nil {
		logrus.WithError(err).WithField("session_id", sess.ID).Error("failed to record session fee")
	}

	receipt := &entities.ReceiptResponse{
		Session:      *entities.NewSessionResponse(sess),
		LocationName: location.Name,
		FeeCents:     fee,
	}

	user, err := s.users.User(ctx, sess.UserID)
	if err != nil {
		logrus.WithError(err).WithField("session_id", sess.ID).Error("failed to load user for receipt")
		return receipt, nil
	}

	if s.checkout != nil && fee > 0 {
		url, checkoutID, err := s.checkout.CreateCheckoutSession(
			fee, "usd", "ParkHere parking fee, session "+sess.ID, user.Email)
		if err != nil {
			logrus.WithError(err).WithField("session_id", sess.ID).Error("failed to create checkout session")
		} else {
			receipt.CheckoutURL = url
			sess.CheckoutSessionID = checkoutID
			if err := s.store.AttachCheckout(ctx, sess.ID, checkoutID); err != nil {
				logrus.WithError(err).WithField("session_id", sess.ID).Error("failed to attach checkout session")
			}
		}
	}

	if s.sender != nil {
		go s.sender.SendReceiptEmail(*user, *sess, location.Name)
		go s.sender.SendReceiptSMS(*user, *sess, location.Name)
	}

	logrus.WithFields(logrus.Fields{
		"session_id":  sess.ID,
		"user_id":     sess.UserID,
		"location_id": sess.LocationID,
		"fee_cents":   fee,
	}).Info("parking session completed")
	return receipt, nil
}

// ActiveSession reflects the latest committed state; callers that timed out
// on a start call re-query this instead of blindly retrying.
func (s *SessionService) ActiveSession(ctx context.Context, userID string) (*entities.SessionResponse, error) {
	sess, err := s.store.ActiveSession(ctx, userID)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return nil, nil
	}
	return entities.NewSessionResponse(sess), nil
}

func (s *SessionService) ListSessions(ctx context.Context, userID string) ([]entities.SessionResponse, error) {
	sessions, err := s.store.ListSessions(ctx, userID)
	if err != nil {
		return nil, err
	}
	responses := make([]entities.SessionResponse, 0, len(sessions))
	for i := range sessions {
		responses = append(responses, *entities.NewSessionResponse(&sessions[i]))
	}
	return responses, nil
}

func (s *SessionService) LocationAvailability(ctx context.Context, locationID, categoryStr string) (*entities.AvailabilityResponse, error) {
	category, err := db.ParseCategory(categoryStr)
	if err != nil {
		return nil, apperrors.InvalidArgument(err.Error())
	}
	bucket, err := s.locations.Availability(ctx, locationID, category)
	if err != nil {
		return nil, err
	}
	return &entities.AvailabilityResponse{
		LocationID: locationID,
		Category:   string(category),
		Available:  bucket.Available,
		Total:      bucket.Total,
	}, nil
}

// MarkPaidByCheckoutID is called from the payment webhook.
func (s *SessionService) MarkPaidByCheckoutID(ctx context.Context, checkoutSessionID string) error {
	sess, err := s.store.SessionByCheckoutID(ctx, checkoutSessionID)
	if err != nil {
		return err
	}
	if err := s.store.MarkPaid(ctx, sess.ID); err != nil {
		return err
	}
	logrus.WithField("session_id", sess.ID).Info("parking fee paid")
	return nil
}

// FeeCents charges whole hours, rounded up, minimum one hour.
func FeeCents(pricePerHourCents int64, start, end time.Time) int64 {
	if !end.After(start) {
		return pricePerHourCents
	}
	hours := int64(end.Sub(start) / time.Hour)
	if end.Sub(start)%time.Hour != 0 {
		hours++
	}
	if hours == 0 {
		hours = 1
	}
	return pricePerHourCents * hours
}
