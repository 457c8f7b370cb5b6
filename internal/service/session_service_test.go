package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"parkhere/internal/apperrors"
	"parkhere/internal/db"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLedger is an in-memory slot ledger with the same atomicity contract
// as the Postgres repository: every reserve/release is one critical
// section, so concurrent callers serialize exactly as transactions do.
type fakeLedger struct {
	mu        sync.Mutex
	vehicles  map[string]db.Vehicle
	locations map[string]*db.ParkingLocation
	sessions  map[string]*db.ParkingSession
	users     map[string]db.User
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		vehicles:  make(map[string]db.Vehicle),
		locations: make(map[string]*db.ParkingLocation),
		sessions:  make(map[string]*db.ParkingSession),
		users:     make(map[string]db.User),
	}
}

func (f *fakeLedger) addUser(id string) {
	f.users[id] = db.User{ID: id, Email: id + "@example.com", Name: id, Phone: "+15550000000"}
}

func (f *fakeLedger) addVehicle(id, ownerID string, category db.Category) {
	f.vehicles[id] = db.Vehicle{ID: id, OwnerID: ownerID, Category: category, Plate: "ABC-" + id}
}

func (f *fakeLedger) addLocation(id string, priceCents int64, capacity map[db.Category]db.CapacityBucket) {
	f.locations[id] = &db.ParkingLocation{
		ID:                id,
		Name:              "Location " + id,
		PricePerHourCents: priceCents,
		Capacity:          capacity,
	}
}

func (f *fakeLedger) ReserveSlot(ctx context.Context, userID, vehicleID, locationID string) (*db.ParkingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	vehicle, ok := f.vehicles[vehicleID]
	if !ok || vehicle.OwnerID != userID {
		return nil, apperrors.NotFound("vehicle")
	}
	for _, sess := range f.sessions {
		if sess.UserID == userID && sess.Status == db.SessionActive {
			return nil, apperrors.SessionAlreadyActive(sess.ID)
		}
	}
	location, ok := f.locations[locationID]
	if !ok {
		return nil, apperrors.NotFound("location")
	}
	bucket, ok := location.Capacity[vehicle.Category]
	if !ok {
		return nil, apperrors.NotFound("capacity")
	}
	if bucket.Available <= 0 {
		return nil, apperrors.SlotUnavailable(locationID, string(vehicle.Category))
	}
	bucket.Available--
	location.Capacity[vehicle.Category] = bucket

	now := time.Now().UTC()
	sess := &db.ParkingSession{
		ID:            uuid.NewString(),
		UserID:        userID,
		VehicleID:     vehicleID,
		LocationID:    locationID,
		Category:      vehicle.Category,
		Status:        db.SessionActive,
		StartedAt:     now,
		PaymentStatus: db.PaymentPending,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	f.sessions[sess.ID] = sess
	copied := *sess
	return &copied, nil
}

func (f *fakeLedger) ReleaseSlot(ctx context.Context, sessionID, userID string) (*db.ParkingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	sess, ok := f.sessions[sessionID]
	if !ok {
		return nil, apperrors.InvalidSessionState(sessionID, "no such session")
	}
	if userID != "" && sess.UserID != userID {
		return nil, apperrors.Unauthorized("session belongs to another user")
	}
	if sess.Status != db.SessionActive {
		return nil, apperrors.InvalidSessionState(sessionID, "already completed")
	}

	now := time.Now().UTC()
	sess.Status = db.SessionCompleted
	sess.EndedAt = &now

	location := f.locations[sess.LocationID]
	bucket := location.Capacity[sess.Category]
	if bucket.Available < bucket.Total {
		bucket.Available++
		location.Capacity[sess.Category] = bucket
	}
	copied := *sess
	return &copied, nil
}

func (f *fakeLedger) ActiveSession(ctx context.Context, userID string) (*db.ParkingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sess := range f.sessions {
		if sess.UserID == userID && sess.Status == db.SessionActive {
			copied := *sess
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeLedger) ListSessions(ctx context.Context, userID string) ([]db.ParkingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var sessions []db.ParkingSession
	for _, sess := range f.sessions {
		if sess.UserID == userID {
			sessions = append(sessions, *sess)
		}
	}
	return sessions, nil
}

func (f *fakeLedger) RecordFee(ctx context.Context, sessionID string, feeCents int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[sessionID]
	if !ok {
		return apperrors.NotFound("session")
	}
	sess.FeeCents = feeCents
	return nil
}

func (f *fakeLedger) AttachCheckout(ctx context.Context, sessionID, checkoutSessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[sessionID]
	if !ok {
		return apperrors.NotFound("session")
	}
	sess.CheckoutSessionID = checkoutSessionID
	return nil
}

func (f *fakeLedger) SessionByCheckoutID(ctx context.Context, checkoutSessionID string) (*db.ParkingSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, sess := range f.sessions {
		if sess.CheckoutSessionID == checkoutSessionID {
			copied := *sess
			return &copied, nil
		}
	}
	return nil, apperrors.NotFound("session")
}

func (f *fakeLedger) MarkPaid(ctx context.Context, sessionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	sess, ok := f.sessions[sessionID]
	if !ok {
		return apperrors.NotFound("session")
	}
	sess.PaymentStatus = db.PaymentSucceeded
	return nil
}

func (f *fakeLedger) Location(ctx context.Context, id string) (*db.ParkingLocation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	location, ok := f.locations[id]
	if !ok {
		return nil, apperrors.NotFound("location")
	}
	copied := *location
	return &copied, nil
}

func (f *fakeLedger) Availability(ctx context.Context, locationID string, category db.Category) (*db.CapacityBucket, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	location, ok := f.locations[locationID]
	if !ok {
		return nil, apperrors.NotFound("location")
	}
	bucket, ok := location.Capacity[category]
	if !ok {
		return nil, apperrors.NotFound("capacity")
	}
	copied := bucket
	return &copied, nil
}

func (f *fakeLedger) User(ctx context.Context, id string) (*db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return nil, apperrors.NotFound("user")
	}
	return &user, nil
}

func (f *fakeLedger) UserByEmail(ctx context.Context, email string) (*db.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.Email == email {
			return &user, nil
		}
	}
	return nil, apperrors.NotFound("user")
}

// activeCount and checkConservation verify available + active == total
// for one bucket.
func (f *fakeLedger) activeCount(locationID string, category db.Category) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, sess := range f.sessions {
		if sess.LocationID == locationID && sess.Category == category && sess.Status == db.SessionActive {
			count++
		}
	}
	return count
}

func checkConservation(t *testing.T, f *fakeLedger, locationID string, category db.Category) {
	t.Helper()
	active := f.activeCount(locationID, category)
	bucket, err := f.Availability(context.Background(), locationID, category)
	require.NoError(t, err)
	assert.Equal(t, bucket.Total, bucket.Available+active,
		"available + active sessions must equal total")
}

type recordingSender struct {
	mu     sync.Mutex
	emails []string
	sms    []string
}

func (r *recordingSender) SendReceiptEmail(user db.User, sess db.ParkingSession, locationName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.emails = append(r.emails, sess.ID)
}

func (r *recordingSender) SendReceiptSMS(user db.User, sess db.ParkingSession, locationName string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sms = append(r.sms, sess.ID)
}

func (r *recordingSender) emailCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.emails)
}

type fakeCheckout struct {
	mu      sync.Mutex
	amounts []int64
}

func (c *fakeCheckout) CreateCheckoutSession(amountCents int64, currency, description, customerEmail string) (string, string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.amounts = append(c.amounts, amountCents)
	id := fmt.Sprintf("cs_test_%d", len(c.amounts))
	return "https://checkout.example.com/" + id, id, nil
}

func newTestService(ledger *fakeLedger) (*SessionService, *fakeCheckout, *recordingSender) {
	checkout := &fakeCheckout{}
	sender := &recordingSender{}
	return NewSessionService(ledger, ledger, ledger, checkout, sender), checkout, sender
}

func TestStartSession(t *testing.T) {
	ctx := context.Background()

	t.Run("reserves a slot and returns an active session", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.addUser("u1")
		ledger.addVehicle("v1", "u1", db.CategoryCar)
		ledger.addLocation("l1", 500, map[db.Category]db.CapacityBucket{
			db.CategoryCar: {Total: 10, Available: 10},
		})
		svc, _, _ := newTestService(ledger)

		sess, err := svc.StartSession(ctx, "u1", "v1", "l1")
		require.NoError(t, err)
		assert.NotEmpty(t, sess.ID)
		assert.Equal(t, "active", sess.Status)
		assert.Equal(t, "car", sess.Category)
		assert.False(t, sess.StartedAt.IsZero())

		bucket, err := ledger.Availability(ctx, "l1", db.CategoryCar)
		require.NoError(t, err)
		assert.Equal(t, 9, bucket.Available)
		checkConservation(t, ledger, "l1", db.CategoryCar)
	})

	t.Run("unknown vehicle fails with NotFound and no mutation", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.addUser("u1")
		ledger.addLocation("l1", 500, map[db.Category]db.CapacityBucket{
			db.CategoryCar: {Total: 3, Available: 3},
		})
		svc, _, _ := newTestService(ledger)

		_, err := svc.StartSession(ctx, "u1", "ghost", "l1")
		assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))

		bucket, _ := ledger.Availability(ctx, "l1", db.CategoryCar)
		assert.Equal(t, 3, bucket.Available)
		sessions, _ := ledger.ListSessions(ctx, "u1")
		assert.Empty(t, sessions)
	})

	t.Run("someone else's vehicle fails with NotFound", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.addUser("u1")
		ledger.addUser("u2")
		ledger.addVehicle("v2", "u2", db.CategoryCar)
		ledger.addLocation("l1", 500, map[db.Category]db.CapacityBucket{
			db.CategoryCar: {Total: 3, Available: 3},
		})
		svc, _, _ := newTestService(ledger)

		_, err := svc.StartSession(ctx, "u1", "v2", "l1")
		assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	})

	t.Run("unknown location fails with NotFound", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.addUser("u1")
		ledger.addVehicle("v1", "u1", db.CategoryCar)
		svc, _, _ := newTestService(ledger)

		_, err := svc.StartSession(ctx, "u1", "v1", "nowhere")
		assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	})

	t.Run("missing capacity bucket fails with NotFound", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.addUser("u1")
		ledger.addVehicle("m1", "u1", db.CategoryMotorcycle)
		ledger.addLocation("l1", 500, map[db.Category]db.CapacityBucket{
			db.CategoryCar: {Total: 3, Available: 3},
		})
		svc, _, _ := newTestService(ledger)

		_, err := svc.StartSession(ctx, "u1", "m1", "l1")
		assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
	})

	t.Run("second session for same user fails with SessionAlreadyActive and leaves other location untouched", func(t *testing.T) {
		ledger := newFakeLedger()
		ledger.addUser("u1")
		ledger.addVehicle("v1", "u1", db.CategoryCar)
		ledger.addLocation("x", 500, map[db.Category]db.CapacityBucket{
			db.CategoryCar: {Total: 5, Available: 5},
		})
		ledger.addLocation("y", 500, map[db.Category]db.CapacityBucket{
			db.CategoryCar: {Total: 5, Available: 5},
		})
		svc, _, _ := newTestService(ledger)

		_, err := svc.StartSession(ctx, "u1", "v1", "x")
		require.NoError(t, err)

		_, err = svc.StartSession(ctx, "u1", "v1", "y")
		assert.True(t, apperrors.IsKind(err, apperrors.KindSessionAlreadyActive))

		bucket, _ := ledger.Availability(ctx, "y", db.CategoryCar)
		assert.Equal(t, 5, bucket.Available, "location y counters must be unchanged")
	})
}

func TestNoOversell(t *testing.T) {
	ctx := context.Background()
	const total = 5
	const callers = 20

	ledger := newFakeLedger()
	ledger.addLocation("l1", 500, map[db.Category]db.CapacityBucket{
		db.CategoryCar: {Total: total, Available: total},
	})
	for i := 0; i < callers; i++ {
		userID := fmt.Sprintf("u%d", i)
		ledger.addUser(userID)
		ledger.addVehicle(fmt.Sprintf("v%d", i), userID, db.CategoryCar)
	}
	svc, _, _ := newTestService(ledger)

	var wg sync.WaitGroup
	results := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.StartSession(ctx, fmt.Sprintf("u%d", i), fmt.Sprintf("v%d", i), "l1")
		}(i)
	}
	wg.Wait()

	succeeded, unavailable := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case apperrors.IsKind(err, apperrors.KindSlotUnavailable):
			unavailable++
		default:
			t.Fatalf("unexpected error kind: %v", err)
		}
	}
	assert.Equal(t, total, succeeded, "exactly one caller wins each slot")
	assert.Equal(t, callers-total, unavailable)

	bucket, _ := ledger.Availability(ctx, "l1", db.CategoryCar)
	assert.Equal(t, 0, bucket.Available)
	checkConservation(t, ledger, "l1", db.CategoryCar)
}

func TestSingleActiveSessionUnderConcurrency(t *testing.T) {
	ctx := context.Background()

	ledger := newFakeLedger()
	ledger.addUser("u1")
	ledger.addVehicle("v1", "u1", db.CategoryCar)
	ledger.addLocation("l1", 500, map[db.Category]db.CapacityBucket{
		db.CategoryCar: {Total: 10, Available: 10},
	})
	svc, _, _ := newTestService(ledger)

	const attempts = 10
	var wg sync.WaitGroup
	results := make([]error, attempts)
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.StartSession(ctx, "u1", "v1", "l1")
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
		} else {
			assert.True(t, apperrors.IsKind(err, apperrors.KindSessionAlreadyActive))
		}
	}
	assert.Equal(t, 1, succeeded, "a user never holds two active sessions")
	checkConservation(t, ledger, "l1", db.CategoryCar)
}

func TestLastSlotScenario(t *testing.T) {
	// Location L, car bucket {available: 1, total: 10}. A wins the last
	// slot, B fails, A releases, B retries and wins.
	ctx := context.Background()

	ledger := newFakeLedger()
	ledger.addUser("a")
	ledger.addUser("b")
	ledger.addVehicle("va", "a", db.CategoryCar)
	ledger.addVehicle("vb", "b", db.CategoryCar)
	ledger.addLocation("l", 500, map[db.Category]db.CapacityBucket{
		db.CategoryCar: {Total: 10, Available: 1},
	})
	svc, _, _ := newTestService(ledger)

	sessA, err := svc.StartSession(ctx, "a", "va", "l")
	require.NoError(t, err)
	bucket, _ := ledger.Availability(ctx, "l", db.CategoryCar)
	assert.Equal(t, 0, bucket.Available)

	_, err = svc.StartSession(ctx, "b", "vb", "l")
	assert.True(t, apperrors.IsKind(err, apperrors.KindSlotUnavailable))

	_, err = svc.EndSession(ctx, "a", sessA.ID)
	require.NoError(t, err)
	bucket, _ = ledger.Availability(ctx, "l", db.CategoryCar)
	assert.Equal(t, 1, bucket.Available)

	_, err = svc.StartSession(ctx, "b", "vb", "l")
	assert.NoError(t, err)
	checkConservation(t, ledger, "l", db.CategoryCar)
}

func TestEndSession(t *testing.T) {
	ctx := context.Background()

	setup := func() (*SessionService, *fakeLedger, *fakeCheckout, *recordingSender, string) {
		ledger := newFakeLedger()
		ledger.addUser("u1")
		ledger.addVehicle("v1", "u1", db.CategoryCar)
		ledger.addLocation("l1", 500, map[db.Category]db.CapacityBucket{
			db.CategoryCar: {Total: 4, Available: 4},
		})
		svc, checkout, sender := newTestService(ledger)
		sess, err := svc.StartSession(ctx, "u1", "v1", "l1")
		require.NoError(t, err)
		return svc, ledger, checkout, sender, sess.ID
	}

	t.Run("completes the session, returns the slot and charges the fee", func(t *testing.T) {
		svc, ledger, checkout, sender, sessionID := setup()

		receipt, err := svc.EndSession(ctx, "u1", sessionID)
		require.NoError(t, err)
		assert.Equal(t, "completed", receipt.Session.Status)
		assert.NotNil(t, receipt.Session.EndedAt)
		assert.Equal(t, int64(500), receipt.FeeCents, "sub-hour session charges one hour")
		assert.NotEmpty(t, receipt.CheckoutURL)

		bucket, _ := ledger.Availability(ctx, "l1", db.CategoryCar)
		assert.Equal(t, 4, bucket.Available)
		checkConservation(t, ledger, "l1", db.CategoryCar)

		checkout.mu.Lock()
		assert.Equal(t, []int64{500}, checkout.amounts)
		checkout.mu.Unlock()

		assert.Eventually(t, func() bool { return sender.emailCount() == 1 },
			time.Second, 10*time.Millisecond, "receipt email goes out")
	})

	t.Run("release is idempotent-safe", func(t *testing.T) {
		svc, ledger, _, _, sessionID := setup()

		_, err := svc.EndSession(ctx, "u1", sessionID)
		require.NoError(t, err)
		_, err = svc.EndSession(ctx, "u1", sessionID)
		assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidSessionState))

		bucket, _ := ledger.Availability(ctx, "l1", db.CategoryCar)
		assert.Equal(t, 4, bucket.Available, "slot returned exactly once")
	})

	t.Run("unknown session fails with InvalidSessionState", func(t *testing.T) {
		svc, _, _, _, _ := setup()
		_, err := svc.EndSession(ctx, "u1", "no-such-session")
		assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidSessionState))
	})

	t.Run("other user's session is rejected", func(t *testing.T) {
		svc, ledger, _, _, sessionID := setup()
		ledger.addUser("intruder")

		_, err := svc.EndSession(ctx, "intruder", sessionID)
		assert.True(t, apperrors.IsKind(err, apperrors.KindUnauthorized))

		bucket, _ := ledger.Availability(ctx, "l1", db.CategoryCar)
		assert.Equal(t, 3, bucket.Available, "no slot returned on rejected release")
	})
}

func TestActiveSession(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	ledger.addUser("u1")
	ledger.addVehicle("v1", "u1", db.CategoryMotorcycle)
	ledger.addLocation("l1", 300, map[db.Category]db.CapacityBucket{
		db.CategoryMotorcycle: {Total: 2, Available: 2},
	})
	svc, _, _ := newTestService(ledger)

	sess, err := svc.ActiveSession(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, sess, "no active session before start")

	started, err := svc.StartSession(ctx, "u1", "v1", "l1")
	require.NoError(t, err)

	sess, err = svc.ActiveSession(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, sess)
	assert.Equal(t, started.ID, sess.ID)

	_, err = svc.EndSession(ctx, "u1", started.ID)
	require.NoError(t, err)

	sess, err = svc.ActiveSession(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, sess, "no active session after release")
}

func TestLocationAvailability(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	ledger.addLocation("l1", 300, map[db.Category]db.CapacityBucket{
		db.CategoryCar: {Total: 7, Available: 4},
	})
	svc, _, _ := newTestService(ledger)

	availability, err := svc.LocationAvailability(ctx, "l1", "car")
	require.NoError(t, err)
	assert.Equal(t, 4, availability.Available)
	assert.Equal(t, 7, availability.Total)

	_, err = svc.LocationAvailability(ctx, "l1", "spaceship")
	assert.True(t, apperrors.IsKind(err, apperrors.KindInvalidArgument))

	_, err = svc.LocationAvailability(ctx, "l1", "motorcycle")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestMarkPaidByCheckoutID(t *testing.T) {
	ctx := context.Background()
	ledger := newFakeLedger()
	ledger.addUser("u1")
	ledger.addVehicle("v1", "u1", db.CategoryCar)
	ledger.addLocation("l1", 500, map[db.Category]db.CapacityBucket{
		db.CategoryCar: {Total: 1, Available: 1},
	})
	svc, _, _ := newTestService(ledger)

	sess, err := svc.StartSession(ctx, "u1", "v1", "l1")
	require.NoError(t, err)
	_, err = svc.EndSession(ctx, "u1", sess.ID)
	require.NoError(t, err)

	stored := ledger.sessions[sess.ID]
	require.NotEmpty(t, stored.CheckoutSessionID)

	require.NoError(t, svc.MarkPaidByCheckoutID(ctx, stored.CheckoutSessionID))
	assert.Equal(t, db.PaymentSucceeded, ledger.sessions[sess.ID].PaymentStatus)

	err = svc.MarkPaidByCheckoutID(ctx, "cs_unknown")
	assert.True(t, apperrors.IsKind(err, apperrors.KindNotFound))
}

func TestFeeCents(t *testing.T) {
	base := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		duration time.Duration
		want     int64
	}{
		{"thirty minutes charges one hour", 30 * time.Minute, 500},
		{"exactly one hour", time.Hour, 500},
		{"an hour and a minute rounds up", 61 * time.Minute, 1000},
		{"two hours", 2 * time.Hour, 1000},
		{"zero duration charges the minimum", 0, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FeeCents(500, base, base.Add(tt.duration)))
		})
	}
}
