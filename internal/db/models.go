package db

import (
	"fmt"
	"strings"
	"time"
)

// Category partitions parking capacity. Closed set: every capacity bucket
// and every session is keyed by one of these values.
type Category string

const (
	CategoryCar        Category = "car"
	CategoryMotorcycle Category = "motorcycle"
)

func ParseCategory(s string) (Category, error) {
	switch Category(strings.ToLower(strings.TrimSpace(s))) {
	case CategoryCar:
		return CategoryCar, nil
	case CategoryMotorcycle:
		return CategoryMotorcycle, nil
	}
	return "", fmt.Errorf("unknown vehicle category %q", s)
}

func Categories() []Category {
	return []Category{CategoryCar, CategoryMotorcycle}
}

type SessionStatus string

const (
	SessionActive    SessionStatus = "active"
	SessionCompleted SessionStatus = "completed"
)

const (
	PaymentPending   = "pending"
	PaymentSucceeded = "succeeded"
)

type User struct {
	ID           string
	Email        string
	Name         string
	Phone        string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
}

type Vehicle struct {
	ID        string
	OwnerID   string
	Category  Category
	Plate     string
	Color     string
	IsActive  bool
	CreatedAt time.Time
}

// CapacityBucket is one (location, category) slot counter.
// Invariant: 0 <= Available <= Total.
type CapacityBucket struct {
	Total     int
	Available int
}

type ParkingLocation struct {
	ID                string
	Name              string
	Address           string
	Lat               float64
	Lng               float64
	PricePerHourCents int64
	Capacity          map[Category]CapacityBucket
	CreatedAt         time.Time
}

// ParkingSession is one occupancy episode, from slot reservation to release.
// Category is snapshotted from the vehicle at reservation time so the slot
// returns to the right bucket even if the vehicle is edited later.
type ParkingSession struct {
	ID                string
	UserID            string
	VehicleID         string
	LocationID        string
	Category          Category
	Status            SessionStatus
	StartedAt         time.Time
	EndedAt           *time.Time
	FeeCents          int64
	CheckoutSessionID string
	PaymentStatus     string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}
