package entities

// AvailabilityResponse is an advisory snapshot of one capacity bucket.
// Availability can change between this read and a reserve call; the
// authoritative check happens inside the reserve transaction.
type AvailabilityResponse struct {
	LocationID string `json:"location_id"`
	Category   string `json:"category"`
	Available  int    `json:"available"`
	Total      int    `json:"total"`
}
