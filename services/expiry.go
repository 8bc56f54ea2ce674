package services

import "time"

// DefaultLifespan is how long a post stays Live.
const DefaultLifespan = 500 * time.Minute

// ExpiryPolicy decides when posts expire. It has no state beyond the lifespan.
type ExpiryPolicy struct {
	Lifespan time.Duration
}

// NewExpiryPolicy falls back to DefaultLifespan for non-positive values.
func NewExpiryPolicy(lifespan time.Duration) ExpiryPolicy {
	if lifespan <= 0 {
		lifespan = DefaultLifespan
	}
	return ExpiryPolicy{Lifespan: lifespan}
}

// ComputeExpiry returns the expiry timestamp for a post created at createdAt.
func (p ExpiryPolicy) ComputeExpiry(createdAt time.Time) time.Time {
	return createdAt.Add(p.Lifespan)
}

// IsExpired reports now >= expiresAt.
func (p ExpiryPolicy) IsExpired(now, expiresAt time.Time) bool {
	return !now.Before(expiresAt)
}
