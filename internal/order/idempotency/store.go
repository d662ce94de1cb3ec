package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// DefaultTTL applies when a caller passes a non-positive ttl.
const DefaultTTL = 24 * time.Hour

type status string

const (
	statusPending   status = "pending"
	statusCompleted status = "completed"
)

type record struct {
	Status      status    `json:"status"`
	Fingerprint string    `json:"fingerprint"`
	OrderID     string    `json:"orderId,omitempty"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

func hashKey(key string) string {
	sum := sha256.Sum256([]byte(strings.TrimSpace(key)))
	return hex.EncodeToString(sum[:])
}

func ttlOrDefault(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return DefaultTTL
	}
	return ttl
}
