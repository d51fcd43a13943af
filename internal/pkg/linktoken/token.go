package linktoken

import (
	"crypto/rand"
	"encoding/hex"
	"time"
)

// New mints an unguessable share-link token: 128 bits from crypto/rand,
// hex-encoded. Uniqueness across shares is enforced by the database index;
// this only guarantees the value is unpredictable.
func New() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

// ExpiryFrom computes an absolute link expiry from a requested duration in
// hours. A nil or non-positive request yields a non-expiring link (nil).
func ExpiryFrom(now time.Time, expiresInHours *int) *time.Time {
	if expiresInHours == nil || *expiresInHours <= 0 {
		return nil
	}
	t := now.Add(time.Duration(*expiresInHours) * time.Hour)
	return &t
}
