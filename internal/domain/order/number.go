package order

import (
	"encoding/base32"
	"time"

	"github.com/google/uuid"
)

var numberEncoding = base32.StdEncoding.WithPadding(base32.NoPadding)

// NewNumber returns an external order identifier: the order date followed by
// ten random base32 characters, e.g. 20250615-K3QZ7M2XW4.
func NewNumber(now time.Time) string {
	u := uuid.New()
	return now.Format("20060102") + "-" + numberEncoding.EncodeToString(u[:8])[:10]
}
