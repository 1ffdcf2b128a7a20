package id

import (
	"fmt"

	"github.com/google/uuid"
)

func Generate() string {
	return uuid.New().String()
}

// NewReference builds a ledger reference like "fund-<uuid>". References are
// unique per transaction and stable across the gateway round trip.
func NewReference(prefix string) string {
	return fmt.Sprintf("%s-%s", prefix, uuid.New().String())
}

func IsValidUUID(id string) (uuid.UUID, error) {
	return uuid.Parse(id)
}
