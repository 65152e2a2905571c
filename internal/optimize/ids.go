package optimize

import (
	"encoding/base64"

	"github.com/google/uuid"
)

// IDGenerator assigns task ids to the tasks that survive optimization.
type IDGenerator interface {
	NewID(label string) string
}

// RandomIDs generates a fresh random slug for every call.
type RandomIDs struct{}

// NewID implements IDGenerator.
func (RandomIDs) NewID(string) string {
	return slug(uuid.New())
}

// SeededIDs derives ids from a seed and the task label, so the same seed
// always produces the same ids.
type SeededIDs struct {
	namespace uuid.UUID
}

// NewSeededIDs returns a generator for seed.
func NewSeededIDs(seed string) SeededIDs {
	return SeededIDs{namespace: uuid.NewSHA1(uuid.NameSpaceURL, []byte(seed))}
}

// NewID implements IDGenerator.
func (s SeededIDs) NewID(label string) string {
	return slug(uuid.NewSHA1(s.namespace, []byte(label)))
}

// slug encodes u as 22 URL-safe base64 characters. The top bit is cleared
// so a slug never starts with '-'.
func slug(u uuid.UUID) string {
	u[0] &= 0x7f
	return base64.RawURLEncoding.EncodeToString(u[:])
}
