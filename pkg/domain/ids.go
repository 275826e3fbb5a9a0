package domain

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	dErrors "sanad/pkg/domain-errors"
)

// FirstSanadID is the identifier allocated to the very first certificate.
const FirstSanadID SanadID = 4000

// PolicyID identifies a policy. It is opaque to callers.
type PolicyID uuid.UUID

// SanadID identifies an issued certificate. Values are dense and strictly
// increasing from FirstSanadID in issuance order.
type SanadID int64

// NewPolicyID returns a fresh random policy identifier.
func NewPolicyID() PolicyID {
	return PolicyID(uuid.New())
}

func (id PolicyID) String() string {
	return uuid.UUID(id).String()
}

func (id PolicyID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

// MarshalText lets PolicyID serialize as its canonical UUID string.
func (id PolicyID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *PolicyID) UnmarshalText(text []byte) error {
	parsed, err := ParsePolicyID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// ParsePolicyID validates a policy identifier at a trust boundary.
// Empty, malformed and nil UUIDs are rejected with CodeInvalidInput.
func ParsePolicyID(s string) (PolicyID, error) {
	if s == "" {
		return PolicyID{}, dErrors.New(dErrors.CodeInvalidInput, "policy_id is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return PolicyID{}, dErrors.New(dErrors.CodeInvalidInput, "policy_id must be a valid UUID")
	}
	if parsed == uuid.Nil {
		return PolicyID{}, dErrors.New(dErrors.CodeInvalidInput, "policy_id must not be nil")
	}
	return PolicyID(parsed), nil
}

// ParseSanadID parses a decimal certificate identifier. Values below
// FirstSanadID can never have been allocated and are rejected.
func ParseSanadID(s string) (SanadID, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "sanad_id is required")
	}
	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "sanad_id must be an integer")
	}
	if SanadID(n) < FirstSanadID {
		return 0, dErrors.New(dErrors.CodeInvalidInput, "sanad_id must be at least 4000")
	}
	return SanadID(n), nil
}

func (id SanadID) Int64() int64 {
	return int64(id)
}

func (id SanadID) String() string {
	return strconv.FormatInt(int64(id), 10)
}
