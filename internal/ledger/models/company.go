package models

import (
	"strings"
	"time"

	dErrors "sanad/pkg/domain-errors"
)

// MaxNameLength bounds free-text identity fields (company names, policy numbers).
const MaxNameLength = 256

// Company is a known insurer. Its name is the identity key, compared
// case-sensitively; companies are never renamed or deleted.
type Company struct {
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// NewCompany trims name and rejects empty or oversized names.
func NewCompany(name string, now time.Time) (*Company, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "company name is required")
	}
	if len(name) > MaxNameLength {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "company name is too long")
	}
	return &Company{Name: name, CreatedAt: now}, nil
}
