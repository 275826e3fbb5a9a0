package models

import (
	"strings"

	id "sanad/pkg/domain"
	dErrors "sanad/pkg/domain-errors"
)

// IssuanceState tracks a certificate request through issuance.
type IssuanceState string

const (
	StateValidating          IssuanceState = "validating"
	StateCheckingDuplicates  IssuanceState = "checking_duplicates"
	StateDecrementingBalance IssuanceState = "decrementing_balance"
	StatePersisting          IssuanceState = "persisting"
	StateDone                IssuanceState = "done"
	StateRejected            IssuanceState = "rejected"
)

// MaxCottageListLength bounds the stored cottage list.
const MaxCottageListLength = 2048

// IssueCertificateRequest asks for value to be drawn from a policy.
// CompanyName is optional; when set it must match the policy's company.
type IssueCertificateRequest struct {
	CompanyName    string
	PolicyID       id.PolicyID
	SanadDate      string
	CottageNumbers string
	Count          int
	Value          int64
}

// Normalize trims free-text fields in place.
func (r *IssueCertificateRequest) Normalize() {
	r.CompanyName = strings.TrimSpace(r.CompanyName)
	r.SanadDate = strings.TrimSpace(r.SanadDate)
	r.CottageNumbers = strings.TrimSpace(r.CottageNumbers)
}

// Validate checks the request shape. It never touches storage.
func (r *IssueCertificateRequest) Validate() error {
	switch {
	case r.CottageNumbers == "":
		return dErrors.New(dErrors.CodeInvalidInput, "cottage numbers are required")
	case len(r.CottageNumbers) > MaxCottageListLength:
		return dErrors.New(dErrors.CodeInvalidInput, "cottage numbers are too long")
	case r.Value <= 0:
		return dErrors.New(dErrors.CodeInvalidInput, "value must be a positive integer")
	case r.Count < 0:
		return dErrors.New(dErrors.CodeInvalidInput, "count must not be negative")
	case r.PolicyID.IsNil():
		return dErrors.New(dErrors.CodeInvalidInput, "a policy must be selected")
	}
	return nil
}

// IssueResult is returned from a successful issuance. DuplicateWarnings lists
// earlier certificates that appear to share cottage numbers; it is advisory.
type IssueResult struct {
	SanadID           id.SanadID   `json:"sanad_id"`
	RemainingAfter    int64        `json:"remaining_after"`
	DuplicateWarnings []id.SanadID `json:"duplicate_warnings"`
	Certificate       *Certificate `json:"certificate"`
}

// CreatePolicyRequest carries the fields of a new policy.
type CreatePolicyRequest struct {
	CompanyName  string
	PolicyNumber string
	PolicyDate   string
	TotalValue   int64
}
