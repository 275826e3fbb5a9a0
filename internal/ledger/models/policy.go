package models

import (
	"strings"
	"time"

	id "sanad/pkg/domain"
	dErrors "sanad/pkg/domain-errors"
)

// Policy is a coverage envelope issued to a company.
//
// Invariants:
//   - TotalValue > 0 and never changes
//   - 0 <= RemainingValue <= TotalValue
//   - RemainingValue only decreases, and only through certificate issuance
//   - PolicyDate is an opaque label; it is never parsed
type Policy struct {
	ID             id.PolicyID `json:"id"`
	CompanyName    string      `json:"company_name"`
	PolicyNumber   string      `json:"policy_number"`
	PolicyDate     string      `json:"policy_date"`
	TotalValue     int64       `json:"total_value"`
	RemainingValue int64       `json:"remaining_value"`
	CreatedAt      time.Time   `json:"created_at"`
}

// NewPolicy validates the creation invariants and opens the policy at full balance.
func NewPolicy(policyID id.PolicyID, companyName, policyNumber, policyDate string, totalValue int64, now time.Time) (*Policy, error) {
	companyName = strings.TrimSpace(companyName)
	policyNumber = strings.TrimSpace(policyNumber)
	policyDate = strings.TrimSpace(policyDate)

	switch {
	case policyID.IsNil():
		return nil, dErrors.New(dErrors.CodeInvalidInput, "policy id is required")
	case companyName == "":
		return nil, dErrors.New(dErrors.CodeInvalidInput, "company name is required")
	case policyNumber == "":
		return nil, dErrors.New(dErrors.CodeInvalidInput, "policy number is required")
	case len(policyNumber) > MaxNameLength:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "policy number is too long")
	case policyDate == "":
		return nil, dErrors.New(dErrors.CodeInvalidInput, "policy date is required")
	case totalValue <= 0:
		return nil, dErrors.New(dErrors.CodeInvalidInput, "total value must be positive")
	}

	return &Policy{
		ID:             policyID,
		CompanyName:    companyName,
		PolicyNumber:   policyNumber,
		PolicyDate:     policyDate,
		TotalValue:     totalValue,
		RemainingValue: totalValue,
		CreatedAt:      now,
	}, nil
}

// CanDecrement reports whether amount can be drawn from the remaining balance.
func (p *Policy) CanDecrement(amount int64) error {
	if amount <= 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "value must be positive")
	}
	if amount > p.RemainingValue {
		return dErrors.New(dErrors.CodeInsufficientBalance, "policy balance is insufficient")
	}
	return nil
}

// Decrement draws amount from the balance and returns the new remaining value.
// On error the policy is left untouched.
func (p *Policy) Decrement(amount int64) (int64, error) {
	if err := p.CanDecrement(amount); err != nil {
		return p.RemainingValue, err
	}
	p.RemainingValue -= amount
	return p.RemainingValue, nil
}

// HasBalance reports whether anything can still be issued against the policy.
func (p *Policy) HasBalance() bool {
	return p.RemainingValue > 0
}

// PolicyFilter selects policies for listing. An empty CompanyName lists
// every policy; a set CompanyName lists only that company's open policies.
type PolicyFilter struct {
	CompanyName string
}
