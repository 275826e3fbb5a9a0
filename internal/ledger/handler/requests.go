package handler

import (
	"strings"

	"sanad/internal/ledger/models"
	id "sanad/pkg/domain"
	dErrors "sanad/pkg/domain-errors"
)

// AddCompanyRequest is the body of POST /companies.
type AddCompanyRequest struct {
	Name string `json:"name"`
}

func (r *AddCompanyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "name is required")
	}
	return nil
}

// CreatePolicyRequest is the body of POST /policies.
type CreatePolicyRequest struct {
	CompanyName  string    `json:"company_name"`
	PolicyNumber string    `json:"policy_number"`
	PolicyDate   string    `json:"policy_date"`
	TotalValue   id.Amount `json:"total_value"`
}

// Validate checks presence only; the ledger enforces the policy invariants.
func (r *CreatePolicyRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.CompanyName = strings.TrimSpace(r.CompanyName)
	r.PolicyNumber = strings.TrimSpace(r.PolicyNumber)
	r.PolicyDate = strings.TrimSpace(r.PolicyDate)
	switch {
	case r.CompanyName == "":
		return dErrors.New(dErrors.CodeInvalidInput, "company_name is required")
	case r.PolicyNumber == "":
		return dErrors.New(dErrors.CodeInvalidInput, "policy_number is required")
	case r.PolicyDate == "":
		return dErrors.New(dErrors.CodeInvalidInput, "policy_date is required")
	}
	return nil
}

func (r *CreatePolicyRequest) ToModel() models.CreatePolicyRequest {
	return models.CreatePolicyRequest{
		CompanyName:  r.CompanyName,
		PolicyNumber: r.PolicyNumber,
		PolicyDate:   r.PolicyDate,
		TotalValue:   r.TotalValue.Int64(),
	}
}

// IssueCertificateRequest is the body of POST /sanads.
type IssueCertificateRequest struct {
	CompanyName    string    `json:"company_name"`
	PolicyID       string    `json:"policy_id"`
	SanadDate      string    `json:"sanad_date"`
	CottageNumbers string    `json:"cottage_numbers"`
	Count          int       `json:"count"`
	Value          id.Amount `json:"value"`

	parsedPolicyID id.PolicyID
}

// Validate parses the policy id; the remaining checks belong to issuance.
func (r *IssueCertificateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	policyID, err := id.ParsePolicyID(strings.TrimSpace(r.PolicyID))
	if err != nil {
		return err
	}
	r.parsedPolicyID = policyID
	return nil
}

func (r *IssueCertificateRequest) ToModel() models.IssueCertificateRequest {
	return models.IssueCertificateRequest{
		CompanyName:    r.CompanyName,
		PolicyID:       r.parsedPolicyID,
		SanadDate:      r.SanadDate,
		CottageNumbers: r.CottageNumbers,
		Count:          r.Count,
		Value:          r.Value.Int64(),
	}
}
