package handler

import (
	"time"

	"sanad/internal/ledger/models"
	id "sanad/pkg/domain"
)

type CompaniesResponse struct {
	Companies []string `json:"companies"`
}

type CompanyResponse struct {
	Name string `json:"name"`
}

type PolicyResponse struct {
	ID             string    `json:"id"`
	CompanyName    string    `json:"company_name"`
	PolicyNumber   string    `json:"policy_number"`
	PolicyDate     string    `json:"policy_date"`
	TotalValue     int64     `json:"total_value"`
	RemainingValue int64     `json:"remaining_value"`
	CreatedAt      time.Time `json:"created_at"`
}

type PoliciesResponse struct {
	Policies []PolicyResponse `json:"policies"`
}

type CreatePolicyResponse struct {
	ID string `json:"id"`
}

type NextSanadResponse struct {
	SanadID id.SanadID `json:"sanad_id"`
}

type CertificateResponse struct {
	SanadID        id.SanadID `json:"sanad_id"`
	SanadDate      string     `json:"sanad_date"`
	CompanyName    string     `json:"company_name"`
	PolicyID       string     `json:"policy_id"`
	PolicyNumber   string     `json:"policy_number"`
	PolicyDate     string     `json:"policy_date"`
	CottageNumbers string     `json:"cottage_numbers"`
	Count          int        `json:"count"`
	Value          int64      `json:"value"`
	RemainingAfter int64      `json:"remaining_after"`
	IssuedAt       time.Time  `json:"issued_at"`
}

type CertificatesResponse struct {
	Certificates []CertificateResponse `json:"certificates"`
}

// IssueResponse is returned by POST /sanads. DuplicateWarnings is advisory
// and always present.
type IssueResponse struct {
	SanadID           id.SanadID          `json:"sanad_id"`
	RemainingAfter    int64               `json:"remaining_after"`
	DuplicateWarnings []id.SanadID        `json:"duplicate_warnings"`
	Certificate       CertificateResponse `json:"certificate"`
}

type DuplicatesResponse struct {
	SanadIDs []id.SanadID `json:"sanad_ids"`
}

func FromPolicy(p *models.Policy) PolicyResponse {
	return PolicyResponse{
		ID:             p.ID.String(),
		CompanyName:    p.CompanyName,
		PolicyNumber:   p.PolicyNumber,
		PolicyDate:     p.PolicyDate,
		TotalValue:     p.TotalValue,
		RemainingValue: p.RemainingValue,
		CreatedAt:      p.CreatedAt,
	}
}

func FromPolicies(policies []*models.Policy) PoliciesResponse {
	out := PoliciesResponse{Policies: make([]PolicyResponse, 0, len(policies))}
	for _, p := range policies {
		out.Policies = append(out.Policies, FromPolicy(p))
	}
	return out
}

func FromCertificate(c *models.Certificate) CertificateResponse {
	return CertificateResponse{
		SanadID:        c.SanadID,
		SanadDate:      c.SanadDate,
		CompanyName:    c.CompanyName,
		PolicyID:       c.PolicyID.String(),
		PolicyNumber:   c.PolicyNumber,
		PolicyDate:     c.PolicyDate,
		CottageNumbers: c.CottageNumbers,
		Count:          c.Count,
		Value:          c.Value,
		RemainingAfter: c.RemainingAfter,
		IssuedAt:       c.IssuedAt,
	}
}

func FromCertificates(certs []*models.Certificate) CertificatesResponse {
	out := CertificatesResponse{Certificates: make([]CertificateResponse, 0, len(certs))}
	for _, c := range certs {
		out.Certificates = append(out.Certificates, FromCertificate(c))
	}
	return out
}

func FromIssueResult(res *models.IssueResult) IssueResponse {
	warnings := res.DuplicateWarnings
	if warnings == nil {
		warnings = []id.SanadID{}
	}
	return IssueResponse{
		SanadID:           res.SanadID,
		RemainingAfter:    res.RemainingAfter,
		DuplicateWarnings: warnings,
		Certificate:       FromCertificate(res.Certificate),
	}
}
