package models

import (
	"time"

	id "sanad/pkg/domain"
)

// Certificate (sanad) is an append-only record of value drawn from a policy.
// PolicyNumber and PolicyDate are snapshots taken at issuance.
type Certificate struct {
	SanadID        id.SanadID  `json:"sanad_id"`
	SanadDate      string      `json:"sanad_date"`
	CompanyName    string      `json:"company_name"`
	PolicyID       id.PolicyID `json:"policy_id"`
	PolicyNumber   string      `json:"policy_number"`
	PolicyDate     string      `json:"policy_date"`
	CottageNumbers string      `json:"cottage_numbers"`
	Count          int         `json:"count"`
	Value          int64       `json:"value"`
	RemainingAfter int64       `json:"remaining_after"`
	IssuedAt       time.Time   `json:"issued_at"`
}

// CertificateFilter narrows certificate history. Zero fields match everything.
type CertificateFilter struct {
	CompanyName string
	PolicyID    id.PolicyID
	Limit       int
}

// CottageRecord is the projection the duplicate detector scans.
type CottageRecord struct {
	SanadID        id.SanadID
	CottageNumbers string
}
