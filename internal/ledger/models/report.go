package models

import (
	"github.com/shopspring/decimal"

	id "sanad/pkg/domain"
)

// BalanceLine is one policy in a company's balance report.
type BalanceLine struct {
	PolicyID         id.PolicyID     `json:"policy_id"`
	PolicyNumber     string          `json:"policy_number"`
	PolicyDate       string          `json:"policy_date"`
	TotalValue       int64           `json:"total_value"`
	RemainingValue   int64           `json:"remaining_value"`
	RemainingPercent decimal.Decimal `json:"remaining_percent"`
}

// BalanceReport summarizes a company's open policies.
type BalanceReport struct {
	CompanyName      string          `json:"company_name"`
	Lines            []BalanceLine   `json:"lines"`
	TotalValue       int64           `json:"total_value"`
	RemainingValue   int64           `json:"remaining_value"`
	RemainingPercent decimal.Decimal `json:"remaining_percent"`
}

var hundred = decimal.NewFromInt(100)

// RemainingPercent returns remaining/total*100 rounded half-up to one decimal,
// or zero when total is not positive.
func RemainingPercent(remaining, total int64) decimal.Decimal {
	if total <= 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(remaining).Mul(hundred).Div(decimal.NewFromInt(total)).Round(1)
}

// NewBalanceReport builds a report from the company's open policies.
func NewBalanceReport(company string, policies []*Policy) *BalanceReport {
	r := &BalanceReport{CompanyName: company, Lines: make([]BalanceLine, 0, len(policies))}
	for _, p := range policies {
		r.Lines = append(r.Lines, BalanceLine{
			PolicyID:         p.ID,
			PolicyNumber:     p.PolicyNumber,
			PolicyDate:       p.PolicyDate,
			TotalValue:       p.TotalValue,
			RemainingValue:   p.RemainingValue,
			RemainingPercent: RemainingPercent(p.RemainingValue, p.TotalValue),
		})
		r.TotalValue += p.TotalValue
		r.RemainingValue += p.RemainingValue
	}
	r.RemainingPercent = RemainingPercent(r.RemainingValue, r.TotalValue)
	return r
}
