package service

import (
	"context"
	"strings"

	"sanad/internal/ledger/models"
	dErrors "sanad/pkg/domain-errors"
)

// BalanceReport summarizes the remaining balance of a company's open policies.
func (s *Service) BalanceReport(ctx context.Context, companyName string) (*models.BalanceReport, error) {
	companyName = strings.TrimSpace(companyName)
	if companyName == "" {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "company name is required")
	}
	exists, err := s.ledger.CompanyExists(ctx, companyName)
	if err != nil {
		return nil, translate(err, "failed to load company")
	}
	if !exists {
		return nil, dErrors.New(dErrors.CodeNotFound, "company not found")
	}
	policies, err := s.ledger.ListPolicies(ctx, models.PolicyFilter{CompanyName: companyName})
	if err != nil {
		return nil, translate(err, "failed to list policies")
	}
	return models.NewBalanceReport(companyName, policies), nil
}
