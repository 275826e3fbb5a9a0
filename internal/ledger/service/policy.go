package service

import (
	"context"
	"errors"
	"strings"

	"sanad/internal/ledger/models"
	"sanad/internal/ledger/store"
	id "sanad/pkg/domain"
	dErrors "sanad/pkg/domain-errors"
	"sanad/pkg/platform/sentinel"
	"sanad/pkg/requestcontext"
)

// CreatePolicy opens a policy at full balance for an existing company.
// Policy numbers are not unique, even within one company.
func (s *Service) CreatePolicy(ctx context.Context, req models.CreatePolicyRequest) (id.PolicyID, error) {
	policy, err := models.NewPolicy(s.newPolicyID(), req.CompanyName, req.PolicyNumber, req.PolicyDate,
		req.TotalValue, requestcontext.Now(ctx))
	if err != nil {
		return id.PolicyID{}, err
	}

	err = s.runInTx(ctx, "create_policy", func(tx store.Store) error {
		exists, err := tx.CompanyExists(ctx, policy.CompanyName)
		if err != nil {
			return err
		}
		if !exists {
			return dErrors.New(dErrors.CodeNotFound, "company not found")
		}
		return tx.CreatePolicy(ctx, policy)
	})
	if err != nil {
		return id.PolicyID{}, translate(err, "failed to create policy")
	}

	s.logAudit(ctx, "policy_created",
		"policy_id", policy.ID,
		"company_name", policy.CompanyName,
		"policy_number", policy.PolicyNumber,
		"total_value", policy.TotalValue,
	)
	return policy.ID, nil
}

// ListPolicies lists one company's policies that still have balance, ordered
// by policy number, or every policy ordered by company then number when
// companyName is empty.
func (s *Service) ListPolicies(ctx context.Context, companyName string) ([]*models.Policy, error) {
	policies, err := s.ledger.ListPolicies(ctx, models.PolicyFilter{CompanyName: strings.TrimSpace(companyName)})
	if err != nil {
		return nil, translate(err, "failed to list policies")
	}
	if policies == nil {
		policies = []*models.Policy{}
	}
	return policies, nil
}

func (s *Service) GetPolicy(ctx context.Context, policyID id.PolicyID) (*models.Policy, error) {
	policy, err := s.ledger.FindPolicy(ctx, policyID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "policy not found")
	}
	if err != nil {
		return nil, translate(err, "failed to load policy")
	}
	return policy, nil
}
