package service

import (
	"context"
	"errors"

	"sanad/internal/ledger/models"
	"sanad/internal/ledger/store"
	dErrors "sanad/pkg/domain-errors"
	"sanad/pkg/platform/sentinel"
	"sanad/pkg/requestcontext"
)

// AddCompany registers a company. The name is trimmed; an existing exact
// (case-sensitive) name is a duplicate.
func (s *Service) AddCompany(ctx context.Context, name string) error {
	company, err := models.NewCompany(name, requestcontext.Now(ctx))
	if err != nil {
		return err
	}

	err = s.runInTx(ctx, "add_company", func(tx store.Store) error {
		return tx.AddCompany(ctx, company)
	})
	if errors.Is(err, sentinel.ErrAlreadyUsed) {
		return dErrors.New(dErrors.CodeDuplicateKey, "company already exists")
	}
	if err != nil {
		return translate(err, "failed to add company")
	}

	s.logAudit(ctx, "company_added", "company_name", company.Name)
	return nil
}

// ListCompanies returns company names in ascending byte order.
func (s *Service) ListCompanies(ctx context.Context) ([]string, error) {
	companies, err := s.ledger.ListCompanies(ctx)
	if err != nil {
		return nil, translate(err, "failed to list companies")
	}
	names := make([]string, 0, len(companies))
	for _, c := range companies {
		names = append(names, c.Name)
	}
	return names, nil
}
