package service

import (
	"context"
	"errors"

	"sanad/internal/ledger/models"
	id "sanad/pkg/domain"
	dErrors "sanad/pkg/domain-errors"
	"sanad/pkg/platform/sentinel"
)

// MaxHistoryLimit caps one page of certificate history.
const MaxHistoryLimit = 1000

// ListCertificates returns certificate history, newest first.
func (s *Service) ListCertificates(ctx context.Context, filter models.CertificateFilter) ([]*models.Certificate, error) {
	if filter.Limit <= 0 || filter.Limit > MaxHistoryLimit {
		filter.Limit = MaxHistoryLimit
	}
	certs, err := s.ledger.ListCertificates(ctx, filter)
	if err != nil {
		return nil, translate(err, "failed to list certificates")
	}
	if certs == nil {
		certs = []*models.Certificate{}
	}
	return certs, nil
}

// GetCertificate returns one certificate; this is the print payload.
func (s *Service) GetCertificate(ctx context.Context, sanadID id.SanadID) (*models.Certificate, error) {
	cert, err := s.ledger.FindCertificate(ctx, sanadID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "certificate not found")
	}
	if err != nil {
		return nil, translate(err, "failed to load certificate")
	}
	return cert, nil
}
