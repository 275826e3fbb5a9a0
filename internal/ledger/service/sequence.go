package service

import (
	"context"

	id "sanad/pkg/domain"
)

// NextSanadID previews the identifier the next issuance would receive. It
// reserves nothing: a concurrent issuance may take it first.
func (s *Service) NextSanadID(ctx context.Context) (id.SanadID, error) {
	next, err := s.ledger.PeekSanadID(ctx)
	if err != nil {
		return 0, translate(err, "failed to read sanad sequence")
	}
	if next < id.FirstSanadID {
		return id.FirstSanadID, nil
	}
	return next, nil
}
