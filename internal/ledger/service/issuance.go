package service

import (
	"context"
	"errors"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"sanad/internal/ledger/models"
	"sanad/internal/ledger/store"
	id "sanad/pkg/domain"
	dErrors "sanad/pkg/domain-errors"
	"sanad/pkg/platform/sentinel"
	"sanad/pkg/requestcontext"
)

// SanadDateLayout formats the default sanad date when the caller sends none.
const SanadDateLayout = "2006/01/02"

// IssueCertificate draws req.Value from the policy and records a certificate.
//
// Duplicate cottage warnings are gathered first and never block issuance; a
// failing duplicate lookup is logged and yields no warnings. The balance
// check, decrement, id allocation and certificate insert share one
// transaction: on any failure nothing is written and no id is consumed.
func (s *Service) IssueCertificate(ctx context.Context, req models.IssueCertificateRequest) (*models.IssueResult, error) {
	started := time.Now()
	ctx, span := s.tracer.Start(ctx, "ledger.IssueCertificate")
	defer span.End()

	state := models.StateValidating
	// reject moves to the terminal Rejected state, keeping the step that failed.
	reject := func(err error) (*models.IssueResult, error) {
		code := dErrors.CodeOf(err)
		failedStep := state
		state = models.StateRejected
		span.SetAttributes(
			attribute.String("issuance.state", string(state)),
			attribute.String("issuance.failed_step", string(failedStep)),
		)
		span.SetStatus(codes.Error, string(code))
		if s.metrics != nil {
			s.metrics.ObserveRejected(string(code), string(failedStep))
		}
		s.logAudit(ctx, "certificate_rejected",
			"policy_id", req.PolicyID,
			"value", req.Value,
			"state", state,
			"failed_step", failedStep,
			"reason", code,
		)
		return nil, err
	}

	req.Normalize()
	if err := req.Validate(); err != nil {
		return reject(err)
	}

	state = models.StateCheckingDuplicates
	warnings := s.duplicateWarnings(ctx, req.CottageNumbers)

	now := requestcontext.Now(ctx)
	sanadDate := req.SanadDate
	if sanadDate == "" {
		sanadDate = now.Format(SanadDateLayout)
	}

	var cert *models.Certificate
	err := s.runInTx(ctx, "issue_certificate", func(tx store.Store) error {
		state = models.StateDecrementingBalance
		policy, err := tx.LockPolicy(ctx, req.PolicyID)
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.New(dErrors.CodeNotFound, "policy not found")
		}
		if err != nil {
			return err
		}
		if req.CompanyName != "" && req.CompanyName != policy.CompanyName {
			return dErrors.New(dErrors.CodeInvalidInput, "policy does not belong to company")
		}
		remaining, err := policy.Decrement(req.Value)
		if err != nil {
			return err
		}
		if err := tx.UpdateRemaining(ctx, policy.ID, remaining); err != nil {
			return err
		}

		state = models.StatePersisting
		sanadID, err := tx.AllocateSanadID(ctx)
		if err != nil {
			return err
		}
		c := &models.Certificate{
			SanadID:        sanadID,
			SanadDate:      sanadDate,
			CompanyName:    policy.CompanyName,
			PolicyID:       policy.ID,
			PolicyNumber:   policy.PolicyNumber,
			PolicyDate:     policy.PolicyDate,
			CottageNumbers: req.CottageNumbers,
			Count:          req.Count,
			Value:          req.Value,
			RemainingAfter: remaining,
			IssuedAt:       now,
		}
		if err := tx.InsertCertificate(ctx, c); err != nil {
			return err
		}
		if s.eventsEnabled {
			entry, err := models.NewCertificateIssuedEntry(c, requestcontext.RequestID(ctx), now)
			if err != nil {
				return err
			}
			if err := tx.AppendOutbox(ctx, entry); err != nil {
				return err
			}
		}
		cert = c
		return nil
	})
	if err != nil {
		return reject(translate(err, "failed to issue certificate"))
	}

	state = models.StateDone
	if s.metrics != nil {
		s.metrics.ObserveIssued(cert.Value, started)
		if len(warnings) > 0 {
			s.metrics.IncrementDuplicateWarnings()
		}
	}
	span.SetAttributes(
		attribute.String("issuance.state", string(state)),
		attribute.Int64("sanad.id", cert.SanadID.Int64()),
		attribute.Int("sanad.duplicate_warnings", len(warnings)),
	)
	s.logAudit(ctx, "certificate_issued",
		"sanad_id", cert.SanadID,
		"policy_id", cert.PolicyID,
		"company_name", cert.CompanyName,
		"value", cert.Value,
		"remaining_after", cert.RemainingAfter,
		"duplicate_warnings", len(warnings),
	)

	return &models.IssueResult{
		SanadID:           cert.SanadID,
		RemainingAfter:    cert.RemainingAfter,
		DuplicateWarnings: warnings,
		Certificate:       cert,
	}, nil
}

func (s *Service) duplicateWarnings(ctx context.Context, cottageNumbers string) []id.SanadID {
	warnings, err := s.CheckDuplicates(ctx, cottageNumbers)
	if err != nil {
		s.logger.WarnContext(ctx, "duplicate cottage check failed; issuing without warnings",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		return []id.SanadID{}
	}
	return warnings
}
