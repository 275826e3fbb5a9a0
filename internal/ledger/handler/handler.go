// Package handler exposes the certificate ledger over HTTP.
package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"sanad/internal/ledger/models"
	id "sanad/pkg/domain"
	dErrors "sanad/pkg/domain-errors"
	"sanad/pkg/platform/httputil"
	"sanad/pkg/requestcontext"
)

// Service is the ledger surface the handler needs.
type Service interface {
	AddCompany(ctx context.Context, name string) error
	ListCompanies(ctx context.Context) ([]string, error)
	CreatePolicy(ctx context.Context, req models.CreatePolicyRequest) (id.PolicyID, error)
	ListPolicies(ctx context.Context, companyName string) ([]*models.Policy, error)
	GetPolicy(ctx context.Context, policyID id.PolicyID) (*models.Policy, error)
	NextSanadID(ctx context.Context) (id.SanadID, error)
	IssueCertificate(ctx context.Context, req models.IssueCertificateRequest) (*models.IssueResult, error)
	CheckDuplicates(ctx context.Context, cottageNumbers string) ([]id.SanadID, error)
	ListCertificates(ctx context.Context, filter models.CertificateFilter) ([]*models.Certificate, error)
	GetCertificate(ctx context.Context, sanadID id.SanadID) (*models.Certificate, error)
	BalanceReport(ctx context.Context, companyName string) (*models.BalanceReport, error)
}

// Handler wires ledger endpoints to the ledger service.
type Handler struct {
	service Service
	logger  *slog.Logger
	// issueMiddleware wraps POST /sanads only, e.g. idempotency.
	issueMiddleware []func(http.Handler) http.Handler
}

type Option func(*Handler)

// WithIssueMiddleware adds middleware in front of certificate issuance.
func WithIssueMiddleware(mw ...func(http.Handler) http.Handler) Option {
	return func(h *Handler) {
		h.issueMiddleware = append(h.issueMiddleware, mw...)
	}
}

// New constructs a ledger handler.
func New(service Service, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{service: service, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register mounts the ledger endpoints on the router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/companies", h.HandleAddCompany)
	r.Get("/companies", h.HandleListCompanies)

	r.Post("/policies", h.HandleCreatePolicy)
	r.Get("/policies", h.HandleListPolicies)
	r.Get("/policies/{policyID}", h.HandleGetPolicy)

	r.Get("/sanads/next", h.HandleNextSanadID)
	r.Get("/sanads/duplicates", h.HandleCheckDuplicates)
	r.With(h.issueMiddleware...).Post("/sanads", h.HandleIssueCertificate)
	r.Get("/sanads", h.HandleListCertificates)
	r.Get("/sanads/{sanadID}", h.HandleGetCertificate)

	r.Get("/reports/balances", h.HandleBalanceReport)
}

// HandleAddCompany handles POST /companies.
func (h *Handler) HandleAddCompany(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[AddCompanyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	if err := h.service.AddCompany(ctx, req.Name); err != nil {
		h.fail(ctx, w, "add company failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, CompanyResponse{Name: req.Name})
}

func (h *Handler) HandleListCompanies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	names, err := h.service.ListCompanies(ctx)
	if err != nil {
		h.fail(ctx, w, "list companies failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CompaniesResponse{Companies: names})
}

// HandleCreatePolicy handles POST /policies.
func (h *Handler) HandleCreatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[CreatePolicyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	policyID, err := h.service.CreatePolicy(ctx, req.ToModel())
	if err != nil {
		h.fail(ctx, w, "create policy failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, CreatePolicyResponse{ID: policyID.String()})
}

// HandleListPolicies handles GET /policies?company=. With a company only
// policies that still have balance are listed.
func (h *Handler) HandleListPolicies(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policies, err := h.service.ListPolicies(ctx, r.URL.Query().Get("company"))
	if err != nil {
		h.fail(ctx, w, "list policies failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromPolicies(policies))
}

func (h *Handler) HandleGetPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	policyID, err := id.ParsePolicyID(chi.URLParam(r, "policyID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	policy, err := h.service.GetPolicy(ctx, policyID)
	if err != nil {
		h.fail(ctx, w, "get policy failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromPolicy(policy))
}

// HandleNextSanadID handles GET /sanads/next. The value is a preview only.
func (h *Handler) HandleNextSanadID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	next, err := h.service.NextSanadID(ctx)
	if err != nil {
		h.fail(ctx, w, "next sanad id failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, NextSanadResponse{SanadID: next})
}

// HandleIssueCertificate handles POST /sanads.
func (h *Handler) HandleIssueCertificate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)
	start := time.Now()

	req, ok := httputil.DecodeAndPrepare[IssueCertificateRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}
	result, err := h.service.IssueCertificate(ctx, req.ToModel())
	if err != nil {
		h.fail(ctx, w, "certificate issuance failed", err)
		return
	}

	h.logger.InfoContext(ctx, "certificate issued",
		"request_id", requestID,
		"sanad_id", result.SanadID,
		"duplicate_warnings", len(result.DuplicateWarnings),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	httputil.WriteJSON(w, http.StatusCreated, FromIssueResult(result))
}

// HandleCheckDuplicates handles GET /sanads/duplicates?cottage_numbers=.
func (h *Handler) HandleCheckDuplicates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ids, err := h.service.CheckDuplicates(ctx, r.URL.Query().Get("cottage_numbers"))
	if err != nil {
		h.fail(ctx, w, "duplicate check failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DuplicatesResponse{SanadIDs: ids})
}

// HandleListCertificates handles GET /sanads?company=&policy_id=&limit=.
func (h *Handler) HandleListCertificates(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query()

	filter := models.CertificateFilter{CompanyName: q.Get("company")}
	if raw := q.Get("policy_id"); raw != "" {
		policyID, err := id.ParsePolicyID(raw)
		if err != nil {
			httputil.WriteError(w, err)
			return
		}
		filter.PolicyID = policyID
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httputil.WriteError(w, dErrors.New(dErrors.CodeInvalidInput, "limit must be a non-negative integer"))
			return
		}
		filter.Limit = limit
	}

	certs, err := h.service.ListCertificates(ctx, filter)
	if err != nil {
		h.fail(ctx, w, "list certificates failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromCertificates(certs))
}

// HandleGetCertificate handles GET /sanads/{sanadID}; the body is the print payload.
func (h *Handler) HandleGetCertificate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sanadID, err := id.ParseSanadID(chi.URLParam(r, "sanadID"))
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	cert, err := h.service.GetCertificate(ctx, sanadID)
	if err != nil {
		h.fail(ctx, w, "get certificate failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, FromCertificate(cert))
}

// HandleBalanceReport handles GET /reports/balances?company=.
func (h *Handler) HandleBalanceReport(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	report, err := h.service.BalanceReport(ctx, r.URL.Query().Get("company"))
	if err != nil {
		h.fail(ctx, w, "balance report failed", err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, report)
}

// fail logs client errors at warn and everything else at error, then writes
// the mapped response.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, msg string, err error) {
	level := slog.LevelWarn
	if httputil.StatusFor(dErrors.CodeOf(err)) >= http.StatusInternalServerError {
		level = slog.LevelError
	}
	h.logger.Log(ctx, level, msg,
		"request_id", requestcontext.RequestID(ctx),
		"error", err,
	)
	httputil.WriteError(w, err)
}
