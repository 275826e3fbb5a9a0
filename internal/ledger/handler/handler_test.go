package handler_test

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/suite"

	"sanad/internal/ledger/handler"
	"sanad/internal/ledger/idempotency"
	"sanad/internal/ledger/service"
	"sanad/internal/ledger/store/memory"
	"sanad/pkg/testutil"
)

type HandlerSuite struct {
	suite.Suite
	router http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := service.New(memory.New(), service.WithLogger(logger))
	h := handler.New(svc, logger,
		handler.WithIssueMiddleware(idempotency.Middleware(idempotency.NewMemory(), time.Hour, logger)),
	)
	r := chi.NewRouter()
	h.Register(r)
	s.router = r
}

func (s *HandlerSuite) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = testutil.NewRequest(s.T(), method, path)
	} else {
		req = testutil.NewRequestWithBody(s.T(), method, path, body)
	}
	return testutil.DoRequest(s.router, req)
}

func decode[T any](s *HandlerSuite, rr *httptest.ResponseRecorder) T {
	var out T
	s.Require().NoError(json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

// seedPolicy creates company ACME with one policy and returns its id.
func (s *HandlerSuite) seedPolicy(total string) string {
	s.Require().Equal(http.StatusCreated, s.do(http.MethodPost, "/companies", `{"name":"ACME"}`).Code)
	rr := s.do(http.MethodPost, "/policies",
		`{"company_name":"ACME","policy_number":"P-1","policy_date":"1402/01/15","total_value":`+total+`}`)
	s.Require().Equal(http.StatusCreated, rr.Code, rr.Body.String())
	return decode[handler.CreatePolicyResponse](s, rr).ID
}

func issueBody(policyID, cottage, value string) string {
	return `{"company_name":"ACME","policy_id":"` + policyID + `","sanad_date":"1402/02/01",` +
		`"cottage_numbers":"` + cottage + `","count":3,"value":` + value + `}`
}

// =============================================================================
// Companies
// =============================================================================

func (s *HandlerSuite) TestCompanies() {
	s.Run("created and listed", func() {
		rr := s.do(http.MethodPost, "/companies", `{"name":"  Zeta "}`)
		testutil.AssertStatus(s.T(), rr, http.StatusCreated)
		testutil.AssertJSONContains(s.T(), rr, "name", "Zeta")

		s.do(http.MethodPost, "/companies", `{"name":"Alpha"}`)
		rr = s.do(http.MethodGet, "/companies", "")
		testutil.AssertStatusOK(s.T(), rr)
		s.Equal([]string{"Alpha", "Zeta"}, decode[handler.CompaniesResponse](s, rr).Companies)
	})

	s.Run("duplicate name conflicts", func() {
		rr := s.do(http.MethodPost, "/companies", `{"name":"Alpha"}`)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusConflict, "duplicate_key")
	})

	s.Run("blank name is invalid", func() {
		rr := s.do(http.MethodPost, "/companies", `{"name":"   "}`)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("unknown fields are rejected", func() {
		rr := s.do(http.MethodPost, "/companies", `{"name":"X","extra":1}`)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "bad_request")
	})
}

// =============================================================================
// Policies
// =============================================================================

func (s *HandlerSuite) TestPolicies() {
	policyID := s.seedPolicy(`"1,000,000"`)

	s.Run("get returns full balance", func() {
		rr := s.do(http.MethodGet, "/policies/"+policyID, "")
		testutil.AssertStatusOK(s.T(), rr)
		got := decode[handler.PolicyResponse](s, rr)
		s.Equal(int64(1_000_000), got.TotalValue)
		s.Equal(int64(1_000_000), got.RemainingValue)
		s.Equal("P-1", got.PolicyNumber)
	})

	s.Run("list by company", func() {
		rr := s.do(http.MethodGet, "/policies?company=ACME", "")
		testutil.AssertStatusOK(s.T(), rr)
		s.Len(decode[handler.PoliciesResponse](s, rr).Policies, 1)
	})

	s.Run("unknown company is not found", func() {
		rr := s.do(http.MethodPost, "/policies",
			`{"company_name":"Nope","policy_number":"P-2","policy_date":"1402/01/15","total_value":10}`)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})

	s.Run("malformed amount is invalid", func() {
		rr := s.do(http.MethodPost, "/policies",
			`{"company_name":"ACME","policy_number":"P-2","policy_date":"1402/01/15","total_value":"12abc"}`)
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})

	s.Run("bad policy id in path", func() {
		rr := s.do(http.MethodGet, "/policies/not-a-uuid", "")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})
}

// =============================================================================
// Issuance
// =============================================================================

func (s *HandlerSuite) TestIssuanceFlow() {
	policyID := s.seedPolicy("1000000")

	rr := s.do(http.MethodGet, "/sanads/next", "")
	testutil.AssertStatusOK(s.T(), rr)
	s.EqualValues(4000, decode[handler.NextSanadResponse](s, rr).SanadID)

	rr = s.do(http.MethodPost, "/sanads", issueBody(policyID, "123", `"300,000"`))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	first := decode[handler.IssueResponse](s, rr)
	s.EqualValues(4000, first.SanadID)
	s.Equal(int64(700_000), first.RemainingAfter)
	s.Empty(first.DuplicateWarnings)
	s.NotNil(first.DuplicateWarnings)

	rr = s.do(http.MethodPost, "/sanads", issueBody(policyID, "99", "800000"))
	testutil.AssertStatusAndError(s.T(), rr, http.StatusUnprocessableEntity, "insufficient_balance")

	rr = s.do(http.MethodPost, "/sanads", issueBody(policyID, "123", "700000"))
	testutil.AssertStatus(s.T(), rr, http.StatusCreated)
	second := decode[handler.IssueResponse](s, rr)
	s.EqualValues(4001, second.SanadID)
	s.Equal(int64(0), second.RemainingAfter)
	s.Len(second.DuplicateWarnings, 1)
	s.EqualValues(4000, second.DuplicateWarnings[0])

	rr = s.do(http.MethodGet, "/sanads/4001", "")
	testutil.AssertStatusOK(s.T(), rr)
	cert := decode[handler.CertificateResponse](s, rr)
	s.Equal("ACME", cert.CompanyName)
	s.Equal("1402/01/15", cert.PolicyDate)
	s.Equal(3, cert.Count)

	rr = s.do(http.MethodGet, "/sanads?company=ACME", "")
	testutil.AssertStatusOK(s.T(), rr)
	s.Len(decode[handler.CertificatesResponse](s, rr).Certificates, 2)

	rr = s.do(http.MethodGet, "/sanads?policy_id="+policyID+"&limit=1", "")
	testutil.AssertStatusOK(s.T(), rr)
	s.Len(decode[handler.CertificatesResponse](s, rr).Certificates, 1)

	rr = s.do(http.MethodGet, "/sanads/duplicates?cottage_numbers=123", "")
	testutil.AssertStatusOK(s.T(), rr)
	s.Len(decode[handler.DuplicatesResponse](s, rr).SanadIDs, 2)

	rr = s.do(http.MethodGet, "/reports/balances?company=ACME", "")
	testutil.AssertStatusOK(s.T(), rr)
	testutil.AssertJSONContains(s.T(), rr, "remaining_value", float64(0))
}

func (s *HandlerSuite) TestIssuanceRejections() {
	policyID := s.seedPolicy("1000")

	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{"zero value", issueBody(policyID, "1", "0"), http.StatusBadRequest, "invalid_input"},
		{"missing policy id", issueBody("", "1", "10"), http.StatusBadRequest, "invalid_input"},
		{"unknown policy", issueBody("3f1c2a5e-8a3b-4c6d-9e0f-112233445566", "1", "10"), http.StatusNotFound, "not_found"},
		{"empty body", "", http.StatusBadRequest, "bad_request"},
	}
	for _, tc := range tests {
		s.Run(tc.name, func() {
			req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/sanads", tc.body)
			rr := testutil.DoRequest(s.router, req)
			testutil.AssertStatusAndError(s.T(), rr, tc.status, tc.code)
		})
	}
}

func (s *HandlerSuite) TestIssuanceIsIdempotent() {
	policyID := s.seedPolicy("1000")
	body := issueBody(policyID, "7", "100")

	send := func() *httptest.ResponseRecorder {
		req := testutil.NewRequestWithBody(s.T(), http.MethodPost, "/sanads", body)
		req.Header.Set(idempotency.HeaderKey, "retry-1")
		return testutil.DoRequest(s.router, req)
	}

	first := send()
	testutil.AssertStatus(s.T(), first, http.StatusCreated)
	second := send()
	testutil.AssertStatus(s.T(), second, http.StatusCreated)
	s.Equal("true", second.Header().Get(idempotency.HeaderReplayed))
	s.JSONEq(first.Body.String(), second.Body.String())

	rr := s.do(http.MethodGet, "/policies/"+policyID, "")
	s.Equal(int64(900), decode[handler.PolicyResponse](s, rr).RemainingValue)
}

func (s *HandlerSuite) TestQueryValidation() {
	s.Run("bad sanad id", func() {
		rr := s.do(http.MethodGet, "/sanads/12", "")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})
	s.Run("missing certificate", func() {
		rr := s.do(http.MethodGet, "/sanads/4999", "")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusNotFound, "not_found")
	})
	s.Run("negative limit", func() {
		rr := s.do(http.MethodGet, "/sanads?limit=-1", "")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})
	s.Run("bad policy filter", func() {
		rr := s.do(http.MethodGet, "/sanads?policy_id=x", "")
		testutil.AssertStatusAndError(s.T(), rr, http.StatusBadRequest, "invalid_input")
	})
}
