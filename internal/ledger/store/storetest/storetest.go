// Package storetest holds the behavioral contract every ledger store must meet.
// Store packages run Suite from their own tests with a factory for a fresh,
// empty ledger.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"sanad/internal/ledger/models"
	"sanad/internal/ledger/store"
	id "sanad/pkg/domain"
	"sanad/pkg/platform/sentinel"
)

var errAbort = errors.New("abort")

// Suite exercises a store.Ledger that also implements store.Outbox.
type Suite struct {
	suite.Suite

	// NewLedger returns an empty ledger; it is called before every test.
	NewLedger func() store.Ledger

	ledger store.Ledger
	ctx    context.Context
	now    time.Time
}

func (s *Suite) SetupTest() {
	s.ledger = s.NewLedger()
	s.ctx = context.Background()
	s.now = time.Date(2024, 5, 1, 9, 30, 0, 0, time.UTC)
}

func (s *Suite) company(name string) {
	c, err := models.NewCompany(name, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.ledger.AddCompany(s.ctx, c))
}

func (s *Suite) policy(company, number string, total int64) *models.Policy {
	p, err := models.NewPolicy(id.NewPolicyID(), company, number, "1403/01/01", total, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.ledger.CreatePolicy(s.ctx, p))
	return p
}

// issue performs the issuance write sequence the ledger service uses.
func (s *Suite) issue(p *models.Policy, cottages string, value int64) id.SanadID {
	var sid id.SanadID
	err := s.ledger.RunInTx(s.ctx, func(tx store.Store) error {
		locked, err := tx.LockPolicy(s.ctx, p.ID)
		if err != nil {
			return err
		}
		remaining, err := locked.Decrement(value)
		if err != nil {
			return err
		}
		if err := tx.UpdateRemaining(s.ctx, p.ID, remaining); err != nil {
			return err
		}
		if sid, err = tx.AllocateSanadID(s.ctx); err != nil {
			return err
		}
		return tx.InsertCertificate(s.ctx, &models.Certificate{
			SanadID:        sid,
			SanadDate:      "1403/02/11",
			CompanyName:    locked.CompanyName,
			PolicyID:       locked.ID,
			PolicyNumber:   locked.PolicyNumber,
			PolicyDate:     locked.PolicyDate,
			CottageNumbers: cottages,
			Count:          1,
			Value:          value,
			RemainingAfter: remaining,
			IssuedAt:       s.now,
		})
	})
	s.Require().NoError(err)
	return sid
}

// =============================================================================
// Companies
// =============================================================================

func (s *Suite) TestCompanies() {
	s.company("beta")
	s.company("Beta")
	s.company("alpha")

	s.Run("duplicate name is already used", func() {
		c, _ := models.NewCompany("beta", s.now)
		err := s.ledger.AddCompany(s.ctx, c)
		s.ErrorIs(err, sentinel.ErrAlreadyUsed)
	})

	s.Run("listed in byte order", func() {
		companies, err := s.ledger.ListCompanies(s.ctx)
		s.Require().NoError(err)
		var names []string
		for _, c := range companies {
			names = append(names, c.Name)
		}
		s.Equal([]string{"Beta", "alpha", "beta"}, names)
		s.True(companies[0].CreatedAt.Equal(s.now))
	})

	s.Run("exists is case sensitive", func() {
		ok, err := s.ledger.CompanyExists(s.ctx, "alpha")
		s.Require().NoError(err)
		s.True(ok)
		ok, err = s.ledger.CompanyExists(s.ctx, "ALPHA")
		s.Require().NoError(err)
		s.False(ok)
	})
}

// =============================================================================
// Policies
// =============================================================================

func (s *Suite) TestPolicyRoundTrip() {
	s.company("Alborz")
	p := s.policy("Alborz", "P-1", 5_000)

	got, err := s.ledger.FindPolicy(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(p.ID, got.ID)
	s.Equal("Alborz", got.CompanyName)
	s.Equal("P-1", got.PolicyNumber)
	s.Equal("1403/01/01", got.PolicyDate)
	s.Equal(int64(5_000), got.TotalValue)
	s.Equal(int64(5_000), got.RemainingValue)
	s.True(got.CreatedAt.Equal(s.now))

	_, err = s.ledger.FindPolicy(s.ctx, id.NewPolicyID())
	s.ErrorIs(err, sentinel.ErrNotFound)

	err = s.ledger.UpdateRemaining(s.ctx, id.NewPolicyID(), 1)
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *Suite) TestListPoliciesOrdering() {
	s.company("B")
	s.company("A")
	first := s.policy("A", "P-2", 100)
	s.policy("A", "P-1", 100)
	second := s.policy("A", "P-2", 100)
	s.policy("B", "P-0", 100)
	drained := s.policy("A", "P-0", 100)
	s.issue(drained, "x", 100)

	s.Run("company filter excludes drained policies", func() {
		policies, err := s.ledger.ListPolicies(s.ctx, models.PolicyFilter{CompanyName: "A"})
		s.Require().NoError(err)
		s.Require().Len(policies, 3)
		s.Equal("P-1", policies[0].PolicyNumber)
		s.Equal(first.ID, policies[1].ID, "equal numbers keep creation order")
		s.Equal(second.ID, policies[2].ID)
	})

	s.Run("no filter includes everything", func() {
		policies, err := s.ledger.ListPolicies(s.ctx, models.PolicyFilter{})
		s.Require().NoError(err)
		var got []string
		for _, p := range policies {
			got = append(got, p.CompanyName+"/"+p.PolicyNumber)
		}
		s.Equal([]string{"A/P-0", "A/P-1", "A/P-2", "A/P-2", "B/P-0"}, got)
	})
}

// =============================================================================
// Transactions and sequencing
// =============================================================================

func (s *Suite) TestSequenceStartsAt4000() {
	next, err := s.ledger.PeekSanadID(s.ctx)
	s.Require().NoError(err)
	s.Equal(id.FirstSanadID, next)
}

func (s *Suite) TestAllocationIsDense() {
	s.company("Alborz")
	p := s.policy("Alborz", "P-1", 1_000)
	for want := id.SanadID(4000); want < 4005; want++ {
		s.Equal(want, s.issue(p, "c", 10))
	}
	next, err := s.ledger.PeekSanadID(s.ctx)
	s.Require().NoError(err)
	s.Equal(id.SanadID(4005), next)
}

func (s *Suite) TestRollbackReleasesEverything() {
	s.company("Alborz")
	p := s.policy("Alborz", "P-1", 1_000)

	err := s.ledger.RunInTx(s.ctx, func(tx store.Store) error {
		if err := tx.UpdateRemaining(s.ctx, p.ID, 1); err != nil {
			return err
		}
		sid, err := tx.AllocateSanadID(s.ctx)
		if err != nil {
			return err
		}
		if err := tx.InsertCertificate(s.ctx, &models.Certificate{
			SanadID: sid, SanadDate: "d", CompanyName: "Alborz", PolicyID: p.ID,
			PolicyNumber: "P-1", PolicyDate: "d", CottageNumbers: "1", Value: 999, RemainingAfter: 1, IssuedAt: s.now,
		}); err != nil {
			return err
		}
		c, _ := models.NewCompany("Ghost", s.now)
		if err := tx.AddCompany(s.ctx, c); err != nil {
			return err
		}
		return errAbort
	})
	s.ErrorIs(err, errAbort)

	next, err := s.ledger.PeekSanadID(s.ctx)
	s.Require().NoError(err)
	s.Equal(id.FirstSanadID, next)

	got, err := s.ledger.FindPolicy(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(int64(1_000), got.RemainingValue)

	_, err = s.ledger.FindCertificate(s.ctx, id.FirstSanadID)
	s.ErrorIs(err, sentinel.ErrNotFound)

	ok, err := s.ledger.CompanyExists(s.ctx, "Ghost")
	s.Require().NoError(err)
	s.False(ok)
}

func (s *Suite) TestDuplicateSanadIDIsAlreadyUsed() {
	s.company("Alborz")
	p := s.policy("Alborz", "P-1", 1_000)
	sid := s.issue(p, "1", 10)

	err := s.ledger.InsertCertificate(s.ctx, &models.Certificate{
		SanadID: sid, SanadDate: "d", CompanyName: "Alborz", PolicyID: p.ID,
		PolicyNumber: "P-1", PolicyDate: "d", CottageNumbers: "1", Value: 1, IssuedAt: s.now,
	})
	s.ErrorIs(err, sentinel.ErrAlreadyUsed)
}

func (s *Suite) TestConcurrentTransactionsSerialize() {
	s.company("Alborz")
	p := s.policy("Alborz", "P-1", 1_000)

	const workers = 20
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				err := s.ledger.RunInTx(s.ctx, func(tx store.Store) error {
					locked, err := tx.LockPolicy(s.ctx, p.ID)
					if err != nil {
						return err
					}
					remaining, err := locked.Decrement(10)
					if err != nil {
						return err
					}
					if err := tx.UpdateRemaining(s.ctx, p.ID, remaining); err != nil {
						return err
					}
					_, err = tx.AllocateSanadID(s.ctx)
					return err
				})
				if errors.Is(err, sentinel.ErrUnavailable) {
					continue
				}
				errs <- err
				return
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		s.NoError(err)
	}

	got, err := s.ledger.FindPolicy(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(int64(1_000-workers*10), got.RemainingValue)
	next, err := s.ledger.PeekSanadID(s.ctx)
	s.Require().NoError(err)
	s.Equal(id.SanadID(4000+workers), next)
}

// =============================================================================
// Certificates
// =============================================================================

func (s *Suite) TestCertificates() {
	s.company("Alborz")
	s.company("Bima")
	a := s.policy("Alborz", "A-1", 1_000)
	b := s.policy("Bima", "B-1", 1_000)
	s.issue(a, "12-13", 100)
	s.issue(b, "AB-7", 200)
	s.issue(a, "100%_x", 300)

	s.Run("find returns the snapshot", func() {
		c, err := s.ledger.FindCertificate(s.ctx, 4001)
		s.Require().NoError(err)
		s.Equal("Bima", c.CompanyName)
		s.Equal(b.ID, c.PolicyID)
		s.Equal("B-1", c.PolicyNumber)
		s.Equal("AB-7", c.CottageNumbers)
		s.Equal(int64(200), c.Value)
		s.Equal(int64(800), c.RemainingAfter)
		s.Equal(1, c.Count)
		s.True(c.IssuedAt.Equal(s.now))
	})

	s.Run("list filters newest first", func() {
		certs, err := s.ledger.ListCertificates(s.ctx, models.CertificateFilter{PolicyID: a.ID})
		s.Require().NoError(err)
		s.Require().Len(certs, 2)
		s.Equal(id.SanadID(4002), certs[0].SanadID)
		s.Equal(id.SanadID(4000), certs[1].SanadID)

		certs, err = s.ledger.ListCertificates(s.ctx, models.CertificateFilter{CompanyName: "Bima"})
		s.Require().NoError(err)
		s.Require().Len(certs, 1)

		certs, err = s.ledger.ListCertificates(s.ctx, models.CertificateFilter{Limit: 2})
		s.Require().NoError(err)
		s.Len(certs, 2)
	})

	s.Run("cottage candidates", func() {
		cases := []struct {
			needles []string
			want    []id.SanadID
		}{
			{[]string{"12"}, []id.SanadID{4000}},
			{[]string{"ab"}, []id.SanadID{4001}},
			{[]string{"12", "7"}, []id.SanadID{4000, 4001}},
			{[]string{"%"}, []id.SanadID{4002}},
			{[]string{"_"}, []id.SanadID{4002}},
			{[]string{"0%_"}, []id.SanadID{4002}},
			{[]string{"1_"}, []id.SanadID{}},
			{[]string{""}, []id.SanadID{4000, 4001, 4002}},
			{nil, []id.SanadID{}},
		}
		for _, tc := range cases {
			recs, err := s.ledger.FindCottageCandidates(s.ctx, tc.needles)
			s.Require().NoError(err)
			got := make([]id.SanadID, 0, len(recs))
			for _, r := range recs {
				got = append(got, r.SanadID)
			}
			s.Equal(tc.want, got, fmt.Sprintf("needles %q", tc.needles))
		}
	})
}

// =============================================================================
// Outbox
// =============================================================================

func (s *Suite) TestOutbox() {
	outbox, ok := s.ledger.(store.Outbox)
	s.Require().True(ok, "store must implement store.Outbox")

	entries := make([]*models.OutboxEntry, 3)
	for i := range entries {
		entries[i] = &models.OutboxEntry{
			ID:            uuid.New(),
			AggregateType: "policy",
			AggregateID:   uuid.NewString(),
			EventType:     models.EventCertificateIssued,
			Payload:       []byte(fmt.Sprintf(`{"n": %d}`, i)),
			CreatedAt:     s.now.Add(time.Duration(i) * time.Second),
		}
		err := s.ledger.RunInTx(s.ctx, func(tx store.Store) error {
			return tx.AppendOutbox(s.ctx, entries[i])
		})
		s.Require().NoError(err)
	}

	err := s.ledger.RunInTx(s.ctx, func(tx store.Store) error {
		if err := tx.AppendOutbox(s.ctx, &models.OutboxEntry{
			ID: uuid.New(), AggregateType: "policy", AggregateID: "x",
			EventType: models.EventCertificateIssued, Payload: []byte(`{}`), CreatedAt: s.now,
		}); err != nil {
			return err
		}
		return errAbort
	})
	s.Require().ErrorIs(err, errAbort)

	pending, err := outbox.FetchPending(s.ctx, 2)
	s.Require().NoError(err)
	s.Require().Len(pending, 2)
	s.Equal(entries[0].ID, pending[0].ID)
	s.Equal(entries[1].ID, pending[1].ID)
	s.JSONEq(`{"n": 0}`, string(pending[0].Payload))
	s.Equal(models.EventCertificateIssued, pending[0].EventType)

	s.Require().NoError(outbox.MarkProcessed(s.ctx, []uuid.UUID{pending[0].ID, pending[1].ID}, s.now))

	pending, err = outbox.FetchPending(s.ctx, 10)
	s.Require().NoError(err)
	s.Require().Len(pending, 1)
	s.Equal(entries[2].ID, pending[0].ID)

	s.NoError(outbox.MarkProcessed(s.ctx, nil, s.now))
}
