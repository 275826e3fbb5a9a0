// Package memory is an in-process ledger store. A single writer lock
// serializes transactions; readers share an RLock.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"sanad/internal/ledger/models"
	"sanad/internal/ledger/store"
	id "sanad/pkg/domain"
	dErrors "sanad/pkg/domain-errors"
	"sanad/pkg/platform/sentinel"
	pstrings "sanad/pkg/platform/strings"
)

const defaultTxTimeout = 5 * time.Second

// Store is the in-memory ledger.
type Store struct {
	mu      sync.RWMutex
	st      *state
	timeout time.Duration
}

type Option func(*Store)

// WithTxTimeout bounds transactions whose context carries no deadline.
func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// New returns an empty ledger whose first certificate will be FirstSanadID.
func New(opts ...Option) *Store {
	s := &Store{st: newState(), timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ store.Ledger = (*Store)(nil)
	_ store.Outbox = (*Store)(nil)
)

// RunInTx holds the writer lock for the duration of fn. Mutations made through
// the tx store are undone if fn returns an error or panics.
func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	tx := &txStore{st: s.st}
	committed := false
	defer func() {
		if !committed {
			tx.rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *Store) ListCompanies(_ context.Context) ([]*models.Company, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listCompanies(), nil
}

func (s *Store) CompanyExists(_ context.Context, name string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.st.companies[name]
	return ok, nil
}

func (s *Store) FindPolicy(_ context.Context, policyID id.PolicyID) (*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.findPolicy(policyID)
}

func (s *Store) ListPolicies(_ context.Context, filter models.PolicyFilter) ([]*models.Policy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listPolicies(filter), nil
}

func (s *Store) PeekSanadID(_ context.Context) (id.SanadID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.nextSanad, nil
}

func (s *Store) FindCertificate(_ context.Context, sanadID id.SanadID) (*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.findCertificate(sanadID)
}

func (s *Store) ListCertificates(_ context.Context, filter models.CertificateFilter) ([]*models.Certificate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.listCertificates(filter), nil
}

func (s *Store) FindCottageCandidates(_ context.Context, substrings []string) ([]models.CottageRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st.cottageCandidates(substrings), nil
}

// Standalone writes run as single-statement transactions.

func (s *Store) AddCompany(ctx context.Context, company *models.Company) error {
	return s.RunInTx(ctx, func(tx store.Store) error { return tx.AddCompany(ctx, company) })
}

func (s *Store) CreatePolicy(ctx context.Context, policy *models.Policy) error {
	return s.RunInTx(ctx, func(tx store.Store) error { return tx.CreatePolicy(ctx, policy) })
}

func (s *Store) LockPolicy(ctx context.Context, policyID id.PolicyID) (*models.Policy, error) {
	return s.FindPolicy(ctx, policyID)
}

func (s *Store) UpdateRemaining(ctx context.Context, policyID id.PolicyID, remaining int64) error {
	return s.RunInTx(ctx, func(tx store.Store) error { return tx.UpdateRemaining(ctx, policyID, remaining) })
}

func (s *Store) AllocateSanadID(ctx context.Context) (id.SanadID, error) {
	var allocated id.SanadID
	err := s.RunInTx(ctx, func(tx store.Store) error {
		var err error
		allocated, err = tx.AllocateSanadID(ctx)
		return err
	})
	return allocated, err
}

func (s *Store) InsertCertificate(ctx context.Context, cert *models.Certificate) error {
	return s.RunInTx(ctx, func(tx store.Store) error { return tx.InsertCertificate(ctx, cert) })
}

func (s *Store) AppendOutbox(ctx context.Context, entry *models.OutboxEntry) error {
	return s.RunInTx(ctx, func(tx store.Store) error { return tx.AppendOutbox(ctx, entry) })
}

// FetchPending returns unprocessed outbox entries in insertion order.
func (s *Store) FetchPending(_ context.Context, limit int) ([]*models.OutboxEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.OutboxEntry, 0)
	for _, e := range s.st.outbox {
		if e.ProcessedAt != nil {
			continue
		}
		cp := *e
		out = append(out, &cp)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) MarkProcessed(_ context.Context, ids []uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	want := make(map[uuid.UUID]struct{}, len(ids))
	for _, i := range ids {
		want[i] = struct{}{}
	}
	for _, e := range s.st.outbox {
		if _, ok := want[e.ID]; ok && e.ProcessedAt == nil {
			t := at
			e.ProcessedAt = &t
		}
	}
	return nil
}

// txStore operates on state under the writer lock held by RunInTx and
// records an undo step for every mutation.
type txStore struct {
	st   *state
	undo []func()
}

func (t *txStore) rollback() {
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *txStore) ListCompanies(_ context.Context) ([]*models.Company, error) {
	return t.st.listCompanies(), nil
}

func (t *txStore) CompanyExists(_ context.Context, name string) (bool, error) {
	_, ok := t.st.companies[name]
	return ok, nil
}

func (t *txStore) FindPolicy(_ context.Context, policyID id.PolicyID) (*models.Policy, error) {
	return t.st.findPolicy(policyID)
}

func (t *txStore) ListPolicies(_ context.Context, filter models.PolicyFilter) ([]*models.Policy, error) {
	return t.st.listPolicies(filter), nil
}

func (t *txStore) PeekSanadID(_ context.Context) (id.SanadID, error) {
	return t.st.nextSanad, nil
}

func (t *txStore) FindCertificate(_ context.Context, sanadID id.SanadID) (*models.Certificate, error) {
	return t.st.findCertificate(sanadID)
}

func (t *txStore) ListCertificates(_ context.Context, filter models.CertificateFilter) ([]*models.Certificate, error) {
	return t.st.listCertificates(filter), nil
}

func (t *txStore) FindCottageCandidates(_ context.Context, substrings []string) ([]models.CottageRecord, error) {
	return t.st.cottageCandidates(substrings), nil
}

func (t *txStore) AddCompany(_ context.Context, company *models.Company) error {
	if _, ok := t.st.companies[company.Name]; ok {
		return sentinel.ErrAlreadyUsed
	}
	cp := *company
	t.st.companies[company.Name] = &cp
	t.undo = append(t.undo, func() { delete(t.st.companies, company.Name) })
	return nil
}

func (t *txStore) CreatePolicy(_ context.Context, policy *models.Policy) error {
	if _, ok := t.st.policies[policy.ID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	cp := *policy
	t.st.policies[policy.ID] = &cp
	t.st.policyOrder = append(t.st.policyOrder, policy.ID)
	t.undo = append(t.undo, func() {
		delete(t.st.policies, policy.ID)
		t.st.policyOrder = t.st.policyOrder[:len(t.st.policyOrder)-1]
	})
	return nil
}

func (t *txStore) LockPolicy(_ context.Context, policyID id.PolicyID) (*models.Policy, error) {
	return t.st.findPolicy(policyID)
}

func (t *txStore) UpdateRemaining(_ context.Context, policyID id.PolicyID, remaining int64) error {
	p, ok := t.st.policies[policyID]
	if !ok {
		return sentinel.ErrNotFound
	}
	prev := p.RemainingValue
	p.RemainingValue = remaining
	t.undo = append(t.undo, func() { p.RemainingValue = prev })
	return nil
}

func (t *txStore) AllocateSanadID(_ context.Context) (id.SanadID, error) {
	allocated := t.st.nextSanad
	t.st.nextSanad++
	t.undo = append(t.undo, func() { t.st.nextSanad = allocated })
	return allocated, nil
}

func (t *txStore) InsertCertificate(_ context.Context, cert *models.Certificate) error {
	if _, ok := t.st.certIndex[cert.SanadID]; ok {
		return sentinel.ErrAlreadyUsed
	}
	cp := *cert
	t.st.certIndex[cert.SanadID] = len(t.st.certificates)
	t.st.certificates = append(t.st.certificates, &cp)
	t.undo = append(t.undo, func() {
		delete(t.st.certIndex, cert.SanadID)
		t.st.certificates = t.st.certificates[:len(t.st.certificates)-1]
	})
	return nil
}

func (t *txStore) AppendOutbox(_ context.Context, entry *models.OutboxEntry) error {
	cp := *entry
	t.st.outbox = append(t.st.outbox, &cp)
	t.undo = append(t.undo, func() { t.st.outbox = t.st.outbox[:len(t.st.outbox)-1] })
	return nil
}

// state is the unsynchronized ledger data. Callers hold Store.mu.
type state struct {
	companies    map[string]*models.Company
	policies     map[id.PolicyID]*models.Policy
	policyOrder  []id.PolicyID
	certificates []*models.Certificate
	certIndex    map[id.SanadID]int
	nextSanad    id.SanadID
	outbox       []*models.OutboxEntry
}

func newState() *state {
	return &state{
		companies: make(map[string]*models.Company),
		policies:  make(map[id.PolicyID]*models.Policy),
		certIndex: make(map[id.SanadID]int),
		nextSanad: id.FirstSanadID,
	}
}

func (st *state) listCompanies() []*models.Company {
	out := make([]*models.Company, 0, len(st.companies))
	for _, c := range st.companies {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (st *state) findPolicy(policyID id.PolicyID) (*models.Policy, error) {
	p, ok := st.policies[policyID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

// listPolicies walks creation order so the stable sort breaks ties by it.
func (st *state) listPolicies(filter models.PolicyFilter) []*models.Policy {
	out := make([]*models.Policy, 0)
	for _, pid := range st.policyOrder {
		p := st.policies[pid]
		if filter.CompanyName != "" && (p.CompanyName != filter.CompanyName || !p.HasBalance()) {
			continue
		}
		cp := *p
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CompanyName != out[j].CompanyName {
			return out[i].CompanyName < out[j].CompanyName
		}
		return out[i].PolicyNumber < out[j].PolicyNumber
	})
	return out
}

func (st *state) findCertificate(sanadID id.SanadID) (*models.Certificate, error) {
	i, ok := st.certIndex[sanadID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *st.certificates[i]
	return &cp, nil
}

// listCertificates returns newest first.
func (st *state) listCertificates(filter models.CertificateFilter) []*models.Certificate {
	out := make([]*models.Certificate, 0)
	for i := len(st.certificates) - 1; i >= 0; i-- {
		c := st.certificates[i]
		if filter.CompanyName != "" && c.CompanyName != filter.CompanyName {
			continue
		}
		if !filter.PolicyID.IsNil() && c.PolicyID != filter.PolicyID {
			continue
		}
		cp := *c
		out = append(out, &cp)
		if filter.Limit > 0 && len(out) == filter.Limit {
			break
		}
	}
	return out
}

func (st *state) cottageCandidates(substrings []string) []models.CottageRecord {
	out := make([]models.CottageRecord, 0)
	if len(substrings) == 0 {
		return out
	}
	for _, c := range st.certificates {
		for _, sub := range substrings {
			if pstrings.ContainsASCIIFold(c.CottageNumbers, sub) {
				out = append(out, models.CottageRecord{SanadID: c.SanadID, CottageNumbers: c.CottageNumbers})
				break
			}
		}
	}
	return out
}
