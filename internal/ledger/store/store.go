// Package store defines the persistence contract of the ledger. Implementations
// live in the memory, sqlite and postgres subpackages and return
// pkg/platform/sentinel errors for storage facts.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"sanad/internal/ledger/models"
	id "sanad/pkg/domain"
)

// Reader covers display reads. They never take write locks.
type Reader interface {
	ListCompanies(ctx context.Context) ([]*models.Company, error)
	CompanyExists(ctx context.Context, name string) (bool, error)
	FindPolicy(ctx context.Context, policyID id.PolicyID) (*models.Policy, error)
	ListPolicies(ctx context.Context, filter models.PolicyFilter) ([]*models.Policy, error)
	// PeekSanadID returns the identifier the next issuance would receive.
	PeekSanadID(ctx context.Context) (id.SanadID, error)
	FindCertificate(ctx context.Context, sanadID id.SanadID) (*models.Certificate, error)
	ListCertificates(ctx context.Context, filter models.CertificateFilter) ([]*models.Certificate, error)
	// FindCottageCandidates returns certificates whose cottage list contains any
	// of substrings, compared ASCII case-insensitively, ordered by sanad id.
	FindCottageCandidates(ctx context.Context, substrings []string) ([]models.CottageRecord, error)
}

// Writer covers mutations. Issuance mutations are only valid inside RunInTx.
type Writer interface {
	AddCompany(ctx context.Context, company *models.Company) error
	CreatePolicy(ctx context.Context, policy *models.Policy) error
	// LockPolicy loads a policy and holds it against concurrent issuance until
	// the transaction ends.
	LockPolicy(ctx context.Context, policyID id.PolicyID) (*models.Policy, error)
	UpdateRemaining(ctx context.Context, policyID id.PolicyID, remaining int64) error
	// AllocateSanadID reserves the next identifier. A rolled back transaction
	// releases it.
	AllocateSanadID(ctx context.Context) (id.SanadID, error)
	InsertCertificate(ctx context.Context, cert *models.Certificate) error
	AppendOutbox(ctx context.Context, entry *models.OutboxEntry) error
}

// Store is the full ledger persistence surface.
type Store interface {
	Reader
	Writer
}

// Ledger is a Store that can open transactions. fn receives a Store bound to
// the transaction; returning an error rolls everything back.
type Ledger interface {
	Store
	RunInTx(ctx context.Context, fn func(tx Store) error) error
}

// Outbox is implemented by stores that persist outbox entries for relay.
type Outbox interface {
	FetchPending(ctx context.Context, limit int) ([]*models.OutboxEntry, error)
	MarkProcessed(ctx context.Context, ids []uuid.UUID, at time.Time) error
}
