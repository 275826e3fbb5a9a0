// Package postgres persists the ledger in PostgreSQL through pgx's database/sql driver.
//
// Issuance locks the policy row (SELECT ... FOR UPDATE) and then the single
// sequence row (UPDATE ... RETURNING), always in that order, so concurrent
// issuances serialize per policy and allocate identifiers in commit order.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"sanad/internal/ledger/models"
	"sanad/internal/ledger/store"
	id "sanad/pkg/domain"
	dErrors "sanad/pkg/domain-errors"
	"sanad/pkg/platform/sentinel"
	pstrings "sanad/pkg/platform/strings"
	txcontext "sanad/pkg/platform/tx"
)

const (
	defaultTxTimeout   = 5 * time.Second
	defaultLockTimeout = 2 * time.Second
)

// Postgres error codes treated as transient contention.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeLockNotAvailable     = "55P03"
	codeUniqueViolation      = "23505"
)

// Store is the PostgreSQL-backed ledger.
type Store struct {
	db          *sql.DB
	tx          *sql.Tx
	timeout     time.Duration
	lockTimeout time.Duration
}

type Option func(*Store)

func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// WithLockTimeout bounds how long an issuance waits for a row lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.lockTimeout = d
	}
}

// New constructs a PostgreSQL-backed ledger store.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, timeout: defaultTxTimeout, lockTimeout: defaultLockTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ store.Ledger = (*Store)(nil)
	_ store.Outbox = (*Store)(nil)
)

// executor is the transaction when bound by RunInTx, otherwise the pool.
func (s *Store) executor() txcontext.Executor {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

func (s *Store) RunInTx(ctx context.Context, fn func(tx store.Store) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return classify(fmt.Errorf("begin tx: %w", err))
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if s.lockTimeout > 0 {
		if _, err := tx.ExecContext(ctx, `SELECT set_config('lock_timeout', $1, true)`,
			fmt.Sprintf("%dms", s.lockTimeout.Milliseconds())); err != nil {
			return classify(fmt.Errorf("set lock timeout: %w", err))
		}
	}

	bound := &Store{db: s.db, tx: tx, timeout: s.timeout, lockTimeout: s.lockTimeout}
	if err := fn(bound); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (s *Store) ListCompanies(ctx context.Context) ([]*models.Company, error) {
	rows, err := s.executor().QueryContext(ctx,
		`SELECT name, created_at FROM companies ORDER BY name COLLATE "C"`)
	if err != nil {
		return nil, classify(fmt.Errorf("list companies: %w", err))
	}
	defer rows.Close()

	var out []*models.Company
	for rows.Next() {
		var c models.Company
		if err := rows.Scan(&c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) CompanyExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	err := s.executor().QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM companies WHERE name = $1)`, name).Scan(&exists)
	if err != nil {
		return false, classify(fmt.Errorf("check company: %w", err))
	}
	return exists, nil
}

func (s *Store) AddCompany(ctx context.Context, company *models.Company) error {
	_, err := s.executor().ExecContext(ctx,
		`INSERT INTO companies (name, created_at) VALUES ($1, $2)`, company.Name, company.CreatedAt)
	if err != nil {
		return classify(fmt.Errorf("insert company: %w", err))
	}
	return nil
}

const policyColumns = `id, company_name, policy_number, policy_date, total_value, remaining_value, created_at`

func (s *Store) CreatePolicy(ctx context.Context, p *models.Policy) error {
	_, err := s.executor().ExecContext(ctx,
		`INSERT INTO policies (`+policyColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		uuid.UUID(p.ID), p.CompanyName, p.PolicyNumber, p.PolicyDate,
		p.TotalValue, p.RemainingValue, p.CreatedAt)
	if err != nil {
		return classify(fmt.Errorf("insert policy: %w", err))
	}
	return nil
}

func (s *Store) FindPolicy(ctx context.Context, policyID id.PolicyID) (*models.Policy, error) {
	return s.findPolicy(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = $1`, policyID)
}

func (s *Store) LockPolicy(ctx context.Context, policyID id.PolicyID) (*models.Policy, error) {
	return s.findPolicy(ctx, `SELECT `+policyColumns+` FROM policies WHERE id = $1 FOR UPDATE`, policyID)
}

func (s *Store) findPolicy(ctx context.Context, query string, policyID id.PolicyID) (*models.Policy, error) {
	p, err := scanPolicy(s.executor().QueryRowContext(ctx, query, uuid.UUID(policyID)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, classify(fmt.Errorf("find policy: %w", err))
	}
	return p, nil
}

func (s *Store) ListPolicies(ctx context.Context, filter models.PolicyFilter) ([]*models.Policy, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if filter.CompanyName != "" {
		rows, err = s.executor().QueryContext(ctx,
			`SELECT `+policyColumns+` FROM policies
			 WHERE company_name = $1 AND remaining_value > 0
			 ORDER BY policy_number COLLATE "C", created_seq`, filter.CompanyName)
	} else {
		rows, err = s.executor().QueryContext(ctx,
			`SELECT `+policyColumns+` FROM policies
			 ORDER BY company_name COLLATE "C", policy_number COLLATE "C", created_seq`)
	}
	if err != nil {
		return nil, classify(fmt.Errorf("list policies: %w", err))
	}
	defer rows.Close()

	var out []*models.Policy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, fmt.Errorf("scan policy: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdateRemaining(ctx context.Context, policyID id.PolicyID, remaining int64) error {
	res, err := s.executor().ExecContext(ctx,
		`UPDATE policies SET remaining_value = $1 WHERE id = $2`, remaining, uuid.UUID(policyID))
	if err != nil {
		return classify(fmt.Errorf("update remaining: %w", err))
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *Store) PeekSanadID(ctx context.Context) (id.SanadID, error) {
	var next int64
	err := s.executor().QueryRowContext(ctx, `SELECT next_value FROM sanad_sequence WHERE id = 1`).Scan(&next)
	if err != nil {
		return 0, classify(fmt.Errorf("peek sanad id: %w", err))
	}
	return id.SanadID(next), nil
}

func (s *Store) AllocateSanadID(ctx context.Context) (id.SanadID, error) {
	var allocated int64
	err := s.executor().QueryRowContext(ctx,
		`UPDATE sanad_sequence SET next_value = next_value + 1 WHERE id = 1 RETURNING next_value - 1`,
	).Scan(&allocated)
	if err != nil {
		return 0, classify(fmt.Errorf("allocate sanad id: %w", err))
	}
	return id.SanadID(allocated), nil
}

const certificateColumns = `sanad_id, sanad_date, company_name, policy_id, policy_number, policy_date,
	cottage_numbers, count, value, remaining_after, issued_at`

func (s *Store) InsertCertificate(ctx context.Context, c *models.Certificate) error {
	_, err := s.executor().ExecContext(ctx,
		`INSERT INTO certificates (`+certificateColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		c.SanadID.Int64(), c.SanadDate, c.CompanyName, uuid.UUID(c.PolicyID), c.PolicyNumber, c.PolicyDate,
		c.CottageNumbers, c.Count, c.Value, c.RemainingAfter, c.IssuedAt)
	if err != nil {
		return classify(fmt.Errorf("insert certificate: %w", err))
	}
	return nil
}

func (s *Store) FindCertificate(ctx context.Context, sanadID id.SanadID) (*models.Certificate, error) {
	c, err := scanCertificate(s.executor().QueryRowContext(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE sanad_id = $1`, sanadID.Int64()))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, classify(fmt.Errorf("find certificate: %w", err))
	}
	return c, nil
}

func (s *Store) ListCertificates(ctx context.Context, filter models.CertificateFilter) ([]*models.Certificate, error) {
	var (
		where []string
		args  []any
	)
	if filter.CompanyName != "" {
		args = append(args, filter.CompanyName)
		where = append(where, fmt.Sprintf("company_name = $%d", len(args)))
	}
	if !filter.PolicyID.IsNil() {
		args = append(args, uuid.UUID(filter.PolicyID))
		where = append(where, fmt.Sprintf("policy_id = $%d", len(args)))
	}
	query := `SELECT ` + certificateColumns + ` FROM certificates`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY sanad_id DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := s.executor().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("list certificates: %w", err))
	}
	defer rows.Close()

	var out []*models.Certificate
	for rows.Next() {
		c, err := scanCertificate(rows)
		if err != nil {
			return nil, fmt.Errorf("scan certificate: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// FindCottageCandidates uses ILIKE, a superset of ASCII case folding; the
// ledger service narrows the candidates.
func (s *Store) FindCottageCandidates(ctx context.Context, substrings []string) ([]models.CottageRecord, error) {
	if len(substrings) == 0 {
		return []models.CottageRecord{}, nil
	}
	clauses := make([]string, len(substrings))
	args := make([]any, len(substrings))
	for i, sub := range substrings {
		clauses[i] = fmt.Sprintf(`cottage_numbers ILIKE $%d ESCAPE '\'`, i+1)
		args[i] = pstrings.ContainsPattern(sub)
	}
	rows, err := s.executor().QueryContext(ctx,
		`SELECT sanad_id, cottage_numbers FROM certificates WHERE `+strings.Join(clauses, " OR ")+
			` ORDER BY sanad_id`, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("find cottage candidates: %w", err))
	}
	defer rows.Close()

	out := make([]models.CottageRecord, 0)
	for rows.Next() {
		var rec models.CottageRecord
		var sid int64
		if err := rows.Scan(&sid, &rec.CottageNumbers); err != nil {
			return nil, fmt.Errorf("scan cottage record: %w", err)
		}
		rec.SanadID = id.SanadID(sid)
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) AppendOutbox(ctx context.Context, e *models.OutboxEntry) error {
	_, err := s.executor().ExecContext(ctx,
		`INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		e.ID, e.AggregateType, e.AggregateID, e.EventType, string(e.Payload), e.CreatedAt)
	if err != nil {
		return classify(fmt.Errorf("insert outbox entry: %w", err))
	}
	return nil
}

// FetchPending returns unprocessed entries, oldest first.
func (s *Store) FetchPending(ctx context.Context, limit int) ([]*models.OutboxEntry, error) {
	rows, err := s.executor().QueryContext(ctx,
		`SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		 FROM outbox WHERE processed_at IS NULL
		 ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("fetch outbox: %w", err))
	}
	defer rows.Close()

	var out []*models.OutboxEntry
	for rows.Next() {
		var e models.OutboxEntry
		if err := rows.Scan(&e.ID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		out = append(out, &e)
	}
	return out, rows.Err()
}

func (s *Store) MarkProcessed(ctx context.Context, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := make([]string, len(ids))
	args := make([]any, 0, len(ids)+1)
	args = append(args, at)
	for i, entryID := range ids {
		args = append(args, entryID)
		placeholders[i] = fmt.Sprintf("$%d", i+2)
	}
	_, err := s.executor().ExecContext(ctx,
		`UPDATE outbox SET processed_at = $1 WHERE processed_at IS NULL AND id IN (`+strings.Join(placeholders, ", ")+`)`,
		args...)
	if err != nil {
		return classify(fmt.Errorf("mark outbox processed: %w", err))
	}
	return nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPolicy(row scanner) (*models.Policy, error) {
	var p models.Policy
	var rawID uuid.UUID
	if err := row.Scan(&rawID, &p.CompanyName, &p.PolicyNumber, &p.PolicyDate,
		&p.TotalValue, &p.RemainingValue, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.ID = id.PolicyID(rawID)
	return &p, nil
}

func scanCertificate(row scanner) (*models.Certificate, error) {
	var c models.Certificate
	var sid int64
	var rawPolicyID uuid.UUID
	if err := row.Scan(&sid, &c.SanadDate, &c.CompanyName, &rawPolicyID, &c.PolicyNumber, &c.PolicyDate,
		&c.CottageNumbers, &c.Count, &c.Value, &c.RemainingAfter, &c.IssuedAt); err != nil {
		return nil, err
	}
	c.SanadID = id.SanadID(sid)
	c.PolicyID = id.PolicyID(rawPolicyID)
	return &c, nil
}

// classify maps Postgres error codes to sentinel facts.
func classify(err error) error {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeSerializationFailure, codeDeadlockDetected, codeLockNotAvailable:
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	case codeUniqueViolation:
		return fmt.Errorf("%w: %w", sentinel.ErrAlreadyUsed, err)
	}
	return err
}
