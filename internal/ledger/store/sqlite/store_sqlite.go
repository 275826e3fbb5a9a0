// Package sqlite persists the ledger in a single SQLite file (modernc driver).
//
// Write transactions are opened IMMEDIATE (see database.SQLiteDSN), so the
// RESERVED lock is taken at BEGIN: two issuances never interleave their
// read-check-decrement sequences. A writer that cannot get the lock within
// busy_timeout fails with SQLITE_BUSY, reported as sentinel.ErrUnavailable.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"sanad/internal/ledger/models"
	"sanad/internal/ledger/store"
	id "sanad/pkg/domain"
	dErrors "sanad/pkg/domain-errors"
	"sanad/pkg/platform/sentinel"
	pstrings "sanad/pkg/platform/strings"
	txcontext "sanad/pkg/platform/tx"
)

const defaultTxTimeout = 5 * time.Second

// Store is the SQLite-backed ledger.
type Store struct {
	db      *sql.DB
	exec    txcontext.Executor
	timeout time.Duration
}

type Option func(*Store)

func WithTxTimeout(d time.Duration) Option {
	return func(s *Store) {
		s.timeout = d
	}
}

// New wraps an open database whose schema is already migrated.
func New(db *sql.DB, opts ...Option) *Store {
	s := &Store{db: db, exec: db, timeout: defaultTxTimeout}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

var (
	_ store.Ledger = (*Store)(nil)
	_ store.Outbox = (*Store)(nil)
)

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

	bound := &Store{db: s.db, exec: tx, timeout: s.timeout}
	if err := fn(bound); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return classify(fmt.Errorf("commit tx: %w", err))
	}
	return nil
}

func (s *Store) ListCompanies(ctx context.Context) ([]*models.Company, error) {
	rows, err := s.exec.QueryContext(ctx, `SELECT name, created_at FROM companies ORDER BY name`)
	if err != nil {
		return nil, classify(fmt.Errorf("list companies: %w", err))
	}
	defer rows.Close()

	var out []*models.Company
	for rows.Next() {
		var c models.Company
		var createdAt int64
		if err := rows.Scan(&c.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("scan company: %w", err)
		}
		c.CreatedAt = fromMillis(createdAt)
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Store) CompanyExists(ctx context.Context, name string) (bool, error) {
	var one int
	err := s.exec.QueryRowContext(ctx, `SELECT 1 FROM companies WHERE name = ?`, name).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, classify(fmt.Errorf("check company: %w", err))
	}
	return true, nil
}

func (s *Store) AddCompany(ctx context.Context, company *models.Company) error {
	_, err := s.exec.ExecContext(ctx,
		`INSERT INTO companies (name, created_at) VALUES (?, ?)`,
		company.Name, toMillis(company.CreatedAt))
	if err != nil {
		return classify(fmt.Errorf("insert company: %w", err))
	}
	return nil
}

const policyColumns = `id, company_name, policy_number, policy_date, total_value, remaining_value, created_at`

func (s *Store) CreatePolicy(ctx context.Context, p *models.Policy) error {
	_, err := s.exec.ExecContext(ctx,
		`INSERT INTO policies (`+policyColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		p.ID.String(), p.CompanyName, p.PolicyNumber, p.PolicyDate,
		p.TotalValue, p.RemainingValue, toMillis(p.CreatedAt))
	if err != nil {
		return classify(fmt.Errorf("insert policy: %w", err))
	}
	return nil
}

func (s *Store) FindPolicy(ctx context.Context, policyID id.PolicyID) (*models.Policy, error) {
	row := s.exec.QueryRowContext(ctx,
		`SELECT `+policyColumns+` FROM policies WHERE id = ?`, policyID.String())
	p, err := scanPolicy(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, classify(fmt.Errorf("find policy: %w", err))
	}
	return p, nil
}

// LockPolicy relies on the RESERVED lock taken by BEGIN IMMEDIATE.
func (s *Store) LockPolicy(ctx context.Context, policyID id.PolicyID) (*models.Policy, error) {
	return s.FindPolicy(ctx, policyID)
}

func (s *Store) ListPolicies(ctx context.Context, filter models.PolicyFilter) ([]*models.Policy, error) {
	var (
		rows *sql.Rows
		err  error
	)
	if filter.CompanyName != "" {
		rows, err = s.exec.QueryContext(ctx,
			`SELECT `+policyColumns+` FROM policies
			 WHERE company_name = ? AND remaining_value > 0
			 ORDER BY policy_number, rowid`, filter.CompanyName)
	} else {
		rows, err = s.exec.QueryContext(ctx,
			`SELECT `+policyColumns+` FROM policies ORDER BY company_name, policy_number, rowid`)
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
	res, err := s.exec.ExecContext(ctx,
		`UPDATE policies SET remaining_value = ? WHERE id = ?`, remaining, policyID.String())
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
	err := s.exec.QueryRowContext(ctx, `SELECT next_value FROM sanad_sequence WHERE id = 1`).Scan(&next)
	if err != nil {
		return 0, classify(fmt.Errorf("peek sanad id: %w", err))
	}
	return id.SanadID(next), nil
}

func (s *Store) AllocateSanadID(ctx context.Context) (id.SanadID, error) {
	var allocated int64
	err := s.exec.QueryRowContext(ctx,
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
	_, err := s.exec.ExecContext(ctx,
		`INSERT INTO certificates (`+certificateColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.SanadID.Int64(), c.SanadDate, c.CompanyName, c.PolicyID.String(), c.PolicyNumber, c.PolicyDate,
		c.CottageNumbers, c.Count, c.Value, c.RemainingAfter, toMillis(c.IssuedAt))
	if err != nil {
		return classify(fmt.Errorf("insert certificate: %w", err))
	}
	return nil
}

func (s *Store) FindCertificate(ctx context.Context, sanadID id.SanadID) (*models.Certificate, error) {
	row := s.exec.QueryRowContext(ctx,
		`SELECT `+certificateColumns+` FROM certificates WHERE sanad_id = ?`, sanadID.Int64())
	c, err := scanCertificate(row)
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
		where = append(where, "company_name = ?")
		args = append(args, filter.CompanyName)
	}
	if !filter.PolicyID.IsNil() {
		where = append(where, "policy_id = ?")
		args = append(args, filter.PolicyID.String())
	}
	query := `SELECT ` + certificateColumns + ` FROM certificates`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY sanad_id DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.exec.QueryContext(ctx, query, args...)
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

// FindCottageCandidates uses LIKE, which SQLite compares ASCII case-insensitively.
func (s *Store) FindCottageCandidates(ctx context.Context, substrings []string) ([]models.CottageRecord, error) {
	if len(substrings) == 0 {
		return []models.CottageRecord{}, nil
	}
	clauses := make([]string, len(substrings))
	args := make([]any, len(substrings))
	for i, sub := range substrings {
		clauses[i] = `cottage_numbers LIKE ? ESCAPE '\'`
		args[i] = pstrings.ContainsPattern(sub)
	}
	rows, err := s.exec.QueryContext(ctx,
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
	_, err := s.exec.ExecContext(ctx,
		`INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ID.String(), e.AggregateType, e.AggregateID, e.EventType, e.Payload, toMillis(e.CreatedAt))
	if err != nil {
		return classify(fmt.Errorf("insert outbox entry: %w", err))
	}
	return nil
}

func (s *Store) FetchPending(ctx context.Context, limit int) ([]*models.OutboxEntry, error) {
	rows, err := s.exec.QueryContext(ctx,
		`SELECT id, aggregate_type, aggregate_id, event_type, payload, created_at
		 FROM outbox WHERE processed_at IS NULL
		 ORDER BY created_at, rowid LIMIT ?`, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("fetch outbox: %w", err))
	}
	defer rows.Close()

	var out []*models.OutboxEntry
	for rows.Next() {
		var e models.OutboxEntry
		var rawID string
		var createdAt int64
		if err := rows.Scan(&rawID, &e.AggregateType, &e.AggregateID, &e.EventType, &e.Payload, &createdAt); err != nil {
			return nil, fmt.Errorf("scan outbox entry: %w", err)
		}
		if e.ID, err = uuid.Parse(rawID); err != nil {
			return nil, fmt.Errorf("parse outbox id: %w", err)
		}
		e.CreatedAt = fromMillis(createdAt)
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
	args = append(args, toMillis(at))
	for i, entryID := range ids {
		placeholders[i] = "?"
		args = append(args, entryID.String())
	}
	_, err := s.exec.ExecContext(ctx,
		`UPDATE outbox SET processed_at = ? WHERE processed_at IS NULL AND id IN (`+strings.Join(placeholders, ", ")+`)`,
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
	var rawID string
	var createdAt int64
	if err := row.Scan(&rawID, &p.CompanyName, &p.PolicyNumber, &p.PolicyDate,
		&p.TotalValue, &p.RemainingValue, &createdAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(rawID)
	if err != nil {
		return nil, fmt.Errorf("parse policy id: %w", err)
	}
	p.ID = id.PolicyID(parsed)
	p.CreatedAt = fromMillis(createdAt)
	return &p, nil
}

func scanCertificate(row scanner) (*models.Certificate, error) {
	var c models.Certificate
	var sid, issuedAt int64
	var rawPolicyID string
	if err := row.Scan(&sid, &c.SanadDate, &c.CompanyName, &rawPolicyID, &c.PolicyNumber, &c.PolicyDate,
		&c.CottageNumbers, &c.Count, &c.Value, &c.RemainingAfter, &issuedAt); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(rawPolicyID)
	if err != nil {
		return nil, fmt.Errorf("parse policy id: %w", err)
	}
	c.SanadID = id.SanadID(sid)
	c.PolicyID = id.PolicyID(parsed)
	c.IssuedAt = fromMillis(issuedAt)
	return &c, nil
}

// classify maps SQLite result codes to sentinel facts.
func classify(err error) error {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return err
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return fmt.Errorf("%w: %w", sentinel.ErrUnavailable, err)
	case sqlite3.SQLITE_CONSTRAINT:
		switch se.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return fmt.Errorf("%w: %w", sentinel.ErrAlreadyUsed, err)
		}
	}
	return err
}

func toMillis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}
