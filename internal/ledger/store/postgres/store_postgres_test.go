package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sanad/internal/ledger/models"
	"sanad/internal/ledger/store"
	id "sanad/pkg/domain"
	"sanad/pkg/platform/sentinel"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		code string
		want error
	}{
		{codeSerializationFailure, sentinel.ErrUnavailable},
		{codeDeadlockDetected, sentinel.ErrUnavailable},
		{codeLockNotAvailable, sentinel.ErrUnavailable},
		{codeUniqueViolation, sentinel.ErrAlreadyUsed},
	}
	for _, tc := range cases {
		t.Run(tc.code, func(t *testing.T) {
			err := classify(&pgconn.PgError{Code: tc.code})
			assert.ErrorIs(t, err, tc.want)
		})
	}

	t.Run("other codes pass through", func(t *testing.T) {
		pgErr := &pgconn.PgError{Code: "23503"}
		err := classify(pgErr)
		assert.Same(t, pgErr, err)
	})

	t.Run("non postgres errors pass through", func(t *testing.T) {
		plain := errors.New("boom")
		assert.Same(t, plain, classify(plain))
	})
}

func TestRunInTxLocksPolicyWithTimeout(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	policyID := id.NewPolicyID()
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`SELECT set_config('lock_timeout', $1, true)`)).
		WithArgs("250ms").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FROM policies WHERE id = \$1 FOR UPDATE`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{
			"id", "company_name", "policy_number", "policy_date", "total_value", "remaining_value", "created_at",
		}).AddRow(policyID.String(), "Alborz", "P-1", "d", int64(100), int64(40), now))
	mock.ExpectQuery(regexp.QuoteMeta(`UPDATE sanad_sequence SET next_value = next_value + 1`)).
		WillReturnRows(sqlmock.NewRows([]string{"next_value"}).AddRow(int64(4007)))
	mock.ExpectCommit()

	s := New(db, WithLockTimeout(250*time.Millisecond))
	var allocated id.SanadID
	err = s.RunInTx(context.Background(), func(tx store.Store) error {
		p, err := tx.LockPolicy(context.Background(), policyID)
		if err != nil {
			return err
		}
		assert.Equal(t, policyID, p.ID)
		assert.Equal(t, int64(40), p.RemainingValue)
		allocated, err = tx.AllocateSanadID(context.Background())
		return err
	})
	require.NoError(t, err)
	assert.Equal(t, id.SanadID(4007), allocated)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRunInTxLockTimeoutIsUnavailable(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`set_config`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(`FOR UPDATE`).WillReturnError(&pgconn.PgError{Code: codeLockNotAvailable})
	mock.ExpectRollback()

	err = New(db).RunInTx(context.Background(), func(tx store.Store) error {
		_, err := tx.LockPolicy(context.Background(), id.NewPolicyID())
		return err
	})
	assert.ErrorIs(t, err, sentinel.ErrUnavailable)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLockPolicyMissingIsNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectQuery(`FOR UPDATE`).WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectRollback()

	err = New(db, WithLockTimeout(0)).RunInTx(context.Background(), func(tx store.Store) error {
		_, err := tx.LockPolicy(context.Background(), id.NewPolicyID())
		return err
	})
	assert.ErrorIs(t, err, sentinel.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAddCompanyDuplicateIsAlreadyUsed(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO companies`).
		WillReturnError(&pgconn.PgError{Code: codeUniqueViolation, ConstraintName: "companies_pkey"})

	err = New(db).AddCompany(context.Background(), &models.Company{Name: "Alborz", CreatedAt: time.Now()})
	assert.ErrorIs(t, err, sentinel.ErrAlreadyUsed)
}

func TestOutboxAppendRollsBackWithIssuance(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`INSERT INTO outbox`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	failed := errors.New("insert certificate failed")
	err = New(db, WithLockTimeout(0)).RunInTx(context.Background(), func(tx store.Store) error {
		entry := &models.OutboxEntry{ID: uuid.New(), AggregateType: "policy", AggregateID: "p",
			EventType: "certificate_issued", Payload: []byte(`{}`), CreatedAt: time.Now()}
		if err := tx.AppendOutbox(context.Background(), entry); err != nil {
			return err
		}
		return failed
	})
	assert.ErrorIs(t, err, failed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReadsOutsideTransactionUseThePool(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT next_value FROM sanad_sequence`)).
		WillReturnRows(sqlmock.NewRows([]string{"next_value"}).AddRow(4012))

	next, err := New(db).PeekSanadID(context.Background())
	require.NoError(t, err)
	assert.Equal(t, id.SanadID(4012), next)
	assert.NoError(t, mock.ExpectationsWereMet())
}
