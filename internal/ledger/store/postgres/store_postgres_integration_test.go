//go:build integration

package postgres_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"sanad/internal/ledger/store"
	"sanad/internal/ledger/store/postgres"
	"sanad/internal/ledger/store/storetest"
	"sanad/pkg/testutil/containers"
)

func TestPostgresStoreContract(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	st := &storetest.Suite{}
	st.NewLedger = func() store.Ledger {
		pg := containers.GetManager().GetPostgres(st.T())
		st.Require().NoError(pg.ResetLedger(context.Background()))
		return postgres.New(pg.DB)
	}
	suite.Run(t, st)
}
