package sqlxrepos_test

import (
	"fmt"
	"os"
	"testing"

	"github.com/jmoiron/sqlx"

	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
	"github.com/cdlbuddy/cdltrainer/storage/database/sqlx"
	"github.com/cdlbuddy/cdltrainer/tests"
)

var db *sqlx.DB

func TestMain(m *testing.M) {
	var err error
	if db, err = testutil.OpenDB(); err != nil {
		fmt.Printf("testutil.OpenDB(): %v\n", err)
		os.Exit(1)
	}

	code := m.Run()

	if db != nil {
		if err = db.Close(); err != nil {
			fmt.Printf("db.Close(): %v\n", err)
			os.Exit(1)
		}
	}
	os.Exit(code)
}

func TestWalkthroughRepository(t *testing.T) {
	if db == nil {
		t.Skipf("%s is not set", testutil.DatabaseURLEnv)
	}
	testutil.RunRepositoryTests(t, func(t *testing.T) walkthrough.Repository {
		testutil.ResetDB(t, db)
		return sqlxrepos.NewWalkthroughRepository(db)
	})
}
