package inmemdb_test

import (
	"testing"

	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
	"github.com/cdlbuddy/cdltrainer/storage/database/inmem"
	"github.com/cdlbuddy/cdltrainer/tests"
)

func TestWalkthroughRepository(t *testing.T) {
	testutil.RunRepositoryTests(t, func(t *testing.T) walkthrough.Repository {
		db, err := inmemdb.Open()
		if err != nil {
			t.Fatalf("inmemdb.Open(): %v", err)
		}
		return inmemdb.NewWalkthroughRepository(db)
	})
}
