package testutil

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/volatiletech/null/v8"

	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
	"github.com/cdlbuddy/cdltrainer/storage/database"
)

// DatabaseURLEnv names the variable holding the test database URL. Postgres tests are skipped without it.
const DatabaseURLEnv = "TEST_DATABASE_URL"

// OpenDB opens and migrates the test database. It returns nil when DatabaseURLEnv is not set.
func OpenDB() (*sqlx.DB, error) {
	dsn := os.Getenv(DatabaseURLEnv)
	if dsn == "" {
		return nil, nil
	}
	db, err := database.OpenURL(dsn)
	if err != nil {
		return nil, err
	}
	if err = database.Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// ResetDB empties the walkthrough tables.
func ResetDB(t *testing.T, db *sqlx.DB) {
	if db == nil {
		return
	}
	if _, err := db.Exec("TRUNCATE walkthrough, walkthrough_event"); err != nil {
		t.Fatalf("ResetDB() failed: %v", err)
	}
}

// Script returns a valid single-section script.
func Script(title string, steps ...string) walkthrough.Script {
	sec := walkthrough.Section{Title: title}
	for _, s := range steps {
		sec.Steps = append(sec.Steps, walkthrough.Step{Script: s})
	}
	return walkthrough.Script{sec}
}

// CreateDocument stores a draft of the organization (empty for a default) directly in the repository.
func CreateDocument(
	t *testing.T,
	repo walkthrough.Repository,
	org, token string,
	status walkthrough.Status,
	script walkthrough.Script,
	createdAt ...time.Time,
) walkthrough.Document {
	tstamp := time.Now().UTC().Truncate(time.Microsecond)
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC().Truncate(time.Microsecond)
	}
	doc := walkthrough.Document{
		ID:             uuid.New().String(),
		OrganizationID: null.NewString(org, org != ""),
		Token:          token,
		Label:          token,
		Status:         status,
		Script:         script,
		Source:         walkthrough.SourceVisual,
		IsDefault:      org == "",
		CreatedBy:      "testutil",
		CreatedAt:      tstamp,
		UpdatedAt:      tstamp,
	}
	event := walkthrough.ReviewEvent{
		DocumentID: doc.ID,
		Action:     walkthrough.ActionCreate,
		ActorID:    doc.CreatedBy,
		ToStatus:   status,
		CreatedAt:  tstamp,
	}
	doc, err := repo.CreateDocument(context.Background(), doc, event)
	if err != nil {
		t.Fatalf("CreateDocument() failed: %v", err)
	}
	return doc
}

// PublishDocument publishes doc directly in the repository.
func PublishDocument(t *testing.T, repo walkthrough.Repository, doc walkthrough.Document) walkthrough.Document {
	event := walkthrough.ReviewEvent{
		DocumentID: doc.ID,
		Action:     walkthrough.ActionApprove,
		ActorID:    "testutil",
		FromStatus: doc.Status,
		ToStatus:   walkthrough.StatusPublished,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
	published, _, err := repo.PublishDocument(context.Background(), doc, event)
	if err != nil {
		t.Fatalf("PublishDocument() failed: %v", err)
	}
	return published
}
