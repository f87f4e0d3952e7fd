package testutil

import (
	"context"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/cdlbuddy/cdltrainer/core"
	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
)

// RunRepositoryTests checks a walkthrough.Repository implementation against the repository contract.
// newRepo must return an empty repository.
func RunRepositoryTests(t *testing.T, newRepo func(t *testing.T) walkthrough.Repository) {
	t.Run("create and get", func(t *testing.T) { testCreateGet(t, newRepo(t)) })
	t.Run("update compares revisions", func(t *testing.T) { testUpdate(t, newRepo(t)) })
	t.Run("publish supersedes", func(t *testing.T) { testPublish(t, newRepo(t)) })
	t.Run("concurrent publications", func(t *testing.T) { testConcurrentPublish(t, newRepo(t)) })
	t.Run("delete", func(t *testing.T) { testDelete(t, newRepo(t)) })
	t.Run("query", func(t *testing.T) { testQuery(t, newRepo(t)) })
}

func event(doc walkthrough.Document, action walkthrough.Action, from walkthrough.Status) walkthrough.ReviewEvent {
	return walkthrough.ReviewEvent{
		DocumentID: doc.ID,
		Action:     action,
		ActorID:    "tester",
		ActorRole:  walkthrough.RoleSuperAdmin,
		FromStatus: from,
		ToStatus:   doc.Status,
		CreatedAt:  time.Now().UTC().Truncate(time.Microsecond),
	}
}

func testCreateGet(t *testing.T, repo walkthrough.Repository) {
	ctx := context.Background()
	doc := CreateDocument(t, repo, "org1", "class-a", walkthrough.StatusDraft, Script("Brakes", "Check the pads"))
	if doc.Revision != 1 {
		t.Errorf("CreateDocument() revision = %d; want 1", doc.Revision)
	}

	got, err := repo.GetDocument(ctx, doc.ID)
	if err != nil {
		t.Fatalf("GetDocument() error = %v", err)
	}
	if !got.CreatedAt.Equal(doc.CreatedAt) || !got.UpdatedAt.Equal(doc.UpdatedAt) {
		t.Errorf("GetDocument() times = %v, %v; want %v", got.CreatedAt, got.UpdatedAt, doc.CreatedAt)
	}
	got.CreatedAt, got.UpdatedAt = doc.CreatedAt, doc.UpdatedAt
	if !reflect.DeepEqual(got, doc) {
		t.Errorf("GetDocument() = %+v; want %+v", got, doc)
	}

	if _, err = repo.GetDocument(ctx, uuid.New().String()); err != walkthrough.ErrNotFound {
		t.Errorf("GetDocument() of unknown id error = %v; want %v", err, walkthrough.ErrNotFound)
	}

	events, err := repo.QueryEvents(ctx, doc.ID)
	if err != nil || len(events) != 1 || events[0].Action != walkthrough.ActionCreate || events[0].ID == "" {
		t.Errorf("QueryEvents() = %+v, %v; want the create event", events, err)
	}
}

func testUpdate(t *testing.T, repo walkthrough.Repository) {
	ctx := context.Background()
	doc := CreateDocument(t, repo, "org1", "class-a", walkthrough.StatusDraft, Script("Brakes", "Check the pads"))

	edited := doc
	edited.Label = "Class A"
	edited.Script = Script("Brakes", "Check the pads", "Check the lines")
	saved, err := repo.UpdateDocument(ctx, edited, event(edited, walkthrough.ActionEdit, walkthrough.StatusDraft))
	if err != nil {
		t.Fatalf("UpdateDocument() error = %v", err)
	}
	if saved.Revision != 2 || saved.Label != "Class A" {
		t.Errorf("UpdateDocument() = %+v", saved)
	}

	// stale revision
	stale := doc
	stale.Label = "lost update"
	if _, err = repo.UpdateDocument(ctx, stale, walkthrough.ReviewEvent{}); err != walkthrough.ErrConflict {
		t.Errorf("UpdateDocument() with stale revision error = %v; want %v", err, walkthrough.ErrConflict)
	}

	got, _ := repo.GetDocument(ctx, doc.ID)
	if got.Label != "Class A" || got.Script.StepCount() != 2 || got.Revision != 2 {
		t.Errorf("GetDocument() after updates = %+v", got)
	}

	events, _ := repo.QueryEvents(ctx, doc.ID)
	if len(events) != 2 || events[1].Action != walkthrough.ActionEdit {
		t.Errorf("QueryEvents() = %+v; want create and edit", events)
	}

	missing := doc
	missing.ID = uuid.New().String()
	if _, err = repo.UpdateDocument(ctx, missing, walkthrough.ReviewEvent{}); err != walkthrough.ErrNotFound {
		t.Errorf("UpdateDocument() of unknown id error = %v; want %v", err, walkthrough.ErrNotFound)
	}
}

func publish(t *testing.T, repo walkthrough.Repository, doc walkthrough.Document) (walkthrough.Document, *walkthrough.Document) {
	t.Helper()
	published, archived, err := repo.PublishDocument(context.Background(), doc, event(doc, walkthrough.ActionApprove, walkthrough.StatusInReview))
	if err != nil {
		t.Fatalf("PublishDocument() error = %v", err)
	}
	return published, archived
}

func testPublish(t *testing.T, repo walkthrough.Repository) {
	ctx := context.Background()
	key := walkthrough.Key{OrganizationID: "org1", Token: "class-a"}

	if _, err := repo.GetPublished(ctx, key); err != walkthrough.ErrNotFound {
		t.Errorf("GetPublished() error = %v; want %v", err, walkthrough.ErrNotFound)
	}

	a := CreateDocument(t, repo, "org1", "class-a", walkthrough.StatusInReview, Script("Brakes", "Check the pads"))
	pubA, archived := publish(t, repo, a)
	if pubA.Status != walkthrough.StatusPublished || pubA.Version != null.IntFrom(1) || pubA.Revision != 2 || archived != nil {
		t.Errorf("PublishDocument() = %+v, %+v", pubA, archived)
	}

	// publishing from a stale read fails
	if _, _, err := repo.PublishDocument(ctx, a, event(a, walkthrough.ActionApprove, walkthrough.StatusInReview)); err != walkthrough.ErrConflict {
		t.Errorf("PublishDocument() with stale revision error = %v; want %v", err, walkthrough.ErrConflict)
	}

	b := CreateDocument(t, repo, "org1", "class-a", walkthrough.StatusInReview, Script("Brakes", "Pump the brakes"))
	pubB, archived := publish(t, repo, b)
	if pubB.Version != null.IntFrom(2) {
		t.Errorf("PublishDocument() version = %v; want 2", pubB.Version)
	}
	if archived == nil || archived.ID != a.ID || archived.Status != walkthrough.StatusArchived || archived.Version != null.IntFrom(1) {
		t.Errorf("PublishDocument() archived = %+v; want %s", archived, a.ID)
	}

	got, err := repo.GetPublished(ctx, key)
	if err != nil || got.ID != b.ID {
		t.Errorf("GetPublished() = %v, %v; want %s", got.ID, err, b.ID)
	}
	old, _ := repo.GetDocument(ctx, a.ID)
	if old.Status != walkthrough.StatusArchived || old.Revision != pubA.Revision+1 {
		t.Errorf("superseded document = %+v", old)
	}

	events, _ := repo.QueryEvents(ctx, a.ID)
	last := events[len(events)-1]
	if last.Action != walkthrough.ActionArchive || last.FromStatus != walkthrough.StatusPublished || last.Version != null.IntFrom(1) {
		t.Errorf("archive event = %+v", last)
	}
	events, _ = repo.QueryEvents(ctx, b.ID)
	if last = events[len(events)-1]; last.Action != walkthrough.ActionApprove || last.Version != null.IntFrom(2) || last.ToStatus != walkthrough.StatusPublished {
		t.Errorf("publish event = %+v", last)
	}

	// other keys have their own sequence
	def := CreateDocument(t, repo, "", "class-a", walkthrough.StatusInReview, Script("Brakes", "Check the pads"))
	if pubDef, _ := publish(t, repo, def); pubDef.Version != null.IntFrom(1) {
		t.Errorf("default version = %v; want 1", pubDef.Version)
	}
	if got, err = repo.GetPublished(ctx, walkthrough.Key{Token: "class-a"}); err != nil || got.ID != def.ID {
		t.Errorf("GetPublished(default) = %v, %v; want %s", got.ID, err, def.ID)
	}
}

func testConcurrentPublish(t *testing.T, repo walkthrough.Repository) {
	ctx := context.Background()
	docs := []walkthrough.Document{
		CreateDocument(t, repo, "org1", "class-b", walkthrough.StatusInReview, Script("Coupling", "Check the fifth wheel")),
		CreateDocument(t, repo, "org1", "class-b", walkthrough.StatusInReview, Script("Coupling", "Check the kingpin")),
		CreateDocument(t, repo, "org1", "class-b", walkthrough.StatusInReview, Script("Coupling", "Check the apron")),
	}

	var wg sync.WaitGroup
	errs := make([]error, len(docs))
	for i := range docs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, errs[i] = repo.PublishDocument(ctx, docs[i], event(docs[i], walkthrough.ActionApprove, walkthrough.StatusInReview))
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("PublishDocument(%d) error = %v", i, err)
		}
	}

	all, err := repo.QueryDocuments(ctx, walkthrough.QueryFilter{Token: "class-b", OrganizationID: "org1"},
		core.DBOrdering{Field: "version", Ascending: true})
	if err != nil {
		t.Fatalf("QueryDocuments() error = %v", err)
	}
	var published int
	for i, d := range all {
		if d.Version != null.IntFrom(i+1) {
			t.Errorf("document %d version = %v; want %d", i, d.Version, i+1)
		}
		if d.Status == walkthrough.StatusPublished {
			published++
		}
	}
	if published != 1 {
		t.Errorf("%d published documents; want 1", published)
	}
}

func testDelete(t *testing.T, repo walkthrough.Repository) {
	ctx := context.Background()
	doc := CreateDocument(t, repo, "org1", "class-a", walkthrough.StatusDraft, Script("Brakes", "Check the pads"))

	if err := repo.DeleteDocument(ctx, doc.ID, doc.Revision+1); err != walkthrough.ErrConflict {
		t.Errorf("DeleteDocument() with stale revision error = %v; want %v", err, walkthrough.ErrConflict)
	}
	if err := repo.DeleteDocument(ctx, doc.ID, doc.Revision); err != nil {
		t.Fatalf("DeleteDocument() error = %v", err)
	}
	if err := repo.DeleteDocument(ctx, doc.ID, doc.Revision); err != walkthrough.ErrNotFound {
		t.Errorf("DeleteDocument() twice error = %v; want %v", err, walkthrough.ErrNotFound)
	}
	if events, err := repo.QueryEvents(ctx, doc.ID); err != nil || len(events) != 0 {
		t.Errorf("QueryEvents() after delete = %+v, %v; want none", events, err)
	}
}

func testQuery(t *testing.T, repo walkthrough.Repository) {
	ctx := context.Background()
	now := time.Now()

	a := CreateDocument(t, repo, "org1", "class-a", walkthrough.StatusDraft, Script("Brakes", "x"), now.Add(-3*time.Hour))
	b := CreateDocument(t, repo, "org1", "class-b", walkthrough.StatusInReview, Script("Brakes", "x"), now.Add(-2*time.Hour))
	c := CreateDocument(t, repo, "org2", "class-a", walkthrough.StatusDraft, Script("Brakes", "x"), now.Add(-1*time.Hour))
	d := CreateDocument(t, repo, "", "air-brakes", walkthrough.StatusDraft, Script("Brakes", "x"), now)

	tests := []struct {
		name     string
		filter   walkthrough.QueryFilter
		ordering []core.DBOrdering
		want     []string
	}{
		{name: "all, latest first", ordering: walkthrough.DefaultOrdering, want: []string{d.ID, c.ID, b.ID, a.ID}},
		{name: "oldest first", ordering: []core.DBOrdering{{Field: "created_at", Ascending: true}}, want: []string{a.ID, b.ID, c.ID, d.ID}},
		{name: "organization", filter: walkthrough.QueryFilter{OrganizationID: "org1"}, ordering: []core.DBOrdering{{Field: "token", Ascending: true}}, want: []string{a.ID, b.ID}},
		{name: "defaults", filter: walkthrough.QueryFilter{Defaults: true}, want: []string{d.ID}},
		{
			name:     "organization and defaults",
			filter:   walkthrough.QueryFilter{OrganizationID: "org2", Defaults: true},
			ordering: []core.DBOrdering{{Field: "created_at", Ascending: true}},
			want:     []string{c.ID, d.ID},
		},
		{name: "status", filter: walkthrough.QueryFilter{Statuses: []walkthrough.Status{walkthrough.StatusInReview, walkthrough.StatusPublished}}, want: []string{b.ID}},
		{name: "token", filter: walkthrough.QueryFilter{Token: "class-a"}, ordering: walkthrough.DefaultOrdering, want: []string{c.ID, a.ID}},
		{name: "search", filter: walkthrough.QueryFilter{Search: "AIR"}, want: []string{d.ID}},
		{name: "search wildcards are literal", filter: walkthrough.QueryFilter{Search: "%"}, want: []string{}},
		{name: "unknown ordering is ignored", filter: walkthrough.QueryFilter{Defaults: true}, ordering: []core.DBOrdering{{Field: "script; DROP TABLE walkthrough"}}, want: []string{d.ID}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			docs, err := repo.QueryDocuments(ctx, tt.filter, tt.ordering...)
			if err != nil {
				t.Fatalf("QueryDocuments() error = %v", err)
			}
			got := make([]string, 0, len(docs))
			for _, doc := range docs {
				got = append(got, doc.ID)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("QueryDocuments() = %v; want %v", got, tt.want)
			}
		})
	}
}
