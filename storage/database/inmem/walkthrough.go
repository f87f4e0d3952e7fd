package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/volatiletech/null/v8"

	"github.com/cdlbuddy/cdltrainer/core"
	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
)

type walkthroughRepository struct {
	db *walkthroughTable
}

var _ walkthrough.Repository = (*walkthroughRepository)(nil) // interface compliance check

func NewWalkthroughRepository(db *DB) walkthrough.Repository {
	return &walkthroughRepository{db: db.walkthrough}
}

func clone(doc walkthrough.Document) walkthrough.Document {
	doc.Script = doc.Script.Clone()
	return doc
}

func (repo *walkthroughRepository) record(event walkthrough.ReviewEvent) {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	repo.db.events[event.DocumentID] = append(repo.db.events[event.DocumentID], event)
}

// publishedUnder returns the published document of key, other than excludedID.
func (repo *walkthroughRepository) publishedUnder(key walkthrough.Key, excludedID string) *walkthrough.Document {
	for _, d := range repo.db.docs {
		if d.ID != excludedID && d.Status == walkthrough.StatusPublished && d.Key() == key {
			return d
		}
	}
	return nil
}

func (repo *walkthroughRepository) CreateDocument(_ context.Context, doc walkthrough.Document, event walkthrough.ReviewEvent) (walkthrough.Document, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	if _, exists := repo.db.docs[doc.ID]; exists {
		return walkthrough.Document{}, walkthrough.ErrConflict
	}
	if doc.Status == walkthrough.StatusPublished && repo.publishedUnder(doc.Key(), doc.ID) != nil {
		return walkthrough.Document{}, walkthrough.ErrConflict
	}

	doc.Revision = 1
	stored := clone(doc)
	repo.db.docs[doc.ID] = &stored
	if event.Action != "" {
		event.DocumentID = doc.ID
		repo.record(event)
	}
	return clone(stored), nil
}

func (repo *walkthroughRepository) GetDocument(_ context.Context, id string) (walkthrough.Document, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if doc, ok := repo.db.docs[id]; ok {
		return clone(*doc), nil
	}
	return walkthrough.Document{}, walkthrough.ErrNotFound
}

func (repo *walkthroughRepository) QueryDocuments(_ context.Context, filter walkthrough.QueryFilter, ordering ...core.DBOrdering) ([]walkthrough.Document, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	search := strings.ToLower(filter.Search)
	docs := make([]walkthrough.Document, 0, len(repo.db.docs))
	for _, d := range repo.db.docs {
		if search != "" &&
			!strings.Contains(strings.ToLower(d.Label), search) &&
			!strings.Contains(strings.ToLower(d.Token), search) &&
			!strings.Contains(strings.ToLower(d.ClassCode), search) {
			continue
		}
		if len(filter.Statuses) > 0 && !hasStatus(filter.Statuses, d.Status) {
			continue
		}
		if filter.Token != "" && d.Token != filter.Token {
			continue
		}
		if filter.OrganizationID != "" || filter.Defaults {
			ownOrg := filter.OrganizationID != "" && d.OrganizationID.String == filter.OrganizationID
			isDefault := filter.Defaults && !d.OrganizationID.Valid
			if !ownOrg && !isDefault {
				continue
			}
		}
		docs = append(docs, clone(*d))
	}

	sortDocuments(docs, ordering)
	return docs, nil
}

func (repo *walkthroughRepository) GetPublished(_ context.Context, key walkthrough.Key) (walkthrough.Document, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if doc := repo.publishedUnder(key, ""); doc != nil {
		return clone(*doc), nil
	}
	return walkthrough.Document{}, walkthrough.ErrNotFound
}

func (repo *walkthroughRepository) UpdateDocument(_ context.Context, doc walkthrough.Document, event walkthrough.ReviewEvent) (walkthrough.Document, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.docs[doc.ID]
	if !ok {
		return walkthrough.Document{}, walkthrough.ErrNotFound
	}
	if stored.Revision != doc.Revision {
		return walkthrough.Document{}, walkthrough.ErrConflict
	}
	if doc.Status == walkthrough.StatusPublished && repo.publishedUnder(doc.Key(), doc.ID) != nil {
		return walkthrough.Document{}, walkthrough.ErrConflict
	}

	doc.Revision++
	doc.CreatedAt = stored.CreatedAt
	*stored = clone(doc)
	if event.Action != "" {
		repo.record(event)
	}
	return clone(doc), nil
}

func (repo *walkthroughRepository) PublishDocument(_ context.Context, doc walkthrough.Document, event walkthrough.ReviewEvent) (walkthrough.Document, *walkthrough.Document, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.docs[doc.ID]
	if !ok {
		return walkthrough.Document{}, nil, walkthrough.ErrNotFound
	}
	if stored.Revision != doc.Revision {
		return walkthrough.Document{}, nil, walkthrough.ErrConflict
	}

	key := doc.Key()
	var maxVersion int
	for _, d := range repo.db.docs {
		if d.Key() == key && d.Version.Valid && d.Version.Int > maxVersion {
			maxVersion = d.Version.Int
		}
	}

	var archived *walkthrough.Document
	if prev := repo.publishedUnder(key, doc.ID); prev != nil {
		prev.Status = walkthrough.StatusArchived
		prev.Revision++
		prev.UpdatedAt = event.CreatedAt
		repo.record(walkthrough.ArchiveEvent(*prev, event))
		a := clone(*prev)
		archived = &a
	}

	doc.Status = walkthrough.StatusPublished
	doc.Version = null.IntFrom(maxVersion + 1)
	doc.Revision++
	doc.CreatedAt = stored.CreatedAt
	*stored = clone(doc)

	event.ToStatus = doc.Status
	event.Version = doc.Version
	repo.record(event)
	return clone(doc), archived, nil
}

func (repo *walkthroughRepository) DeleteDocument(_ context.Context, id string, revision int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	stored, ok := repo.db.docs[id]
	if !ok {
		return walkthrough.ErrNotFound
	}
	if stored.Revision != revision {
		return walkthrough.ErrConflict
	}
	delete(repo.db.docs, id)
	delete(repo.db.events, id)
	return nil
}

func (repo *walkthroughRepository) QueryEvents(_ context.Context, documentID string) ([]walkthrough.ReviewEvent, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	events := make([]walkthrough.ReviewEvent, len(repo.db.events[documentID]))
	copy(events, repo.db.events[documentID])
	return events, nil
}

func hasStatus(statuses []walkthrough.Status, s walkthrough.Status) bool {
	for _, st := range statuses {
		if st == s {
			return true
		}
	}
	return false
}

// sortDocuments orders docs the way the SQL repository would; IDs break ties.
func sortDocuments(docs []walkthrough.Document, ordering []core.DBOrdering) {
	sort.SliceStable(docs, func(i, j int) bool {
		for _, ord := range ordering {
			c := compareField(docs[i], docs[j], ord.Field)
			if c == 0 {
				continue
			}
			if ord.Ascending {
				return c < 0
			}
			return c > 0
		}
		return docs[i].ID < docs[j].ID
	})
}

func compareField(a, b walkthrough.Document, field string) int {
	switch field {
	case "created_at":
		return compareInts(a.CreatedAt.UnixNano(), b.CreatedAt.UnixNano())
	case "updated_at":
		return compareInts(a.UpdatedAt.UnixNano(), b.UpdatedAt.UnixNano())
	case "label":
		return strings.Compare(a.Label, b.Label)
	case "token":
		return strings.Compare(a.Token, b.Token)
	case "class_code":
		return strings.Compare(a.ClassCode, b.ClassCode)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "version":
		return compareInts(int64(a.Version.Int), int64(b.Version.Int))
	}
	return 0
}

func compareInts(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
