package walkthrough

import (
	"context"

	"github.com/cdlbuddy/cdltrainer/core"
)

// OrderingFields are the fields documents may be ordered by.
var OrderingFields = map[string]bool{
	"created_at": true,
	"updated_at": true,
	"label":      true,
	"token":      true,
	"class_code": true,
	"version":    true,
	"status":     true,
}

// DefaultOrdering lists the most recently updated documents first.
var DefaultOrdering = []core.DBOrdering{{Field: "updated_at", Ascending: false}}

// Repository stores Documents and their ReviewEvents.
// Every write compares Document.Revision with the stored revision and fails with ErrConflict
// when they differ; successful writes return the document with its revision incremented.
// Failures other than ErrNotFound and ErrConflict are returned as *StoreError.
type Repository interface {
	CreateDocument(ctx context.Context, doc Document, event ReviewEvent) (Document, error)
	GetDocument(ctx context.Context, id string) (Document, error)
	// QueryDocuments applies AND operation on the set QueryFilter fields.
	QueryDocuments(ctx context.Context, filter QueryFilter, ordering ...core.DBOrdering) ([]Document, error)
	// GetPublished returns ErrNotFound when nothing is published under key.
	GetPublished(ctx context.Context, key Key) (Document, error)
	// UpdateDocument saves doc and records event (if event.Action is set) in one unit of work.
	UpdateDocument(ctx context.Context, doc Document, event ReviewEvent) (Document, error)
	// PublishDocument, in one unit of work: archives the document published under doc.Key() (if any),
	// stamps doc with the next version of the key, saves doc as published and records the events.
	PublishDocument(ctx context.Context, doc Document, event ReviewEvent) (published Document, archived *Document, err error)
	DeleteDocument(ctx context.Context, id string, revision int) error
	QueryEvents(ctx context.Context, documentID string) ([]ReviewEvent, error)
}

// ArchiveEvent is the event recorded for a document superseded by a publication.
func ArchiveEvent(archived Document, by ReviewEvent) ReviewEvent {
	return ReviewEvent{
		DocumentID: archived.ID,
		Action:     ActionArchive,
		ActorID:    by.ActorID,
		ActorRole:  by.ActorRole,
		FromStatus: StatusPublished,
		ToStatus:   StatusArchived,
		Note:       "superseded by " + by.DocumentID,
		Version:    archived.Version,
		CreatedAt:  by.CreatedAt,
	}
}
