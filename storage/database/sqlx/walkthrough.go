package sqlxrepos

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/jmoiron/sqlx/types"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/cdlbuddy/cdltrainer/core"
	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
)

const (
	documentColumns = "id, organization_id, token, label, class_code, version, status, script, source, is_default, " +
		"review_notes, created_by, author_email, revision, created_at, updated_at"
	eventColumns = "id, document_id, action, actor_id, actor_role, from_status, to_status, note, version, created_at"

	insertDocumentQuery = `INSERT INTO walkthrough (` + documentColumns + `) VALUES (
		:id, :organization_id, :token, :label, :class_code, :version, :status, :script, :source, :is_default,
		:review_notes, :created_by, :author_email, :revision, :created_at, :updated_at)`

	// updateDocumentQuery only applies when the stored revision is the one the caller read.
	updateDocumentQuery = `UPDATE walkthrough SET
		label = :label, class_code = :class_code, version = :version, status = :status, script = :script,
		source = :source, review_notes = :review_notes, revision = revision + 1, updated_at = :updated_at
		WHERE id = :id AND revision = :revision`

	insertEventQuery = `INSERT INTO walkthrough_event (` + eventColumns + `) VALUES (
		:id, :document_id, :action, :actor_id, :actor_role, :from_status, :to_status, :note, :version, :created_at)`

	keyCondition = "COALESCE(organization_id, '') = $1 AND token = $2"
)

// documentRow is a walkthrough.Document as stored: the script is a JSONB column.
type documentRow struct {
	walkthrough.Document
	Script types.JSONText `db:"script"`
}

func toRow(doc walkthrough.Document) (documentRow, error) {
	script := doc.Script
	if script == nil {
		script = walkthrough.Script{}
	}
	data, err := json.Marshal(script)
	if err != nil {
		return documentRow{}, errors.Wrap(err, "encoding script")
	}
	return documentRow{Document: doc, Script: data}, nil
}

func (row documentRow) document() (walkthrough.Document, error) {
	doc := row.Document
	if err := row.Script.Unmarshal(&doc.Script); err != nil {
		return walkthrough.Document{}, errors.Wrap(err, "decoding script")
	}
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()
	return doc, nil
}

type walkthroughRepository struct {
	db core.DB
}

var _ walkthrough.Repository = (*walkthroughRepository)(nil) // interface compliance check

func NewWalkthroughRepository(db core.DB) walkthrough.Repository {
	return &walkthroughRepository{db: db}
}

// inTx runs fn in a transaction, committed only if fn succeeds.
func (repo walkthroughRepository) inTx(ctx context.Context, op string, fn func(tx *sqlx.Tx) error) (err error) {
	tx, err := repo.db.BeginTxx(ctx, nil)
	if err != nil {
		return walkthrough.NewStoreError(op, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if err = tx.Commit(); err != nil {
		return storeErr(op, err)
	}
	return nil
}

// storeErr maps database errors onto the repository's error contract.
func storeErr(op string, err error) error {
	if err == sql.ErrNoRows {
		return walkthrough.ErrNotFound
	}
	if pqErr, ok := errors.Cause(err).(*pq.Error); ok {
		switch pqErr.Code.Name() {
		case "unique_violation", "serialization_failure":
			return walkthrough.ErrConflict
		case "foreign_key_violation":
			return walkthrough.ErrNotFound
		}
	}
	return walkthrough.NewStoreError(op, err)
}

func (repo walkthroughRepository) insertEvent(ctx context.Context, exec sqlx.ExtContext, event walkthrough.ReviewEvent) error {
	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	event.CreatedAt = event.CreatedAt.UTC()
	if _, err := sqlx.NamedExecContext(ctx, exec, insertEventQuery, event); err != nil {
		return storeErr("inserting walkthrough event", err)
	}
	return nil
}

// checkRevision tells a missing document from a stale revision after an update matched no row.
func (repo walkthroughRepository) checkRevision(ctx context.Context, exec sqlx.QueryerContext, id string) error {
	var revision int
	if err := sqlx.GetContext(ctx, exec, &revision, "SELECT revision FROM walkthrough WHERE id = $1", id); err != nil {
		return storeErr("checking walkthrough revision", err)
	}
	return walkthrough.ErrConflict
}

func (repo walkthroughRepository) update(ctx context.Context, tx *sqlx.Tx, doc walkthrough.Document) (walkthrough.Document, error) {
	row, err := toRow(doc)
	if err != nil {
		return walkthrough.Document{}, err
	}
	row.UpdatedAt = row.UpdatedAt.UTC()

	res, err := tx.NamedExecContext(ctx, updateDocumentQuery, row)
	if err != nil {
		return walkthrough.Document{}, storeErr("updating walkthrough", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return walkthrough.Document{}, storeErr("updating walkthrough", err)
	}
	if n == 0 {
		return walkthrough.Document{}, repo.checkRevision(ctx, tx, doc.ID)
	}
	doc.Revision++
	return doc, nil
}

func (repo walkthroughRepository) CreateDocument(ctx context.Context, doc walkthrough.Document, event walkthrough.ReviewEvent) (walkthrough.Document, error) {
	if doc.ID == "" {
		doc.ID = uuid.New().String()
	}
	doc.Revision = 1
	doc.CreatedAt = doc.CreatedAt.UTC()
	doc.UpdatedAt = doc.UpdatedAt.UTC()

	row, err := toRow(doc)
	if err != nil {
		return walkthrough.Document{}, walkthrough.NewStoreError("creating walkthrough", err)
	}
	err = repo.inTx(ctx, "creating walkthrough", func(tx *sqlx.Tx) error {
		if _, err := tx.NamedExecContext(ctx, insertDocumentQuery, row); err != nil {
			return storeErr("inserting walkthrough", err)
		}
		if event.Action == "" {
			return nil
		}
		event.DocumentID = doc.ID
		return repo.insertEvent(ctx, tx, event)
	})
	if err != nil {
		return walkthrough.Document{}, err
	}
	return doc, nil
}

func (repo walkthroughRepository) get(ctx context.Context, exec sqlx.QueryerContext, query string, args ...interface{}) (walkthrough.Document, error) {
	var row documentRow
	if err := sqlx.GetContext(ctx, exec, &row, query, args...); err != nil {
		return walkthrough.Document{}, storeErr("getting walkthrough", err)
	}
	doc, err := row.document()
	if err != nil {
		return walkthrough.Document{}, walkthrough.NewStoreError("getting walkthrough", err)
	}
	return doc, nil
}

func (repo walkthroughRepository) GetDocument(ctx context.Context, id string) (walkthrough.Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return walkthrough.Document{}, walkthrough.ErrNotFound
	}
	return repo.get(ctx, repo.db, "SELECT "+documentColumns+" FROM walkthrough WHERE id = $1", id)
}

func (repo walkthroughRepository) QueryDocuments(ctx context.Context, filter walkthrough.QueryFilter, ordering ...core.DBOrdering) ([]walkthrough.Document, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return "$" + strconv.Itoa(len(args))
	}

	// documents with Label, Token or ClassCode matching the search keyword
	if filter.Search != "" {
		p := arg("%" + escapeLike(filter.Search) + "%")
		conds = append(conds, fmt.Sprintf("(label ILIKE %[1]s OR token ILIKE %[1]s OR class_code ILIKE %[1]s)", p))
	}
	if len(filter.Statuses) > 0 {
		statuses := make([]string, 0, len(filter.Statuses))
		for _, s := range filter.Statuses {
			statuses = append(statuses, string(s))
		}
		conds = append(conds, "status = ANY("+arg(pq.Array(statuses))+")")
	}
	if filter.Token != "" {
		conds = append(conds, "token = "+arg(filter.Token))
	}
	switch {
	case filter.OrganizationID != "" && filter.Defaults:
		conds = append(conds, "(organization_id = "+arg(filter.OrganizationID)+" OR organization_id IS NULL)")
	case filter.OrganizationID != "":
		conds = append(conds, "organization_id = "+arg(filter.OrganizationID))
	case filter.Defaults:
		conds = append(conds, "organization_id IS NULL")
	}

	query := "SELECT " + documentColumns + " FROM walkthrough"
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	orderList := make([]string, 0, len(ordering)+1)
	for _, ord := range ordering {
		if walkthrough.OrderingFields[ord.Field] {
			orderList = append(orderList, ord.String())
		}
	}
	query += " ORDER BY " + strings.Join(append(orderList, "id ASC"), ", ")

	var rows []documentRow
	if err := repo.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, storeErr("querying walkthroughs", err)
	}
	docs := make([]walkthrough.Document, 0, len(rows))
	for _, row := range rows {
		doc, err := row.document()
		if err != nil {
			return nil, walkthrough.NewStoreError("querying walkthroughs", err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

func (repo walkthroughRepository) GetPublished(ctx context.Context, key walkthrough.Key) (walkthrough.Document, error) {
	return repo.get(ctx, repo.db,
		"SELECT "+documentColumns+" FROM walkthrough WHERE "+keyCondition+" AND status = $3",
		key.OrganizationID, key.Token, walkthrough.StatusPublished)
}

func (repo walkthroughRepository) UpdateDocument(ctx context.Context, doc walkthrough.Document, event walkthrough.ReviewEvent) (walkthrough.Document, error) {
	var saved walkthrough.Document
	err := repo.inTx(ctx, "updating walkthrough", func(tx *sqlx.Tx) (err error) {
		if saved, err = repo.update(ctx, tx, doc); err != nil {
			return err
		}
		if event.Action == "" {
			return nil
		}
		return repo.insertEvent(ctx, tx, event)
	})
	if err != nil {
		return walkthrough.Document{}, err
	}
	return saved, nil
}

// PublishDocument serializes publications of a key with a transaction-scoped advisory lock,
// so the version sequence has no gaps and the previous publication is archived in the same transaction.
func (repo walkthroughRepository) PublishDocument(ctx context.Context, doc walkthrough.Document, event walkthrough.ReviewEvent) (walkthrough.Document, *walkthrough.Document, error) {
	var (
		published walkthrough.Document
		archived  *walkthrough.Document
	)
	key := doc.Key()

	err := repo.inTx(ctx, "publishing walkthrough", func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", "walkthrough:"+key.String()); err != nil {
			return storeErr("locking walkthrough key", err)
		}

		prev, err := repo.get(ctx, tx,
			"SELECT "+documentColumns+" FROM walkthrough WHERE "+keyCondition+" AND status = $3 AND id <> $4 FOR UPDATE",
			key.OrganizationID, key.Token, walkthrough.StatusPublished, doc.ID)
		switch {
		case err == nil:
			prev.Status = walkthrough.StatusArchived
			prev.UpdatedAt = event.CreatedAt
			if prev, err = repo.update(ctx, tx, prev); err != nil {
				return err
			}
			if err = repo.insertEvent(ctx, tx, walkthrough.ArchiveEvent(prev, event)); err != nil {
				return err
			}
			archived = &prev
		case err != walkthrough.ErrNotFound:
			return err
		}

		var maxVersion int
		if err = tx.GetContext(ctx, &maxVersion,
			"SELECT COALESCE(MAX(version), 0) FROM walkthrough WHERE "+keyCondition, key.OrganizationID, key.Token); err != nil {
			return storeErr("computing walkthrough version", err)
		}

		doc.Status = walkthrough.StatusPublished
		doc.Version = null.IntFrom(maxVersion + 1)
		if published, err = repo.update(ctx, tx, doc); err != nil {
			return err
		}

		event.ToStatus = published.Status
		event.Version = published.Version
		return repo.insertEvent(ctx, tx, event)
	})
	if err != nil {
		return walkthrough.Document{}, nil, err
	}
	return published, archived, nil
}

func (repo walkthroughRepository) DeleteDocument(ctx context.Context, id string, revision int) error {
	if _, err := uuid.Parse(id); err != nil {
		return walkthrough.ErrNotFound
	}
	res, err := repo.db.ExecContext(ctx, "DELETE FROM walkthrough WHERE id = $1 AND revision = $2", id, revision)
	if err != nil {
		return storeErr("deleting walkthrough", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storeErr("deleting walkthrough", err)
	}
	if n == 0 {
		return repo.checkRevision(ctx, repo.db, id)
	}
	return nil
}

func (repo walkthroughRepository) QueryEvents(ctx context.Context, documentID string) ([]walkthrough.ReviewEvent, error) {
	events := make([]walkthrough.ReviewEvent, 0)
	if _, err := uuid.Parse(documentID); err != nil {
		return events, nil
	}
	err := repo.db.SelectContext(ctx, &events,
		"SELECT "+eventColumns+" FROM walkthrough_event WHERE document_id = $1 ORDER BY seq", documentID)
	if err != nil {
		return nil, storeErr("querying walkthrough events", err)
	}
	for i := range events {
		events[i].CreatedAt = events[i].CreatedAt.UTC()
	}
	return events, nil
}

// escapeLike escapes the ILIKE wildcards of a search keyword.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, "%", `\%`, "_", `\_`).Replace(s)
}
