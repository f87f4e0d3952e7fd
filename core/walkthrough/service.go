package walkthrough

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/cdlbuddy/cdltrainer/core"
)

// Service runs the walkthrough content pipeline: import, authoring, review and publication.
// Every operation runs on behalf of an explicit Actor.
type Service interface {
	Formats() []FormatInfo

	CreateDraft(ctx context.Context, actor Actor, nd NewDocument) (Document, Result, error)
	Import(ctx context.Context, actor Actor, req ImportRequest) (Document, Result, error)
	PreviewImport(ctx context.Context, actor Actor, req ImportRequest) (Projection, error)
	UpdateDraft(ctx context.Context, actor Actor, id string, ud UpdateDocument) (Document, Result, error)
	Delete(ctx context.Context, actor Actor, id string, revision int) error
	Duplicate(ctx context.Context, actor Actor, id string, opts DuplicateOptions) (Document, error)

	Get(ctx context.Context, actor Actor, id string) (Document, error)
	Query(ctx context.Context, actor Actor, filter QueryFilter, ordering ...core.DBOrdering) ([]Document, error)
	ResolvePublished(ctx context.Context, actor Actor, token string) (Document, error)
	Preview(ctx context.Context, actor Actor, id string) (Projection, error)
	Export(ctx context.Context, actor Actor, id string, f ExportFormat) ([]byte, Document, error)
	History(ctx context.Context, actor Actor, id string) ([]ReviewEvent, error)

	Submit(ctx context.Context, actor Actor, id string, revision int) (Document, error)
	Resubmit(ctx context.Context, actor Actor, id string, revision int) (Document, error)
	ApproveAndPublish(ctx context.Context, actor Actor, id string, revision int) (Document, error)
	RequestChanges(ctx context.Context, actor Actor, id string, d Decision) (Document, error)
	Reject(ctx context.Context, actor Actor, id string, d Decision) (Document, error)
}

type ServiceDeps struct {
	Repo     Repository
	Parsers  Parsers
	Notifier Notifier    // optional
	Logger   core.Logger // optional
}

type service struct {
	repo     Repository
	parsers  Parsers
	notifier Notifier
	logger   core.Logger
	now      func() time.Time
}

var _ Service = (*service)(nil)

func NewService(deps ServiceDeps) Service {
	svc := &service{
		repo:     deps.Repo,
		parsers:  deps.Parsers,
		notifier: deps.Notifier,
		logger:   deps.Logger,
		now:      func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
	}
	if svc.notifier == nil {
		svc.notifier = nopNotifier{}
	}
	if svc.logger == nil {
		svc.logger = core.NopLogger{}
	}
	return svc
}

func (svc *service) Formats() []FormatInfo {
	return svc.parsers.Formats()
}

// Authoring

func (svc *service) CreateDraft(ctx context.Context, actor Actor, nd NewDocument) (Document, Result, error) {
	nd.clean()
	if nd.Source == "" {
		nd.Source = SourceVisual
	}
	return svc.create(ctx, actor, nd, Normalize(nd.Sections))
}

func (svc *service) Import(ctx context.Context, actor Actor, req ImportRequest) (Document, Result, error) {
	if !actor.CanAuthor() {
		return Document{}, Result{}, ErrForbidden
	}
	nd, script, err := svc.parseImport(req)
	if err != nil {
		return Document{}, Result{}, err
	}
	return svc.create(ctx, actor, nd, script)
}

func (svc *service) PreviewImport(ctx context.Context, actor Actor, req ImportRequest) (Projection, error) {
	if !actor.CanAuthor() {
		return Projection{}, ErrForbidden
	}
	nd, script, err := svc.parseImport(req)
	if err != nil {
		return Projection{}, err
	}
	org, err := targetOrganization(actor, nd.OrganizationID)
	if err != nil {
		return Projection{}, err
	}

	doc := svc.newDocument(actor, nd, org, script)
	doc.ID = ""
	published, err := svc.published(ctx, doc.Key())
	if err != nil {
		return Projection{}, err
	}
	return Project(doc, published)
}

// parseImport reads the request content. Imported versions are ignored: versions are only
// stamped at publication.
func (svc *service) parseImport(req ImportRequest) (NewDocument, Script, error) {
	raw, err := svc.parsers.Parse(req.Format, req.content())
	if err != nil {
		return NewDocument{}, nil, err
	}
	nd := NewDocument{
		Label:          firstNonEmpty(req.Label, raw.Label),
		ClassCode:      firstNonEmpty(req.ClassCode, raw.ClassCode),
		Token:          req.Token,
		OrganizationID: req.OrganizationID,
		Source:         req.Format.Source(),
	}
	nd.clean()
	return nd, Normalize(raw.Sections), nil
}

func (svc *service) newDocument(actor Actor, nd NewDocument, org null.String, script Script) Document {
	now := svc.now()
	label := firstNonEmpty(nd.Label, nd.ClassCode, UntitledSection)
	return Document{
		ID:             uuid.New().String(),
		OrganizationID: org,
		Token:          ToToken(firstNonEmpty(nd.Token, nd.ClassCode, label)),
		Label:          label,
		ClassCode:      nd.ClassCode,
		Status:         StatusDraft,
		Script:         script,
		Source:         nd.Source,
		IsDefault:      !org.Valid,
		CreatedBy:      actor.ID,
		AuthorEmail:    actor.Email,
		Revision:       0,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
}

func (svc *service) create(ctx context.Context, actor Actor, nd NewDocument, script Script) (Document, Result, error) {
	if !actor.CanAuthor() {
		return Document{}, Result{}, ErrForbidden
	}
	org, err := targetOrganization(actor, nd.OrganizationID)
	if err != nil {
		return Document{}, Result{}, err
	}

	doc := svc.newDocument(actor, nd, org, script)
	saved, err := svc.repo.CreateDocument(ctx, doc, svc.newEvent(actor, doc, ActionCreate, "", ""))
	if err != nil {
		return Document{}, Result{}, svc.storeErr("creating walkthrough", err, actor)
	}
	svc.logger.Info(fmt.Sprintf("walkthrough %s (%s) created from %s", saved.ID, saved.Key(), saved.Source), actor)
	return saved, Validate(saved.Script), nil
}

func (svc *service) UpdateDraft(ctx context.Context, actor Actor, id string, ud UpdateDocument) (Document, Result, error) {
	doc, err := svc.prepare(ctx, actor, id, ud.Revision, ActionEdit)
	if err != nil {
		return Document{}, Result{}, err
	}

	if ud.Label != nil && *ud.Label != "" {
		doc.Label = *ud.Label
	}
	if ud.ClassCode != nil {
		doc.ClassCode = *ud.ClassCode
	}
	if !ud.Sections.IsZero() {
		doc.Script = Normalize(ud.Sections)
		doc.Source = SourceVisual
	}
	doc.UpdatedAt = svc.now()

	saved, err := svc.repo.UpdateDocument(ctx, doc, svc.newEvent(actor, doc, ActionEdit, doc.Status, ""))
	if err != nil {
		return Document{}, Result{}, svc.storeErr("updating walkthrough", err, actor)
	}
	return saved, Validate(saved.Script), nil
}

func (svc *service) Delete(ctx context.Context, actor Actor, id string, revision int) error {
	doc, err := svc.getVisible(ctx, actor, id)
	if err != nil {
		return err
	}
	if err = authorize(actor, doc, ActionDelete); err != nil {
		return err
	}
	if doc.IsDefault {
		return ErrDefaultImmutable
	}
	if err = checkRevision(doc, revision); err != nil {
		return err
	}
	if _, ok := nextStatus(ActionDelete, doc.Status); !ok {
		return &TransitionError{Action: ActionDelete, From: doc.Status}
	}

	if err = svc.repo.DeleteDocument(ctx, doc.ID, doc.Revision); err != nil {
		return svc.storeErr("deleting walkthrough", err, actor)
	}
	svc.logger.Info(fmt.Sprintf("walkthrough %s (%s) deleted", doc.ID, doc.Key()), actor)
	return nil
}

// Duplicate copies any visible document into a new draft of the target organization.
func (svc *service) Duplicate(ctx context.Context, actor Actor, id string, opts DuplicateOptions) (Document, error) {
	src, err := svc.getVisible(ctx, actor, id)
	if err != nil {
		return Document{}, err
	}
	if err = authorize(actor, src, ActionDuplicate); err != nil {
		return Document{}, err
	}

	org, err := targetOrganization(actor, opts.OrganizationID)
	if err != nil {
		return Document{}, err
	}
	if !org.Valid {
		return Document{}, ErrOrganizationReq
	}

	nd := NewDocument{
		Label:     firstNonEmpty(opts.Label, src.Label),
		ClassCode: src.ClassCode,
		Token:     src.Token,
		Source:    src.Source,
	}
	doc := svc.newDocument(actor, nd, org, NormalizeScript(src.Script.Clone()))
	saved, err := svc.repo.CreateDocument(ctx, doc, svc.newEvent(actor, doc, ActionDuplicate, "", "copied from "+src.ID))
	if err != nil {
		return Document{}, svc.storeErr("duplicating walkthrough", err, actor)
	}
	svc.logger.Info(fmt.Sprintf("walkthrough %s duplicated into %s (%s)", src.ID, saved.ID, saved.Key()), actor)
	return saved, nil
}

// Reading

func (svc *service) Get(ctx context.Context, actor Actor, id string) (Document, error) {
	return svc.getVisible(ctx, actor, id)
}

// Query lists the documents visible to the actor. Non-superadmins are restricted to their organization
// (plus the published defaults when filter.Defaults is set).
func (svc *service) Query(ctx context.Context, actor Actor, filter QueryFilter, ordering ...core.DBOrdering) ([]Document, error) {
	filter.Search = core.CleanString(filter.Search)
	if filter.Token != "" {
		filter.Token = ToToken(filter.Token)
	}
	if !actor.IsSuperAdmin() {
		filter.OrganizationID = actor.OrganizationID
		if actor.OrganizationID == "" {
			filter.Defaults = true
		}
	}
	if len(ordering) == 0 {
		ordering = DefaultOrdering
	}

	docs, err := svc.repo.QueryDocuments(ctx, filter, ordering...)
	if err != nil {
		return nil, svc.storeErr("querying walkthroughs", err, actor)
	}
	visible := make([]Document, 0, len(docs))
	for _, d := range docs {
		if canRead(actor, d) {
			visible = append(visible, d)
		}
	}
	return visible, nil
}

// ResolvePublished returns the document students of the actor's organization see for token:
// the organization's own published document, or else the published default.
func (svc *service) ResolvePublished(ctx context.Context, actor Actor, token string) (Document, error) {
	tok := ToToken(token)
	if actor.OrganizationID != "" {
		doc, err := svc.repo.GetPublished(ctx, Key{OrganizationID: actor.OrganizationID, Token: tok})
		if err == nil {
			return doc, nil
		}
		if errors.Cause(err) != ErrNotFound {
			return Document{}, svc.storeErr("resolving published walkthrough", err, actor)
		}
	}
	doc, err := svc.repo.GetPublished(ctx, Key{Token: tok})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Document{}, ErrNotFound
		}
		return Document{}, svc.storeErr("resolving default walkthrough", err, actor)
	}
	return doc, nil
}

func (svc *service) Preview(ctx context.Context, actor Actor, id string) (Projection, error) {
	doc, err := svc.getVisible(ctx, actor, id)
	if err != nil {
		return Projection{}, err
	}
	published, err := svc.published(ctx, doc.Key())
	if err != nil {
		return Projection{}, err
	}
	return Project(doc, published)
}

func (svc *service) Export(ctx context.Context, actor Actor, id string, f ExportFormat) ([]byte, Document, error) {
	doc, err := svc.getVisible(ctx, actor, id)
	if err != nil {
		return nil, Document{}, err
	}
	data, err := Export(doc, f)
	return data, doc, err
}

func (svc *service) History(ctx context.Context, actor Actor, id string) ([]ReviewEvent, error) {
	doc, err := svc.getVisible(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if !inScope(actor, doc) || !(actor.CanAuthor() || actor.CanReview()) {
		return nil, ErrForbidden
	}
	events, err := svc.repo.QueryEvents(ctx, doc.ID)
	if err != nil {
		return nil, svc.storeErr("querying walkthrough history", err, actor)
	}
	return events, nil
}

// Review workflow

func (svc *service) Submit(ctx context.Context, actor Actor, id string, revision int) (Document, error) {
	return svc.transition(ctx, actor, id, revision, ActionSubmit, "")
}

func (svc *service) Resubmit(ctx context.Context, actor Actor, id string, revision int) (Document, error) {
	return svc.transition(ctx, actor, id, revision, ActionResubmit, "")
}

func (svc *service) ApproveAndPublish(ctx context.Context, actor Actor, id string, revision int) (Document, error) {
	return svc.transition(ctx, actor, id, revision, ActionApprove, "")
}

func (svc *service) RequestChanges(ctx context.Context, actor Actor, id string, d Decision) (Document, error) {
	return svc.transition(ctx, actor, id, d.Revision, ActionRequestChanges, d.Note)
}

func (svc *service) Reject(ctx context.Context, actor Actor, id string, d Decision) (Document, error) {
	return svc.transition(ctx, actor, id, d.Revision, ActionReject, d.Note)
}

// transition applies a lifecycle action as a single compare-and-swap write:
// either the status change and its side effects are stored, or nothing is.
func (svc *service) transition(ctx context.Context, actor Actor, id string, revision int, action Action, note string) (Document, error) {
	doc, err := svc.prepare(ctx, actor, id, revision, action)
	if err != nil {
		return Document{}, err
	}
	if guarded(action) {
		if _, err = Guard(doc.Script); err != nil {
			return Document{}, err
		}
	}
	if action == ActionRequestChanges && core.CleanString(note) == "" {
		return Document{}, core.NewFieldError("note", ErrNoteRequired)
	}

	from := doc.Status
	doc.Status, _ = nextStatus(action, from)
	doc.UpdatedAt = svc.now()
	switch action {
	case ActionSubmit, ActionResubmit, ActionApprove:
		doc.ReviewNotes = null.String{}
	case ActionRequestChanges, ActionReject:
		doc.ReviewNotes = null.NewString(note, note != "")
	}
	event := svc.newEvent(actor, doc, action, from, note)

	var saved Document
	if action == ActionApprove {
		var archived *Document
		saved, archived, err = svc.repo.PublishDocument(ctx, doc, event)
		if err != nil {
			return Document{}, svc.storeErr("publishing walkthrough", err, actor)
		}
		if archived != nil {
			svc.logger.Info(fmt.Sprintf("walkthrough %s (%s v%d) archived", archived.ID, archived.Key(), archived.Version.Int), actor)
		}
	} else {
		saved, err = svc.repo.UpdateDocument(ctx, doc, event)
		if err != nil {
			return Document{}, svc.storeErr(string(action)+" walkthrough", err, actor)
		}
	}

	svc.logger.Info(fmt.Sprintf("walkthrough %s (%s): %s -> %s (%s)", saved.ID, saved.Key(), from, saved.Status, action), actor)
	if kind, ok := notificationKind(action); ok {
		if err = svc.notifier.Notify(ctx, Notification{Kind: kind, Document: saved, Actor: actor, Note: note}); err != nil {
			svc.logger.Error(fmt.Sprintf("notifying %s: %v", kind, err), err, actor)
		}
	}
	return saved, nil
}

// prepare loads the document and checks visibility, revision, permissions and status for the action.
func (svc *service) prepare(ctx context.Context, actor Actor, id string, revision int, action Action) (Document, error) {
	doc, err := svc.getVisible(ctx, actor, id)
	if err != nil {
		return Document{}, err
	}
	if err = authorize(actor, doc, action); err != nil {
		return Document{}, err
	}
	// a stale client gets a conflict even if the status has moved on since
	if err = checkRevision(doc, revision); err != nil {
		return Document{}, err
	}
	if _, ok := nextStatus(action, doc.Status); !ok {
		return Document{}, &TransitionError{Action: action, From: doc.Status}
	}
	return doc, nil
}

func (svc *service) getVisible(ctx context.Context, actor Actor, id string) (Document, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Document{}, ErrNotFound
	}
	doc, err := svc.repo.GetDocument(ctx, id)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return Document{}, ErrNotFound
		}
		return Document{}, svc.storeErr("getting walkthrough", err, actor)
	}
	if !canRead(actor, doc) {
		return Document{}, ErrNotFound
	}
	return doc, nil
}

// published returns the document published under key, or nil.
func (svc *service) published(ctx context.Context, key Key) (*Document, error) {
	doc, err := svc.repo.GetPublished(ctx, key)
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return nil, nil
		}
		return nil, NewStoreError("getting published walkthrough", err)
	}
	return &doc, nil
}

func (svc *service) newEvent(actor Actor, doc Document, action Action, from Status, note string) ReviewEvent {
	return ReviewEvent{
		DocumentID: doc.ID,
		Action:     action,
		ActorID:    actor.ID,
		ActorRole:  actor.Role,
		FromStatus: from,
		ToStatus:   doc.Status,
		Note:       note,
		Version:    doc.Version,
		CreatedAt:  doc.UpdatedAt,
	}
}

// storeErr logs unexpected store failures and wraps them as retryable *StoreError.
func (svc *service) storeErr(op string, err error, actor Actor) error {
	err = NewStoreError(op, err)
	if IsRetryable(err) {
		svc.logger.Error(err.Error(), err, actor)
	}
	return err
}

// targetOrganization resolves the organization a new document belongs to. Null means the platform defaults.
func targetOrganization(actor Actor, requested string) (null.String, error) {
	if actor.IsSuperAdmin() {
		return null.NewString(requested, requested != ""), nil
	}
	if requested != "" && requested != actor.OrganizationID {
		return null.String{}, ErrForbidden
	}
	if actor.OrganizationID == "" {
		return null.String{}, ErrForbidden // only superadmins author default content
	}
	return null.StringFrom(actor.OrganizationID), nil
}

func checkRevision(doc Document, revision int) error {
	if revision > 0 && revision != doc.Revision {
		return ErrConflict
	}
	return nil
}

func firstNonEmpty(ss ...string) string {
	for _, s := range ss {
		if s != "" {
			return s
		}
	}
	return ""
}
