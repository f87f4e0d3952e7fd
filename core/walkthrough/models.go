package walkthrough

import (
	"time"

	"github.com/volatiletech/null/v8"
)

// Status is the lifecycle state of a Document.
type Status string

const (
	StatusDraft            Status = "draft"
	StatusInReview         Status = "in-review"
	StatusChangesRequested Status = "changes-requested"
	StatusApproved         Status = "approved" // transient, never persisted outside a publish
	StatusPublished        Status = "published"
	StatusRejected         Status = "rejected"
	StatusArchived         Status = "archived"
)

var AllStatuses = []Status{
	StatusDraft,
	StatusInReview,
	StatusChangesRequested,
	StatusApproved,
	StatusPublished,
	StatusRejected,
	StatusArchived,
}

func (s Status) IsValid() bool {
	for _, st := range AllStatuses {
		if s == st {
			return true
		}
	}
	return false
}

// Editable reports whether a Document in this status may have its content changed.
func (s Status) Editable() bool {
	return s == StatusDraft || s == StatusChangesRequested
}

// Source records how a Document's content was first produced.
type Source string

const (
	SourceMarkdown    Source = "markdown"
	SourceCSV         Source = "csv"
	SourceSpreadsheet Source = "spreadsheet"
	SourceStructured  Source = "structured"
	SourceVisual      Source = "visual"
)

// Step is one spoken or performed line of a walkthrough.
type Step struct {
	Label    string   `json:"label,omitempty"`
	Script   string   `json:"script"`
	MustSay  bool     `json:"mustSay"`
	Required bool     `json:"required"`
	PassFail bool     `json:"passFail"`
	Skip     bool     `json:"skip"`
	Tags     []string `json:"tags,omitempty"`
}

// Section is a titled, ordered group of Steps.
type Section struct {
	Title    string `json:"section"`
	Critical bool   `json:"critical"`
	PassFail bool   `json:"passFail"`
	Steps    []Step `json:"steps"`
}

// Script is the canonical walkthrough content. Only Normalize produces one from imported data.
type Script []Section

// StepCount returns the total number of steps in the script.
func (s Script) StepCount() int {
	var n int
	for _, sec := range s {
		n += len(sec.Steps)
	}
	return n
}

// Clone returns a deep copy of the script.
func (s Script) Clone() Script {
	if s == nil {
		return nil
	}
	out := make(Script, len(s))
	for i, sec := range s {
		out[i] = sec
		if sec.Steps != nil {
			out[i].Steps = make([]Step, len(sec.Steps))
			for j, st := range sec.Steps {
				out[i].Steps[j] = st
				if st.Tags != nil {
					out[i].Steps[j].Tags = append([]string(nil), st.Tags...)
				}
			}
		}
	}
	return out
}

// Document is a stored, versioned walkthrough script.
type Document struct {
	ID             string      `json:"id" db:"id"`
	OrganizationID null.String `json:"organizationId" db:"organization_id"` // null for platform defaults
	Token          string      `json:"token" db:"token"`
	Label          string      `json:"label" db:"label"`
	ClassCode      string      `json:"classCode" db:"class_code"`
	Version        null.Int    `json:"version" db:"version"` // null until published
	Status         Status      `json:"status" db:"status"`
	Script         Script      `json:"script" db:"-"`
	Source         Source      `json:"source" db:"source"`
	IsDefault      bool        `json:"isDefault" db:"is_default"`
	ReviewNotes    null.String `json:"reviewNotes" db:"review_notes"`
	CreatedBy      string      `json:"createdBy" db:"created_by"`
	AuthorEmail    string      `json:"authorEmail,omitempty" db:"author_email"`
	Revision       int         `json:"revision" db:"revision"`
	CreatedAt      time.Time   `json:"createdAt" db:"created_at"` // UTC
	UpdatedAt      time.Time   `json:"updatedAt" db:"updated_at"` // UTC
}

// Key returns the published slot this Document competes for.
func (d Document) Key() Key {
	return Key{OrganizationID: d.OrganizationID.String, Token: d.Token}
}

// Key addresses the (organization, token) pair of which at most one Document is published.
// An empty OrganizationID addresses the platform defaults.
type Key struct {
	OrganizationID string
	Token          string
}

func (k Key) String() string {
	org := k.OrganizationID
	if org == "" {
		org = "default"
	}
	return org + "/" + k.Token
}

// Role is the role of an Actor.
type Role string

const (
	RoleStudent    Role = "student"
	RoleInstructor Role = "instructor"
	RoleAdmin      Role = "admin"
	RoleReviewer   Role = "reviewer"
	RoleSuperAdmin Role = "superadmin"
)

var rolePriorities = map[Role]int{
	RoleSuperAdmin: 40,
	RoleAdmin:      30,
	RoleReviewer:   25,
	RoleInstructor: 11,
	RoleStudent:    1,
}

// RolePriority returns 0 for unknown roles.
func RolePriority(role Role) int {
	return rolePriorities[role]
}

func (r Role) IsValid() bool {
	_, ok := rolePriorities[r]
	return ok
}

// Actor is the identity on whose behalf an operation runs.
type Actor struct {
	ID             string
	Role           Role
	OrganizationID string // empty for platform staff
	Email          string
}

func (a Actor) IsSuperAdmin() bool { return a.Role == RoleSuperAdmin }

// CanAuthor reports whether the actor may create and edit content.
func (a Actor) CanAuthor() bool { return a.Role == RoleAdmin || a.Role == RoleSuperAdmin }

// CanReview reports whether the actor may decide on submitted content.
func (a Actor) CanReview() bool { return a.Role == RoleReviewer || a.Role == RoleSuperAdmin }

// Action names a lifecycle operation.
type Action string

const (
	ActionCreate         Action = "create"
	ActionEdit           Action = "edit"
	ActionSubmit         Action = "submit"
	ActionResubmit       Action = "resubmit"
	ActionApprove        Action = "approve-and-publish"
	ActionRequestChanges Action = "request-changes"
	ActionReject         Action = "reject"
	ActionArchive        Action = "archive"
	ActionDuplicate      Action = "duplicate"
	ActionDelete         Action = "delete"
)

// ReviewEvent is an entry of a Document's audit trail.
type ReviewEvent struct {
	ID         string    `json:"id" db:"id"`
	DocumentID string    `json:"documentId" db:"document_id"`
	Action     Action    `json:"action" db:"action"`
	ActorID    string    `json:"actorId" db:"actor_id"`
	ActorRole  Role      `json:"actorRole" db:"actor_role"`
	FromStatus Status    `json:"fromStatus" db:"from_status"`
	ToStatus   Status    `json:"toStatus" db:"to_status"`
	Note       string    `json:"note,omitempty" db:"note"`
	Version    null.Int  `json:"version" db:"version"`
	CreatedAt  time.Time `json:"createdAt" db:"created_at"` // UTC
}

// QueryFilter applies AND operation on its set fields.
type QueryFilter struct {
	Search         string   // case-insensitive match on label, token or class code
	Statuses       []Status // any of
	Token          string
	OrganizationID string // documents of this organization
	Defaults       bool   // platform default documents (OR-ed with OrganizationID when both are set)
}
