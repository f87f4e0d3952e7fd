package walkthrough

import (
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/pkg/errors"

	"github.com/cdlbuddy/cdltrainer/core"
)

// NewDocument contains information needed to create a draft.
type NewDocument struct {
	Label     string `json:"label" validate:"max=200"`
	ClassCode string `json:"classCode" validate:"max=50"`
	// Token defaults to the token of ClassCode, then Label.
	Token string `json:"token" validate:"omitempty,slug,max=100"`
	// OrganizationID may only be set by superadmins; empty means the actor's organization,
	// or the platform defaults for superadmins.
	OrganizationID string    `json:"organizationId"`
	Sections       RawScript `json:"sections"`
	Source         Source    `json:"-"`
}

func (nd *NewDocument) Validate(validate *validator.Validate) error {
	nd.clean()
	return validate.Struct(nd)
}

func (nd *NewDocument) clean() {
	nd.Label = core.CleanString(nd.Label)
	nd.ClassCode = core.CleanString(nd.ClassCode)
	nd.Token = core.CleanString(nd.Token, true /* lower */)
	nd.OrganizationID = core.CleanString(nd.OrganizationID)
}

// ImportRequest contains the content to import, pasted (Content) or uploaded (Data).
type ImportRequest struct {
	Format         Format `json:"format" form:"format" validate:"required,wtformat"`
	Content        string `json:"content" form:"content"`
	Data           []byte `json:"-"`
	Filename       string `json:"-"`
	Label          string `json:"label" form:"label" validate:"max=200"`
	ClassCode      string `json:"classCode" form:"classCode" validate:"max=50"`
	Token          string `json:"token" form:"token" validate:"omitempty,slug,max=100"`
	OrganizationID string `json:"organizationId" form:"organizationId"`
}

func (ir *ImportRequest) Validate(validate *validator.Validate) error {
	if f, err := ParseFormat(string(ir.Format)); err == nil {
		ir.Format = f
	}
	ir.Label = core.CleanString(ir.Label)
	ir.ClassCode = core.CleanString(ir.ClassCode)
	ir.Token = core.CleanString(ir.Token, true /* lower */)
	ir.OrganizationID = core.CleanString(ir.OrganizationID)
	if err := validate.Struct(ir); err != nil {
		return err
	}
	if len(ir.Data) == 0 && strings.TrimSpace(ir.Content) == "" {
		return core.NewFieldError("content", errContentRequired)
	}
	return nil
}

func (ir ImportRequest) content() []byte {
	if len(ir.Data) > 0 {
		return ir.Data
	}
	return []byte(ir.Content)
}

// UpdateDocument defines what may be changed on a draft. Nil or zero fields are left untouched.
type UpdateDocument struct {
	Label     *string   `json:"label" validate:"omitempty,notblank,max=200"`
	ClassCode *string   `json:"classCode" validate:"omitempty,max=50"`
	Sections  RawScript `json:"sections"`
	Revision  int       `json:"revision" validate:"min=0"`
}

func (ud *UpdateDocument) Validate(validate *validator.Validate) error {
	if ud.Label != nil {
		label := core.CleanString(*ud.Label)
		ud.Label = &label
	}
	if ud.ClassCode != nil {
		code := core.CleanString(*ud.ClassCode)
		ud.ClassCode = &code
	}
	return validate.Struct(ud)
}

// Decision is a reviewer's request changes / reject input, or an author's submit input.
type Decision struct {
	Note     string `json:"note" validate:"max=5000"`
	Revision int    `json:"revision" validate:"min=0"`
}

func (d *Decision) Validate(validate *validator.Validate, noteRequired bool) error {
	d.Note = strings.TrimSpace(d.Note)
	if noteRequired && d.Note == "" {
		return core.NewFieldError("note", ErrNoteRequired)
	}
	return validate.Struct(d)
}

// DuplicateOptions customizes the copy made by Duplicate.
type DuplicateOptions struct {
	Label string `json:"label" validate:"max=200"`
	// OrganizationID may only be set by superadmins.
	OrganizationID string `json:"organizationId"`
}

func (do *DuplicateOptions) Validate(validate *validator.Validate) error {
	do.Label = core.CleanString(do.Label)
	do.OrganizationID = core.CleanString(do.OrganizationID)
	return validate.Struct(do)
}

var (
	ErrNoteRequired    = errors.New("a note explaining the requested changes is required")
	errContentRequired = errors.New("paste some content or upload a file")

	formatTag  = "wtformat"
	formatText = "unknown format (expected one of markdown, csv, spreadsheet, structured)"
	statusTag  = "wtstatus"
	statusText = "unknown status"
)

// InitValidators registers the walkthrough validators.
func InitValidators(validate *validator.Validate, translator ut.Translator) {
	_ = validate.RegisterValidation(formatTag, func(fl validator.FieldLevel) bool {
		_, err := ParseFormat(fl.Field().String())
		return err == nil
	})
	core.RegisterCustomTranslation(validate, translator, formatTag, formatText)

	_ = validate.RegisterValidation(statusTag, func(fl validator.FieldLevel) bool {
		return Status(fl.Field().String()).IsValid()
	})
	core.RegisterCustomTranslation(validate, translator, statusTag, statusText)
}
