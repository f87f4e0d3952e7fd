package echoapi

import (
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"

	"github.com/cdlbuddy/cdltrainer/core"
	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
)

var (
	orderingParam = "ordering"
	defaultOrgKey = "default"
)

type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	val := ctx.QueryParam(orderingParam)
	if val == "" {
		return
	}
	ord.Orderings = core.ParseOrdering(val)
}

// queryParams is the query string of the walkthrough list endpoint.
type queryParams struct {
	Search          string   `query:"search"`
	Statuses        []string `query:"status" json:"status" validate:"dive,wtstatus"`
	Token           string   `query:"token"`
	Organization    string   `query:"organization"` // an organization ID or "default"
	IncludeDefaults bool     `query:"include_defaults"`
}

func (qp *queryParams) Bind(ctx echo.Context, validate *validator.Validate) error {
	params := ctx.QueryParams()
	qp.Search = params.Get("search")
	qp.Token = params.Get("token")
	qp.Organization = core.CleanString(params.Get("organization"))
	for _, v := range params["status"] {
		for _, st := range strings.Split(v, ",") {
			if st = core.CleanString(st, true /* lower */); st != "" {
				qp.Statuses = append(qp.Statuses, st)
			}
		}
	}
	if v := params.Get("include_defaults"); v != "" {
		qp.IncludeDefaults, _ = strconv.ParseBool(v)
	}
	return validate.Struct(qp)
}

func (qp queryParams) filter() walkthrough.QueryFilter {
	filter := walkthrough.QueryFilter{
		Search:   qp.Search,
		Token:    qp.Token,
		Defaults: qp.IncludeDefaults,
	}
	if strings.EqualFold(qp.Organization, defaultOrgKey) {
		filter.Defaults = true
	} else {
		filter.OrganizationID = qp.Organization
	}
	for _, st := range qp.Statuses {
		filter.Statuses = append(filter.Statuses, walkthrough.Status(st))
	}
	return filter
}

// revisionRequest carries the revision the client last saw. 0 skips the check.
type revisionRequest struct {
	Revision int `json:"revision" validate:"min=0"`
}

// revisionParam reads the optional `revision` query parameter.
func revisionParam(ctx echo.Context) (int, error) {
	v := ctx.QueryParam("revision")
	if v == "" {
		return 0, nil
	}
	rev, err := strconv.Atoi(v)
	if err != nil || rev < 0 {
		return 0, core.NewValidationError(err, core.FieldError{Field: "revision", Error: "must be a positive integer"})
	}
	return rev, nil
}
