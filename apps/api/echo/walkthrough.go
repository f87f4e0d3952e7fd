package echoapi

import (
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/pkg/errors"

	"github.com/cdlbuddy/cdltrainer/core"
	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
)

type (
	walkthroughDeps struct {
		conf       *core.Config
		svc        walkthrough.Service
		validate   *validator.Validate
		translator ut.Translator
	}

	walkthroughApi struct {
		walkthroughDeps
	}

	// DocumentResponse is returned by the authoring endpoints: the saved document and
	// whether it could be submitted as is.
	DocumentResponse struct {
		Document   walkthrough.Document `json:"document"`
		Validation walkthrough.Result   `json:"validation"`
	}
)

func registerWalkthroughAPI(g *echo.Group, jwt echo.MiddlewareFunc, deps walkthroughDeps) {
	api := walkthroughApi{deps}

	wg := g.Group("/walkthroughs", jwt, actorMiddleware)
	wg.GET("/formats", api.formats)
	wg.GET("", api.query)
	wg.GET("/published/:token", api.resolvePublished)
	wg.POST("", api.create, authorMiddleware)
	wg.POST("/import", api.importDocument, authorMiddleware)
	wg.POST("/import/preview", api.previewImport, authorMiddleware)

	// detail endpoints
	dg := wg.Group("/:id")
	dg.GET("", api.retrieve)
	dg.PUT("", api.update, authorMiddleware)
	dg.DELETE("", api.destroy, authorMiddleware)
	dg.GET("/preview", api.preview)
	dg.GET("/export", api.export)
	dg.GET("/history", api.history)
	dg.POST("/duplicate", api.duplicate, authorMiddleware)

	// workflow
	dg.POST("/submit", api.submit, authorMiddleware)
	dg.POST("/resubmit", api.resubmit, authorMiddleware)
	dg.POST("/approve", api.approve, reviewerMiddleware)
	dg.POST("/request-changes", api.requestChanges, reviewerMiddleware)
	dg.POST("/reject", api.reject, reviewerMiddleware)
}

// Handlers

func (api *walkthroughApi) formats(ctx echo.Context) error {
	return ctx.JSON(http.StatusOK, api.svc.Formats())
}

func (api *walkthroughApi) create(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}

	var data walkthrough.NewDocument
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(errInvalidRequest, err.Error())
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	doc, res, err := api.svc.CreateDraft(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "creating walkthrough")
	}
	return ctx.JSON(http.StatusCreated, DocumentResponse{Document: doc, Validation: res})
}

func (api *walkthroughApi) importDocument(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	data, err := api.bindImport(ctx)
	if err != nil {
		return err
	}

	doc, res, err := api.svc.Import(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "importing walkthrough")
	}
	return ctx.JSON(http.StatusCreated, DocumentResponse{Document: doc, Validation: res})
}

func (api *walkthroughApi) previewImport(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	data, err := api.bindImport(ctx)
	if err != nil {
		return err
	}

	proj, err := api.svc.PreviewImport(ctx.Request().Context(), actor, data)
	if err != nil {
		return errors.Wrap(err, "previewing import")
	}
	return ctx.JSON(http.StatusOK, proj)
}

// bindImport reads pasted content from a JSON body, or an uploaded file from a multipart form.
// The format of an upload defaults to the one of its file extension.
func (api *walkthroughApi) bindImport(ctx echo.Context) (walkthrough.ImportRequest, error) {
	var data walkthrough.ImportRequest
	maxSize := api.conf.Import.MaxUploadSize

	if strings.HasPrefix(ctx.Request().Header.Get(echo.HeaderContentType), echo.MIMEMultipartForm) {
		data.Format = walkthrough.Format(ctx.FormValue("format"))
		data.Content = ctx.FormValue("content")
		data.Label = ctx.FormValue("label")
		data.ClassCode = ctx.FormValue("classCode")
		data.Token = ctx.FormValue("token")
		data.OrganizationID = ctx.FormValue("organizationId")

		fh, err := ctx.FormFile("file")
		switch {
		case err == http.ErrMissingFile:
		case err != nil:
			return data, errors.Wrap(errInvalidRequest, err.Error())
		default:
			if maxSize > 0 && fh.Size > maxSize {
				return data, errFileTooLarge
			}
			f, err := fh.Open()
			if err != nil {
				return data, errors.Wrap(err, "opening uploaded file")
			}
			defer f.Close()
			if data.Data, err = io.ReadAll(f); err != nil {
				return data, errors.Wrap(err, "reading uploaded file")
			}
			data.Filename = fh.Filename
			if data.Format == "" {
				data.Format = walkthrough.Format(strings.TrimPrefix(filepath.Ext(fh.Filename), "."))
			}
		}
	} else if err := ctx.Bind(&data); err != nil {
		return data, errors.Wrap(errInvalidRequest, err.Error())
	}

	if maxSize > 0 && int64(len(data.Content)) > maxSize {
		return data, errFileTooLarge
	}
	if err := data.Validate(api.validate); err != nil {
		return data, err
	}
	return data, nil
}

func (api *walkthroughApi) query(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}

	params := new(queryParams)
	if err = params.Bind(ctx, api.validate); err != nil {
		return err
	}
	ordering := new(Ordering)
	ordering.Bind(ctx)

	docs, err := api.svc.Query(ctx.Request().Context(), actor, params.filter(), ordering.Orderings...)
	if err != nil {
		return errors.Wrap(err, "querying walkthroughs")
	}
	if docs == nil {
		docs = []walkthrough.Document{}
	}
	return ctx.JSON(http.StatusOK, docs)
}

func (api *walkthroughApi) resolvePublished(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	doc, err := api.svc.ResolvePublished(ctx.Request().Context(), actor, ctx.Param("token"))
	if err != nil {
		return errors.Wrap(err, "resolving published walkthrough")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *walkthroughApi) retrieve(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	doc, err := api.svc.Get(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "retrieving walkthrough")
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *walkthroughApi) update(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}

	var data walkthrough.UpdateDocument
	if err = ctx.Bind(&data); err != nil {
		return errors.Wrap(errInvalidRequest, err.Error())
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	doc, res, err := api.svc.UpdateDraft(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "updating walkthrough")
	}
	return ctx.JSON(http.StatusOK, DocumentResponse{Document: doc, Validation: res})
}

func (api *walkthroughApi) destroy(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	rev, err := revisionParam(ctx)
	if err != nil {
		return err
	}
	if err = api.svc.Delete(ctx.Request().Context(), actor, ctx.Param("id"), rev); err != nil {
		return errors.Wrap(err, "deleting walkthrough")
	}
	return ctx.NoContent(http.StatusNoContent)
}

func (api *walkthroughApi) duplicate(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}

	var data walkthrough.DuplicateOptions
	if err = bindOptional(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.validate); err != nil {
		return err
	}

	doc, err := api.svc.Duplicate(ctx.Request().Context(), actor, ctx.Param("id"), data)
	if err != nil {
		return errors.Wrap(err, "duplicating walkthrough")
	}
	return ctx.JSON(http.StatusCreated, doc)
}

func (api *walkthroughApi) preview(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	proj, err := api.svc.Preview(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "previewing walkthrough")
	}
	return ctx.JSON(http.StatusOK, proj)
}

func (api *walkthroughApi) export(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	format, err := walkthrough.ParseExportFormat(ctx.QueryParam("format"))
	if err != nil {
		return err
	}

	data, doc, err := api.svc.Export(ctx.Request().Context(), actor, ctx.Param("id"), format)
	if err != nil {
		return errors.Wrap(err, "exporting walkthrough")
	}
	ctx.Response().Header().Set(echo.HeaderContentDisposition,
		fmt.Sprintf("attachment; filename=%q", doc.Token+format.Extension()))
	return ctx.Blob(http.StatusOK, format.ContentType(), data)
}

func (api *walkthroughApi) history(ctx echo.Context) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}
	events, err := api.svc.History(ctx.Request().Context(), actor, ctx.Param("id"))
	if err != nil {
		return errors.Wrap(err, "getting walkthrough history")
	}
	if events == nil {
		events = []walkthrough.ReviewEvent{}
	}
	return ctx.JSON(http.StatusOK, events)
}

// Workflow

type revisionTransition func(svc walkthrough.Service, ctx echo.Context, actor walkthrough.Actor, rev int) (walkthrough.Document, error)

func (api *walkthroughApi) withRevision(ctx echo.Context, name string, fn revisionTransition) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}

	var data revisionRequest
	if err = bindOptional(ctx, &data); err != nil {
		return err
	}
	if err = api.validate.Struct(data); err != nil {
		return err
	}

	doc, err := fn(api.svc, ctx, actor, data.Revision)
	if err != nil {
		return errors.Wrap(err, name)
	}
	return ctx.JSON(http.StatusOK, doc)
}

func (api *walkthroughApi) submit(ctx echo.Context) error {
	return api.withRevision(ctx, "submitting walkthrough",
		func(svc walkthrough.Service, ctx echo.Context, actor walkthrough.Actor, rev int) (walkthrough.Document, error) {
			return svc.Submit(ctx.Request().Context(), actor, ctx.Param("id"), rev)
		})
}

func (api *walkthroughApi) resubmit(ctx echo.Context) error {
	return api.withRevision(ctx, "resubmitting walkthrough",
		func(svc walkthrough.Service, ctx echo.Context, actor walkthrough.Actor, rev int) (walkthrough.Document, error) {
			return svc.Resubmit(ctx.Request().Context(), actor, ctx.Param("id"), rev)
		})
}

func (api *walkthroughApi) approve(ctx echo.Context) error {
	return api.withRevision(ctx, "approving walkthrough",
		func(svc walkthrough.Service, ctx echo.Context, actor walkthrough.Actor, rev int) (walkthrough.Document, error) {
			return svc.ApproveAndPublish(ctx.Request().Context(), actor, ctx.Param("id"), rev)
		})
}

func (api *walkthroughApi) requestChanges(ctx echo.Context) error {
	return api.decide(ctx, true)
}

func (api *walkthroughApi) reject(ctx echo.Context) error {
	return api.decide(ctx, false)
}

func (api *walkthroughApi) decide(ctx echo.Context, changes bool) error {
	actor, err := getContextActor(ctx)
	if err != nil {
		return errors.Wrap(err, "getting context actor")
	}

	var data walkthrough.Decision
	if err = bindOptional(ctx, &data); err != nil {
		return err
	}
	if err = data.Validate(api.validate, changes /* noteRequired */); err != nil {
		return err
	}

	var doc walkthrough.Document
	if changes {
		doc, err = api.svc.RequestChanges(ctx.Request().Context(), actor, ctx.Param("id"), data)
	} else {
		doc, err = api.svc.Reject(ctx.Request().Context(), actor, ctx.Param("id"), data)
	}
	if err != nil {
		return errors.Wrap(err, "deciding on walkthrough")
	}
	return ctx.JSON(http.StatusOK, doc)
}

// bindOptional binds the request body, if any.
func bindOptional(ctx echo.Context, i interface{}) error {
	if ctx.Request().ContentLength == 0 {
		return nil
	}
	if err := ctx.Bind(i); err != nil {
		return errors.Wrap(errInvalidRequest, err.Error())
	}
	return nil
}
