package tests

import (
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/volatiletech/null/v8"

	. "github.com/cdlbuddy/cdltrainer/apps/api/echo"
	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
	"github.com/cdlbuddy/cdltrainer/services/email"
	"github.com/cdlbuddy/cdltrainer/tests"
)

const brakesMarkdown = "---\nlabel: Class A pre-trip\nclassCode: A\n---\n# Brakes [pf]\n\n- Pump the brakes [must]\n- Check the pads\n"

func importMarkdown(t *testing.T, app testApp, actor walkthrough.Actor, content string) walkthrough.Document {
	t.Helper()
	body := marchallObj(t, walkthrough.ImportRequest{Format: walkthrough.FormatMarkdown, Content: content})
	req, rec := newAuthRequest(http.MethodPost, "/v1/walkthroughs/import", getToken(t, app.conf, actor), body)
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("import failed! code = %v; body %s", rec.Code, rec.Body.String())
	}
	var res DocumentResponse
	unmarshalObj(t, rec, &res)
	return res.Document
}

func post(t *testing.T, app testApp, actor walkthrough.Actor, path string, body interface{}) (*walkthrough.Document, int) {
	t.Helper()
	req, rec := newAuthRequest(http.MethodPost, path, getToken(t, app.conf, actor), marchallObj(t, body))
	app.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK && rec.Code != http.StatusCreated {
		return nil, rec.Code
	}
	doc := new(walkthrough.Document)
	unmarshalObj(t, rec, doc)
	return doc, rec.Code
}

func Test_walkthroughApi_auth(t *testing.T) {
	app := setup(t)

	tests := []httpTest{
		{
			name:     "missing token",
			method:   http.MethodGet,
			path:     "/v1/walkthroughs",
			wantCode: http.StatusUnauthorized,
			wantData: marchallObj(t, errMissingToken),
		},
		{
			name:     "unknown role",
			method:   http.MethodGet,
			path:     "/v1/walkthroughs",
			token:    getToken(t, app.conf, walkthrough.Actor{ID: "u-x", Role: "janitor"}),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "students cannot author",
			method:   http.MethodPost,
			path:     "/v1/walkthroughs",
			body:     []byte(`{"label": "Class A"}`),
			token:    getToken(t, app.conf, student),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "admins cannot review",
			method:   http.MethodPost,
			path:     "/v1/walkthroughs/0e6d7c4a-9a51-4d0b-8f3c-2b7f2f0a5d11/approve",
			token:    getToken(t, app.conf, admin),
			wantCode: http.StatusForbidden,
			wantData: marchallObj(t, errForbidden),
		},
		{
			name:     "not found",
			method:   http.MethodGet,
			path:     "/v1/walkthroughs/0e6d7c4a-9a51-4d0b-8f3c-2b7f2f0a5d11",
			token:    getToken(t, app.conf, admin),
			wantCode: http.StatusNotFound,
			wantData: marchallObj(t, httpErr{Error: walkthrough.ErrNotFound.Error()}),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_walkthroughApi_formats(t *testing.T) {
	app := setup(t)
	req, rec := newAuthRequest(http.MethodGet, "/v1/walkthroughs/formats", getToken(t, app.conf, student))
	app.ServeHTTP(rec, req)

	checkCodeAndData(t, httpTest{
		wantCode: http.StatusOK,
		wantData: []byte(`[
			{"format": "markdown", "available": true},
			{"format": "csv", "available": true},
			{"format": "spreadsheet", "available": true},
			{"format": "structured", "available": true}
		]`),
	}, rec)
}

func Test_walkthroughApi_reviewCycle(t *testing.T) {
	app := setup(t)
	emailsvc.ClearSentMessages()

	doc := importMarkdown(t, app, admin, brakesMarkdown)
	assert.Equal(t, walkthrough.StatusDraft, doc.Status)
	assert.Equal(t, "class-a", doc.Token)
	assert.Equal(t, "Class A pre-trip", doc.Label)
	assert.Equal(t, walkthrough.SourceMarkdown, doc.Source)
	assert.Equal(t, 1, doc.Revision)
	base := "/v1/walkthroughs/" + doc.ID

	// submit
	got, code := post(t, app, admin, base+"/submit", map[string]int{"revision": doc.Revision})
	if assert.Equal(t, http.StatusOK, code) {
		assert.Equal(t, walkthrough.StatusInReview, got.Status)
	}

	// a note is required to request changes
	req, rec := newAuthRequest(http.MethodPost, base+"/request-changes", getToken(t, app.conf, reviewer), []byte(`{"note": "  "}`))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{
		wantCode: http.StatusBadRequest,
		wantData: marchallObj(t, map[string]string{"note": walkthrough.ErrNoteRequired.Error()}),
	}, rec)

	got, code = post(t, app, reviewer, base+"/request-changes", walkthrough.Decision{Note: "Say the pressure out loud"})
	if assert.Equal(t, http.StatusOK, code) {
		assert.Equal(t, walkthrough.StatusChangesRequested, got.Status)
		assert.Equal(t, null.StringFrom("Say the pressure out loud"), got.ReviewNotes)
	}

	// edit then resubmit
	sections := walkthrough.NewRawScript([]interface{}{
		map[string]interface{}{"section": "Brakes", "steps": []interface{}{"Pump the brakes", "Check the air pressure"}},
	})
	req, rec = newAuthRequest(http.MethodPut, base, getToken(t, app.conf, admin),
		marchallObj(t, walkthrough.UpdateDocument{Sections: sections, Revision: got.Revision}))
	app.ServeHTTP(rec, req)
	if assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String()) {
		var res DocumentResponse
		unmarshalObj(t, rec, &res)
		assert.True(t, res.Validation.OK)
		assert.Equal(t, 2, res.Document.Script.StepCount())
		assert.Equal(t, walkthrough.SourceVisual, res.Document.Source)
	}

	got, code = post(t, app, admin, base+"/resubmit", nil)
	if assert.Equal(t, http.StatusOK, code) {
		assert.Equal(t, walkthrough.StatusInReview, got.Status)
		assert.False(t, got.ReviewNotes.Valid)
	}

	// a stale revision is refused
	_, code = post(t, app, reviewer, base+"/approve", map[string]int{"revision": 1})
	assert.Equal(t, http.StatusConflict, code)

	got, code = post(t, app, reviewer, base+"/approve", map[string]int{"revision": got.Revision})
	if assert.Equal(t, http.StatusOK, code) {
		assert.Equal(t, walkthrough.StatusPublished, got.Status)
		assert.Equal(t, null.IntFrom(1), got.Version)
	}

	// approving twice is a transition error
	_, code = post(t, app, reviewer, base+"/approve", nil)
	assert.Equal(t, http.StatusConflict, code)

	// students see the published document
	req, rec = newAuthRequest(http.MethodGet, "/v1/walkthroughs/published/class-a", getToken(t, app.conf, student))
	app.ServeHTTP(rec, req)
	if assert.Equal(t, http.StatusOK, rec.Code) {
		var published walkthrough.Document
		unmarshalObj(t, rec, &published)
		assert.Equal(t, doc.ID, published.ID)
	}

	// history
	req, rec = newAuthRequest(http.MethodGet, base+"/history", getToken(t, app.conf, reviewer))
	app.ServeHTTP(rec, req)
	if assert.Equal(t, http.StatusOK, rec.Code) {
		var events []walkthrough.ReviewEvent
		unmarshalObj(t, rec, &events)
		actions := make([]walkthrough.Action, 0, len(events))
		for _, e := range events {
			actions = append(actions, e.Action)
		}
		assert.Equal(t, []walkthrough.Action{
			walkthrough.ActionCreate,
			walkthrough.ActionSubmit,
			walkthrough.ActionRequestChanges,
			walkthrough.ActionEdit,
			walkthrough.ActionResubmit,
			walkthrough.ActionApprove,
		}, actions)
	}

	// reviewers were told about both submissions, the author about both decisions
	assert.Len(t, emailsvc.SentMessages(), 4)
}

func Test_walkthroughApi_reject(t *testing.T) {
	app := setup(t)
	doc := importMarkdown(t, app, admin, brakesMarkdown)
	base := "/v1/walkthroughs/" + doc.ID

	_, code := post(t, app, admin, base+"/submit", nil)
	assert.Equal(t, http.StatusOK, code)

	got, code := post(t, app, reviewer, base+"/reject", nil)
	if assert.Equal(t, http.StatusOK, code) {
		assert.Equal(t, walkthrough.StatusRejected, got.Status)
	}

	// rejected is terminal
	_, code = post(t, app, admin, base+"/resubmit", nil)
	assert.Equal(t, http.StatusConflict, code)

	// but may be deleted
	req, rec := newAuthRequest(http.MethodDelete, base+"?revision="+strconv.Itoa(got.Revision), getToken(t, app.conf, admin))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	req, rec = newAuthRequest(http.MethodGet, base, getToken(t, app.conf, admin))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_walkthroughApi_invalidSubmit(t *testing.T) {
	app := setup(t)

	req, rec := newAuthRequest(http.MethodPost, "/v1/walkthroughs", getToken(t, app.conf, admin), []byte(`{"label": "Empty"}`))
	app.ServeHTTP(rec, req)
	if !assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String()) {
		return
	}
	var res DocumentResponse
	unmarshalObj(t, rec, &res)
	assert.False(t, res.Validation.OK)

	req, rec = newAuthRequest(http.MethodPost, "/v1/walkthroughs/"+res.Document.ID+"/submit", getToken(t, app.conf, admin))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	var body struct {
		Error    string   `json:"error"`
		Problems []string `json:"problems"`
	}
	unmarshalObj(t, rec, &body)
	assert.Equal(t, "walkthrough is not valid", body.Error)
	if assert.Len(t, body.Problems, 1) {
		assert.Contains(t, body.Problems[0], "script text is required")
	}
}

func Test_walkthroughApi_importErrors(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, admin)

	tests := []httpTest{
		{
			name:     "unknown format",
			body:     []byte(`{"format": "docx", "content": "# Brakes"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"format": "unknown format (expected one of markdown, csv, spreadsheet, structured)"}`),
		},
		{
			name:     "missing format",
			body:     []byte(`{"content": "# Brakes"}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"format": "this field is required"}`),
		},
		{
			name:     "missing content",
			body:     []byte(`{"format": "markdown", "content": "  "}`),
			wantCode: http.StatusBadRequest,
			wantData: []byte(`{"content": "paste some content or upload a file"}`),
		},
		{
			name:     "unreadable structured input",
			body:     []byte(`{"format": "json", "content": "{\"sections\": ["}`),
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "malformed body",
			body:     []byte(`{"format": `),
			wantCode: http.StatusBadRequest,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodPost, "/v1/walkthroughs/import", token, tt.body)
			app.ServeHTTP(rec, req)
			checkCodeAndData(t, tt, rec)
		})
	}
}

func Test_walkthroughApi_upload(t *testing.T) {
	app := setup(t)
	token := getToken(t, app.conf, admin)
	csv := []byte("Section,Script,Must Say\nEngine,Check oil level,yes\nEngine,Check coolant,\n")

	req, rec := newUploadRequest(t, "/v1/walkthroughs/import", token, "class-b.csv", csv, map[string]string{"classCode": "B"})
	app.ServeHTTP(rec, req)
	if assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String()) {
		var res DocumentResponse
		unmarshalObj(t, rec, &res)
		assert.True(t, res.Validation.OK)
		assert.Equal(t, walkthrough.SourceCSV, res.Document.Source)
		assert.Equal(t, "class-b", res.Document.Token)
		assert.Equal(t, 2, res.Document.Script.StepCount())
	}

	// preview does not store anything
	req, rec = newUploadRequest(t, "/v1/walkthroughs/import/preview", token, "class-c.csv", csv, map[string]string{"classCode": "C"})
	app.ServeHTTP(rec, req)
	if assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String()) {
		var proj walkthrough.Projection
		unmarshalObj(t, rec, &proj)
		assert.Equal(t, 2, proj.Stats.Steps)
		assert.Empty(t, proj.Document.ID)
	}

	large := []byte("Section,Script\n" + strings.Repeat("Engine,Check oil level\n", 4<<10))
	req, rec = newUploadRequest(t, "/v1/walkthroughs/import", token, "large.csv", large, nil)
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

func Test_walkthroughApi_query(t *testing.T) {
	app := setup(t)
	now := time.Now()
	script := testutil.Script("Brakes", "Pump the brakes")
	testutil.CreateDocument(t, app.repo, "org1", "class-a", walkthrough.StatusDraft, script, now.Add(-3*time.Hour))
	testutil.CreateDocument(t, app.repo, "org1", "class-b", walkthrough.StatusInReview, script, now.Add(-2*time.Hour))
	testutil.CreateDocument(t, app.repo, "org2", "class-a", walkthrough.StatusDraft, script, now.Add(-time.Hour))
	def := testutil.CreateDocument(t, app.repo, "", "class-c", walkthrough.StatusInReview, testutil.Script("Lights", "Check the headlights"), now)
	testutil.PublishDocument(t, app.repo, def)

	path := func(params map[string]string) string {
		v := make(url.Values)
		for k, val := range params {
			v.Set(k, val)
		}
		return "/v1/walkthroughs?" + v.Encode()
	}
	tokens := func(docs []walkthrough.Document) []string {
		out := make([]string, 0, len(docs))
		for _, d := range docs {
			out = append(out, d.OrganizationID.String+"/"+d.Token)
		}
		return out
	}

	tests := []struct {
		name   string
		actor  walkthrough.Actor
		params map[string]string
		want   []string
	}{
		{"own organization", admin, map[string]string{"ordering": "token"}, []string{"org1/class-a", "org1/class-b"}},
		{"status", admin, map[string]string{"status": "in-review"}, []string{"org1/class-b"}},
		{"with defaults", admin, map[string]string{"include_defaults": "true", "ordering": "token"}, []string{"org1/class-a", "org1/class-b", "/class-c"}},
		{"other organizations are ignored", admin, map[string]string{"organization": "org2"}, []string{"org1/class-a", "org1/class-b"}},
		{"superadmin by organization", superadmin, map[string]string{"organization": "org2"}, []string{"org2/class-a"}},
		{"superadmin defaults", superadmin, map[string]string{"organization": "default"}, []string{"/class-c"}},
		{"search", superadmin, map[string]string{"search": "CLASS-A", "ordering": "-created_at"}, []string{"org2/class-a", "org1/class-a"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, path(tc.params), getToken(t, app.conf, tc.actor))
			app.ServeHTTP(rec, req)
			if !assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String()) {
				return
			}
			var docs []walkthrough.Document
			unmarshalObj(t, rec, &docs)
			if tc.params["ordering"] == "" {
				assert.ElementsMatch(t, tc.want, tokens(docs))
			} else {
				assert.Equal(t, tc.want, tokens(docs))
			}
		})
	}

	req, rec := newAuthRequest(http.MethodGet, path(map[string]string{"status": "lost"}), getToken(t, app.conf, admin))
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, httpTest{wantCode: http.StatusBadRequest, wantData: []byte(`{"status[0]": "unknown status"}`)}, rec)
}

func Test_walkthroughApi_export(t *testing.T) {
	app := setup(t)
	doc := importMarkdown(t, app, admin, brakesMarkdown)
	base := "/v1/walkthroughs/" + doc.ID + "/export"

	tests := []struct {
		format          string
		wantCode        int
		wantType        string
		wantDisposition string
		wantPrefix      string
	}{
		{"markdown", http.StatusOK, "text/markdown; charset=utf-8", `attachment; filename="class-a.md"`, "---\n"},
		{"csv", http.StatusOK, "text/csv; charset=utf-8", `attachment; filename="class-a.csv"`, "section,"},
		{"", http.StatusOK, "application/json; charset=utf-8", `attachment; filename="class-a.json"`, "{"},
		{"pdf", http.StatusBadRequest, "", "", ""},
	}
	for _, tc := range tests {
		t.Run(tc.format, func(t *testing.T) {
			req, rec := newAuthRequest(http.MethodGet, base+"?format="+tc.format, getToken(t, app.conf, admin))
			app.ServeHTTP(rec, req)
			assert.Equal(t, tc.wantCode, rec.Code)
			if tc.wantCode != http.StatusOK {
				return
			}
			assert.Equal(t, tc.wantType, rec.Header().Get("Content-Type"))
			assert.Equal(t, tc.wantDisposition, rec.Header().Get("Content-Disposition"))
			assert.True(t, strings.HasPrefix(rec.Body.String(), tc.wantPrefix), rec.Body.String())
		})
	}

	// other organizations cannot read drafts
	req, rec := newAuthRequest(http.MethodGet, base, getToken(t, app.conf, otherAdmin))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func Test_walkthroughApi_duplicate(t *testing.T) {
	app := setup(t)
	def := testutil.CreateDocument(t, app.repo, "", "class-a", walkthrough.StatusInReview, testutil.Script("Brakes", "Pump the brakes"))
	def = testutil.PublishDocument(t, app.repo, def)

	got, code := post(t, app, admin, "/v1/walkthroughs/"+def.ID+"/duplicate", walkthrough.DuplicateOptions{Label: "Our Class A"})
	if assert.Equal(t, http.StatusCreated, code) {
		assert.Equal(t, walkthrough.StatusDraft, got.Status)
		assert.Equal(t, null.StringFrom("org1"), got.OrganizationID)
		assert.Equal(t, "Our Class A", got.Label)
		assert.False(t, got.IsDefault)
		assert.False(t, got.Version.Valid)
	}

	// superadmins must name the target organization
	_, code = post(t, app, superadmin, "/v1/walkthroughs/"+def.ID+"/duplicate", nil)
	assert.Equal(t, http.StatusBadRequest, code)

	// defaults cannot be deleted
	req, rec := newAuthRequest(http.MethodDelete, "/v1/walkthroughs/"+def.ID, getToken(t, app.conf, superadmin))
	app.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}
