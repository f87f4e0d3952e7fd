package tests

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/mail"
	"reflect"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	. "github.com/cdlbuddy/cdltrainer/apps/api/echo"
	"github.com/cdlbuddy/cdltrainer/core"
	"github.com/cdlbuddy/cdltrainer/core/walkthrough"
	"github.com/cdlbuddy/cdltrainer/services/email"
	"github.com/cdlbuddy/cdltrainer/services/spreadsheet"
	"github.com/cdlbuddy/cdltrainer/storage/database/inmem"
)

var (
	errMissingToken = httpErr{Error: "missing or malformed jwt"}
	errForbidden    = httpErr{Error: "permission denied"}

	superadmin = walkthrough.Actor{ID: "u-super", Role: walkthrough.RoleSuperAdmin, Email: "super@cdl.test"}
	admin      = walkthrough.Actor{ID: "u-admin", Role: walkthrough.RoleAdmin, OrganizationID: "org1", Email: "admin@org1.test"}
	reviewer   = walkthrough.Actor{ID: "u-review", Role: walkthrough.RoleReviewer, OrganizationID: "org1", Email: "review@org1.test"}
	student    = walkthrough.Actor{ID: "u-student", Role: walkthrough.RoleStudent, OrganizationID: "org1"}
	otherAdmin = walkthrough.Actor{ID: "u-admin2", Role: walkthrough.RoleAdmin, OrganizationID: "org2"}
)

func testConfig() *core.Config {
	conf := &core.Config{
		AppName:          "CDL Trainer",
		TestMode:         true,
		SecretKey:        "test-secret",
		FrontendBaseURL:  "http://app.test",
		DefaultFromEmail: mail.Address{Name: "CDL Trainer", Address: "noreply@app.test"},
		ReviewerEmails:   []mail.Address{{Address: "review@app.test"}},
	}
	conf.Server.JWTExpirationDelta = time.Hour
	conf.Import.MaxUploadSize = 64 << 10
	return conf
}

type testApp struct {
	Server
	conf *core.Config
	repo walkthrough.Repository
}

func setup(t *testing.T) testApp {
	conf := testConfig()

	// set up DB & repos
	db, err := inmemdb.Open()
	if err != nil {
		t.Fatalf("inmemdb.Open() failed: %v", err)
	}
	repo := inmemdb.NewWalkthroughRepository(db)

	// set up services
	core.ParseEmailTemplates(conf, core.NopLogger{})
	mailSvc := emailsvc.NewConsoleServiceMock(conf)
	svc := walkthrough.NewService(walkthrough.ServiceDeps{
		Repo:     repo,
		Parsers:  walkthrough.NewParsers(spreadsheet.NewDecoder()),
		Notifier: emailsvc.NewNotifier(conf, mailSvc),
	})

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	walkthrough.InitValidators(validate, translator)

	// set up server
	server := NewServer(
		ServerDeps{
			Conf:           conf,
			Logger:         core.NopLogger{},
			WalkthroughSvc: svc,
			Validate:       validate,
			Translator:     translator,
			DisableReqLogs: true,
		},
	)
	return testApp{Server: server, conf: conf, repo: repo}
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newUploadRequest posts a multipart form with file as the "file" field.
func newUploadRequest(t *testing.T, path, token, filename string, file []byte, fields map[string]string) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("WriteField() failed: %v", err)
		}
	}
	part, err := w.CreateFormFile("file", filename)
	if err != nil {
		t.Fatalf("CreateFormFile() failed: %v", err)
	}
	if _, err = part.Write(file); err != nil {
		t.Fatalf("part.Write() failed: %v", err)
	}
	if err = w.Close(); err != nil {
		t.Fatalf("w.Close() failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	req.Header.Set("Authorization", "Bearer "+token)
	return req, httptest.NewRecorder()
}

func getToken(t *testing.T, conf *core.Config, actor walkthrough.Actor) string {
	token, err := GenerateToken(conf, GetActorClaims(conf, actor))
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarshalObj(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), obj); err != nil {
		t.Fatalf("json.Unmarshal(%s) failed: %v", rec.Body.String(), err)
	}
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	t.Helper()
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
