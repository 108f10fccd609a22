package echoapi_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/trezcool/tathmini/apps/api/echo"
	"github.com/trezcool/tathmini/core"
	"github.com/trezcool/tathmini/core/attempt"
	"github.com/trezcool/tathmini/core/grading"
	"github.com/trezcool/tathmini/core/progress"
	"github.com/trezcool/tathmini/core/reconcile"
	"github.com/trezcool/tathmini/core/user"
	"github.com/trezcool/tathmini/storage/database/dummy"
	"github.com/trezcool/tathmini/tests"
)

var errMissingToken = httpErr{Error: "missing or malformed jwt"}

type httpErr struct {
	Error  string            `json:"error"`
	Kind   string            `json:"kind,omitempty"`
	Fields map[string]string `json:"fields,omitempty"`
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

type testApp struct {
	conf   *core.Config
	db     *dummydb.DB
	server *echoapi.Server
}

func newTestApp(t *testing.T) *testApp {
	conf := testutil.NewConfig()
	logger := testutil.NewLogger()
	validator := core.NewValidator()
	db := testutil.OpenDummyDB(t)

	server := echoapi.NewServer(
		conf,
		logger,
		progress.NewService(dummydb.NewProgressRepository(db), validator, logger, conf),
		attempt.NewService(dummydb.NewAttemptRepository(db), validator, logger),
		grading.NewService(dummydb.NewGradingRepository(db), validator, logger, conf),
		reconcile.NewReconciler(dummydb.NewReconcileRepository(db), logger),
		echoapi.Options{DisableReqLogs: true},
	)
	return &testApp{conf: conf, db: db, server: server}
}

func (app *testApp) token(t *testing.T, id user.Identity) string {
	token, err := echoapi.GenerateToken(echoapi.GetUserClaims(id, app.conf), app.conf)
	if err != nil {
		t.Fatalf("token() failed: %v", err)
	}
	return token
}

// do serves one request and returns the recorded response.
func (app *testApp) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	app.server.ServeHTTP(rec, req)
	return rec
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

func marshallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marshallObj() failed: %v", err)
	}
	return data
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), obj); err != nil {
		t.Fatalf("decode() failed: %v; body %s", err, rec.Body.String())
	}
}

func jsonBytesEqual(b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	return reflect.DeepEqual(j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	assert.Equal(t, tt.wantCode, rec.Code, "code; body %s", rec.Body.String())
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, app *testApp, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := app.do(tt.method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}
