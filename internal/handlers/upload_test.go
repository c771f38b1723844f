package handlers

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/fileuploader/internal/policy"
	"github.com/example/fileuploader/internal/uploader"
)

type itemBody struct {
	Origin string `json:"origin"`
	File   *struct {
		Name string `json:"name"`
		Path string `json:"path"`
		Size int64  `json:"size"`
	} `json:"file"`
	Error *errorBody `json:"error"`
}

type errorBody struct {
	Kind    string `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type uploadEnvelope struct {
	Success bool `json:"success"`
	Data    struct {
		BatchID string              `json:"batchId"`
		Stored  int                 `json:"stored"`
		Failed  int                 `json:"failed"`
		Results map[string]itemBody `json:"results"`
	} `json:"data"`
	Error *errorBody `json:"error"`
}

type part struct {
	field, name, content string
}

func multipartBody(t *testing.T, parts []part, values map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, p := range parts {
		fw, err := mw.CreateFormFile(p.field, p.name)
		require.NoError(t, err)
		_, err = fw.Write([]byte(p.content))
		require.NoError(t, err)
	}
	for k, v := range values {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

type fixture struct {
	router  *mux.Router
	dir     string
	scratch string
}

func newFixture(t *testing.T, specs ...policy.Spec) fixture {
	t.Helper()
	dir := t.TempDir()
	reg := policy.NewRegistry()
	for _, s := range specs {
		if s.Directory == "" {
			s.Directory = dir
		}
		require.NoError(t, reg.RegisterSpecs(s))
	}
	scratch := t.TempDir()
	r := mux.NewRouter()
	NewUploadHandler(uploader.New(reg, uploader.Options{Workers: 2}), 1<<20, scratch, nil).Register(r)
	return fixture{router: r, dir: dir, scratch: scratch}
}

func (f fixture) do(t *testing.T, req *http.Request) (*httptest.ResponseRecorder, uploadEnvelope) {
	t.Helper()
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	var env uploadEnvelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec, env
}

func serveText(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain")
		w.Header().Set("Content-Length", strconv.Itoa(len(body)))
		if r.Method == http.MethodGet {
			_, _ = w.Write([]byte(body))
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestUploadMultipartArrayAndSingleFields(t *testing.T) {
	f := newFixture(t, policy.Spec{Field: "docs", AllowedTypes: "txt"})
	body, ct := multipartBody(t, []part{
		{"docs[]", "a.txt", "first"},
		{"docs[]", "b.txt", "second"},
		{"avatar", "me.txt", "third"},
	}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)
	req.Header.Set(BatchHeader, "batch-1")

	rec, env := f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.True(t, env.Success)
	assert.Equal(t, "batch-1", env.Data.BatchID)
	assert.Equal(t, 3, env.Data.Stored)
	assert.Zero(t, env.Data.Failed)
	require.Contains(t, env.Data.Results, "docs||0")
	require.Contains(t, env.Data.Results, "docs||1")
	require.Contains(t, env.Data.Results, "avatar")
	assert.Equal(t, "multipart", env.Data.Results["avatar"].Origin)

	for name, want := range map[string]string{"a.txt": "first", "b.txt": "second", "me.txt": "third"} {
		got, err := os.ReadFile(filepath.Join(f.dir, name))
		require.NoError(t, err)
		assert.Equal(t, want, string(got))
	}

	left, err := os.ReadDir(f.scratch)
	require.NoError(t, err)
	assert.Empty(t, left, "spooled parts must be removed")
}

func TestUploadRepeatedFieldBecomesArray(t *testing.T) {
	f := newFixture(t, policy.Spec{Field: "doc"})
	body, ct := multipartBody(t, []part{{"doc", "x.txt", "1"}, {"doc", "y.txt", "2"}}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/upload/files", body)
	req.Header.Set("Content-Type", ct)

	rec, env := f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, env.Data.Results, "doc||0")
	assert.Contains(t, env.Data.Results, "doc||1")
}

func TestUploadFilesModeIgnoresLinks(t *testing.T) {
	srv := serveText(t, "remote")
	f := newFixture(t, policy.Spec{Field: "doc"})
	body, ct := multipartBody(t, []part{{"doc", "local.txt", "local"}}, map[string]string{"link": srv.URL + "/body.txt"})
	req := httptest.NewRequest(http.MethodPost, "/api/upload/files?other="+url.QueryEscape(srv.URL+"/query.txt"), body)
	req.Header.Set("Content-Type", ct)

	rec, env := f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.Data.Stored)
	assert.Len(t, env.Data.Results, 1)
	assert.NoFileExists(t, filepath.Join(f.dir, "body.txt"))
	assert.NoFileExists(t, filepath.Join(f.dir, "query.txt"))
}

func TestUploadAllFetchesBodyAndQueryLinks(t *testing.T) {
	srv := serveText(t, "remote content")
	f := newFixture(t, policy.Spec{Field: "doc", AllowedTypes: "txt"})
	form := url.Values{"fromBody": {srv.URL + "/body.txt"}, "title": {"not a link"}}
	req := httptest.NewRequest(http.MethodPost, "/api/upload?fromQuery="+url.QueryEscape(srv.URL+"/query.txt"), bytes.NewBufferString(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	rec, env := f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, 2, env.Data.Stored)
	assert.Equal(t, "body", env.Data.Results["fromBody"].Origin)
	assert.Equal(t, "query", env.Data.Results["fromQuery"].Origin)
	assert.NotContains(t, env.Data.Results, "title")

	got, err := os.ReadFile(filepath.Join(f.dir, "query.txt"))
	require.NoError(t, err)
	assert.Equal(t, "remote content", string(got))
}

func TestUploadEmptyRequest(t *testing.T) {
	f := newFixture(t, policy.Spec{Field: "doc"})
	rec, env := f.do(t, httptest.NewRequest(http.MethodPost, "/api/upload", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NO_FILES", env.Error.Code)
	assert.Equal(t, "batch_empty", env.Error.Kind)
	assert.NotEmpty(t, env.Data.BatchID)
}

func TestUploadPolicyErrorAbortsWithStatus(t *testing.T) {
	f := newFixture(t, policy.Spec{Field: "doc", AllowedTypes: "jpg"})
	body, ct := multipartBody(t, []part{{"doc", "notes.txt", "text"}}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)

	rec, env := f.do(t, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "DISALLOWED_TYPE", env.Error.Code)
	assert.Equal(t, "policy", env.Error.Kind)
	assert.NoFileExists(t, filepath.Join(f.dir, "notes.txt"))
}

func TestUploadSkipOnErrorReportsPerItem(t *testing.T) {
	f := newFixture(t, policy.Spec{Field: "doc", AllowedTypes: "txt", SkipOnError: true})
	body, ct := multipartBody(t, []part{{"doc[]", "ok.txt", "fine"}, {"doc[]", "bad.exe", "MZ"}}, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set("Content-Type", ct)

	rec, env := f.do(t, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, env.Data.Stored)
	assert.Equal(t, 1, env.Data.Failed)
	bad := env.Data.Results["doc||1"]
	require.NotNil(t, bad.Error)
	assert.Equal(t, "DISALLOWED_TYPE", bad.Error.Code)
	assert.Nil(t, bad.File)
}

func TestUploadRejectsOtherMethods(t *testing.T) {
	f := newFixture(t, policy.Spec{Field: "doc"})
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/upload", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestLinksKeepLastValueInNameOrder(t *testing.T) {
	got := links(url.Values{
		"b": {"http://example.com/1", "http://example.com/2"},
		"a": {"http://example.com/a"},
		"c": {},
	})
	assert.Equal(t, []uploader.Link{
		{Field: "a", Value: "http://example.com/a"},
		{Field: "b", Value: "http://example.com/2"},
	}, got)
}
