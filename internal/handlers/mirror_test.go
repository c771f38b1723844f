package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/fileuploader/internal/storage"
)

func mirrorRouter(h *MirrorHandler) *mux.Router {
	r := mux.NewRouter()
	h.Register(r)
	return r
}

func serve(r http.Handler, method, target string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, nil))
	return rec
}

func TestMirrorHandlerDisabled(t *testing.T) {
	r := mirrorRouter(NewMirrorHandler(nil, nil, "", nil))
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodGet, "/api/mirror").Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodDelete, "/api/mirror?id=x").Code)
}

func TestMirrorHandlerListAndDelete(t *testing.T) {
	factory := storage.NewStorageFactory(nil)
	m, err := storage.NewMirrorFromConfig(factory, storage.Config{
		Provider: "local",
		Prefix:   "backup",
		Options:  map[string]string{"base_path": t.TempDir()},
	}, nil)
	require.NoError(t, err)

	src := filepath.Join(t.TempDir(), "a.txt")
	require.NoError(t, os.WriteFile(src, []byte("a"), 0o644))
	id, err := m.Copy(context.Background(), "docs", src, "text/plain")
	require.NoError(t, err)

	r := mirrorRouter(NewMirrorHandler(m, factory, "local", nil))

	rec := serve(r, http.MethodGet, "/api/mirror?field=docs")
	require.Equal(t, http.StatusOK, rec.Code)
	var list struct {
		Success bool               `json:"success"`
		Data    []storage.FileInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Data, 1)
	assert.Equal(t, id, list.Data[0].ID)

	assert.Equal(t, http.StatusBadRequest, serve(r, http.MethodDelete, "/api/mirror").Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodDelete, "/api/mirror?id=backup/../a.txt").Code)
	assert.FileExists(t, src)
	assert.Equal(t, http.StatusOK, serve(r, http.MethodDelete, "/api/mirror?id="+id).Code)
	assert.Equal(t, http.StatusNotFound, serve(r, http.MethodDelete, "/api/mirror?id="+id).Code)

	rec = serve(r, http.MethodGet, "/api/mirror")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"data":[]}`, rec.Body.String())
}

func TestStorageStatus(t *testing.T) {
	factory := storage.NewStorageFactory(nil)
	_, err := factory.CreateProvider("s3", map[string]string{})
	require.Error(t, err)

	rec := serve(mirrorRouter(NewMirrorHandler(nil, factory, "local", nil)), http.MethodGet, "/api/storage/status")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp struct {
		Data map[string]struct {
			Available bool   `json:"available"`
			Reason    string `json:"reason"`
			Active    bool   `json:"active"`
		} `json:"data"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Data["local"].Available)
	assert.True(t, resp.Data["local"].Active)
	assert.False(t, resp.Data["s3"].Available)
	assert.NotEmpty(t, resp.Data["s3"].Reason)
	assert.True(t, resp.Data["gcs"].Available)
}
