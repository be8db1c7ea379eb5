package web

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/umputun/apkbuild/app/web/enums"
	"github.com/umputun/apkbuild/app/web/mocks"
	"github.com/umputun/apkbuild/app/web/persistence"
)

func seedBuilds(t *testing.T, store *persistence.SQLiteStore) {
	t.Helper()
	base := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	recs := []persistence.BuildRecord{
		{ID: "b1", Name: "First App", Host: "https://one.example.com", PackageName: "com.twa.firstapp", StartedAt: base},
		{ID: "b2", Name: "Second", Host: "https://two.example.com", PackageName: "com.twa.second", StartedAt: base.Add(time.Minute)},
		{ID: "b3", Name: "Third", Host: "https://three.example.com", PackageName: "com.twa.third", StartedAt: base.Add(2 * time.Minute)},
	}
	for _, r := range recs {
		require.NoError(t, store.RecordStart(r))
	}
	require.NoError(t, store.RecordComplete(persistence.BuildRecord{ID: "b1", Status: enums.BuildStatusSuccess,
		FinishedAt: base.Add(30 * time.Second), Output: "b1 output", Artifact: "b1.apk", Size: 5}))
	require.NoError(t, store.RecordComplete(persistence.BuildRecord{ID: "b2", Status: enums.BuildStatusFailed,
		FinishedAt: base.Add(90 * time.Second), ExitCode: 1, Error: "boom", Output: "b2 output"}))
}

func TestServer_APIBuilds(t *testing.T) {
	store := newTestStore(t)
	seedBuilds(t, store)
	srv := newTestServer(t, &mocks.BuilderMock{}, Config{Store: store})
	h := srv.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/builds", http.NoBody)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "application/json", rr.Header().Get("Content-Type"))

	var resp APIBuildsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Builds, 3)
	assert.Equal(t, []string{"b3", "b2", "b1"}, []string{resp.Builds[0].ID, resp.Builds[1].ID, resp.Builds[2].ID})
	assert.Equal(t, APIStats{Total: 3, Running: 1, Success: 1, Failed: 1}, resp.Stats)
	assert.Empty(t, resp.Builds[2].Output, "output not listed")
	assert.Equal(t, "b1.apk", resp.Builds[2].Artifact)
	assert.False(t, resp.Timestamp.IsZero())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/builds?limit=1", http.NoBody)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Builds, 1)
	assert.Equal(t, "b3", resp.Builds[0].ID)

	for _, bad := range []string{"abc", "0", "-5"} {
		req = httptest.NewRequest(http.MethodGet, "/api/v1/builds?limit="+bad, http.NoBody)
		rr = httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code, bad)
	}
}

func TestServer_APIBuild(t *testing.T) {
	store := newTestStore(t)
	seedBuilds(t, store)
	srv := newTestServer(t, &mocks.BuilderMock{}, Config{Store: store})
	h := srv.routes()

	req := httptest.NewRequest(http.MethodGet, "/api/v1/builds/b2", http.NoBody)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	var rec persistence.BuildRecord
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &rec))
	assert.Equal(t, "b2", rec.ID)
	assert.Equal(t, enums.BuildStatusFailed, rec.Status)
	assert.Equal(t, "b2 output", rec.Output)
	assert.Equal(t, "boom", rec.Error)
	assert.Equal(t, "com.twa.second", rec.PackageName)

	req = httptest.NewRequest(http.MethodGet, "/api/v1/builds/nope", http.NoBody)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"build not found"}`, rr.Body.String())
}

func TestServer_APIArtifact(t *testing.T) {
	store := newTestStore(t)
	seedBuilds(t, store)
	artifacts := t.TempDir()
	srv := newTestServer(t, &mocks.BuilderMock{}, Config{Store: store, ArtifactsDir: artifacts})
	h := srv.routes()

	// record exists, file doesn't
	req := httptest.NewRequest(http.MethodGet, "/api/v1/builds/b1/artifact", http.NoBody)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)

	require.NoError(t, os.WriteFile(filepath.Join(artifacts, "b1.apk"), []byte("apk-1"), 0o600))
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "apk-1", rr.Body.String())
	assert.Equal(t, "application/vnd.android.package-archive", rr.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="First_App_1714557630000.apk"`, rr.Header().Get("Content-Disposition"))
	assert.Equal(t, "b1", rr.Header().Get("X-Build-ID"))

	// failed build has no artifact
	req = httptest.NewRequest(http.MethodGet, "/api/v1/builds/b2/artifact", http.NoBody)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.JSONEq(t, `{"error":"artifact not found"}`, rr.Body.String())

	req = httptest.NewRequest(http.MethodGet, "/api/v1/builds/nope/artifact", http.NoBody)
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestServer_APISchema(t *testing.T) {
	srv := newTestServer(t, &mocks.BuilderMock{}, Config{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/schema", http.NoBody)
	rr := httptest.NewRecorder()
	srv.routes().ServeHTTP(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var schema struct {
		Type       string                    `json:"type"`
		Properties map[string]map[string]any `json:"properties"`
		Required   []string                  `json:"required"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &schema))
	assert.Equal(t, "object", schema.Type)
	assert.ElementsMatch(t, []string{"host", "launcherName"}, schema.Required)
	assert.Equal(t, "string", schema.Properties["host"]["type"])
	assert.Equal(t, "start url of the web app", schema.Properties["host"]["description"])
	assert.Contains(t, schema.Properties, "launcherName")
}
