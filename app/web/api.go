package web

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	log "github.com/go-pkgz/lgr"
	"github.com/invopop/jsonschema"

	"github.com/umputun/apkbuild/app/builder"
	"github.com/umputun/apkbuild/app/manifest"
	"github.com/umputun/apkbuild/app/web/enums"
	"github.com/umputun/apkbuild/app/web/persistence"
)

const (
	defaultListLimit = 50
	maxListLimit     = 1000
)

// APIBuildsResponse is the JSON response for /api/v1/builds
type APIBuildsResponse struct {
	Builds    []persistence.BuildRecord `json:"builds"`
	Stats     APIStats                  `json:"stats"`
	Timestamp time.Time                 `json:"timestamp"`
}

// APIStats represents counts by status of the listed builds
type APIStats struct {
	Total       int `json:"total"`
	Running     int `json:"running"`
	Success     int `json:"success"`
	Failed      int `json:"failed"`
	Interrupted int `json:"interrupted"`
}

// handleAPIBuilds returns recent builds, newest first - designed for CLI/jq consumption
func (s *Server) handleAPIBuilds(w http.ResponseWriter, r *http.Request) {
	limit := defaultListLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		l, err := strconv.Atoi(v)
		if err != nil || l <= 0 {
			s.writeJSONError(w, http.StatusBadRequest, "invalid limit", "")
			return
		}
		limit = min(l, maxListLimit)
	}

	builds, err := s.store.List(limit)
	if err != nil {
		log.Printf("[ERROR] failed to list builds: %v", err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to load build history", "")
		return
	}

	stats := APIStats{Total: len(builds)}
	for i := range builds {
		builds[i].Output = "" // output is returned by the single build endpoint only
		switch builds[i].Status {
		case enums.BuildStatusRunning:
			stats.Running++
		case enums.BuildStatusSuccess:
			stats.Success++
		case enums.BuildStatusFailed:
			stats.Failed++
		case enums.BuildStatusInterrupted:
			stats.Interrupted++
		}
	}

	s.writeJSON(w, http.StatusOK, APIBuildsResponse{Builds: builds, Stats: stats, Timestamp: time.Now()})
}

// handleAPIBuild returns single build with captured output
func (s *Server) handleAPIBuild(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.getBuild(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, rec)
}

// handleAPIArtifact streams stored apk of a successful build
func (s *Server) handleAPIArtifact(w http.ResponseWriter, r *http.Request) {
	rec, ok := s.getBuild(w, r)
	if !ok {
		return
	}
	if rec.Artifact == "" {
		s.writeJSONError(w, http.StatusNotFound, "artifact not found", "")
		return
	}

	path := filepath.Join(s.artifactsDir, filepath.Base(rec.Artifact))
	if st, err := os.Stat(path); err != nil || !st.Mode().IsRegular() {
		s.writeJSONError(w, http.StatusNotFound, "artifact not found", "")
		return
	}
	fileName := manifest.SafeName(rec.Name) + "_" + strconv.FormatInt(rec.FinishedAt.UnixMilli(), 10) + ".apk"
	s.serveAPK(w, r, rec.ID, path, fileName)
}

// handleAPISchema returns JSON schema of the build request
func (s *Server) handleAPISchema(w http.ResponseWriter, _ *http.Request) {
	reflector := jsonschema.Reflector{DoNotReference: true}
	s.writeJSON(w, http.StatusOK, reflector.Reflect(&builder.Request{}))
}

func (s *Server) getBuild(w http.ResponseWriter, r *http.Request) (persistence.BuildRecord, bool) {
	id := r.PathValue("id")
	if id == "" {
		s.writeJSONError(w, http.StatusBadRequest, "build ID required", "")
		return persistence.BuildRecord{}, false
	}
	rec, err := s.store.Get(id)
	if err != nil {
		if errors.Is(err, persistence.ErrNotFound) {
			s.writeJSONError(w, http.StatusNotFound, "build not found", "")
			return persistence.BuildRecord{}, false
		}
		log.Printf("[ERROR] failed to get build %s: %v", id, err)
		s.writeJSONError(w, http.StatusInternalServerError, "failed to load build", "")
		return persistence.BuildRecord{}, false
	}
	return rec, true
}
