package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"

	log "github.com/go-pkgz/lgr"

	"github.com/umputun/apkbuild/app/builder"
	"github.com/umputun/apkbuild/app/builder/event"
	"github.com/umputun/apkbuild/app/web/enums"
	"github.com/umputun/apkbuild/app/web/persistence"
)

const apkContentType = "application/vnd.android.package-archive"

// handleBuild runs the build for json request and streams the produced apk back
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	var req builder.Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeJSONError(w, http.StatusBadRequest, "Host and Launcher Name are required.",
			fmt.Sprintf("can't decode request: %v", err))
		return
	}

	res, err := s.builder.Build(r.Context(), req)
	if err != nil {
		switch {
		case errors.Is(err, builder.ErrBadRequest):
			s.writeJSONError(w, http.StatusBadRequest, "Host and Launcher Name are required.", err.Error())
		case errors.Is(err, builder.ErrNotReady):
			s.writeJSONError(w, http.StatusServiceUnavailable, "Builder Not Ready.", err.Error())
		default:
			log.Printf("[WARN] build for %q failed: %v", req.LauncherName, err)
			s.writeJSONError(w, http.StatusInternalServerError, "APK Build Failed.", err.Error())
		}
		return
	}

	s.serveAPK(w, r, res.ID, res.Artifact, res.FileName)
}

// serveAPK streams stored apk as an attachment. Errors before the first byte get a JSON response,
// failures while streaming are only logged as the status is already sent.
func (s *Server) serveAPK(w http.ResponseWriter, r *http.Request, id, path, fileName string) {
	fh, err := os.Open(path) //nolint:gosec // path is made by builder or from artifacts dir
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "APK Build Failed.", fmt.Sprintf("can't open artifact: %v", err))
		return
	}
	defer fh.Close()

	st, err := fh.Stat()
	if err != nil {
		s.writeJSONError(w, http.StatusInternalServerError, "APK Build Failed.", fmt.Sprintf("can't stat artifact: %v", err))
		return
	}

	w.Header().Set("Content-Type", apkContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	w.Header().Set("X-Build-ID", id)
	w.Header().Set("Content-Length", strconv.FormatInt(st.Size(), 10))
	http.ServeContent(w, r, fileName, st.ModTime(), fh)
	log.Printf("[INFO] build %s served as %s, %d bytes", id, fileName, st.Size())
}

// OnBuildStart implements builder.EventHandler, adds running build to history
func (s *Server) OnBuildStart(e event.Start) {
	rec := persistence.BuildRecord{ID: e.ID, Name: e.LauncherName, Host: e.Host, PackageName: e.PackageName,
		StartedAt: e.StartedAt}
	if err := s.store.RecordStart(rec); err != nil {
		log.Printf("[WARN] failed to record build start: %v", err)
	}
}

// OnBuildComplete implements builder.EventHandler, sets final state of the build
func (s *Server) OnBuildComplete(e event.Complete) {
	rec := persistence.BuildRecord{ID: e.ID, Status: enums.BuildStatusSuccess, FinishedAt: e.FinishedAt,
		ExitCode: e.ExitCode, Output: e.Output, Artifact: e.Artifact, Size: e.Size}
	if e.Err != nil {
		rec.Status, rec.Error = enums.BuildStatusFailed, e.Err.Error()
	}
	if err := s.store.RecordComplete(rec); err != nil {
		log.Printf("[WARN] failed to record build completion: %v", err)
	}
}
