package web

import (
	"crypto/subtle"
	"net/http"

	log "github.com/go-pkgz/lgr"
	"golang.org/x/crypto/bcrypt"
)

// authUser is the only user name accepted by basic auth
const authUser = "apkbuild"

// authMiddleware checks basic auth credentials against the bcrypt hash
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if ok && subtle.ConstantTimeCompare([]byte(username), []byte(authUser)) == 1 &&
			bcrypt.CompareHashAndPassword([]byte(s.passwordHash), []byte(password)) == nil {
			next.ServeHTTP(w, r)
			return
		}

		if ok {
			log.Printf("[WARN] failed basic auth for %q from %s", username, r.RemoteAddr)
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="apkbuild", charset="UTF-8"`)
		s.writeJSONError(w, http.StatusUnauthorized, "Unauthorized", "")
	})
}
