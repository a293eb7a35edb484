package api

import (
	"crypto/subtle"
	"net/http"
	"strings"
)

// requireMasterKey admits requests carrying "Authorization: Bearer <key>".
// With no key configured every request is refused.
func (s *Server) requireMasterKey(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || s.opts.MasterKey == "" ||
			subtle.ConstantTimeCompare([]byte(key), []byte(s.opts.MasterKey)) != 1 {
			submissionsRejected.WithLabelValues("unauthorized").Inc()
			s.writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
