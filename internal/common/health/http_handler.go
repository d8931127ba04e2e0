package health

import (
	"net/http"

	log "github.com/sirupsen/logrus"
)

// SetupHttpMux exposes checker at /health. Healthy is 204, anything else is
// 503 with the failure text as the body.
func SetupHttpMux(mux *http.ServeMux, checker Checker) {
	mux.Handle("/health", Handler(checker))
}

// Handler adapts a Checker to an http.Handler.
func Handler(checker Checker) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := checker.Check(); err != nil {
			log.Warnf("Health check failed: %v", err)
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	})
}
