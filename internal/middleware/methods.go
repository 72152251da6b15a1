package middleware

import (
	"encoding/json"
	"net/http"
	"strings"

	"falldetector/internal/logger"
)

// AllowMethods rejects requests whose method is not listed with 405.
func AllowMethods(logger *logger.Logger, next http.HandlerFunc, methods ...string) http.HandlerFunc {
	allow := strings.Join(methods, ", ")
	return func(w http.ResponseWriter, r *http.Request) {
		for _, m := range methods {
			if r.Method == m {
				next(w, r)
				return
			}
		}
		w.Header().Set("Allow", allow)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusMethodNotAllowed)
		if err := json.NewEncoder(w).Encode(map[string]string{"error": "Method not allowed"}); err != nil {
			logger.Error("Error encoding JSON response: %v", err)
		}
	}
}
