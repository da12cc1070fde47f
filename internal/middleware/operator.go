package middleware

import (
	"net/http"
	"strings"

	"github.com/quizbank/importer/internal/auth"
	"github.com/quizbank/importer/internal/domain"
)

// Operator reads the operator identity forwarded by the upstream auth layer
// and places it on the request context. Authentication itself is out of scope
// here; this service trusts its gateway.
func Operator(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get("X-Operator-Id"))
		if id != "" {
			actor := domain.Actor{
				ID:   id,
				Name: strings.TrimSpace(r.Header.Get("X-Operator-Name")),
			}
			r = r.WithContext(auth.ContextWithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}
