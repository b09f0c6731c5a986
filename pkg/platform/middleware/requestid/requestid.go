// Package requestid propagates a request identifier through the request
// context so log records forwarded while serving a request can be correlated.
package requestid

import (
	"net/http"

	"github.com/google/uuid"

	"femtoclaw/pkg/requestcontext"
)

// Header carries the request identifier in both directions.
const Header = "X-Request-ID"

// Middleware reuses the caller's X-Request-ID or generates one, stores it in
// the context and echoes it on the response.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(Header)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(Header, id)
		next.ServeHTTP(w, r.WithContext(requestcontext.WithRequestID(r.Context(), id)))
	})
}
