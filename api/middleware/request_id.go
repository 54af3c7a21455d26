package middleware

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/BrightonDube/bizpilot-backend/pkg/logger"
)

const requestIDHeader = "X-Request-Id"

// RequestID tags every request with a correlation id and echoes it back
// on the response. A caller-supplied id is honored only when it parses
// as a uuid; anything else is replaced so log queries never key on
// arbitrary client strings.
func RequestID(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		fn := func(w http.ResponseWriter, r *http.Request) {
			reqID := requestIDFor(r)
			w.Header().Set(requestIDHeader, reqID)

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithRequestID(ctx, reqID)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(fn)
	}
}

func requestIDFor(r *http.Request) string {
	supplied := r.Header.Get(requestIDHeader)
	if _, err := uuid.Parse(supplied); err == nil {
		return supplied
	}
	return uuid.NewString()
}
