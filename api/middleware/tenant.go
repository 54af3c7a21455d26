package middleware

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/BrightonDube/bizpilot-backend/api/responses"
	pkgerrors "github.com/BrightonDube/bizpilot-backend/pkg/errors"
	"github.com/BrightonDube/bizpilot-backend/pkg/logger"
)

const (
	businessIDHeader = "X-Business-Id"
	locationIDHeader = "X-Location-Id"
	actorIDHeader    = "X-User-Id"
)

// Tenant requires valid business, location and acting-user headers on
// every request it guards. The upstream gateway owns authentication.
func Tenant(logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			businessID, err := headerUUID(r, businessIDHeader)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			locationID, err := headerUUID(r, locationIDHeader)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
			actorID, err := headerUUID(r, actorIDHeader)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}

			ctx := WithTenant(r.Context(), businessID, locationID)
			ctx = WithActor(ctx, actorID)
			if logg != nil {
				ctx = logg.WithBusinessID(ctx, businessID.String())
				ctx = logg.WithLocationID(ctx, locationID.String())
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func headerUUID(r *http.Request, header string) (uuid.UUID, error) {
	raw := strings.TrimSpace(r.Header.Get(header))
	if raw == "" {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, header+" header required")
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, header+" header must be a uuid")
	}
	return id, nil
}
