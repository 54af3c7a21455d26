package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/BrightonDube/bizpilot-backend/api/controllers"
	"github.com/BrightonDube/bizpilot-backend/api/middleware"
	"github.com/BrightonDube/bizpilot-backend/internal/laybys"
	"github.com/BrightonDube/bizpilot-backend/pkg/config"
	"github.com/BrightonDube/bizpilot-backend/pkg/db"
	"github.com/BrightonDube/bizpilot-backend/pkg/logger"
	"github.com/BrightonDube/bizpilot-backend/pkg/redis"
)

// NewRouter wires the HTTP surface. Authentication happens upstream at the
// gateway; requests arrive with tenant and actor headers already verified.
func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	laybyService laybys.Service,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Tenant(logg))
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/laybys", func(r chi.Router) {
			r.Post("/", controllers.CreateLayby(laybyService, logg))
			r.Get("/", controllers.ListLaybys(laybyService, logg))
			r.Route("/{laybyID}", func(r chi.Router) {
				r.Get("/", controllers.GetLayby(laybyService, logg))
				r.Post("/payments", controllers.RecordLaybyPayment(laybyService, logg))
				r.Post("/extend", controllers.ExtendLayby(laybyService, logg))
				r.Post("/cancel", controllers.CancelLayby(laybyService, logg))
				r.Post("/collect", controllers.CollectLayby(laybyService, logg))
			})
		})

		r.Post("/payments/{paymentID}/refund", controllers.RefundLaybyPayment(laybyService, logg))
	})

	return r
}
