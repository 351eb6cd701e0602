package app

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/unrolled/secure"

	"github.com/keystone-erp/keystone-erp/internal/platform/httpx"
	"github.com/keystone-erp/keystone-erp/internal/shared"
)

// RouteMounter lets feature packages attach their endpoints without the
// router knowing their types.
type RouteMounter interface {
	Routes(r chi.Router)
}

// RouterParams collects everything the HTTP router needs.
type RouterParams struct {
	Logger     *slog.Logger
	Config     *Config
	API        []RouteMounter
	JobsHealth func(r chi.Router)
}

// NewRouter assembles the HTTP stack: request logging, rate limiting, secure
// headers, actor extraction, health and metrics endpoints, then the API.
func NewRouter(p RouterParams) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(p.Config.AppRequestTimeout))
	r.Use(httprate.LimitByIP(300, time.Minute))

	secureMiddleware := secure.New(secure.Options{
		FrameDeny:          true,
		ContentTypeNosniff: true,
		BrowserXssFilter:   true,
		IsDevelopment:      !p.Config.IsProduction(),
	})
	r.Use(secureMiddleware.Handler)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	if p.JobsHealth != nil {
		r.Route("/jobs", p.JobsHealth)
	}

	r.Route("/api/v1", func(api chi.Router) {
		api.Use(ActorMiddleware)
		for _, mounter := range p.API {
			mounter.Routes(api)
		}
	})

	return r
}

// ActorMiddleware builds the request actor from trusted gateway headers.
// Authentication happens upstream; this service only needs identity and
// organization scope.
func ActorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err1 := strconv.ParseInt(r.Header.Get("X-User-ID"), 10, 64)
		orgID, err2 := strconv.ParseInt(r.Header.Get("X-Org-ID"), 10, 64)
		if err1 != nil || err2 != nil || userID <= 0 || orgID <= 0 {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor headers")
			return
		}
		var roles []string
		if raw := r.Header.Get("X-Roles"); raw != "" {
			for _, role := range strings.Split(raw, ",") {
				if role = strings.TrimSpace(role); role != "" {
					roles = append(roles, role)
				}
			}
		}
		actor := shared.Actor{UserID: userID, OrgID: orgID, Roles: roles}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}
